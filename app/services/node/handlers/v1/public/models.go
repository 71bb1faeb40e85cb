package public

import (
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/nameservice"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// submitTx is the document a client posts to submit a signed transaction.
type submitTx struct {
	Type      string        `json:"type" validate:"required"`
	Sender    hexutil.Bytes `json:"sender" validate:"required"`
	Nonce     uint64        `json:"nonce" validate:"gt=0"`
	Payload   hexutil.Bytes `json:"payload"`
	Signature hexutil.Bytes `json:"signature" validate:"required,len=65"`
}

func (s submitTx) toTx() database.Tx {
	return database.Tx{
		Type:      s.Type,
		Sender:    s.Sender,
		Nonce:     s.Nonce,
		Payload:   s.Payload,
		Signature: s.Signature,
	}
}

type tx struct {
	Hash     string             `json:"hash"`
	Type     string             `json:"type"`
	From     database.AccountID `json:"from"`
	FromName string             `json:"from_name"`
	Nonce    uint64             `json:"nonce"`
	Payload  string             `json:"payload"`
}

type receipt struct {
	TxHash string `json:"tx_hash"`
	Code   int    `json:"code"`
	Log    string `json:"log,omitempty"`
}

type block struct {
	Hash         string             `json:"hash"`
	Number       uint64             `json:"number"`
	ParentHash   string             `json:"parent_hash"`
	Storage      string             `json:"storage"`
	TxRoot       string             `json:"tx_root"`
	ReceiptRoot  string             `json:"receipt_root"`
	TimeStamp    uint64             `json:"timestamp"`
	Producer     database.AccountID `json:"producer"`
	ProducerName string             `json:"producer_name"`
	Difficulty   uint               `json:"difficulty"`
	Nonce        uint64             `json:"nonce"`
	Txs          []tx               `json:"txs"`
	Receipts     []receipt          `json:"receipts"`
}

type account struct {
	Account     database.AccountID `json:"account"`
	Name        string             `json:"name"`
	Balance     uint64             `json:"balance"`
	Nonce       uint64             `json:"nonce"`
	LatestBlock string             `json:"latest_block"`
}

func toTx(dbTx database.Tx, ns *nameservice.NameService) tx {
	from, _ := dbTx.From()

	return tx{
		Hash:     dbTx.Hash(),
		Type:     dbTx.Type,
		From:     from,
		FromName: ns.Lookup(from),
		Nonce:    dbTx.Nonce,
		Payload:  string(dbTx.Payload),
	}
}

func toBlock(dbBlock database.Block, ns *nameservice.NameService) block {
	txs := make([]tx, len(dbBlock.Txs))
	for i, dbTx := range dbBlock.Txs {
		txs[i] = toTx(dbTx, ns)
	}

	rcpts := make([]receipt, len(dbBlock.Receipts))
	for i, r := range dbBlock.Receipts {
		rcpts[i] = receipt{
			TxHash: r.TxHash,
			Code:   r.Code,
			Log:    string(r.Log),
		}
	}

	h := dbBlock.Header

	return block{
		Hash:         dbBlock.Hash(),
		Number:       h.Number,
		ParentHash:   h.ParentHash,
		Storage:      h.Storage,
		TxRoot:       h.TxRoot,
		ReceiptRoot:  h.ReceiptRoot,
		TimeStamp:    h.TimeStamp,
		Producer:     h.Producer,
		ProducerName: ns.Lookup(h.Producer),
		Difficulty:   h.Difficulty,
		Nonce:        h.Nonce,
		Txs:          txs,
		Receipts:     rcpts,
	}
}
