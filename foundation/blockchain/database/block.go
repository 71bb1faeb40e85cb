package database

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/blockengine/foundation/blockchain/merkle"
	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of error variables for block handling.
var (
	ErrHashMismatch   = errors.New("block hash doesn't match header")
	ErrTxRootMismatch = errors.New("transaction root doesn't match transactions")
)

// =============================================================================

// BlockHeader represents common information required for each block.
type BlockHeader struct {
	Number      uint64        `json:"number"`       // Ethereum: Block number in the chain.
	ParentHash  string        `json:"parent_hash"`  // Bitcoin: Hash of the previous block in the chain.
	Storage     string        `json:"storage"`      // Ethereum: State root after executing the block.
	TxRoot      string        `json:"tx_root"`      // Bitcoin/Ethereum: Merkle root of the ordered transactions.
	ReceiptRoot string        `json:"receipt_root"` // Ethereum: Merkle root of the ordered receipts.
	TimeStamp   uint64        `json:"timestamp"`    // Bitcoin: Time the block was produced.
	Producer    AccountID     `json:"producer"`     // Ethereum: The account who produced the block.
	Difficulty  uint          `json:"difficulty"`   // Ethereum: Number of 0's needed to solve the hash solution.
	Nonce       uint64        `json:"nonce"`        // Bitcoin: Value identified to solve the hash solution.
	Signature   hexutil.Bytes `json:"signature,omitempty"`
}

// Hash returns the unique hash for the header. The signature is excluded
// since it's produced over this hash.
func (h BlockHeader) Hash() string {
	h.Signature = nil
	return signature.Hash(h)
}

// =============================================================================

// Block represents a group of transactions batched together along with the
// receipts produced by executing them.
type Block struct {
	Header   BlockHeader
	Txs      []Tx
	Receipts []Receipt
}

// NewBlock constructs the next block on top of the parent for the specified
// transactions. The storage digest and receipt root are filled in once the
// block has been executed.
func NewBlock(parent BlockHeader, producer AccountID, difficulty uint, txs []Tx) (Block, error) {
	txRoot, err := TxRoot(txs)
	if err != nil {
		return Block{}, err
	}

	timeStamp := uint64(time.Now().UTC().UnixMilli())
	if timeStamp <= parent.TimeStamp {
		timeStamp = parent.TimeStamp + 1
	}

	b := Block{
		Header: BlockHeader{
			Number:     parent.Number + 1,
			ParentHash: parent.Hash(),
			TxRoot:     txRoot,
			TimeStamp:  timeStamp,
			Producer:   producer,
			Difficulty: difficulty,
		},
		Txs: txs,
	}

	return b, nil
}

// Hash returns the unique hash for the Block.
func (b Block) Hash() string {
	return b.Header.Hash()
}

// ValidateTxRoot checks the header commits to the block's transactions in
// their declared order.
func (b Block) ValidateTxRoot() error {
	root, err := TxRoot(b.Txs)
	if err != nil {
		return err
	}

	if root != b.Header.TxRoot {
		return fmt.Errorf("%w: got %s, exp %s", ErrTxRootMismatch, root, b.Header.TxRoot)
	}

	return nil
}

// String implements the fmt.Stringer interface for logging.
func (b Block) String() string {
	return fmt.Sprintf("%d:%s", b.Header.Number, b.Hash())
}

// =============================================================================

// TxRoot calculates the merkle root over the ordered transactions.
func TxRoot(txs []Tx) (string, error) {
	leafs := make([]txLeaf, len(txs))
	for i, tx := range txs {
		leafs[i] = txLeaf{Tx: tx}
	}

	tree, err := merkle.NewTree(leafs)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// ReceiptRoot calculates the merkle root over the ordered receipts.
func ReceiptRoot(receipts []Receipt) (string, error) {
	leafs := make([]receiptLeaf, len(receipts))
	for i, r := range receipts {
		leafs[i] = receiptLeaf{Receipt: r}
	}

	tree, err := merkle.NewTree(leafs)
	if err != nil {
		return "", err
	}

	return tree.RootHex(), nil
}

// =============================================================================

// BlockData represents what is written to storage and sent over the network.
type BlockData struct {
	Hash     string      `json:"hash"`
	Header   BlockHeader `json:"block"`
	Txs      []Tx        `json:"txs"`
	Receipts []Receipt   `json:"receipts"`
}

// NewBlockData constructs the value to serialize.
func NewBlockData(block Block) BlockData {
	return BlockData{
		Hash:     block.Hash(),
		Header:   block.Header,
		Txs:      block.Txs,
		Receipts: block.Receipts,
	}
}

// ToBlock converts a BlockData into a Block, making sure the hash that was
// carried along still matches the header.
func ToBlock(blockData BlockData) (Block, error) {
	b := Block{
		Header:   blockData.Header,
		Txs:      blockData.Txs,
		Receipts: blockData.Receipts,
	}

	if hash := b.Hash(); hash != blockData.Hash {
		return Block{}, fmt.Errorf("%w: got %s, exp %s", ErrHashMismatch, hash, blockData.Hash)
	}

	return b, nil
}
