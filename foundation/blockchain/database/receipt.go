package database

import (
	"errors"
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/merkle"
	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of receipt codes shared by every executor. Executors define their own
// codes starting at CodeExecutorBase.
const (
	CodeOK               = 0
	CodeUnknownType      = 1
	CodeInvalidSignature = 2
	CodeExecutorError    = 3
	CodeExecutorBase     = 100
)

// Receipt records the outcome of executing one transaction inside a block.
type Receipt struct {
	TxHash string        `json:"tx_hash"`
	Code   int           `json:"code"`
	Log    hexutil.Bytes `json:"log,omitempty"`
}

// NewReceipt constructs a receipt for the transaction.
func NewReceipt(tx Tx, code int, log string) Receipt {
	r := Receipt{
		TxHash: tx.Hash(),
		Code:   code,
	}

	if log != "" {
		r.Log = []byte(log)
	}

	return r
}

// Succeeded reports if the transaction's writes were committed.
func (r Receipt) Succeeded() bool {
	return r.Code == CodeOK
}

// String implements the fmt.Stringer interface for logging.
func (r Receipt) String() string {
	return fmt.Sprintf("%s:%d:%s", r.TxHash, r.Code, string(r.Log))
}

// =============================================================================

// ErrReceiptNotFound is returned when a block has no receipt for a
// transaction.
var ErrReceiptNotFound = errors.New("receipt not found")

// ReceiptProof proves a receipt is committed to by a block's receipt root
// without needing the other receipts of the block.
type ReceiptProof struct {
	Receipt Receipt         `json:"receipt"`
	Count   int             `json:"count"`
	Hashes  []hexutil.Bytes `json:"hashes"`
	Order   []int64         `json:"order"`
}

// NewReceiptProof builds the proof for the receipt of the specified
// transaction from the ordered receipts of a block.
func NewReceiptProof(receipts []Receipt, txHash string) (ReceiptProof, error) {
	leafs := make([]receiptLeaf, len(receipts))
	found := -1
	for i, r := range receipts {
		leafs[i] = receiptLeaf{Receipt: r}
		if found == -1 && r.TxHash == txHash {
			found = i
		}
	}

	if found == -1 {
		return ReceiptProof{}, fmt.Errorf("%w: tx[%s]", ErrReceiptNotFound, txHash)
	}

	tree, err := merkle.NewTree(leafs)
	if err != nil {
		return ReceiptProof{}, err
	}

	hashes, order, err := tree.Proof(leafs[found])
	if err != nil {
		return ReceiptProof{}, err
	}

	proof := ReceiptProof{
		Receipt: receipts[found],
		Count:   len(receipts),
		Hashes:  make([]hexutil.Bytes, len(hashes)),
		Order:   order,
	}
	for i, h := range hashes {
		proof.Hashes[i] = h
	}

	return proof, nil
}

// Verify checks the proof against the receipt root of a block header.
func (p ReceiptProof) Verify(receiptRoot string) error {
	root, err := hexutil.Decode(receiptRoot)
	if err != nil {
		return err
	}

	hashes := make([][]byte, len(p.Hashes))
	for i, h := range p.Hashes {
		hashes[i] = h
	}

	return merkle.VerifyProof(receiptLeaf{Receipt: p.Receipt}, p.Count, hashes, p.Order, root)
}

// =============================================================================

// receiptLeaf adapts a receipt to the merkle Hashable interface.
type receiptLeaf struct {
	Receipt
}

// Hash implements the merkle Hashable interface.
func (l receiptLeaf) Hash() ([]byte, error) {
	return hexutil.Decode(signature.Hash(l.Receipt))
}

// Equals implements the merkle Hashable interface.
func (l receiptLeaf) Equals(other receiptLeaf) bool {
	return signature.Hash(l.Receipt) == signature.Hash(other.Receipt)
}
