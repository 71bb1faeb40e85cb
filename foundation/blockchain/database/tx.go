package database

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrMissingType is returned when a transaction doesn't declare a type.
var ErrMissingType = errors.New("transaction type is missing")

// Tx is a signed request to change state. The type selects the executor that
// interprets the payload. Once signed a transaction is never changed.
type Tx struct {
	Type      string        `json:"type"`
	Sender    hexutil.Bytes `json:"sender"`
	Nonce     uint64        `json:"nonce"`
	Payload   hexutil.Bytes `json:"payload"`
	Signature hexutil.Bytes `json:"signature"`
}

// unsignedTx is the portion of the transaction covered by the hash.
type unsignedTx struct {
	Type    string        `json:"type"`
	Sender  hexutil.Bytes `json:"sender"`
	Nonce   uint64        `json:"nonce"`
	Payload hexutil.Bytes `json:"payload"`
}

// NewTx constructs an unsigned transaction.
func NewTx(txType string, nonce uint64, payload []byte) Tx {
	return Tx{
		Type:    txType,
		Nonce:   nonce,
		Payload: payload,
	}
}

// Hash returns the digest of the unsigned fields. The sender is part of the
// hash so it must be set before hashing.
func (tx Tx) Hash() string {
	return signature.Hash(unsignedTx{
		Type:    tx.Type,
		Sender:  tx.Sender,
		Nonce:   tx.Nonce,
		Payload: tx.Payload,
	})
}

// Sign sets the sender from the private key and signs the transaction.
func (tx Tx) Sign(privateKey *ecdsa.PrivateKey) (Tx, error) {
	tx.Sender = signature.CompressPublicKey(privateKey.PublicKey)

	sig, err := signature.Sign(tx.Hash(), privateKey)
	if err != nil {
		return Tx{}, err
	}
	tx.Signature = sig

	return tx, nil
}

// Validate verifies the transaction declares a type and carries a signature
// from the sender over its hash.
func (tx Tx) Validate() error {
	if tx.Type == "" {
		return ErrMissingType
	}

	if err := signature.Verify(tx.Sender, tx.Hash(), tx.Signature); err != nil {
		return fmt.Errorf("tx %s: %w", tx.Hash(), err)
	}

	return nil
}

// From returns the account that owns the sender key.
func (tx Tx) From() (AccountID, error) {
	address, err := signature.PublicKeyToAddress(tx.Sender)
	if err != nil {
		return "", err
	}

	return AccountID(address), nil
}

// String implements the fmt.Stringer interface for logging.
func (tx Tx) String() string {
	from, err := tx.From()
	if err != nil {
		from = "unknown"
	}

	return fmt.Sprintf("%s:%s:%d", tx.Type, from, tx.Nonce)
}

// =============================================================================

// txLeaf adapts a transaction to the merkle Hashable interface.
type txLeaf struct {
	Tx
}

// Hash implements the merkle Hashable interface.
func (l txLeaf) Hash() ([]byte, error) {
	return hexutil.Decode(l.Tx.Hash())
}

// Equals implements the merkle Hashable interface. Two transactions are the
// same if their hashes are the same.
func (l txLeaf) Equals(other txLeaf) bool {
	return l.Tx.Hash() == other.Tx.Hash()
}
