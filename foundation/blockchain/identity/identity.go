// Package identity provides the node's key material for producing blocks and
// signing transactions.
package identity

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

// Key represents an ECDSA private key and the account it controls.
type Key struct {
	privateKey *ecdsa.PrivateKey
	account    database.AccountID
}

// New constructs a key for the specified private key.
func New(privateKey *ecdsa.PrivateKey) *Key {
	return &Key{
		privateKey: privateKey,
		account:    database.PublicKeyToAccountID(privateKey.PublicKey),
	}
}

// Generate constructs a key from a newly generated private key.
func Generate() (*Key, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	return New(privateKey), nil
}

// FromHex constructs a key from a hex encoded private key.
func FromHex(hexKey string) (*Key, error) {
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, err
	}

	return New(privateKey), nil
}

// Load reads the private key stored in the specified .ecdsa file.
func Load(path string) (*Key, error) {
	privateKey, err := crypto.LoadECDSA(path)
	if err != nil {
		return nil, fmt.Errorf("unable to load private key %s: %w", path, err)
	}

	return New(privateKey), nil
}

// Save writes the private key to the specified file, creating the directory
// if it doesn't exist.
func (k *Key) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return crypto.SaveECDSA(path, k.privateKey)
}

// Account returns the account this key controls.
func (k *Key) Account() database.AccountID {
	return k.account
}

// Sign signs the specified hex encoded hash.
func (k *Key) Sign(hash string) ([]byte, error) {
	return signature.Sign(hash, k.privateKey)
}

// SignTx signs the transaction with this key.
func (k *Key) SignTx(tx database.Tx) (database.Tx, error) {
	return tx.Sign(k.privateKey)
}

// PrivateKey returns the underlying private key.
func (k *Key) PrivateKey() *ecdsa.PrivateKey {
	return k.privateKey
}
