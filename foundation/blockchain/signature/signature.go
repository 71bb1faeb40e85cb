// Package signature provides helper functions for handling the blockchain
// hashing and signature needs.
package signature

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/json"
	"errors"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// ZeroHash represents a hash code of zeros.
const ZeroHash string = "0x0000000000000000000000000000000000000000000000000000000000000000"

// engineStamp is mixed into every digest that gets signed so a signature
// produced for this chain can't be replayed as an Ethereum message.
const engineStamp = "\x19Blockengine Signed Message:\n32"

// Set of error variables for signature handling.
var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidPublicKey = errors.New("invalid public key")
)

// =============================================================================

// Hash returns a unique string for the value. The value is marshaled to JSON
// which gives struct fields a deterministic order.
func Hash(value any) string {
	data, err := json.Marshal(value)
	if err != nil {
		return ZeroHash
	}

	hash := sha256.Sum256(data)
	return hexutil.Encode(hash[:])
}

// Digest returns the 32 byte value that is actually signed for the specified
// hex encoded hash.
func Digest(hash string) ([]byte, error) {
	data, err := hexutil.Decode(hash)
	if err != nil {
		return nil, err
	}

	return crypto.Keccak256([]byte(engineStamp), data), nil
}

// Sign uses the specified private key to sign the hex encoded hash. The
// 65 byte recoverable signature is returned in the [R|S|V] format.
func Sign(hash string, privateKey *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := Digest(hash)
	if err != nil {
		return nil, err
	}

	sig, err := crypto.Sign(digest, privateKey)
	if err != nil {
		return nil, err
	}

	// Check the public key extracted from the data and signature.
	publicKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return nil, err
	}

	if !crypto.VerifySignature(crypto.FromECDSAPub(publicKey), digest, sig[:crypto.RecoveryIDOffset]) {
		return nil, ErrInvalidSignature
	}

	return sig, nil
}

// Verify checks the signature was produced over the hash by the owner of the
// compressed public key.
func Verify(publicKey []byte, hash string, sig []byte) error {
	if len(publicKey) != 33 {
		return ErrInvalidPublicKey
	}

	if len(sig) != crypto.SignatureLength {
		return ErrInvalidSignature
	}

	digest, err := Digest(hash)
	if err != nil {
		return err
	}

	if !crypto.VerifySignature(publicKey, digest, sig[:crypto.RecoveryIDOffset]) {
		return ErrInvalidSignature
	}

	return nil
}

// FromAddress extracts the address for the account that signed the hash.
func FromAddress(hash string, sig []byte) (string, error) {
	if len(sig) != crypto.SignatureLength {
		return "", ErrInvalidSignature
	}

	digest, err := Digest(hash)
	if err != nil {
		return "", err
	}

	publicKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		return "", err
	}

	return crypto.PubkeyToAddress(*publicKey).String(), nil
}

// PublicKeyToAddress converts a compressed public key into its account address.
func PublicKeyToAddress(publicKey []byte) (string, error) {
	pk, err := crypto.DecompressPubkey(publicKey)
	if err != nil {
		return "", ErrInvalidPublicKey
	}

	return crypto.PubkeyToAddress(*pk).String(), nil
}

// CompressPublicKey returns the 33 byte compressed form of the public key.
func CompressPublicKey(pk ecdsa.PublicKey) []byte {
	return crypto.CompressPubkey(&pk)
}
