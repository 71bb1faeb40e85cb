package signature_test

import (
	"testing"

	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	from     = "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"
)

// =============================================================================

func Test_Signing(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	hash := signature.Hash(value)

	sig, err := signature.Sign(hash, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	if err := signature.Verify(signature.CompressPublicKey(pk.PublicKey), hash, sig); err != nil {
		t.Fatalf("Should be able to verify the signature: %s", err)
	}

	addr, err := signature.FromAddress(hash, sig)
	if err != nil {
		t.Fatalf("Should be able to generate from address: %s", err)
	}

	if from != addr {
		t.Logf("got: %s", addr)
		t.Logf("exp: %s", from)
		t.Fatalf("Should get back the right address.")
	}

	addr, err = signature.PublicKeyToAddress(signature.CompressPublicKey(pk.PublicKey))
	if err != nil {
		t.Fatalf("Should be able to convert the public key: %s", err)
	}

	if from != addr {
		t.Logf("got: %s", addr)
		t.Logf("exp: %s", from)
		t.Fatalf("Should get back the right address from the public key.")
	}
}

func Test_TamperedHash(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to generate a private key: %s", err)
	}

	hash := signature.Hash("one")

	sig, err := signature.Sign(hash, pk)
	if err != nil {
		t.Fatalf("Should be able to sign data: %s", err)
	}

	other := signature.Hash("two")
	if err := signature.Verify(signature.CompressPublicKey(pk.PublicKey), other, sig); err == nil {
		t.Fatalf("Should not verify a signature against a different hash.")
	}

	if err := signature.Verify([]byte{1, 2, 3}, hash, sig); err == nil {
		t.Fatalf("Should not verify with a malformed public key.")
	}
}

func Test_Hash(t *testing.T) {
	value := struct {
		Name string
	}{
		Name: "Bill",
	}

	h1 := signature.Hash(value)
	h2 := signature.Hash(value)
	if h1 != h2 {
		t.Fatalf("Should get the same hash twice.")
	}

	if len(h1) != 66 {
		t.Logf("got: %d", len(h1))
		t.Fatalf("Should get back a 0x prefixed 32 byte hash.")
	}

	value.Name = "Jill"
	if h1 == signature.Hash(value) {
		t.Fatalf("Should get a different hash for different data.")
	}
}
