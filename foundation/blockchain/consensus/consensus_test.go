package consensus_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/blockengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/identity"
	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func keys(t *testing.T) (*identity.Key, *identity.Key) {
	t.Helper()

	a, err := identity.FromHex("fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959")
	if err != nil {
		t.Fatalf("Should be able to decode key A: %v", err)
	}

	b, err := identity.FromHex("aed31b6b5a7fd9e8d5ab8f2d3e1b4c4f9b0c3a5f2e7d6c8b9a0f1e2d3c4b5a69")
	if err != nil {
		t.Fatalf("Should be able to decode key B: %v", err)
	}

	return a, b
}

func header(number uint64) database.BlockHeader {
	return database.BlockHeader{
		Number:      number,
		ParentHash:  signature.ZeroHash,
		Storage:     signature.ZeroHash,
		TxRoot:      signature.ZeroHash,
		ReceiptRoot: signature.ZeroHash,
		TimeStamp:   uint64(time.Now().UnixMilli()),
	}
}

// =============================================================================

func Test_POW(t *testing.T) {
	a, _ := keys(t)

	v, err := consensus.New(consensus.NamePOW, consensus.Config{Difficulty: 2})
	if err != nil {
		t.Fatalf("Should be able to construct the variant: %v", err)
	}

	t.Log("Given the need to validate blocks by work.")
	{
		t.Logf("\tTest 0:\tWhen sealing a header at difficulty 2.")
		{
			if !v.IsEligibleProducer(5, a) {
				t.Fatalf("\t%s\tTest 0:\tShould let anyone produce.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould let anyone produce.", success)

			h := header(1)
			if err := v.Seal(context.Background(), &h, a); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to seal: %v", failed, err)
			}
			if h.Producer != a.Account() {
				t.Fatalf("\t%s\tTest 0:\tShould set the producer, got %s.", failed, h.Producer)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to seal.", success)

			if err := v.ValidateBlock(h, consensus.ChainState{}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate a sealed header: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate a sealed header.", success)

			tampered := h
			tampered.Storage = signature.Hash("other")
			for isSolved(v, tampered) {
				tampered.Nonce++
			}
			if err := v.ValidateBlock(tampered, consensus.ChainState{}); !errors.Is(err, consensus.ErrUnsolved) {
				t.Fatalf("\t%s\tTest 0:\tShould reject an unsolved header: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject an unsolved header.", success)

			easy := h
			easy.Difficulty = 1
			if err := v.ValidateBlock(easy, consensus.ChainState{}); !errors.Is(err, consensus.ErrDifficulty) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a lower difficulty: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a lower difficulty.", success)
		}

		t.Logf("\tTest 1:\tWhen the seal is cancelled.")
		{
			hard, _ := consensus.New(consensus.NamePOW, consensus.Config{Difficulty: 16})

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			h := header(1)
			if err := hard.Seal(ctx, &h, a); !errors.Is(err, context.Canceled) {
				t.Fatalf("\t%s\tTest 1:\tShould stop when cancelled: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould stop when cancelled.", success)
		}
	}
}

func Test_POA(t *testing.T) {
	a, b := keys(t)

	v, err := consensus.New(consensus.NamePOA, consensus.Config{Delegates: []database.AccountID{a.Account(), b.Account()}})
	if err != nil {
		t.Fatalf("Should be able to construct the variant: %v", err)
	}

	t.Log("Given the need to validate blocks by delegate schedule.")
	{
		t.Logf("\tTest 0:\tWhen A isn't scheduled for slot 5.")
		{
			if v.IsEligibleProducer(5, a) {
				t.Fatalf("\t%s\tTest 0:\tShould not let A produce slot 5.", failed)
			}
			if !v.IsEligibleProducer(5, b) || !v.IsEligibleProducer(4, a) {
				t.Fatalf("\t%s\tTest 0:\tShould follow the delegate schedule.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould follow the delegate schedule.", success)

			h := header(5)
			if err := v.Seal(context.Background(), &h, a); !errors.Is(err, consensus.ErrNotEligible) {
				t.Fatalf("\t%s\tTest 0:\tShould not seal for another delegate's slot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not seal for another delegate's slot.", success)

			if err := v.Seal(context.Background(), &h, b); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould seal for the scheduled delegate: %v", failed, err)
			}
			if err := v.ValidateBlock(h, consensus.ChainState{}); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould validate the scheduled delegate's block: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould validate the scheduled delegate's block.", success)

			forged := h
			forged.Signature, _ = a.Sign(forged.Hash())
			if err := v.ValidateBlock(forged, consensus.ChainState{}); !errors.Is(err, consensus.ErrInvalidSeal) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a block signed by the wrong key: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a block signed by the wrong key.", success)

			claimed := h
			claimed.Producer = a.Account()
			if err := v.ValidateBlock(claimed, consensus.ChainState{}); !errors.Is(err, consensus.ErrWrongProducer) {
				t.Fatalf("\t%s\tTest 0:\tShould reject the wrong producer: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject the wrong producer.", success)

			moved := h
			moved.Storage = signature.Hash("other")
			if err := v.ValidateBlock(moved, consensus.ChainState{}); !errors.Is(err, consensus.ErrInvalidSeal) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a modified header: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a modified header.", success)
		}
	}
}

func Test_New(t *testing.T) {
	if _, err := consensus.New("pos", consensus.Config{}); !errors.Is(err, consensus.ErrUnknownVariant) {
		t.Fatalf("Should reject an unknown variant: %v", err)
	}

	if _, err := consensus.New(consensus.NamePOA, consensus.Config{}); err == nil {
		t.Fatalf("Should reject an empty delegate schedule.")
	}
}

// isSolved reports if the header passes validation.
func isSolved(v consensus.Variant, h database.BlockHeader) bool {
	return v.ValidateBlock(h, consensus.ChainState{}) == nil
}
