package database_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/merkle"
	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
	"github.com/davecgh/go-spew/spew"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const pkHexKey = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"

// =============================================================================

func Test_Transactions(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to decode the private key: %v", err)
	}

	t.Log("Given the need to sign and validate transactions.")
	{
		t.Logf("\tTest 0:\tWhen handling a transfer transaction.")
		{
			tx, err := database.NewTx("transfer", 1, []byte(`{"to":"0xF01813E4B85e178A83e29B8E7bF26BD830a25f32","value":10}`)).Sign(pk)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to sign the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to sign the transaction.", success)

			if err := tx.Validate(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to validate the transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to validate the transaction.", success)

			from, err := tx.From()
			if err != nil || from != "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4" {
				t.Fatalf("\t%s\tTest 0:\tShould get the sender account, got %s: %v", failed, from, err)
			}
			t.Logf("\t%s\tTest 0:\tShould get the sender account.", success)

			hash := tx.Hash()
			signed := tx
			signed.Signature = nil
			if signed.Hash() != hash {
				t.Fatalf("\t%s\tTest 0:\tShould not include the signature in the hash.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not include the signature in the hash.", success)

			tampered := tx
			tampered.Nonce = 2
			if err := tampered.Validate(); !errors.Is(err, signature.ErrInvalidSignature) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a tampered transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a tampered transaction.", success)

			untyped := database.NewTx("", 1, nil)
			if err := untyped.Validate(); !errors.Is(err, database.ErrMissingType) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a transaction without a type: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a transaction without a type.", success)
		}
	}
}

func Test_BlockData(t *testing.T) {
	pk, err := crypto.HexToECDSA(pkHexKey)
	if err != nil {
		t.Fatalf("Should be able to decode the private key: %v", err)
	}

	var txs []database.Tx
	for i := uint64(1); i <= 3; i++ {
		tx, err := database.NewTx("store", i, []byte(`{"key":"k","value":"v"}`)).Sign(pk)
		if err != nil {
			t.Fatalf("Should be able to sign the transaction: %v", err)
		}
		txs = append(txs, tx)
	}

	genesis := database.BlockHeader{ParentHash: signature.ZeroHash}

	t.Log("Given the need to serialize blocks.")
	{
		t.Logf("\tTest 0:\tWhen building block 1 with three transactions.")
		{
			block, err := database.NewBlock(genesis, "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", 0, txs)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to build the block: %v", failed, err)
			}
			if block.Header.Number != 1 || block.Header.ParentHash != genesis.Hash() {
				t.Fatalf("\t%s\tTest 0:\tShould link to the parent: %s", failed, spew.Sdump(block.Header))
			}
			t.Logf("\t%s\tTest 0:\tShould link to the parent.", success)

			if err := block.ValidateTxRoot(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould commit to the transactions: %v", failed, err)
			}

			reordered := block
			reordered.Txs = []database.Tx{txs[2], txs[1], txs[0]}
			if err := reordered.ValidateTxRoot(); !errors.Is(err, database.ErrTxRootMismatch) {
				t.Fatalf("\t%s\tTest 0:\tShould detect reordered transactions: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould commit to the transaction order.", success)

			block.Receipts = []database.Receipt{database.NewReceipt(txs[0], database.CodeOK, "")}
			block.Header.Signature = []byte{1, 2, 3}
			hash := block.Hash()

			data, err := json.Marshal(database.NewBlockData(block))
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to marshal the block: %v", failed, err)
			}

			var blockData database.BlockData
			if err := json.Unmarshal(data, &blockData); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to unmarshal the block: %v", failed, err)
			}

			got, err := database.ToBlock(blockData)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to convert the block: %v", failed, err)
			}
			if got.Hash() != hash || len(got.Txs) != 3 || len(got.Receipts) != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould get back the same block: %s", failed, spew.Sdump(got))
			}
			t.Logf("\t%s\tTest 0:\tShould get back the same block.", success)

			blockData.Header.Nonce++
			if _, err := database.ToBlock(blockData); !errors.Is(err, database.ErrHashMismatch) {
				t.Fatalf("\t%s\tTest 0:\tShould detect a modified header: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould detect a modified header.", success)
		}

		t.Logf("\tTest 1:\tWhen building an empty block.")
		{
			block, err := database.NewBlock(genesis, "", 0, nil)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the block: %v", failed, err)
			}

			root, err := database.ReceiptRoot(nil)
			if err != nil || root != merkle.ZeroRoot || block.Header.TxRoot != merkle.ZeroRoot {
				t.Fatalf("\t%s\tTest 1:\tShould use the zero root: %s %s", failed, root, block.Header.TxRoot)
			}
			t.Logf("\t%s\tTest 1:\tShould use the zero root.", success)
		}
	}
}

func Test_AccountID(t *testing.T) {
	tt := []struct {
		name  string
		value string
		valid bool
	}{
		{name: "valid", value: "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", valid: true},
		{name: "noprefix", value: "dd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", valid: true},
		{name: "short", value: "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8eb", valid: false},
		{name: "nothex", value: "0xzz6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", valid: false},
	}

	for _, tst := range tt {
		f := func(t *testing.T) {
			_, err := database.ToAccountID(tst.value)
			if (err == nil) != tst.valid {
				t.Fatalf("Test %s:\tShould get the expected result, got %v.", tst.name, err)
			}
		}

		t.Run(tst.name, f)
	}
}

func Test_ReceiptProof(t *testing.T) {
	var receipts []database.Receipt
	for nonce := uint64(1); nonce <= 5; nonce++ {
		tx := database.NewTx("transfer", nonce, []byte(`{"value":1}`))
		receipts = append(receipts, database.NewReceipt(tx, database.CodeOK, ""))
	}

	root, err := database.ReceiptRoot(receipts)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to calculate the receipt root: %s", failed, err)
	}

	t.Log("Given the need to prove a receipt is committed to by a block.")
	{
		t.Logf("\tTest 0:\tWhen proving each receipt of a block.")
		{
			for _, r := range receipts {
				proof, err := database.NewReceiptProof(receipts, r.TxHash)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to build the proof: %s", failed, err)
				}

				if err := proof.Verify(root); err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould verify the proof for %s: %s", failed, r.TxHash, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould verify the proof for every receipt.", success)
		}

		t.Logf("\tTest 1:\tWhen the proof is altered.")
		{
			proof, err := database.NewReceiptProof(receipts, receipts[2].TxHash)
			if err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould be able to build the proof: %s", failed, err)
			}

			tampered := proof
			tampered.Receipt.Code = database.CodeExecutorError
			if err := tampered.Verify(root); !errors.Is(err, merkle.ErrInvalidProof) {
				t.Fatalf("\t%s\tTest 1:\tShould fail for a changed receipt: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould fail for a changed receipt.", success)

			padded := proof
			padded.Count++
			if err := padded.Verify(root); !errors.Is(err, merkle.ErrInvalidProof) {
				t.Fatalf("\t%s\tTest 1:\tShould fail for a changed receipt count: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould fail for a changed receipt count.", success)

			if _, err := database.NewReceiptProof(receipts, "0x01"); !errors.Is(err, database.ErrReceiptNotFound) {
				t.Fatalf("\t%s\tTest 1:\tShould report a missing receipt: %v", failed, err)
			}
			t.Logf("\t%s\tTest 1:\tShould report a missing receipt.", success)
		}
	}
}
