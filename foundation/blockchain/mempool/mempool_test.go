package mempool_test

import (
	"testing"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/mempool"
	"github.com/ardanlabs/blockengine/foundation/blockchain/mempool/selector"
	"github.com/ethereum/go-ethereum/crypto"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

const (
	keyPavel = "fae85851bdf5c9f49923722ce38f3c1defcfd3619ef5453230a58ad805499959"
	keyBill  = "9f332e3700d8fc2446eaf6d15034cf96e0c2745e40353deef032a5dbf1dfed93"
)

func sign(t *testing.T, hexKey string, nonce uint64) database.Tx {
	pk, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to decode the private key: %s", failed, err)
	}

	tx, err := database.NewTx("store", nonce, []byte(`{"key":"k","value":"v"}`)).Sign(pk)
	if err != nil {
		t.Fatalf("\t%s\tShould be able to sign transaction: %s", failed, err)
	}

	return tx
}

func TestCRUD(t *testing.T) {
	t.Log("Given the need to validate mempool api.")
	{
		t.Logf("\tTest 0:\tWhen handling a set of transactions.")
		{
			mp, err := mempool.New()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to construct the mempool: %s", failed, err)
			}

			txs := []database.Tx{
				sign(t, keyPavel, 2),
				sign(t, keyBill, 1),
				sign(t, keyPavel, 1),
			}

			for _, tx := range txs {
				added, err := mp.Add(tx)
				if err != nil || !added {
					t.Fatalf("\t%s\tTest 0:\tShould be able to add new transaction %s: %v", failed, tx, err)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould be able to add new transactions.", success)

			added, err := mp.Add(txs[0])
			if err != nil || added || mp.Count() != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould not pool the same transaction twice: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not pool the same transaction twice.", success)

			if !mp.Contains(txs[1].Hash()) {
				t.Fatalf("\t%s\tTest 0:\tShould find a pooled transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould find a pooled transaction.", success)

			for i, tx := range mp.Copy() {
				if tx.Hash() != txs[i].Hash() {
					t.Fatalf("\t%s\tTest 0:\tShould get back transactions in arrival order.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould get back transactions in arrival order.", success)

			best := mp.PickBest(-1)
			exp := []database.Tx{txs[2], txs[1], txs[0]}
			for i := range exp {
				if best[i].Hash() != exp[i].Hash() {
					t.Logf("\t%s\tTest 0:\tgot: %s", failed, best[i])
					t.Logf("\t%s\tTest 0:\texp: %s", failed, exp[i])
					t.Fatalf("\t%s\tTest 0:\tShould respect nonce order per account.", failed)
				}
			}
			t.Logf("\t%s\tTest 0:\tShould respect nonce order per account.", success)

			if n := mp.DeleteTxs([]database.Tx{txs[0], sign(t, keyBill, 9)}); n != 1 || mp.Count() != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould remove only pooled transactions, removed %d.", failed, n)
			}
			t.Logf("\t%s\tTest 0:\tShould remove only pooled transactions.", success)

			mp.Delete(txs[1].Hash())
			if mp.Contains(txs[1].Hash()) || mp.Count() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould be able to remove a transaction.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to remove a transaction.", success)

			mp.Truncate()
			if mp.Count() != 0 {
				t.Fatalf("\t%s\tTest 0:\tShould be able to truncate mempool.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould be able to truncate mempool.", success)
		}

		t.Logf("\tTest 1:\tWhen choosing a strategy.")
		{
			if _, err := mempool.NewWithStrategy(selector.StrategySender); err != nil {
				t.Fatalf("\t%s\tTest 1:\tShould accept the sender strategy: %s", failed, err)
			}
			if _, err := mempool.NewWithStrategy("tip"); err == nil {
				t.Fatalf("\t%s\tTest 1:\tShould reject an unknown strategy.", failed)
			}
			t.Logf("\t%s\tTest 1:\tShould only accept known strategies.", success)
		}
	}
}
