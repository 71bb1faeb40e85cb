package storage_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/blockengine/foundation/blockchain/storage"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// put opens a transaction, writes the key/values and commits.
func put(t *testing.T, e *storage.Engine, kv ...string) {
	t.Helper()

	tx, err := e.BeginTransaction()
	if err != nil {
		t.Fatalf("\t%s\tShould be able to begin a transaction: %v", failed, err)
	}

	for i := 0; i+1 < len(kv); i += 2 {
		if err := tx.Put(kv[i], []byte(kv[i+1])); err != nil {
			t.Fatalf("\t%s\tShould be able to put %s: %v", failed, kv[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("\t%s\tShould be able to commit: %v", failed, err)
	}
}

// =============================================================================

func Test_SnapshotSequence(t *testing.T) {
	type table struct {
		name    string
		numbers []uint64
		next    uint64
		err     error
	}

	tt := []table{
		{name: "first", numbers: nil, next: 7, err: nil},
		{name: "next", numbers: []uint64{0, 1}, next: 2, err: nil},
		{name: "same", numbers: []uint64{0, 1}, next: 1, err: storage.ErrSnapshotSequence},
		{name: "gap", numbers: []uint64{0}, next: 2, err: storage.ErrSnapshotSequence},
		{name: "older", numbers: []uint64{0, 1, 2}, next: 0, err: storage.ErrSnapshotSequence},
	}

	t.Log("Given the need to capture snapshots in block order.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen creating snapshot %d after %v.", testID, tst.next, tst.numbers)
				{
					e := storage.New(0)
					for _, n := range tst.numbers {
						if _, err := e.CreateSnapshot(n); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to create snapshot %d: %v", failed, testID, n, err)
						}
					}

					_, err := e.CreateSnapshot(tst.next)
					if !errors.Is(err, tst.err) {
						t.Logf("\t%s\tTest %d:\tgot: %v", failed, testID, err)
						t.Logf("\t%s\tTest %d:\texp: %v", failed, testID, tst.err)
						t.Fatalf("\t%s\tTest %d:\tShould get the expected result.", failed, testID)
					}
					t.Logf("\t%s\tTest %d:\tShould get the expected result.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Transactions(t *testing.T) {
	t.Log("Given the need to buffer writes in a transaction.")
	{
		t.Logf("\tTest 0:\tWhen committing and rolling back.")
		{
			e := storage.New(0)
			put(t, e, "a", "1", "b", "2")

			tx, err := e.BeginTransaction()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to begin a transaction: %v", failed, err)
			}

			if _, err := e.BeginTransaction(); !errors.Is(err, storage.ErrTransactionInUse) {
				t.Fatalf("\t%s\tTest 0:\tShould not be able to open a second transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not be able to open a second transaction.", success)

			if _, err := e.CreateSnapshot(0); !errors.Is(err, storage.ErrTransactionInUse) {
				t.Fatalf("\t%s\tTest 0:\tShould not be able to snapshot with an open transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould not be able to snapshot with an open transaction.", success)

			tx.Put("a", []byte("changed"))
			tx.Delete("b")
			tx.Put("c", []byte("3"))

			v, exists, _ := tx.Get("a")
			if !exists || string(v) != "changed" {
				t.Fatalf("\t%s\tTest 0:\tShould read its own writes, got %q.", failed, v)
			}
			if has, _ := tx.Has("b"); has {
				t.Fatalf("\t%s\tTest 0:\tShould not see a deleted key.", failed)
			}
			if v, _ := e.Get("a"); string(v) != "1" {
				t.Fatalf("\t%s\tTest 0:\tShould not expose buffered writes to the engine, got %q.", failed, v)
			}
			t.Logf("\t%s\tTest 0:\tShould isolate buffered writes.", success)

			keys, err := tx.Keys("")
			if err != nil || len(keys) != 2 || keys[0] != "a" || keys[1] != "c" {
				t.Fatalf("\t%s\tTest 0:\tShould list the visible keys, got %v: %v", failed, keys, err)
			}
			t.Logf("\t%s\tTest 0:\tShould list the visible keys.", success)

			before, _ := e.Digest()
			if err := tx.Rollback(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to rollback: %v", failed, err)
			}
			after, _ := e.Digest()
			if before != after {
				t.Fatalf("\t%s\tTest 0:\tShould leave no trace after rollback.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould leave no trace after rollback.", success)

			if err := tx.Rollback(); !errors.Is(err, storage.ErrInvalidTransactionState) {
				t.Fatalf("\t%s\tTest 0:\tShould not be able to rollback twice: %v", failed, err)
			}
			if err := tx.Commit(); !errors.Is(err, storage.ErrInvalidTransactionState) {
				t.Fatalf("\t%s\tTest 0:\tShould not be able to commit a closed transaction: %v", failed, err)
			}
			if err := tx.Put("x", nil); !errors.Is(err, storage.ErrInvalidTransactionState) {
				t.Fatalf("\t%s\tTest 0:\tShould not be able to write to a closed transaction: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould refuse to use a closed transaction.", success)

			tx, err = e.BeginTransaction()
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to begin after rollback: %v", failed, err)
			}
			tx.Delete("b")
			if err := tx.Commit(); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to commit: %v", failed, err)
			}
			if err := tx.Commit(); !errors.Is(err, storage.ErrInvalidTransactionState) {
				t.Fatalf("\t%s\tTest 0:\tShould not be able to commit twice: %v", failed, err)
			}
			if _, exists := e.Get("b"); exists {
				t.Fatalf("\t%s\tTest 0:\tShould observe the committed delete.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould observe committed writes.", success)
		}
	}
}

func Test_SnapshotIsolation(t *testing.T) {
	t.Log("Given the need for snapshots to be immutable.")
	{
		t.Logf("\tTest 0:\tWhen writing after a snapshot.")
		{
			e := storage.New(0)
			put(t, e, "a", "1")

			s0, err := e.CreateSnapshot(0)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to create snapshot: %v", failed, err)
			}

			put(t, e, "a", "2", "b", "3")

			if v, _ := s0.Get("a"); string(v) != "1" {
				t.Fatalf("\t%s\tTest 0:\tShould keep the snapshot value, got %q.", failed, v)
			}
			if s0.Len() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the snapshot keys, got %d.", failed, s0.Len())
			}
			t.Logf("\t%s\tTest 0:\tShould keep the snapshot contents unchanged.", success)

			s1, err := e.CreateSnapshot(1)
			if err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to create snapshot: %v", failed, err)
			}
			if s0.Digest() == s1.Digest() {
				t.Fatalf("\t%s\tTest 0:\tShould get a different digest for different contents.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould get a different digest for different contents.", success)

			if err := e.Recover(s0); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould be able to recover: %v", failed, err)
			}
			if d, _ := e.Digest(); d != s0.Digest() {
				t.Fatalf("\t%s\tTest 0:\tShould match the recovered snapshot digest.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould match the recovered snapshot digest.", success)

			put(t, e, "z", "9")
			if _, exists := s0.Get("z"); exists {
				t.Fatalf("\t%s\tTest 0:\tShould not leak writes into a recovered snapshot.", failed)
			}
			if _, exists := s1.Get("z"); exists {
				t.Fatalf("\t%s\tTest 0:\tShould not leak writes into a newer snapshot.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not leak writes into snapshots.", success)

			if snap, exists := e.SnapshotByDigest(s1.Digest()); !exists || snap.Number() != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould locate a snapshot by digest.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould locate a snapshot by digest.", success)
		}
	}
}

func Test_Recover(t *testing.T) {
	t.Log("Given the need to recover only known snapshots.")
	{
		t.Logf("\tTest 0:\tWhen recovering foreign, discarded and pruned snapshots.")
		{
			e := storage.New(2)
			other := storage.New(0)

			foreign, _ := other.CreateSnapshot(0)
			if err := e.Recover(foreign); !errors.Is(err, storage.ErrUnknownSnapshot) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a foreign snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a foreign snapshot.", success)

			var snaps []*storage.Snapshot
			for i := uint64(0); i < 4; i++ {
				put(t, e, "k", string(rune('a'+i)))
				snap, err := e.CreateSnapshot(i)
				if err != nil {
					t.Fatalf("\t%s\tTest 0:\tShould be able to create snapshot %d: %v", failed, i, err)
				}
				snaps = append(snaps, snap)
			}

			if n := e.Discard(2); n != 1 {
				t.Fatalf("\t%s\tTest 0:\tShould discard one snapshot, got %d.", failed, n)
			}
			if err := e.Recover(snaps[3]); !errors.Is(err, storage.ErrUnknownSnapshot) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a discarded snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a discarded snapshot.", success)

			if _, err := e.CreateSnapshot(3); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould reuse a discarded number: %v", failed, err)
			}

			if n := e.Prune(); n != 2 {
				t.Fatalf("\t%s\tTest 0:\tShould prune two snapshots, got %d.", failed, n)
			}
			if err := e.Recover(snaps[0]); !errors.Is(err, storage.ErrUnknownSnapshot) {
				t.Fatalf("\t%s\tTest 0:\tShould reject a pruned snapshot: %v", failed, err)
			}
			t.Logf("\t%s\tTest 0:\tShould reject a pruned snapshot.", success)

			got := e.Snapshots()
			if len(got) != 2 || got[0].Number() != 2 || got[1].Number() != 3 {
				t.Fatalf("\t%s\tTest 0:\tShould keep the newest snapshots in order, got %v.", failed, got)
			}
			t.Logf("\t%s\tTest 0:\tShould keep the newest snapshots in order.", success)

			if err := e.Recover(snaps[2]); err != nil {
				t.Fatalf("\t%s\tTest 0:\tShould recover a retained snapshot: %v", failed, err)
			}
			if v, _ := e.Get("k"); string(v) != "c" {
				t.Fatalf("\t%s\tTest 0:\tShould read the recovered value, got %q.", failed, v)
			}
			t.Logf("\t%s\tTest 0:\tShould recover a retained snapshot.", success)
		}
	}
}

func Test_Digest(t *testing.T) {
	t.Log("Given the need for a deterministic state digest.")
	{
		t.Logf("\tTest 0:\tWhen writing the same state in a different order.")
		{
			e1 := storage.New(0)
			put(t, e1, "a", "1", "b", "2", "c", "3")

			e2 := storage.New(0)
			put(t, e2, "c", "3")
			put(t, e2, "b", "2", "a", "1")

			d1, _ := e1.Digest()
			d2, _ := e2.Digest()
			if d1 != d2 {
				t.Fatalf("\t%s\tTest 0:\tShould get the same digest, got %s and %s.", failed, d1, d2)
			}
			t.Logf("\t%s\tTest 0:\tShould get the same digest.", success)

			e3 := storage.New(0)
			put(t, e3, "a", "1b", "b", "2")
			e4 := storage.New(0)
			put(t, e4, "a", "1", "bb", "2")

			d3, _ := e3.Digest()
			d4, _ := e4.Digest()
			if d3 == d4 {
				t.Fatalf("\t%s\tTest 0:\tShould not collide on shifted boundaries.", failed)
			}
			t.Logf("\t%s\tTest 0:\tShould not collide on shifted boundaries.", success)
		}
	}
}
