package store_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database/store/disk"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database/store/leveldb"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database/store/memory"
	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

// chain builds count linked blocks starting with genesis.
func chain(t *testing.T, count int) []database.BlockData {
	t.Helper()

	parent := database.BlockHeader{ParentHash: signature.ZeroHash, TxRoot: signature.ZeroHash}
	blocks := []database.BlockData{database.NewBlockData(database.Block{Header: parent})}

	for i := 1; i < count; i++ {
		block, err := database.NewBlock(parent, "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4", 0, nil)
		if err != nil {
			t.Fatalf("Should be able to build block %d: %v", i, err)
		}
		blocks = append(blocks, database.NewBlockData(block))
		parent = block.Header
	}

	return blocks
}

// =============================================================================

func Test_Stores(t *testing.T) {
	type table struct {
		name string
		open func(t *testing.T) database.Store
	}

	tt := []table{
		{
			name: "memory",
			open: func(t *testing.T) database.Store {
				return memory.New()
			},
		},
		{
			name: "disk",
			open: func(t *testing.T) database.Store {
				d, err := disk.New(t.TempDir())
				if err != nil {
					t.Fatalf("Should be able to open the disk store: %v", err)
				}
				return d
			},
		},
		{
			name: "leveldb",
			open: func(t *testing.T) database.Store {
				db, err := leveldb.NewWithStorage(storage.NewMemStorage())
				if err != nil {
					t.Fatalf("Should be able to open the leveldb store: %v", err)
				}
				return db
			},
		},
	}

	t.Log("Given the need to persist accepted blocks.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen using the %s store.", testID, tst.name)
				{
					store := tst.open(t)
					defer store.Close()

					blocks := chain(t, 5)

					if err := store.Save(blocks[1]); !errors.Is(err, database.ErrOutOfOrder) {
						t.Fatalf("\t%s\tTest %d:\tShould not save a block without its parent: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould not save a block without its parent.", success, testID)

					for _, b := range blocks {
						if err := store.Save(b); err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to save block %d: %v", failed, testID, b.Header.Number, err)
						}
					}
					t.Logf("\t%s\tTest %d:\tShould be able to save the blocks.", success, testID)

					got, err := store.LoadByNumber(3)
					if err != nil || got.Hash != blocks[3].Hash {
						t.Fatalf("\t%s\tTest %d:\tShould load block 3 by number: %v", failed, testID, err)
					}
					if _, err := database.ToBlock(got); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould keep the block hash intact: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould load a block by number.", success, testID)

					got, err = store.LoadByHash(blocks[2].Hash)
					if err != nil || got.Header.Number != 2 {
						t.Fatalf("\t%s\tTest %d:\tShould load block 2 by hash: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould load a block by hash.", success, testID)

					var count int
					iter := store.ForEach()
					for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
						if err != nil {
							t.Fatalf("\t%s\tTest %d:\tShould be able to iterate: %v", failed, testID, err)
						}
						if blockData.Header.Number != uint64(count) {
							t.Fatalf("\t%s\tTest %d:\tShould iterate in order, got %d exp %d.", failed, testID, blockData.Header.Number, count)
						}
						count++
					}
					if count != len(blocks) {
						t.Fatalf("\t%s\tTest %d:\tShould iterate every block, got %d.", failed, testID, count)
					}
					t.Logf("\t%s\tTest %d:\tShould iterate every block in order.", success, testID)

					if err := store.Truncate(2); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to truncate: %v", failed, testID, err)
					}
					if _, err := store.LoadByNumber(3); !errors.Is(err, database.ErrNotFound) {
						t.Fatalf("\t%s\tTest %d:\tShould not find a truncated block: %v", failed, testID, err)
					}
					if _, err := store.LoadByHash(blocks[4].Hash); !errors.Is(err, database.ErrNotFound) {
						t.Fatalf("\t%s\tTest %d:\tShould not find a truncated block by hash: %v", failed, testID, err)
					}
					if _, err := store.LoadByNumber(2); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould keep blocks up to the truncation point: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould truncate blocks after a number.", success, testID)

					if err := store.Save(blocks[3]); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to save after truncating: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to save after truncating.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}
