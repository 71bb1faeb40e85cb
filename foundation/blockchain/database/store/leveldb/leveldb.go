// Package leveldb implements the ability to read and write blocks to a
// goleveldb key/value database.
package leveldb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/syndtr/goleveldb/leveldb"
	ldbErrors "github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// Key prefixes for the two record types.
var (
	blockPrefix = []byte("block-")
	hashPrefix  = []byte("hash-")
)

var defaultOptions = opt.Options{
	Compression:            opt.NoCompression,
	BlockCacheCapacity:     32 * opt.MiB,
	WriteBuffer:            16 * opt.MiB,
	DisableSeeksCompaction: true,
}

// LevelDB represents the implementation for reading and storing blocks in a
// leveldb database. Blocks are keyed by their big endian number so iteration
// walks them in chain order. This implements the database.Store interface.
type LevelDB struct {
	ldb *leveldb.DB
}

// New opens a leveldb instance defined by the given path. If it doesn't
// exist it's created and if it's corrupted it's recovered.
func New(path string) (*LevelDB, error) {
	ldb, err := leveldb.OpenFile(path, &defaultOptions)

	var corrupted *ldbErrors.ErrCorrupted
	if errors.As(err, &corrupted) {
		ldb, err = leveldb.RecoverFile(path, &defaultOptions)
	}

	if err != nil {
		return nil, err
	}

	return &LevelDB{ldb: ldb}, nil
}

// NewWithStorage opens a leveldb instance on top of the specified storage.
// This is used with storage.NewMemStorage for tests.
func NewWithStorage(stor storage.Storage) (*LevelDB, error) {
	ldb, err := leveldb.Open(stor, &defaultOptions)
	if err != nil {
		return nil, err
	}

	return &LevelDB{ldb: ldb}, nil
}

// Close closes the leveldb instance.
func (db *LevelDB) Close() error {
	return db.ldb.Close()
}

// Save writes the block and its hash index in a single batch.
func (db *LevelDB) Save(blockData database.BlockData) error {
	num := blockData.Header.Number
	if num > 0 {
		exists, err := db.ldb.Has(blockKey(num-1), nil)
		if err != nil {
			return err
		}
		if !exists {
			return fmt.Errorf("%w: missing block %d", database.ErrOutOfOrder, num-1)
		}
	}

	data, err := json.Marshal(blockData)
	if err != nil {
		return err
	}

	var batch leveldb.Batch
	batch.Put(blockKey(num), data)
	batch.Put(hashKey(blockData.Hash), encodeNumber(num))

	return db.ldb.Write(&batch, nil)
}

// LoadByNumber returns the block with the specified number.
func (db *LevelDB) LoadByNumber(num uint64) (database.BlockData, error) {
	data, err := db.ldb.Get(blockKey(num), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.BlockData{}, database.ErrNotFound
		}
		return database.BlockData{}, err
	}

	var blockData database.BlockData
	if err := json.Unmarshal(data, &blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// LoadByHash returns the block with the specified hash.
func (db *LevelDB) LoadByHash(hash string) (database.BlockData, error) {
	data, err := db.ldb.Get(hashKey(hash), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return database.BlockData{}, database.ErrNotFound
		}
		return database.BlockData{}, err
	}

	return db.LoadByNumber(binary.BigEndian.Uint64(data))
}

// Truncate removes every block after the specified number along with its
// hash index in a single batch.
func (db *LevelDB) Truncate(after uint64) error {
	rng := util.BytesPrefix(blockPrefix)
	rng.Start = blockKey(after + 1)

	iter := db.ldb.NewIterator(rng, nil)
	defer iter.Release()

	var batch leveldb.Batch
	for iter.Next() {
		var blockData database.BlockData
		if err := json.Unmarshal(iter.Value(), &blockData); err != nil {
			return err
		}

		batch.Delete(append([]byte(nil), iter.Key()...))
		batch.Delete(hashKey(blockData.Hash))
	}

	if err := iter.Error(); err != nil {
		return err
	}

	if batch.Len() == 0 {
		return nil
	}

	return db.ldb.Write(&batch, nil)
}

// ForEach returns an iterator to walk through all the blocks starting with
// the genesis block.
func (db *LevelDB) ForEach() database.Iterator {
	return &ldbIterator{db: db}
}

// =============================================================================

func blockKey(num uint64) []byte {
	return append(append([]byte(nil), blockPrefix...), encodeNumber(num)...)
}

func hashKey(hash string) []byte {
	return append(append([]byte(nil), hashPrefix...), hash...)
}

func encodeNumber(num uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], num)
	return b[:]
}

// =============================================================================

// ldbIterator walks the blocks in number order.
type ldbIterator struct {
	db      *LevelDB
	current uint64
	eoc     bool
}

// Next retrieves the next block from the database.
func (li *ldbIterator) Next() (database.BlockData, error) {
	if li.eoc {
		return database.BlockData{}, database.ErrNotFound
	}

	blockData, err := li.db.LoadByNumber(li.current)
	if err != nil {
		li.eoc = true
		return database.BlockData{}, err
	}
	li.current++

	return blockData, nil
}

// Done returns the end of chain value.
func (li *ldbIterator) Done() bool {
	return li.eoc
}
