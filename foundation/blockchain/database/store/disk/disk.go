// Package disk implements the ability to read and write blocks to disk with
// each block in its own JSON file.
package disk

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strconv"
	"sync"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
)

// Disk represents the implementation for reading and storing blocks in their
// own separate files on disk. This implements the database.Store interface.
type Disk struct {
	mu     sync.RWMutex
	dbPath string
}

// New constructs a Disk value for use.
func New(dbPath string) (*Disk, error) {
	if err := os.MkdirAll(dbPath, 0755); err != nil {
		return nil, err
	}

	return &Disk{dbPath: dbPath}, nil
}

// Close in this implementation has nothing to do since a new file is
// written to disk for each new block and then immediately closed.
func (d *Disk) Close() error {
	return nil
}

// Save takes the specified block and stores it on disk in a file labeled
// with the block number.
func (d *Disk) Save(blockData database.BlockData) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	num := blockData.Header.Number
	if num > 0 {
		if _, err := os.Stat(d.getPath(num - 1)); err != nil {
			return fmt.Errorf("%w: missing block %d", database.ErrOutOfOrder, num-1)
		}
	}

	// Marshal the block for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(blockData, "", "  ")
	if err != nil {
		return err
	}

	// Write to a temp file first so a crash never leaves a partial block.
	tmp := d.getPath(num) + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	return os.Rename(tmp, d.getPath(num))
}

// LoadByNumber searches the blockchain on disk to locate and return the
// contents of the specified block by number.
func (d *Disk) LoadByNumber(num uint64) (database.BlockData, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.read(num)
}

// LoadByHash walks the blocks on disk looking for the specified hash.
func (d *Disk) LoadByHash(hash string) (database.BlockData, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for num := uint64(0); ; num++ {
		blockData, err := d.read(num)
		if err != nil {
			return database.BlockData{}, err
		}

		if blockData.Hash == hash {
			return blockData, nil
		}
	}
}

// Truncate removes every block file after the specified number.
func (d *Disk) Truncate(after uint64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for num := after + 1; ; num++ {
		err := os.Remove(d.getPath(num))
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// ForEach returns an iterator to walk through all the blocks starting with
// the genesis block.
func (d *Disk) ForEach() database.Iterator {
	return &diskIterator{disk: d}
}

// =============================================================================

// read decodes the block file for the specified number. The caller must
// hold the lock.
func (d *Disk) read(num uint64) (database.BlockData, error) {
	f, err := os.Open(d.getPath(num))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return database.BlockData{}, database.ErrNotFound
		}
		return database.BlockData{}, err
	}
	defer f.Close()

	var blockData database.BlockData
	if err := json.NewDecoder(f).Decode(&blockData); err != nil {
		return database.BlockData{}, err
	}

	return blockData, nil
}

// getPath forms the path to the specified block.
func (d *Disk) getPath(blockNum uint64) string {
	name := strconv.FormatUint(blockNum, 10)
	return path.Join(d.dbPath, fmt.Sprintf("%s.json", name))
}

// =============================================================================

// diskIterator represents the iteration implementation for walking
// through and reading blocks on disk.
type diskIterator struct {
	disk    *Disk  // Access to the disk API.
	current uint64 // Current block number being iterated over.
	eoc     bool   // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block from disk.
func (di *diskIterator) Next() (database.BlockData, error) {
	if di.eoc {
		return database.BlockData{}, database.ErrNotFound
	}

	blockData, err := di.disk.LoadByNumber(di.current)
	if err != nil {
		di.eoc = true
		return database.BlockData{}, err
	}
	di.current++

	return blockData, nil
}

// Done returns the end of chain value.
func (di *diskIterator) Done() bool {
	return di.eoc
}
