// Package memory implements the ability to read and write blocks to memory
// using a slice.
package memory

import (
	"fmt"
	"sync"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
)

// Memory represents the implementation for reading and storing blocks in
// memory using a slice. This implements the database.Store interface.
type Memory struct {
	mu     sync.RWMutex
	blocks []database.BlockData
	hashes map[string]uint64
}

// New constructs a Memory value for use.
func New() *Memory {
	return &Memory{
		hashes: make(map[string]uint64),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Save takes the specified block and stores it in memory. Blocks must be
// saved in number order starting with genesis.
func (m *Memory) Save(blockData database.BlockData) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := uint64(len(m.blocks))
	if blockData.Header.Number != l {
		return fmt.Errorf("%w: got %d, exp %d", database.ErrOutOfOrder, blockData.Header.Number, l)
	}

	m.blocks = append(m.blocks, blockData)
	m.hashes[blockData.Hash] = blockData.Header.Number

	return nil
}

// LoadByNumber returns the block with the specified number.
func (m *Memory) LoadByNumber(num uint64) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if num >= uint64(len(m.blocks)) {
		return database.BlockData{}, database.ErrNotFound
	}

	return m.blocks[num], nil
}

// LoadByHash returns the block with the specified hash.
func (m *Memory) LoadByHash(hash string) (database.BlockData, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	num, exists := m.hashes[hash]
	if !exists {
		return database.BlockData{}, database.ErrNotFound
	}

	return m.blocks[num], nil
}

// Truncate removes every block after the specified number.
func (m *Memory) Truncate(after uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := after + 1; i < uint64(len(m.blocks)); i++ {
		delete(m.hashes, m.blocks[i].Hash)
	}

	if after+1 < uint64(len(m.blocks)) {
		m.blocks = m.blocks[:after+1]
	}

	return nil
}

// ForEach returns an iterator to walk through all the blocks starting with
// the genesis block.
func (m *Memory) ForEach() database.Iterator {
	return &memoryIterator{store: m}
}

// =============================================================================

// memoryIterator represents the iteration implementation for walking
// through the blocks in memory.
type memoryIterator struct {
	store   *Memory // Access to the store API.
	current uint64  // Current block number being iterated over.
	eoc     bool    // Represents the iterator is at the end of the chain.
}

// Next retrieves the next block.
func (mi *memoryIterator) Next() (database.BlockData, error) {
	if mi.eoc {
		return database.BlockData{}, database.ErrNotFound
	}

	blockData, err := mi.store.LoadByNumber(mi.current)
	if err != nil {
		mi.eoc = true
		return database.BlockData{}, err
	}
	mi.current++

	return blockData, nil
}

// Done returns the end of chain value.
func (mi *memoryIterator) Done() bool {
	return mi.eoc
}
