// Package mempool maintains the pool of transactions waiting to be included
// in a block.
package mempool

import (
	"sort"
	"sync"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/mempool/selector"
)

// Mempool represents a cache of transactions keyed by transaction hash. The
// same transaction can only be pooled once.
type Mempool struct {
	mu       sync.RWMutex
	pool     map[string]selector.Entry
	arrival  uint64
	selectFn selector.Func
}

// New constructs a new mempool using the default select strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFIFO)
}

// NewWithStrategy constructs a new mempool with specified select strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[string]selector.Entry),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Add pools the transaction. It returns false when the transaction is
// already in the pool.
func (mp *Mempool) Add(tx database.Tx) (bool, error) {
	from, err := tx.From()
	if err != nil {
		return false, err
	}

	hash := tx.Hash()

	mp.mu.Lock()
	defer mp.mu.Unlock()

	if _, exists := mp.pool[hash]; exists {
		return false, nil
	}

	mp.arrival++
	mp.pool[hash] = selector.Entry{
		Tx:      tx,
		From:    from,
		Arrival: mp.arrival,
	}

	return true, nil
}

// Contains reports if the transaction with the specified hash is pooled.
func (mp *Mempool) Contains(hash string) bool {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	_, exists := mp.pool[hash]
	return exists
}

// Delete removes the transaction with the specified hash from the pool.
func (mp *Mempool) Delete(hash string) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	delete(mp.pool, hash)
}

// DeleteTxs removes the set of transactions from the pool, returning the
// number that were actually pooled.
func (mp *Mempool) DeleteTxs(txs []database.Tx) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	var removed int
	for _, tx := range txs {
		hash := tx.Hash()
		if _, exists := mp.pool[hash]; exists {
			delete(mp.pool, hash)
			removed++
		}
	}

	return removed
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[string]selector.Entry)
}

// Copy returns every pooled transaction in arrival order.
func (mp *Mempool) Copy() []database.Tx {
	mp.mu.RLock()
	entries := make([]selector.Entry, 0, len(mp.pool))
	for _, entry := range mp.pool {
		entries = append(entries, entry)
	}
	mp.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Arrival < entries[j].Arrival
	})

	txs := make([]database.Tx, len(entries))
	for i, entry := range entries {
		txs[i] = entry.Tx
	}

	return txs
}

// PickBest uses the configured select strategy to return the next set
// of transactions for the next block.
func (mp *Mempool) PickBest(howMany int) []database.Tx {

	// Group the transactions by account.
	m := make(map[database.AccountID][]selector.Entry)
	mp.mu.RLock()
	{
		for _, entry := range mp.pool {
			m[entry.From] = append(m[entry.From], entry)
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}
