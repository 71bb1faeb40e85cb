package storage

import (
	"sort"
	"strings"
)

// write represents a buffered change to a single key.
type write struct {
	value   []byte
	deleted bool
}

// Tx is a speculative overlay on the live state. Writes are buffered until
// Commit folds them into the live state or Rollback throws them away.
type Tx struct {
	engine *Engine
	writes map[string]write
	closed bool
}

// Get returns the value for the key as seen by this transaction.
func (tx *Tx) Get(key string) ([]byte, bool, error) {
	if tx.closed {
		return nil, false, ErrInvalidTransactionState
	}

	if w, exists := tx.writes[key]; exists {
		if w.deleted {
			return nil, false, nil
		}
		return clone(w.value), true, nil
	}

	v, exists := tx.engine.Get(key)
	return v, exists, nil
}

// Has reports if the key exists as seen by this transaction.
func (tx *Tx) Has(key string) (bool, error) {
	_, exists, err := tx.Get(key)
	return exists, err
}

// Put buffers a value for the key.
func (tx *Tx) Put(key string, value []byte) error {
	if tx.closed {
		return ErrInvalidTransactionState
	}

	tx.writes[key] = write{value: clone(value)}
	return nil
}

// Delete buffers the removal of the key.
func (tx *Tx) Delete(key string) error {
	if tx.closed {
		return ErrInvalidTransactionState
	}

	tx.writes[key] = write{deleted: true}
	return nil
}

// Keys returns the sorted set of keys with the specified prefix as seen by
// this transaction.
func (tx *Tx) Keys(prefix string) ([]string, error) {
	if tx.closed {
		return nil, ErrInvalidTransactionState
	}

	set := make(map[string]struct{})

	tx.engine.mu.RLock()
	for k := range tx.engine.live {
		if strings.HasPrefix(k, prefix) {
			set[k] = struct{}{}
		}
	}
	tx.engine.mu.RUnlock()

	for k, w := range tx.writes {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if w.deleted {
			delete(set, k)
			continue
		}
		set[k] = struct{}{}
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return keys, nil
}

// Commit atomically folds the buffered writes into the live state and
// closes the transaction.
func (tx *Tx) Commit() error {
	e := tx.engine

	e.mu.Lock()
	defer e.mu.Unlock()

	if tx.closed {
		return ErrInvalidTransactionState
	}

	e.commit(tx.writes)
	tx.close()

	return nil
}

// Rollback discards the buffered writes and closes the transaction.
func (tx *Tx) Rollback() error {
	e := tx.engine

	e.mu.Lock()
	defer e.mu.Unlock()

	if tx.closed {
		return ErrInvalidTransactionState
	}

	tx.close()

	return nil
}

// close marks the transaction closed and releases the engine's single
// transaction slot. The caller must hold the engine lock.
func (tx *Tx) close() {
	tx.closed = true
	tx.writes = nil

	if tx.engine.open == tx {
		tx.engine.open = nil
	}
}
