// Package registry maps a transaction's type to the executor that knows how
// to apply it against a storage transaction.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/storage"
)

// Set of error variables for the registry.
var (
	ErrUnknownTransactionType = errors.New("unknown transaction type")
	ErrDuplicateType          = errors.New("transaction type already registered")
	ErrInvalidType            = errors.New("transaction type is empty")
)

// Executor applies a transaction against an open storage transaction and
// reports the outcome in a receipt. Executors must not keep state between
// calls and must only touch storage through the transaction they are given.
// A receipt with a code other than database.CodeOK or a returned error both
// cause the storage transaction to be rolled back.
type Executor interface {
	Execute(stx *storage.Tx, header database.BlockHeader, tx database.Tx) (database.Receipt, error)
}

// ExecutorFunc is an adapter to allow the use of ordinary functions as
// executors.
type ExecutorFunc func(stx *storage.Tx, header database.BlockHeader, tx database.Tx) (database.Receipt, error)

// Execute calls f(stx, header, tx).
func (f ExecutorFunc) Execute(stx *storage.Tx, header database.BlockHeader, tx database.Tx) (database.Receipt, error) {
	return f(stx, header, tx)
}

// =============================================================================

// Registry holds the set of known executors keyed by transaction type.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register adds the executor for the specified transaction type.
func (r *Registry) Register(txType string, exec Executor) error {
	if txType == "" {
		return ErrInvalidType
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.executors[txType]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateType, txType)
	}

	r.executors[txType] = exec

	return nil
}

// Execute delegates to the executor registered for the transaction's type.
func (r *Registry) Execute(stx *storage.Tx, header database.BlockHeader, tx database.Tx) (database.Receipt, error) {
	r.mu.RLock()
	exec, exists := r.executors[tx.Type]
	r.mu.RUnlock()

	if !exists {
		return database.NewReceipt(tx, database.CodeUnknownType, tx.Type), fmt.Errorf("%w: %q", ErrUnknownTransactionType, tx.Type)
	}

	return exec.Execute(stx, header, tx)
}

// Knows reports if an executor is registered for the transaction type.
func (r *Registry) Knows(txType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.executors[txType]
	return exists
}

// Types returns the sorted list of registered transaction types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for txType := range r.executors {
		types = append(types, txType)
	}
	sort.Strings(types)

	return types
}
