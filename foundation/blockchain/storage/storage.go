// Package storage implements the versioned key/value state the blockchain
// executes transactions against. Live state can be captured into snapshots
// tagged by block number, recovered from any retained snapshot, and mutated
// through a single speculative transaction at a time.
package storage

import (
	"errors"
	"fmt"
	"sync"
)

// Set of error variables for the storage engine.
var (
	ErrSnapshotSequence        = errors.New("snapshot out of sequence")
	ErrUnknownSnapshot         = errors.New("unknown snapshot")
	ErrTransactionInUse        = errors.New("storage transaction already open")
	ErrInvalidTransactionState = errors.New("storage transaction is closed")
)

// DefaultRetain is the number of snapshots kept when no retention is configured.
const DefaultRetain = 64

// =============================================================================

// Snapshot is a read-only view of state as of the block it was taken after.
type Snapshot struct {
	engine *Engine
	number uint64
	digest string
	data   map[string][]byte
}

// Number returns the block number this snapshot was taken after.
func (s *Snapshot) Number() uint64 {
	return s.number
}

// Digest returns the content digest of the snapshot.
func (s *Snapshot) Digest() string {
	return s.digest
}

// Get returns a copy of the value stored under the key.
func (s *Snapshot) Get(key string) ([]byte, bool) {
	v, exists := s.data[key]
	if !exists {
		return nil, false
	}

	return clone(v), true
}

// Len returns the number of keys held by the snapshot.
func (s *Snapshot) Len() int {
	return len(s.data)
}

// String implements the fmt.Stringer interface for logging.
func (s *Snapshot) String() string {
	return fmt.Sprintf("%d:%s", s.number, s.digest)
}

// =============================================================================

// Engine owns the live state and the history of snapshots. The live map is
// shared with the newest snapshot or recovered snapshot until the next commit
// writes to it, at which point it's copied.
type Engine struct {
	mu        sync.RWMutex
	live      map[string][]byte
	shared    bool
	snapshots []*Snapshot
	open      *Tx
	retain    int
}

// New constructs an engine with empty state that keeps at most retain
// snapshots. A retain value less than 1 uses DefaultRetain.
func New(retain int) *Engine {
	if retain < 1 {
		retain = DefaultRetain
	}

	return &Engine{
		live:   make(map[string][]byte),
		retain: retain,
	}
}

// CreateSnapshot captures the current live state tagged with the specified
// block number. The number must be exactly one greater than the newest
// snapshot's number.
func (e *Engine) CreateSnapshot(number uint64) (*Snapshot, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open != nil {
		return nil, ErrTransactionInUse
	}

	if l := len(e.snapshots); l > 0 {
		newest := e.snapshots[l-1].number
		if number != newest+1 {
			return nil, fmt.Errorf("%w: got %d, exp %d", ErrSnapshotSequence, number, newest+1)
		}
	}

	digest, err := digestOf(e.live)
	if err != nil {
		return nil, err
	}

	snap := Snapshot{
		engine: e,
		number: number,
		digest: digest,
		data:   e.live,
	}
	e.shared = true
	e.snapshots = append(e.snapshots, &snap)

	return &snap, nil
}

// Recover resets the live state to the contents of the snapshot. The snapshot
// must have been produced by this engine and still be retained.
func (e *Engine) Recover(snap *Snapshot) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open != nil {
		return ErrTransactionInUse
	}

	if !e.owns(snap) {
		return ErrUnknownSnapshot
	}

	e.live = snap.data
	e.shared = true

	return nil
}

// BeginTransaction opens a speculative overlay on the live state. Only one
// transaction can be open at a time.
func (e *Engine) BeginTransaction() (*Tx, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.open != nil {
		return nil, ErrTransactionInUse
	}

	tx := Tx{
		engine: e,
		writes: make(map[string]write),
	}
	e.open = &tx

	return &tx, nil
}

// Snapshots returns the retained snapshots ordered by block number.
func (e *Engine) Snapshots() []*Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	snaps := make([]*Snapshot, len(e.snapshots))
	copy(snaps, e.snapshots)
	return snaps
}

// Newest returns the snapshot with the highest block number.
func (e *Engine) Newest() (*Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	l := len(e.snapshots)
	if l == 0 {
		return nil, false
	}

	return e.snapshots[l-1], true
}

// SnapshotByNumber locates a retained snapshot by its block number.
func (e *Engine) SnapshotByNumber(number uint64) (*Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for _, snap := range e.snapshots {
		if snap.number == number {
			return snap, true
		}
	}

	return nil, false
}

// SnapshotByDigest locates the newest retained snapshot with the digest.
func (e *Engine) SnapshotByDigest(digest string) (*Snapshot, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	for i := len(e.snapshots) - 1; i >= 0; i-- {
		if e.snapshots[i].digest == digest {
			return e.snapshots[i], true
		}
	}

	return nil, false
}

// Discard removes every snapshot taken after the specified block number.
func (e *Engine) Discard(after uint64) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	keep := len(e.snapshots)
	for keep > 0 && e.snapshots[keep-1].number > after {
		keep--
	}

	removed := len(e.snapshots) - keep
	for i := keep; i < len(e.snapshots); i++ {
		e.snapshots[i] = nil
	}
	e.snapshots = e.snapshots[:keep]

	return removed
}

// Prune drops the oldest snapshots beyond the retention limit. The newest
// snapshot is always kept.
func (e *Engine) Prune() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	extra := len(e.snapshots) - e.retain
	if extra <= 0 {
		return 0
	}

	for i := 0; i < extra; i++ {
		e.snapshots[i] = nil
	}
	e.snapshots = append([]*Snapshot(nil), e.snapshots[extra:]...)

	return extra
}

// Get reads a committed value from the live state.
func (e *Engine) Get(key string) ([]byte, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	v, exists := e.live[key]
	if !exists {
		return nil, false
	}

	return clone(v), true
}

// Digest returns the content digest of the live state.
func (e *Engine) Digest() (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return digestOf(e.live)
}

// =============================================================================

// owns validates the snapshot is one this engine produced and still retains.
// The caller must hold the lock.
func (e *Engine) owns(snap *Snapshot) bool {
	if snap == nil || snap.engine != e {
		return false
	}

	for _, s := range e.snapshots {
		if s == snap {
			return true
		}
	}

	return false
}

// commit folds the buffered writes into the live state. The caller must
// hold the lock.
func (e *Engine) commit(writes map[string]write) {
	if len(writes) == 0 {
		return
	}

	if e.shared {
		live := make(map[string][]byte, len(e.live)+len(writes))
		for k, v := range e.live {
			live[k] = v
		}
		e.live = live
		e.shared = false
	}

	for k, w := range writes {
		if w.deleted {
			delete(e.live, k)
			continue
		}
		e.live[k] = w.value
	}
}

// clone returns a copy of the byte slice so callers can't mutate state.
func clone(v []byte) []byte {
	if v == nil {
		return nil
	}

	c := make([]byte, len(v))
	copy(c, v)
	return c
}
