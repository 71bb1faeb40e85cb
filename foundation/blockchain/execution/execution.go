// Package execution runs the transactions of a block against the storage
// engine and verifies the resulting state against the block's header.
package execution

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/blockengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/registry"
	"github.com/ardanlabs/blockengine/foundation/blockchain/storage"
)

// Stage represents where a block is in its execution.
type Stage int

// Set of execution stages. A block moves forward through these and ends in
// either Accepted or Rejected.
const (
	StagePending Stage = iota
	StageRecovering
	StageExecuting
	StageVerifying
	StageAccepted
	StageRejected
)

// String implements the fmt.Stringer interface.
func (s Stage) String() string {
	switch s {
	case StagePending:
		return "pending"
	case StageRecovering:
		return "recovering"
	case StageExecuting:
		return "executing"
	case StageVerifying:
		return "verifying"
	case StageAccepted:
		return "accepted"
	case StageRejected:
		return "rejected"
	}

	return "unknown"
}

// EventHandler defines a function that is called when events occur in the
// processing of blocks.
type EventHandler func(v string, args ...any)

// Config represents the collaborators the executor needs.
type Config struct {
	Engine    *storage.Engine
	Registry  *registry.Registry
	Consensus consensus.Variant
	EvHandler EventHandler
}

// Result describes the outcome of running a block.
type Result struct {
	Stage       Stage
	Snapshot    *storage.Snapshot
	Receipts    []database.Receipt
	Digest      string
	ReceiptRoot string
}

// Executor applies blocks to the storage engine. Only one block can be in
// flight at a time since the engine has a single live state.
type Executor struct {
	mu        sync.Mutex
	engine    *storage.Engine
	registry  *registry.Registry
	consensus consensus.Variant
	evHandler EventHandler
}

// New constructs an executor for use.
func New(cfg Config) *Executor {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	return &Executor{
		engine:    cfg.Engine,
		registry:  cfg.Registry,
		consensus: cfg.Consensus,
		evHandler: ev,
	}
}

// Execute validates and runs the block on top of the parent and compares
// the resulting state with what the header claims. On success the snapshot
// for the block is left as the newest snapshot. On any rejection the engine
// is left exactly as it was at the parent.
func (e *Executor) Execute(block database.Block, parent database.BlockHeader) (Result, error) {
	number := block.Header.Number

	if !e.mu.TryLock() {
		e.evHandler("execution: Execute: blk[%d]: INVARIANT VIOLATION: %s", number, ErrBusy)
		return Result{Stage: StageRejected}, reject(KindContention, number, ErrBusy)
	}
	defer e.mu.Unlock()

	e.evHandler("execution: Execute: blk[%d]: stage[%s]", number, StagePending)

	if err := e.validate(block, parent); err != nil {
		e.evHandler("execution: Execute: blk[%d]: stage[%s]: %s", number, StageRejected, err)
		return Result{Stage: StageRejected}, err
	}

	res, err := e.run(block, parent, true)
	if err != nil {
		e.evHandler("execution: Execute: blk[%d]: stage[%s]: %s", number, StageRejected, err)
		return Result{Stage: StageRejected}, err
	}

	e.evHandler("execution: Execute: blk[%d]: stage[%s]: digest[%s]", number, StageAccepted, res.Digest)

	return res, nil
}

// Build runs the block's transactions on top of the parent without any
// comparison against the header. This is used when producing a block so the
// header can be finalized with the storage digest and receipt root. The
// snapshot for the block is left as the newest snapshot and Revert undoes it.
func (e *Executor) Build(block database.Block, parent database.BlockHeader) (Result, error) {
	number := block.Header.Number

	if !e.mu.TryLock() {
		e.evHandler("execution: Build: blk[%d]: INVARIANT VIOLATION: %s", number, ErrBusy)
		return Result{Stage: StageRejected}, reject(KindContention, number, ErrBusy)
	}
	defer e.mu.Unlock()

	if err := e.validateLink(block.Header, parent); err != nil {
		return Result{Stage: StageRejected}, err
	}

	res, err := e.run(block, parent, false)
	if err != nil {
		e.evHandler("execution: Build: blk[%d]: ERROR: %s", number, err)
		return Result{Stage: StageRejected}, err
	}

	e.evHandler("execution: Build: blk[%d]: digest[%s]: receipts[%d]", number, res.Digest, len(res.Receipts))

	return res, nil
}

// Revert discards every snapshot after the parent number and resets the
// live state to the parent snapshot.
func (e *Executor) Revert(parentNumber uint64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, exists := e.engine.SnapshotByNumber(parentNumber)
	if !exists {
		return reject(KindSequencing, parentNumber+1, fmt.Errorf("%w: snapshot %d", ErrMissingParentState, parentNumber))
	}

	discarded := e.engine.Discard(parentNumber)
	if err := e.engine.Recover(snap); err != nil {
		return e.contention(parentNumber+1, err)
	}

	e.evHandler("execution: Revert: parent[%d]: discarded[%d]", parentNumber, discarded)

	return nil
}

// =============================================================================

// validate performs the checks that don't need storage: the block links to
// the parent, the consensus variant accepts it and the header commits to the
// transactions it carries.
func (e *Executor) validate(block database.Block, parent database.BlockHeader) error {
	number := block.Header.Number

	if err := e.validateLink(block.Header, parent); err != nil {
		return err
	}

	e.evHandler("execution: validate: blk[%d]: check: consensus[%s]", number, e.consensus.Name())

	if err := e.consensus.ValidateBlock(block.Header, consensus.ChainState{Parent: parent}); err != nil {
		return reject(KindConsensus, number, err)
	}

	e.evHandler("execution: validate: blk[%d]: check: transaction root matches transactions", number)

	if err := block.ValidateTxRoot(); err != nil {
		return reject(KindConsensus, number, err)
	}

	return nil
}

// validateLink checks the header is the next block after the parent.
func (e *Executor) validateLink(header database.BlockHeader, parent database.BlockHeader) error {
	if header.Number != parent.Number+1 {
		return reject(KindSequencing, header.Number, fmt.Errorf("%w: number %d after parent %d", ErrParentMismatch, header.Number, parent.Number))
	}

	if header.ParentHash != parent.Hash() {
		return reject(KindSequencing, header.Number, fmt.Errorf("%w: parent hash %s, exp %s", ErrParentMismatch, header.ParentHash, parent.Hash()))
	}

	return nil
}

// run moves the block through the recovering, executing and verifying
// stages. When verify is false the header isn't compared against the
// resulting state.
func (e *Executor) run(block database.Block, parent database.BlockHeader, verify bool) (Result, error) {
	number := block.Header.Number

	// Recovering: the parent's snapshot must exist and must be the newest
	// one, otherwise another block already advanced the state.

	e.evHandler("execution: run: blk[%d]: stage[%s]", number, StageRecovering)

	parentSnap, exists := e.engine.SnapshotByNumber(parent.Number)
	if !exists || parentSnap.Digest() != parent.Storage {
		return Result{}, reject(KindSequencing, number, fmt.Errorf("%w: snapshot %d", ErrMissingParentState, parent.Number))
	}

	if newest, _ := e.engine.Newest(); newest != parentSnap {
		return Result{}, reject(KindSequencing, number, fmt.Errorf("%w: newest snapshot %d", ErrParentAdvanced, newest.Number()))
	}

	if err := e.engine.Recover(parentSnap); err != nil {
		return Result{}, e.contention(number, err)
	}

	// Executing: every transaction runs in declared order inside its own
	// storage transaction.

	e.evHandler("execution: run: blk[%d]: stage[%s]: txs[%d]", number, StageExecuting, len(block.Txs))

	receipts := make([]database.Receipt, 0, len(block.Txs))
	for _, tx := range block.Txs {
		rcpt, err := e.apply(block.Header, tx)
		if err != nil {
			e.undo(parentSnap)
			return Result{}, e.contention(number, err)
		}
		receipts = append(receipts, rcpt)
	}

	// Verifying: capture the new snapshot and compare it with the header.

	e.evHandler("execution: run: blk[%d]: stage[%s]", number, StageVerifying)

	receiptRoot, err := database.ReceiptRoot(receipts)
	if err != nil {
		e.undo(parentSnap)
		return Result{}, reject(KindVerification, number, err)
	}

	snap, err := e.engine.CreateSnapshot(number)
	if err != nil {
		e.undo(parentSnap)
		if errors.Is(err, storage.ErrTransactionInUse) {
			return Result{}, e.contention(number, err)
		}
		return Result{}, reject(KindSequencing, number, err)
	}

	res := Result{
		Stage:       StageAccepted,
		Snapshot:    snap,
		Receipts:    receipts,
		Digest:      snap.Digest(),
		ReceiptRoot: receiptRoot,
	}

	if !verify {
		return res, nil
	}

	if res.Digest != block.Header.Storage {
		e.undo(parentSnap)
		return Result{}, reject(KindVerification, number, fmt.Errorf("%w: got %s, exp %s", ErrStateMismatch, res.Digest, block.Header.Storage))
	}

	if res.ReceiptRoot != block.Header.ReceiptRoot {
		e.undo(parentSnap)
		return Result{}, reject(KindVerification, number, fmt.Errorf("%w: got %s, exp %s", ErrReceiptMismatch, res.ReceiptRoot, block.Header.ReceiptRoot))
	}

	return res, nil
}

// apply executes a single transaction. Writes are committed only when the
// receipt reports success. An error is only returned when the storage
// transaction itself can't be used.
func (e *Executor) apply(header database.BlockHeader, tx database.Tx) (database.Receipt, error) {
	stx, err := e.engine.BeginTransaction()
	if err != nil {
		return database.Receipt{}, err
	}

	rcpt := e.execute(stx, header, tx)

	switch rcpt.Succeeded() {
	case true:
		err = stx.Commit()
	default:
		err = stx.Rollback()
	}

	if err != nil {
		return database.Receipt{}, err
	}

	e.evHandler("execution: apply: blk[%d]: tx[%s]: code[%d]", header.Number, tx, rcpt.Code)

	return rcpt, nil
}

// execute produces the receipt for the transaction. Any failure becomes a
// failed receipt so the rest of the block can continue, including a panic
// inside a registered executor.
func (e *Executor) execute(stx *storage.Tx, header database.BlockHeader, tx database.Tx) (rcpt database.Receipt) {
	defer func() {
		if r := recover(); r != nil {
			e.evHandler("execution: execute: blk[%d]: tx[%s]: PANIC: %v", header.Number, tx, r)
			rcpt = database.NewReceipt(tx, database.CodeExecutorError, fmt.Sprintf("executor panic: %v", r))
		}
	}()

	if err := tx.Validate(); err != nil {
		return database.NewReceipt(tx, database.CodeInvalidSignature, err.Error())
	}

	rcpt, err := e.registry.Execute(stx, header, tx)
	if err != nil {
		if rcpt.Code == database.CodeOK {
			rcpt = database.NewReceipt(tx, database.CodeExecutorError, err.Error())
		}
		return rcpt
	}

	if rcpt.TxHash == "" {
		rcpt.TxHash = tx.Hash()
	}

	return rcpt
}

// undo removes any snapshot taken after the parent and resets the live state
// to the parent so a failed attempt leaves nothing behind.
func (e *Executor) undo(parentSnap *storage.Snapshot) {
	e.engine.Discard(parentSnap.Number())

	if err := e.engine.Recover(parentSnap); err != nil {
		e.evHandler("execution: undo: INVARIANT VIOLATION: recover snapshot %d: %s", parentSnap.Number(), err)
	}
}

// contention reports a storage resource that was already in use. This can
// only happen if block execution isn't serialized.
func (e *Executor) contention(number uint64, err error) error {
	e.evHandler("execution: blk[%d]: INVARIANT VIOLATION: %s", number, err)
	return reject(KindContention, number, err)
}
