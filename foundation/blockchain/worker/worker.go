// Package worker implements the duties a node performs around its chain:
// relaying transactions and blocks, syncing with peers and producing
// blocks. Every change to the chain runs on a single execution queue.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/network"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
)

// maxJobs represents the max number of pending jobs the execution queue
// holds before new jobs are dropped.
const maxJobs = 100

// Set of default intervals.
const (
	defaultSyncTimeout    = 5 * time.Second
	defaultStatusInterval = time.Minute
)

// EventHandler defines a function that is called when events occur in the
// processing of the worker.
type EventHandler func(v string, args ...any)

// Config represents the collaborators and settings for a worker. A zero
// ProduceInterval turns block production off.
type Config struct {
	Chain           *chain.Chain
	Network         network.Network
	ProduceInterval time.Duration
	SyncTimeout     time.Duration
	StatusInterval  time.Duration
	EvHandler       EventHandler
}

// job is a unit of work run on the execution queue.
type job func()

// Worker manages the chain duties for a node.
type Worker struct {
	chain           *chain.Chain
	net             network.Network
	peers           *peer.PeerSet
	produceInterval time.Duration
	syncTimeout     time.Duration
	statusInterval  time.Duration
	evHandler       EventHandler

	wg           sync.WaitGroup
	shut         chan struct{}
	jobs         chan job
	syncTimeouts chan uint64

	producing     atomic.Bool
	cancelMu      sync.Mutex
	cancelProduce context.CancelFunc

	// Only touched on the execution queue.
	pending *syncRequest
	syncSeq uint64
}

// Run creates a worker and starts up all the background processes.
func Run(cfg Config) *Worker {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	syncTimeout := cfg.SyncTimeout
	if syncTimeout <= 0 {
		syncTimeout = defaultSyncTimeout
	}

	statusInterval := cfg.StatusInterval
	if statusInterval <= 0 {
		statusInterval = defaultStatusInterval
	}

	w := Worker{
		chain:           cfg.Chain,
		net:             cfg.Network,
		peers:           peer.NewPeerSet(),
		produceInterval: cfg.ProduceInterval,
		syncTimeout:     syncTimeout,
		statusInterval:  statusInterval,
		evHandler:       ev,
		shut:            make(chan struct{}),
		jobs:            make(chan job, maxJobs),
		syncTimeouts:    make(chan uint64),
	}

	// Load the set of operations we need to run.
	operations := []func(){
		w.executionOperations,
		w.inboundOperations,
		w.statusOperations,
	}
	if w.produceInterval > 0 {
		operations = append(operations, w.produceOperations)
	}

	// Set waitgroup to match the number of G's we need for the set
	// of operations we have.
	g := len(operations)
	w.wg.Add(g)

	// We don't want to return until we know all the G's are up and running.
	hasStarted := make(chan bool)

	// Start all the operational G's.
	for _, op := range operations {
		go func(op func()) {
			defer w.wg.Done()
			hasStarted <- true
			op()
		}(op)
	}

	// Wait for the G's to report they are running.
	for i := 0; i < g; i++ {
		<-hasStarted
	}

	// Let the network know where this node is so peers ahead of us can
	// be found.
	w.broadcastStatus()

	return &w
}

// Shutdown terminates the goroutines performing work.
func (w *Worker) Shutdown() {
	w.evHandler("worker: shutdown: started")
	defer w.evHandler("worker: shutdown: completed")

	w.evHandler("worker: shutdown: signal cancel production")
	w.signalCancelProduce()

	w.evHandler("worker: shutdown: terminate goroutines")
	close(w.shut)
	w.wg.Wait()
}

// SubmitTransaction pools a transaction received from a client and shares
// it with the network when it's new.
func (w *Worker) SubmitTransaction(tx database.Tx) (bool, error) {
	added, err := w.chain.SubmitTransaction(tx)
	if err != nil || !added {
		return added, err
	}

	w.shareTx(tx)

	return true, nil
}

// SignalProduce asks the worker to attempt a block now instead of waiting
// for the next interval mark.
func (w *Worker) SignalProduce() {
	if w.isShutdown() {
		return
	}
	w.signalProduce()
}

// Peers returns the known peers and the status they last reported.
func (w *Worker) Peers() map[string]peer.Status {
	peers := make(map[string]peer.Status)
	for _, p := range w.peers.Copy("") {
		status, _ := w.peers.Status(p)
		peers[p.ID] = status
	}
	return peers
}

// =============================================================================

// executionOperations runs every job on the queue one at a time. Sync
// timeouts arrive on their own channel so a full queue can't lose them.
func (w *Worker) executionOperations() {
	w.evHandler("worker: executionOperations: G started")
	defer w.evHandler("worker: executionOperations: G completed")

	for {
		select {
		case j := <-w.jobs:
			if !w.isShutdown() {
				j()
			}
		case id := <-w.syncTimeouts:
			if !w.isShutdown() {
				w.syncTimedOut(id)
			}
		case <-w.shut:
			w.evHandler("worker: executionOperations: received shut signal")
			return
		}
	}
}

// enqueue places the job on the execution queue. If the queue is full the
// job is dropped.
func (w *Worker) enqueue(name string, j job) bool {
	select {
	case w.jobs <- j:
		return true
	default:
		w.evHandler("worker: enqueue: %s: WARNING: queue full, job dropped", name)
		return false
	}
}

// statusOperations periodically shares this node's status with the network.
func (w *Worker) statusOperations() {
	w.evHandler("worker: statusOperations: G started")
	defer w.evHandler("worker: statusOperations: G completed")

	ticker := time.NewTicker(w.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.broadcastStatus()
			}
		case <-w.shut:
			w.evHandler("worker: statusOperations: received shut signal")
			return
		}
	}
}

// broadcastStatus sends this node's chain status to every peer.
func (w *Worker) broadcastStatus() {
	msg, err := network.NewMessage(network.KindStatus, w.chain.PeerStatus())
	if err != nil {
		w.evHandler("worker: broadcastStatus: ERROR: %s", err)
		return
	}

	if err := w.net.Broadcast(msg); err != nil {
		w.evHandler("worker: broadcastStatus: WARNING: %s", err)
	}
}

// isShutdown is used to test if a shutdown has been signaled.
func (w *Worker) isShutdown() bool {
	select {
	case <-w.shut:
		return true
	default:
		return false
	}
}
