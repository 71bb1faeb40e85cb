package worker

import (
	"context"
	"errors"
	"time"

	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/ardanlabs/blockengine/foundation/blockchain/consensus"
)

// produceOperations handles block production on a fixed cadence.
func (w *Worker) produceOperations() {
	w.evHandler("worker: produceOperations: G started")
	defer w.evHandler("worker: produceOperations: G completed")

	ticker := time.NewTicker(w.produceInterval)
	defer ticker.Stop()

	// Start this on an interval mark so nodes with the same interval tick
	// together.
	resetTicker(ticker, w.produceInterval)

	for {
		select {
		case <-ticker.C:
			if !w.isShutdown() {
				w.signalProduce()
			}
		case <-w.shut:
			w.evHandler("worker: produceOperations: received shut signal")
			return
		}

		// Reset the ticker for the next cycle.
		resetTicker(ticker, w.produceInterval)
	}
}

// signalProduce places a production cycle on the execution queue. A tick
// that arrives while the previous cycle is still pending or running is
// skipped.
func (w *Worker) signalProduce() {
	if !w.producing.CompareAndSwap(false, true) {
		w.evHandler("worker: signalProduce: previous cycle in flight, tick skipped")
		return
	}

	if !w.enqueue("produce", w.runProduceOperation) {
		w.producing.Store(false)
	}
}

// runProduceOperation attempts to produce the next block and shares it
// with the network.
func (w *Worker) runProduceOperation() {
	defer w.producing.Store(false)

	// Create a context so production can be cancelled.
	ctx, cancel := context.WithCancel(context.Background())

	w.cancelMu.Lock()
	w.cancelProduce = cancel
	w.cancelMu.Unlock()

	defer func() {
		w.cancelMu.Lock()
		w.cancelProduce = nil
		w.cancelMu.Unlock()
		cancel()
	}()

	t := time.Now()
	block, err := w.chain.ProduceBlock(ctx)
	duration := time.Since(t)

	if err != nil {
		switch {
		case errors.Is(err, consensus.ErrNotEligible):
		case errors.Is(err, chain.ErrNoTransactions):
			w.evHandler("worker: runProduceOperation: no transactions in mempool")
		case ctx.Err() != nil:
			w.evHandler("worker: runProduceOperation: CANCEL: complete: duration[%v]", duration)
		default:
			w.evHandler("worker: runProduceOperation: ERROR: %s", err)
		}
		return
	}

	w.evHandler("worker: runProduceOperation: blk[%s]: duration[%v]", block, duration)

	// The block is produced. Propose the new block to the network.
	w.shareBlock(block)
}

// signalCancelProduce stops a production cycle that is sealing a block.
func (w *Worker) signalCancelProduce() {
	w.cancelMu.Lock()
	defer w.cancelMu.Unlock()

	if w.cancelProduce != nil {
		w.evHandler("worker: signalCancelProduce: CANCEL: signaled")
		w.cancelProduce()
	}
}

// =============================================================================

// resetTicker makes sure the next tick happens on an interval mark.
func resetTicker(ticker *time.Ticker, interval time.Duration) {
	nextTick := time.Now().Add(interval).Round(interval)
	diff := time.Until(nextTick)
	if diff <= 0 {
		diff = interval
	}
	ticker.Reset(diff)
}
