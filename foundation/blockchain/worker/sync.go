package worker

import (
	"errors"
	"time"

	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/network"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
)

// syncRequest tracks the outstanding request for blocks. The peers that
// were already asked are remembered so a timeout moves on to another peer.
type syncRequest struct {
	id    uint64
	peer  peer.Peer
	from  uint64
	tried map[string]bool
}

// checkSync asks a peer that is ahead of this node for the missing blocks,
// unless a request is already outstanding.
func (w *Worker) checkSync() {
	if w.pending != nil {
		return
	}

	w.requestNext(nil)
}

// requestNext asks the highest peer that wasn't tried yet for blocks.
func (w *Worker) requestNext(tried map[string]bool) {
	tip := w.chain.Tip().Header.Number

	for _, p := range w.peers.Ahead(tip) {
		if tried[p.ID] {
			continue
		}

		w.request(p, tip+1, tried)
		return
	}

	if len(tried) > 0 {
		w.evHandler("worker: requestNext: no more peers to ask: tried[%d]", len(tried))
	}
	w.pending = nil
}

// request sends the request for blocks starting at the specified number. If
// the peer doesn't answer within the sync timeout another peer is asked.
func (w *Worker) request(p peer.Peer, from uint64, tried map[string]bool) {
	if tried == nil {
		tried = make(map[string]bool)
	}
	tried[p.ID] = true

	w.syncSeq++
	req := syncRequest{
		id:    w.syncSeq,
		peer:  p,
		from:  from,
		tried: tried,
	}
	w.pending = &req

	w.evHandler("worker: request: peer[%s]: from[%d]", p.ID, from)

	msg, err := network.NewMessage(network.KindGetBlocks, network.GetBlocks{From: from})
	if err == nil {
		err = w.net.SendTo(p, msg)
	}
	if err != nil {
		w.evHandler("worker: request: peer[%s]: WARNING: %s", p.ID, err)
		w.pending = nil
		w.requestNext(tried)
		return
	}

	w.armTimeout(req.id)
}

// armTimeout delivers the request id to the execution G once the sync
// timeout passes. The delivery is never dropped, otherwise the request
// would stay outstanding and block every later sync.
func (w *Worker) armTimeout(id uint64) {
	time.AfterFunc(w.syncTimeout, func() {
		select {
		case w.syncTimeouts <- id:
		case <-w.shut:
		}
	})
}

// syncTimedOut moves on to the next peer if the request is still
// outstanding.
func (w *Worker) syncTimedOut(id uint64) {
	if w.pending == nil || w.pending.id != id {
		return
	}

	w.evHandler("worker: syncTimedOut: peer[%s]: from[%d]: no response", w.pending.peer.ID, w.pending.from)

	tried := w.pending.tried
	w.pending = nil
	w.requestNext(tried)
}

// applyBlocks runs the blocks a peer sent in ascending order. Blocks this
// node already holds are skipped. When the rest starts at or below the tip
// the peer is on a competing branch and the chain reorganizes onto it, as
// long as the branch validates and ends past the tip. A peer whose blocks
// are rejected is not asked again for this sync.
func (w *Worker) applyBlocks(from peer.Peer, blockDatas []database.BlockData) {
	tried := make(map[string]bool)
	if w.pending != nil && w.pending.peer == from {
		tried = w.pending.tried
		w.pending = nil
	}
	tried[from.ID] = true

	w.evHandler("worker: applyBlocks: peer[%s]: blocks[%d]", from.ID, len(blockDatas))

	blocks := make([]database.Block, 0, len(blockDatas))
	for _, blockData := range blockDatas {
		block, err := database.ToBlock(blockData)
		if err != nil {
			w.evHandler("worker: applyBlocks: peer[%s]: ERROR: %s", from.ID, err)
			w.requestNext(tried)
			return
		}
		blocks = append(blocks, block)
	}

	// Skip the blocks this node already holds.
	tip := w.chain.Tip().Header.Number
	var skipped int
	for len(blocks) > 0 && blocks[0].Header.Number <= tip && w.chain.HasBlock(blocks[0]) {
		blocks = blocks[1:]
		skipped++
	}

	if len(blocks) == 0 {
		return
	}

	if blocks[0].Header.Number <= tip {
		w.reorg(from, blocks, tried)
		return
	}

	w.extend(from, blocks, tried, skipped > 0)
}

// extend applies blocks that follow the tip. A first block that doesn't
// connect means the peer's branch leaves this chain at or before the tip,
// so the branch is fetched starting at the tip.
func (w *Worker) extend(from peer.Peer, blocks []database.Block, tried map[string]bool, overlapped bool) {
	var accepted int
	for _, block := range blocks {
		err := w.chain.ProcessBlock(block)
		switch {
		case err == nil:
			accepted++
			continue

		case errors.Is(err, chain.ErrAlreadyKnown):
			continue

		case errors.Is(err, chain.ErrParentMismatch) && accepted == 0 && !overlapped:
			w.evHandler("worker: extend: peer[%s]: blk[%s]: competing branch", from.ID, block)
			w.fetchBranch(from, tried)
			return
		}

		w.evHandler("worker: extend: peer[%s]: blk[%s]: rejected: %s", from.ID, block, err)
		if accepted > 0 {
			w.broadcastStatus()
		}
		w.requestNext(tried)
		return
	}

	if accepted == 0 {
		return
	}

	w.evHandler("worker: extend: peer[%s]: accepted[%d]: tip[%d]", from.ID, accepted, w.chain.Tip().Header.Number)

	w.broadcastStatus()
	w.checkSync()
}

// reorg moves the chain onto a competing branch. When the branch doesn't
// start on a block this node holds, the blocks are asked for again starting
// one block earlier. The walk back ends at genesis or once it runs past the
// retained snapshots.
func (w *Worker) reorg(from peer.Peer, blocks []database.Block, tried map[string]bool) {
	before := w.chain.Tip().Hash()
	first := blocks[0].Header.Number

	err := w.chain.Reorg(blocks)
	switch {
	case err == nil:
		w.evHandler("worker: reorg: peer[%s]: switched branch: tip[%d]", from.ID, w.chain.Tip().Header.Number)
		w.broadcastStatus()
		w.checkSync()

	case errors.Is(err, chain.ErrForkNotFound) && first > 1:
		w.evHandler("worker: reorg: peer[%s]: fork point is before blk[%d]", from.ID, first)
		w.request(from, first-1, tried)

	default:
		w.evHandler("worker: reorg: peer[%s]: blk[%d]: rejected: %s", from.ID, first, err)
		if w.chain.Tip().Hash() != before {
			w.broadcastStatus()
		}
		w.requestNext(tried)
	}
}

// fetchBranch asks the peer for its blocks starting at the tip so the point
// where the branches split can be found.
func (w *Worker) fetchBranch(from peer.Peer, tried map[string]bool) {
	tip := w.chain.Tip().Header.Number
	if tip == 0 {
		w.evHandler("worker: fetchBranch: peer[%s]: WARNING: fork at genesis", from.ID)
		w.requestNext(tried)
		return
	}

	w.request(from, tip, tried)
}
