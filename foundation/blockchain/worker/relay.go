package worker

import (
	"errors"

	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/network"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
)

// maxBlocksPerResponse caps the number of blocks sent for one request.
const maxBlocksPerResponse = 100

// inboundOperations handles the messages received from the network.
func (w *Worker) inboundOperations() {
	w.evHandler("worker: inboundOperations: G started")
	defer w.evHandler("worker: inboundOperations: G completed")

	inbound := w.net.Inbound()

	for {
		select {
		case env, open := <-inbound:
			if !open {
				w.evHandler("worker: inboundOperations: network closed")
				return
			}
			if !w.isShutdown() {
				w.dispatch(env)
			}
		case <-w.shut:
			w.evHandler("worker: inboundOperations: received shut signal")
			return
		}
	}
}

// dispatch routes a message by kind. Transactions and block requests are
// handled right here since they don't change the chain. Everything else is
// placed on the execution queue.
func (w *Worker) dispatch(env network.Envelope) {
	switch env.Message.Kind {
	case network.KindStatus:
		var status peer.Status
		if err := env.Message.Decode(&status); err != nil {
			w.evHandler("worker: dispatch: peer[%s]: ERROR: %s", env.From.ID, err)
			return
		}
		w.peerStatus(env.From, status)

	case network.KindTx:
		var tx database.Tx
		if err := env.Message.Decode(&tx); err != nil {
			w.evHandler("worker: dispatch: peer[%s]: ERROR: %s", env.From.ID, err)
			return
		}
		w.peerTx(env.From, tx)

	case network.KindGetBlocks:
		var req network.GetBlocks
		if err := env.Message.Decode(&req); err != nil {
			w.evHandler("worker: dispatch: peer[%s]: ERROR: %s", env.From.ID, err)
			return
		}
		w.sendBlocks(env.From, req)

	case network.KindBlock:
		var blockData database.BlockData
		if err := env.Message.Decode(&blockData); err != nil {
			w.evHandler("worker: dispatch: peer[%s]: ERROR: %s", env.From.ID, err)
			return
		}

		block, err := database.ToBlock(blockData)
		if err != nil {
			w.evHandler("worker: dispatch: peer[%s]: ERROR: %s", env.From.ID, err)
			return
		}

		// A block in production would be built on a tip that is about to
		// change, so stop it.
		w.signalCancelProduce()
		w.enqueue("block", func() { w.processBlock(env.From, block) })

	case network.KindBlocks:
		var resp network.Blocks
		if err := env.Message.Decode(&resp); err != nil {
			w.evHandler("worker: dispatch: peer[%s]: ERROR: %s", env.From.ID, err)
			return
		}
		w.signalCancelProduce()
		w.enqueue("blocks", func() { w.applyBlocks(env.From, resp.Blocks) })

	default:
		w.evHandler("worker: dispatch: peer[%s]: WARNING: unknown message kind %q", env.From.ID, env.Message.Kind)
	}
}

// peerStatus records the status of a peer. A peer seen for the first time
// gets this node's status back so both sides know about each other.
func (w *Worker) peerStatus(from peer.Peer, status peer.Status) {
	isNew := w.peers.Add(from)
	w.peers.Update(from, status)

	w.evHandler("worker: peerStatus: peer[%s]: latestBlockNumber[%d]: new[%t]", from.ID, status.LatestBlockNumber, isNew)

	if isNew {
		msg, err := network.NewMessage(network.KindStatus, w.chain.PeerStatus())
		if err == nil {
			err = w.net.SendTo(from, msg)
		}
		if err != nil {
			w.evHandler("worker: peerStatus: peer[%s]: WARNING: %s", from.ID, err)
		}
	}

	w.enqueue("sync", w.checkSync)
}

// peerTx pools a transaction received from a peer and relays it when it's
// new to this node.
func (w *Worker) peerTx(from peer.Peer, tx database.Tx) {
	added, err := w.chain.SubmitTransaction(tx)
	if err != nil {
		w.evHandler("worker: peerTx: peer[%s]: tx[%s]: dropped: %s", from.ID, tx, err)
		return
	}

	if added {
		w.shareTx(tx)
	}
}

// shareTx sends a transaction to every peer.
func (w *Worker) shareTx(tx database.Tx) {
	msg, err := network.NewMessage(network.KindTx, tx)
	if err != nil {
		w.evHandler("worker: shareTx: ERROR: %s", err)
		return
	}

	if err := w.net.Broadcast(msg); err != nil {
		w.evHandler("worker: shareTx: WARNING: %s", err)
	}
}

// sendBlocks answers a peer's request for blocks.
func (w *Worker) sendBlocks(to peer.Peer, req network.GetBlocks) {
	last := req.To
	if last == 0 || last-req.From >= maxBlocksPerResponse {
		last = req.From + maxBlocksPerResponse - 1
	}

	blocks, err := w.chain.BlocksRange(req.From, last)
	if err != nil {
		w.evHandler("worker: sendBlocks: peer[%s]: from[%d]: ERROR: %s", to.ID, req.From, err)
		return
	}

	resp := network.Blocks{Blocks: make([]database.BlockData, len(blocks))}
	for i, block := range blocks {
		resp.Blocks[i] = database.NewBlockData(block)
	}

	msg, err := network.NewMessage(network.KindBlocks, resp)
	if err != nil {
		w.evHandler("worker: sendBlocks: ERROR: %s", err)
		return
	}

	if err := w.net.SendTo(to, msg); err != nil {
		w.evHandler("worker: sendBlocks: peer[%s]: WARNING: %s", to.ID, err)
	}
}

// shareBlock sends a block to every peer.
func (w *Worker) shareBlock(block database.Block) {
	msg, err := network.NewMessage(network.KindBlock, database.NewBlockData(block))
	if err != nil {
		w.evHandler("worker: shareBlock: ERROR: %s", err)
		return
	}

	if err := w.net.Broadcast(msg); err != nil {
		w.evHandler("worker: shareBlock: WARNING: %s", err)
	}
}

// processBlock applies a block relayed by a peer. Accepted blocks are relayed
// on, rejected blocks are dropped. A valid block from a competing branch
// starts fetching that branch but never changes the chain by itself.
func (w *Worker) processBlock(from peer.Peer, block database.Block) {
	err := w.chain.ProcessBlock(block)

	switch {
	case err == nil:
		w.evHandler("worker: processBlock: peer[%s]: blk[%s]: accepted", from.ID, block)
		w.shareBlock(block)

	case errors.Is(err, chain.ErrAlreadyKnown):

	case errors.Is(err, chain.ErrNotNextBlock):
		if block.Header.Number > w.chain.Tip().Header.Number {
			w.peers.Update(from, peer.Status{LatestBlockHash: block.Hash(), LatestBlockNumber: block.Header.Number})
			w.checkSync()
		}

	case errors.Is(err, chain.ErrParentMismatch):
		w.evHandler("worker: processBlock: peer[%s]: blk[%s]: competing branch", from.ID, block)
		w.peers.Update(from, peer.Status{LatestBlockHash: block.Hash(), LatestBlockNumber: block.Header.Number})
		if w.pending == nil {
			w.fetchBranch(from, nil)
		}

	default:
		w.evHandler("worker: processBlock: peer[%s]: blk[%s]: rejected: %s", from.ID, block, err)
	}
}
