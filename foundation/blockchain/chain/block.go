package chain

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/execution"
)

// ProcessBlock takes a block received from a peer, runs it through the block
// executor and if it's accepted, persists it and makes it the new tip. A
// rejected block leaves the chain exactly as it was.
func (c *Chain) ProcessBlock(block database.Block) error {
	c.apply.Lock()
	defer c.apply.Unlock()

	c.evHandler("chain: ProcessBlock: started: blk[%s]: txs[%d]", block, len(block.Txs))
	defer c.evHandler("chain: ProcessBlock: completed: blk[%d]", block.Header.Number)

	return c.processNext(block)
}

// processNext applies the block on top of the tip. A block on a competing
// branch is only reported as a parent mismatch once its header passes the
// consensus rules. The caller must hold the apply lock.
func (c *Chain) processNext(block database.Block) error {
	tip := c.Tip()
	number := block.Header.Number

	switch {
	case number <= tip.Header.Number:
		if known, err := c.store.LoadByNumber(number); err == nil && known.Hash == block.Hash() {
			return fmt.Errorf("%w: blk[%s]", ErrAlreadyKnown, block)
		}
		return execution.NewRejectError(execution.KindSequencing, number, fmt.Errorf("%w: got %d, exp %d", ErrNotNextBlock, number, tip.Header.Number+1))

	case number > tip.Header.Number+1:
		return execution.NewRejectError(execution.KindSequencing, number, fmt.Errorf("%w: got %d, exp %d", ErrNotNextBlock, number, tip.Header.Number+1))

	case block.Header.ParentHash != tip.Hash():
		if err := c.validateHeader(block, tip.Header); err != nil {
			return err
		}
		return execution.NewRejectError(execution.KindSequencing, number, fmt.Errorf("%w: parent %s, tip %s", ErrParentMismatch, block.Header.ParentHash, tip.Hash()))
	}

	res, err := c.executor.Execute(block, tip.Header)
	if err != nil {
		return err
	}
	block.Receipts = res.Receipts

	if err := c.persist(block, tip); err != nil {
		return err
	}

	return nil
}

// validateHeader runs the consensus rules and the transaction commitment
// check for a block without touching any state.
func (c *Chain) validateHeader(block database.Block, parent database.BlockHeader) error {
	if err := c.consensus.ValidateBlock(block.Header, consensus.ChainState{Parent: parent}); err != nil {
		return execution.NewRejectError(execution.KindConsensus, block.Header.Number, err)
	}

	if err := block.ValidateTxRoot(); err != nil {
		return execution.NewRejectError(execution.KindConsensus, block.Header.Number, err)
	}

	return nil
}

// ProduceBlock attempts to create the next block from the pending
// transactions when this node is the eligible producer for the slot. The
// context cancels sealing.
func (c *Chain) ProduceBlock(ctx context.Context) (database.Block, error) {
	if c.identity == nil {
		return database.Block{}, ErrNoIdentity
	}

	c.apply.Lock()
	defer c.apply.Unlock()

	tip := c.Tip()
	number := tip.Header.Number + 1

	if !c.consensus.IsEligibleProducer(number, c.identity) {
		return database.Block{}, fmt.Errorf("%w: blk[%d]: account[%s]", consensus.ErrNotEligible, number, c.identity.Account())
	}

	txs := c.mempool.PickBest(int(c.genesis.TxsPerBlock))
	if len(txs) == 0 && !c.produceEmpty {
		return database.Block{}, ErrNoTransactions
	}

	c.evHandler("chain: ProduceBlock: blk[%d]: txs[%d]: build", number, len(txs))

	block, err := database.NewBlock(tip.Header, c.identity.Account(), c.genesis.Difficulty, txs)
	if err != nil {
		return database.Block{}, err
	}

	res, err := c.executor.Build(block, tip.Header)
	if err != nil {
		return database.Block{}, err
	}

	block.Header.Storage = res.Digest
	block.Header.ReceiptRoot = res.ReceiptRoot
	block.Receipts = res.Receipts

	c.evHandler("chain: ProduceBlock: blk[%d]: seal: consensus[%s]", number, c.consensus.Name())

	if err := c.consensus.Seal(ctx, &block.Header, c.identity); err != nil {
		c.revert(tip)
		return database.Block{}, err
	}

	// Just check one more time we were not cancelled.
	if err := ctx.Err(); err != nil {
		c.revert(tip)
		return database.Block{}, err
	}

	if err := c.persist(block, tip); err != nil {
		return database.Block{}, err
	}

	return block, nil
}

// =============================================================================

// persist writes the executed block to the store and advances the tip. If
// the write fails the state is reverted to the parent.
func (c *Chain) persist(block database.Block, parent database.Block) error {
	c.evHandler("chain: persist: blk[%s]: write to store", block)

	if err := c.store.Save(database.NewBlockData(block)); err != nil {
		c.revert(parent)
		return fmt.Errorf("save blk[%d]: %w", block.Header.Number, err)
	}

	c.advance(block)
	c.blockEvent(block)

	return nil
}

// revert puts the state back to the parent of an attempted block.
func (c *Chain) revert(parent database.Block) {
	if err := c.executor.Revert(parent.Header.Number); err != nil {
		c.evHandler("chain: revert: blk[%d]: ERROR: %s", parent.Header.Number, err)
	}
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (c *Chain) blockEvent(block database.Block) {
	blockHeaderJSON, err := json.Marshal(block.Header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	blockReceiptsJSON, err := json.Marshal(block.Receipts)
	if err != nil {
		blockReceiptsJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	c.evHandler(`viewer: block: {"hash":%q,"header":%s,"receipts":%s}`, block.Hash(), string(blockHeaderJSON), string(blockReceiptsJSON))
}
