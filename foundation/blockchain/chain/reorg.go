package chain

import (
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/execution"
)

// Rewind resets the chain to the block with the specified number. The state
// is recovered from the snapshot for that block, so a rewind can't go deeper
// than the retained snapshots. Transactions from the removed blocks go back
// to the mempool.
func (c *Chain) Rewind(number uint64) error {
	c.apply.Lock()
	defer c.apply.Unlock()

	return c.rewind(number)
}

// Reorg replaces the blocks after a fork point with a competing branch
// received from a peer. The branch must start right after a block this chain
// holds and must end past the current tip. The first block of the branch is
// validated before anything is rewound. If a block of the branch is rejected
// before the branch gets past the old tip, the original blocks are restored.
func (c *Chain) Reorg(branch []database.Block) error {
	if len(branch) == 0 {
		return nil
	}

	c.apply.Lock()
	defer c.apply.Unlock()

	tip := c.Tip()
	first := branch[0]
	last := branch[len(branch)-1]

	if first.Header.Number == 0 || first.Header.Number > tip.Header.Number {
		return execution.NewRejectError(execution.KindSequencing, first.Header.Number, fmt.Errorf("%w: branch starts at %d, tip %d", ErrNotNextBlock, first.Header.Number, tip.Header.Number))
	}

	for i := 1; i < len(branch); i++ {
		if branch[i].Header.Number != branch[i-1].Header.Number+1 {
			return execution.NewRejectError(execution.KindSequencing, branch[i].Header.Number, fmt.Errorf("%w: branch has a gap after %d", ErrNotNextBlock, branch[i-1].Header.Number))
		}
	}

	if last.Header.Number <= tip.Header.Number {
		return fmt.Errorf("%w: branch ends at %d, tip %d", ErrBranchTooShort, last.Header.Number, tip.Header.Number)
	}

	forkNumber := first.Header.Number - 1
	if _, exists := c.engine.SnapshotByNumber(forkNumber); !exists {
		return fmt.Errorf("%w: blk[%d]", ErrRewindTooDeep, forkNumber)
	}

	fork, err := c.loadBlock(forkNumber)
	if err != nil {
		return err
	}

	if first.Header.ParentHash != fork.Hash() {
		return fmt.Errorf("%w: blk[%d]: parent %s", ErrForkNotFound, first.Header.Number, first.Header.ParentHash)
	}

	if err := c.validateHeader(first, fork.Header); err != nil {
		return err
	}

	// Keep the blocks being replaced so they can be restored.
	original := make([]database.Block, 0, tip.Header.Number-forkNumber)
	for n := forkNumber + 1; n <= tip.Header.Number; n++ {
		block, err := c.loadBlock(n)
		if err != nil {
			return err
		}
		original = append(original, block)
	}

	c.evHandler("chain: Reorg: started: tip[%d]: fork[%d]: branch[%d-%d]", tip.Header.Number, forkNumber, first.Header.Number, last.Header.Number)
	defer c.evHandler("chain: Reorg: completed: tip[%d]", c.Tip().Header.Number)

	if err := c.rewind(forkNumber); err != nil {
		return err
	}

	for _, block := range branch {
		if err := c.processNext(block); err != nil {
			if c.Tip().Header.Number > tip.Header.Number {
				c.evHandler("chain: Reorg: blk[%s]: rejected: %s: keeping branch to tip[%d]", block, err, c.Tip().Header.Number)
				return err
			}

			c.evHandler("chain: Reorg: blk[%s]: rejected: %s: restoring tip[%d]", block, err, tip.Header.Number)
			c.restore(forkNumber, original)
			return err
		}
	}

	return nil
}

// =============================================================================

// rewind resets the tip and state to the block with the specified number.
// The caller must hold the apply lock.
func (c *Chain) rewind(number uint64) error {
	tip := c.Tip()
	if number >= tip.Header.Number {
		return nil
	}

	c.evHandler("chain: rewind: started: tip[%d]: to[%d]", tip.Header.Number, number)
	defer c.evHandler("chain: rewind: completed: to[%d]", number)

	if _, exists := c.engine.SnapshotByNumber(number); !exists {
		return fmt.Errorf("%w: blk[%d]", ErrRewindTooDeep, number)
	}

	target, err := c.loadBlock(number)
	if err != nil {
		return err
	}

	// Capture the transactions of the removed blocks before the store
	// forgets them.
	var removed []database.Tx
	for n := number + 1; n <= tip.Header.Number; n++ {
		blockData, err := c.store.LoadByNumber(n)
		if err != nil {
			return err
		}
		removed = append(removed, blockData.Txs...)
	}

	if err := c.executor.Revert(number); err != nil {
		return err
	}

	if err := c.store.Truncate(number); err != nil {
		return err
	}

	c.mu.Lock()
	{
		c.tip = target
		for _, tx := range removed {
			delete(c.included, tx.Hash())
		}

		for _, tx := range removed {
			if _, err := c.mempool.Add(tx); err != nil {
				c.evHandler("chain: rewind: tx[%s]: WARNING: %s", tx, err)
			}
		}
	}
	c.mu.Unlock()

	return nil
}

// restore puts back the blocks a failed reorg removed.
func (c *Chain) restore(forkNumber uint64, original []database.Block) {
	if err := c.rewind(forkNumber); err != nil {
		c.evHandler("chain: restore: INVARIANT VIOLATION: rewind to %d: %s", forkNumber, err)
		return
	}

	for _, block := range original {
		if err := c.processNext(block); err != nil {
			c.evHandler("chain: restore: INVARIANT VIOLATION: blk[%s]: %s", block, err)
			return
		}
	}
}

// loadBlock reads the block with the specified number from the store.
func (c *Chain) loadBlock(number uint64) (database.Block, error) {
	blockData, err := c.store.LoadByNumber(number)
	if err != nil {
		return database.Block{}, err
	}

	return database.ToBlock(blockData)
}
