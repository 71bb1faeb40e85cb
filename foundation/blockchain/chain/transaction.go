package chain

import (
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/registry"
)

// SubmitTransaction accepts a transaction for inclusion in a future block.
// It returns false when the transaction was already pooled. This can be
// called concurrently with block processing.
func (c *Chain) SubmitTransaction(tx database.Tx) (bool, error) {
	if err := tx.Validate(); err != nil {
		return false, err
	}

	if !c.registry.Knows(tx.Type) {
		return false, fmt.Errorf("%w: %q", registry.ErrUnknownTransactionType, tx.Type)
	}

	hash := tx.Hash()

	// The included check and the add happen under the same lock advance
	// holds while it records a block's transactions and prunes the pool.
	c.mu.RLock()
	defer c.mu.RUnlock()

	if number, included := c.included[hash]; included {
		return false, fmt.Errorf("%w: tx[%s]: blk[%d]", ErrTxIncluded, hash, number)
	}

	added, err := c.mempool.Add(tx)
	if err != nil {
		return false, err
	}

	if added {
		c.evHandler("chain: SubmitTransaction: tx[%s]: pooled[%d]", tx, c.mempool.Count())
	}

	return added, nil
}
