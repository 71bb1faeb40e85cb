package chain

import (
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/accounts"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/genesis"
	"github.com/ardanlabs/blockengine/foundation/blockchain/peer"
)

// QueryLatest represents to query the latest block in the chain.
const QueryLatest = ^uint64(0) >> 1

// Status represents a summary of the chain for a node.
type Status struct {
	LatestBlockHash   string             `json:"latest_block_hash"`
	LatestBlockNumber uint64             `json:"latest_block_number"`
	Storage           string             `json:"storage"`
	Mempool           int                `json:"mempool"`
	Snapshots         int                `json:"snapshots"`
	Consensus         string             `json:"consensus"`
	Producer          database.AccountID `json:"producer,omitempty"`
}

// SnapshotInfo describes a retained snapshot.
type SnapshotInfo struct {
	Number uint64 `json:"number"`
	Digest string `json:"digest"`
}

// =============================================================================

// Tip returns the latest block in the chain.
func (c *Chain) Tip() database.Block {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.tip
}

// Genesis returns the genesis the chain was started with.
func (c *Chain) Genesis() genesis.Genesis {
	return c.genesis
}

// PeerStatus returns the status this node reports to its peers.
func (c *Chain) PeerStatus() peer.Status {
	tip := c.Tip()

	return peer.Status{
		LatestBlockHash:   tip.Hash(),
		LatestBlockNumber: tip.Header.Number,
	}
}

// Status returns a summary of the chain.
func (c *Chain) Status() Status {
	tip := c.Tip()

	s := Status{
		LatestBlockHash:   tip.Hash(),
		LatestBlockNumber: tip.Header.Number,
		Storage:           tip.Header.Storage,
		Mempool:           c.mempool.Count(),
		Snapshots:         len(c.engine.Snapshots()),
		Consensus:         c.consensus.Name(),
	}

	if c.identity != nil {
		s.Producer = c.identity.Account()
	}

	return s
}

// BlockByNumber returns the block with the specified number.
func (c *Chain) BlockByNumber(number uint64) (database.Block, error) {
	blockData, err := c.store.LoadByNumber(number)
	if err != nil {
		return database.Block{}, err
	}

	return database.ToBlock(blockData)
}

// HasBlock reports if the block is part of the chain.
func (c *Chain) HasBlock(block database.Block) bool {
	blockData, err := c.store.LoadByNumber(block.Header.Number)
	return err == nil && blockData.Hash == block.Hash()
}

// BlockByHash returns the block with the specified hash.
func (c *Chain) BlockByHash(hash string) (database.Block, error) {
	blockData, err := c.store.LoadByHash(hash)
	if err != nil {
		return database.Block{}, err
	}

	return database.ToBlock(blockData)
}

// BlocksRange returns the set of blocks between the two numbers inclusive.
// QueryLatest can be used for either number.
func (c *Chain) BlocksRange(from uint64, to uint64) ([]database.Block, error) {
	latest := c.Tip().Header.Number

	if from == QueryLatest {
		from = latest
	}
	if to == QueryLatest || to > latest {
		to = latest
	}

	var out []database.Block
	for i := from; i <= to; i++ {
		block, err := c.BlockByNumber(i)
		if err != nil {
			return nil, err
		}
		out = append(out, block)
	}

	return out, nil
}

// ReceiptProof returns the block header holding the transaction along with
// the proof that its receipt is committed to by the header's receipt root.
func (c *Chain) ReceiptProof(txHash string) (database.BlockHeader, database.ReceiptProof, error) {
	c.mu.RLock()
	number, included := c.included[txHash]
	c.mu.RUnlock()

	if !included {
		return database.BlockHeader{}, database.ReceiptProof{}, fmt.Errorf("%w: tx[%s]", ErrTxNotIncluded, txHash)
	}

	block, err := c.BlockByNumber(number)
	if err != nil {
		return database.BlockHeader{}, database.ReceiptProof{}, err
	}

	proof, err := database.NewReceiptProof(block.Receipts, txHash)
	if err != nil {
		return database.BlockHeader{}, database.ReceiptProof{}, err
	}

	return block.Header, proof, nil
}

// Mempool returns a copy of the pending transactions in arrival order.
func (c *Chain) Mempool() []database.Tx {
	return c.mempool.Copy()
}

// Snapshots returns the retained snapshots, oldest first.
func (c *Chain) Snapshots() []SnapshotInfo {
	snaps := c.engine.Snapshots()

	infos := make([]SnapshotInfo, len(snaps))
	for i, snap := range snaps {
		infos[i] = SnapshotInfo{
			Number: snap.Number(),
			Digest: snap.Digest(),
		}
	}

	return infos
}

// Account returns the account information as of the tip.
func (c *Chain) Account(accountID database.AccountID) (accounts.Info, error) {
	if !accountID.IsAccountID() {
		return accounts.Info{}, database.ErrInvalidAccount
	}

	snap, exists := c.engine.SnapshotByNumber(c.Tip().Header.Number)
	if !exists {
		return accounts.Info{}, ErrNoState
	}

	return accounts.Query(snap, accountID)
}

// Value returns the value the account stored under the key as of the tip.
func (c *Chain) Value(accountID database.AccountID, key string) (string, bool) {
	snap, exists := c.engine.SnapshotByNumber(c.Tip().Header.Number)
	if !exists {
		return "", false
	}

	return accounts.Value(snap, accountID, key)
}
