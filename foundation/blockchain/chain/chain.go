// Package chain is the core API for the blockchain. It owns the chain tip,
// the pool of pending transactions and the storage engine, and applies
// blocks through the block executor.
package chain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/blockengine/foundation/blockchain/accounts"
	"github.com/ardanlabs/blockengine/foundation/blockchain/consensus"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/execution"
	"github.com/ardanlabs/blockengine/foundation/blockchain/genesis"
	"github.com/ardanlabs/blockengine/foundation/blockchain/mempool"
	"github.com/ardanlabs/blockengine/foundation/blockchain/mempool/selector"
	"github.com/ardanlabs/blockengine/foundation/blockchain/merkle"
	"github.com/ardanlabs/blockengine/foundation/blockchain/registry"
	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
	"github.com/ardanlabs/blockengine/foundation/blockchain/storage"
)

// Set of error variables for chain processing.
var (
	ErrNotNextBlock    = errors.New("block isn't the next block")
	ErrParentMismatch  = errors.New("block doesn't extend the tip")
	ErrAlreadyKnown    = errors.New("block is already in the chain")
	ErrNoTransactions  = errors.New("no transactions in mempool")
	ErrNoIdentity      = errors.New("node has no producer identity")
	ErrTxIncluded      = errors.New("transaction is already in a block")
	ErrGenesisMismatch = errors.New("stored genesis block doesn't match the genesis file")
	ErrRewindTooDeep   = errors.New("no snapshot to rewind to")
	ErrForkNotFound    = errors.New("branch doesn't start on a block in the chain")
	ErrBranchTooShort  = errors.New("branch doesn't end past the tip")
	ErrTxNotIncluded   = errors.New("transaction isn't in a block")
	ErrNoState         = errors.New("no state for the tip")
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of blocks.
type EventHandler func(v string, args ...any)

// Config represents the configuration required to start the chain.
type Config struct {
	Genesis        genesis.Genesis
	Store          database.Store
	Identity       consensus.Identity
	Consensus      consensus.Variant
	Registry       *registry.Registry
	SelectStrategy string
	SnapshotRetain int
	ProduceEmpty   bool
	EvHandler      EventHandler
}

// Chain manages the blockchain state for a node.
type Chain struct {
	genesis      genesis.Genesis
	identity     consensus.Identity
	produceEmpty bool
	evHandler    EventHandler

	engine    *storage.Engine
	registry  *registry.Registry
	consensus consensus.Variant
	executor  *execution.Executor
	mempool   *mempool.Mempool
	store     database.Store

	// apply serializes every change to the tip.
	apply sync.Mutex

	mu       sync.RWMutex
	tip      database.Block
	included map[string]uint64
}

// New constructs the chain. The genesis state is applied and captured as
// snapshot 0, then every block in the store is replayed through the block
// executor to rebuild the state.
func New(cfg Config) (*Chain, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if cfg.Store == nil {
		return nil, errors.New("chain requires a store")
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, err
	}

	reg := cfg.Registry
	if reg == nil {
		reg = registry.New()
		if err := accounts.Register(reg); err != nil {
			return nil, err
		}
	}

	variant := cfg.Consensus
	if variant == nil {
		var err error
		if variant, err = variantFromGenesis(cfg.Genesis, ev); err != nil {
			return nil, err
		}
	}

	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = selector.StrategyFIFO
	}

	mp, err := mempool.NewWithStrategy(strategy)
	if err != nil {
		return nil, err
	}

	// Apply the genesis balances and capture the genesis state.
	engine := storage.New(cfg.SnapshotRetain)
	if err := accounts.Apply(engine, cfg.Genesis.Balances); err != nil {
		return nil, err
	}

	snap, err := engine.CreateSnapshot(0)
	if err != nil {
		return nil, err
	}

	c := Chain{
		genesis:      cfg.Genesis,
		identity:     cfg.Identity,
		produceEmpty: cfg.ProduceEmpty,
		evHandler:    ev,
		engine:       engine,
		registry:     reg,
		consensus:    variant,
		mempool:      mp,
		store:        cfg.Store,
		included:     make(map[string]uint64),
	}

	c.executor = execution.New(execution.Config{
		Engine:    engine,
		Registry:  reg,
		Consensus: variant,
		EvHandler: execution.EventHandler(ev),
	})

	if err := c.loadGenesis(snap); err != nil {
		return nil, err
	}

	if err := c.replay(); err != nil {
		return nil, err
	}

	return &c, nil
}

// Close releases the store.
func (c *Chain) Close() error {
	c.evHandler("chain: Close: closing store")
	return c.store.Close()
}

// =============================================================================

// genesisBlock builds block 0 from the genesis file and the genesis state.
func (c *Chain) genesisBlock(snap *storage.Snapshot) database.Block {
	return database.Block{
		Header: database.BlockHeader{
			Number:      0,
			ParentHash:  signature.ZeroHash,
			Storage:     snap.Digest(),
			TxRoot:      merkle.ZeroRoot,
			ReceiptRoot: merkle.ZeroRoot,
			TimeStamp:   uint64(c.genesis.Date.UTC().UnixMilli()),
		},
	}
}

// loadGenesis makes sure the store starts with the genesis block.
func (c *Chain) loadGenesis(snap *storage.Snapshot) error {
	block := c.genesisBlock(snap)

	blockData, err := c.store.LoadByNumber(0)
	switch {
	case errors.Is(err, database.ErrNotFound):
		c.evHandler("chain: loadGenesis: saving genesis block: blk[%s]", block.Hash())
		if err := c.store.Save(database.NewBlockData(block)); err != nil {
			return fmt.Errorf("save genesis: %w", err)
		}

	case err != nil:
		return fmt.Errorf("load genesis: %w", err)

	case blockData.Hash != block.Hash():
		return fmt.Errorf("%w: got %s, exp %s", ErrGenesisMismatch, blockData.Hash, block.Hash())
	}

	c.tip = block

	return nil
}

// replay runs every stored block after genesis through the executor. The
// store is truncated at the first block that can't be applied.
func (c *Chain) replay() error {
	iter := c.store.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return err
		}

		if blockData.Header.Number == 0 {
			continue
		}

		block, err := database.ToBlock(blockData)
		if err == nil {
			var res execution.Result
			if res, err = c.executor.Execute(block, c.tip.Header); err == nil {
				block.Receipts = res.Receipts
				c.advance(block)
				continue
			}
		}

		c.evHandler("chain: replay: blk[%d]: ERROR: %s: truncating store", blockData.Header.Number, err)
		if err := c.store.Truncate(c.tip.Header.Number); err != nil {
			return err
		}
		break
	}

	c.evHandler("chain: replay: completed: tip[%s]", c.tip)

	return nil
}

// advance makes the block the new tip. The block must already be executed
// and persisted.
func (c *Chain) advance(block database.Block) {
	c.mu.Lock()
	{
		c.tip = block
		for _, tx := range block.Txs {
			c.included[tx.Hash()] = block.Header.Number
		}
		c.mempool.DeleteTxs(block.Txs)
	}
	c.mu.Unlock()

	if n := c.engine.Prune(); n > 0 {
		c.evHandler("chain: advance: blk[%d]: pruned snapshots[%d]", block.Header.Number, n)
	}
}

// variantFromGenesis constructs the consensus variant named in the genesis.
func variantFromGenesis(g genesis.Genesis, ev EventHandler) (consensus.Variant, error) {
	delegates := make([]database.AccountID, len(g.Delegates))
	for i, d := range g.Delegates {
		accountID, err := database.ToAccountID(d)
		if err != nil {
			return nil, fmt.Errorf("delegate %q: %w", d, err)
		}
		delegates[i] = accountID
	}

	cfg := consensus.Config{
		Difficulty: g.Difficulty,
		Delegates:  delegates,
		EvHandler:  consensus.EventHandler(ev),
	}

	return consensus.New(g.Consensus, cfg)
}
