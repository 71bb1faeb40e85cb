package cmd

import (
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database/store/disk"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database/store/leveldb"
	"github.com/spf13/cobra"
)

var (
	storeKind string
	dbPath    string
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Print the blocks in a node's store, the node must be stopped",
	RunE:  blocksRun,
}

func init() {
	rootCmd.AddCommand(blocksCmd)
	blocksCmd.Flags().StringVarP(&storeKind, "store", "s", "disk", "Kind of store: disk or leveldb.")
	blocksCmd.Flags().StringVar(&dbPath, "db-path", "zblock/blocks", "Path to the store.")
}

func blocksRun(cmd *cobra.Command, args []string) error {
	var store database.Store
	switch storeKind {
	case "disk":
		d, err := disk.New(dbPath)
		if err != nil {
			return err
		}
		store = d

	case "leveldb":
		l, err := leveldb.New(dbPath)
		if err != nil {
			return err
		}
		store = l

	default:
		return fmt.Errorf("unknown store %q", storeKind)
	}
	defer store.Close()

	out := cmd.OutOrStdout()

	iter := store.ForEach()
	for blockData, err := iter.Next(); !iter.Done(); blockData, err = iter.Next() {
		if err != nil {
			return err
		}

		block, err := database.ToBlock(blockData)
		if err != nil {
			return fmt.Errorf("blk[%d]: %w", blockData.Header.Number, err)
		}

		h := block.Header
		fmt.Fprintf(out, "blk[%d]: hash[%s]: prev[%s]: storage[%s]: txs[%d]\n", h.Number, block.Hash(), h.ParentHash, h.Storage, len(block.Txs))

		for i, tx := range block.Txs {
			if i >= len(block.Receipts) {
				fmt.Fprintf(out, "    tx[%s]: no receipt\n", tx)
				continue
			}
			rcpt := block.Receipts[i]
			fmt.Fprintf(out, "    tx[%s]: code[%d] %s\n", tx, rcpt.Code, string(rcpt.Log))
		}
	}

	return nil
}
