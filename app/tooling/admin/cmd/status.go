package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/ardanlabs/blockengine/foundation/blockchain/chain"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the status of the node",
	RunE:  statusRun,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusRun(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(fmt.Sprintf("%s/v1/status", url))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("node responded %s", resp.Status)
	}

	var status chain.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Consensus:   %s\n", status.Consensus)
	fmt.Fprintf(out, "LatestBlock: %d %s\n", status.LatestBlockNumber, status.LatestBlockHash)
	fmt.Fprintf(out, "Storage:     %s\n", status.Storage)
	fmt.Fprintf(out, "Mempool:     %d\n", status.Mempool)
	fmt.Fprintf(out, "Snapshots:   %d\n", status.Snapshots)
	if status.Producer != "" {
		fmt.Fprintf(out, "Producer:    %s\n", status.Producer)
	}

	return nil
}
