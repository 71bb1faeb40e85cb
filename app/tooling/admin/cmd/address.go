package cmd

import (
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/identity"
	"github.com/spf13/cobra"
)

var addressCmd = &cobra.Command{
	Use:   "address",
	Short: "Print the account for the private key",
	RunE:  addressRun,
}

func init() {
	rootCmd.AddCommand(addressCmd)
}

func addressRun(cmd *cobra.Command, args []string) error {
	key, err := identity.Load(getPrivateKeyPath())
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), key.Account())

	return nil
}
