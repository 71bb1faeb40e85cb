package cmd

import (
	"fmt"
	"os"

	"github.com/ardanlabs/blockengine/foundation/blockchain/identity"
	"github.com/spf13/cobra"
)

var genkeyCmd = &cobra.Command{
	Use:   "genkey",
	Short: "Generate a new private key",
	RunE:  genkeyRun,
}

func init() {
	rootCmd.AddCommand(genkeyCmd)
}

func genkeyRun(cmd *cobra.Command, args []string) error {
	path := getPrivateKeyPath()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("key file %s already exists", path)
	}

	if err := os.MkdirAll(accountPath, 0755); err != nil {
		return err
	}

	key, err := identity.Generate()
	if err != nil {
		return err
	}

	if err := key.Save(path); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, key.Account())

	return nil
}
