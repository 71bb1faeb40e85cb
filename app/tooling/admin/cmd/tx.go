package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ardanlabs/blockengine/foundation/blockchain/accounts"
	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/identity"
	"github.com/spf13/cobra"
)

// Flags shared by the sign and send commands.
var (
	txType string
	nonce  uint64
	to     string
	value  uint64
	key    string
	data   string
)

var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Sign a transaction and print it",
	RunE:  signRun,
}

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Sign a transaction and submit it to the node",
	RunE:  sendRun,
}

func init() {
	for _, c := range []*cobra.Command{signCmd, sendCmd} {
		rootCmd.AddCommand(c)
		c.Flags().StringVarP(&txType, "type", "t", accounts.TypeTransfer, "Transaction type: transfer or store.")
		c.Flags().Uint64VarP(&nonce, "nonce", "n", 0, "Nonce for the transaction, the node is asked for the next nonce when 0.")
		c.Flags().StringVar(&to, "to", "", "Account receiving a transfer.")
		c.Flags().Uint64VarP(&value, "value", "v", 0, "Value to transfer.")
		c.Flags().StringVarP(&key, "key", "k", "", "Key to write for a store.")
		c.Flags().StringVarP(&data, "data", "d", "", "Value to write for a store.")
	}
}

func signRun(cmd *cobra.Command, args []string) error {
	tx, err := buildTx()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")

	return enc.Encode(tx)
}

func sendRun(cmd *cobra.Command, args []string) error {
	tx, err := buildTx()
	if err != nil {
		return err
	}

	body, err := json.Marshal(tx)
	if err != nil {
		return err
	}

	resp, err := http.Post(fmt.Sprintf("%s/v1/tx/submit", url), "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submit failed: %s: %s", resp.Status, out)
	}

	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	return nil
}

// buildTx constructs and signs the transaction described by the flags.
func buildTx() (database.Tx, error) {
	id, err := identity.Load(getPrivateKeyPath())
	if err != nil {
		return database.Tx{}, err
	}

	var payload []byte
	switch txType {
	case accounts.TypeTransfer:
		toID, err := database.ToAccountID(to)
		if err != nil {
			return database.Tx{}, fmt.Errorf("to account: %w", err)
		}
		payload, err = accounts.EncodeTransfer(toID, value)
		if err != nil {
			return database.Tx{}, err
		}

	case accounts.TypeStore:
		payload, err = accounts.EncodeStore(key, data)
		if err != nil {
			return database.Tx{}, err
		}

	default:
		return database.Tx{}, fmt.Errorf("unknown transaction type %q", txType)
	}

	n := nonce
	if n == 0 {
		info, err := queryAccount(id.Account())
		if err != nil {
			return database.Tx{}, fmt.Errorf("query nonce: %w", err)
		}
		n = info.Nonce + 1
	}

	return id.SignTx(database.NewTx(txType, n, payload))
}

// queryAccount asks the node for the account's balance and nonce.
func queryAccount(accountID database.AccountID) (accounts.Info, error) {
	resp, err := http.Get(fmt.Sprintf("%s/v1/accounts/list/%s", url, accountID))
	if err != nil {
		return accounts.Info{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return accounts.Info{}, fmt.Errorf("node responded %s", resp.Status)
	}

	var info accounts.Info
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return accounts.Info{}, err
	}

	return info, nil
}
