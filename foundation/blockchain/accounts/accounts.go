// Package accounts provides the built-in transaction executors. A transfer
// moves value between account balances and a store writes a value into the
// sender's own namespace. Account information lives in the storage engine.
package accounts

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/registry"
	"github.com/ardanlabs/blockengine/foundation/blockchain/storage"
)

// Transaction types handled by this package.
const (
	TypeTransfer = "transfer"
	TypeStore    = "store"
)

// Set of receipt codes reported by these executors.
const (
	CodeInsufficientFunds = database.CodeExecutorBase + iota
	CodeBadNonce
	CodeInvalidPayload
	CodeSelfTransfer
	CodeInvalidAccount
)

// Key prefixes inside the storage engine.
const (
	accountPrefix = "account/"
	storePrefix   = "store/"
)

// Info represents information stored for an individual account.
type Info struct {
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

// Transfer is the payload of a transfer transaction.
type Transfer struct {
	To    database.AccountID `json:"to"`
	Value uint64             `json:"value"`
}

// Store is the payload of a store transaction.
type Store struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// =============================================================================

// Register adds the transfer and store executors to the registry.
func Register(r *registry.Registry) error {
	if err := r.Register(TypeTransfer, registry.ExecutorFunc(executeTransfer)); err != nil {
		return err
	}

	if err := r.Register(TypeStore, registry.ExecutorFunc(executeStore)); err != nil {
		return err
	}

	return nil
}

// Apply seeds the account balances into the engine's live state. This is
// used to build the genesis state before snapshot 0 is taken.
func Apply(engine *storage.Engine, balances map[string]uint64) error {
	stx, err := engine.BeginTransaction()
	if err != nil {
		return err
	}

	// Sort the accounts so any failure is reported consistently.
	addrs := make([]string, 0, len(balances))
	for addr := range balances {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	for _, addr := range addrs {
		accountID, err := database.ToAccountID(addr)
		if err != nil {
			stx.Rollback()
			return fmt.Errorf("genesis account %q: %w", addr, err)
		}

		if err := putInfo(stx, accountID, Info{Balance: balances[addr]}); err != nil {
			stx.Rollback()
			return err
		}
	}

	return stx.Commit()
}

// Query returns the account information as of the snapshot.
func Query(snap *storage.Snapshot, accountID database.AccountID) (Info, error) {
	data, exists := snap.Get(accountKey(accountID))
	if !exists {
		return Info{}, nil
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, err
	}

	return info, nil
}

// Value returns the value the account stored under the key as of the snapshot.
func Value(snap *storage.Snapshot, accountID database.AccountID, key string) (string, bool) {
	data, exists := snap.Get(storeKey(accountID, key))
	return string(data), exists
}

// EncodeTransfer builds the payload for a transfer transaction.
func EncodeTransfer(to database.AccountID, value uint64) ([]byte, error) {
	return json.Marshal(Transfer{To: to, Value: value})
}

// EncodeStore builds the payload for a store transaction.
func EncodeStore(key string, value string) ([]byte, error) {
	return json.Marshal(Store{Key: key, Value: value})
}

// =============================================================================

// executeTransfer performs the business logic for moving value between two
// accounts.
func executeTransfer(stx *storage.Tx, header database.BlockHeader, tx database.Tx) (database.Receipt, error) {
	var transfer Transfer
	if err := json.Unmarshal(tx.Payload, &transfer); err != nil {
		return database.NewReceipt(tx, CodeInvalidPayload, err.Error()), nil
	}

	if !transfer.To.IsAccountID() {
		return database.NewReceipt(tx, CodeInvalidAccount, "invalid to account"), nil
	}

	from, fromInfo, rcpt, err := useNonce(stx, tx)
	if err != nil || rcpt != nil {
		return receipt(rcpt), err
	}

	if strings.EqualFold(string(from), string(transfer.To)) {
		return database.NewReceipt(tx, CodeSelfTransfer, fmt.Sprintf("sending money to yourself, from %s, to %s", from, transfer.To)), nil
	}

	if transfer.Value > fromInfo.Balance {
		return database.NewReceipt(tx, CodeInsufficientFunds, fmt.Sprintf("%s has an insufficient balance", from)), nil
	}

	toInfo, err := getInfo(stx, transfer.To)
	if err != nil {
		return database.Receipt{}, err
	}

	fromInfo.Balance -= transfer.Value
	toInfo.Balance += transfer.Value

	if err := putInfo(stx, from, fromInfo); err != nil {
		return database.Receipt{}, err
	}

	if err := putInfo(stx, transfer.To, toInfo); err != nil {
		return database.Receipt{}, err
	}

	return database.NewReceipt(tx, database.CodeOK, fmt.Sprintf("%s -> %s: %d", from, transfer.To, transfer.Value)), nil
}

// executeStore writes a value under the sender's namespace.
func executeStore(stx *storage.Tx, header database.BlockHeader, tx database.Tx) (database.Receipt, error) {
	var store Store
	if err := json.Unmarshal(tx.Payload, &store); err != nil {
		return database.NewReceipt(tx, CodeInvalidPayload, err.Error()), nil
	}

	if store.Key == "" {
		return database.NewReceipt(tx, CodeInvalidPayload, "key is empty"), nil
	}

	from, fromInfo, rcpt, err := useNonce(stx, tx)
	if err != nil || rcpt != nil {
		return receipt(rcpt), err
	}

	if err := putInfo(stx, from, fromInfo); err != nil {
		return database.Receipt{}, err
	}

	if err := stx.Put(storeKey(from, store.Key), []byte(store.Value)); err != nil {
		return database.Receipt{}, err
	}

	return database.NewReceipt(tx, database.CodeOK, ""), nil
}

// useNonce validates the nonce for the transaction is larger than the last
// nonce used by the account who signed it and records it as used. A non-nil
// receipt means the transaction failed validation.
func useNonce(stx *storage.Tx, tx database.Tx) (database.AccountID, Info, *database.Receipt, error) {
	from, err := tx.From()
	if err != nil {
		r := database.NewReceipt(tx, CodeInvalidAccount, err.Error())
		return "", Info{}, &r, nil
	}

	info, err := getInfo(stx, from)
	if err != nil {
		return "", Info{}, nil, err
	}

	if tx.Nonce <= info.Nonce {
		r := database.NewReceipt(tx, CodeBadNonce, fmt.Sprintf("nonce too small, last %d, tx %d", info.Nonce, tx.Nonce))
		return "", Info{}, &r, nil
	}

	info.Nonce = tx.Nonce

	return from, info, nil, nil
}

func receipt(rcpt *database.Receipt) database.Receipt {
	if rcpt == nil {
		return database.Receipt{}
	}
	return *rcpt
}

// =============================================================================

func getInfo(stx *storage.Tx, accountID database.AccountID) (Info, error) {
	data, exists, err := stx.Get(accountKey(accountID))
	if err != nil {
		return Info{}, err
	}

	if !exists {
		return Info{}, nil
	}

	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, err
	}

	return info, nil
}

func putInfo(stx *storage.Tx, accountID database.AccountID, info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}

	return stx.Put(accountKey(accountID), data)
}

// accountKey normalizes the account so mixed case hex addresses resolve to
// the same balance.
func accountKey(accountID database.AccountID) string {
	return accountPrefix + strings.ToLower(string(accountID))
}

func storeKey(accountID database.AccountID, key string) string {
	return storePrefix + strings.ToLower(string(accountID)) + "/" + key
}
