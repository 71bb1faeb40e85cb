// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"sort"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
)

// List of different select strategies.
const (
	StrategyFIFO   = "fifo"
	StrategySender = "sender"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFIFO:   fifoSelect,
	StrategySender: senderSelect,
}

// Entry is a pooled transaction along with the account that signed it and
// the order it arrived in.
type Entry struct {
	Tx      database.Tx
	From    database.AccountID
	Arrival uint64
}

// Func defines a function that takes a mempool of transactions grouped by
// account and selects howMany of them in an order based on the functions
// strategy. All selector functions MUST respect nonce ordering and MUST
// return the same order for the same input. Receiving -1 for howMany must
// return all the transactions in the strategies ordering.
type Func func(entries map[database.AccountID][]Entry, howMany int) []database.Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// byNonce provides sorting support by the transaction nonce value.
type byNonce []Entry

// Len returns the number of transactions in the list.
func (bn byNonce) Len() int {
	return len(bn)
}

// Less helps to sort the list by nonce in ascending order to keep the
// transactions in the right order of processing. Equal nonces fall back to
// arrival order.
func (bn byNonce) Less(i, j int) bool {
	if bn[i].Tx.Nonce == bn[j].Tx.Nonce {
		return bn[i].Arrival < bn[j].Arrival
	}
	return bn[i].Tx.Nonce < bn[j].Tx.Nonce
}

// Swap moves transactions in the order of the nonce value.
func (bn byNonce) Swap(i, j int) {
	bn[i], bn[j] = bn[j], bn[i]
}

// =============================================================================

// byArrival provides sorting support by the order transactions were pooled.
type byArrival []Entry

// Len returns the number of transactions in the list.
func (ba byArrival) Len() int {
	return len(ba)
}

// Less sorts the list with the oldest transaction first.
func (ba byArrival) Less(i, j int) bool {
	return ba[i].Arrival < ba[j].Arrival
}

// Swap moves transactions in the order of arrival.
func (ba byArrival) Swap(i, j int) {
	ba[i], ba[j] = ba[j], ba[i]
}

// =============================================================================

// sortedAccounts returns the accounts in a stable order so selection never
// depends on map iteration.
func sortedAccounts(m map[database.AccountID][]Entry) []database.AccountID {
	accounts := make([]database.AccountID, 0, len(m))
	for account := range m {
		accounts = append(accounts, account)
	}

	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i] < accounts[j]
	})

	return accounts
}

func limit(m map[database.AccountID][]Entry, howMany int) int {
	var total int
	for _, entries := range m {
		total += len(entries)
	}

	if howMany < 0 || howMany > total {
		return total
	}

	return howMany
}
