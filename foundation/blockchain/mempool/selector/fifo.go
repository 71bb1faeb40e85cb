package selector

import (
	"sort"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
)

// fifoSelect returns transactions in the order they arrived. When an account
// has more than one transaction pooled, its transactions keep the positions
// the account holds in arrival order but are reordered by nonce inside them.
var fifoSelect = func(m map[database.AccountID][]Entry, howMany int) []database.Tx {
	howMany = limit(m, howMany)

	/*
		Arrival: 1: Bill  {Nonce: 2}
		         2: Pavel {Nonce: 1}
		         3: Bill  {Nonce: 1}
	*/

	var all []Entry
	for _, account := range sortedAccounts(m) {
		all = append(all, m[account]...)
	}
	sort.Stable(byArrival(all))

	// Sort the transactions per account by nonce.
	queues := make(map[database.AccountID][]Entry, len(m))
	for account, entries := range m {
		queue := make([]Entry, len(entries))
		copy(queue, entries)
		sort.Sort(byNonce(queue))
		queues[account] = queue
	}

	/*
		Slots:   1: Bill  -> {Nonce: 1}
		         2: Pavel -> {Nonce: 1}
		         3: Bill  -> {Nonce: 2}
	*/

	final := make([]database.Tx, 0, howMany)
	for _, slot := range all {
		if len(final) == howMany {
			break
		}

		queue := queues[slot.From]
		final = append(final, queue[0].Tx)
		queues[slot.From] = queue[1:]
	}

	return final
}
