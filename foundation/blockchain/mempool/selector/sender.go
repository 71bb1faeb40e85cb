package selector

import (
	"sort"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
)

// senderSelect returns transactions one account at a time so a single busy
// account can't fill a block, while respecting the nonce for each account.
var senderSelect = func(m map[database.AccountID][]Entry, howMany int) []database.Tx {
	howMany = limit(m, howMany)

	/*
		Bill: {Nonce: 2}, {Nonce: 1}
		Pavl: {Nonce: 2}, {Nonce: 1}
		Edua: {Nonce: 1}
	*/

	// Sort the transactions per account by nonce.
	accounts := sortedAccounts(m)
	queues := make(map[database.AccountID][]Entry, len(m))
	for _, account := range accounts {
		queue := make([]Entry, len(m[account]))
		copy(queue, m[account])
		sort.Sort(byNonce(queue))
		queues[account] = queue
	}

	// Pick the first transaction in the queue for each account. Each
	// iteration represents a new row of selections. Keep doing that until
	// all the transactions have been selected.
	var rows [][]Entry
	for {
		var row []Entry
		for _, account := range accounts {
			if len(queues[account]) > 0 {
				row = append(row, queues[account][0])
				queues[account] = queues[account][1:]
			}
		}
		if row == nil {
			break
		}
		rows = append(rows, row)
	}

	/*
		0: Bill: {Nonce: 1}
		0: Edua: {Nonce: 1}
		0: Pavl: {Nonce: 1}
		1: Bill: {Nonce: 2}
		1: Pavl: {Nonce: 2}
	*/

	// Inside a row that can't be taken whole, the oldest transactions win.
	final := make([]database.Tx, 0, howMany)
done:
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) > need {
			sort.Stable(byArrival(row))
			for _, entry := range row[:need] {
				final = append(final, entry.Tx)
			}
			break done
		}
		for _, entry := range row {
			final = append(final, entry.Tx)
		}
	}

	return final
}
