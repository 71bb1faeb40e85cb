package genesis_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ardanlabs/blockengine/foundation/blockchain/genesis"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func Test_Load(t *testing.T) {
	type table struct {
		name    string
		content string
		valid   bool
	}

	tt := []table{
		{
			name:    "pow",
			content: `{"date":"2026-01-01T00:00:00Z","chain_id":1,"consensus":"pow","difficulty":2,"txs_per_block":10,"balances":{"0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4":1000}}`,
			valid:   true,
		},
		{
			name:    "poa",
			content: `{"date":"2026-01-01T00:00:00Z","chain_id":1,"consensus":"poa","txs_per_block":10,"delegates":["0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4","0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"]}`,
			valid:   true,
		},
		{
			name:    "nodelegates",
			content: `{"date":"2026-01-01T00:00:00Z","chain_id":1,"consensus":"poa","txs_per_block":10}`,
			valid:   false,
		},
		{
			name:    "badconsensus",
			content: `{"date":"2026-01-01T00:00:00Z","chain_id":1,"consensus":"pos","txs_per_block":10}`,
			valid:   false,
		},
		{
			name:    "badbalance",
			content: `{"date":"2026-01-01T00:00:00Z","chain_id":1,"consensus":"pow","txs_per_block":10,"balances":{"bill":10}}`,
			valid:   false,
		},
		{
			name:    "notjson",
			content: `{`,
			valid:   false,
		},
	}

	t.Log("Given the need to load a genesis file.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				t.Logf("\tTest %d:\tWhen loading the %s genesis.", testID, tst.name)
				{
					path := filepath.Join(t.TempDir(), "genesis.json")
					if err := os.WriteFile(path, []byte(tst.content), 0600); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to write the file: %v", failed, testID, err)
					}

					_, err := genesis.Load(path)
					if (err == nil) != tst.valid {
						t.Fatalf("\t%s\tTest %d:\tShould get the expected result, got %v.", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould get the expected result.", success, testID)
				}
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Default(t *testing.T) {
	if err := genesis.Default().Validate(); err != nil {
		t.Fatalf("Should have a valid default genesis: %v", err)
	}
}
