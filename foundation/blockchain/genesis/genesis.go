// Package genesis maintains access to the genesis file.
package genesis

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Genesis represents the genesis file. The chain id is a unique id for this
// running instance, the difficulty is the number of leading zeros a work
// solution needs and the delegates are the ordered producer schedule for
// the delegate variant.
type Genesis struct {
	Date        time.Time         `json:"date" validate:"required"`
	ChainID     uint16            `json:"chain_id" validate:"required"`
	Consensus   string            `json:"consensus" validate:"required,oneof=pow poa"`
	Difficulty  uint              `json:"difficulty" validate:"lte=16"`
	TxsPerBlock uint16            `json:"txs_per_block" validate:"required"`
	Delegates   []string          `json:"delegates" validate:"required_if=Consensus poa,dive,eth_addr"`
	Balances    map[string]uint64 `json:"balances" validate:"dive,keys,eth_addr,endkeys"`
}

// Default returns a genesis useful for tests and local development.
func Default() Genesis {
	return Genesis{
		Date:        time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:     1,
		Consensus:   "pow",
		Difficulty:  1,
		TxsPerBlock: 10,
		Balances:    map[string]uint64{},
	}
}

// Load opens, consumes and validates the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Validate checks the genesis values are usable.
func (g Genesis) Validate() error {
	if err := validate.Struct(g); err != nil {
		verrs, ok := err.(validator.ValidationErrors)
		if !ok {
			return err
		}

		fields := make([]string, len(verrs))
		for i, verr := range verrs {
			fields[i] = fmt.Sprintf("%s[%s]", verr.Namespace(), verr.Tag())
		}

		return fmt.Errorf("invalid genesis: %s", strings.Join(fields, ", "))
	}

	return nil
}

// validate holds the settings and caches for validating genesis values.
var validate = validator.New()
