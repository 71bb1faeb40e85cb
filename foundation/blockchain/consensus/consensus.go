// Package consensus defines the seam through which a consensus variant adds
// block validity and producer eligibility rules on top of the generic
// execution pipeline. A work based and a delegate based variant are provided.
package consensus

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
)

// Set of error variables for consensus validation.
var (
	ErrUnknownVariant = errors.New("unknown consensus variant")
	ErrNotEligible    = errors.New("not the eligible producer")
	ErrUnsolved       = errors.New("block hash doesn't meet the difficulty")
	ErrDifficulty     = errors.New("block difficulty is too low")
	ErrWrongProducer  = errors.New("block producer isn't scheduled for this slot")
	ErrInvalidSeal    = errors.New("block seal is invalid")
)

// Variant names accepted by New.
const (
	NamePOW = "pow"
	NamePOA = "poa"
)

// EventHandler defines a function that is called when events occur in the
// processing of consensus rules.
type EventHandler func(v string, args ...any)

// Identity supplies the local node's key material. The consensus code never
// generates or stores keys itself.
type Identity interface {
	Account() database.AccountID
	Sign(hash string) ([]byte, error)
}

// ChainState provides the context a variant can use when validating a block.
type ChainState struct {
	Parent database.BlockHeader
}

// Variant is the behavior a consensus variant provides. ValidateBlock runs
// before any storage is touched. Seal finalizes a header that already
// carries its storage digest and receipt root.
type Variant interface {
	Name() string
	ValidateBlock(header database.BlockHeader, state ChainState) error
	IsEligibleProducer(number uint64, id Identity) bool
	Seal(ctx context.Context, header *database.BlockHeader, id Identity) error
}

// Config represents the settings used to construct a variant.
type Config struct {
	Difficulty uint
	Delegates  []database.AccountID
	EvHandler  EventHandler
}

// New constructs the named consensus variant.
func New(name string, cfg Config) (Variant, error) {
	if cfg.EvHandler == nil {
		cfg.EvHandler = func(v string, args ...any) {}
	}

	switch name {
	case NamePOW:
		return NewPOW(cfg), nil

	case NamePOA:
		return NewPOA(cfg)
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
}
