package consensus

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
	"github.com/ardanlabs/blockengine/foundation/blockchain/signature"
)

// POA is the delegate based variant. Each block number is a slot that is
// owned by exactly one delegate from an ordered schedule and the block must
// carry that delegate's signature.
type POA struct {
	delegates []database.AccountID
	evHandler EventHandler
}

// NewPOA constructs a delegate based variant.
func NewPOA(cfg Config) (*POA, error) {
	if len(cfg.Delegates) == 0 {
		return nil, errors.New("delegate schedule is empty")
	}

	for _, d := range cfg.Delegates {
		if !d.IsAccountID() {
			return nil, fmt.Errorf("delegate %q: %w", d, database.ErrInvalidAccount)
		}
	}

	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	delegates := make([]database.AccountID, len(cfg.Delegates))
	copy(delegates, cfg.Delegates)

	return &POA{
		delegates: delegates,
		evHandler: ev,
	}, nil
}

// Name returns the name of the variant.
func (p *POA) Name() string {
	return NamePOA
}

// Producer returns the delegate scheduled to produce the block number.
func (p *POA) Producer(number uint64) database.AccountID {
	return p.delegates[number%uint64(len(p.delegates))]
}

// ValidateBlock checks the block was produced and signed by the delegate
// scheduled for its slot.
func (p *POA) ValidateBlock(header database.BlockHeader, state ChainState) error {
	scheduled := p.Producer(header.Number)

	if !sameAccount(header.Producer, scheduled) {
		return fmt.Errorf("%w: got %s, exp %s", ErrWrongProducer, header.Producer, scheduled)
	}

	if len(header.Signature) == 0 {
		return fmt.Errorf("%w: missing signature", ErrInvalidSeal)
	}

	signer, err := signature.FromAddress(header.Hash(), header.Signature)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSeal, err)
	}

	if !sameAccount(database.AccountID(signer), scheduled) {
		return fmt.Errorf("%w: signed by %s, exp %s", ErrInvalidSeal, signer, scheduled)
	}

	return nil
}

// IsEligibleProducer reports if the identity owns the slot for the number.
func (p *POA) IsEligibleProducer(number uint64, id Identity) bool {
	if id == nil {
		return false
	}

	return sameAccount(id.Account(), p.Producer(number))
}

// Seal signs the header with the identity if it owns the header's slot.
func (p *POA) Seal(ctx context.Context, header *database.BlockHeader, id Identity) error {
	if !p.IsEligibleProducer(header.Number, id) {
		return fmt.Errorf("%w: blk[%d]", ErrNotEligible, header.Number)
	}

	header.Producer = id.Account()
	header.Difficulty = 0
	header.Nonce = 0

	sig, err := id.Sign(header.Hash())
	if err != nil {
		return err
	}
	header.Signature = sig

	p.evHandler("consensus: poa: Seal: blk[%d]: producer[%s]", header.Number, header.Producer)

	return nil
}

// sameAccount compares accounts ignoring the hex checksum casing.
func sameAccount(a, b database.AccountID) bool {
	return strings.EqualFold(string(a), string(b))
}
