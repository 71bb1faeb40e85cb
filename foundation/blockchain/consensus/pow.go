package consensus

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ardanlabs/blockengine/foundation/blockchain/database"
)

// POW is the work based variant. A block is valid when its hash carries the
// configured number of leading zeros and anyone is allowed to produce.
type POW struct {
	difficulty uint
	evHandler  EventHandler
}

// NewPOW constructs a work based variant.
func NewPOW(cfg Config) *POW {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	return &POW{
		difficulty: cfg.Difficulty,
		evHandler:  ev,
	}
}

// Name returns the name of the variant.
func (p *POW) Name() string {
	return NamePOW
}

// ValidateBlock checks the block's difficulty and that its hash is solved.
func (p *POW) ValidateBlock(header database.BlockHeader, state ChainState) error {
	if header.Difficulty < p.difficulty {
		return fmt.Errorf("%w: got %d, exp %d", ErrDifficulty, header.Difficulty, p.difficulty)
	}

	if header.Difficulty < state.Parent.Difficulty {
		return fmt.Errorf("%w: parent %d, block %d", ErrDifficulty, state.Parent.Difficulty, header.Difficulty)
	}

	hash := header.Hash()
	if !isHashSolved(header.Difficulty, hash) {
		return fmt.Errorf("%w: %s", ErrUnsolved, hash)
	}

	return nil
}

// IsEligibleProducer always reports true since any node with an identity
// can compete to solve a block.
func (p *POW) IsEligibleProducer(number uint64, id Identity) bool {
	return id != nil
}

// Seal does the work of mining to find a nonce that solves the hash for
// the header. Pointer semantics are being used since a nonce is being
// discovered.
func (p *POW) Seal(ctx context.Context, header *database.BlockHeader, id Identity) error {
	p.evHandler("consensus: pow: Seal: MINING: started: blk[%d]", header.Number)
	defer p.evHandler("consensus: pow: Seal: MINING: completed: blk[%d]", header.Number)

	header.Producer = id.Account()
	header.Difficulty = p.difficulty

	// Choose a random starting point for the nonce. After this, the nonce
	// will be incremented by 1 until a solution is found.
	nBig, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	if err != nil {
		return err
	}
	header.Nonce = nBig.Uint64()

	var attempts uint64
	for {
		attempts++
		if attempts%1_000_000 == 0 {
			p.evHandler("consensus: pow: Seal: MINING: attempts[%d]", attempts)
		}

		if err := ctx.Err(); err != nil {
			p.evHandler("consensus: pow: Seal: MINING: CANCELLED")
			return err
		}

		hash := header.Hash()
		if !isHashSolved(header.Difficulty, hash) {
			header.Nonce++
			continue
		}

		p.evHandler("consensus: pow: Seal: MINING: SOLVED: blk[%s]: attempts[%d]", hash, attempts)
		return nil
	}
}

// isHashSolved checks the hash to make sure it complies with the work
// rules. We need to match a difficulty number of 0's.
func isHashSolved(difficulty uint, hash string) bool {
	const match = "0000000000000000"

	hash = strings.TrimPrefix(hash, "0x")
	if len(hash) != 64 || difficulty > uint(len(match)) {
		return false
	}

	return hash[:difficulty] == match[:difficulty]
}
