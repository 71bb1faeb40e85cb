package execution

import (
	"errors"
	"fmt"
)

// Set of error variables for block execution.
var (
	ErrMissingParentState = errors.New("parent state is not available")
	ErrParentAdvanced     = errors.New("parent state has already advanced")
	ErrParentMismatch     = errors.New("block doesn't extend the parent")
	ErrStateMismatch      = errors.New("storage digest doesn't match header")
	ErrReceiptMismatch    = errors.New("receipt root doesn't match header")
	ErrBusy               = errors.New("another block execution is in flight")
)

// Kind classifies why a block was rejected.
type Kind int

// Set of rejection kinds.
const (
	KindConsensus Kind = iota + 1
	KindSequencing
	KindVerification
	KindContention
)

// String implements the fmt.Stringer interface.
func (k Kind) String() string {
	switch k {
	case KindConsensus:
		return "consensus"
	case KindSequencing:
		return "sequencing"
	case KindVerification:
		return "verification"
	case KindContention:
		return "contention"
	}

	return "unknown"
}

// RejectError is returned for every block that ends in the Rejected stage.
type RejectError struct {
	Kind   Kind
	Number uint64
	Err    error
}

// Error implements the error interface.
func (re *RejectError) Error() string {
	return fmt.Sprintf("blk[%d] rejected: %s: %s", re.Number, re.Kind, re.Err)
}

// Unwrap provides support for errors.Is and errors.As.
func (re *RejectError) Unwrap() error {
	return re.Err
}

// IsKind checks if the error is a rejection of the specified kind.
func IsKind(err error, kind Kind) bool {
	var re *RejectError
	if !errors.As(err, &re) {
		return false
	}

	return re.Kind == kind
}

// NewRejectError classifies an error found while handling the block.
func NewRejectError(kind Kind, number uint64, err error) error {
	return &RejectError{Kind: kind, Number: number, Err: err}
}

func reject(kind Kind, number uint64, err error) error {
	return &RejectError{Kind: kind, Number: number, Err: err}
}
