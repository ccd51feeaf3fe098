package chain

import (
	"errors"
	"fmt"
)

// Error variables for chain operations.
var (
	// ErrWalletUnknown is returned when the recipient has no wallet address.
	ErrWalletUnknown = errors.New("contributor wallet address unknown")

	// ErrNotScored is returned when submission is attempted before scoring.
	ErrNotScored = errors.New("contribution has no score")

	// ErrNotEligible is returned when the latest score is below the mint
	// threshold.
	ErrNotEligible = errors.New("contribution not eligible for minting")

	// ErrReverted is returned when a collaborator call reached a reverted
	// terminal state.
	ErrReverted = errors.New("transaction reverted")

	// ErrMintNotFired is returned when the validation receipt confirmed but
	// its events carried no mint.
	ErrMintNotFired = errors.New("validation confirmed without mint event")

	// ErrSubmissionInFlight is returned when a submission for the same
	// contribution is already running.
	ErrSubmissionInFlight = errors.New("submission already in flight")
)

// PhaseError wraps a failure with the phase that produced it, so callers
// know where a resumed run will pick up.
type PhaseError struct {
	Phase string
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("submission phase %s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }
