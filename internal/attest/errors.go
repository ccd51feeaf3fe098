package attest

import "errors"

// Sentinel kinds for attestation errors.
var (
	ErrInvalidKey     = errors.New("invalid evaluator key")
	ErrInvalidAddress = errors.New("invalid address")
	ErrSignerMismatch = errors.New("recovered signer does not match evaluator")
)
