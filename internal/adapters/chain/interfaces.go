// Package chain holds the on-chain collaborator contracts and the
// submission orchestrator that drives a scored contribution through them.
package chain

import (
	"context"

	"github.com/forgemint/forgemint/internal/attest"
)

// Receipt statuses reported by collaborators.
const (
	ReceiptConfirmed = "confirmed"
	ReceiptReverted  = "reverted"
)

// Receipt is the terminal outcome of one on-chain call.
type Receipt struct {
	TxHash  string
	Status  string
	TokenID string
	Minted  bool
}

// Confirmed reports whether the call reached a successful terminal state.
func (r Receipt) Confirmed() bool { return r.Status == ReceiptConfirmed }

// CommitData carries the contribution facts attached to a minted token.
type CommitData struct {
	Repo      string
	CommitSHA string
	Score     uint64
	URL       string
}

// ReputationRegistry accepts signed score attestations.
type ReputationRegistry interface {
	// SubmitFeedback records a signed feedback attestation. Collaborators
	// enforce replay protection per nonce, so resubmission is safe.
	SubmitFeedback(ctx context.Context, fb attest.Feedback, sig []byte) (Receipt, error)
}

// ValidationRegistry requests validation of a contribution; its receipt
// events report whether a token mint fired as a side effect.
type ValidationRegistry interface {
	RequestValidation(ctx context.Context, repo, commitSHA, contributor, metadataURI string) (Receipt, error)
}

// CommitNFT mints a contribution token directly, bypassing the validation
// registry. Kept for the legacy worker path.
type CommitNFT interface {
	MintCommit(ctx context.Context, to string, data CommitData, metadataURI string) (Receipt, error)
}
