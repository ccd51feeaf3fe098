// Package repository persists contributions and guards their lifecycle.
//
// The store is the single concurrency-control point of the pipeline: every
// status change names the statuses it may leave from, and a transition whose
// precondition no longer holds fails with ErrConflict instead of silently
// overwriting. Deduplication by external id is enforced here, not by
// callers.
package repository

import (
	"context"

	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/internal/domain/scoring"
)

// CreateAttrs carries the attributes of a contribution at first sight.
type CreateAttrs struct {
	Type        model.ContributionType
	UserID      string
	RepoID      string
	Title       string
	Description string
	URL         string
	Stats       model.CommitStats
	Metadata    map[string]string
}

// Patch names the mutable fields a transition may set. Nil fields are left
// untouched.
type Patch struct {
	Score           *int
	Breakdown       *scoring.Breakdown
	Eligibility     *model.Eligibility
	TxHash          *string
	TokenID         *string
	MetadataURI     *string
	SubmissionPhase *string
}

// Store provides read/write access to contribution state.
type Store interface {
	// CreateIfAbsent creates a contribution keyed by externalID, or returns
	// the existing one. The boolean reports whether a row was created.
	CreateIfAbsent(ctx context.Context, externalID string, attrs CreateAttrs) (model.Contribution, bool, error)

	// Get returns a contribution by internal id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.Contribution, error)

	// GetByExternalID returns a contribution by external id, or ErrNotFound.
	GetByExternalID(ctx context.Context, externalID string) (model.Contribution, error)

	// Transition applies patch and moves to toStatus only if the current
	// status is in fromStatuses; otherwise it fails with ErrConflict.
	Transition(ctx context.Context, id string, fromStatuses []model.Status, toStatus model.Status, patch Patch) (model.Contribution, error)

	// RecordScore stores score, breakdown, and eligibility. Allowed only
	// while status is pending or failed; later passes overwrite.
	RecordScore(ctx context.Context, id string, score int, breakdown scoring.Breakdown, eligibility model.Eligibility) error

	// RecordPhase persists the last confirmed on-chain submission phase.
	RecordPhase(ctx context.Context, id, phase string) error

	// RecordMintSuccess moves minting -> minted and sets the on-chain
	// linkage exactly once.
	RecordMintSuccess(ctx context.Context, id, txHash, tokenID, metadataURI string) error

	// RecordMintFailure moves minting -> failed.
	RecordMintFailure(ctx context.Context, id string) error

	// ListUnscored returns up to limit contributions that are pending and
	// carry no score yet, oldest first.
	ListUnscored(ctx context.Context, limit int) ([]model.Contribution, error)

	// Count returns the number of contributions tracked.
	Count(ctx context.Context) int
}

// UserDirectory resolves source usernames to known users. Managed outside
// this core; consumed during intake and submission.
type UserDirectory interface {
	// FindByUsername returns the user mapped to a source username, or
	// ErrNotFound when the identity is unmapped.
	FindByUsername(ctx context.Context, username string) (model.User, error)

	// Get returns a user by internal id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.User, error)
}

// RepoDirectory resolves source repositories, creating them on first sight.
type RepoDirectory interface {
	// FindOrCreate returns the repository for an external id, creating it
	// if unknown.
	FindOrCreate(ctx context.Context, ref model.Repository) (model.Repository, error)

	// Get returns a repository by internal id, or ErrNotFound.
	Get(ctx context.Context, id string) (model.Repository, error)
}
