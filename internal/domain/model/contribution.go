// Package model contains domain models passed between layers.
package model

import (
	"time"

	"github.com/forgemint/forgemint/internal/domain/scoring"
)

// ContributionType classifies the source activity.
type ContributionType string

// Recognized contribution types.
const (
	TypeCommit      ContributionType = "commit"
	TypePullRequest ContributionType = "pull_request"
	TypeIssue       ContributionType = "issue"
)

// Status tracks a contribution through the minting lifecycle.
// Transitions only advance: pending -> minting -> {minted | failed};
// failed may re-enter minting on retry, minted is terminal.
type Status string

// Lifecycle states.
const (
	StatusPending Status = "pending"
	StatusMinting Status = "minting"
	StatusMinted  Status = "minted"
	StatusFailed  Status = "failed"
)

// Eligibility reflects whether the latest score clears the mint threshold.
type Eligibility string

// Eligibility values.
const (
	EligibilityUnscored   Eligibility = "unscored"
	EligibilityEligible   Eligibility = "eligible"
	EligibilityIneligible Eligibility = "ineligible"
)

// CommitStats holds the source-system facts used by the quality scorer.
type CommitStats struct {
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Merged    bool       `json:"merged"`
	Files     []FileStat `json:"files"`
}

// FileStat describes one changed file in a contribution.
type FileStat struct {
	Path    string `json:"path"`
	Changes int    `json:"changes"`
}

// Contribution is the central entity: one ingested unit of developer
// activity tracked through scoring and minting.
type Contribution struct {
	ID         string           `json:"id"`
	ExternalID string           `json:"external_id"` // unique across all contributions
	Type       ContributionType `json:"type"`
	UserID     string           `json:"user_id"`
	RepoID     string           `json:"repo_id"`

	Title       string            `json:"title"`
	Description string            `json:"description"`
	URL         string            `json:"url"`
	Stats       CommitStats       `json:"stats"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	Score       *int               `json:"score,omitempty"` // nil until scored
	Breakdown   *scoring.Breakdown `json:"breakdown,omitempty"`
	Eligibility Eligibility        `json:"eligibility"`

	Status          Status `json:"status"`
	TxHash          string `json:"tx_hash,omitempty"`
	TokenID         string `json:"token_id,omitempty"`
	MetadataURI     string `json:"metadata_uri,omitempty"`
	SubmissionPhase string `json:"submission_phase,omitempty"` // last confirmed orchestrator phase

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scored reports whether a scoring pass has run.
func (c *Contribution) Scored() bool { return c.Score != nil }

// User is an external identity mapped to an internal id. WalletAddress is
// required before an on-chain attestation can name a recipient.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// Repository references the source repository of a contribution.
type Repository struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Name       string `json:"name"`
	FullName   string `json:"full_name"`
	Private    bool   `json:"private"`
}
