package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/forgemint/forgemint/internal/adapters/ipfs"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	"github.com/forgemint/forgemint/internal/attest"
	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/pkg/logger"
	"github.com/forgemint/forgemint/pkg/metrics"
)

// Submission phases, persisted per contribution after confirmation. A
// re-invoked submission resumes after the last phase on record.
const (
	PhaseFeedback   = "phase_feedback"
	PhaseValidation = "phase_validation"
	PhaseReconcile  = "phase_reconcile"
)

// Result is the outcome of a completed submission.
type Result struct {
	TxHash  string       `json:"tx_hash"`
	TokenID string       `json:"token_id"`
	Phase   string       `json:"phase"`
	Status  model.Status `json:"status"`
}

// Orchestrator drives a scored contribution through the on-chain phases:
// feedback, then validation, then reconciliation of local state with the
// validation receipt. Every precondition is checked before anything is sent.
type Orchestrator struct {
	store      repository.Store
	users      repository.UserDirectory
	repos      repository.RepoDirectory
	signer     *attest.Signer
	publisher  ipfs.Publisher
	reputation ReputationRegistry
	validation ValidationRegistry

	inflight    sync.Map
	activeCount atomic.Int64
	logger      logger.Logger
}

// NewOrchestrator creates the submission orchestrator.
func NewOrchestrator(
	store repository.Store,
	users repository.UserDirectory,
	repos repository.RepoDirectory,
	signer *attest.Signer,
	publisher ipfs.Publisher,
	reputation ReputationRegistry,
	validation ValidationRegistry,
) *Orchestrator {
	return &Orchestrator{
		store:      store,
		users:      users,
		repos:      repos,
		signer:     signer,
		publisher:  publisher,
		reputation: reputation,
		validation: validation,
		logger:     logger.Get().Named("orchestrator"),
	}
}

// Submit runs the submission pipeline for one contribution. Concurrent
// submissions for the same contribution are rejected with
// ErrSubmissionInFlight; a minted contribution returns its recorded result
// without touching the chain. On rejection or error at any phase the
// contribution keeps its prior status; only the reconcile phase moves it.
func (o *Orchestrator) Submit(ctx context.Context, id string) (Result, error) {
	if _, loaded := o.inflight.LoadOrStore(id, struct{}{}); loaded {
		return Result{}, ErrSubmissionInFlight
	}
	defer o.inflight.Delete(id)

	o.activeCount.Inc()
	defer o.activeCount.Dec()

	c, err := o.store.Get(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("load contribution: %w", err)
	}

	if c.Status == model.StatusMinted {
		return resultOf(c), nil
	}

	fb, sig, err := o.prepare(ctx, c)
	if err != nil {
		return Result{}, err
	}

	c, err = o.runPhases(ctx, c, fb, sig)
	if err != nil {
		return Result{}, err
	}

	return resultOf(c), nil
}

// Active returns the number of submissions currently running.
func (o *Orchestrator) Active() int64 { return o.activeCount.Load() }

// prepare validates preconditions and builds the signed attestation. Nothing
// leaves the process if any check fails.
func (o *Orchestrator) prepare(ctx context.Context, c model.Contribution) (attest.Feedback, []byte, error) {
	user, err := o.users.Get(ctx, c.UserID)
	if err != nil {
		return attest.Feedback{}, nil, fmt.Errorf("resolve contributor: %w", err)
	}
	if user.WalletAddress == "" {
		return attest.Feedback{}, nil, ErrWalletUnknown
	}

	if !c.Scored() {
		return attest.Feedback{}, nil, ErrNotScored
	}
	if c.Eligibility != model.EligibilityEligible {
		return attest.Feedback{}, nil, ErrNotEligible
	}

	repo, err := o.repos.Get(ctx, c.RepoID)
	if err != nil {
		return attest.Feedback{}, nil, fmt.Errorf("resolve repository: %w", err)
	}

	fb := attest.NewFeedback(
		user.WalletAddress,
		repo.FullName,
		commitSHAOf(c),
		uint64(*c.Score),
		uint64(c.CreatedAt.Unix()),
		attest.NonceFromID(c.ExternalID),
	)

	sig, err := o.signer.Sign(fb)
	if err != nil {
		return attest.Feedback{}, nil, fmt.Errorf("sign attestation: %w", err)
	}
	if err := o.signer.Verify(fb, sig); err != nil {
		return attest.Feedback{}, nil, fmt.Errorf("verify own attestation: %w", err)
	}

	return fb, sig, nil
}

// runPhases executes the remaining phases after the last confirmed one.
func (o *Orchestrator) runPhases(ctx context.Context, c model.Contribution, fb attest.Feedback, sig []byte) (model.Contribution, error) {
	if c.SubmissionPhase == "" {
		if err := o.phaseFeedback(ctx, &c, fb, sig); err != nil {
			return c, err
		}
	}

	if c.SubmissionPhase == PhaseFeedback {
		if err := o.phaseValidation(ctx, &c, fb); err != nil {
			return c, err
		}
	}

	if c.SubmissionPhase == PhaseValidation {
		if err := o.phaseReconcile(ctx, &c); err != nil {
			return c, err
		}
	}

	return c, nil
}

func (o *Orchestrator) phaseFeedback(ctx context.Context, c *model.Contribution, fb attest.Feedback, sig []byte) error {
	start := time.Now()
	receipt, err := o.reputation.SubmitFeedback(ctx, fb, sig)
	metrics.RecordSubmissionLatency(PhaseFeedback, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordSubmissionPhaseFailure(PhaseFeedback)
		return &PhaseError{Phase: PhaseFeedback, Err: err}
	}
	if !receipt.Confirmed() {
		metrics.RecordSubmissionPhaseFailure(PhaseFeedback)
		return &PhaseError{Phase: PhaseFeedback, Err: ErrReverted}
	}

	if err := o.store.RecordPhase(ctx, c.ID, PhaseFeedback); err != nil {
		return &PhaseError{Phase: PhaseFeedback, Err: err}
	}
	c.SubmissionPhase = PhaseFeedback
	metrics.RecordSubmissionPhase(PhaseFeedback)
	o.logger.Info(ctx, "feedback confirmed",
		logger.String("contribution_id", c.ID),
		logger.String("tx_hash", receipt.TxHash),
	)
	return nil
}

func (o *Orchestrator) phaseValidation(ctx context.Context, c *model.Contribution, fb attest.Feedback) error {
	uri := c.MetadataURI
	if uri == "" {
		var err error
		uri, err = o.publisher.Publish(ctx, metadataDoc(fb, *c))
		if err != nil {
			metrics.RecordSubmissionPhaseFailure(PhaseValidation)
			return &PhaseError{Phase: PhaseValidation, Err: err}
		}
	}

	start := time.Now()
	receipt, err := o.validation.RequestValidation(ctx, fb.Repo, fb.CommitSHA, fb.Contributor, uri)
	metrics.RecordSubmissionLatency(PhaseValidation, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordSubmissionPhaseFailure(PhaseValidation)
		return &PhaseError{Phase: PhaseValidation, Err: err}
	}
	if !receipt.Confirmed() {
		metrics.RecordSubmissionPhaseFailure(PhaseValidation)
		return &PhaseError{Phase: PhaseValidation, Err: ErrReverted}
	}
	if !receipt.Minted {
		metrics.RecordSubmissionPhaseFailure(PhaseValidation)
		return &PhaseError{Phase: PhaseValidation, Err: ErrMintNotFired}
	}

	// Persist the receipt alongside the phase so a resumed run can
	// reconcile without rerunning validation. The status is untouched
	// until reconcile, so the guard names the current one.
	phase := PhaseValidation
	updated, err := o.store.Transition(ctx, c.ID,
		[]model.Status{c.Status}, c.Status,
		repository.Patch{
			TxHash:          &receipt.TxHash,
			TokenID:         &receipt.TokenID,
			MetadataURI:     &uri,
			SubmissionPhase: &phase,
		})
	if err != nil {
		return &PhaseError{Phase: PhaseValidation, Err: err}
	}
	*c = updated
	metrics.RecordSubmissionPhase(PhaseValidation)
	o.logger.Info(ctx, "validation confirmed",
		logger.String("contribution_id", c.ID),
		logger.String("tx_hash", receipt.TxHash),
		logger.String("token_id", receipt.TokenID),
	)
	return nil
}

// phaseReconcile is the only phase that moves status, walking the guarded
// pending|failed -> minting -> minted chain in one pass.
func (o *Orchestrator) phaseReconcile(ctx context.Context, c *model.Contribution) error {
	prior := c.Status
	if prior != model.StatusMinting {
		if _, err := o.store.Transition(ctx, c.ID,
			[]model.Status{model.StatusPending, model.StatusFailed},
			model.StatusMinting, repository.Patch{}); err != nil {
			metrics.RecordSubmissionPhaseFailure(PhaseReconcile)
			return &PhaseError{Phase: PhaseReconcile, Err: err}
		}
	}

	if err := o.store.RecordMintSuccess(ctx, c.ID, c.TxHash, c.TokenID, c.MetadataURI); err != nil {
		metrics.RecordSubmissionPhaseFailure(PhaseReconcile)
		if prior != model.StatusMinting {
			if _, rerr := o.store.Transition(ctx, c.ID,
				[]model.Status{model.StatusMinting}, prior, repository.Patch{}); rerr != nil {
				o.logger.Error(ctx, "restoring status after reconcile failure",
					logger.String("contribution_id", c.ID), logger.Error(rerr))
			}
		}
		return &PhaseError{Phase: PhaseReconcile, Err: err}
	}
	if err := o.store.RecordPhase(ctx, c.ID, PhaseReconcile); err != nil {
		return &PhaseError{Phase: PhaseReconcile, Err: err}
	}

	updated, err := o.store.Get(ctx, c.ID)
	if err != nil {
		return &PhaseError{Phase: PhaseReconcile, Err: err}
	}
	*c = updated
	metrics.RecordSubmissionPhase(PhaseReconcile)
	return nil
}

func resultOf(c model.Contribution) Result {
	return Result{
		TxHash:  c.TxHash,
		TokenID: c.TokenID,
		Phase:   c.SubmissionPhase,
		Status:  c.Status,
	}
}

// commitSHAOf extracts the commit sha recorded at intake, falling back to
// the external id for non-commit contributions.
func commitSHAOf(c model.Contribution) string {
	if sha, ok := c.Metadata["commit_sha"]; ok && sha != "" {
		return sha
	}
	return c.ExternalID
}

// metadataDoc is the content-addressed attestation document.
func metadataDoc(fb attest.Feedback, c model.Contribution) map[string]any {
	return map[string]any{
		"contributor":   fb.Contributor,
		"repo":          fb.Repo,
		"commit_sha":    fb.CommitSHA,
		"score":         fb.Score,
		"feedback_hash": "0x" + hex.EncodeToString(fb.FeedbackHash[:]),
		"timestamp":     fb.Timestamp,
		"nonce":         fb.Nonce,
		"title":         c.Title,
		"url":           c.URL,
		"type":          c.Type,
	}
}
