// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/forgemint/forgemint/internal/adapters/chain"
	"github.com/forgemint/forgemint/internal/adapters/ipfs"
	mintqueue "github.com/forgemint/forgemint/internal/adapters/mq/queue"
	workerpool "github.com/forgemint/forgemint/internal/adapters/mq/worker"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	"github.com/forgemint/forgemint/internal/attest"
	"github.com/forgemint/forgemint/internal/domain/dedupe"
	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/internal/domain/scoring"
	"github.com/forgemint/forgemint/internal/domain/webhook"
	"github.com/forgemint/forgemint/pkg/logger"
	"github.com/forgemint/forgemint/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultWorkerCount  = 4
	defaultQueueSize    = 10000
	defaultDedupeSize   = 50000
	defaultScoringLimit = 100
)

// IntakeResult summarizes one webhook delivery.
type IntakeResult struct {
	Received   int      `json:"received"`
	Created    int      `json:"created"`
	Duplicates int      `json:"duplicates"`
	Skipped    int      `json:"skipped"`
	IDs        []string `json:"ids,omitempty"`
}

// ScoredItem is one entry of a scoring batch result.
type ScoredItem struct {
	ID    string `json:"id"`
	Score int    `json:"score"`
}

// BatchResult summarizes a scoring batch run.
type BatchResult struct {
	Count   int          `json:"count"`
	Results []ScoredItem `json:"results"`
}

// AttestationBundle is everything a caller needs to take a scored
// contribution on-chain themselves.
type AttestationBundle struct {
	Feedback     attest.Feedback `json:"feedback"`
	Signature    string          `json:"signature"`
	Evaluator    string          `json:"evaluator"`
	MetadataURI  string          `json:"metadata_uri"`
	MetadataJSON json.RawMessage `json:"metadata_json"`
	ShouldMint   bool            `json:"should_mint"`
}

// Stats is the service's operational snapshot.
type Stats struct {
	Contributions int   `json:"contributions"`
	QueueDepth    int   `json:"queue_depth"`
	DedupeSize    int64 `json:"dedupe_size"`
	Minted        int64 `json:"minted"`
}

// Service wires intake, scoring, attestation, and minting together.
type Service struct {
	mu sync.RWMutex

	// Core components
	store     repository.Store
	users     repository.UserDirectory
	repos     repository.RepoDirectory
	deduper   dedupe.Deduper
	queue     mintqueue.Queue
	engine    *scoring.Engine
	verifier  *webhook.Verifier
	signer    *attest.Signer
	publisher ipfs.Publisher
	nft       chain.CommitNFT
	orch      *chain.Orchestrator

	workerPool *workerpool.Pool

	// Configuration
	workerCount  int
	queueSize    int
	dedupeSize   int
	scoringLimit int

	// State
	started bool

	logger logger.Logger
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:  defaultWorkerCount,
		queueSize:    defaultQueueSize,
		dedupeSize:   defaultDedupeSize,
		scoringLimit: defaultScoringLimit,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes missing components and starts the worker pool.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.verifier == nil {
		return ErrNotConfigured
	}
	if s.signer == nil {
		return ErrNotConfigured
	}

	if s.store == nil {
		s.store = repository.NewMemStore()
	}
	if s.users == nil {
		s.users = repository.NewMemUserDirectory()
	}
	if s.repos == nil {
		s.repos = repository.NewMemRepoDirectory()
	}
	if s.deduper == nil {
		s.deduper = dedupe.NewInMemoryDeduper(
			dedupe.WithMaxSize(s.dedupeSize),
		)
	}
	if s.queue == nil {
		s.queue = mintqueue.NewInMemoryQueue(
			mintqueue.WithCapacity(s.queueSize),
		)
	}
	if s.engine == nil {
		s.engine = scoring.NewEngine()
	}
	if s.publisher == nil {
		s.publisher = ipfs.NewHTTPPublisher()
	}
	if s.nft == nil {
		s.nft = chain.NewMockClient()
	}
	if s.orch == nil {
		mock := chain.NewMockClient()
		s.orch = chain.NewOrchestrator(s.store, s.users, s.repos, s.signer, s.publisher, mock, mock)
	}

	s.workerPool = workerpool.NewPool(
		s.workerCount, s.queue,
		s.store, s.users, s.repos,
		s, s.publisher, s.nft,
	)
	s.workerPool.Start(ctx)

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queue_size", s.queueSize),
		logger.Int("dedupe_size", s.dedupeSize),
	)

	return nil
}

// Stop gracefully shuts down the service.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	s.logger.Info(ctx, "stopping service...")

	if s.workerPool != nil {
		if err := s.workerPool.Shutdown(ctx); err != nil {
			s.logger.Error(ctx, "worker pool shutdown", logger.Error(err))
		}
	}

	s.started = false
	s.logger.Info(ctx, "service stopped")
}

// VerifyWebhook checks a delivery's HMAC signature against the shared
// secret. The raw body must be the exact bytes that were signed.
func (s *Service) VerifyWebhook(body []byte, signatureHeader string) error {
	return s.verifier.Verify(body, signatureHeader)
}

// HandleWebhook ingests one verified delivery. Push deliveries fan out to
// one contribution per commit; merged pull_request closes become a single
// contribution. Unknown event kinds are ignored, not rejected.
func (s *Service) HandleWebhook(ctx context.Context, kind string, body []byte) (IntakeResult, error) {
	event, err := webhook.ParseEvent(kind, body)
	if err != nil {
		if errors.Is(err, webhook.ErrUnknownEvent) {
			s.logger.Debug(ctx, "ignoring event kind", logger.String("kind", kind))
			return IntakeResult{}, nil
		}
		return IntakeResult{}, err
	}

	var res IntakeResult
	switch event.Kind {
	case webhook.KindPush:
		for i := range event.Push.Commits {
			res.Received++
			s.intakeCommit(ctx, event.Push.Repo, &event.Push.Commits[i], &res)
		}
	case webhook.KindPullRequest:
		if !event.PullRequest.MergedClose() {
			s.logger.Debug(ctx, "ignoring pull_request action",
				logger.String("action", event.PullRequest.Action))
			return IntakeResult{}, nil
		}
		res.Received++
		s.intakePullRequest(ctx, event.PullRequest, &res)
	}

	return res, nil
}

func (s *Service) intakeCommit(ctx context.Context, repoRef webhook.RepoRef, commit *webhook.Commit, res *IntakeResult) {
	externalID := repoRef.FullName + ":" + commit.SHA

	user, err := s.users.FindByUsername(ctx, commit.Author.Username)
	if err != nil {
		metrics.RecordContributionSkipped("unknown_user")
		res.Skipped++
		s.logger.Debug(ctx, "skipping commit from unmapped identity",
			logger.String("username", commit.Author.Username),
			logger.String("sha", commit.SHA),
		)
		return
	}

	files := make([]model.FileStat, 0, len(commit.Added)+len(commit.Modified)+len(commit.Removed))
	for _, group := range [][]string{commit.Added, commit.Modified, commit.Removed} {
		for _, path := range group {
			files = append(files, model.FileStat{Path: path})
		}
	}

	title, description := splitMessage(commit.Message)
	s.intake(ctx, externalID, user, repoRef, repository.CreateAttrs{
		Type:        model.TypeCommit,
		UserID:      user.ID,
		Title:       title,
		Description: description,
		URL:         commit.URL,
		Stats: model.CommitStats{
			Additions: commit.Additions,
			Deletions: commit.Deletions,
			Merged:    true, // pushed commits are on a branch already
			Files:     files,
		},
		Metadata: map[string]string{"commit_sha": commit.SHA},
	}, res)
}

func (s *Service) intakePullRequest(ctx context.Context, event *webhook.PullRequestEvent, res *IntakeResult) {
	pr := event.PR
	externalID := fmt.Sprintf("%s!%d", event.Repo.FullName, pr.Number)

	user, err := s.users.FindByUsername(ctx, pr.User.Login)
	if err != nil {
		metrics.RecordContributionSkipped("unknown_user")
		res.Skipped++
		s.logger.Debug(ctx, "skipping pull request from unmapped identity",
			logger.String("username", pr.User.Login),
			logger.Int("number", pr.Number),
		)
		return
	}

	s.intake(ctx, externalID, user, event.Repo, repository.CreateAttrs{
		Type:        model.TypePullRequest,
		UserID:      user.ID,
		Title:       pr.Title,
		Description: pr.Body,
		URL:         pr.URL,
		Stats: model.CommitStats{
			Additions: pr.Additions,
			Deletions: pr.Deletions,
			Merged:    true,
		},
		Metadata: map[string]string{"commit_sha": pr.MergeSHA},
	}, res)
}

// intake runs the shared tail of both paths: dedupe fast path, repo
// resolution, guarded create, mint enqueue.
func (s *Service) intake(ctx context.Context, externalID string, user model.User, repoRef webhook.RepoRef, attrs repository.CreateAttrs, res *IntakeResult) {
	if s.deduper.SeenAndRecord(ctx, externalID) {
		metrics.RecordContributionDuplicate()
		res.Duplicates++
		return
	}

	repo, err := s.repos.FindOrCreate(ctx, model.Repository{
		ExternalID: repoRef.ExternalID.String(),
		Name:       repoRef.Name,
		FullName:   repoRef.FullName,
		Private:    repoRef.Private,
	})
	if err != nil {
		s.deduper.Unrecord(ctx, externalID)
		res.Skipped++
		s.logger.Error(ctx, "resolving repository", logger.Error(err))
		return
	}
	attrs.RepoID = repo.ID

	c, created, err := s.store.CreateIfAbsent(ctx, externalID, attrs)
	if err != nil {
		s.deduper.Unrecord(ctx, externalID)
		res.Skipped++
		s.logger.Error(ctx, "creating contribution", logger.Error(err))
		return
	}
	if !created {
		metrics.RecordContributionDuplicate()
		res.Duplicates++
		return
	}

	metrics.RecordContributionIngested()
	metrics.UpdateContributionCount(s.store.Count(ctx))
	res.Created++
	res.IDs = append(res.IDs, c.ID)

	if !s.queue.Enqueue(ctx, mintqueue.Task{ContributionID: c.ID}) {
		// Not fatal: the contribution stays pending and the scoring
		// batch re-enqueues it once scored eligible.
		reason := "queue full"
		if s.queue.IsClosed() {
			reason = mintqueue.ErrClosed.Error()
		}
		s.logger.Warn(ctx, "mint queue refused task, deferring to scoring batch",
			logger.String("contribution_id", c.ID),
			logger.String("reason", reason))
	}

	s.logger.Info(ctx, "contribution ingested",
		logger.String("contribution_id", c.ID),
		logger.String("external_id", externalID),
		logger.String("user_id", user.ID),
	)
}

// ScoreContribution evaluates one contribution and records the result. The
// score is recomputed and overwritten on every call.
func (s *Service) ScoreContribution(ctx context.Context, id string) (model.Contribution, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return model.Contribution{}, err
	}

	metrics.RecordScoringRun()
	result := s.engine.Evaluate(scoringInput(c))

	eligibility := model.EligibilityIneligible
	if result.Eligible {
		eligibility = model.EligibilityEligible
		metrics.RecordEligible()
	}

	if err := s.store.RecordScore(ctx, c.ID, result.Score, result.Breakdown, eligibility); err != nil {
		metrics.RecordScoringError()
		return model.Contribution{}, fmt.Errorf("record score: %w", err)
	}
	metrics.RecordContributionScored()

	return s.store.Get(ctx, c.ID)
}

// RunScoring scores up to limit unscored pending contributions. Failures
// are isolated per item so one bad contribution never stops the batch.
func (s *Service) RunScoring(ctx context.Context, limit int) (BatchResult, error) {
	if limit <= 0 {
		limit = s.scoringLimit
	}

	unscored, err := s.store.ListUnscored(ctx, limit)
	if err != nil {
		return BatchResult{}, fmt.Errorf("list unscored: %w", err)
	}

	res := BatchResult{Results: make([]ScoredItem, 0, len(unscored))}
	for _, c := range unscored {
		scored, err := s.ScoreContribution(ctx, c.ID)
		if err != nil {
			s.logger.Error(ctx, "scoring contribution",
				logger.String("contribution_id", c.ID),
				logger.Error(err),
			)
			continue
		}
		res.Count++
		res.Results = append(res.Results, ScoredItem{ID: scored.ID, Score: *scored.Score})

		// Re-arm the async mint path: an eligible contribution whose
		// intake-time enqueue was dropped gets a fresh task here.
		if scored.Eligibility == model.EligibilityEligible && scored.Status == model.StatusPending {
			if !s.queue.Enqueue(ctx, mintqueue.Task{ContributionID: scored.ID}) {
				s.logger.Warn(ctx, "mint queue refused scored task",
					logger.String("contribution_id", scored.ID))
			}
		}
	}

	return res, nil
}

// BuildAttestation assembles the signed attestation bundle for a scored
// contribution without touching the chain.
func (s *Service) BuildAttestation(ctx context.Context, id string) (AttestationBundle, error) {
	c, err := s.store.Get(ctx, id)
	if err != nil {
		return AttestationBundle{}, err
	}
	if !c.Scored() {
		return AttestationBundle{}, chain.ErrNotScored
	}

	user, err := s.users.Get(ctx, c.UserID)
	if err != nil {
		return AttestationBundle{}, fmt.Errorf("resolve contributor: %w", err)
	}
	if user.WalletAddress == "" {
		return AttestationBundle{}, chain.ErrWalletUnknown
	}

	repo, err := s.repos.Get(ctx, c.RepoID)
	if err != nil {
		return AttestationBundle{}, fmt.Errorf("resolve repository: %w", err)
	}

	fb := attest.NewFeedback(
		user.WalletAddress,
		repo.FullName,
		c.Metadata["commit_sha"],
		uint64(*c.Score),
		uint64(c.CreatedAt.Unix()),
		attest.NonceFromID(c.ExternalID),
	)

	sig, err := s.signer.Sign(fb)
	if err != nil {
		return AttestationBundle{}, fmt.Errorf("sign attestation: %w", err)
	}
	if err := s.signer.Verify(fb, sig); err != nil {
		return AttestationBundle{}, fmt.Errorf("verify own attestation: %w", err)
	}

	doc := map[string]any{
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
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return AttestationBundle{}, fmt.Errorf("encode metadata document: %w", err)
	}

	uri := c.MetadataURI
	if uri == "" {
		uri, err = s.publisher.Publish(ctx, doc)
		if err != nil {
			return AttestationBundle{}, fmt.Errorf("publish metadata: %w", err)
		}
	}

	return AttestationBundle{
		Feedback:     fb,
		Signature:    "0x" + hex.EncodeToString(sig),
		Evaluator:    s.signer.Evaluator(),
		MetadataURI:  uri,
		MetadataJSON: docJSON,
		ShouldMint:   c.Eligibility == model.EligibilityEligible && c.Status != model.StatusMinted,
	}, nil
}

// Submit runs the on-chain submission pipeline for one contribution.
func (s *Service) Submit(ctx context.Context, id string) (chain.Result, error) {
	return s.orch.Submit(ctx, id)
}

// Get returns one contribution.
func (s *Service) Get(ctx context.Context, id string) (model.Contribution, error) {
	return s.store.Get(ctx, id)
}

// Snapshot returns the service's operational counters. A service that was
// never started has no queue or pool yet and reports zeros.
func (s *Service) Snapshot(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.queue == nil || s.workerPool == nil {
		return Stats{}
	}
	return Stats{
		Contributions: s.store.Count(ctx),
		QueueDepth:    s.queue.Len(ctx),
		DedupeSize:    s.deduper.Size(),
		Minted:        s.workerPool.Processed(),
	}
}

// scoringInput maps a contribution's stored facts to the scorer's input.
func scoringInput(c model.Contribution) scoring.Input {
	files := make([]scoring.File, len(c.Stats.Files))
	for i, f := range c.Stats.Files {
		files[i] = scoring.File{Path: f.Path, Changes: f.Changes}
	}

	message := c.Title
	if c.Description != "" {
		message += "\n\n" + c.Description
	}

	return scoring.Input{
		Message:   message,
		Additions: c.Stats.Additions,
		Deletions: c.Stats.Deletions,
		Files:     files,
		Merged:    c.Stats.Merged,
	}
}

// splitMessage separates a commit message into summary and body.
func splitMessage(message string) (title, description string) {
	parts := strings.SplitN(message, "\n", 2)
	title = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		description = strings.TrimSpace(parts[1])
	}
	return title, description
}
