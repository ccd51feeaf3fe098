// Package worker consumes mint tasks and drives the direct mint path.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"go.uber.org/atomic"

	"github.com/forgemint/forgemint/internal/adapters/chain"
	"github.com/forgemint/forgemint/internal/adapters/ipfs"
	"github.com/forgemint/forgemint/internal/adapters/mq/queue"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/pkg/logger"
	"github.com/forgemint/forgemint/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount    = 4
	workerShutdownTimeout = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Scorer scores a contribution on demand. Tasks often arrive before the
// scoring batch has run; the worker never mints an unscored contribution.
type Scorer interface {
	ScoreContribution(ctx context.Context, id string) (model.Contribution, error)
}

// Queue defines how workers receive tasks.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Task
}

// Worker processes mint tasks until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown gracefully stops the worker.
	Shutdown(ctx context.Context) error
}

// MintWorker implements Worker for the direct mint path.
type MintWorker struct {
	queue     Queue
	store     repository.Store
	users     repository.UserDirectory
	repos     repository.RepoDirectory
	scorer    Scorer
	publisher ipfs.Publisher
	nft       chain.CommitNFT
	name      string

	processed atomic.Int64
	failed    atomic.Int64

	// Shutdown control
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewMintWorker creates a new worker with configuration options.
func NewMintWorker(
	q Queue,
	store repository.Store,
	users repository.UserDirectory,
	repos repository.RepoDirectory,
	scorer Scorer,
	publisher ipfs.Publisher,
	nft chain.CommitNFT,
	opts ...Option,
) *MintWorker {
	w := &MintWorker{
		queue:     q,
		store:     store,
		users:     users,
		repos:     repos,
		scorer:    scorer,
		publisher: publisher,
		nft:       nft,
		name:      "worker",
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *MintWorker) Run(ctx context.Context) {
	defer close(w.done)

	taskChan := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case task, ok := <-taskChan:
			if !ok {
				return
			}

			if err := w.processTask(ctx, task); err != nil {
				w.logger.Error(ctx, "mint task failed",
					logger.String("contribution_id", task.ContributionID),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *MintWorker) Shutdown(ctx context.Context) error {
	close(w.shutdown)

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Processed returns how many tasks this worker completed successfully.
func (w *MintWorker) Processed() int64 { return w.processed.Load() }

// Failed returns how many tasks this worker failed.
func (w *MintWorker) Failed() int64 { return w.failed.Load() }

// processTask handles a single mint task. A minted contribution is a no-op
// success; an unscored one is scored first; an ineligible one is refused
// without touching its state. Retry policy belongs to the queue owner.
func (w *MintWorker) processTask(ctx context.Context, task queue.Task) error {
	start := time.Now()
	defer func() {
		metrics.RecordMintLatency(float64(time.Since(start).Milliseconds()))
	}()

	c, err := w.store.Get(ctx, task.ContributionID)
	if err != nil {
		w.failed.Inc()
		return fmt.Errorf("load contribution %s: %w", task.ContributionID, err)
	}

	if c.Status == model.StatusMinted {
		metrics.RecordMintNoop()
		return nil
	}

	if !c.Scored() {
		c, err = w.scorer.ScoreContribution(ctx, c.ID)
		if err != nil {
			w.failed.Inc()
			return fmt.Errorf("score contribution %s: %w", c.ID, err)
		}
	}

	if c.Eligibility != model.EligibilityEligible {
		metrics.RecordMintIneligible()
		return fmt.Errorf("contribution %s: %w", c.ID, chain.ErrNotEligible)
	}

	user, err := w.users.Get(ctx, c.UserID)
	if err != nil {
		w.failed.Inc()
		return fmt.Errorf("resolve contributor: %w", err)
	}
	if user.WalletAddress == "" {
		metrics.RecordMintIneligible()
		return fmt.Errorf("contribution %s: %w", c.ID, chain.ErrWalletUnknown)
	}

	repo, err := w.repos.Get(ctx, c.RepoID)
	if err != nil {
		w.failed.Inc()
		return fmt.Errorf("resolve repository: %w", err)
	}

	c, err = w.store.Transition(ctx, c.ID,
		[]model.Status{model.StatusPending, model.StatusFailed},
		model.StatusMinting, repository.Patch{})
	if err != nil {
		w.failed.Inc()
		return fmt.Errorf("enter minting: %w", err)
	}

	receipt, err := w.mint(ctx, c, user, repo)
	if err != nil {
		w.failed.Inc()
		metrics.RecordMintFailure()
		if ferr := w.store.RecordMintFailure(ctx, c.ID); ferr != nil {
			w.logger.Error(ctx, "recording mint failure", logger.Error(ferr))
		}
		return err
	}

	if err := w.store.RecordMintSuccess(ctx, c.ID, receipt.TxHash, receipt.TokenID, receipt.MetadataURI); err != nil {
		w.failed.Inc()
		return fmt.Errorf("record mint success: %w", err)
	}

	w.processed.Inc()
	metrics.RecordMintSuccess()
	w.logger.Info(ctx, "contribution minted",
		logger.String("contribution_id", c.ID),
		logger.String("tx_hash", receipt.TxHash),
		logger.String("token_id", receipt.TokenID),
	)
	return nil
}

type mintOutcome struct {
	TxHash      string
	TokenID     string
	MetadataURI string
}

func (w *MintWorker) mint(ctx context.Context, c model.Contribution, user model.User, repo model.Repository) (mintOutcome, error) {
	uri := c.MetadataURI
	if uri == "" {
		var err error
		uri, err = w.publisher.Publish(ctx, map[string]any{
			"repo":       repo.FullName,
			"commit_sha": c.Metadata["commit_sha"],
			"score":      *c.Score,
			"title":      c.Title,
			"url":        c.URL,
			"type":       c.Type,
		})
		if err != nil {
			return mintOutcome{}, fmt.Errorf("publish metadata: %w", err)
		}
	}

	receipt, err := w.nft.MintCommit(ctx, user.WalletAddress, chain.CommitData{
		Repo:      repo.FullName,
		CommitSHA: c.Metadata["commit_sha"],
		Score:     uint64(*c.Score),
		URL:       c.URL,
	}, uri)
	if err != nil {
		return mintOutcome{}, fmt.Errorf("mint commit: %w", err)
	}
	if !receipt.Confirmed() {
		return mintOutcome{}, chain.ErrReverted
	}

	return mintOutcome{TxHash: receipt.TxHash, TokenID: receipt.TokenID, MetadataURI: uri}, nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*MintWorker

	logger logger.Logger
}

// NewPool creates a worker pool. A non-positive count defaults to the
// number of CPUs, capped at defaultWorkerCount.
func NewPool(
	workerCount int,
	q Queue,
	store repository.Store,
	users repository.UserDirectory,
	repos repository.RepoDirectory,
	scorer Scorer,
	publisher ipfs.Publisher,
	nft chain.CommitNFT,
) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
		if workerCount > defaultWorkerCount {
			workerCount = defaultWorkerCount
		}
	}

	pool := &Pool{
		workers: make([]*MintWorker, workerCount),
		logger:  logger.Get().Named("worker-pool"),
	}

	for i := 0; i < workerCount; i++ {
		pool.workers[i] = NewMintWorker(
			q, store, users, repos, scorer, publisher, nft,
			WithName("worker-"+strconv.Itoa(i)),
		)
	}

	metrics.UpdateWorkerActiveCount(workerCount)

	return pool
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Processed returns the total tasks completed across the pool.
func (p *Pool) Processed() int64 {
	var total int64
	for _, w := range p.workers {
		total += w.Processed()
	}
	return total
}

// Shutdown gracefully shuts down the entire worker pool. The queue is
// closed first so workers drain remaining tasks before stopping.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := any(p.workers[0].queue).(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}

	metrics.UpdateWorkerActiveCount(0)
	return nil
}
