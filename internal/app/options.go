package service

import (
	"github.com/forgemint/forgemint/internal/adapters/chain"
	"github.com/forgemint/forgemint/internal/adapters/ipfs"
	mintqueue "github.com/forgemint/forgemint/internal/adapters/mq/queue"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	"github.com/forgemint/forgemint/internal/attest"
	"github.com/forgemint/forgemint/internal/domain/dedupe"
	"github.com/forgemint/forgemint/internal/domain/scoring"
	"github.com/forgemint/forgemint/internal/domain/webhook"
	"github.com/forgemint/forgemint/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the contribution store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithUserDirectory sets the user directory.
func WithUserDirectory(users repository.UserDirectory) Option {
	return func(s *Service) {
		if users != nil {
			s.users = users
		}
	}
}

// WithRepoDirectory sets the repository directory.
func WithRepoDirectory(repos repository.RepoDirectory) Option {
	return func(s *Service) {
		if repos != nil {
			s.repos = repos
		}
	}
}

// WithDeduper sets the intake dedupe cache.
func WithDeduper(d dedupe.Deduper) Option {
	return func(s *Service) {
		if d != nil {
			s.deduper = d
		}
	}
}

// WithQueue sets the mint task queue.
func WithQueue(q mintqueue.Queue) Option {
	return func(s *Service) {
		if q != nil {
			s.queue = q
		}
	}
}

// WithEngine sets the scoring engine.
func WithEngine(e *scoring.Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

// WithVerifier sets the webhook signature verifier.
func WithVerifier(v *webhook.Verifier) Option {
	return func(s *Service) {
		if v != nil {
			s.verifier = v
		}
	}
}

// WithSigner sets the attestation signer.
func WithSigner(signer *attest.Signer) Option {
	return func(s *Service) {
		if signer != nil {
			s.signer = signer
		}
	}
}

// WithPublisher sets the metadata publisher.
func WithPublisher(p ipfs.Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithCommitNFT sets the legacy mint collaborator used by the worker pool.
func WithCommitNFT(nft chain.CommitNFT) Option {
	return func(s *Service) {
		if nft != nil {
			s.nft = nft
		}
	}
}

// WithOrchestrator sets the on-chain submission orchestrator.
func WithOrchestrator(o *chain.Orchestrator) Option {
	return func(s *Service) {
		if o != nil {
			s.orch = o
		}
	}
}

// WithWorkerCount sets the number of mint worker goroutines.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the mint queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithScoringLimit sets the default scoring batch size.
func WithScoringLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.scoringLimit = limit
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
