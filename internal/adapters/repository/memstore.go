package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/internal/domain/scoring"
	"github.com/forgemint/forgemint/pkg/metrics"
)

// MemStore implements Store with a mutex-guarded map. It is the default
// backend; PGStore provides the durable alternative.
type MemStore struct {
	mu         sync.RWMutex
	byID       map[string]*model.Contribution
	byExternal map[string]string // external id -> internal id
	now        func() time.Time
}

// MemOption applies a configuration option to the MemStore.
type MemOption func(*MemStore)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) MemOption {
	return func(s *MemStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemStore creates an empty in-memory contribution store.
func NewMemStore(opts ...MemOption) *MemStore {
	s := &MemStore{
		byID:       make(map[string]*model.Contribution),
		byExternal: make(map[string]string),
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// CreateIfAbsent creates a contribution keyed by externalID, or returns the
// existing one. Concurrent duplicate deliveries race on the same mutex, so
// at most one creation wins.
func (s *MemStore) CreateIfAbsent(_ context.Context, externalID string, attrs CreateAttrs) (model.Contribution, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byExternal[externalID]; ok {
		return *s.byID[id], false, nil
	}

	now := s.now()
	c := &model.Contribution{
		ID:          uuid.NewString(),
		ExternalID:  externalID,
		Type:        attrs.Type,
		UserID:      attrs.UserID,
		RepoID:      attrs.RepoID,
		Title:       attrs.Title,
		Description: attrs.Description,
		URL:         attrs.URL,
		Stats:       attrs.Stats,
		Metadata:    attrs.Metadata,
		Eligibility: model.EligibilityUnscored,
		Status:      model.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.byID[c.ID] = c
	s.byExternal[externalID] = c.ID

	metrics.UpdateContributionCount(len(s.byID))
	return *c, true, nil
}

func (s *MemStore) Get(_ context.Context, id string) (model.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.byID[id]
	if !ok {
		return model.Contribution{}, ErrNotFound
	}
	return *c, nil
}

func (s *MemStore) GetByExternalID(_ context.Context, externalID string) (model.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byExternal[externalID]
	if !ok {
		return model.Contribution{}, ErrNotFound
	}
	return *s.byID[id], nil
}

// Transition applies patch and moves to toStatus under the optimistic
// status guard.
func (s *MemStore) Transition(_ context.Context, id string, fromStatuses []model.Status, toStatus model.Status, patch Patch) (model.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return model.Contribution{}, ErrNotFound
	}

	// minted is terminal regardless of what the caller names.
	if c.Status == model.StatusMinted || !statusIn(c.Status, fromStatuses) {
		metrics.RecordStoreConflict()
		return model.Contribution{}, ErrConflict
	}

	applyPatch(c, patch)
	c.Status = toStatus
	c.UpdatedAt = s.now()
	return *c, nil
}

// RecordScore stores the latest scoring result. Scoring happens before
// minting, so only pending and failed contributions accept it.
func (s *MemStore) RecordScore(ctx context.Context, id string, score int, breakdown scoring.Breakdown, eligibility model.Eligibility) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !statusIn(c.Status, []model.Status{model.StatusPending, model.StatusFailed}) {
		metrics.RecordStoreConflict()
		return ErrConflict
	}

	c.Score = &score
	b := breakdown
	c.Breakdown = &b
	c.Eligibility = eligibility
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemStore) RecordPhase(_ context.Context, id, phase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	c.SubmissionPhase = phase
	c.UpdatedAt = s.now()
	return nil
}

func (s *MemStore) RecordMintSuccess(ctx context.Context, id, txHash, tokenID, metadataURI string) error {
	_, err := s.Transition(ctx, id,
		[]model.Status{model.StatusMinting},
		model.StatusMinted,
		Patch{TxHash: &txHash, TokenID: &tokenID, MetadataURI: &metadataURI},
	)
	return err
}

func (s *MemStore) RecordMintFailure(ctx context.Context, id string) error {
	_, err := s.Transition(ctx, id,
		[]model.Status{model.StatusMinting},
		model.StatusFailed,
		Patch{},
	)
	return err
}

func (s *MemStore) ListUnscored(_ context.Context, limit int) ([]model.Contribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Contribution
	for _, c := range s.byID {
		if c.Status == model.StatusPending && c.Score == nil {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemStore) Count(_ context.Context) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func statusIn(status model.Status, set []model.Status) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}
	return false
}

func applyPatch(c *model.Contribution, patch Patch) {
	if patch.Score != nil {
		c.Score = patch.Score
	}
	if patch.Breakdown != nil {
		c.Breakdown = patch.Breakdown
	}
	if patch.Eligibility != nil {
		c.Eligibility = *patch.Eligibility
	}
	if patch.TxHash != nil {
		c.TxHash = *patch.TxHash
	}
	if patch.TokenID != nil {
		c.TokenID = *patch.TokenID
	}
	if patch.MetadataURI != nil {
		c.MetadataURI = *patch.MetadataURI
	}
	if patch.SubmissionPhase != nil {
		c.SubmissionPhase = *patch.SubmissionPhase
	}
}
