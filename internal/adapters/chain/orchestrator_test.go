package chain_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgemint/forgemint/internal/adapters/chain"
	"github.com/forgemint/forgemint/internal/adapters/ipfs"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	"github.com/forgemint/forgemint/internal/attest"
	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/internal/domain/scoring"
)

const orchestratorTestKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var orchestratorTestDomain = attest.Domain{
	Name:              "ForgeMint",
	Version:           "1",
	ChainID:           31337,
	VerifyingContract: "0x5fbdb2315678afecb367f032d93f642f64180aa3",
}

type fixture struct {
	store  *repository.MemStore
	users  *repository.MemUserDirectory
	repos  *repository.MemRepoDirectory
	mock   *chain.MockClient
	orch   *chain.Orchestrator
	contri model.Contribution
	user   model.User
}

func newFixture(t *testing.T, opts ...func(*fixture)) *fixture {
	t.Helper()

	f := &fixture{
		store: repository.NewMemStore(),
		repos: repository.NewMemRepoDirectory(),
		mock:  chain.NewMockClient(),
	}
	f.users = repository.NewMemUserDirectory()
	f.user = f.users.Add(model.User{
		Username:      "octocat",
		WalletAddress: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
	})

	repo, err := f.repos.FindOrCreate(context.Background(), model.Repository{
		ExternalID: "repo-1",
		Name:       "forge",
		FullName:   "octo/forge",
	})
	require.NoError(t, err)

	c, created, err := f.store.CreateIfAbsent(context.Background(), "octo/forge:abc123", repository.CreateAttrs{
		Type:     model.TypeCommit,
		UserID:   f.user.ID,
		RepoID:   repo.ID,
		Title:    "feat: add parser",
		URL:      "https://example.test/commit/abc123",
		Metadata: map[string]string{"commit_sha": "abc123"},
	})
	require.NoError(t, err)
	require.True(t, created)
	f.contri = c

	signer, err := attest.NewSigner(orchestratorTestKey, orchestratorTestDomain)
	require.NoError(t, err)

	for _, opt := range opts {
		opt(f)
	}

	f.orch = chain.NewOrchestrator(
		f.store, f.users, f.repos, signer,
		ipfs.NewHTTPPublisher(), f.mock, f.mock,
	)
	return f
}

func (f *fixture) scoreEligible(t *testing.T, score int) {
	t.Helper()
	err := f.store.RecordScore(context.Background(), f.contri.ID, score,
		scoring.Breakdown{}, model.EligibilityEligible)
	require.NoError(t, err)
}

func TestSubmitHappyPath(t *testing.T) {
	f := newFixture(t)
	f.scoreEligible(t, 87)

	res, err := f.orch.Submit(context.Background(), f.contri.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusMinted, res.Status)
	assert.Equal(t, chain.PhaseReconcile, res.Phase)
	assert.NotEmpty(t, res.TxHash)
	assert.NotEmpty(t, res.TokenID)
	assert.EqualValues(t, 1, f.mock.FeedbackCalls())
	assert.EqualValues(t, 1, f.mock.ValidationCalls())

	c, err := f.store.Get(context.Background(), f.contri.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusMinted, c.Status)
	assert.True(t, ipfs.IsPlaceholder(c.MetadataURI))
}

func TestSubmitIsIdempotentOnceMinted(t *testing.T) {
	f := newFixture(t)
	f.scoreEligible(t, 87)

	first, err := f.orch.Submit(context.Background(), f.contri.ID)
	require.NoError(t, err)

	second, err := f.orch.Submit(context.Background(), f.contri.ID)
	require.NoError(t, err)

	assert.Equal(t, first.TxHash, second.TxHash)
	assert.Equal(t, first.TokenID, second.TokenID)
	assert.EqualValues(t, 1, f.mock.FeedbackCalls(), "chain must not be touched again")
	assert.EqualValues(t, 1, f.mock.ValidationCalls())
}

func TestSubmitPreconditions(t *testing.T) {
	t.Run("unscored contribution is refused", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.orch.Submit(context.Background(), f.contri.ID)
		assert.ErrorIs(t, err, chain.ErrNotScored)
		assert.EqualValues(t, 0, f.mock.FeedbackCalls())
	})

	t.Run("ineligible contribution is refused", func(t *testing.T) {
		f := newFixture(t)
		err := f.store.RecordScore(context.Background(), f.contri.ID, 40,
			scoring.Breakdown{}, model.EligibilityIneligible)
		require.NoError(t, err)

		_, err = f.orch.Submit(context.Background(), f.contri.ID)
		assert.ErrorIs(t, err, chain.ErrNotEligible)
	})

	t.Run("missing wallet is refused", func(t *testing.T) {
		f := newFixture(t)
		f.users.Add(model.User{ID: f.user.ID, Username: "octocat"}) // wallet cleared
		f.scoreEligible(t, 87)

		_, err := f.orch.Submit(context.Background(), f.contri.ID)
		assert.ErrorIs(t, err, chain.ErrWalletUnknown)
		assert.EqualValues(t, 0, f.mock.FeedbackCalls())
	})

	t.Run("unknown contribution", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.orch.Submit(context.Background(), "missing")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestSubmitResumesAfterFeedbackPhase(t *testing.T) {
	f := newFixture(t)
	f.scoreEligible(t, 87)

	boom := errors.New("rpc timeout")
	f.mock.SetRequestValidationFunc(func(_ context.Context, _, _, _, _ string) (chain.Receipt, error) {
		return chain.Receipt{}, boom
	})

	_, err := f.orch.Submit(context.Background(), f.contri.ID)
	var perr *chain.PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, chain.PhaseValidation, perr.Phase)
	assert.ErrorIs(t, err, boom)

	c, err := f.store.Get(context.Background(), f.contri.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, c.Status, "status moves only in reconcile")
	assert.Equal(t, chain.PhaseFeedback, c.SubmissionPhase, "feedback confirmation must persist")
}

func TestSubmitFeedbackFailureKeepsPriorStatus(t *testing.T) {
	f := newFixture(t)
	f.scoreEligible(t, 87)

	f.mock.SetSubmitFeedbackFunc(func(_ context.Context, _ attest.Feedback, _ []byte) (chain.Receipt, error) {
		return chain.Receipt{}, errors.New("rpc down")
	})

	_, err := f.orch.Submit(context.Background(), f.contri.ID)
	var perr *chain.PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, chain.PhaseFeedback, perr.Phase)

	c, err := f.store.Get(context.Background(), f.contri.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, c.Status, "nothing reached the chain, nothing may change")
	assert.Empty(t, c.SubmissionPhase)
	assert.Empty(t, c.TxHash)
}

func TestSubmitRetrySkipsConfirmedPhases(t *testing.T) {
	f := newFixture(t)
	f.scoreEligible(t, 87)

	fail := true
	healthy := chain.NewMockClient()
	f.mock.SetRequestValidationFunc(func(ctx context.Context, repo, sha, contributor, uri string) (chain.Receipt, error) {
		if fail {
			return chain.Receipt{}, errors.New("rpc timeout")
		}
		return healthy.RequestValidation(ctx, repo, sha, contributor, uri)
	})

	_, err := f.orch.Submit(context.Background(), f.contri.ID)
	require.Error(t, err)
	require.EqualValues(t, 1, f.mock.FeedbackCalls())

	fail = false
	res, err := f.orch.Submit(context.Background(), f.contri.ID)
	require.NoError(t, err)

	assert.Equal(t, model.StatusMinted, res.Status)
	assert.EqualValues(t, 1, f.mock.FeedbackCalls(), "confirmed feedback phase must not rerun")
}

func TestSubmitRevertedReceipt(t *testing.T) {
	f := newFixture(t)
	f.scoreEligible(t, 87)

	f.mock.SetSubmitFeedbackFunc(func(_ context.Context, _ attest.Feedback, _ []byte) (chain.Receipt, error) {
		return chain.Receipt{TxHash: "0xdead", Status: chain.ReceiptReverted}, nil
	})

	_, err := f.orch.Submit(context.Background(), f.contri.ID)
	var perr *chain.PhaseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, chain.PhaseFeedback, perr.Phase)
	assert.ErrorIs(t, err, chain.ErrReverted)

	c, err := f.store.Get(context.Background(), f.contri.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, c.Status)
	assert.Empty(t, c.SubmissionPhase)
}

func TestSubmitValidationWithoutMint(t *testing.T) {
	f := newFixture(t)
	f.scoreEligible(t, 87)

	f.mock.SetRequestValidationFunc(func(_ context.Context, _, _, _, _ string) (chain.Receipt, error) {
		return chain.Receipt{TxHash: "0xbeef", Status: chain.ReceiptConfirmed, Minted: false}, nil
	})

	_, err := f.orch.Submit(context.Background(), f.contri.ID)
	assert.ErrorIs(t, err, chain.ErrMintNotFired)
}
