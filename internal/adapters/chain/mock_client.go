package chain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"go.uber.org/atomic"

	"github.com/forgemint/forgemint/internal/attest"
)

// MockClient implements all three collaborator interfaces for tests and
// local runs. Behavior is customizable by setting function implementations.
type MockClient struct {
	submitFeedback    func(ctx context.Context, fb attest.Feedback, sig []byte) (Receipt, error)
	requestValidation func(ctx context.Context, repo, commitSHA, contributor, metadataURI string) (Receipt, error)
	mintCommit        func(ctx context.Context, to string, data CommitData, metadataURI string) (Receipt, error)

	feedbackCalls   atomic.Int64
	validationCalls atomic.Int64
	mintCalls       atomic.Int64
	tokenSeq        atomic.Int64
}

// NewMockClient creates a mock client with default confirming implementations.
func NewMockClient() *MockClient {
	m := &MockClient{}

	m.submitFeedback = func(_ context.Context, fb attest.Feedback, sig []byte) (Receipt, error) {
		return Receipt{
			TxHash: mockTxHash("feedback", fb.Repo, fb.CommitSHA, strconv.FormatUint(fb.Nonce, 10)),
			Status: ReceiptConfirmed,
		}, nil
	}
	m.requestValidation = func(_ context.Context, repo, commitSHA, contributor, metadataURI string) (Receipt, error) {
		return Receipt{
			TxHash:  mockTxHash("validation", repo, commitSHA, contributor),
			Status:  ReceiptConfirmed,
			TokenID: strconv.FormatInt(m.tokenSeq.Inc(), 10),
			Minted:  true,
		}, nil
	}
	m.mintCommit = func(_ context.Context, to string, data CommitData, metadataURI string) (Receipt, error) {
		return Receipt{
			TxHash:  mockTxHash("mint", data.Repo, data.CommitSHA, to),
			Status:  ReceiptConfirmed,
			TokenID: strconv.FormatInt(m.tokenSeq.Inc(), 10),
			Minted:  true,
		}, nil
	}

	return m
}

// SubmitFeedback implements ReputationRegistry.
func (m *MockClient) SubmitFeedback(ctx context.Context, fb attest.Feedback, sig []byte) (Receipt, error) {
	m.feedbackCalls.Inc()
	return m.submitFeedback(ctx, fb, sig)
}

// RequestValidation implements ValidationRegistry.
func (m *MockClient) RequestValidation(ctx context.Context, repo, commitSHA, contributor, metadataURI string) (Receipt, error) {
	m.validationCalls.Inc()
	return m.requestValidation(ctx, repo, commitSHA, contributor, metadataURI)
}

// MintCommit implements CommitNFT.
func (m *MockClient) MintCommit(ctx context.Context, to string, data CommitData, metadataURI string) (Receipt, error) {
	m.mintCalls.Inc()
	return m.mintCommit(ctx, to, data, metadataURI)
}

// FeedbackCalls returns how many feedback submissions were attempted.
func (m *MockClient) FeedbackCalls() int64 { return m.feedbackCalls.Load() }

// ValidationCalls returns how many validation requests were attempted.
func (m *MockClient) ValidationCalls() int64 { return m.validationCalls.Load() }

// MintCalls returns how many direct mints were attempted.
func (m *MockClient) MintCalls() int64 { return m.mintCalls.Load() }

// SetSubmitFeedbackFunc allows customization of the SubmitFeedback implementation.
func (m *MockClient) SetSubmitFeedbackFunc(fn func(ctx context.Context, fb attest.Feedback, sig []byte) (Receipt, error)) {
	m.submitFeedback = fn
}

// SetRequestValidationFunc allows customization of the RequestValidation implementation.
func (m *MockClient) SetRequestValidationFunc(fn func(ctx context.Context, repo, commitSHA, contributor, metadataURI string) (Receipt, error)) {
	m.requestValidation = fn
}

// SetMintCommitFunc allows customization of the MintCommit implementation.
func (m *MockClient) SetMintCommitFunc(fn func(ctx context.Context, to string, data CommitData, metadataURI string) (Receipt, error)) {
	m.mintCommit = fn
}

func mockTxHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
