package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	mintqueue "github.com/forgemint/forgemint/internal/adapters/mq/queue"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	"github.com/forgemint/forgemint/internal/attest"
	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/internal/domain/webhook"
	"github.com/forgemint/forgemint/pkg/logger"

	"github.com/forgemint/forgemint/internal/adapters/http/api"
	service "github.com/forgemint/forgemint/internal/app"
)

const (
	testSecret = "intake-secret"
	testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type testEnv struct {
	router   http.Handler
	verifier *webhook.Verifier
	svc      *service.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	users := repository.NewMemUserDirectory(model.User{
		ID:            "user-1",
		Username:      "octocat",
		WalletAddress: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
	})
	verifier := webhook.NewVerifier(testSecret)

	signer, err := attest.NewSigner(testKeyHex, attest.Domain{
		Name:              "ForgeMint",
		Version:           "1",
		ChainID:           31337,
		VerifyingContract: "0x5fbdb2315678afecb367f032d93f642f64180aa3",
	})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	// Closed queue keeps the async mint path idle so handler outcomes are
	// deterministic.
	q := mintqueue.NewInMemoryQueue(mintqueue.WithCapacity(4))
	_ = q.Close()

	svc := service.New(
		service.WithUserDirectory(users),
		service.WithVerifier(verifier),
		service.WithSigner(signer),
		service.WithQueue(q),
		service.WithWorkerCount(1),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	if err := svc.Start(ctx); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(func() { svc.Stop(context.Background()) })

	return &testEnv{
		router:   api.NewServer(svc).Router(),
		verifier: verifier,
		svc:      svc,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) deliverPush(t *testing.T, sha string) string {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"repository": map[string]any{
			"id": "repo-1", "name": "forge", "full_name": "octo/forge",
		},
		"commits": []map[string]any{{
			"id":        sha,
			"message":   "feat: add streaming parser\n\nCloses #42",
			"url":       "https://example.test/commit/" + sha,
			"author":    map[string]any{"username": "octocat"},
			"added":     []string{"parser/stream.go", "parser/stream_test.go"},
			"additions": 30,
			"deletions": 5,
		}},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	rec := e.do(t, http.MethodPost, "/webhook", body, map[string]string{
		api.HeaderSignature: e.verifier.Sign(body),
		api.HeaderEventKind: "push",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("webhook status = %d, body %s", rec.Code, rec.Body.String())
	}

	var res service.IntakeResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode intake result: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("expected 1 created, got %+v", res)
	}
	return res.IDs[0]
}

func TestWebhookEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("signed delivery creates one contribution", func(t *testing.T) {
		id := env.deliverPush(t, "abc123")

		rec := env.do(t, http.MethodGet, "/contributions/"+id, nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("get status = %d", rec.Code)
		}

		var c model.Contribution
		if err := json.Unmarshal(rec.Body.Bytes(), &c); err != nil {
			t.Fatalf("decode contribution: %v", err)
		}
		if c.Status != model.StatusPending {
			t.Errorf("expected pending, got %s", c.Status)
		}
		if c.ExternalID != "octo/forge:abc123" {
			t.Errorf("unexpected external id %q", c.ExternalID)
		}
	})

	t.Run("bad signature is rejected before parsing", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/webhook", []byte(`not even json`), map[string]string{
			api.HeaderSignature: "sha256=deadbeef",
			api.HeaderEventKind: "push",
		})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("github event header is accepted", func(t *testing.T) {
		body := []byte(`{"repository":{"id":"repo-1","full_name":"octo/forge"},"commits":[]}`)
		rec := env.do(t, http.MethodPost, "/webhook", body, map[string]string{
			api.HeaderSignature: env.verifier.Sign(body),
			"X-GitHub-Event":    "push",
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	})

	t.Run("unknown event kind is ignored with 202", func(t *testing.T) {
		body := []byte(`{"anything":"goes"}`)
		rec := env.do(t, http.MethodPost, "/webhook", body, map[string]string{
			api.HeaderSignature: env.verifier.Sign(body),
			api.HeaderEventKind: "star",
		})
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202, got %d", rec.Code)
		}
	})
}

func TestScoringAndAttestationEndpoints(t *testing.T) {
	env := newTestEnv(t)
	id := env.deliverPush(t, "abc123")

	t.Run("attestation before scoring conflicts", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/contributions/"+id+"/attestation", nil, nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("expected 409, got %d", rec.Code)
		}
	})

	t.Run("scoring batch scores the backlog", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/scoring/run?limit=10", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var batch service.BatchResult
		if err := json.Unmarshal(rec.Body.Bytes(), &batch); err != nil {
			t.Fatalf("decode batch: %v", err)
		}
		if batch.Count != 1 {
			t.Fatalf("expected 1 scored, got %d", batch.Count)
		}
		if batch.Results[0].Score < 80 {
			t.Errorf("expected eligible score, got %d", batch.Results[0].Score)
		}
	})

	t.Run("attestation bundle is served after scoring", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/contributions/"+id+"/attestation", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var bundle service.AttestationBundle
		if err := json.Unmarshal(rec.Body.Bytes(), &bundle); err != nil {
			t.Fatalf("decode bundle: %v", err)
		}
		if !bundle.ShouldMint {
			t.Error("expected should_mint true")
		}
		if bundle.Evaluator == "" || bundle.Signature == "" {
			t.Errorf("incomplete bundle: %+v", bundle)
		}
	})

	t.Run("submit mints the contribution", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/contributions/"+id+"/submit", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		var result struct {
			TxHash  string       `json:"tx_hash"`
			TokenID string       `json:"token_id"`
			Status  model.Status `json:"status"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("decode result: %v", err)
		}
		if result.Status != model.StatusMinted || result.TxHash == "" {
			t.Errorf("unexpected result %+v", result)
		}
	})

	t.Run("submitting an unknown contribution is 404", func(t *testing.T) {
		rec := env.do(t, http.MethodPost, "/contributions/nope/submit", nil, nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("expected 404, got %d", rec.Code)
		}
	})
}

func TestOperationalEndpoints(t *testing.T) {
	env := newTestEnv(t)

	t.Run("healthz", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/healthz", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("stats reflect intake", func(t *testing.T) {
		env.deliverPush(t, "stat001")

		rec := env.do(t, http.MethodGet, "/stats", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		var stats service.Stats
		if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
			t.Fatalf("decode stats: %v", err)
		}
		if stats.Contributions != 1 {
			t.Errorf("expected 1 contribution, got %d", stats.Contributions)
		}
	})

	t.Run("metrics endpoint serves prometheus text", func(t *testing.T) {
		rec := env.do(t, http.MethodGet, "/metrics", nil, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}
	})
}
