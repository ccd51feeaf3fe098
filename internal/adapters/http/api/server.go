// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/forgemint/forgemint/internal/adapters/chain"
	service "github.com/forgemint/forgemint/internal/app"
	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/pkg/metrics"
)

// Signature and event kind headers accepted on webhook deliveries.
const (
	HeaderSignature  = "X-Hub-Signature-256"
	HeaderEventKind  = "X-Event-Kind"
	headerGitHubKind = "X-GitHub-Event"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to the service implementation.
type Dependencies interface {
	VerifyWebhook(body []byte, signatureHeader string) error
	HandleWebhook(ctx context.Context, kind string, body []byte) (service.IntakeResult, error)
	RunScoring(ctx context.Context, limit int) (service.BatchResult, error)
	BuildAttestation(ctx context.Context, id string) (service.AttestationBundle, error)
	Submit(ctx context.Context, id string) (chain.Result, error)
	Get(ctx context.Context, id string) (model.Contribution, error)
	Snapshot(ctx context.Context) service.Stats
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps Dependencies
}

// NewServer creates a new API server.
func NewServer(deps Dependencies) *Server {
	return &Server{deps: deps}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/webhook", metricsHandler("webhook", s.handleWebhook))
	r.Post("/scoring/run", metricsHandler("scoring_run", s.handleRunScoring))

	r.Route("/contributions/{id}", func(r chi.Router) {
		r.Get("/", metricsHandler("contribution_get", s.handleGetContribution))
		r.Get("/attestation", metricsHandler("attestation", s.handleGetAttestation))
		r.Post("/submit", metricsHandler("submit", s.handleSubmit))
	})

	r.Get("/healthz", metricsHandler("healthz", s.handleHealth))
	r.Get("/stats", metricsHandler("stats", s.handleStats))
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}))

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Snapshot(r.Context()))
}
