package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/forgemint/forgemint/internal/adapters/chain"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	"github.com/forgemint/forgemint/internal/domain/webhook"
	"github.com/forgemint/forgemint/pkg/metrics"
)

// maxWebhookBody caps delivery payload size at 10 MiB.
const maxWebhookBody = 10 << 20

// handleWebhook ingests a signed source-system delivery. The signature is
// checked against the raw body before any parsing happens.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable_body", err)
		return
	}

	if err := s.deps.VerifyWebhook(body, r.Header.Get(HeaderSignature)); err != nil {
		metrics.RecordWebhookSignatureFailure()
		writeError(w, http.StatusUnauthorized, "bad_signature", webhook.ErrBadSignature)
		return
	}

	kind := r.Header.Get(HeaderEventKind)
	if kind == "" {
		kind = r.Header.Get(headerGitHubKind)
	}

	res, err := s.deps.HandleWebhook(r.Context(), kind, body)
	if err != nil {
		if errors.Is(err, webhook.ErrMalformedPayload) {
			writeError(w, http.StatusBadRequest, "malformed_payload", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "intake_failed", err)
		return
	}

	writeJSON(w, http.StatusAccepted, res)
}

// handleRunScoring triggers a bounded scoring batch. The limit comes from
// the query string or a small JSON body; zero means the configured default.
func (s *Server) handleRunScoring(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_limit", errors.New("limit must be a non-negative integer"))
			return
		}
		limit = n
	} else if r.Body != nil {
		var req struct {
			Limit int `json:"limit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Limit > 0 {
			limit = req.Limit
		}
	}

	res, err := s.deps.RunScoring(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "scoring_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleGetContribution(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "lookup_failed", err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetAttestation(w http.ResponseWriter, r *http.Request) {
	bundle, err := s.deps.BuildAttestation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, chain.ErrNotScored),
			errors.Is(err, chain.ErrWalletUnknown):
			writeError(w, http.StatusConflict, "not_ready", err)
		default:
			writeError(w, http.StatusInternalServerError, "attestation_failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, bundle)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Submit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		var perr *chain.PhaseError
		switch {
		case errors.Is(err, repository.ErrNotFound):
			writeError(w, http.StatusNotFound, "not_found", err)
		case errors.Is(err, chain.ErrNotScored),
			errors.Is(err, chain.ErrNotEligible),
			errors.Is(err, chain.ErrWalletUnknown),
			errors.Is(err, chain.ErrSubmissionInFlight),
			errors.Is(err, repository.ErrConflict):
			writeError(w, http.StatusConflict, "not_submittable", err)
		case errors.As(err, &perr):
			writeJSON(w, http.StatusBadGateway, map[string]string{
				"code":    "chain_failure",
				"phase":   perr.Phase,
				"message": perr.Error(),
			})
		default:
			writeError(w, http.StatusInternalServerError, "submit_failed", err)
		}
		return
	}

	writeJSON(w, http.StatusOK, result)
}
