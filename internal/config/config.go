// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env.
// - Secrets (webhook secret, evaluator key) are held here and handed to the
//   components that need them; they are never logged.
package config

import "runtime"

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// WebhookSecret is the shared HMAC secret for delivery verification.
	WebhookSecret string `koanf:"webhook_secret"`

	// EvaluatorKey is the hex-encoded secp256k1 attestation signing key.
	EvaluatorKey string `koanf:"evaluator_key"`

	// ChainID and VerifyingContract pin the attestation domain to one
	// deployment.
	ChainID           uint64 `koanf:"chain_id"`
	VerifyingContract string `koanf:"verifying_contract"`

	// DomainName and DomainVersion name the attestation domain.
	DomainName    string `koanf:"domain_name"`
	DomainVersion string `koanf:"domain_version"`

	// MintThreshold is the minimum score for mint eligibility.
	MintThreshold int `koanf:"mint_threshold"`

	// QueueSize bounds the in-memory mint queue.
	QueueSize int `koanf:"queue_size"`

	// WorkerCount sets the number of mint workers.
	WorkerCount int `koanf:"worker_count"`

	// DedupeSize sets the size of the intake deduplication cache.
	DedupeSize int `koanf:"dedupe_size"`

	// ScoringBatchLimit caps one POST /scoring/run batch.
	ScoringBatchLimit int `koanf:"scoring_batch_limit"`

	// PinningEndpoint and PinningToken configure the metadata pinning
	// service. An empty endpoint falls back to placeholder URIs.
	PinningEndpoint string `koanf:"pinning_endpoint"`
	PinningToken    string `koanf:"pinning_token"`

	// DatabaseURL selects the Postgres-backed store when set; empty keeps
	// the in-memory store.
	DatabaseURL string `koanf:"database_url"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		ChainID:           31337,
		DomainName:        "ForgeMint",
		DomainVersion:     "1",
		MintThreshold:     80,
		QueueSize:         10_000,
		WorkerCount:       runtime.NumCPU(),
		DedupeSize:        50_000,
		ScoringBatchLimit: 100,
	}
}
