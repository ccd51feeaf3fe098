package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if FORGEMINT_CONFIG is set
//  3. env (prefix FORGEMINT_)
func Load() (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv("FORGEMINT_CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%v: %w", err, ErrLoadConfig)
		}
	}

	// Environment variables: FORGEMINT_ADDR, FORGEMINT_QUEUE_SIZE, ...
	// Keys keep their underscores to match the koanf tags on the struct.
	envProvider := env.Provider("FORGEMINT_", ".", func(s string) string {
		s = strings.ToLower(s)
		return strings.TrimPrefix(s, "forgemint_")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrLoadConfig)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrLoadConfig)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("addr must not be empty: %w", ErrInvalidConfig)
	case c.WebhookSecret == "":
		return fmt.Errorf("webhook_secret must not be empty: %w", ErrInvalidConfig)
	case c.EvaluatorKey == "":
		return fmt.Errorf("evaluator_key must not be empty: %w", ErrInvalidConfig)
	case c.VerifyingContract == "":
		return fmt.Errorf("verifying_contract must not be empty: %w", ErrInvalidConfig)
	case c.MintThreshold < 0 || c.MintThreshold > 100:
		return fmt.Errorf("mint_threshold must be in 0..100: %w", ErrInvalidConfig)
	}
	return nil
}
