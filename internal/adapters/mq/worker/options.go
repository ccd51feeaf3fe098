package worker

import (
	"github.com/forgemint/forgemint/pkg/logger"
)

// Option applies a configuration option to the MintWorker.
type Option func(*MintWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *MintWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(logger logger.Logger) Option {
	return func(w *MintWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}
