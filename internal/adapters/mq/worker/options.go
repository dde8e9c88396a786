// Package worker drains the eviction queue into the remote snapshot cache.
package worker

import (
	"time"

	"github.com/okian/scoreboard/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithTimeout bounds each eviction call.
func WithTimeout(d time.Duration) Option {
	return func(w *InMemoryWorker) {
		if d > 0 {
			w.timeout = d
		}
	}
}
