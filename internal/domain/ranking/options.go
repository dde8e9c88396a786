package ranking

import (
	"time"

	"github.com/okian/scoreboard/pkg/logger"
)

// Defaults applied by New.
const (
	DefaultTTL          = 5 * time.Second
	DefaultSnapshotSize = 100
	DefaultReadTimeout  = 2 * time.Second
	DefaultKey          = "scoreboard:leaderboard:top"
)

// Option configures an Engine.
type Option func(*Engine)

// WithCache sets the snapshot cache. Without one only the in-process copy is kept.
func WithCache(c Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithEvictions routes remote-cache evictions through q instead of deleting inline.
func WithEvictions(q Evictions) Option {
	return func(e *Engine) {
		if q != nil {
			e.evictions = q
		}
	}
}

// WithTTL bounds how long a snapshot may be served after its store read began.
func WithTTL(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.ttl = d
		}
	}
}

// WithSnapshotSize sets the minimum number of entries a rebuilt snapshot holds.
func WithSnapshotSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.snapshotSize = n
		}
	}
}

// WithReadTimeout bounds every store read.
func WithReadTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.readTimeout = d
		}
	}
}

// WithKey sets the cache key snapshots are stored under.
func WithKey(key string) Option {
	return func(e *Engine) {
		if key != "" {
			e.key = key
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
