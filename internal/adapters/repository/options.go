package repository

import (
	"time"
)

// Submit strategies understood by SQL backends.
const (
	StrategyUpsert  = "upsert"
	StrategyRowLock = "row_lock"
)

// Settings are the backend-independent knobs every Store constructor accepts.
type Settings struct {
	LockTimeout time.Duration
	Strategy    string
	Migrate     bool
}

// Option applies a configuration option to Settings.
type Option func(*Settings)

// DefaultSettings returns the settings used when no option overrides them.
func DefaultSettings() Settings {
	return Settings{
		LockTimeout: 2 * time.Second,
		Strategy:    StrategyUpsert,
		Migrate:     true,
	}
}

// Apply builds Settings from opts on top of the defaults.
func Apply(opts ...Option) Settings {
	s := DefaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// WithLockTimeout bounds how long Submit and Recompute wait for a player's lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Settings) {
		if d > 0 {
			s.LockTimeout = d
		}
	}
}

// WithSubmitStrategy selects upsert or row_lock for SQL backends.
func WithSubmitStrategy(strategy string) Option {
	return func(s *Settings) {
		switch strategy {
		case StrategyUpsert, StrategyRowLock:
			s.Strategy = strategy
		}
	}
}

// WithMigrate toggles applying embedded migrations when the store opens.
func WithMigrate(enabled bool) Option {
	return func(s *Settings) {
		s.Migrate = enabled
	}
}
