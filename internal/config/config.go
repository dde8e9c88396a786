// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New(ctx) builds a Config with defaults; Load layers file and env on top.
// - Durations are configured in milliseconds and exposed as time.Duration helpers.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Cache backends.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Submit strategies for the postgres store.
const (
	StrategyUpsert  = "upsert"
	StrategyRowLock = "row_lock"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// Store selects the aggregate store backend: memory, sqlite or postgres.
	Store string `koanf:"store"`

	PostgresDSN      string `koanf:"postgres_dsn"`
	PostgresMaxConns int32  `koanf:"postgres_max_conns"`
	PostgresMinConns int32  `koanf:"postgres_min_conns"`

	SQLitePath string `koanf:"sqlite_path"`

	// MigrateOnStart applies embedded migrations when the store opens.
	MigrateOnStart bool `koanf:"migrate_on_start"`

	// SubmitStrategy is upsert (single statement) or row_lock (SELECT ... FOR UPDATE).
	SubmitStrategy string `koanf:"submit_strategy"`

	// LockTimeoutMS bounds how long a submission waits on a player's lock.
	LockTimeoutMS int `koanf:"lock_timeout_ms"`
	// SubmitTimeoutMS bounds a whole submission including retries.
	SubmitTimeoutMS int `koanf:"submit_timeout_ms"`
	// ReadTimeoutMS bounds ranking reads against the store.
	ReadTimeoutMS int `koanf:"read_timeout_ms"`

	SubmitMaxRetries int `koanf:"submit_max_retries"`
	RetryBaseMS      int `koanf:"retry_base_ms"`

	// Cache selects the snapshot cache: none, memory or redis.
	Cache         string `koanf:"cache"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// CacheTTLMS bounds how long a snapshot may be served.
	CacheTTLMS int `koanf:"cache_ttl_ms"`
	// SnapshotSize is the minimum number of entries a recomputed snapshot holds.
	SnapshotSize int `koanf:"snapshot_size"`

	// MaxLeaderboardLimit caps GET /api/leaderboard/top?limit.
	MaxLeaderboardLimit int `koanf:"max_leaderboard_limit"`

	// EventQueueSize bounds the cache eviction queue.
	EventQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of eviction workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the number of remembered submission request ids.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":9080",
		Store:               StoreMemory,
		PostgresMaxConns:    int32(runtime.NumCPU() * 4),
		PostgresMinConns:    2,
		SQLitePath:          "scoreboard.db",
		MigrateOnStart:      true,
		SubmitStrategy:      StrategyUpsert,
		LockTimeoutMS:       2_000,
		SubmitTimeoutMS:     5_000,
		ReadTimeoutMS:       2_000,
		SubmitMaxRetries:    3,
		RetryBaseMS:         10,
		Cache:               CacheMemory,
		RedisAddr:           "localhost:6379",
		CacheTTLMS:          5_000,
		SnapshotSize:        100,
		MaxLeaderboardLimit: 100,
		EventQueueSize:      1_024,
		WorkerCount:         2,
		DedupeSize:          100_000,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch c.Store {
	case StoreMemory:
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	case StorePostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("%w: postgres_dsn must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	switch c.SubmitStrategy {
	case StrategyUpsert, StrategyRowLock:
	default:
		return fmt.Errorf("%w: unknown submit_strategy %q", ErrInvalidConfig, c.SubmitStrategy)
	}
	switch c.Cache {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis_addr must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown cache %q", ErrInvalidConfig, c.Cache)
	}
	if c.LockTimeoutMS <= 0 || c.SubmitTimeoutMS <= 0 || c.ReadTimeoutMS <= 0 {
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	if c.SubmitMaxRetries < 0 {
		return fmt.Errorf("%w: submit_max_retries must not be negative", ErrInvalidConfig)
	}
	if c.MaxLeaderboardLimit <= 0 {
		return fmt.Errorf("%w: max_leaderboard_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) LockTimeout() time.Duration   { return ms(c.LockTimeoutMS) }
func (c *Config) SubmitTimeout() time.Duration { return ms(c.SubmitTimeoutMS) }
func (c *Config) ReadTimeout() time.Duration   { return ms(c.ReadTimeoutMS) }
func (c *Config) RetryBase() time.Duration     { return ms(c.RetryBaseMS) }
func (c *Config) CacheTTL() time.Duration      { return ms(c.CacheTTLMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
