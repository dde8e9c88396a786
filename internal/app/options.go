package service

import (
	"time"

	"github.com/okian/scoreboard/internal/adapters/cache"
	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// FromConfig maps loaded configuration onto service options.
func FromConfig(cfg *config.Config) []Option {
	return []Option{
		WithStoreKind(cfg.Store),
		WithPostgres(cfg.PostgresDSN, cfg.PostgresMaxConns, cfg.PostgresMinConns),
		WithSQLitePath(cfg.SQLitePath),
		WithMigrate(cfg.MigrateOnStart),
		WithSubmitStrategy(cfg.SubmitStrategy),
		WithLockTimeout(cfg.LockTimeout()),
		WithSubmitTimeout(cfg.SubmitTimeout()),
		WithReadTimeout(cfg.ReadTimeout()),
		WithRetry(cfg.SubmitMaxRetries, cfg.RetryBase()),
		WithCacheKind(cfg.Cache),
		WithRedis(cache.RedisOptions{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}),
		WithCacheTTL(cfg.CacheTTL()),
		WithSnapshotSize(cfg.SnapshotSize),
		WithMaxLeaderboardLimit(cfg.MaxLeaderboardLimit),
		WithQueueSize(cfg.EventQueueSize),
		WithWorkerCount(cfg.WorkerCount),
		WithDedupeSize(cfg.DedupeSize),
	}
}

// WithStoreKind selects the aggregate store backend.
func WithStoreKind(kind string) Option {
	return func(s *Service) {
		if kind != "" {
			s.storeKind = kind
		}
	}
}

// WithStore uses an already opened store. The service does not close it.
func WithStore(store repository.Store, name string) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
			s.storeKind = name
		}
	}
}

// WithPostgres sets the postgres connection string and pool bounds.
func WithPostgres(dsn string, maxConns, minConns int32) Option {
	return func(s *Service) {
		s.postgresDSN = dsn
		s.postgresMaxConns = maxConns
		s.postgresMinConns = minConns
	}
}

// WithSQLitePath sets the sqlite database file.
func WithSQLitePath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.sqlitePath = path
		}
	}
}

// WithMigrate toggles schema migrations on start.
func WithMigrate(enabled bool) Option {
	return func(s *Service) { s.migrate = enabled }
}

// WithSubmitStrategy selects upsert or row_lock for SQL stores.
func WithSubmitStrategy(strategy string) Option {
	return func(s *Service) {
		if strategy != "" {
			s.strategy = strategy
		}
	}
}

// WithLockTimeout bounds the wait for a player's lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// WithSubmitTimeout bounds a whole submission, retries included.
func WithSubmitTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.submitTimeout = d
		}
	}
}

// WithReadTimeout bounds ranking store reads.
func WithReadTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.readTimeout = d
		}
	}
}

// WithRetry sets how many times a conflicting submission is retried and the first backoff.
func WithRetry(maxRetries int, base time.Duration) Option {
	return func(s *Service) {
		if maxRetries >= 0 {
			s.maxRetries = maxRetries
		}
		if base > 0 {
			s.retryBase = base
		}
	}
}

// WithCacheKind selects the snapshot cache: none, memory or redis.
func WithCacheKind(kind string) Option {
	return func(s *Service) {
		if kind != "" {
			s.cacheKind = kind
		}
	}
}

// WithCache uses an already built cache. The service closes it on Stop.
func WithCache(c cache.Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithRedis sets the redis server used by the redis cache.
func WithRedis(o cache.RedisOptions) Option {
	return func(s *Service) { s.redis = o }
}

// WithCacheTTL bounds snapshot staleness.
func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

// WithSnapshotSize sets the minimum size of a rebuilt snapshot.
func WithSnapshotSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.snapshotSize = n
		}
	}
}

// WithMaxLeaderboardLimit caps top-N requests.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithQueueSize sets the capacity of the eviction queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithWorkerCount sets the number of eviction workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithDedupeSize sets how many request ids are remembered.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
