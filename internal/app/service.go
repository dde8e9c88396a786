// Package service wires the aggregate store, the ranking engine and the
// snapshot cache into the operations the HTTP API exposes.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/okian/scoreboard/internal/adapters/cache"
	"github.com/okian/scoreboard/internal/adapters/mq/queue"
	"github.com/okian/scoreboard/internal/adapters/mq/worker"
	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/adapters/repository/memory"
	"github.com/okian/scoreboard/internal/adapters/repository/postgres"
	"github.com/okian/scoreboard/internal/adapters/repository/sqlite"
	"github.com/okian/scoreboard/internal/config"
	"github.com/okian/scoreboard/internal/domain/dedupe"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/ranking"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

var (
	// ErrNotStarted is returned by operations called before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrInvalidPlayer is returned for a non-positive player id.
	ErrInvalidPlayer = errors.New("player id must be positive")
	// ErrUnknownBackend is returned by Start for an unsupported store or cache kind.
	ErrUnknownBackend = errors.New("unknown backend")
	// ErrRequestInFlight is returned for a repeated request id whose first
	// submission has not committed yet.
	ErrRequestInFlight = errors.New("submission with this request id is still in flight")
)

const (
	defaultTopLimit = 10
	statsTimeout    = time.Second
	stopTimeout     = 5 * time.Second
)

// SubmitRequest is one score submission.
type SubmitRequest struct {
	PlayerID  int64
	Delta     int64
	Mode      string
	RequestID string // optional; a repeated id for the same player is applied once
}

// SubmitResult reports the player's total after the submission.
type SubmitResult struct {
	PlayerID  int64 `json:"player_id"`
	NewTotal  int64 `json:"new_total"`
	Duplicate bool  `json:"duplicate"`
}

// Service implements the API dependencies for the leaderboard.
type Service struct {
	mu sync.RWMutex

	store     repository.Store
	ownsStore bool
	cache     cache.Cache
	engine    *ranking.Engine
	deduper   dedupe.Deduper
	evictions *queue.InMemoryQueue
	workers   *worker.Pool

	storeKind        string
	postgresDSN      string
	postgresMaxConns int32
	postgresMinConns int32
	sqlitePath       string
	migrate          bool
	strategy         string
	lockTimeout      time.Duration
	submitTimeout    time.Duration
	readTimeout      time.Duration
	maxRetries       int
	retryBase        time.Duration
	cacheKind        string
	redis            cache.RedisOptions
	cacheTTL         time.Duration
	snapshotSize     int
	maxLimit         int
	queueSize        int
	workerCount      int
	dedupeSize       int

	started   bool
	startedAt time.Time

	logger logger.Logger
}

// New constructs a Service. Nothing is opened until Start.
func New(opts ...Option) *Service {
	s := &Service{
		storeKind:     config.StoreMemory,
		sqlitePath:    "scoreboard.db",
		migrate:       true,
		strategy:      repository.StrategyUpsert,
		lockTimeout:   2 * time.Second,
		submitTimeout: 5 * time.Second,
		readTimeout:   ranking.DefaultReadTimeout,
		maxRetries:    3,
		retryBase:     10 * time.Millisecond,
		cacheKind:     config.CacheMemory,
		cacheTTL:      ranking.DefaultTTL,
		snapshotSize:  ranking.DefaultSnapshotSize,
		maxLimit:      100,
		queueSize:     1024,
		workerCount:   2,
		dedupeSize:    100_000,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the store, runs migrations if enabled, and builds the cache,
// ranking engine, eviction queue and workers.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.logger.Info(ctx, "starting leaderboard service", logger.String("store", s.storeKind))

	if s.store == nil {
		store, err := s.openStore(ctx)
		if err != nil {
			return err
		}
		s.store = repository.Instrument(store, s.storeKind)
		s.ownsStore = true
	}

	if s.cache == nil {
		s.cache = s.openCache(ctx)
	}

	engineOpts := []ranking.Option{
		ranking.WithCache(s.cache),
		ranking.WithTTL(s.cacheTTL),
		ranking.WithSnapshotSize(s.snapshotSize),
		ranking.WithReadTimeout(s.readTimeout),
		ranking.WithLogger(s.logger.Named("ranking")),
	}
	if s.cacheKind == config.CacheRedis {
		s.evictions = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
		s.workers = worker.NewPool(s.workerCount, s.evictions, s.cache)
		s.workers.Start(context.WithoutCancel(ctx))
		engineOpts = append(engineOpts, ranking.WithEvictions(s.evictions))
	}
	s.engine = ranking.New(s.store, engineOpts...)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "leaderboard service started",
		logger.String("cache", s.cacheKind),
		logger.Int("snapshot_size", s.snapshotSize),
		logger.Int("dedupe_size", s.dedupeSize),
		logger.Duration("lock_timeout", s.lockTimeout),
	)
	return nil
}

func (s *Service) openStore(ctx context.Context) (repository.Store, error) {
	opts := []repository.Option{
		repository.WithLockTimeout(s.lockTimeout),
		repository.WithSubmitStrategy(s.strategy),
		repository.WithMigrate(s.migrate),
	}
	switch s.storeKind {
	case config.StoreMemory:
		return memory.New(opts...), nil
	case config.StoreSQLite:
		st, err := sqlite.Open(ctx, s.sqlitePath, opts...)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		return st, nil
	case config.StorePostgres:
		st, err := postgres.Open(ctx, s.postgresDSN, postgres.PoolOptions{
			MaxConns: s.postgresMaxConns,
			MinConns: s.postgresMinConns,
		}, opts...)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: store %q", ErrUnknownBackend, s.storeKind)
	}
}

// openCache never fails: an unreachable redis degrades to no shared cache.
func (s *Service) openCache(ctx context.Context) cache.Cache {
	switch s.cacheKind {
	case config.CacheRedis:
		r, err := cache.NewRedis(ctx, s.redis)
		if err != nil {
			s.logger.Warn(ctx, "redis unavailable; continuing without shared cache",
				logger.String("addr", s.redis.Addr), logger.Error(err))
			metrics.RecordErrorByComponent("cache", "connect")
			s.cacheKind = config.CacheNone
			return cache.Noop{}
		}
		return r
	case config.CacheMemory:
		return cache.NewMemory()
	default:
		return cache.Noop{}
	}
}

// Stop tears down in reverse order of Start.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	s.logger.Info(ctx, "stopping leaderboard service")

	if s.workers != nil {
		if err := s.workers.Shutdown(ctx); err != nil {
			s.logger.Warn(ctx, "eviction workers did not stop cleanly", logger.Error(err))
		}
		s.workers, s.evictions = nil, nil
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			s.logger.Warn(ctx, "cache close failed", logger.Error(err))
		}
		s.cache = nil
	}
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(ctx, "store close failed", logger.Error(err))
		}
		s.store = nil
	}

	s.started = false
	s.logger.Info(ctx, "leaderboard service stopped")
}

func (s *Service) deps(op string) (repository.Store, *ranking.Engine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, types.E(op, types.KindStoreUnavailable, ErrNotStarted)
	}
	return s.store, s.engine, nil
}

// SubmitScore applies a delta to the player's total and invalidates the
// ranking once the write has committed. A Conflict from the store is
// retried with exponential backoff; other failures are returned at once.
func (s *Service) SubmitScore(ctx context.Context, req SubmitRequest) (res SubmitResult, err error) {
	const op = "service.SubmitScore"
	start := time.Now()
	defer func() {
		outcome := "ok"
		switch {
		case err != nil:
			outcome = types.CodeOf(err)
		case res.Duplicate:
			outcome = "duplicate"
		}
		metrics.RecordSubmission(outcome)
		metrics.RecordSubmitLatency(float64(time.Since(start).Milliseconds()))
	}()

	store, engine, err := s.deps(op)
	if err != nil {
		return SubmitResult{}, err
	}
	if req.PlayerID < 1 {
		return SubmitResult{}, types.E(op, types.KindInvalidArgument, ErrInvalidPlayer)
	}

	ctx, cancel := context.WithTimeout(ctx, s.submitTimeout)
	defer cancel()

	var key string
	if req.RequestID != "" {
		key = dedupe.Key(req.PlayerID, req.RequestID)
		switch s.deduper.Reserve(ctx, key) {
		case dedupe.Committed:
			metrics.RecordEventDuplicate()
			return s.duplicate(ctx, store, req.PlayerID)
		case dedupe.Pending:
			return SubmitResult{}, types.E(op, types.KindConflict, ErrRequestInFlight)
		}
	}

	agg, err := s.submitWithRetry(ctx, store, req)
	if err != nil {
		if key != "" {
			s.deduper.Unrecord(ctx, key)
		}
		if !errors.As(err, new(*types.Error)) {
			err = types.E(op, types.KindOf(err), err)
		}
		s.logger.Debug(ctx, "submission failed",
			logger.Int64("player_id", req.PlayerID),
			logger.String("code", types.CodeOf(err)),
			logger.Error(err),
		)
		return SubmitResult{}, err
	}

	if key != "" {
		s.deduper.Commit(ctx, key)
	}
	// The write is committed; invalidate even if the caller has gone away.
	engine.Invalidate(context.WithoutCancel(ctx))

	return SubmitResult{PlayerID: req.PlayerID, NewTotal: agg.Total}, nil
}

func (s *Service) submitWithRetry(ctx context.Context, store repository.Store, req SubmitRequest) (model.Aggregate, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryBase
	b.MaxInterval = 50 * s.retryBase

	attempt := 0
	return backoff.Retry(ctx, func() (model.Aggregate, error) {
		attempt++
		if attempt > 1 {
			metrics.RecordSubmitRetry()
		}
		agg, err := store.Submit(ctx, req.PlayerID, req.Delta, req.Mode)
		if err == nil {
			return agg, nil
		}
		if types.Retryable(err) {
			return model.Aggregate{}, err
		}
		return model.Aggregate{}, backoff.Permanent(err)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(uint(s.maxRetries+1)))
}

// duplicate reports the current total for a repeated request id whose first
// submission has committed; that delta is included.
func (s *Service) duplicate(ctx context.Context, store repository.Store, playerID int64) (SubmitResult, error) {
	agg, err := store.Aggregate(ctx, playerID)
	switch {
	case err == nil:
	case types.KindOf(err) == types.KindNotFound:
		if _, perr := store.Player(ctx, playerID); perr != nil {
			return SubmitResult{}, perr
		}
	default:
		return SubmitResult{}, err
	}
	return SubmitResult{PlayerID: playerID, NewTotal: agg.Total, Duplicate: true}, nil
}

// GetTopN returns up to n entries; n is capped at the configured maximum
// and defaults to 10 when zero.
func (s *Service) GetTopN(ctx context.Context, n int) ([]model.Entry, error) {
	_, engine, err := s.deps("service.GetTopN")
	if err != nil {
		return nil, err
	}
	if n == 0 {
		n = defaultTopLimit
	}
	n = min(n, s.maxLimit)
	return engine.TopN(ctx, n)
}

// GetRank returns the player's rank and total. NotFound if the player has no score yet.
func (s *Service) GetRank(ctx context.Context, playerID int64) (model.Standing, error) {
	const op = "service.GetRank"
	_, engine, err := s.deps(op)
	if err != nil {
		return model.Standing{}, err
	}
	if playerID < 1 {
		return model.Standing{}, types.E(op, types.KindInvalidArgument, ErrInvalidPlayer)
	}
	return engine.RankOf(ctx, playerID)
}

// RegisterPlayer creates a player with a unique name.
func (s *Service) RegisterPlayer(ctx context.Context, name string) (model.Player, error) {
	store, _, err := s.deps("service.RegisterPlayer")
	if err != nil {
		return model.Player{}, err
	}
	p, err := store.CreatePlayer(ctx, name)
	if err != nil {
		return model.Player{}, err
	}
	s.logger.Debug(ctx, "player registered", logger.Int64("player_id", p.ID), logger.String("name", p.Name))
	return p, nil
}

// GetPlayer returns a registered player.
func (s *Service) GetPlayer(ctx context.Context, id int64) (model.Player, error) {
	const op = "service.GetPlayer"
	store, _, err := s.deps(op)
	if err != nil {
		return model.Player{}, err
	}
	if id < 1 {
		return model.Player{}, types.E(op, types.KindInvalidArgument, ErrInvalidPlayer)
	}
	return store.Player(ctx, id)
}

// PlayerEvents lists the player's most recent events, newest first. A zero
// limit uses the default; larger limits are capped.
func (s *Service) PlayerEvents(ctx context.Context, id int64, limit int) ([]model.ScoreEvent, error) {
	store, _, err := s.deps("service.PlayerEvents")
	if err != nil {
		return nil, err
	}
	if _, err := s.GetPlayer(ctx, id); err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = repository.DefaultEventsLimit
	}
	limit = min(limit, repository.MaxEventsLimit)
	return store.Events(ctx, id, limit)
}

// Recompute rebuilds the player's total from the event log.
func (s *Service) Recompute(ctx context.Context, id int64) (model.Aggregate, error) {
	const op = "service.Recompute"
	store, engine, err := s.deps(op)
	if err != nil {
		return model.Aggregate{}, err
	}
	if id < 1 {
		return model.Aggregate{}, types.E(op, types.KindInvalidArgument, ErrInvalidPlayer)
	}
	agg, err := store.Recompute(ctx, id)
	if err != nil {
		return model.Aggregate{}, err
	}
	engine.Invalidate(context.WithoutCancel(ctx))
	s.logger.Info(ctx, "aggregate recomputed", logger.Int64("player_id", id), logger.Int64("total", agg.Total))
	return agg, nil
}

// Ready reports whether the store answers.
func (s *Service) Ready(ctx context.Context) error {
	store, _, err := s.deps("service.Ready")
	if err != nil {
		return err
	}
	return store.Ping(ctx)
}

// GetStats returns service statistics for monitoring. The store is queried
// after the lock is released, so a slow Count never holds up Stop.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	stats := map[string]interface{}{
		"started":        s.started,
		"store":          s.storeKind,
		"cache":          s.cacheKind,
		"workerCount":    s.workerCount,
		"queueSize":      s.queueSize,
		"dedupeSize":     s.dedupeSize,
		"maxLimit":       s.maxLimit,
		"snapshotSize":   s.snapshotSize,
		"submitStrategy": s.strategy,
	}
	if !s.started {
		s.mu.RUnlock()
		return stats
	}
	store, evictions := s.store, s.evictions
	stats["generation"] = s.engine.Generation()
	stats["dedupeEntries"] = s.deduper.Size()
	stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())
	s.mu.RUnlock()

	if evictions != nil {
		stats["queueLength"] = evictions.Len()
	}

	ctx, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	if n, err := store.Count(ctx); err == nil {
		stats["totalPlayers"] = n
		metrics.UpdateTotalPlayers(n)
	} else {
		stats["storeError"] = types.CodeOf(err)
	}
	return stats
}
