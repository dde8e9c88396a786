// Package ranking answers leaderboard queries from cached snapshots and the
// aggregate store.
//
// Every committed submission calls Invalidate, which bumps an in-process
// generation. A snapshot is only served while it carries the current
// generation, so a read that starts after Invalidate returns never sees a
// snapshot taken before the write. Snapshots built by other processes are
// accepted when their store read began after the last local invalidation.
package ranking

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

// ErrInvalidLimit is returned for a non-positive top-N size.
var ErrInvalidLimit = errors.New("limit must be positive")

// Reader is the slice of the aggregate store the engine reads.
type Reader interface {
	TopN(ctx context.Context, n int) ([]model.Entry, error)
	CountAbove(ctx context.Context, total int64) (int64, error)
	Aggregate(ctx context.Context, playerID int64) (model.Aggregate, error)
}

// Index is implemented by stores that rank without a population scan.
type Index interface {
	RankOf(ctx context.Context, playerID int64) (model.Standing, error)
}

// Cache stores serialized snapshots.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Evictions accepts remote eviction jobs without blocking.
type Evictions interface {
	Enqueue(ctx context.Context, j model.Eviction) bool
}

// Engine serves TopN and RankOf.
type Engine struct {
	store     Reader
	index     Index
	cache     Cache
	evictions Evictions

	ttl          time.Duration
	snapshotSize int
	readTimeout  time.Duration
	key          string
	origin       string

	gen           atomic.Uint64
	invalidatedAt atomic.Int64 // unix nanos of the last Invalidate
	local         atomic.Pointer[model.Snapshot]
	group         singleflight.Group

	now    func() time.Time
	logger logger.Logger
}

// New creates an engine over store. If store implements Index, rank queries use it.
func New(store Reader, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		ttl:          DefaultTTL,
		snapshotSize: DefaultSnapshotSize,
		readTimeout:  DefaultReadTimeout,
		key:          DefaultKey,
		origin:       uuid.NewString(),
		now:          time.Now,
		logger:       logger.Get().Named("ranking"),
	}
	if idx, ok := store.(Index); ok {
		e.index = idx
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generation returns the current ranking generation.
func (e *Engine) Generation() uint64 { return e.gen.Load() }

// Invalidate marks every existing snapshot stale. It must be called after
// the write it follows has committed.
func (e *Engine) Invalidate(ctx context.Context) {
	e.invalidatedAt.Store(e.now().UnixNano())
	g := e.gen.Add(1)
	metrics.RecordInvalidation()
	metrics.UpdateSnapshotGeneration(g)

	if e.cache == nil {
		return
	}
	if e.evictions != nil {
		j := model.Eviction{Key: e.key, Generation: g, At: e.now()}
		if !e.evictions.Enqueue(ctx, j) {
			e.logger.Debug(ctx, "eviction dropped", logger.Uint64("generation", g))
		}
		return
	}
	if err := e.cache.Delete(ctx, e.key); err != nil {
		metrics.RecordCacheResult("error")
		e.logger.Warn(ctx, "snapshot eviction failed", logger.Error(err))
	}
}

// TopN returns the n best players, highest total first, ties by lower id.
func (e *Engine) TopN(ctx context.Context, n int) ([]model.Entry, error) {
	const op = "ranking.TopN"
	if n < 1 {
		return nil, types.E(op, types.KindInvalidArgument, ErrInvalidLimit)
	}
	start := time.Now()
	defer func() {
		metrics.RecordQueryLatency("top", float64(time.Since(start).Milliseconds()))
	}()

	g := e.gen.Load()
	if s := e.local.Load(); s != nil && e.usable(s, g, n) {
		metrics.RecordCacheResult("hit_local")
		return s.Head(n), nil
	}
	if s, ok := e.fromCache(ctx, g, n); ok {
		metrics.RecordCacheResult("hit_remote")
		e.keep(s)
		return s.Head(n), nil
	}
	metrics.RecordCacheResult("miss")

	s, err := e.rebuild(ctx, op, g, max(n, e.snapshotSize))
	if err != nil {
		return nil, err
	}
	return s.Head(n), nil
}

// RankOf returns the player's 1-based rank: one more than the number of
// players with a strictly greater total.
func (e *Engine) RankOf(ctx context.Context, playerID int64) (model.Standing, error) {
	const op = "ranking.RankOf"
	start := time.Now()
	defer func() {
		metrics.RecordQueryLatency("rank", float64(time.Since(start).Milliseconds()))
	}()

	ctx, cancel := context.WithTimeout(ctx, e.readTimeout)
	defer cancel()

	if e.index != nil {
		st, err := e.index.RankOf(ctx, playerID)
		if err != nil {
			return model.Standing{}, classify(op, err)
		}
		return st, nil
	}

	agg, err := e.store.Aggregate(ctx, playerID)
	if err != nil {
		return model.Standing{}, classify(op, err)
	}
	above, err := e.store.CountAbove(ctx, agg.Total)
	if err != nil {
		return model.Standing{}, classify(op, err)
	}
	return model.Standing{PlayerID: playerID, Rank: above + 1, Total: agg.Total}, nil
}

func (e *Engine) usable(s *model.Snapshot, g uint64, n int) bool {
	if !s.Covers(n) || e.now().Sub(s.ReadAt) >= e.ttl {
		return false
	}
	if s.Origin == e.origin {
		return s.Generation == g
	}
	return s.ReadAt.UnixNano() > e.invalidatedAt.Load()
}

func (e *Engine) fromCache(ctx context.Context, g uint64, n int) (*model.Snapshot, bool) {
	if e.cache == nil {
		return nil, false
	}
	raw, ok, err := e.cache.Get(ctx, e.key)
	if err != nil {
		metrics.RecordCacheResult("error")
		e.logger.Warn(ctx, "snapshot cache read failed", logger.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var s model.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		metrics.RecordCacheResult("error")
		e.logger.Warn(ctx, "snapshot cache entry unreadable", logger.Error(err))
		return nil, false
	}
	if !e.usable(&s, g, n) {
		return nil, false
	}
	return &s, true
}

// rebuild reads the store once per (generation, size) no matter how many
// callers ask concurrently. The snapshot is tagged with g, read before the
// store read starts.
func (e *Engine) rebuild(ctx context.Context, op string, g uint64, size int) (*model.Snapshot, error) {
	key := strconv.FormatUint(g, 10) + "/" + strconv.Itoa(size)
	ch := e.group.DoChan(key, func() (any, error) {
		readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.readTimeout)
		defer cancel()

		readAt := e.now()
		entries, err := e.store.TopN(readCtx, size)
		if err != nil {
			return nil, err
		}
		s := &model.Snapshot{
			Generation: g,
			Origin:     e.origin,
			Entries:    entries,
			Complete:   len(entries) < size,
			ReadAt:     readAt,
		}
		took := e.now().Sub(readAt)
		metrics.RecordSnapshotRebuild(float64(took.Milliseconds()))
		e.keep(s)
		e.publish(readCtx, s)
		e.logger.Debug(ctx, "snapshot rebuilt",
			logger.Uint64("generation", g),
			logger.Int("entries", len(entries)),
			logger.Duration("took", took),
		)
		return s, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, classify(op, res.Err)
		}
		return res.Val.(*model.Snapshot), nil
	case <-ctx.Done():
		return nil, types.E(op, types.KindTimeout, ctx.Err())
	}
}

// keep installs s as the in-process snapshot unless a newer one is there.
func (e *Engine) keep(s *model.Snapshot) {
	for {
		cur := e.local.Load()
		if cur != nil && cur.Origin == s.Origin && cur.Generation > s.Generation {
			return
		}
		if e.local.CompareAndSwap(cur, s) {
			return
		}
	}
}

func (e *Engine) publish(ctx context.Context, s *model.Snapshot) {
	if e.cache == nil || s.Generation != e.gen.Load() {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		e.logger.Error(ctx, "snapshot encode failed", logger.Error(err))
		return
	}
	if err := e.cache.Set(ctx, e.key, raw, e.ttl); err != nil {
		metrics.RecordCacheResult("error")
		e.logger.Warn(ctx, "snapshot cache write failed", logger.Error(err))
	}
}

// classify keeps store classifications and turns a bare deadline into Timeout.
func classify(op string, err error) error {
	var te *types.Error
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.E(op, types.KindTimeout, err)
	}
	return types.E(op, types.KindInternal, err)
}
