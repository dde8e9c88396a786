// Package memory is an in-process aggregate store backed by a treap
// order-statistics index.
//
// Each player has a one-slot lock channel that serialises the
// read-modify-write of its aggregate; waits on it are bounded by the
// configured lock timeout. A short index latch publishes the event, the
// new total and the treap position together, so readers never observe a
// half-applied submission.
package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
)

// Store implements repository.Store and repository.RankIndex.
type Store struct {
	settings repository.Settings

	mu         sync.RWMutex // index latch
	root       *node
	players    map[int64]model.Player
	byName     map[string]int64
	aggregates map[int64]model.Aggregate
	events     map[int64][]model.ScoreEvent
	nextPlayer int64
	nextEvent  int64

	lockMu sync.Mutex
	locks  map[int64]chan struct{}

	closed atomic.Bool
	now    func() time.Time
}

var (
	_ repository.Store     = (*Store)(nil)
	_ repository.RankIndex = (*Store)(nil)
)

// New constructs an empty store.
func New(opts ...repository.Option) *Store {
	return &Store{
		settings:   repository.Apply(opts...),
		players:    make(map[int64]model.Player),
		byName:     make(map[string]int64),
		aggregates: make(map[int64]model.Aggregate),
		events:     make(map[int64][]model.ScoreEvent),
		locks:      make(map[int64]chan struct{}),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) ready(ctx context.Context, op string) error {
	if s.closed.Load() {
		return types.E(op, types.KindStoreUnavailable, repository.ErrClosed)
	}
	if err := ctx.Err(); err != nil {
		return types.E(op, types.KindTimeout, err)
	}
	return nil
}

// lockPlayer takes the player's lock, waiting at most the lock timeout.
func (s *Store) lockPlayer(ctx context.Context, op string, id int64) (func(), error) {
	s.lockMu.Lock()
	ch, ok := s.locks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[id] = ch
	}
	s.lockMu.Unlock()

	release := func() { <-ch }
	select {
	case ch <- struct{}{}:
		return release, nil
	default:
	}

	timer := time.NewTimer(s.settings.LockTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return release, nil
	case <-timer.C:
		return nil, types.E(op, types.KindConflict, repository.ErrLockWait)
	case <-ctx.Done():
		return nil, types.E(op, types.KindTimeout, ctx.Err())
	}
}

func (s *Store) CreatePlayer(ctx context.Context, name string) (model.Player, error) {
	const op = "memory.CreatePlayer"
	if err := s.ready(ctx, op); err != nil {
		return model.Player{}, err
	}
	name, err := repository.NormalizeName(op, name)
	if err != nil {
		return model.Player{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byName[name]; taken {
		return model.Player{}, types.E(op, types.KindAlreadyExists, repository.ErrNameTaken)
	}
	s.nextPlayer++
	p := model.Player{ID: s.nextPlayer, Name: name, CreatedAt: s.now()}
	s.players[p.ID] = p
	s.byName[name] = p.ID
	return p, nil
}

func (s *Store) Player(ctx context.Context, id int64) (model.Player, error) {
	const op = "memory.Player"
	if err := s.ready(ctx, op); err != nil {
		return model.Player{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.players[id]
	if !ok {
		return model.Player{}, types.E(op, types.KindNotFound, repository.ErrPlayerNotFound)
	}
	return p, nil
}

func (s *Store) Submit(ctx context.Context, playerID, delta int64, mode string) (model.Aggregate, error) {
	const op = "memory.Submit"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}

	s.mu.RLock()
	_, known := s.players[playerID]
	s.mu.RUnlock()
	if !known {
		return model.Aggregate{}, types.E(op, types.KindNotFound, repository.ErrPlayerNotFound)
	}

	unlock, err := s.lockPlayer(ctx, op, playerID)
	if err != nil {
		return model.Aggregate{}, err
	}
	defer unlock()

	// Cancellation before commit leaves nothing behind.
	if err := ctx.Err(); err != nil {
		return model.Aggregate{}, types.E(op, types.KindTimeout, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	agg, ok := s.aggregates[playerID]
	total, err := repository.AddTotal(op, agg.Total, delta)
	if err != nil {
		return model.Aggregate{}, err
	}
	now := s.now()
	s.nextEvent++
	s.events[playerID] = append(s.events[playerID], model.ScoreEvent{
		ID:        s.nextEvent,
		PlayerID:  playerID,
		Delta:     delta,
		Mode:      repository.Mode(mode),
		CreatedAt: now,
	})
	if ok {
		s.root = remove(s.root, playerID, agg.Total)
	}
	agg = model.Aggregate{PlayerID: playerID, Total: total, UpdatedAt: now}
	s.aggregates[playerID] = agg
	s.root = insert(s.root, playerID, agg.Total)
	return agg, nil
}

func (s *Store) Aggregate(ctx context.Context, playerID int64) (model.Aggregate, error) {
	const op = "memory.Aggregate"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggregates[playerID]
	if !ok {
		return model.Aggregate{}, types.E(op, types.KindNotFound, repository.ErrAggregateNotFound)
	}
	return agg, nil
}

func (s *Store) TopN(ctx context.Context, n int) ([]model.Entry, error) {
	const op = "memory.TopN"
	if err := s.ready(ctx, op); err != nil {
		return nil, err
	}
	if err := repository.CheckLimit(op, n); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Entry, 0, min(n, nsize(s.root)))
	collectTopN(s.root, n, s.players, &out)
	return out, nil
}

func (s *Store) CountAbove(ctx context.Context, total int64) (int64, error) {
	const op = "memory.CountAbove"
	if err := s.ready(ctx, op); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, agg := range s.aggregates {
		if agg.Total > total {
			count++
		}
	}
	return count, nil
}

// RankOf answers from the treap in O(log n).
func (s *Store) RankOf(ctx context.Context, playerID int64) (model.Standing, error) {
	const op = "memory.RankOf"
	if err := s.ready(ctx, op); err != nil {
		return model.Standing{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	agg, ok := s.aggregates[playerID]
	if !ok {
		return model.Standing{}, types.E(op, types.KindNotFound, repository.ErrAggregateNotFound)
	}
	return model.Standing{
		PlayerID: playerID,
		Rank:     1 + countGreater(s.root, agg.Total),
		Total:    agg.Total,
	}, nil
}

func (s *Store) Events(ctx context.Context, playerID int64, limit int) ([]model.ScoreEvent, error) {
	const op = "memory.Events"
	if err := s.ready(ctx, op); err != nil {
		return nil, err
	}
	if err := repository.CheckLimit(op, limit); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.players[playerID]; !ok {
		return nil, types.E(op, types.KindNotFound, repository.ErrPlayerNotFound)
	}
	log := s.events[playerID]
	out := make([]model.ScoreEvent, 0, min(limit, len(log)))
	for i := len(log) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, log[i])
	}
	return out, nil
}

func (s *Store) Recompute(ctx context.Context, playerID int64) (model.Aggregate, error) {
	const op = "memory.Recompute"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}
	unlock, err := s.lockPlayer(ctx, op, playerID)
	if err != nil {
		return model.Aggregate{}, err
	}
	defer unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.events[playerID]
	if len(log) == 0 {
		return model.Aggregate{}, types.E(op, types.KindNotFound, repository.ErrAggregateNotFound)
	}
	var sum int64
	for _, ev := range log {
		if sum, err = repository.AddTotal(op, sum, ev.Delta); err != nil {
			return model.Aggregate{}, err
		}
	}
	agg := s.aggregates[playerID]
	if agg.Total == sum {
		return agg, nil
	}
	s.root = remove(s.root, playerID, agg.Total)
	agg = model.Aggregate{PlayerID: playerID, Total: sum, UpdatedAt: s.now()}
	s.aggregates[playerID] = agg
	s.root = insert(s.root, playerID, sum)
	return agg, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.ready(ctx, "memory.Count"); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.aggregates), nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.ready(ctx, "memory.Ping")
}

func (s *Store) Close() error {
	s.closed.Store(true)
	return nil
}
