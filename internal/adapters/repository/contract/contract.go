// Package contract is the behavioural suite every repository.Store backend
// must pass. Backends call Run from their own tests with a factory that
// returns an empty store.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
)

// Factory returns an empty store; the suite closes it.
type Factory func(t *testing.T) repository.Store

// Options tune the suite for slower backends.
type Options struct {
	// Concurrency is the number of parallel delta=1 submissions for one player.
	Concurrency int
}

// Run executes the suite.
func Run(t *testing.T, open Factory, opts Options) {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1000
	}

	t.Run("submit_accumulates", func(t *testing.T) { testSubmitAccumulates(t, open(t)) })
	t.Run("unknown_player", func(t *testing.T) { testUnknownPlayer(t, open(t)) })
	t.Run("players", func(t *testing.T) { testPlayers(t, open(t)) })
	t.Run("sum_invariant", func(t *testing.T) { testSumInvariant(t, open(t)) })
	t.Run("total_overflow", func(t *testing.T) { testTotalOverflow(t, open(t)) })
	t.Run("concurrent_same_player", func(t *testing.T) { testConcurrentSamePlayer(t, open(t), opts.Concurrency) })
	t.Run("two_concurrent_submits", func(t *testing.T) { testTwoConcurrent(t, open(t)) })
	t.Run("top_n_order", func(t *testing.T) { testTopNOrder(t, open(t)) })
	t.Run("rank_matches_count", func(t *testing.T) { testRankMatchesCount(t, open(t)) })
	t.Run("events_and_recompute", func(t *testing.T) { testEventsAndRecompute(t, open(t)) })
	t.Run("cancelled_submit", func(t *testing.T) { testCancelledSubmit(t, open(t)) })
}

func register(t *testing.T, s repository.Store, name string) model.Player {
	t.Helper()
	p, err := s.CreatePlayer(context.Background(), name)
	require.NoError(t, err)
	require.Equal(t, name, p.Name)
	return p
}

func requireKind(t *testing.T, err error, kind types.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, types.KindOf(err), "unexpected kind for %v", err)
}

func testSubmitAccumulates(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()
	p := register(t, s, "alice")

	agg, err := s.Submit(ctx, p.ID, 100, "")
	require.NoError(t, err)
	require.EqualValues(t, 100, agg.Total)

	agg, err = s.Submit(ctx, p.ID, 50, "")
	require.NoError(t, err)
	require.EqualValues(t, 150, agg.Total)

	got, err := s.Aggregate(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 150, got.Total)

	events, err := s.Events(ctx, p.ID, repository.MaxEventsLimit)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.EqualValues(t, 50, events[0].Delta, "events are newest first")
	require.EqualValues(t, 100, events[1].Delta)
	require.Equal(t, model.DefaultMode, events[0].Mode)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.NoError(t, s.Ping(ctx))
}

func testTotalOverflow(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()
	hi := register(t, s, "ceiling")
	lo := register(t, s, "floor")

	_, err := s.Submit(ctx, hi.ID, math.MaxInt64, "")
	require.NoError(t, err)
	_, err = s.Submit(ctx, lo.ID, math.MinInt64, "")
	require.NoError(t, err)

	_, err = s.Submit(ctx, hi.ID, 1, "")
	requireKind(t, err, types.KindInvalidArgument)
	require.ErrorIs(t, err, repository.ErrTotalOverflow)
	_, err = s.Submit(ctx, lo.ID, -1, "")
	requireKind(t, err, types.KindInvalidArgument)
	require.ErrorIs(t, err, repository.ErrTotalOverflow)

	// The rejected writes left no trace: totals, event logs and ranks hold.
	for id, want := range map[int64]int64{hi.ID: math.MaxInt64, lo.ID: math.MinInt64} {
		agg, err := s.Aggregate(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, agg.Total)

		events, err := s.Events(ctx, id, repository.MaxEventsLimit)
		require.NoError(t, err)
		require.Len(t, events, 1)

		rebuilt, err := s.Recompute(ctx, id)
		require.NoError(t, err)
		require.Equal(t, want, rebuilt.Total)
	}

	above, err := s.CountAbove(ctx, math.MaxInt64)
	require.NoError(t, err)
	require.Zero(t, above)
	top, err := s.TopN(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	require.Equal(t, hi.ID, top[0].PlayerID)
}

func testUnknownPlayer(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()

	_, err := s.Submit(ctx, 424242, 10, "")
	requireKind(t, err, types.KindNotFound)
	require.True(t, errors.Is(err, types.ErrNotFound))

	_, err = s.Aggregate(ctx, 424242)
	requireKind(t, err, types.KindNotFound)

	n, err := s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, n, "a failed submit must not create an aggregate")

	// A registered player without submissions has no aggregate either.
	p := register(t, s, "idle")
	_, err = s.Aggregate(ctx, p.ID)
	requireKind(t, err, types.KindNotFound)
}

func testPlayers(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()
	p := register(t, s, "bob")

	got, err := s.Player(ctx, p.ID)
	require.NoError(t, err)
	require.Equal(t, p.ID, got.ID)
	require.Equal(t, "bob", got.Name)

	_, err = s.CreatePlayer(ctx, "bob")
	requireKind(t, err, types.KindAlreadyExists)

	_, err = s.CreatePlayer(ctx, "   ")
	requireKind(t, err, types.KindInvalidArgument)

	_, err = s.Player(ctx, p.ID+1000)
	requireKind(t, err, types.KindNotFound)
}

func testSumInvariant(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()
	r := rand.New(rand.NewPCG(1, 2))

	players := make([]model.Player, 5)
	for i := range players {
		players[i] = register(t, s, fmt.Sprintf("sum-%d", i))
	}
	want := map[int64]int64{}
	for i := 0; i < 200; i++ {
		p := players[r.IntN(len(players))]
		delta := r.Int64N(201) - 100
		_, err := s.Submit(ctx, p.ID, delta, "ranked")
		require.NoError(t, err)
		want[p.ID] += delta
	}

	for _, p := range players {
		if _, ok := want[p.ID]; !ok {
			continue
		}
		agg, err := s.Aggregate(ctx, p.ID)
		require.NoError(t, err)
		require.Equal(t, want[p.ID], agg.Total)

		events, err := s.Events(ctx, p.ID, repository.MaxEventsLimit)
		require.NoError(t, err)
		var sum int64
		for _, ev := range events {
			sum += ev.Delta
			require.Equal(t, "ranked", ev.Mode)
		}
		require.Equal(t, agg.Total, sum)
	}
}

func testConcurrentSamePlayer(t *testing.T, s repository.Store, n int) {
	defer s.Close()
	ctx := context.Background()
	p := register(t, s, "hammer")

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Submit(ctx, p.ID, 1, ""); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	agg, err := s.Aggregate(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, n, agg.Total)

	events, err := s.Events(ctx, p.ID, repository.MaxEventsLimit)
	require.NoError(t, err)
	require.Len(t, events, min(n, repository.MaxEventsLimit))
}

func testTwoConcurrent(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()
	p := register(t, s, "pair")

	var wg sync.WaitGroup
	results := make([]int64, 2)
	errs := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agg, err := s.Submit(ctx, p.ID, 10, "")
			results[i], errs[i] = agg.Total, err
		}(i)
	}
	wg.Wait()
	require.NoError(t, errors.Join(errs...))

	sort.Slice(results, func(i, j int) bool { return results[i] < results[j] })
	require.Equal(t, []int64{10, 20}, results, "each submit observes a distinct committed total")

	events, err := s.Events(ctx, p.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
}

func testTopNOrder(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()

	totals := []int64{30, 50, 50, -5, 0}
	ids := make([]int64, len(totals))
	for i, total := range totals {
		p := register(t, s, fmt.Sprintf("top-%d", i))
		ids[i] = p.ID
		_, err := s.Submit(ctx, p.ID, total, "")
		require.NoError(t, err)
	}

	top, err := s.TopN(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, len(totals))
	for i := 1; i < len(top); i++ {
		require.True(t, model.Before(top[i-1], top[i]), "entries out of order at %d: %+v %+v", i, top[i-1], top[i])
	}
	require.Equal(t, ids[1], top[0].PlayerID, "ties break on the lower player id")
	require.Equal(t, "top-1", top[0].Name)

	head, err := s.TopN(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, top[:2], head)

	_, err = s.TopN(ctx, 0)
	requireKind(t, err, types.KindInvalidArgument)

	above, err := s.CountAbove(ctx, 30)
	require.NoError(t, err)
	require.EqualValues(t, 2, above)
}

func testRankMatchesCount(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()
	r := rand.New(rand.NewPCG(7, 11))

	const players = 60
	totals := map[int64]int64{}
	for i := 0; i < players; i++ {
		p := register(t, s, fmt.Sprintf("rank-%d", i))
		// A narrow range forces plenty of ties.
		delta := r.Int64N(15) - 3
		_, err := s.Submit(ctx, p.ID, delta, "")
		require.NoError(t, err)
		totals[p.ID] = delta
	}

	idx, hasIndex := s.(repository.RankIndex)
	for id, total := range totals {
		var naive int64 = 1
		for _, other := range totals {
			if other > total {
				naive++
			}
		}
		above, err := s.CountAbove(ctx, total)
		require.NoError(t, err)
		require.Equal(t, naive, above+1, "player %d", id)

		if hasIndex {
			st, err := idx.RankOf(ctx, id)
			require.NoError(t, err)
			require.Equal(t, naive, st.Rank, "index rank for player %d", id)
			require.Equal(t, total, st.Total)
		}
	}
}

func testEventsAndRecompute(t *testing.T, s repository.Store) {
	defer s.Close()
	ctx := context.Background()
	p := register(t, s, "audit")

	for _, d := range []int64{5, -2, 7} {
		_, err := s.Submit(ctx, p.ID, d, "practice")
		require.NoError(t, err)
	}

	events, err := s.Events(ctx, p.ID, 2)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.EqualValues(t, 7, events[0].Delta)
	require.EqualValues(t, -2, events[1].Delta)
	require.True(t, events[0].ID > events[1].ID)

	agg, err := s.Recompute(ctx, p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 10, agg.Total)

	_, err = s.Events(ctx, p.ID, 0)
	requireKind(t, err, types.KindInvalidArgument)

	_, err = s.Events(ctx, p.ID+1000, 10)
	requireKind(t, err, types.KindNotFound)

	idle := register(t, s, "never-played")
	_, err = s.Recompute(ctx, idle.ID)
	requireKind(t, err, types.KindNotFound)
}

func testCancelledSubmit(t *testing.T, s repository.Store) {
	defer s.Close()
	p := register(t, s, "cancelled")

	_, err := s.Submit(context.Background(), p.ID, 40, "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Submit(ctx, p.ID, 1, "")
	require.Error(t, err)

	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel2()
	time.Sleep(time.Millisecond)
	_, err = s.Submit(ctx2, p.ID, 1, "")
	require.Error(t, err)

	agg, err := s.Aggregate(context.Background(), p.ID)
	require.NoError(t, err)
	require.EqualValues(t, 40, agg.Total, "a cancelled submit leaves no partial effect")

	events, err := s.Events(context.Background(), p.ID, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
}
