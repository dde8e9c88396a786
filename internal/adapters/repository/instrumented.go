package repository

import (
	"context"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/metrics"
)

// Instrument wraps s so every call records latency and classified errors
// under the backend label name. A RankIndex stays visible through the wrapper.
func Instrument(s Store, name string) Store {
	in := &instrumented{next: s, name: name}
	if idx, ok := s.(RankIndex); ok {
		return &instrumentedIndex{instrumented: in, idx: idx}
	}
	return in
}

type instrumented struct {
	next Store
	name string
}

func (s *instrumented) observe(op string, start time.Time, err error) {
	metrics.RecordStoreLatency(s.name, op, float64(time.Since(start).Microseconds())/1000)
	if err != nil {
		metrics.RecordStoreError(s.name, types.CodeOf(err))
	}
}

func (s *instrumented) CreatePlayer(ctx context.Context, name string) (p model.Player, err error) {
	defer func(start time.Time) { s.observe("create_player", start, err) }(time.Now())
	return s.next.CreatePlayer(ctx, name)
}

func (s *instrumented) Player(ctx context.Context, id int64) (p model.Player, err error) {
	defer func(start time.Time) { s.observe("player", start, err) }(time.Now())
	return s.next.Player(ctx, id)
}

func (s *instrumented) Submit(ctx context.Context, playerID, delta int64, mode string) (a model.Aggregate, err error) {
	defer func(start time.Time) { s.observe("submit", start, err) }(time.Now())
	return s.next.Submit(ctx, playerID, delta, mode)
}

func (s *instrumented) Aggregate(ctx context.Context, playerID int64) (a model.Aggregate, err error) {
	defer func(start time.Time) { s.observe("aggregate", start, err) }(time.Now())
	return s.next.Aggregate(ctx, playerID)
}

func (s *instrumented) TopN(ctx context.Context, n int) (out []model.Entry, err error) {
	defer func(start time.Time) { s.observe("top_n", start, err) }(time.Now())
	return s.next.TopN(ctx, n)
}

func (s *instrumented) CountAbove(ctx context.Context, total int64) (c int64, err error) {
	defer func(start time.Time) { s.observe("count_above", start, err) }(time.Now())
	return s.next.CountAbove(ctx, total)
}

func (s *instrumented) Events(ctx context.Context, playerID int64, limit int) (out []model.ScoreEvent, err error) {
	defer func(start time.Time) { s.observe("events", start, err) }(time.Now())
	return s.next.Events(ctx, playerID, limit)
}

func (s *instrumented) Recompute(ctx context.Context, playerID int64) (a model.Aggregate, err error) {
	defer func(start time.Time) { s.observe("recompute", start, err) }(time.Now())
	return s.next.Recompute(ctx, playerID)
}

func (s *instrumented) Count(ctx context.Context) (n int, err error) {
	defer func(start time.Time) { s.observe("count", start, err) }(time.Now())
	return s.next.Count(ctx)
}

func (s *instrumented) Ping(ctx context.Context) (err error) {
	defer func(start time.Time) { s.observe("ping", start, err) }(time.Now())
	return s.next.Ping(ctx)
}

func (s *instrumented) Close() error { return s.next.Close() }

type instrumentedIndex struct {
	*instrumented
	idx RankIndex
}

func (s *instrumentedIndex) RankOf(ctx context.Context, playerID int64) (st model.Standing, err error) {
	defer func(start time.Time) { s.observe("rank_of", start, err) }(time.Now())
	return s.idx.RankOf(ctx, playerID)
}
