// Package repository defines the aggregate store: players, their append-only
// score events, and the per-player running totals the leaderboard ranks.
package repository

import (
	"context"
	"strings"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
)

// Store provides transactional access to players, events and aggregates.
//
// Reads observe committed state only. Every error is classified with a
// types.Kind so callers never see driver errors.
type Store interface {
	// CreatePlayer registers a player. AlreadyExists if name is taken,
	// InvalidArgument if it is blank.
	CreatePlayer(ctx context.Context, name string) (model.Player, error)
	// Player returns the registered player or NotFound.
	Player(ctx context.Context, id int64) (model.Player, error)

	// Submit appends a score event for playerID and applies delta to the
	// player's aggregate in one transaction, creating the aggregate when it
	// is absent. It returns the aggregate after the update.
	//
	// NotFound if the player is not registered. Conflict if the player's lock
	// could not be taken within the configured wait. Timeout if ctx expires
	// first. StoreUnavailable if the backend cannot be reached. InvalidArgument
	// (wrapping ErrTotalOverflow) if the new total would not fit in int64. On any error
	// the aggregate is unchanged and no event is recorded.
	Submit(ctx context.Context, playerID, delta int64, mode string) (model.Aggregate, error)

	// Aggregate returns the player's aggregate or NotFound.
	Aggregate(ctx context.Context, playerID int64) (model.Aggregate, error)
	// TopN returns up to n aggregates ordered by total desc, player id asc.
	TopN(ctx context.Context, n int) ([]model.Entry, error)
	// CountAbove returns how many aggregates have a total strictly greater than total.
	CountAbove(ctx context.Context, total int64) (int64, error)
	// Events returns up to limit of the player's events, newest first.
	Events(ctx context.Context, playerID int64, limit int) ([]model.ScoreEvent, error)
	// Recompute rebuilds the player's aggregate from the event log under the
	// player's lock. NotFound if the player has no events.
	Recompute(ctx context.Context, playerID int64) (model.Aggregate, error)

	// Count returns the number of aggregates.
	Count(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// RankIndex is implemented by stores that can answer a rank query without
// scanning the population. Answers equal 1 + CountAbove(total).
type RankIndex interface {
	RankOf(ctx context.Context, playerID int64) (model.Standing, error)
}

// Limits applied to list queries.
const (
	DefaultEventsLimit = 50
	MaxEventsLimit     = 1_000
)

// NormalizeName trims a player name and rejects blank ones.
func NormalizeName(op, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", types.E(op, types.KindInvalidArgument, ErrEmptyName)
	}
	return name, nil
}

// CheckLimit rejects non-positive list sizes.
func CheckLimit(op string, n int) error {
	if n < 1 {
		return types.E(op, types.KindInvalidArgument, ErrInvalidLimit)
	}
	return nil
}

// Mode returns mode, or the default mode tag when it is blank.
func Mode(mode string) string {
	if m := strings.TrimSpace(mode); m != "" {
		return m
	}
	return model.DefaultMode
}

// AddTotal returns total+delta. A sum outside the int64 range is an
// InvalidArgument wrapping ErrTotalOverflow; nothing may be written then.
func AddTotal(op string, total, delta int64) (int64, error) {
	sum := total + delta
	if (delta > 0 && sum < total) || (delta < 0 && sum > total) {
		return 0, types.E(op, types.KindInvalidArgument, ErrTotalOverflow)
	}
	return sum, nil
}
