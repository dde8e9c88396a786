package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/metrics"
)

const (
	insertEventSQL = `INSERT INTO score_events (player_id, delta, mode) VALUES ($1, $2, $3)`

	upsertAggregateSQL = `
INSERT INTO aggregates (player_id, total, updated_at) VALUES ($1, $2, now())
ON CONFLICT (player_id) DO UPDATE
    SET total = aggregates.total + EXCLUDED.total, updated_at = EXCLUDED.updated_at
RETURNING player_id, total, updated_at`

	lockAggregateSQL = `SELECT total FROM aggregates WHERE player_id = $1 FOR UPDATE`

	updateAggregateSQL = `
UPDATE aggregates SET total = total + $2, updated_at = now()
WHERE player_id = $1
RETURNING player_id, total, updated_at`
)

func (s *Store) CreatePlayer(ctx context.Context, name string) (model.Player, error) {
	const op = "postgres.CreatePlayer"
	if err := s.ready(ctx, op); err != nil {
		return model.Player{}, err
	}
	name, err := repository.NormalizeName(op, name)
	if err != nil {
		return model.Player{}, err
	}
	var p model.Player
	err = s.pool.QueryRow(ctx,
		`INSERT INTO players (name) VALUES ($1) RETURNING id, name, created_at`, name,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if err != nil {
		return model.Player{}, MapPgError(op, err)
	}
	return p, nil
}

func (s *Store) Player(ctx context.Context, id int64) (model.Player, error) {
	const op = "postgres.Player"
	if err := s.ready(ctx, op); err != nil {
		return model.Player{}, err
	}
	var p model.Player
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM players WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Player{}, types.E(op, types.KindNotFound, repository.ErrPlayerNotFound)
	}
	if err != nil {
		return model.Player{}, MapPgError(op, err)
	}
	return p, nil
}

// Submit appends the event first so an unknown player fails on the foreign
// key before any aggregate lock is taken.
func (s *Store) Submit(ctx context.Context, playerID, delta int64, mode string) (model.Aggregate, error) {
	const op = "postgres.Submit"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}
	var agg model.Aggregate
	err := s.withinTx(ctx, op, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertEventSQL, playerID, delta, repository.Mode(mode)); err != nil {
			return err
		}
		if s.settings.Strategy == repository.StrategyRowLock {
			return applyRowLock(ctx, tx, playerID, delta, &agg)
		}
		return tx.QueryRow(ctx, upsertAggregateSQL, playerID, delta).
			Scan(&agg.PlayerID, &agg.Total, &agg.UpdatedAt)
	})
	if err != nil {
		return model.Aggregate{}, err
	}
	return agg, nil
}

// applyRowLock locks the aggregate row explicitly, then updates it, or
// inserts it when the player has none yet. A concurrent first insert is
// absorbed by the upsert.
func applyRowLock(ctx context.Context, tx pgx.Tx, playerID, delta int64, agg *model.Aggregate) error {
	var current int64
	err := tx.QueryRow(ctx, lockAggregateSQL, playerID).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return tx.QueryRow(ctx, upsertAggregateSQL, playerID, delta).
			Scan(&agg.PlayerID, &agg.Total, &agg.UpdatedAt)
	case err != nil:
		return err
	}
	return tx.QueryRow(ctx, updateAggregateSQL, playerID, delta).
		Scan(&agg.PlayerID, &agg.Total, &agg.UpdatedAt)
}

func (s *Store) Aggregate(ctx context.Context, playerID int64) (model.Aggregate, error) {
	const op = "postgres.Aggregate"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}
	var agg model.Aggregate
	err := s.pool.QueryRow(ctx,
		`SELECT player_id, total, updated_at FROM aggregates WHERE player_id = $1`, playerID,
	).Scan(&agg.PlayerID, &agg.Total, &agg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Aggregate{}, types.E(op, types.KindNotFound, repository.ErrAggregateNotFound)
	}
	if err != nil {
		return model.Aggregate{}, MapPgError(op, err)
	}
	return agg, nil
}

func (s *Store) TopN(ctx context.Context, n int) ([]model.Entry, error) {
	const op = "postgres.TopN"
	if err := s.ready(ctx, op); err != nil {
		return nil, err
	}
	if err := repository.CheckLimit(op, n); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT a.player_id, p.name, a.total
FROM aggregates a
JOIN players p ON p.id = a.player_id
ORDER BY a.total DESC, a.player_id ASC
LIMIT $1`, n)
	if err != nil {
		return nil, MapPgError(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Entry, error) {
		var e model.Entry
		err := row.Scan(&e.PlayerID, &e.Name, &e.Total)
		return e, err
	})
	if err != nil {
		return nil, MapPgError(op, err)
	}
	return out, nil
}

func (s *Store) CountAbove(ctx context.Context, total int64) (int64, error) {
	const op = "postgres.CountAbove"
	if err := s.ready(ctx, op); err != nil {
		return 0, err
	}
	var count int64
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM aggregates WHERE total > $1`, total,
	).Scan(&count); err != nil {
		return 0, MapPgError(op, err)
	}
	return count, nil
}

func (s *Store) Events(ctx context.Context, playerID int64, limit int) ([]model.ScoreEvent, error) {
	const op = "postgres.Events"
	if err := s.ready(ctx, op); err != nil {
		return nil, err
	}
	if err := repository.CheckLimit(op, limit); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
SELECT id, player_id, delta, mode, created_at
FROM score_events
WHERE player_id = $1
ORDER BY id DESC
LIMIT $2`, playerID, limit)
	if err != nil {
		return nil, MapPgError(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.ScoreEvent, error) {
		var ev model.ScoreEvent
		err := row.Scan(&ev.ID, &ev.PlayerID, &ev.Delta, &ev.Mode, &ev.CreatedAt)
		return ev, err
	})
	if err != nil {
		return nil, MapPgError(op, err)
	}
	if len(out) == 0 {
		if _, err := s.Player(ctx, playerID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Recompute locks the aggregate row, then re-sums the committed events.
// Holding the row lock means no submission can commit in between.
func (s *Store) Recompute(ctx context.Context, playerID int64) (model.Aggregate, error) {
	const op = "postgres.Recompute"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}
	var agg model.Aggregate
	repaired := false
	err := s.withinTx(ctx, op, func(tx pgx.Tx) error {
		var current int64
		hasRow := true
		if err := tx.QueryRow(ctx, lockAggregateSQL, playerID).Scan(&current); err != nil {
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
			hasRow = false
		}

		var sum, events int64
		if err := tx.QueryRow(ctx,
			`SELECT COALESCE(SUM(delta), 0), count(*) FROM score_events WHERE player_id = $1`, playerID,
		).Scan(&sum, &events); err != nil {
			return err
		}
		if events == 0 {
			return types.E(op, types.KindNotFound, repository.ErrAggregateNotFound)
		}

		repaired = !hasRow || current != sum
		return tx.QueryRow(ctx, `
INSERT INTO aggregates (player_id, total, updated_at) VALUES ($1, $2, now())
ON CONFLICT (player_id) DO UPDATE
    SET total = EXCLUDED.total,
        updated_at = CASE WHEN aggregates.total = EXCLUDED.total THEN aggregates.updated_at ELSE EXCLUDED.updated_at END
RETURNING player_id, total, updated_at`, playerID, sum).
			Scan(&agg.PlayerID, &agg.Total, &agg.UpdatedAt)
	})
	if err != nil {
		return model.Aggregate{}, err
	}
	if repaired {
		metrics.RecordRecomputeRepair()
	}
	return agg, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	const op = "postgres.Count"
	if err := s.ready(ctx, op); err != nil {
		return 0, err
	}
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM aggregates`).Scan(&n); err != nil {
		return 0, MapPgError(op, err)
	}
	return n, nil
}
