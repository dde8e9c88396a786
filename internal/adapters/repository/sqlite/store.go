package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/metrics"
)

const upsertAggregateSQL = `
INSERT INTO aggregates (player_id, total, updated_at) VALUES (?, ?, ?)
ON CONFLICT (player_id) DO UPDATE
    SET total = total + excluded.total, updated_at = excluded.updated_at
RETURNING player_id, total, updated_at`

func (s *Store) CreatePlayer(ctx context.Context, name string) (model.Player, error) {
	const op = "sqlite.CreatePlayer"
	if err := s.ready(ctx, op); err != nil {
		return model.Player{}, err
	}
	name, err := repository.NormalizeName(op, name)
	if err != nil {
		return model.Player{}, err
	}
	p := model.Player{Name: name, CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	err = s.withinTx(ctx, op, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO players (name, created_at) VALUES (?, ?) RETURNING id`,
			name, toMillis(p.CreatedAt),
		).Scan(&p.ID)
	})
	if err != nil {
		return model.Player{}, err
	}
	return p, nil
}

func (s *Store) Player(ctx context.Context, id int64) (model.Player, error) {
	const op = "sqlite.Player"
	if err := s.ready(ctx, op); err != nil {
		return model.Player{}, err
	}
	var (
		p       model.Player
		created int64
	)
	err := s.reader.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM players WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Player{}, types.E(op, types.KindNotFound, repository.ErrPlayerNotFound)
	}
	if err != nil {
		return model.Player{}, mapError(op, err)
	}
	p.CreatedAt = fromMillis(created)
	return p, nil
}

func (s *Store) Submit(ctx context.Context, playerID, delta int64, mode string) (model.Aggregate, error) {
	const op = "sqlite.Submit"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}
	var agg model.Aggregate
	err := s.withinTx(ctx, op, func(tx *sql.Tx) error {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM players WHERE id = ?`, playerID).Scan(&exists); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return types.E(op, types.KindNotFound, repository.ErrPlayerNotFound)
			}
			return err
		}
		// SQLite turns an overflowing integer sum into a REAL, so check first.
		var current int64
		err := tx.QueryRowContext(ctx, `SELECT total FROM aggregates WHERE player_id = ?`, playerID).Scan(&current)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		if _, err := repository.AddTotal(op, current, delta); err != nil {
			return err
		}
		now := toMillis(time.Now())
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO score_events (player_id, delta, mode, created_at) VALUES (?, ?, ?, ?)`,
			playerID, delta, repository.Mode(mode), now,
		); err != nil {
			return err
		}
		var updated int64
		if err := tx.QueryRowContext(ctx, upsertAggregateSQL, playerID, delta, now).
			Scan(&agg.PlayerID, &agg.Total, &updated); err != nil {
			return err
		}
		agg.UpdatedAt = fromMillis(updated)
		return nil
	})
	if err != nil {
		return model.Aggregate{}, err
	}
	return agg, nil
}

func (s *Store) Aggregate(ctx context.Context, playerID int64) (model.Aggregate, error) {
	const op = "sqlite.Aggregate"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}
	var (
		agg     model.Aggregate
		updated int64
	)
	err := s.reader.QueryRowContext(ctx,
		`SELECT player_id, total, updated_at FROM aggregates WHERE player_id = ?`, playerID,
	).Scan(&agg.PlayerID, &agg.Total, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Aggregate{}, types.E(op, types.KindNotFound, repository.ErrAggregateNotFound)
	}
	if err != nil {
		return model.Aggregate{}, mapError(op, err)
	}
	agg.UpdatedAt = fromMillis(updated)
	return agg, nil
}

func (s *Store) TopN(ctx context.Context, n int) ([]model.Entry, error) {
	const op = "sqlite.TopN"
	if err := s.ready(ctx, op); err != nil {
		return nil, err
	}
	if err := repository.CheckLimit(op, n); err != nil {
		return nil, err
	}
	rows, err := s.reader.QueryContext(ctx, `
SELECT a.player_id, p.name, a.total
FROM aggregates a
JOIN players p ON p.id = a.player_id
ORDER BY a.total DESC, a.player_id ASC
LIMIT ?`, n)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	out := make([]model.Entry, 0, min(n, 128))
	for rows.Next() {
		var e model.Entry
		if err := rows.Scan(&e.PlayerID, &e.Name, &e.Total); err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

func (s *Store) CountAbove(ctx context.Context, total int64) (int64, error) {
	const op = "sqlite.CountAbove"
	if err := s.ready(ctx, op); err != nil {
		return 0, err
	}
	var count int64
	if err := s.reader.QueryRowContext(ctx,
		`SELECT count(*) FROM aggregates WHERE total > ?`, total,
	).Scan(&count); err != nil {
		return 0, mapError(op, err)
	}
	return count, nil
}

func (s *Store) Events(ctx context.Context, playerID int64, limit int) ([]model.ScoreEvent, error) {
	const op = "sqlite.Events"
	if err := s.ready(ctx, op); err != nil {
		return nil, err
	}
	if err := repository.CheckLimit(op, limit); err != nil {
		return nil, err
	}
	rows, err := s.reader.QueryContext(ctx, `
SELECT id, player_id, delta, mode, created_at
FROM score_events
WHERE player_id = ?
ORDER BY id DESC
LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var out []model.ScoreEvent
	for rows.Next() {
		var (
			ev      model.ScoreEvent
			created int64
		)
		if err := rows.Scan(&ev.ID, &ev.PlayerID, &ev.Delta, &ev.Mode, &created); err != nil {
			return nil, mapError(op, err)
		}
		ev.CreatedAt = fromMillis(created)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	if len(out) == 0 {
		if _, err := s.Player(ctx, playerID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *Store) Recompute(ctx context.Context, playerID int64) (model.Aggregate, error) {
	const op = "sqlite.Recompute"
	if err := s.ready(ctx, op); err != nil {
		return model.Aggregate{}, err
	}
	var agg model.Aggregate
	repaired := false
	err := s.withinTx(ctx, op, func(tx *sql.Tx) error {
		var sum, events int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(delta), 0), count(*) FROM score_events WHERE player_id = ?`, playerID,
		).Scan(&sum, &events); err != nil {
			return err
		}
		if events == 0 {
			return types.E(op, types.KindNotFound, repository.ErrAggregateNotFound)
		}

		var current, updated int64
		err := tx.QueryRowContext(ctx,
			`SELECT total, updated_at FROM aggregates WHERE player_id = ?`, playerID,
		).Scan(&current, &updated)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			repaired = true
		case err != nil:
			return err
		case current == sum:
			agg = model.Aggregate{PlayerID: playerID, Total: sum, UpdatedAt: fromMillis(updated)}
			return nil
		default:
			repaired = true
		}

		now := toMillis(time.Now())
		if _, err := tx.ExecContext(ctx, `
INSERT INTO aggregates (player_id, total, updated_at) VALUES (?, ?, ?)
ON CONFLICT (player_id) DO UPDATE SET total = excluded.total, updated_at = excluded.updated_at`,
			playerID, sum, now); err != nil {
			return err
		}
		agg = model.Aggregate{PlayerID: playerID, Total: sum, UpdatedAt: fromMillis(now)}
		return nil
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
	const op = "sqlite.Count"
	if err := s.ready(ctx, op); err != nil {
		return 0, err
	}
	var n int
	if err := s.reader.QueryRowContext(ctx, `SELECT count(*) FROM aggregates`).Scan(&n); err != nil {
		return 0, mapError(op, err)
	}
	return n, nil
}
