package postgres

import "context"

// Truncate wipes every table so contract tests start empty.
func Truncate(ctx context.Context, s *Store) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE aggregates, score_events, players RESTART IDENTITY`)
	return err
}
