// Package postgres is the PostgreSQL aggregate store.
//
// Submissions run in one transaction that appends the score event and
// applies the delta to the aggregate row. Lock waits are bounded with a
// transaction-local lock_timeout, and lock or serialization failures come
// back as retryable conflicts.
package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/pressly/goose/v3"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PoolOptions size the connection pool. Zero values keep pgx defaults.
type PoolOptions struct {
	MaxConns int32
	MinConns int32
}

// Store implements repository.Store on PostgreSQL.
type Store struct {
	pool     *pgxpool.Pool
	settings repository.Settings
	closed   atomic.Bool
}

var _ repository.Store = (*Store)(nil)

// Open connects to dsn, verifies the connection and, when enabled, applies
// the embedded migrations.
func Open(ctx context.Context, dsn string, po PoolOptions, opts ...repository.Option) (*Store, error) {
	settings := repository.Apply(opts...)

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse pool config: %w", err)
	}
	cfg.ConnConfig.Tracer = &tracelog.TraceLog{
		Logger:   newPgxLogger(),
		LogLevel: traceLevel(),
	}
	if po.MaxConns > 0 {
		cfg.MaxConns = po.MaxConns
	}
	if po.MinConns > 0 && po.MinConns <= cfg.MaxConns {
		cfg.MinConns = po.MinConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, MapPgError("postgres.Open", err)
	}

	if settings.Migrate {
		if err := migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	logger.Get().Info(ctx, "connected to postgres",
		logger.String("host", cfg.ConnConfig.Host),
		logger.String("db", cfg.ConnConfig.Database),
		logger.Int("max_conns", int(cfg.MaxConns)),
		logger.String("strategy", settings.Strategy),
	)
	return &Store{pool: pool, settings: settings}, nil
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("postgres: migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return repository.Migrate(ctx, goose.DialectPostgres, db, sub)
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

// withinTx runs fn in a read-committed transaction whose lock waits are
// bounded by the configured lock timeout. fn's error is returned classified;
// the transaction is rolled back on any error.
func (s *Store) withinTx(ctx context.Context, op string, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return MapPgError(op, err)
	}
	defer func() {
		// No-op after a successful commit.
		_ = tx.Rollback(context.Background())
	}()

	timeout := fmt.Sprintf("%dms", s.settings.LockTimeout.Milliseconds())
	if _, err := tx.Exec(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
		return MapPgError(op, err)
	}
	if err := fn(tx); err != nil {
		return MapPgError(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return MapPgError(op, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	const op = "postgres.Ping"
	if err := s.ready(ctx, op); err != nil {
		return err
	}
	return MapPgError(op, s.pool.Ping(ctx))
}

func (s *Store) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.pool.Close()
	}
	return nil
}
