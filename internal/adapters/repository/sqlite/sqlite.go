// Package sqlite is the embedded single-node aggregate store.
//
// SQLite serialises writers database-wide, so the store funnels every write
// through one connection; the wait for it is bounded by the lock timeout
// and reported as a conflict. Reads use a separate pool and see committed
// state through WAL.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/types"
	"github.com/okian/scoreboard/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const memoryPath = ":memory:"

// Store implements repository.Store on SQLite.
type Store struct {
	writer   *sql.DB
	reader   *sql.DB
	settings repository.Settings
	closed   atomic.Bool
}

var _ repository.Store = (*Store)(nil)

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func dsn(path string, busy time.Duration, readOnly bool) string {
	q := []string{
		"_pragma=foreign_keys(1)",
		fmt.Sprintf("_pragma=busy_timeout(%d)", busy.Milliseconds()),
		"_pragma=synchronous(NORMAL)",
	}
	if path != memoryPath {
		q = append(q, "_pragma=journal_mode(WAL)")
	}
	if readOnly {
		q = append(q, "_pragma=query_only(1)")
	} else {
		q = append(q, "_txlock=immediate")
	}
	return path + "?" + strings.Join(q, "&")
}

// Open opens (creating if needed) the database at path and, when enabled,
// applies the embedded migrations. ":memory:" gives a private in-memory
// database served by a single connection.
func Open(ctx context.Context, path string, opts ...repository.Option) (*Store, error) {
	settings := repository.Apply(opts...)
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite: storage path is required")
	}
	if path != memoryPath {
		path = filepath.Clean(path)
	}

	writer, err := sql.Open("sqlite", dsn(path, settings.LockTimeout, false))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	writer.SetMaxOpenConns(1)
	writer.SetMaxIdleConns(1)
	writer.SetConnMaxLifetime(0)
	if err := writer.PingContext(ctx); err != nil {
		_ = writer.Close()
		return nil, mapError("sqlite.Open", err)
	}

	if settings.Migrate {
		sub, err := fs.Sub(migrationsFS, "migrations")
		if err == nil {
			err = repository.Migrate(ctx, goose.DialectSQLite3, writer, sub)
		}
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("sqlite: %w", err)
		}
	}

	reader := writer
	if path != memoryPath {
		reader, err = sql.Open("sqlite", dsn(path, settings.LockTimeout, true))
		if err != nil {
			_ = writer.Close()
			return nil, fmt.Errorf("sqlite: open reader: %w", err)
		}
		reader.SetMaxOpenConns(4)
	}

	logger.Get().Info(ctx, "opened sqlite store", logger.String("path", path))
	return &Store{writer: writer, reader: reader, settings: settings}, nil
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

// withinTx takes the writer connection, waiting at most the lock timeout,
// and runs fn in an immediate transaction bound to ctx.
func (s *Store) withinTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	waitCtx, cancel := context.WithTimeout(ctx, s.settings.LockTimeout)
	conn, err := s.writer.Conn(waitCtx)
	cancel()
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return types.E(op, types.KindConflict, repository.ErrLockWait)
		}
		return mapError(op, err)
	}
	defer conn.Close()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return mapError(op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return mapError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return mapError(op, err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	const op = "sqlite.Ping"
	if err := s.ready(ctx, op); err != nil {
		return err
	}
	return mapError(op, s.reader.PingContext(ctx))
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	var err error
	if s.reader != s.writer {
		err = s.reader.Close()
	}
	return errors.Join(err, s.writer.Close())
}
