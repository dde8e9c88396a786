package sqlite

import (
	"context"
	"database/sql"
	"errors"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/types"
)

// mapError classifies a database/sql or SQLite error for operation op.
func mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *types.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return types.E(op, types.KindNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.E(op, types.KindTimeout, err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return types.E(op, types.KindStoreUnavailable, err)
	}

	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch code {
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return types.E(op, types.KindNotFound, repository.ErrPlayerNotFound)
		case sqlite3lib.SQLITE_CONSTRAINT_UNIQUE, sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY:
			return types.E(op, types.KindAlreadyExists, repository.ErrNameTaken)
		}
		switch code & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return types.E(op, types.KindConflict, err)
		case sqlite3lib.SQLITE_CANTOPEN, sqlite3lib.SQLITE_IOERR, sqlite3lib.SQLITE_READONLY:
			return types.E(op, types.KindStoreUnavailable, err)
		case sqlite3lib.SQLITE_INTERRUPT:
			return types.E(op, types.KindTimeout, err)
		}
	}
	return types.E(op, types.KindInternal, err)
}
