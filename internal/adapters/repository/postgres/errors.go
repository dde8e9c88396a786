package postgres

import (
	"context"
	"errors"
	"net"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/types"
)

// MapPgError classifies a pgx error for operation op.
func MapPgError(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *types.Error
	if errors.As(err, &classified) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return types.E(op, types.KindNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return types.E(op, types.KindTimeout, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.LockNotAvailable, pgerrcode.SerializationFailure, pgerrcode.DeadlockDetected:
			return types.E(op, types.KindConflict, err)
		case pgerrcode.ForeignKeyViolation:
			return types.E(op, types.KindNotFound, repository.ErrPlayerNotFound)
		case pgerrcode.UniqueViolation:
			return types.E(op, types.KindAlreadyExists, repository.ErrNameTaken)
		case pgerrcode.QueryCanceled:
			return types.E(op, types.KindTimeout, err)
		case pgerrcode.NumericValueOutOfRange:
			return types.E(op, types.KindInvalidArgument, errors.Join(repository.ErrTotalOverflow, err))
		case pgerrcode.AdminShutdown, pgerrcode.CrashShutdown, pgerrcode.CannotConnectNow, pgerrcode.TooManyConnections:
			return types.E(op, types.KindStoreUnavailable, err)
		}
		if pgerrcode.IsConnectionException(pgErr.Code) {
			return types.E(op, types.KindStoreUnavailable, err)
		}
		return types.E(op, types.KindInternal, err)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return types.E(op, types.KindStoreUnavailable, err)
	}
	if pgconn.Timeout(err) {
		return types.E(op, types.KindTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return types.E(op, types.KindStoreUnavailable, err)
	}
	return types.E(op, types.KindInternal, err)
}
