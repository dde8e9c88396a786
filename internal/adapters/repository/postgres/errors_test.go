package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/domain/types"
)

func TestMapPgError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want types.Kind
	}{
		{"lock timeout", &pgconn.PgError{Code: pgerrcode.LockNotAvailable}, types.KindConflict},
		{"serialization", &pgconn.PgError{Code: pgerrcode.SerializationFailure}, types.KindConflict},
		{"deadlock", &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, types.KindConflict},
		{"missing player", &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation}, types.KindNotFound},
		{"duplicate name", &pgconn.PgError{Code: pgerrcode.UniqueViolation}, types.KindAlreadyExists},
		{"statement timeout", &pgconn.PgError{Code: pgerrcode.QueryCanceled}, types.KindTimeout},
		{"connection failure", &pgconn.PgError{Code: pgerrcode.ConnectionFailure}, types.KindStoreUnavailable},
		{"admin shutdown", &pgconn.PgError{Code: pgerrcode.AdminShutdown}, types.KindStoreUnavailable},
		{"overflow", &pgconn.PgError{Code: pgerrcode.NumericValueOutOfRange}, types.KindInvalidArgument},
		{"syntax", &pgconn.PgError{Code: pgerrcode.SyntaxError}, types.KindInternal},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), types.KindTimeout},
		{"no rows", pgx.ErrNoRows, types.KindNotFound},
		{"unknown", errors.New("boom"), types.KindInternal},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MapPgError("postgres.Test", tc.err)
			if types.KindOf(got) != tc.want {
				t.Fatalf("MapPgError(%v) kind = %v, want %v", tc.err, types.KindOf(got), tc.want)
			}
		})
	}

	overflow := MapPgError("op", &pgconn.PgError{Code: pgerrcode.NumericValueOutOfRange})
	if !errors.Is(overflow, repository.ErrTotalOverflow) {
		t.Fatalf("out-of-range totals must wrap ErrTotalOverflow, got %v", overflow)
	}

	if MapPgError("op", nil) != nil {
		t.Fatal("nil must map to nil")
	}
	already := types.E("inner", types.KindNotFound, nil)
	if got := MapPgError("outer", already); got != already {
		t.Fatalf("classified errors must pass through, got %v", got)
	}
}
