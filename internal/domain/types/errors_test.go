package types_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	types "github.com/okian/scoreboard/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestKinds(t *testing.T) {
	cases := []struct {
		kind     types.Kind
		code     string
		status   int
		sentinel error
	}{
		{types.KindNotFound, "not_found", http.StatusNotFound, types.ErrNotFound},
		{types.KindConflict, "conflict", http.StatusConflict, types.ErrConflict},
		{types.KindTimeout, "timeout", http.StatusGatewayTimeout, types.ErrTimeout},
		{types.KindStoreUnavailable, "store_unavailable", http.StatusServiceUnavailable, types.ErrStoreUnavailable},
		{types.KindInvalidArgument, "invalid_argument", http.StatusBadRequest, types.ErrInvalidArgument},
		{types.KindAlreadyExists, "already_exists", http.StatusConflict, types.ErrAlreadyExists},
		{types.KindInternal, "internal", http.StatusInternalServerError, types.ErrInternal},
	}

	seen := map[string]bool{}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := types.E("store.Submit", tc.kind, errors.New("driver said no"))
			if got := types.CodeOf(err); got != tc.code {
				t.Fatalf("CodeOf = %q, want %q", got, tc.code)
			}
			if got := types.HTTPStatus(err); got != tc.status {
				t.Fatalf("HTTPStatus = %d, want %d", got, tc.status)
			}
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("errors.Is(%v, %v) = false", err, tc.sentinel)
			}
			if seen[tc.code] {
				t.Fatalf("code %q is not distinct", tc.code)
			}
			seen[tc.code] = true
		})
	}
}

func TestClassification(t *testing.T) {
	Convey("Given classified errors", t, func() {
		Convey("When an error is wrapped further up the stack", func() {
			inner := types.E("postgres.Submit", types.KindConflict, errors.New("55P03"))
			outer := fmt.Errorf("service: submit: %w", inner)

			Convey("Then the kind survives wrapping", func() {
				So(types.KindOf(outer), ShouldEqual, types.KindConflict)
				So(errors.Is(outer, types.ErrConflict), ShouldBeTrue)
				So(errors.Is(outer, types.ErrNotFound), ShouldBeFalse)
				So(types.Retryable(outer), ShouldBeTrue)
			})

			Convey("Then the message names op, kind and cause", func() {
				So(inner.Error(), ShouldEqual, "postgres.Submit: conflict: 55P03")
			})
		})

		Convey("When a bare sentinel is returned", func() {
			err := fmt.Errorf("lookup player 7: %w", types.ErrNotFound)

			Convey("Then it classifies by sentinel", func() {
				So(types.CodeOf(err), ShouldEqual, "not_found")
				So(types.Retryable(err), ShouldBeFalse)
			})
		})

		Convey("When a context deadline leaks through", func() {
			err := fmt.Errorf("query: %w", context.DeadlineExceeded)

			Convey("Then it is a timeout", func() {
				So(types.KindOf(err), ShouldEqual, types.KindTimeout)
			})
		})

		Convey("When the error is unclassified", func() {
			err := errors.New("boom")

			Convey("Then it is internal and never a success code", func() {
				So(types.CodeOf(err), ShouldEqual, "internal")
				So(types.CodeOf(err), ShouldNotBeEmpty)
				So(types.HTTPStatus(err), ShouldEqual, http.StatusInternalServerError)
			})
		})

		Convey("When the error is nil", func() {
			So(types.CodeOf(nil), ShouldEqual, "")
			So(types.HTTPStatus(nil), ShouldEqual, http.StatusOK)
			So(types.Retryable(nil), ShouldBeFalse)
		})

		Convey("When an out-of-range kind is used", func() {
			err := types.E("op", types.Kind(99), nil)
			So(types.CodeOf(err), ShouldEqual, "internal")
			So(err.Error(), ShouldEqual, "op: internal error")
		})
	})
}
