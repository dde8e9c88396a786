// Package types holds the error taxonomy shared by every layer.
//
// Store adapters classify driver errors into a Kind at the boundary; the
// HTTP layer only ever inspects Kind, Code and HTTPStatus.
package types

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind uint8

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindTimeout
	KindStoreUnavailable
	KindInvalidArgument
	KindAlreadyExists
)

// Sentinels for errors.Is checks. An *Error of a given kind matches its sentinel.
var (
	ErrInternal         = errors.New("internal error")
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrTimeout          = errors.New("timeout")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrAlreadyExists    = errors.New("already exists")
)

var kinds = [...]struct {
	code     string
	status   int
	sentinel error
}{
	KindInternal:         {"internal", http.StatusInternalServerError, ErrInternal},
	KindNotFound:         {"not_found", http.StatusNotFound, ErrNotFound},
	KindConflict:         {"conflict", http.StatusConflict, ErrConflict},
	KindTimeout:          {"timeout", http.StatusGatewayTimeout, ErrTimeout},
	KindStoreUnavailable: {"store_unavailable", http.StatusServiceUnavailable, ErrStoreUnavailable},
	KindInvalidArgument:  {"invalid_argument", http.StatusBadRequest, ErrInvalidArgument},
	KindAlreadyExists:    {"already_exists", http.StatusConflict, ErrAlreadyExists},
}

func (k Kind) valid() Kind {
	if int(k) >= len(kinds) {
		return KindInternal
	}
	return k
}

// Code is the stable machine-readable code of the kind.
func (k Kind) Code() string { return kinds[k.valid()].code }

// HTTPStatus is the response status the kind maps to.
func (k Kind) HTTPStatus() int { return kinds[k.valid()].status }

func (k Kind) String() string { return k.Code() }

// Error is a classified failure raised by operation Op.
type Error struct {
	Op   string
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, kinds[e.Kind.valid()].sentinel)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, kinds[e.Kind.valid()].sentinel, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNotFound) hold for any *Error of KindNotFound.
func (e *Error) Is(target error) bool {
	return target == kinds[e.Kind.valid()].sentinel
}

// E builds a classified error.
func E(op string, kind Kind, err error) error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Errorf builds a classified error with a formatted cause.
func Errorf(op string, kind Kind, format string, args ...any) error {
	return &Error{Op: op, Kind: kind, Err: fmt.Errorf(format, args...)}
}

// KindOf classifies err. The outermost *Error wins; bare sentinels and
// context errors are recognised; anything else is Internal.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.valid()
	}
	for k := range kinds {
		if errors.Is(err, kinds[k].sentinel) {
			return Kind(k)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return KindTimeout
	}
	return KindInternal
}

// CodeOf returns the stable code for err, or "" for nil. A non-nil error
// always yields a failure code.
func CodeOf(err error) string {
	if err == nil {
		return ""
	}
	return KindOf(err).Code()
}

// HTTPStatus returns the response status for err; 200 for nil.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	return KindOf(err).HTTPStatus()
}

// Retryable reports whether the operation may succeed if repeated as is.
func Retryable(err error) bool {
	return err != nil && KindOf(err) == KindConflict
}
