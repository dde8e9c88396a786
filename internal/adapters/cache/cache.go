// Package cache stores serialized leaderboard snapshots.
//
// Cache failures are never fatal to a request: callers treat an error the
// same as a miss and fall back to the store.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps backend failures.
var ErrUnavailable = errors.New("cache unavailable")

// Cache is a byte-oriented key/value cache with per-entry TTL.
type Cache interface {
	// Get returns the value and true on a hit, false on a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Noop always misses.
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(context.Context, string) ([]byte, bool, error)         { return nil, false, nil }
func (Noop) Set(context.Context, string, []byte, time.Duration) error { return nil }
func (Noop) Delete(context.Context, string) error                     { return nil }
func (Noop) Close() error                                             { return nil }
