// Package dedupe remembers submission request ids so a retried submission
// is applied at most once.
package dedupe

import (
	"container/list"
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Status is what Reserve found for a key.
type Status int

const (
	// Fresh: the key was unknown and is now reserved as pending.
	Fresh Status = iota
	// Pending: another submission holds the key and has not committed yet.
	Pending
	// Committed: the submission recorded under the key has been applied.
	Committed
)

func (s Status) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Pending:
		return "pending"
	case Committed:
		return "committed"
	default:
		return "unknown"
	}
}

// Deduper records request keys through reserve, commit and release.
type Deduper interface {
	// Reserve atomically looks key up and, if unknown, records it as pending.
	Reserve(ctx context.Context, key string) Status

	// Commit marks a reserved key as applied. Unknown keys are ignored.
	Commit(ctx context.Context, key string)

	// Unrecord forgets key so the submission can be retried. Used when the
	// submission reserved under key failed before commit.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// Key scopes a client request id to a player, so two players may reuse ids.
func Key(playerID int64, requestID string) string {
	return strconv.FormatInt(playerID, 10) + "/" + requestID
}

type record struct {
	key       string
	committed bool
}

// inMemoryDeduper keeps keys in insertion order; when full, the oldest key
// is forgotten first (FIFO). maxSize <= 0 means unbounded.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]*list.Element // value is *record
	order   *list.List // front = newest
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{
		maxSize: 50_000,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]*list.Element)
	d.order = list.New()
	return d
}

func (d *inMemoryDeduper) Reserve(_ context.Context, key string) Status {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists {
		if el.Value.(*record).committed {
			return Committed
		}
		return Pending
	}
	if d.maxSize > 0 && len(d.seen) >= d.maxSize {
		d.evictOldest()
	}
	d.seen[key] = d.order.PushFront(&record{key: key})
	d.size.Add(1)
	return Fresh
}

func (d *inMemoryDeduper) Commit(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists {
		el.Value.(*record).committed = true
	}
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if el, exists := d.seen[key]; exists {
		d.order.Remove(el)
		delete(d.seen, key)
		d.size.Add(-1)
	}
}

// evictOldest must be called with d.mu held.
func (d *inMemoryDeduper) evictOldest() {
	back := d.order.Back()
	if back == nil {
		return
	}
	d.order.Remove(back)
	delete(d.seen, back.Value.(*record).key)
	d.size.Add(-1)
}

// Size returns the current number of remembered keys.
func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
