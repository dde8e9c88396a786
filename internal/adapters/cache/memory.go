package cache

import (
	"context"
	"sync"
	"time"
)

type item struct {
	val     []byte
	expires time.Time
}

// Memory is an in-process cache. Expired entries are dropped lazily on read.
type Memory struct {
	mu    sync.RWMutex
	items map[string]item
	now   func() time.Time
}

var _ Cache = (*Memory)(nil)

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{items: make(map[string]item), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	it, ok := m.items[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !it.expires.IsZero() && !m.now().Before(it.expires) {
		m.mu.Lock()
		if cur, still := m.items[key]; still && cur.expires.Equal(it.expires) {
			delete(m.items, key)
		}
		m.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(it.val))
	copy(out, it.val)
	return out, true, nil
}

// Set stores val; ttl <= 0 keeps it until deleted.
func (m *Memory) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	it := item{val: append([]byte(nil), val...)}
	if ttl > 0 {
		it.expires = m.now().Add(ttl)
	}
	m.mu.Lock()
	m.items[key] = it
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

func (m *Memory) Close() error { return nil }
