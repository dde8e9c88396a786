package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/scoreboard/internal/adapters/repository"
	"github.com/okian/scoreboard/internal/adapters/repository/contract"
	"github.com/okian/scoreboard/internal/adapters/repository/memory"
	"github.com/okian/scoreboard/internal/domain/types"
)

func TestMemoryStore_Contract(t *testing.T) {
	contract.Run(t, func(t *testing.T) repository.Store {
		return memory.New(repository.WithLockTimeout(10 * time.Second))
	}, contract.Options{Concurrency: 1000})
}

func TestMemoryStore_InstrumentedContract(t *testing.T) {
	contract.Run(t, func(t *testing.T) repository.Store {
		return repository.Instrument(memory.New(), "memory")
	}, contract.Options{Concurrency: 200})
}

func TestMemoryStore_LockWaitIsBounded(t *testing.T) {
	ctx := context.Background()
	store := memory.New(repository.WithLockTimeout(20 * time.Millisecond))
	p, err := store.CreatePlayer(ctx, "slow")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Submit(ctx, p.ID, 5, ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	release := make(chan struct{})
	held := make(chan struct{})
	go func() {
		unlock := memory.HoldPlayerLock(store, p.ID)
		close(held)
		<-release
		unlock()
	}()
	<-held

	start := time.Now()
	_, err = store.Submit(ctx, p.ID, 1, "")
	close(release)
	if types.KindOf(err) != types.KindConflict {
		t.Fatalf("expected conflict, got %v", err)
	}
	if waited := time.Since(start); waited > time.Second {
		t.Fatalf("lock wait not bounded: %v", waited)
	}

	agg, err := store.Aggregate(ctx, p.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agg.Total != 5 {
		t.Fatalf("conflicting submit must not change the total, got %d", agg.Total)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	if err := store.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Ping(ctx); types.KindOf(err) != types.KindStoreUnavailable {
		t.Fatalf("expected store_unavailable after close, got %v", err)
	}
	if _, err := store.TopN(ctx, 10); types.KindOf(err) != types.KindStoreUnavailable {
		t.Fatalf("expected store_unavailable after close, got %v", err)
	}
}
