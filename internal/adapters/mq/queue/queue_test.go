package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
)

func job(gen uint64) model.Eviction {
	return model.Eviction{Key: "leaderboard:top", Generation: gen, At: time.Now()}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if !q.Enqueue(ctx, job(1)) {
		t.Fatal("expected enqueue to succeed")
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ctx)
	if got.Generation != 1 || got.Key != "leaderboard:top" {
		t.Errorf("unexpected job %+v", got)
	}
}

func TestInMemoryQueue_FullDrops(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2))

	for i := range 2 {
		if err := q.Push(job(uint64(i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if err := q.Push(job(3)); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
	if l := q.Len(); l != 2 {
		t.Errorf("expected length 2, got %d", l)
	}
}

func TestInMemoryQueue_ConcurrentAccess(t *testing.T) {
	const producers, perProducer = 10, 100
	q := NewInMemoryQueue(WithCapacity(64))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		cwg  sync.WaitGroup
	)
	for range 4 {
		cwg.Add(1)
		go func() {
			defer cwg.Done()
			for j := range q.Dequeue(ctx) {
				mu.Lock()
				seen[fmt.Sprintf("%s/%d", j.Key, j.Generation)] = true
				mu.Unlock()
			}
		}()
	}

	var pwg sync.WaitGroup
	for p := range producers {
		pwg.Add(1)
		go func(p int) {
			defer pwg.Done()
			for i := range perProducer {
				j := model.Eviction{Key: fmt.Sprintf("k%d", p), Generation: uint64(i)}
				for !q.Enqueue(ctx, j) {
					time.Sleep(time.Millisecond)
				}
			}
		}(p)
	}
	pwg.Wait()
	_ = q.Close()
	cwg.Wait()

	if len(seen) != producers*perProducer {
		t.Fatalf("expected %d distinct jobs, got %d", producers*perProducer, len(seen))
	}
}

func TestInMemoryQueue_GracefulShutdown(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(10))
	ctx := context.Background()

	if !q.Enqueue(ctx, job(1)) || !q.Enqueue(ctx, job(2)) {
		t.Fatal("expected enqueue to succeed")
	}
	if q.IsClosed() {
		t.Error("expected queue to be open initially")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed after Close()")
	}
	if err := q.Push(job(3)); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var drained int
	timeout := time.After(time.Second)
	ch := q.Dequeue(ctx)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				if drained != 2 {
					t.Errorf("expected pending jobs to drain, got %d", drained)
				}
				if err := q.Close(); err != nil {
					t.Errorf("second close: %v", err)
				}
				return
			}
			drained++
		case <-timeout:
			t.Fatal("dequeue channel not closed")
		}
	}
}
