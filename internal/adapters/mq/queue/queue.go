// Package queue holds pending remote-cache evictions between the write path
// and the eviction workers.
//
// Enqueue never blocks: a full or closed queue drops the job. Losing a job
// only delays eviction until the snapshot TTL runs out.
package queue

import (
	"context"
	"sync"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/metrics"
)

const defaultQueueCapacity = 1024

// Job is the payload flowing through the queue.
type Job = model.Eviction

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. Returns false if it was dropped.
	Enqueue(ctx context.Context, j Job) bool
	// Dequeue returns a channel of jobs, closed once the queue is closed and drained.
	Dequeue(ctx context.Context) <-chan Job
	Len() int
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan Job
	capacity int

	mu     sync.RWMutex
	closed bool
}

var _ Queue = (*InMemoryQueue)(nil)

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultQueueCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan Job, q.capacity)

	metrics.UpdateQueueCapacity(q.capacity)
	metrics.UpdateQueueSize(0)
	metrics.UpdateQueueUtilization(0)
	return q
}

// Enqueue adds a job without waiting.
func (q *InMemoryQueue) Enqueue(_ context.Context, j Job) bool {
	return q.Push(j) == nil
}

// Push is Enqueue with the reason for a drop.
func (q *InMemoryQueue) Push(j Job) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "closed")
		return ErrClosed
	}

	select {
	case q.jobs <- j:
		metrics.RecordQueueEnqueue()
		q.observe()
		return nil
	default:
		metrics.RecordQueueEnqueueError()
		metrics.RecordErrorByComponent("queue", "queue_full")
		return ErrFull
	}
}

// Dequeue returns a channel that receives jobs as they become available.
// Several consumers may call it; each job is delivered once.
func (q *InMemoryQueue) Dequeue(ctx context.Context) <-chan Job {
	out := make(chan Job)
	go func() {
		defer close(out)
		for j := range q.jobs {
			select {
			case out <- j:
				metrics.RecordQueueDequeue()
				q.observe()
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Len returns the number of pending jobs.
func (q *InMemoryQueue) Len() int {
	q.observe()
	return len(q.jobs)
}

func (q *InMemoryQueue) observe() {
	size := len(q.jobs)
	metrics.UpdateQueueSize(size)
	metrics.UpdateQueueUtilization(float64(size) / float64(q.capacity))
}

// Close stops accepting jobs. Pending jobs are still delivered.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
