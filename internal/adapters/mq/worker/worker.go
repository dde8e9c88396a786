package worker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
	"github.com/okian/scoreboard/pkg/metrics"
)

const (
	defaultWorkerCount  = 2
	defaultEvictTimeout = time.Second
	poolShutdownTimeout = 5 * time.Second
)

// Evictor removes a key from the remote cache.
type Evictor interface {
	Delete(ctx context.Context, key string) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Eviction
}

// Worker processes eviction jobs.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is drained.
	Run(ctx context.Context)
	// Shutdown stops the worker and waits for the current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue   Queue
	evictor Evictor
	name    string
	timeout time.Duration

	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker with configuration options.
func NewInMemoryWorker(q Queue, ev Evictor, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		evictor:  ev,
		name:     "worker",
		timeout:  defaultEvictTimeout,
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.With(logger.String("worker", w.name))
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Warn(ctx, "eviction failed",
					logger.String("key", j.Key),
					logger.Uint64("generation", j.Generation),
					logger.Error(err),
				)
			}
		}
	}
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.shutdown:
	default:
		close(w.shutdown)
	}
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j model.Eviction) error {
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.evictor.Delete(ctx, j.Key); err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "evict_error")
		return fmt.Errorf("evict %s: %w", j.Key, err)
	}
	w.logger.Debug(ctx, "snapshot evicted",
		logger.String("key", j.Key),
		logger.Uint64("generation", j.Generation),
		logger.Duration("lag", time.Since(j.At)),
	)
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	logger  logger.Logger
}

// NewPool creates a worker pool; workerCount < 1 uses the default.
func NewPool(workerCount int, q Queue, ev Evictor, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("evictor-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, ev, wopts...)
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue, then waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	ctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var timedOut int
	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-ctx.Done():
			timedOut++
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	if timedOut > 0 {
		return fmt.Errorf("%d workers did not stop: %w", timedOut, ctx.Err())
	}
	return nil
}
