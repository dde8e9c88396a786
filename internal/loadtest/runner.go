package loadtest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/scoreboard/internal/domain/model"
	"github.com/okian/scoreboard/pkg/logger"
)

const (
	readyTries  = 10
	submitTries = 4
)

// Runner executes one load run.
type Runner struct {
	cfg    Config
	client *Client
	log    logger.Logger

	mu        sync.Mutex
	ledger    map[int64]int64
	uncertain map[int64]bool

	submitted  atomic.Int64
	accepted   atomic.Int64
	duplicates atomic.Int64
	submitFail atomic.Int64
	reads      atomic.Int64
	readFail   atomic.Int64
}

// NewRunner validates cfg and prepares a run.
func NewRunner(cfg Config, log logger.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		cfg:       cfg,
		client:    NewClient(cfg.BaseURL, cfg.Timeout),
		log:       log,
		ledger:    make(map[int64]int64),
		uncertain: make(map[int64]bool),
	}, nil
}

// Run registers players, drives the simulated users and verifies the
// resulting board. A run whose board disagrees with the ledger returns
// ErrVerification along with the stats.
func (r *Runner) Run(ctx context.Context) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}

	if err := r.waitReady(ctx); err != nil {
		return stats, fmt.Errorf("service not ready: %w", err)
	}

	players, err := r.register(ctx)
	if err != nil {
		return stats, err
	}
	stats.Players = len(players)
	r.log.Info(ctx, "players registered", logger.Int("count", len(players)))

	loadStart := time.Now()
	if err := r.drive(ctx, players); err != nil {
		return stats, err
	}
	stats.Duration = time.Since(loadStart)
	stats.Submitted = r.submitted.Load()
	stats.Accepted = r.accepted.Load()
	stats.Duplicates = r.duplicates.Load()
	stats.SubmitFailures = r.submitFail.Load()
	stats.Reads = r.reads.Load()
	stats.ReadFailures = r.readFail.Load()
	r.log.Info(ctx, "load finished",
		logger.Int64("submitted", stats.Submitted),
		logger.Int64("accepted", stats.Accepted),
		logger.Int64("reads", stats.Reads),
		logger.Duration("took", stats.Duration),
		logger.Float64("rps", stats.Throughput()),
	)

	err = r.verify(ctx, stats)
	stats.EndTime = time.Now()
	return stats, err
}

func (r *Runner) waitReady(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, r.client.Ready(ctx)
	}, backoff.WithBackOff(b), backoff.WithMaxTries(readyTries))
	return err
}

func (r *Runner) register(ctx context.Context) ([]int64, error) {
	run := uuid.NewString()[:8]
	ids := make([]int64, r.cfg.Players)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Users)
	for i := range ids {
		g.Go(func() error {
			p, err := r.client.Register(gctx, fmt.Sprintf("load-%s-%d", run, i))
			if err != nil {
				return fmt.Errorf("register player %d: %w", i, err)
			}
			ids[i] = p.ID
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *Runner) drive(ctx context.Context, players []int64) error {
	seed := r.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	var wg sync.WaitGroup
	for u := 0; u < r.cfg.Users; u++ {
		rng := rand.New(rand.NewPCG(uint64(seed), uint64(u)))
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.user(ctx, rng, players)
		}()
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) user(ctx context.Context, rng *rand.Rand, players []int64) {
	span := r.cfg.MaxScore - r.cfg.MinScore + 1
	for i := 0; i < r.cfg.Requests; i++ {
		if ctx.Err() != nil {
			return
		}
		if rng.Float64() < r.cfg.ReadRatio {
			r.read(ctx)
		} else {
			id := players[rng.IntN(len(players))]
			r.submit(ctx, id, r.cfg.MinScore+rng.Int64N(span))
		}
		if r.cfg.Think > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(rng.Int64N(int64(r.cfg.Think)))):
			}
		}
	}
}

func (r *Runner) read(ctx context.Context) {
	r.reads.Add(1)
	if _, err := r.client.Top(ctx, r.cfg.TopN); err != nil {
		r.readFail.Add(1)
		if r.cfg.Verbose {
			r.log.Warn(ctx, "top read failed", logger.Error(err))
		}
	}
}

// submit retries with the same request id, so a retried delta lands at
// most once. A Conflict (including a repeat racing its own first attempt)
// is retried. A delta whose outcome stays unknown excludes the player from
// verification.
func (r *Runner) submit(ctx context.Context, playerID, delta int64) {
	r.submitted.Add(1)
	reqID := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	dup, err := backoff.Retry(ctx, func() (bool, error) {
		res, err := r.client.Submit(ctx, playerID, delta, reqID)
		if rejected(err) {
			return false, backoff.Permanent(err)
		}
		return res.Duplicate, err
	}, backoff.WithBackOff(b), backoff.WithMaxTries(submitTries))

	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.submitFail.Add(1)
		if !rejected(err) {
			r.uncertain[playerID] = true
		}
		if r.cfg.Verbose {
			r.log.Warn(ctx, "submit failed", logger.Int64("player_id", playerID), logger.Error(err))
		}
		return
	}
	if dup {
		r.duplicates.Add(1)
	}
	r.accepted.Add(1)
	r.ledger[playerID] += delta
}

// rejected reports a definite refusal: a 4xx other than 409 Conflict.
func rejected(err error) bool {
	var se *StatusError
	return errors.As(err, &se) &&
		se.Status < http.StatusInternalServerError &&
		se.Status != http.StatusConflict
}

func (r *Runner) verify(ctx context.Context, stats *Stats) error {
	r.mu.Lock()
	expected := make(map[int64]int64, len(r.ledger))
	for id, total := range r.ledger {
		if !r.uncertain[id] {
			expected[id] = total
		}
	}
	r.mu.Unlock()

	top, err := r.client.Top(ctx, r.cfg.TopN)
	if err != nil {
		return fmt.Errorf("read top: %w", err)
	}
	stats.Top = top

	standings := make(map[int64]model.Standing, len(expected)+len(top))
	lookup := func(id int64) error {
		if _, ok := standings[id]; ok {
			return nil
		}
		st, err := r.client.Rank(ctx, id)
		if err != nil {
			return fmt.Errorf("rank of %d: %w", id, err)
		}
		standings[id] = st
		return nil
	}
	for id := range expected {
		if err := lookup(id); err != nil {
			return err
		}
	}
	for _, e := range top {
		if err := lookup(e.PlayerID); err != nil {
			return err
		}
	}

	stats.Mismatches = append(VerifyTotals(expected, standings), VerifyTop(top, standings, r.cfg.TopN)...)
	stats.Verified = len(expected)
	if len(stats.Mismatches) > 0 {
		for _, m := range stats.Mismatches {
			r.log.Error(ctx, "mismatch", logger.String("detail", m))
		}
		return fmt.Errorf("%w: %d mismatches", ErrVerification, len(stats.Mismatches))
	}
	r.log.Info(ctx, "board verified",
		logger.Int("players", stats.Verified),
		logger.Int("top", len(top)),
	)
	return nil
}
