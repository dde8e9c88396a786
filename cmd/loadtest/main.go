package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/scoreboard/internal/loadtest"
	"github.com/okian/scoreboard/pkg/logger"
)

const defaultRunTimeout = 10 * time.Minute

func main() {
	d := loadtest.DefaultConfig()
	var (
		baseURL   = flag.String("url", d.BaseURL, "Base URL of the service")
		players   = flag.Int("players", d.Players, "Players registered for the run")
		users     = flag.Int("users", d.Users, "Concurrent simulated users")
		requests  = flag.Int("requests", d.Requests, "Requests issued by each user")
		topN      = flag.Int("top", d.TopN, "Leaderboard size read and verified")
		readRatio = flag.Float64("read-ratio", d.ReadRatio, "Share of requests that read the top list")
		minScore  = flag.Int64("min-score", d.MinScore, "Smallest submitted score")
		maxScore  = flag.Int64("max-score", d.MaxScore, "Largest submitted score")
		think     = flag.Duration("think", 0, "Upper bound of the random pause between requests")
		timeout   = flag.Duration("timeout", d.Timeout, "HTTP request timeout")
		runFor    = flag.Duration("deadline", defaultRunTimeout, "Abort the run after this long")
		seed      = flag.Int64("seed", 0, "Random seed, 0 picks one from the clock")
		logFile   = flag.String("log", "", "Also write logs to this file")
		verbose   = flag.Bool("verbose", false, "Log every failed request")
		help      = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		loadtest.ShowHelp()
		return
	}

	closer, err := loadtest.SetupLogging(*logFile, *verbose)
	if err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *runFor)
	defer cancel()

	r, err := loadtest.NewRunner(loadtest.Config{
		BaseURL:   *baseURL,
		Players:   *players,
		Users:     *users,
		Requests:  *requests,
		TopN:      *topN,
		ReadRatio: *readRatio,
		MinScore:  *minScore,
		MaxScore:  *maxScore,
		Think:     *think,
		Timeout:   *timeout,
		Seed:      *seed,
		Verbose:   *verbose,
	}, logger.Named("loadtest"))
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	stats, err := r.Run(ctx)
	if stats != nil {
		loadtest.Report(os.Stdout, stats)
	}
	if err != nil {
		logger.Get().Error(ctx, "load test failed", logger.Error(err))
		if errors.Is(err, loadtest.ErrVerification) {
			os.Exit(3)
		}
		os.Exit(1)
	}
}
