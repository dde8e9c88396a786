package loadtest

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/okian/scoreboard/pkg/logger"
)

const logFilePermission = 0600

// SetupLogging initializes the global logger. With a non-empty logFile the
// output is written to the file as well as stdout.
func SetupLogging(logFile string, verbose bool) (io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
		if err != nil {
			return nil, fmt.Errorf("failed to create log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
		closer = file
	}

	if err := logger.Init(logger.WithWriter(out)); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if verbose {
		_ = logger.SetLevelString("debug")
	}
	if logFile != "" {
		logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	}
	return closer, nil
}

// Report writes a human-readable summary of a run.
func Report(w io.Writer, s *Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "players\t%d\n", s.Players)
	fmt.Fprintf(tw, "submits\t%d (accepted %d, retried duplicates %d, failed %d)\n",
		s.Submitted, s.Accepted, s.Duplicates, s.SubmitFailures)
	fmt.Fprintf(tw, "top reads\t%d (failed %d)\n", s.Reads, s.ReadFailures)
	fmt.Fprintf(tw, "load phase\t%s (%.1f req/s)\n", s.Duration.Round(1e6), s.Throughput())
	fmt.Fprintf(tw, "verified players\t%d\n", s.Verified)
	fmt.Fprintf(tw, "mismatches\t%d\n", len(s.Mismatches))
	tw.Flush()

	if len(s.Top) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "#\tplayer\tname\ttotal")
		for i, e := range s.Top {
			fmt.Fprintf(tw, "%d\t%d\t%s\t%d\n", i+1, e.PlayerID, e.Name, e.Total)
		}
		tw.Flush()
	}
}

// ShowHelp prints usage information for the load test tool.
func ShowHelp() {
	os.Stdout.WriteString(`Scoreboard Load Test
====================

Registers players, then runs concurrent simulated users against a running
scoreboard. Each request either reads the top list or submits a random
score for a random player. When the users finish, every player's total is
checked against the sum of the scores accepted for them, and the top list
is checked against individual ranks.

Usage:
  go run ./cmd/loadtest [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:8080")
  -players int
        Players registered for the run (default 50)
  -users int
        Concurrent simulated users (default 20)
  -requests int
        Requests issued by each user (default 100)
  -top int
        Leaderboard size read and verified (default 10)
  -read-ratio float
        Share of requests that read the top list (default 0.8)
  -min-score, -max-score int
        Range of submitted scores (default 10..100)
  -think duration
        Upper bound of the random pause between requests (default 0)
  -timeout duration
        HTTP request timeout (default 10s)
  -seed int
        Random seed, 0 picks one from the clock
  -log string
        Also write logs to this file
  -verbose
        Log every failed request
  -help
        Show this message

Examples:
  go run ./cmd/loadtest -users 100 -requests 500
  go run ./cmd/loadtest -url http://localhost:9090 -think 500ms -read-ratio 0.9
`)
}
