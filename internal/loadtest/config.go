// Package loadtest drives a running scoreboard with simulated users and
// checks the board it ends up with against what was submitted.
package loadtest

import (
	"errors"
	"time"

	"github.com/okian/scoreboard/internal/domain/model"
)

// Defaults mirror the read-heavy traffic the leaderboard is sized for.
const (
	DefaultBaseURL   = "http://localhost:8080"
	DefaultPlayers   = 50
	DefaultUsers     = 20
	DefaultRequests  = 100
	DefaultTopN      = 10
	DefaultReadRatio = 0.8
	DefaultMinScore  = 10
	DefaultMaxScore  = 100
	DefaultTimeout   = 10 * time.Second
)

// Config holds configuration for a load run.
type Config struct {
	BaseURL   string        // Base URL of the service
	Players   int           // Players registered for the run
	Users     int           // Concurrent simulated users
	Requests  int           // Requests issued by each user
	TopN      int           // Leaderboard size read and verified
	ReadRatio float64       // Share of requests that read the top list
	MinScore  int64         // Smallest submitted delta
	MaxScore  int64         // Largest submitted delta
	Think     time.Duration // Upper bound of the random pause between requests
	Timeout   time.Duration // HTTP request timeout
	Seed      int64         // Random seed; zero picks one from the clock
	Verbose   bool          // Log every failed request
}

// DefaultConfig returns a Config with every field set to its default.
func DefaultConfig() Config {
	return Config{
		BaseURL:   DefaultBaseURL,
		Players:   DefaultPlayers,
		Users:     DefaultUsers,
		Requests:  DefaultRequests,
		TopN:      DefaultTopN,
		ReadRatio: DefaultReadRatio,
		MinScore:  DefaultMinScore,
		MaxScore:  DefaultMaxScore,
		Timeout:   DefaultTimeout,
	}
}

var (
	ErrInvalidConfig = errors.New("invalid load test config")
	ErrVerification  = errors.New("verification failed")
)

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return errors.Join(ErrInvalidConfig, errors.New("base url is empty"))
	case c.Players < 1 || c.Users < 1 || c.Requests < 1 || c.TopN < 1:
		return errors.Join(ErrInvalidConfig, errors.New("players, users, requests and top must be positive"))
	case c.ReadRatio < 0 || c.ReadRatio > 1:
		return errors.Join(ErrInvalidConfig, errors.New("read ratio must be within [0,1]"))
	case c.MinScore > c.MaxScore:
		return errors.Join(ErrInvalidConfig, errors.New("min score exceeds max score"))
	case c.Timeout <= 0:
		return errors.Join(ErrInvalidConfig, errors.New("timeout must be positive"))
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	Players        int
	Submitted      int64
	Accepted       int64
	Duplicates     int64
	SubmitFailures int64
	Reads          int64
	ReadFailures   int64
	Verified       int
	Mismatches     []string
	Top            []model.Entry
	StartTime      time.Time
	EndTime        time.Time
	Duration       time.Duration
}

// Throughput is requests completed per second of the load phase.
func (s *Stats) Throughput() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Submitted+s.Reads) / s.Duration.Seconds()
}
