package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/scoreboard/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with default options", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.Store, convey.ShouldEqual, config.StoreMemory)
			convey.So(cfg.Cache, convey.ShouldEqual, config.CacheMemory)
			convey.So(cfg.SubmitStrategy, convey.ShouldEqual, config.StrategyUpsert)
			convey.So(cfg.MaxLeaderboardLimit, convey.ShouldEqual, 100)
			convey.So(cfg.SnapshotSize, convey.ShouldEqual, 100)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})

		convey.Convey("Then the millisecond fields convert to durations", func() {
			convey.So(cfg.LockTimeout(), convey.ShouldEqual, 2*time.Second)
			convey.So(cfg.SubmitTimeout(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.CacheTTL(), convey.ShouldEqual, 5*time.Second)
			convey.So(cfg.RetryBase(), convey.ShouldEqual, 10*time.Millisecond)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
	}{
		{"empty addr", func(c *config.Config) { c.Addr = "" }},
		{"unknown store", func(c *config.Config) { c.Store = "mongo" }},
		{"postgres without dsn", func(c *config.Config) { c.Store = config.StorePostgres }},
		{"sqlite without path", func(c *config.Config) { c.Store = config.StoreSQLite; c.SQLitePath = "" }},
		{"unknown strategy", func(c *config.Config) { c.SubmitStrategy = "optimistic" }},
		{"unknown cache", func(c *config.Config) { c.Cache = "memcached" }},
		{"redis without addr", func(c *config.Config) { c.Cache = config.CacheRedis; c.RedisAddr = "" }},
		{"zero lock timeout", func(c *config.Config) { c.LockTimeoutMS = 0 }},
		{"negative retries", func(c *config.Config) { c.SubmitMaxRetries = -1 }},
		{"zero leaderboard limit", func(c *config.Config) { c.MaxLeaderboardLimit = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.New(context.Background())
			tc.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}
