package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMemoryCache(t *testing.T) {
	Convey("Given an in-process cache", t, func() {
		ctx := context.Background()
		c := NewMemory()
		now := time.Unix(1_700_000_000, 0)
		c.now = func() time.Time { return now }

		Convey("When a value is stored", func() {
			So(c.Set(ctx, "leaderboard:top", []byte("v1"), time.Second), ShouldBeNil)

			Convey("Then it is returned before expiry", func() {
				val, ok, err := c.Get(ctx, "leaderboard:top")
				So(err, ShouldBeNil)
				So(ok, ShouldBeTrue)
				So(string(val), ShouldEqual, "v1")
			})

			Convey("Then it misses once the ttl elapses and is dropped", func() {
				now = now.Add(time.Second)
				_, ok, err := c.Get(ctx, "leaderboard:top")
				So(err, ShouldBeNil)
				So(ok, ShouldBeFalse)
				So(c.Len(), ShouldEqual, 0)
			})

			Convey("Then delete evicts it", func() {
				So(c.Delete(ctx, "leaderboard:top"), ShouldBeNil)
				_, ok, _ := c.Get(ctx, "leaderboard:top")
				So(ok, ShouldBeFalse)
			})

			Convey("Then callers cannot mutate the stored bytes", func() {
				val, _, _ := c.Get(ctx, "leaderboard:top")
				val[0] = 'X'
				again, _, _ := c.Get(ctx, "leaderboard:top")
				So(string(again), ShouldEqual, "v1")
			})
		})

		Convey("When the ttl is zero", func() {
			So(c.Set(ctx, "k", []byte("forever"), 0), ShouldBeNil)
			now = now.Add(24 * time.Hour)

			Convey("Then the value never expires", func() {
				_, ok, _ := c.Get(ctx, "k")
				So(ok, ShouldBeTrue)
			})
		})
	})
}

func TestNoopCache(t *testing.T) {
	ctx := context.Background()
	var c Cache = Noop{}
	if err := c.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok, err := c.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("noop cache must always miss, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCache(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedis(ctx, RedisOptions{Addr: addr})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer r.Close()

	key := "scoreboard:test:" + time.Now().Format(time.RFC3339Nano)
	if err := r.Set(ctx, key, []byte("snapshot"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := r.Get(ctx, key)
	if err != nil || !ok || string(val) != "snapshot" {
		t.Fatalf("get: val=%q ok=%v err=%v", val, ok, err)
	}
	if err := r.Delete(ctx, key); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, ok, err := r.Get(ctx, key); ok || err != nil {
		t.Fatalf("expected miss after delete, got ok=%v err=%v", ok, err)
	}
}

func TestRedisUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, err := NewRedis(ctx, RedisOptions{Addr: "127.0.0.1:1"})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}
