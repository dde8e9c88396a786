package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	dedupe "github.com/okian/scoreboard/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()

		Convey("When creating a deduper with default options", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("Then it should start empty", func() {
				So(d, ShouldNotBeNil)
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When recording request keys", func() {
			d := dedupe.NewInMemoryDeduper()
			key := dedupe.Key(7, "req-1")

			Convey("Then a repeat before commit is pending and after commit is committed", func() {
				So(d.Reserve(ctx, key), ShouldEqual, dedupe.Fresh)
				So(d.Reserve(ctx, key), ShouldEqual, dedupe.Pending)
				d.Commit(ctx, key)
				So(d.Reserve(ctx, key), ShouldEqual, dedupe.Committed)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("Then the same request id for another player is distinct", func() {
				So(d.Reserve(ctx, key), ShouldEqual, dedupe.Fresh)
				So(d.Reserve(ctx, dedupe.Key(8, "req-1")), ShouldEqual, dedupe.Fresh)
				So(d.Size(), ShouldEqual, 2)
			})

			Convey("Then committing an unknown key records nothing", func() {
				d.Commit(ctx, "never-reserved")
				So(d.Size(), ShouldEqual, 0)
				So(d.Reserve(ctx, "never-reserved"), ShouldEqual, dedupe.Fresh)
			})
		})

		Convey("When a key is unrecorded after a failed submission", func() {
			d := dedupe.NewInMemoryDeduper()
			key := dedupe.Key(1, "retry-me")
			d.Reserve(ctx, key)
			d.Unrecord(ctx, key)

			Convey("Then it can be reserved again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.Reserve(ctx, key), ShouldEqual, dedupe.Fresh)
			})

			Convey("Then unrecording an unknown key is a no-op", func() {
				d.Unrecord(ctx, "never-seen")
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the bound is reached", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
			for i := 1; i <= 4; i++ {
				d.Reserve(ctx, fmt.Sprintf("k%d", i))
			}

			Convey("Then the oldest key is forgotten", func() {
				So(d.Size(), ShouldEqual, 3)
				So(d.Reserve(ctx, "k4"), ShouldEqual, dedupe.Pending)
				So(d.Reserve(ctx, "k2"), ShouldEqual, dedupe.Pending)
				So(d.Reserve(ctx, "k1"), ShouldEqual, dedupe.Fresh)
			})
		})

		Convey("When unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := 0; i < 1000; i++ {
				d.Reserve(ctx, fmt.Sprintf("k%d", i))
			}

			Convey("Then nothing is evicted", func() {
				So(d.Size(), ShouldEqual, 1000)
				So(d.Reserve(ctx, "k0"), ShouldEqual, dedupe.Pending)
			})
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(10_000))
	ctx := context.Background()

	var fresh atomic.Int64
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				if d.Reserve(ctx, dedupe.Key(int64(i%50), "r")) == dedupe.Fresh {
					fresh.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if got := fresh.Load(); got != 50 {
		t.Fatalf("expected exactly 50 first sightings, got %d", got)
	}
	if d.Size() != 50 {
		t.Fatalf("expected size 50, got %d", d.Size())
	}
}
