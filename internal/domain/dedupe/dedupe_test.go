package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/okian/certwatch/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new InMemoryDeduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper()

		Convey("When a key is claimed for the first time", func() {
			seen := d.SeenAndRecord(ctx, "acme/req-1")

			Convey("Then it is recorded as new", func() {
				So(seen, ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And a second claim reports it as held", func() {
				So(d.SeenAndRecord(ctx, "acme/req-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And it is in flight until a result is remembered", func() {
				res, ok := d.Lookup(ctx, "acme/req-1")
				So(ok, ShouldBeTrue)
				So(res, ShouldBeEmpty)

				d.Remember(ctx, "acme/req-1", "session-42")
				res, ok = d.Lookup(ctx, "acme/req-1")
				So(ok, ShouldBeTrue)
				So(res, ShouldEqual, "session-42")
			})
		})

		Convey("When a key is released", func() {
			d.SeenAndRecord(ctx, "detect:acme")
			d.Unrecord(ctx, "detect:acme")

			Convey("Then it can be claimed again", func() {
				So(d.Size(), ShouldEqual, 0)
				_, ok := d.Lookup(ctx, "detect:acme")
				So(ok, ShouldBeFalse)
				So(d.SeenAndRecord(ctx, "detect:acme"), ShouldBeFalse)
			})
		})

		Convey("When releasing or remembering an unknown key", func() {
			d.Unrecord(ctx, "nope")
			d.Remember(ctx, "nope", "x")

			Convey("Then nothing changes", func() {
				So(d.Size(), ShouldEqual, 0)
				_, ok := d.Lookup(ctx, "nope")
				So(ok, ShouldBeFalse)
			})
		})
	})
}

func TestBoundedEviction(t *testing.T) {
	Convey("Given a deduper holding at most three keys", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(3))
		for _, k := range []string{"k1", "k2", "k3", "k4"} {
			So(d.SeenAndRecord(ctx, k), ShouldBeFalse)
		}

		Convey("Then the oldest key was forgotten first", func() {
			So(d.Size(), ShouldEqual, 3)
			_, ok := d.Lookup(ctx, "k1")
			So(ok, ShouldBeFalse)
			for _, k := range []string{"k2", "k3", "k4"} {
				_, ok := d.Lookup(ctx, k)
				So(ok, ShouldBeTrue)
			}
		})
	})

	Convey("Given an unbounded deduper", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		for i := 0; i < 1000; i++ {
			d.SeenAndRecord(ctx, fmt.Sprintf("k-%d", i))
		}

		Convey("Then nothing is evicted", func() {
			So(d.Size(), ShouldEqual, 1000)
			So(d.SeenAndRecord(ctx, "k-0"), ShouldBeTrue)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given many goroutines claiming the same key", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(100))
		var winners atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(ctx, "acme/req-1") {
					winners.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one claim wins", func() {
			So(winners.Load(), ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})

	Convey("Given goroutines claiming and releasing distinct keys", t, func() {
		ctx := context.Background()
		d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
		var wg sync.WaitGroup
		for g := 0; g < 10; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for j := 0; j < 100; j++ {
					key := fmt.Sprintf("k-%d-%d", g, j)
					d.SeenAndRecord(ctx, key)
					if j%2 == 0 {
						d.Unrecord(ctx, key)
					}
				}
			}(g)
		}
		wg.Wait()

		Convey("Then the size reflects what remains held", func() {
			So(d.Size(), ShouldEqual, 500)
		})
	})
}
