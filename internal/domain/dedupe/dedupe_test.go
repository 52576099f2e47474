package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/jnana/internal/domain/dedupe"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryDeduper(t *testing.T) {
	Convey("Given a new deduper", t, func() {
		d := dedupe.NewInMemoryDeduper()
		ctx := context.Background()

		So(d.Size(), ShouldEqual, 0)

		Convey("When a key is recorded twice", func() {
			first := d.SeenAndRecord(ctx, "w1/item-1")
			second := d.SeenAndRecord(ctx, "w1/item-1")

			Convey("Then only the second call reports it as seen", func() {
				So(first, ShouldBeFalse)
				So(second, ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})
		})

		Convey("When a key is unrecorded", func() {
			d.SeenAndRecord(ctx, "w1/item-1")
			d.Unrecord(ctx, "w1/item-1")
			d.Unrecord(ctx, "never-seen")

			Convey("Then it can be recorded again", func() {
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "w1/item-1"), ShouldBeFalse)
			})
		})
	})
}

func TestDeduperTTL(t *testing.T) {
	Convey("Given a deduper with a short TTL", t, func() {
		d := dedupe.NewInMemoryDeduper(dedupe.WithTTL(20 * time.Millisecond))
		ctx := context.Background()
		d.SeenAndRecord(ctx, "k")

		Convey("Then the key is forgotten once it expires", func() {
			time.Sleep(40 * time.Millisecond)
			So(d.SeenAndRecord(ctx, "k"), ShouldBeFalse)
		})

		Convey("Then a non-positive TTL keeps the default", func() {
			d2 := dedupe.NewInMemoryDeduper(dedupe.WithTTL(-time.Second))
			d2.SeenAndRecord(ctx, "k")
			time.Sleep(40 * time.Millisecond)
			So(d2.SeenAndRecord(ctx, "k"), ShouldBeTrue)
		})
	})
}

func TestDedupeConcurrency(t *testing.T) {
	Convey("Given many goroutines submitting the same key", t, func() {
		d := dedupe.NewInMemoryDeduper()
		var (
			wg    sync.WaitGroup
			fresh atomic.Int64
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if !d.SeenAndRecord(context.Background(), "same") {
					fresh.Add(1)
				}
			}()
		}
		wg.Wait()

		Convey("Then exactly one of them wins", func() {
			So(fresh.Load(), ShouldEqual, 1)
		})

		Convey("Then distinct keys are all recorded", func() {
			for i := 0; i < 100; i++ {
				So(d.SeenAndRecord(context.Background(), fmt.Sprintf("k-%d", i)), ShouldBeFalse)
			}
			So(d.Size(), ShouldEqual, 101)
		})
	})
}
