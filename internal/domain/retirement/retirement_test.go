package retirement_test

import (
	"context"
	"testing"
	"time"

	"github.com/okian/jnana/internal/adapters/repository"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/retirement"
	. "github.com/smartystreets/goconvey/convey"
)

func TestPolicy(t *testing.T) {
	Convey("Given a policy with R=3 over a real store", t, func() {
		ctx := context.Background()
		store, err := repository.Open(ctx, ":memory:")
		So(err, ShouldBeNil)
		defer store.Close()

		p := retirement.New(store, retirement.WithThreshold(3), retirement.WithCacheTTL(time.Hour))
		skip := func(worker string) {
			_, err := store.RecordSkip(ctx, model.Skip{ItemID: "x", WorkerID: worker, Reason: model.ReasonManualSkip})
			So(err, ShouldBeNil)
		}

		Convey("When two workers skip", func() {
			skip("w1")
			skip("w2")
			retired, err := p.Observe(ctx, "x")

			Convey("Then the item stays live", func() {
				So(err, ShouldBeNil)
				So(retired, ShouldBeFalse)
				set, err := p.Retired(ctx)
				So(err, ShouldBeNil)
				So(set, ShouldNotContainKey, "x")
			})
		})

		Convey("When one worker skips three times and another once", func() {
			skip("w1")
			skip("w1")
			skip("w1")
			skip("w2")
			retired, _ := p.Observe(ctx, "x")

			Convey("Then the repeat skipper counts once", func() {
				So(retired, ShouldBeFalse)
			})
		})

		Convey("When a third distinct worker skips", func() {
			_, _ = p.Retired(ctx) // warm the cache with the empty set
			skip("w1")
			skip("w2")
			skip("w3")
			retired, err := p.Observe(ctx, "x")

			Convey("Then the item is retired and the cache refreshed", func() {
				So(err, ShouldBeNil)
				So(retired, ShouldBeTrue)
				set, _ := p.Retired(ctx)
				So(set, ShouldContainKey, "x")

				again, err := p.Observe(ctx, "x")
				So(err, ShouldBeNil)
				So(again, ShouldBeFalse)
			})
		})

		Convey("When timeouts pile up", func() {
			for _, w := range []string{"w1", "w2", "w3"} {
				_, _ = store.RecordSkip(ctx, model.Skip{ItemID: "x", WorkerID: w, Reason: model.ReasonTimeout})
			}
			retired, _ := p.Observe(ctx, "x")

			Convey("Then only manual skips count", func() {
				So(retired, ShouldBeFalse)
			})
		})
	})
}
