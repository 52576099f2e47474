package allocation_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/okian/jnana/internal/adapters/repository"
	"github.com/okian/jnana/internal/domain/allocation"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/retirement"
	. "github.com/smartystreets/goconvey/convey"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	ctx    context.Context
	store  *repository.SQLiteStore
	policy *retirement.Policy
	engine *allocation.Engine
	clock  *clock
}

func newFixture(t *testing.T, quota int, timer time.Duration, items ...model.Item) *fixture {
	t.Helper()
	ctx := context.Background()
	store, err := repository.Open(ctx, ":memory:", repository.WithReservationTTL(timer))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.PutItems(ctx, items); err != nil {
		t.Fatalf("put items: %v", err)
	}

	c := &clock{t: time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)}
	policy := retirement.New(store, retirement.WithThreshold(3), retirement.WithClock(c.Now))
	engine, err := allocation.New(allocation.Ports{
		Items:     store,
		Judgments: store,
		Ledger:    store,
		Skips:     store,
		Retired:   policy,
	},
		allocation.WithQuota(quota),
		allocation.WithTimer(timer),
		allocation.WithClock(c.Now),
		allocation.WithRand(rand.New(rand.NewSource(7))),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return &fixture{ctx: ctx, store: store, policy: policy, engine: engine, clock: c}
}

func item(id string) model.Item {
	return model.Item{
		ID:       id,
		Passage:  "passage " + id,
		SubItems: []model.SubItem{{Question: "q", Answer: "a"}},
	}
}

func (f *fixture) next(worker string) (model.Assignment, error) {
	cands, err := f.engine.BuildCandidates(f.ctx, worker)
	if err != nil {
		return model.Assignment{}, err
	}
	a, _, err := f.engine.Allocate(f.ctx, worker, cands)
	return a, err
}

func (f *fixture) submit(worker, itemID string) {
	_, err := f.store.AppendJudgments(f.ctx, []model.Judgment{{
		ItemID: itemID, WorkerID: worker, Label: model.LabelCorrect, SubmittedAt: f.clock.Now(),
	}})
	So(err, ShouldBeNil)
	So(f.engine.Release(f.ctx, worker, itemID, model.ReasonSubmitted), ShouldBeNil)
}

func TestNewEngine(t *testing.T) {
	Convey("Given missing ports", t, func() {
		_, err := allocation.New(allocation.Ports{})
		So(errors.Is(err, allocation.ErrMissingPort), ShouldBeTrue)
	})
}

func TestQuotaUnderConcurrency(t *testing.T) {
	Convey("Given one item with Q=3 and twelve workers racing for it", t, func() {
		f := newFixture(t, 3, time.Hour, item("only"))

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			granted []string
		)
		for i := 0; i < 12; i++ {
			wg.Add(1)
			go func(worker string) {
				defer wg.Done()
				a, err := f.next(worker)
				if err == nil {
					mu.Lock()
					granted = append(granted, worker)
					mu.Unlock()
					_ = a
				}
			}(fmt.Sprintf("w%02d", i))
		}
		wg.Wait()

		Convey("Then completed plus reserved never exceeds Q", func() {
			So(granted, ShouldHaveLength, 3)
			active, err := f.store.CountActive(f.ctx, "only", f.clock.Now())
			So(err, ShouldBeNil)
			So(active, ShouldEqual, 3)
		})

		Convey("Then after the winners submit nobody else gets it", func() {
			for _, w := range granted {
				f.submit(w, "only")
			}
			_, err := f.next("late")
			So(errors.Is(err, allocation.ErrNoneAvailable), ShouldBeTrue)

			ws, _ := f.store.DistinctWorkers(f.ctx, "only")
			So(ws, ShouldHaveLength, 3)
		})
	})
}

func TestNoRepeat(t *testing.T) {
	Convey("Given two items and one worker", t, func() {
		f := newFixture(t, 5, time.Hour, item("a"), item("b"))

		first, err := f.next("w1")
		So(err, ShouldBeNil)

		Convey("When the worker submits and asks again", func() {
			f.submit("w1", first.Item.ID)
			second, err := f.next("w1")

			Convey("Then the other item is handed out", func() {
				So(err, ShouldBeNil)
				So(second.Item.ID, ShouldNotEqual, first.Item.ID)
			})

			Convey("Then after both nothing is left", func() {
				f.submit("w1", second.Item.ID)
				_, err := f.next("w1")
				So(errors.Is(err, allocation.ErrNoneAvailable), ShouldBeTrue)
			})
		})

		Convey("When the worker asks again while holding the first", func() {
			cands, err := f.engine.BuildCandidates(f.ctx, "w1")

			Convey("Then the held item is not a candidate", func() {
				So(err, ShouldBeNil)
				So(cands, ShouldNotContain, first.Item.ID)
			})
		})

		Convey("When the worker skips it", func() {
			So(f.engine.Release(f.ctx, "w1", first.Item.ID, model.ReasonManualSkip), ShouldBeNil)
			cands, _ := f.engine.BuildCandidates(f.ctx, "w1")

			Convey("Then it never comes back", func() {
				So(cands, ShouldNotContain, first.Item.ID)
				So(cands, ShouldHaveLength, 1)
			})
		})
	})
}

func TestPrioritization(t *testing.T) {
	Convey("Given items at different completion levels", t, func() {
		f := newFixture(t, 5, time.Hour, item("fresh1"), item("fresh2"), item("half"), item("almost"))
		for i := 0; i < 4; i++ {
			_, err := f.store.AppendJudgments(f.ctx, []model.Judgment{{ItemID: "almost", WorkerID: fmt.Sprintf("o%d", i), Label: model.LabelCorrect}})
			So(err, ShouldBeNil)
		}
		for i := 0; i < 2; i++ {
			_, err := f.store.AppendJudgments(f.ctx, []model.Judgment{{ItemID: "half", WorkerID: fmt.Sprintf("o%d", i), Label: model.LabelCorrect}})
			So(err, ShouldBeNil)
		}

		cands, err := f.engine.BuildCandidates(f.ctx, "w1")

		Convey("Then the item closest to Q comes first", func() {
			So(err, ShouldBeNil)
			So(cands, ShouldHaveLength, 4)
			So(cands[0], ShouldEqual, "almost")
			So(cands[1], ShouldEqual, "half")
		})

		Convey("Then items already at Q are not candidates", func() {
			_, err := f.store.AppendJudgments(f.ctx, []model.Judgment{{ItemID: "almost", WorkerID: "o9", Label: model.LabelDoubt}})
			So(err, ShouldBeNil)
			cands, _ := f.engine.BuildCandidates(f.ctx, "w1")
			So(cands, ShouldNotContain, "almost")
		})
	})
}

func TestRetirement(t *testing.T) {
	Convey("Given an item skipped by hand", t, func() {
		f := newFixture(t, 5, time.Hour, item("bad"), item("good"))

		skip := func(worker string) {
			_ = f.store.InsertReservation(f.ctx, "bad", worker, f.clock.Now(), 0)
			So(f.engine.Release(f.ctx, worker, "bad", model.ReasonManualSkip), ShouldBeNil)
		}

		Convey("When three distinct workers skip it", func() {
			skip("w1")
			skip("w2")
			skip("w3")

			Convey("Then a fourth worker never sees it", func() {
				cands, err := f.engine.BuildCandidates(f.ctx, "w4")
				So(err, ShouldBeNil)
				So(cands, ShouldResemble, []string{"good"})
			})
		})

		Convey("When it is retired after a worker's queue was built", func() {
			cands, err := f.engine.BuildCandidates(f.ctx, "w4")
			So(err, ShouldBeNil)
			So(cands, ShouldContain, "bad")
			skip("w1")
			skip("w2")
			skip("w3")

			Convey("Then popping it drops it", func() {
				a, _, err := f.engine.Allocate(f.ctx, "w4", []string{"bad", "good"})
				So(err, ShouldBeNil)
				So(a.Item.ID, ShouldEqual, "good")

				_, _, err = f.engine.Allocate(f.ctx, "w5", []string{"bad"})
				So(errors.Is(err, allocation.ErrNoneAvailable), ShouldBeTrue)
			})
		})

		Convey("When the same worker skips it repeatedly", func() {
			skip("w1")
			skip("w1")
			skip("w1")
			skip("w2")

			Convey("Then it is still live for others", func() {
				cands, _ := f.engine.BuildCandidates(f.ctx, "w4")
				So(cands, ShouldContain, "bad")
			})
		})
	})
}

func TestTimeout(t *testing.T) {
	Convey("Given TIMER=60s and a worker holding an item from t=0", t, func() {
		f := newFixture(t, 5, 60*time.Second, item("a"), item("b"))

		first, err := f.next("w1")
		So(err, ShouldBeNil)
		So(first.Deadline.Sub(first.ReservedAt), ShouldEqual, 60*time.Second)

		Convey("When it is still t=59", func() {
			f.clock.Advance(59 * time.Second)
			expired, err := f.engine.ExpireStale(f.ctx, "w1")

			Convey("Then nothing has expired", func() {
				So(err, ShouldBeNil)
				So(expired, ShouldBeEmpty)
			})
		})

		Convey("When the worker comes back at t=61", func() {
			f.clock.Advance(61 * time.Second)
			expired, err := f.engine.ExpireStale(f.ctx, "w1")
			So(err, ShouldBeNil)
			second, err := f.next("w1")

			Convey("Then a timeout skip is recorded and a different item is handed out", func() {
				So(expired, ShouldResemble, []string{first.Item.ID})
				So(err, ShouldBeNil)
				So(second.Item.ID, ShouldNotEqual, first.Item.ID)

				skipped, _ := f.store.ItemsSkippedBy(f.ctx, "w1")
				So(skipped, ShouldResemble, []string{first.Item.ID})
			})

			Convey("Then expiring again records nothing new", func() {
				again, err := f.engine.ExpireStale(f.ctx, "w1")
				So(err, ShouldBeNil)
				So(again, ShouldBeEmpty)
				n, err := f.engine.Sweep(f.ctx)
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 0)
			})

			Convey("Then the item is free for another worker", func() {
				other, err := f.next("w2")
				So(err, ShouldBeNil)
				So(other.Item.ID, ShouldNotBeBlank)
			})
		})

		Convey("When the sweeper runs at t=61", func() {
			f.clock.Advance(61 * time.Second)
			n, err := f.engine.Sweep(f.ctx)

			Convey("Then the reservation becomes a timeout skip", func() {
				So(err, ShouldBeNil)
				So(n, ShouldEqual, 1)
				rs, _ := f.store.ReservationsFor(f.ctx, "w1")
				So(rs, ShouldBeEmpty)
				timeouts, _ := f.store.CountDistinctSkippers(f.ctx, first.Item.ID, model.ReasonTimeout)
				So(timeouts, ShouldEqual, 1)
			})
		})
	})
}

func TestInvalidItems(t *testing.T) {
	Convey("Given an invalid item among valid ones", t, func() {
		broken := model.Item{ID: "broken", Passage: ""}
		f := newFixture(t, 5, time.Hour, broken)

		Convey("When a worker is offered only the invalid item", func() {
			_, err := f.next("w1")

			Convey("Then it is skipped as invalid content for that worker", func() {
				So(errors.Is(err, allocation.ErrNoneAvailable), ShouldBeTrue)
				n, _ := f.store.CountDistinctSkippers(f.ctx, "broken", model.ReasonInvalidContent)
				So(n, ShouldEqual, 1)
				cands, _ := f.engine.BuildCandidates(f.ctx, "w1")
				So(cands, ShouldBeEmpty)
			})
		})

		Convey("When the candidate list names an unknown item", func() {
			_, err := f.store.PutItems(f.ctx, []model.Item{item("ok")})
			So(err, ShouldBeNil)
			a, rest, err := f.engine.Allocate(f.ctx, "w1", []string{"ghost", "ok", "later"})

			Convey("Then allocation moves on to the next one", func() {
				So(err, ShouldBeNil)
				So(a.Item.ID, ShouldEqual, "ok")
				So(rest, ShouldResemble, []string{"later"})
			})
		})
	})
}

func TestAttemptBudget(t *testing.T) {
	Convey("Given a budget of two attempts and a stale queue", t, func() {
		f := newFixture(t, 5, time.Hour, item("c"))
		e, err := allocation.New(allocation.Ports{
			Items: f.store, Judgments: f.store, Ledger: f.store, Skips: f.store, Retired: f.policy,
		}, allocation.WithMaxAttempts(2), allocation.WithClock(f.clock.Now))
		So(err, ShouldBeNil)

		_, rest, err := e.Allocate(f.ctx, "w1", []string{"ghost1", "ghost2", "c"})

		Convey("Then it gives up with the rest of the queue", func() {
			So(errors.Is(err, allocation.ErrNoneAvailable), ShouldBeTrue)
			So(rest, ShouldResemble, []string{"c"})
		})
	})
}
