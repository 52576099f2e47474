package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/jnana/internal/adapters/mq/queue"
	"github.com/okian/jnana/internal/adapters/mq/worker"
	"github.com/okian/jnana/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

type memStore struct {
	mu   sync.Mutex
	rows []model.Activity
	fail map[string]bool
}

func (m *memStore) RecordActivity(_ context.Context, a model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail[a.ID] {
		return errors.New("disk full")
	}
	m.rows = append(m.rows, a)
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func TestRecorder(t *testing.T) {
	Convey("Given a recorder on a queue", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(10))
		store := &memStore{fail: map[string]bool{"bad": true}}
		r := worker.NewRecorder(q, store, worker.WithName("test"))
		ctx := context.Background()

		go r.Run(ctx)

		Convey("When events arrive and the queue closes", func() {
			q.Enqueue(ctx, model.Activity{ID: "a", WorkerID: "w", Action: model.ActionAllocated})
			q.Enqueue(ctx, model.Activity{ID: "bad", WorkerID: "w", Action: model.ActionSubmitted})
			q.Enqueue(ctx, model.Activity{ID: "b", WorkerID: "w", Action: model.ActionSubmitted})
			_ = q.Close()

			Convey("Then good events are stored and the recorder stops", func() {
				select {
				case <-r.Done():
				case <-time.After(2 * time.Second):
				}
				So(store.count(), ShouldEqual, 2)
			})
		})

		Convey("When it is shut down", func() {
			err := r.Shutdown(ctx)

			Convey("Then it returns without error and tolerates a second call", func() {
				So(err, ShouldBeNil)
				So(r.Shutdown(ctx), ShouldBeNil)
			})
		})
	})
}

func TestPool(t *testing.T) {
	Convey("Given a pool of three recorders", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(500))
		store := &memStore{}
		p := worker.NewPool(3, q, store)
		ctx := context.Background()
		p.Start(ctx)

		So(p.Size(), ShouldEqual, 3)

		Convey("When many events are queued and the pool shuts down", func() {
			for i := 0; i < 300; i++ {
				So(q.Enqueue(ctx, model.Activity{WorkerID: "w", Action: model.ActionNote}), ShouldBeTrue)
			}
			So(p.Shutdown(ctx), ShouldBeNil)

			Convey("Then everything queued was drained", func() {
				So(store.count(), ShouldEqual, 300)
				So(q.IsClosed(), ShouldBeTrue)
			})
		})
	})

	Convey("Given a non-positive count", t, func() {
		p := worker.NewPool(0, queue.NewInMemoryQueue(), &memStore{})
		So(p.Size(), ShouldEqual, 2)
	})
}
