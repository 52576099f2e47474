// Package worker drains the activity queue into the store.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/jnana/internal/adapters/mq/queue"
	"github.com/okian/jnana/pkg/logger"
	"github.com/okian/jnana/pkg/metrics"
)

const (
	defaultRecorderCount = 2
	writeTimeout         = 5 * time.Second
	poolShutdownTimeout  = 30 * time.Second
)

// Event is what recorders read off the queue.
type Event = queue.Event

// Store persists activity events.
type Store interface {
	RecordActivity(ctx context.Context, a Event) error
}

// Queue defines how recorders receive events.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Event
}

// Recorder persists events from a queue until the queue closes or it is
// shut down.
type Recorder struct {
	queue Queue
	store Store
	name  string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewRecorder creates a recorder.
func NewRecorder(q Queue, store Store, opts ...Option) *Recorder {
	r := &Recorder{
		queue:    q,
		store:    store,
		name:     "recorder",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named(r.name)
	return r
}

// Run processes events until ctx is cancelled, Shutdown is called or the
// queue is closed and drained.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)

	events := r.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.shutdown:
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if err := r.record(ctx, e); err != nil {
				r.logger.Error(ctx, "failed to record activity", logger.Error(err))
			}
		}
	}
}

// Shutdown stops the recorder and waits for it to finish.
func (r *Recorder) Shutdown(ctx context.Context) error {
	r.shutdownOnce.Do(func() { close(r.shutdown) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		r.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) record(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: channel value
	start := time.Now()
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	if err := r.store.RecordActivity(wctx, e); err != nil {
		metrics.RecordActivityError()
		return fmt.Errorf("activity %s of %s: %w", e.Action, e.WorkerID, err)
	}
	metrics.RecordActivityRecorded(e.Action, float64(time.Since(start).Milliseconds()))
	return nil
}

// Pool runs several recorders over one queue.
type Pool struct {
	recorders []*Recorder
	queue     Queue
	logger    logger.Logger
}

// NewPool creates a pool of count recorders.
func NewPool(count int, q Queue, store Store, opts ...Option) *Pool {
	if count < 1 {
		count = defaultRecorderCount
	}
	probe := &Recorder{logger: logger.Nop()}
	for _, opt := range opts {
		opt(probe)
	}
	p := &Pool{
		recorders: make([]*Recorder, count),
		queue:     q,
		logger:    probe.logger.Named("recorder-pool"),
	}
	for i := range p.recorders {
		ropts := append(append([]Option{}, opts...), WithName("recorder-"+strconv.Itoa(i)))
		p.recorders[i] = NewRecorder(q, store, ropts...)
	}
	metrics.UpdateRecorderCount(count)
	return p
}

// Size returns the number of recorders.
func (p *Pool) Size() int { return len(p.recorders) }

// Start runs every recorder in its own goroutine.
func (p *Pool) Start(ctx context.Context) {
	for _, r := range p.recorders {
		go r.Run(ctx)
	}
}

// Shutdown closes the queue so recorders drain what is left, then waits.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	sctx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, r := range p.recorders {
		select {
		case <-r.done:
		case <-sctx.Done():
			p.logger.Warn(ctx, "recorder shutdown timed out", logger.Int("recorder", i))
		}
	}
	metrics.UpdateRecorderCount(0)
	return nil
}
