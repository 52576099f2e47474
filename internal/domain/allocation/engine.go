// Package allocation hands each worker one item at a time so that no item
// collects more than Q judgments, no worker sees an item twice and abandoned
// items return to the pool.
package allocation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/okian/jnana/internal/adapters/repository"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/pkg/logger"
	"github.com/okian/jnana/pkg/metrics"
)

const (
	defaultQuota       = 5
	defaultTimer       = 420 * time.Second
	defaultMaxAttempts = 64
)

// Engine builds candidate queues and turns them into reservations.
type Engine struct {
	Ports

	quota       int
	timer       time.Duration
	maxAttempts int
	prioritize  bool
	now         func() time.Time
	log         logger.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates an Engine over the given ports.
func New(p Ports, opts ...Option) (*Engine, error) {
	if p.Items == nil || p.Judgments == nil || p.Ledger == nil || p.Skips == nil || p.Retired == nil {
		return nil, ErrMissingPort
	}
	e := &Engine{
		Ports:       p,
		quota:       defaultQuota,
		timer:       defaultTimer,
		maxAttempts: defaultMaxAttempts,
		prioritize:  true,
		now:         time.Now,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // shuffling, not security
	}
	return e, nil
}

// Quota returns Q.
func (e *Engine) Quota() int { return e.quota }

// Timer returns the reservation lifetime.
func (e *Engine) Timer() time.Duration { return e.timer }

// Now returns the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// BuildCandidates returns the items workerID may be offered, nearest to
// completion first. Items are eligible when they are not retired, have
// fewer than Q completed plus reserved workers and are absent from the
// worker's history of judgments, skips and reservations.
func (e *Engine) BuildCandidates(ctx context.Context, workerID string) ([]string, error) {
	now := e.now()

	all, err := e.Items.ListItemIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	retired, err := e.Retired.Retired(ctx)
	if err != nil {
		return nil, err
	}
	completed, err := e.Judgments.CountWorkersByItem(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count completions: %w", err)
	}
	reserved, err := e.Ledger.CountActiveByItem(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count reservations: %w", err)
	}
	history, err := e.history(ctx, workerID)
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(all))
	for _, id := range all {
		if _, ok := retired[id]; ok {
			continue
		}
		if _, ok := history[id]; ok {
			continue
		}
		if completed[id]+reserved[id] >= e.quota {
			continue
		}
		out = append(out, id)
	}

	e.rngMu.Lock()
	e.rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	e.rngMu.Unlock()

	if e.prioritize {
		sort.SliceStable(out, func(i, j int) bool {
			return e.quota-completed[out[i]] < e.quota-completed[out[j]]
		})
	}

	metrics.RecordCandidateSetSize(len(out))
	return out, nil
}

func (e *Engine) history(ctx context.Context, workerID string) (map[string]struct{}, error) {
	judged, err := e.Judgments.ItemsJudgedBy(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load judged items: %w", err)
	}
	skipped, err := e.Skips.ItemsSkippedBy(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load skipped items: %w", err)
	}
	held, err := e.Ledger.ReservationsFor(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}

	h := make(map[string]struct{}, len(judged)+len(skipped)+len(held))
	for _, id := range judged {
		h[id] = struct{}{}
	}
	for _, id := range skipped {
		h[id] = struct{}{}
	}
	for _, r := range held {
		h[r.ItemID] = struct{}{}
	}
	return h, nil
}

// Allocate pops candidates until one can be reserved for workerID. Each
// popped item is re-checked against the store; items that filled up, lost a
// reservation race or turned out invalid are dropped. The unconsumed tail of
// the queue is returned so callers can keep it for the next request.
func (e *Engine) Allocate(ctx context.Context, workerID string, candidates []string) (model.Assignment, []string, error) {
	queue := candidates
	attempts := 0
	for len(queue) > 0 && attempts < e.maxAttempts {
		id := queue[0]
		queue = queue[1:]
		attempts++

		a, ok, err := e.try(ctx, workerID, id)
		if err != nil {
			return model.Assignment{}, queue, err
		}
		if ok {
			metrics.RecordAllocation("assigned")
			metrics.RecordAllocationAttempts(attempts)
			e.log.Debug(ctx, "item reserved",
				logger.String("worker_id", workerID),
				logger.String("item_id", id),
				logger.Int("attempts", attempts))
			return a, queue, nil
		}
	}
	metrics.RecordAllocation("none_available")
	metrics.RecordAllocationAttempts(attempts)
	return model.Assignment{}, queue, ErrNoneAvailable
}

// try reserves one item. ok is false when the item must be dropped.
func (e *Engine) try(ctx context.Context, workerID, itemID string) (model.Assignment, bool, error) {
	now := e.now()

	retired, err := e.Retired.Retired(ctx)
	if err != nil {
		return model.Assignment{}, false, err
	}
	if _, gone := retired[itemID]; gone {
		metrics.RecordAllocationRace("retired")
		return model.Assignment{}, false, nil
	}

	workers, err := e.Judgments.DistinctWorkers(ctx, itemID)
	if err != nil {
		return model.Assignment{}, false, fmt.Errorf("failed to read completions of %s: %w", itemID, err)
	}
	for _, w := range workers {
		if w == workerID {
			return model.Assignment{}, false, nil
		}
	}
	active, err := e.Ledger.CountActive(ctx, itemID, now)
	if err != nil {
		return model.Assignment{}, false, fmt.Errorf("failed to count reservations of %s: %w", itemID, err)
	}
	if len(workers)+active >= e.quota {
		metrics.RecordAllocationRace("full")
		return model.Assignment{}, false, nil
	}

	item, err := e.Items.GetItem(ctx, itemID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		e.markInvalid(ctx, workerID, itemID, err)
		return model.Assignment{}, false, nil
	case err != nil:
		return model.Assignment{}, false, fmt.Errorf("failed to load item %s: %w", itemID, err)
	}
	if verr := item.Validate(); verr != nil {
		e.markInvalid(ctx, workerID, itemID, verr)
		return model.Assignment{}, false, nil
	}

	err = e.Ledger.InsertReservation(ctx, itemID, workerID, now, e.quota)
	switch {
	case errors.Is(err, repository.ErrDuplicateReservation):
		metrics.RecordAllocationRace("duplicate")
		return model.Assignment{}, false, nil
	case errors.Is(err, repository.ErrQuotaReached):
		metrics.RecordAllocationRace("quota")
		return model.Assignment{}, false, nil
	case err != nil:
		return model.Assignment{}, false, err
	}

	return model.Assignment{
		Item:       item,
		ReservedAt: now,
		Deadline:   now.Add(e.timer),
	}, true, nil
}

func (e *Engine) markInvalid(ctx context.Context, workerID, itemID string, cause error) {
	e.log.Warn(ctx, "skipping invalid item",
		logger.String("worker_id", workerID),
		logger.String("item_id", itemID),
		logger.Error(cause))
	inserted, err := e.Skips.RecordSkip(ctx, model.Skip{
		ItemID:    itemID,
		WorkerID:  workerID,
		Reason:    model.ReasonInvalidContent,
		SkippedAt: e.now(),
	})
	if err != nil {
		e.log.Error(ctx, "failed to record invalid content skip", logger.String("item_id", itemID), logger.Error(err))
		return
	}
	if inserted {
		metrics.RecordSkip(string(model.ReasonInvalidContent))
	}
}

// Release ends the worker's reservation on itemID. Every reason other than
// submitted leaves a skip record; a manual skip may retire the item.
func (e *Engine) Release(ctx context.Context, workerID, itemID string, reason model.Reason) error {
	if err := e.Ledger.RemoveReservations(ctx, itemID, workerID); err != nil {
		return err
	}
	if reason == model.ReasonSubmitted {
		return nil
	}

	inserted, err := e.Skips.RecordSkip(ctx, model.Skip{
		ItemID:    itemID,
		WorkerID:  workerID,
		Reason:    reason,
		SkippedAt: e.now(),
	})
	if err != nil {
		return err
	}
	if inserted {
		metrics.RecordSkip(string(reason))
	}

	if reason == model.ReasonManualSkip {
		if _, err := e.Retired.Observe(ctx, itemID); err != nil {
			return err
		}
	}
	return nil
}

// ExpireStale converts the worker's expired reservations into timeout skips
// and returns the affected item ids.
func (e *Engine) ExpireStale(ctx context.Context, workerID string) ([]string, error) {
	rows, err := e.Ledger.ReservationsFor(ctx, workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to load reservations: %w", err)
	}
	now := e.now()
	var expired []string
	for _, r := range rows {
		if !r.Expired(now, e.timer) {
			continue
		}
		if err := e.expire(ctx, r); err != nil {
			return expired, err
		}
		expired = append(expired, r.ItemID)
	}
	return expired, nil
}

// Sweep converts every expired reservation into a timeout skip.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	rows, err := e.Ledger.ExpiredReservations(ctx, e.now())
	if err != nil {
		return 0, fmt.Errorf("failed to load expired reservations: %w", err)
	}
	n := 0
	for _, r := range rows {
		if err := e.expire(ctx, r); err != nil {
			return n, err
		}
		n++
	}
	if n > 0 {
		e.log.Info(ctx, "expired reservations swept", logger.Int("count", n))
	}
	return n, nil
}

func (e *Engine) expire(ctx context.Context, r model.Reservation) error {
	inserted, err := e.Skips.RecordSkip(ctx, model.Skip{
		ItemID:    r.ItemID,
		WorkerID:  r.WorkerID,
		Reason:    model.ReasonTimeout,
		SkippedAt: r.Deadline(e.timer),
	})
	if err != nil {
		return err
	}
	if inserted {
		metrics.RecordReservationExpired()
		metrics.RecordSkip(string(model.ReasonTimeout))
	}
	return e.Ledger.RemoveReservations(ctx, r.ItemID, r.WorkerID)
}
