package simulation

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/types"
	"github.com/okian/jnana/pkg/logger"
)

const maxOnboardAttempts = 5

var firstNames = []string{
	"Asha", "Bilal", "Chitra", "Dev", "Esha", "Farid", "Gauri", "Hari",
	"Indu", "Jai", "Kavya", "Lalit", "Meera", "Nikhil", "Oviya", "Pranav",
}

var lastNames = []string{
	"Rao", "Iyer", "Khan", "Menon", "Pillai", "Sethi", "Verma", "Nair",
}

// Result is what one run observed.
type Result struct {
	Stats  Stats
	Report types.Report
	// Baseline is the judgment count before the run.
	Baseline int
	// Seen maps each worker to the items it was assigned, in order.
	Seen map[string][]string
	// Submitters maps each item to the workers whose submission was recorded.
	Submitters map[string][]string
}

// Run onboards cfg.Workers workers, lets them work until no item is left
// for them, then verifies the outcome against the admin report.
func Run(ctx context.Context, cfg Config, log logger.Logger) (*Result, error) {
	start := time.Now()
	base := newClient(strings.TrimRight(cfg.BaseURL, "/"), cfg.Timeout)

	if err := base.health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	before, err := base.report(ctx)
	if err != nil {
		return nil, fmt.Errorf("report retrieval failed: %w", err)
	}

	ids, err := onboardAll(ctx, base, cfg.Workers, log)
	if err != nil {
		return nil, err
	}
	log.Info(ctx, "workers onboarded", logger.Int("workers", len(ids)))

	res := &Result{
		Seen:       make(map[string][]string, len(ids)),
		Submitters: make(map[string][]string),
	}
	res.Stats.Workers = len(ids)
	res.Baseline = before.Overview.Judgments

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			w := &simWorker{
				cfg:    cfg,
				client: base.as(id),
				rng:    rand.New(rand.NewSource(cfg.Seed + int64(i))),
				log:    log,
			}
			w.work(ctx)

			mu.Lock()
			defer mu.Unlock()
			w.stats.RateLimited = w.client.limited
			res.Stats.add(w.stats)
			res.Seen[id] = w.seen
			for _, item := range w.submitted {
				res.Submitters[item] = append(res.Submitters[item], id)
			}
		}(i, id)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if res.Report, err = base.report(ctx); err != nil {
		return res, fmt.Errorf("report retrieval failed: %w", err)
	}
	res.Stats.Duration = time.Since(start)

	log.Info(ctx, "simulation finished",
		logger.Int("assignments", res.Stats.Assignments),
		logger.Int("submitted", res.Stats.Submitted),
		logger.Int("skipped", res.Stats.Skipped),
		logger.Int("expired", res.Stats.Expired),
		logger.Int("rate_limited", res.Stats.RateLimited),
		logger.Int("failed", res.Stats.Failed),
		logger.Duration("duration", res.Stats.Duration))

	return res, Verify(res)
}

// onboardAll registers n workers concurrently. A taken id is retried with
// fresh suggestions.
func onboardAll(ctx context.Context, c *client, n int, log logger.Logger) ([]string, error) {
	ids := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = onboardOne(ctx, c, i)
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			log.Error(ctx, "onboarding failed", logger.Int("worker", i), logger.Error(err))
			return nil, fmt.Errorf("onboard worker %d: %w", i, err)
		}
	}
	return ids, nil
}

func onboardOne(ctx context.Context, c *client, i int) (string, error) {
	first := firstNames[i%len(firstNames)]
	last := lastNames[(i/len(firstNames))%len(lastNames)]
	var lastErr error
	for attempt := 0; attempt < maxOnboardAttempts; attempt++ {
		opts, err := c.idOptions(ctx, first, last)
		if err != nil {
			return "", err
		}
		for _, id := range opts {
			_, err := c.onboard(ctx, types.OnboardRequest{
				ID:        id,
				FirstName: first,
				LastName:  last,
				Phone:     fmt.Sprintf("+91 90000 %05d", i),
			})
			if err == nil {
				return id, nil
			}
			if !isCode(err, "WORKER_EXISTS") {
				return "", err
			}
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no id options for %s %s", first, last)
	}
	return "", lastErr
}

type simWorker struct {
	cfg    Config
	client *client
	rng    *rand.Rand
	log    logger.Logger

	stats     Stats
	seen      []string
	submitted []string
}

func (w *simWorker) work(ctx context.Context) {
	idle := 0
	for ctx.Err() == nil {
		view, err := w.client.next(ctx)
		if err != nil {
			w.stats.Failed++
			w.log.Warn(ctx, "next failed", logger.String("worker_id", w.client.workerID), logger.Error(err))
			return
		}
		w.stats.Expired += len(view.TimedOut)
		if view.Status == types.StatusNoneAvailable {
			if idle >= w.cfg.IdleRetries {
				w.leave(ctx)
				return
			}
			idle++
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.IdleWait):
			}
			continue
		}
		idle = 0
		w.stats.Assignments++
		w.seen = append(w.seen, view.ItemID)
		w.handle(ctx, view)
	}
}

func (w *simWorker) leave(ctx context.Context) {
	if err := w.client.signOut(ctx); err != nil {
		w.stats.Failed++
		w.log.Warn(ctx, "sign-out failed", logger.String("worker_id", w.client.workerID), logger.Error(err))
		return
	}
	w.stats.SignedOut++
}

func (w *simWorker) handle(ctx context.Context, view types.WorkView) {
	if w.rng.Float64() < w.cfg.SkipRate {
		err := w.client.skip(ctx, types.SkipRequest{ItemID: view.ItemID, Reason: string(model.ReasonManualSkip)})
		switch {
		case err == nil:
			w.stats.Skipped++
		case isCode(err, "RESERVATION_EXPIRED"):
			w.stats.Expired++
		default:
			w.stats.Failed++
			w.log.Warn(ctx, "skip failed", logger.String("item_id", view.ItemID), logger.Error(err))
		}
		return
	}

	labels := make([]string, len(view.SubItems))
	for i := range labels {
		labels[i] = w.label()
	}
	res, err := w.client.submit(ctx, types.SubmitRequest{ItemID: view.ItemID, Labels: labels})
	switch {
	case err == nil:
		w.stats.Submitted++
		w.stats.Recorded += res.Recorded
		w.stats.Doubts += res.Doubts
		if res.Completed {
			w.stats.Completed++
		}
		if res.Recorded > 0 {
			w.submitted = append(w.submitted, view.ItemID)
		}
	case isCode(err, "RESERVATION_EXPIRED"):
		w.stats.Expired++
	default:
		w.stats.Failed++
		w.log.Warn(ctx, "submit failed", logger.String("item_id", view.ItemID), logger.Error(err))
	}
}

func (w *simWorker) label() string {
	p := w.rng.Float64()
	switch {
	case p < w.cfg.DoubtRate:
		return string(model.LabelDoubt)
	case p < w.cfg.DoubtRate+w.cfg.CorrectRate:
		return string(model.LabelCorrect)
	default:
		return string(model.LabelIncorrect)
	}
}
