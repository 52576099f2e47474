// Package service wires the allocation and agreement engines to the store
// and implements the operations behind the HTTP API and the admin CLI.
package service

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	activityqueue "github.com/okian/jnana/internal/adapters/mq/queue"
	recorderpool "github.com/okian/jnana/internal/adapters/mq/worker"
	"github.com/okian/jnana/internal/adapters/repository"
	"github.com/okian/jnana/internal/config"
	"github.com/okian/jnana/internal/domain/agreement"
	"github.com/okian/jnana/internal/domain/allocation"
	"github.com/okian/jnana/internal/domain/dedupe"
	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/internal/domain/retirement"
	"github.com/okian/jnana/pkg/logger"
	"github.com/okian/jnana/pkg/metrics"
)

const systemMetricsInterval = 5 * time.Second

// Service implements the labeling workflow.
type Service struct {
	mu sync.RWMutex

	store    repository.Store
	items    allocation.ItemSource
	cached   *repository.CachedItems
	policy   *retirement.Policy
	engine   *allocation.Engine
	scorer   *agreement.Engine
	deduper  dedupe.Deduper
	activity *activityqueue.InMemoryQueue
	pool     *recorderpool.Pool

	sessMu   sync.Mutex
	sessions *gocache.Cache

	cfg *config.Config
	now func() time.Time

	rngMu sync.Mutex
	rng   *rand.Rand

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig sets the runtime configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithClock replaces time.Now for every time-dependent decision.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRand sets the random source for candidate shuffling and id suggestions.
func WithRand(r *rand.Rand) Option {
	return func(s *Service) {
		if r != nil {
			s.rng = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

type ttlReporter interface {
	ReservationTTL() time.Duration
}

// New builds a Service over store. The store's reservation TTL must equal
// the configured timer.
func New(store repository.Store, opts ...Option) (*Service, error) {
	s := &Service{
		store:  store,
		cfg:    config.New(),
		now:    time.Now,
		stopCh: make(chan struct{}),
		logger: logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // not security sensitive
	}
	cfg := s.cfg
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if tr, ok := store.(ttlReporter); ok && tr.ReservationTTL() != cfg.Timer() {
		return nil, fmt.Errorf("%w: store %s, timer %s", ErrTTLMismatch, tr.ReservationTTL(), cfg.Timer())
	}

	s.items = store
	if cfg.ItemCacheTTL() > 0 {
		s.cached = repository.NewCachedItems(store, cfg.ItemCacheTTL(), cfg.ItemIDsCacheTTL())
		s.items = s.cached
	}

	s.policy = retirement.New(store,
		retirement.WithThreshold(cfg.RetireThreshold),
		retirement.WithCacheTTL(cfg.RetiredCacheTTL()),
		retirement.WithClock(s.now),
		retirement.WithLogger(s.logger.Named("retirement")),
	)

	engine, err := allocation.New(allocation.Ports{
		Items:     s.items,
		Judgments: store,
		Ledger:    store,
		Skips:     store,
		Retired:   s.policy,
	},
		allocation.WithQuota(cfg.Quota),
		allocation.WithTimer(cfg.Timer()),
		allocation.WithMaxAttempts(cfg.MaxAllocationAttempts),
		allocation.WithPrioritizeNearComplete(cfg.PrioritizeNearComplete),
		allocation.WithClock(s.now),
		allocation.WithRand(rand.New(rand.NewSource(s.rng.Int63()))), //nolint:gosec // shuffling only
		allocation.WithLogger(s.logger.Named("allocation")),
	)
	if err != nil {
		return nil, err
	}
	s.engine = engine

	s.scorer = agreement.New(
		agreement.WithQuota(cfg.Quota),
		agreement.WithThreshold(cfg.AcceptanceThreshold),
		agreement.WithLogger(s.logger.Named("agreement")),
	)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithTTL(cfg.Timer()))
	s.activity = activityqueue.NewInMemoryQueue(activityqueue.WithCapacity(cfg.ActivityQueueSize))
	s.pool = recorderpool.NewPool(cfg.ActivityWorkers, s.activity, store,
		recorderpool.WithLogger(s.logger))

	idle := cfg.SessionIdle()
	if idle <= 0 {
		idle = gocache.NoExpiration
	}
	s.sessions = gocache.New(idle, time.Minute)
	return s, nil
}

// Start launches the activity recorders, the expired-reservation sweeper
// and the system metrics updater.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.logger.Info(ctx, "starting labeling service...")
	s.pool.Start(ctx)

	if interval := s.cfg.SweepInterval(); interval > 0 {
		s.wg.Add(1)
		go s.sweepLoop(ctx, interval)
	}
	s.wg.Add(1)
	go s.systemMetricsLoop(ctx)

	s.started = true
	s.logger.Info(ctx, "labeling service started",
		logger.Int("quota", s.cfg.Quota),
		logger.Int("retire_threshold", s.cfg.RetireThreshold),
		logger.Duration("timer", s.cfg.Timer()),
		logger.Int("recorders", s.pool.Size()),
	)
	return nil
}

// Stop stops background work and drains the activity queue. It does not
// close the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	ctx := context.Background()
	s.logger.Info(ctx, "stopping labeling service...")

	close(s.stopCh)
	s.wg.Wait()
	if err := s.pool.Shutdown(ctx); err != nil {
		s.logger.Error(ctx, "recorder pool shutdown failed", logger.Error(err))
	}

	s.started = false
	s.logger.Info(ctx, "labeling service stopped")
}

func (s *Service) sweepLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error(ctx, "reservation sweep failed", logger.Error(err))
			}
		}
	}
}

func (s *Service) systemMetricsLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	var lastNumGC uint32
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			metrics.UpdateSystemMemoryUsage(m.Alloc)
			metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())
			if m.NumGC > lastNumGC {
				metrics.RecordSystemGCPauseTime(float64(m.PauseNs[(m.NumGC+255)%256]) / 1e6)
				lastNumGC = m.NumGC
			}
			metrics.UpdateQueueSize(s.activity.Len(ctx))
		}
	}
}

// enqueue publishes an activity event; a full queue drops it.
func (s *Service) enqueue(ctx context.Context, workerID, itemID, action string, detail map[string]string) {
	a := model.Activity{
		WorkerID: workerID,
		ItemID:   itemID,
		Action:   action,
		Detail:   detail,
		At:       s.now(),
	}
	if !s.activity.Enqueue(ctx, a) {
		s.logger.Warn(ctx, "activity dropped",
			logger.String("worker_id", workerID),
			logger.String("action", action))
	}
}

// Config returns the effective configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// Sweep converts every expired reservation into a timeout skip.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	n, err := s.engine.Sweep(ctx)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return n, nil
}

// Ping checks the store.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Stats returns live counters for monitoring.
func (s *Service) Stats(ctx context.Context) map[string]any {
	s.mu.RLock()
	started := s.started
	s.mu.RUnlock()

	stats := map[string]any{
		"started":        started,
		"quota":          s.cfg.Quota,
		"timerSeconds":   s.cfg.TimerSeconds,
		"recorders":      s.pool.Size(),
		"queueCapacity":  s.activity.Cap(),
		"queueLength":    s.activity.Len(ctx),
		"queueDropped":   s.activity.Dropped(),
		"sessions":       s.SessionCount(),
		"inFlightGuards": s.deduper.Size(),
	}

	counts, err := s.store.Counts(ctx, s.now())
	if err != nil {
		s.logger.Warn(ctx, "stats counts unavailable", logger.Error(err))
		return stats
	}
	stats["items"] = counts.Items
	stats["judgments"] = counts.Judgments
	stats["workers"] = counts.Workers
	stats["activeReservations"] = counts.ActiveReservations
	stats["retired"] = counts.Retired
	metrics.UpdateActiveReservations(counts.ActiveReservations)
	return stats
}
