// Package retirement removes items from allocation once enough distinct
// workers have skipped them by hand.
package retirement

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/pkg/logger"
	"github.com/okian/jnana/pkg/metrics"
)

const (
	defaultThreshold = 3
	defaultCacheTTL  = 30 * time.Second
	retiredKey       = "retired"
)

// Store is what the policy needs from the durable store.
type Store interface {
	CountDistinctSkippers(ctx context.Context, itemID string, reason model.Reason) (int, error)
	Retire(ctx context.Context, itemID string, at time.Time) (bool, error)
	RetiredIDs(ctx context.Context) ([]string, error)
}

// Policy retires items at R distinct manual skippers and serves the retired
// set from a short-lived cache.
type Policy struct {
	store     Store
	threshold int
	cache     *gocache.Cache
	now       func() time.Time
	log       logger.Logger
}

// Option applies a configuration option to the Policy.
type Option func(*Policy)

// WithThreshold sets R.
func WithThreshold(r int) Option {
	return func(p *Policy) {
		if r > 0 {
			p.threshold = r
		}
	}
}

// WithCacheTTL sets how long the retired set is served before reloading.
func WithCacheTTL(ttl time.Duration) Option {
	return func(p *Policy) {
		if ttl > 0 {
			p.cache = gocache.New(ttl, 2*ttl)
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Policy) {
		if l != nil {
			p.log = l
		}
	}
}

// New creates a Policy with R=3 and a 30s cache.
func New(store Store, opts ...Option) *Policy {
	p := &Policy{
		store:     store,
		threshold: defaultThreshold,
		cache:     gocache.New(defaultCacheTTL, 2*defaultCacheTTL),
		now:       time.Now,
		log:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Threshold returns R.
func (p *Policy) Threshold() int { return p.threshold }

// Observe re-counts the item's manual skippers and retires it once the
// count reaches R. It reports whether this call retired the item.
func (p *Policy) Observe(ctx context.Context, itemID string) (bool, error) {
	n, err := p.store.CountDistinctSkippers(ctx, itemID, model.ReasonManualSkip)
	if err != nil {
		return false, fmt.Errorf("failed to count skippers of %s: %w", itemID, err)
	}
	if n < p.threshold {
		return false, nil
	}
	inserted, err := p.store.Retire(ctx, itemID, p.now())
	if err != nil {
		return false, err
	}
	p.Invalidate()
	if inserted {
		metrics.RecordRetirement()
		p.log.Info(ctx, "item retired", logger.String("item_id", itemID), logger.Int("manual_skippers", n))
	}
	return inserted, nil
}

// Retired returns the set of retired item ids. The returned map is shared
// and must not be modified.
func (p *Policy) Retired(ctx context.Context) (map[string]struct{}, error) {
	if v, ok := p.cache.Get(retiredKey); ok {
		metrics.RecordCacheHit("retired")
		return v.(map[string]struct{}), nil
	}
	metrics.RecordCacheMiss("retired")
	ids, err := p.store.RetiredIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load retired set: %w", err)
	}
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	p.cache.SetDefault(retiredKey, set)
	return set, nil
}

// Invalidate drops the cached retired set.
func (p *Policy) Invalidate() {
	p.cache.Delete(retiredKey)
}
