// Package dedupe guards submissions that are still in flight.
package dedupe

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

const defaultTTL = 10 * time.Minute

// Deduper records keys to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool

	// Unrecord removes a key so the operation can be retried, e.g. after a
	// failed store write.
	Unrecord(ctx context.Context, key string)

	Size() int64
}

// inMemoryDeduper keeps keys in a go-cache so forgotten entries age out.
type inMemoryDeduper struct {
	ttl   time.Duration
	cache *gocache.Cache
}

// NewInMemoryDeduper creates a deduper. Keys expire after the configured TTL.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{ttl: defaultTTL}
	for _, opt := range opts {
		opt(d)
	}
	d.cache = gocache.New(d.ttl, 2*d.ttl)
	return d
}

// SeenAndRecord relies on Cache.Add, which fails when a live entry exists.
func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	return d.cache.Add(key, struct{}{}, gocache.DefaultExpiration) != nil
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, key string) {
	d.cache.Delete(key)
}

func (d *inMemoryDeduper) Size() int64 {
	return int64(d.cache.ItemCount())
}
