package repository

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/okian/jnana/internal/domain/model"
	"github.com/okian/jnana/pkg/metrics"
)

const itemIDsKey = "\x00ids"

// ItemReader is the read side of the item collection.
type ItemReader interface {
	GetItem(ctx context.Context, id string) (model.Item, error)
	ListItemIDs(ctx context.Context) ([]string, error)
}

// CachedItems is a time-bounded read-through cache in front of an ItemReader.
// Items are immutable while audited, so entries only age out. The id list
// changes whenever any process imports, so it gets its own shorter TTL.
// Misses are not cached.
type CachedItems struct {
	src    ItemReader
	cache  *gocache.Cache
	idsTTL time.Duration
}

// NewCachedItems caches item lookups for ttl and the id list for idsTTL,
// capped at ttl. A non-positive idsTTL disables id list caching.
func NewCachedItems(src ItemReader, ttl, idsTTL time.Duration) *CachedItems {
	return &CachedItems{
		src:    src,
		cache:  gocache.New(ttl, 2*ttl),
		idsTTL: min(idsTTL, ttl),
	}
}

// GetItem returns the cached item or loads it from the source.
func (c *CachedItems) GetItem(ctx context.Context, id string) (model.Item, error) {
	if v, ok := c.cache.Get(id); ok {
		metrics.RecordCacheHit("items")
		return v.(model.Item), nil
	}
	metrics.RecordCacheMiss("items")
	it, err := c.src.GetItem(ctx, id)
	if err != nil {
		return model.Item{}, err
	}
	c.cache.SetDefault(id, it)
	return it, nil
}

// ListItemIDs returns the cached id list or loads it from the source.
func (c *CachedItems) ListItemIDs(ctx context.Context) ([]string, error) {
	if v, ok := c.cache.Get(itemIDsKey); ok {
		metrics.RecordCacheHit("item_ids")
		return v.([]string), nil
	}
	metrics.RecordCacheMiss("item_ids")
	ids, err := c.src.ListItemIDs(ctx)
	if err != nil {
		return nil, err
	}
	if c.idsTTL > 0 {
		c.cache.Set(itemIDsKey, ids, c.idsTTL)
	}
	return ids, nil
}

// InvalidateIDs drops the cached id list after an import in this process.
func (c *CachedItems) InvalidateIDs() {
	c.cache.Delete(itemIDsKey)
}
