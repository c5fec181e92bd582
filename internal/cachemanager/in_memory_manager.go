package cachemanager

import (
	"context"
	"sync/atomic"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/zjrosen/georefresh/internal/log"
)

const DefaultExpiration = 10 * time.Minute
const DefaultCleanupInterval = 30 * time.Minute

// NoExpiration keeps an entry until it is deleted or the cache is flushed.
const NoExpiration = gocache.NoExpiration

// Compile-time check that InMemoryCacheManager implements CacheManager.
var _ CacheManager[string, int] = (*InMemoryCacheManager[string, int])(nil)

// InMemoryCacheManager is a go-cache backed CacheManager. useCase names the
// cache in log lines.
type InMemoryCacheManager[K ~string, V any] struct {
	useCase string
	cache   *gocache.Cache
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// NewInMemoryCacheManager initializes the in-memory cache.
func NewInMemoryCacheManager[K ~string, V any](useCase string, defaultExpiration, cleanupInterval time.Duration) *InMemoryCacheManager[K, V] {
	return &InMemoryCacheManager[K, V]{
		useCase: useCase,
		cache:   gocache.New(defaultExpiration, cleanupInterval),
	}
}

// Get retrieves an item from the cache by its key.
func (c *InMemoryCacheManager[K, V]) Get(_ context.Context, key K) (V, bool) {
	var zeroValue V

	value, found := c.cache.Get(string(key))
	if !found {
		c.misses.Add(1)
		log.Debug(log.CatCache, "cache miss", "cache", c.useCase, "key", key)
		return zeroValue, false
	}

	v, ok := value.(V)
	if !ok {
		c.misses.Add(1)
		log.Error(log.CatCache, "wrong type assertion when getting value", "cache", c.useCase, "key", key)
		return zeroValue, false
	}

	c.hits.Add(1)
	log.Debug(log.CatCache, "cache hit", "cache", c.useCase, "key", key)
	return v, true
}

// GetWithRefresh retrieves an item and, when found, extends its TTL.
func (c *InMemoryCacheManager[K, V]) GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool) {
	value, found := c.Get(ctx, key)
	if found {
		c.Set(ctx, key, value, ttl)
	}
	return value, found
}

// Set stores value under key. A zero ttl uses the cache default.
func (c *InMemoryCacheManager[K, V]) Set(_ context.Context, key K, value V, ttl time.Duration) {
	c.cache.Set(string(key), value, ttl)
}

// Delete removes keys. Missing keys are ignored.
func (c *InMemoryCacheManager[K, V]) Delete(_ context.Context, keys ...K) error {
	for _, key := range keys {
		c.cache.Delete(string(key))
	}
	return nil
}

// Flush drops every entry. Counters are kept.
func (c *InMemoryCacheManager[K, V]) Flush(_ context.Context) error {
	c.cache.Flush()
	log.Debug(log.CatCache, "cache flushed", "cache", c.useCase)
	return nil
}

// Stats reports hit and miss counts plus the current item count.
func (c *InMemoryCacheManager[K, V]) Stats() Stats {
	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Items:  c.cache.ItemCount(),
	}
}
