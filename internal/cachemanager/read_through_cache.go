package cachemanager

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// ReadThroughCache loads values through fn on a miss and stores them.
// Concurrent misses for the same key share one call to fn.
type ReadThroughCache[K ~string, V any, I any] struct {
	cache           CacheManager[K, V]
	fn              func(ctx context.Context, input I) (V, error)
	shouldSkipCache bool
	group           singleflight.Group
}

func NewReadThroughCache[K ~string, V any, I any](
	cache CacheManager[K, V],
	fn func(ctx context.Context, input I) (V, error),
	shouldSkipCache bool,
) *ReadThroughCache[K, V, I] {
	return &ReadThroughCache[K, V, I]{
		cache:           cache,
		fn:              fn,
		shouldSkipCache: shouldSkipCache,
	}
}

// Get returns the cached value for key or loads it from input.
// Errors are never cached.
func (r *ReadThroughCache[K, V, I]) Get(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.Get(ctx, key); ok {
		return value, nil
	}
	return r.load(ctx, key, input, ttl)
}

// GetWithRefresh is Get, but a hit also extends the entry's TTL.
func (r *ReadThroughCache[K, V, I]) GetWithRefresh(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	if r.shouldSkipCache {
		return r.fn(ctx, input)
	}

	if value, ok := r.cache.GetWithRefresh(ctx, key, ttl); ok {
		return value, nil
	}
	return r.load(ctx, key, input, ttl)
}

func (r *ReadThroughCache[K, V, I]) load(ctx context.Context, key K, input I, ttl time.Duration) (V, error) {
	result, err, _ := r.group.Do(string(key), func() (any, error) {
		value, err := r.fn(ctx, input)
		if err != nil {
			return value, err
		}
		r.cache.Set(ctx, key, value, ttl)
		return value, nil
	})

	value, ok := result.(V)
	if !ok && result != nil {
		var zero V
		return zero, fmt.Errorf("read-through %q: unexpected value type %T", string(key), result)
	}
	return value, err
}
