// Package cachemanager provides small generic caches used to avoid
// re-reading immutable data, such as file content at a git revision.
package cachemanager

import (
	"context"
	"time"
)

// CacheManager stores values by key with a per-entry TTL.
type CacheManager[K comparable, V any] interface {
	Get(ctx context.Context, key K) (V, bool)
	GetWithRefresh(ctx context.Context, key K, ttl time.Duration) (V, bool)
	Set(ctx context.Context, key K, value V, ttl time.Duration)
	Delete(ctx context.Context, keys ...K) error
	Flush(ctx context.Context) error
	Stats() Stats
}

// Stats counts lookups since the cache was created.
type Stats struct {
	Hits   uint64
	Misses uint64
	Items  int
}
