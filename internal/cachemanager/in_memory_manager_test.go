package cachemanager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/georefresh/internal/cachemanager"
)

type blob struct {
	Path string
	Size int
}

func TestInMemoryCacheManager_GetSet(t *testing.T) {
	ctx := context.Background()
	c := cachemanager.NewInMemoryCacheManager[string, blob]("test", time.Minute, time.Minute)

	_, ok := c.Get(ctx, "rev:a.csv")
	require.False(t, ok)

	c.Set(ctx, "rev:a.csv", blob{Path: "a.csv", Size: 3}, time.Minute)
	got, ok := c.Get(ctx, "rev:a.csv")
	require.True(t, ok)
	require.Equal(t, blob{Path: "a.csv", Size: 3}, got)

	require.Equal(t, cachemanager.Stats{Hits: 1, Misses: 1, Items: 1}, c.Stats())
}

func TestInMemoryCacheManager_Expiry(t *testing.T) {
	ctx := context.Background()
	c := cachemanager.NewInMemoryCacheManager[string, int]("test", time.Minute, time.Minute)

	c.Set(ctx, "short", 1, time.Millisecond)
	c.Set(ctx, "forever", 2, cachemanager.NoExpiration)

	require.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "short")
		return !ok
	}, time.Second, 5*time.Millisecond)

	v, ok := c.Get(ctx, "forever")
	require.True(t, ok)
	require.Equal(t, 2, v)
}

func TestInMemoryCacheManager_GetWithRefresh(t *testing.T) {
	ctx := context.Background()
	c := cachemanager.NewInMemoryCacheManager[string, int]("test", time.Minute, time.Minute)

	_, ok := c.GetWithRefresh(ctx, "k", time.Hour)
	require.False(t, ok)

	c.Set(ctx, "k", 7, 50*time.Millisecond)
	v, ok := c.GetWithRefresh(ctx, "k", time.Hour)
	require.True(t, ok)
	require.Equal(t, 7, v)

	time.Sleep(100 * time.Millisecond)
	_, ok = c.Get(ctx, "k")
	require.True(t, ok, "refresh should have extended the TTL")
}

func TestInMemoryCacheManager_DeleteAndFlush(t *testing.T) {
	ctx := context.Background()
	c := cachemanager.NewInMemoryCacheManager[string, int]("test", time.Minute, time.Minute)
	c.Set(ctx, "a", 1, 0)
	c.Set(ctx, "b", 2, 0)
	c.Set(ctx, "c", 3, 0)

	require.NoError(t, c.Delete(ctx, "a", "missing"))
	_, ok := c.Get(ctx, "a")
	require.False(t, ok)
	require.Equal(t, 2, c.Stats().Items)

	require.NoError(t, c.Flush(ctx))
	require.Equal(t, 0, c.Stats().Items)
}
