package summarize

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/briefly-app/core/internal/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisCache(client, "test", 300*time.Millisecond), mr
}

func sampleSummary() *CachedSummary {
	return &CachedSummary{
		Summary:      "A short summary.",
		Tags:         []string{"go", "cache"},
		TotalWords:   1000,
		SummaryWords: 100,
		Reduction:    90,
		ReduceTime:   9,
	}
}

func TestCacheKey(t *testing.T) {
	assert.Equal(t, "briefly:summary:concise:abc", CacheKey("briefly", "concise", "abc"))
}

func TestRedisCacheRoundTrip(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()

	got, ok, err := cache.Get(ctx, "fp1", "concise")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)

	require.NoError(t, cache.Put(ctx, "fp1", "concise", sampleSummary(), 24*time.Hour))
	assert.True(t, mr.Exists("test:summary:concise:fp1"))
	assert.Equal(t, 24*time.Hour, mr.TTL("test:summary:concise:fp1"))

	got, ok, err = cache.Get(ctx, "fp1", "concise")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleSummary(), got)

	_, ok, err = cache.Get(ctx, "fp1", "balanced")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheStoredShape(t *testing.T) {
	cache, mr := newRedisCache(t)
	require.NoError(t, cache.Put(context.Background(), "fp", "balanced", sampleSummary(), time.Hour))

	raw, err := mr.Get("test:summary:balanced:fp")
	require.NoError(t, err)
	assert.JSONEq(t, `{"summary":"A short summary.","tags":["go","cache"],"totalContentWordCount":1000,"summaryWordCount":100,"reduction":90,"reduceTime":9}`, raw)
}

func TestRedisCacheExpires(t *testing.T) {
	cache, mr := newRedisCache(t)
	ctx := context.Background()
	require.NoError(t, cache.Put(ctx, "fp", "concise", sampleSummary(), time.Minute))

	mr.FastForward(2 * time.Minute)
	_, ok, err := cache.Get(ctx, "fp", "concise")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisCacheCorruptEntry(t *testing.T) {
	cache, mr := newRedisCache(t)
	require.NoError(t, mr.Set("test:summary:concise:bad", "{not json"))

	got, ok, err := cache.Get(context.Background(), "bad", "concise")
	assert.ErrorIs(t, err, errCorruptEntry)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.False(t, mr.Exists("test:summary:concise:bad"))
}

func TestRedisCacheUnavailable(t *testing.T) {
	cache, mr := newRedisCache(t)
	mr.Close()

	_, ok, err := cache.Get(context.Background(), "fp", "concise")
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, cache.Put(context.Background(), "fp", "concise", sampleSummary(), time.Hour))
}

func TestMemoryCache(t *testing.T) {
	cache := NewMemoryCache(2, time.Hour)
	ctx := context.Background()

	value := sampleSummary()
	require.NoError(t, cache.Put(ctx, "fp", "concise", value, time.Hour))
	value.Tags[0] = "mutated"

	got, ok, err := cache.Get(ctx, "fp", "concise")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"go", "cache"}, got.Tags)

	got.Tags[0] = "mutated again"
	again, _, _ := cache.Get(ctx, "fp", "concise")
	assert.Equal(t, "go", again.Tags[0])

	_, ok, err = cache.Get(ctx, "fp", "balanced")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryCacheEvictsAndExpires(t *testing.T) {
	ctx := context.Background()

	bounded := NewMemoryCache(2, time.Hour)
	for _, fp := range []string{"a", "b", "c"} {
		require.NoError(t, bounded.Put(ctx, fp, "concise", sampleSummary(), time.Hour))
	}
	_, ok, _ := bounded.Get(ctx, "a", "concise")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok, _ = bounded.Get(ctx, "c", "concise")
	assert.True(t, ok)

	short := NewMemoryCache(10, 50*time.Millisecond)
	require.NoError(t, short.Put(ctx, "fp", "concise", sampleSummary(), time.Hour))
	require.Eventually(t, func() bool {
		_, ok, _ := short.Get(ctx, "fp", "concise")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, short.Put(ctx, "skip", "concise", sampleSummary(), 0))
	_, ok, _ = short.Get(ctx, "skip", "concise")
	assert.False(t, ok)
}
