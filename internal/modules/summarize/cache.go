package summarize

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/briefly-app/core/internal/pkg/redis"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedSummary is the value shared by every requester of the same
// fingerprint and style. Entries are written once and expire by TTL.
type CachedSummary struct {
	Summary      string   `json:"summary"`
	Tags         []string `json:"tags"`
	TotalWords   int      `json:"totalContentWordCount"`
	SummaryWords int      `json:"summaryWordCount"`
	Reduction    int      `json:"reduction"`
	ReduceTime   int      `json:"reduceTime"`
}

// Cache stores summaries by fingerprint and style.
type Cache interface {
	// Get reports a miss as (nil, false, nil).
	Get(ctx context.Context, fp, style string) (*CachedSummary, bool, error)
	Put(ctx context.Context, fp, style string, value *CachedSummary, ttl time.Duration) error
}

var errCorruptEntry = errors.New("corrupt cache entry")

// CacheKey returns "<prefix>:summary:<style>:<fingerprint>".
func CacheKey(prefix, style, fp string) string {
	return prefix + ":summary:" + style + ":" + fp
}

// RedisCache keeps summaries in Redis. Every call is bounded by timeout so a
// slow cache degrades to a miss instead of stalling the request.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

// NewRedisCache builds a RedisCache.
func NewRedisCache(client *redis.Client, prefix string, timeout time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, timeout: timeout}
}

func (c *RedisCache) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Get loads an entry. An undecodable payload is deleted and reported as a
// miss with errCorruptEntry.
func (c *RedisCache) Get(ctx context.Context, fp, style string) (*CachedSummary, bool, error) {
	key := CacheKey(c.prefix, style, fp)
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	raw, ok, err := c.client.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}

	var value CachedSummary
	if err := json.Unmarshal([]byte(raw), &value); err != nil || value.Summary == "" {
		_ = c.client.Del(ctx, key)
		return nil, false, fmt.Errorf("%w %s", errCorruptEntry, key)
	}
	return &value, true, nil
}

// Put overwrites the entry. Concurrent writers for the same key race and the
// last one wins; both carry an equivalent summary.
func (c *RedisCache) Put(ctx context.Context, fp, style string, value *CachedSummary, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	return c.client.Set(ctx, CacheKey(c.prefix, style, fp), payload, ttl)
}

const memoryCacheCapacity = 10000

// MemoryCache is a process-local Cache for development and tests. Entries
// share one TTL fixed at construction; expired entries are evicted in the
// background by the underlying LRU.
type MemoryCache struct {
	entries *expirable.LRU[string, CachedSummary]
}

// NewMemoryCache builds a MemoryCache holding at most capacity entries for ttl.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = memoryCacheCapacity
	}
	return &MemoryCache{entries: expirable.NewLRU[string, CachedSummary](capacity, nil, ttl)}
}

func (c *MemoryCache) Get(_ context.Context, fp, style string) (*CachedSummary, bool, error) {
	value, ok := c.entries.Get(style + ":" + fp)
	if !ok {
		return nil, false, nil
	}
	value.Tags = append([]string(nil), value.Tags...)
	return &value, true, nil
}

// Put stores value under the cache-wide TTL. A non-positive ttl skips the write.
func (c *MemoryCache) Put(_ context.Context, fp, style string, value *CachedSummary, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	stored := *value
	stored.Tags = append([]string(nil), value.Tags...)
	c.entries.Add(style+":"+fp, stored)
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int { return c.entries.Len() }
