// Package usagecache caches the UsageMeter snapshot in Redis, falling
// back to an in-process cache when Redis is unavailable — the same
// shape as the teacher's internal/cache.RedisCache, narrowed to the one
// value this service needs to cache (it never caches article rows:
// those go through the Store, not a cache, per spec §4.7).
package usagecache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"gdelt-article-cache/internal/usagemeter"
)

const key = "gdelt:usage:snapshot"

// Cache fronts usagemeter.Stats with a short TTL so a burst of
// /api/articles/stats requests doesn't recompute the snapshot from the
// database on every call.
type Cache struct {
	client *redis.Client
	ttl    time.Duration

	memMu  sync.RWMutex
	memVal *usagemeter.Stats
	memExp time.Time
}

// New returns a Cache. client may be nil, in which case the cache runs
// purely in-process (useful for tests and single-instance deployments).
func New(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached snapshot, or ok=false on a miss or expiry.
func (c *Cache) Get(ctx context.Context) (usagemeter.Stats, bool) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			var stats usagemeter.Stats
			if json.Unmarshal(raw, &stats) == nil {
				return stats, true
			}
		}
	}

	c.memMu.RLock()
	defer c.memMu.RUnlock()
	if c.memVal == nil || time.Now().After(c.memExp) {
		return usagemeter.Stats{}, false
	}
	return *c.memVal, true
}

// Set stores the snapshot with the Cache's configured TTL.
func (c *Cache) Set(ctx context.Context, stats usagemeter.Stats) {
	if c.client != nil {
		if raw, err := json.Marshal(stats); err == nil {
			if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err == nil {
				return
			}
		}
	}

	c.memMu.Lock()
	defer c.memMu.Unlock()
	v := stats
	c.memVal = &v
	c.memExp = time.Now().Add(c.ttl)
}

// Invalidate drops the cached snapshot so the next Get misses and the
// caller recomputes it. Nothing calls it after a Record; a cached
// snapshot otherwise lives until its TTL expires.
func (c *Cache) Invalidate(ctx context.Context) {
	if c.client != nil {
		_ = c.client.Del(ctx, key).Err()
	}
	c.memMu.Lock()
	c.memVal = nil
	c.memMu.Unlock()
}
