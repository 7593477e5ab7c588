package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache key prefixes for API query results. Window keys (latest blocks,
// latest transactions, daily stats) go stale on every ingested block and are
// invalidated by the new-block event subscriber.
const (
	cacheKeyLatestBlocks = "query:latest_blocks"
	cacheKeyLatestTxs    = "query:latest_txs"
	cacheKeyDailyStats   = "query:daily_stats"

	defaultQueryTTL = 30 * time.Second
)

// QueryCache caches hot API query results in Redis. A cache failure is never
// fatal; callers fall through to the database.
type QueryCache struct {
	redis *RedisCache
}

// NewQueryCache creates a new query cache
func NewQueryCache(redis *RedisCache) *QueryCache {
	return &QueryCache{redis: redis}
}

// GetJSON loads a cached value into dest. Returns false on miss or on any
// cache error.
func (c *QueryCache) GetJSON(ctx context.Context, key string, dest any) bool {
	raw, err := c.redis.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("[QueryCache] get %s failed: %v", key, err)
		}
		return false
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		log.Printf("[QueryCache] unmarshal %s failed: %v", key, err)
		return false
	}

	return true
}

// SetJSON stores a value with the default query TTL. Errors are logged and
// swallowed.
func (c *QueryCache) SetJSON(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		log.Printf("[QueryCache] marshal %s failed: %v", key, err)
		return
	}

	if err := c.redis.Set(ctx, key, raw, defaultQueryTTL); err != nil {
		log.Printf("[QueryCache] set %s failed: %v", key, err)
	}
}

// LatestBlocksKey builds the cache key for a latest-blocks window
func LatestBlocksKey(limit int) string {
	return fmt.Sprintf("%s:%d", cacheKeyLatestBlocks, limit)
}

// LatestTxsKey builds the cache key for a latest-transactions window
func LatestTxsKey(limit int) string {
	return fmt.Sprintf("%s:%d", cacheKeyLatestTxs, limit)
}

// DailyStatsKey builds the cache key for a daily-stats window
func DailyStatsKey(days int) string {
	return fmt.Sprintf("%s:%d", cacheKeyDailyStats, days)
}

// InvalidateChainWindows drops every cached window that a newly ingested
// block makes stale
func (c *QueryCache) InvalidateChainWindows(ctx context.Context) {
	for _, pattern := range []string{
		cacheKeyLatestBlocks + ":*",
		cacheKeyLatestTxs + ":*",
		cacheKeyDailyStats + ":*",
	} {
		keys, err := c.redis.Keys(ctx, pattern)
		if err != nil {
			log.Printf("[QueryCache] scan %s failed: %v", pattern, err)
			continue
		}
		if len(keys) == 0 {
			continue
		}
		if err := c.redis.Del(ctx, keys...); err != nil {
			log.Printf("[QueryCache] invalidate %s failed: %v", pattern, err)
		}
	}
}
