package storage

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chain-explorer/internal/models"
)

// setupTestQueryCache creates a QueryCache backed by a test Redis instance.
func setupTestQueryCache(t *testing.T) (*QueryCache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return NewQueryCache(&RedisCache{client: client}), mr
}

func TestQueryCache_RoundTrip(t *testing.T) {
	cache, _ := setupTestQueryCache(t)
	ctx := context.Background()

	blocks := []models.Block{
		{Number: 100, Hash: "0xaaa", Miner: "0xminer", GasUsed: 21000},
		{Number: 99, Hash: "0xbbb", Miner: "0xminer", GasUsed: 42000},
	}

	key := LatestBlocksKey(25)
	cache.SetJSON(ctx, key, blocks)

	var got []models.Block
	require.True(t, cache.GetJSON(ctx, key, &got))
	require.Len(t, got, 2)
	assert.Equal(t, uint64(100), got[0].Number)
	assert.Equal(t, "0xbbb", got[1].Hash)
}

func TestQueryCache_Miss(t *testing.T) {
	cache, _ := setupTestQueryCache(t)

	var got []models.Block
	assert.False(t, cache.GetJSON(context.Background(), LatestBlocksKey(25), &got))
}

func TestQueryCache_Expiry(t *testing.T) {
	cache, mr := setupTestQueryCache(t)
	ctx := context.Background()

	key := DailyStatsKey(14)
	cache.SetJSON(ctx, key, []DailyStat{{Day: time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), TxCount: 42}})

	var got []DailyStat
	require.True(t, cache.GetJSON(ctx, key, &got))

	mr.FastForward(defaultQueryTTL + time.Second)
	assert.False(t, cache.GetJSON(ctx, key, &got))
}

func TestQueryCache_InvalidateChainWindows(t *testing.T) {
	cache, mr := setupTestQueryCache(t)
	ctx := context.Background()

	cache.SetJSON(ctx, LatestBlocksKey(25), []models.Block{{Number: 1}})
	cache.SetJSON(ctx, LatestTxsKey(25), []models.Transaction{{Hash: "0xabc"}})
	cache.SetJSON(ctx, DailyStatsKey(14), []DailyStat{{TxCount: 1}})

	// Keys outside the chain windows survive invalidation
	require.NoError(t, mr.Set("session:abc", "keep"))

	cache.InvalidateChainWindows(ctx)

	var blocks []models.Block
	assert.False(t, cache.GetJSON(ctx, LatestBlocksKey(25), &blocks))
	var txs []models.Transaction
	assert.False(t, cache.GetJSON(ctx, LatestTxsKey(25), &txs))
	var stats []DailyStat
	assert.False(t, cache.GetJSON(ctx, DailyStatsKey(14), &stats))

	assert.True(t, mr.Exists("session:abc"))
}
