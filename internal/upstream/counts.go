package upstream

import (
	"context"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// RedisCounts keeps per-batch stop counts in Redis, shared with the
// upstream sync process.
type RedisCounts struct {
	rdb *redis.Client
}

// NewRedisCounts connects to Redis using a URL.
func NewRedisCounts(url string) (*RedisCounts, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisCounts{rdb: redis.NewClient(opt)}, nil
}

func (c *RedisCounts) DecrementStopCount(ctx context.Context, batchID string, n int) error {
	if n <= 0 {
		return nil
	}
	return c.rdb.DecrBy(ctx, countKey(batchID), int64(n)).Err()
}

func countKey(batchID string) string { return "batch:" + batchID + ":stops" }

// MemoryCounts is the in-process fallback when no REDIS_URL is set.
type MemoryCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewMemoryCounts returns an empty counter map.
func NewMemoryCounts() *MemoryCounts {
	return &MemoryCounts{counts: map[string]int{}}
}

func (c *MemoryCounts) DecrementStopCount(_ context.Context, batchID string, n int) error {
	if n <= 0 {
		return nil
	}
	c.mu.Lock()
	c.counts[batchID] -= n
	c.mu.Unlock()
	return nil
}

// Count returns the current (possibly negative) cached delta.
func (c *MemoryCounts) Count(batchID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counts[batchID]
}
