package statscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "todohive:stats:user:"

// Stats 用户待办统计。
type Stats struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Pending   int64 `json:"pending"`
	Overdue   int64 `json:"overdue"`
}

// Cache 用 Redis 缓存用户统计结果，待办发生变更时失效。
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCache(rdb *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{
		rdb: rdb,
		ttl: ttl,
	}
}

// Get 读取缓存的统计值，未命中时返回 (nil, nil)。
func (c *Cache) Get(ctx context.Context, userID uint) (*Stats, error) {
	if c == nil || c.rdb == nil {
		return nil, nil
	}
	raw, err := c.rdb.Get(ctx, statsKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stats get: %w", err)
	}
	var stats Stats
	if err := json.Unmarshal([]byte(raw), &stats); err != nil {
		// 缓存内容损坏时当作未命中处理
		return nil, nil
	}
	return &stats, nil
}

// Set 写入统计值。
func (c *Cache) Set(ctx context.Context, userID uint, stats Stats) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("stats marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, statsKey(userID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("stats set: %w", err)
	}
	return nil
}

// Invalidate 删除某个用户的统计缓存。
func (c *Cache) Invalidate(ctx context.Context, userID uint) error {
	if c == nil || c.rdb == nil {
		return nil
	}
	if err := c.rdb.Del(ctx, statsKey(userID)).Err(); err != nil {
		return fmt.Errorf("stats del: %w", err)
	}
	return nil
}

func statsKey(userID uint) string {
	return fmt.Sprintf("%s%d", keyPrefix, userID)
}
