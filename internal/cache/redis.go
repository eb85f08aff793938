package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/metrics"
)

const redisKeyPrefix = "mcpindex:cache:"

// Redis is a shared TTL cache backed by a Redis instance. All keys live
// under a fixed prefix so Clear never touches unrelated data.
type Redis struct {
	client *redis.Client
	hits   atomic.Int64
	misses atomic.Int64
}

// NewRedis wraps an existing Redis client.
func NewRedis(client *redis.Client) (*Redis, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	return &Redis{client: client}, nil
}

// Get returns the cached value for key, if present.
func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.misses.Add(1)
		metrics.ObserveCacheLookup(false)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	c.hits.Add(1)
	metrics.ObserveCacheLookup(true)
	return val, true, nil
}

// Set stores value under key for ttl.
func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes a single key.
func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Clear removes every key under the cache prefix via SCAN.
func (c *Redis) Clear(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis scan: %w", err)
	}
	return nil
}

// Stats reports entry count under the prefix plus local hit/miss counters.
func (c *Redis) Stats(ctx context.Context) (catalog.CacheStats, error) {
	var entries int64
	iter := c.client.Scan(ctx, 0, redisKeyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		entries++
	}
	if err := iter.Err(); err != nil {
		return catalog.CacheStats{}, fmt.Errorf("redis scan: %w", err)
	}
	return catalog.CacheStats{
		Entries: entries,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}
