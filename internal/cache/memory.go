// Package cache provides TTL caches for upstream directory payloads.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpindex/mcpindex/internal/catalog"
	"github.com/mcpindex/mcpindex/internal/metrics"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process TTL cache keyed by URL. Expired entries are
// evicted lazily on read and during Stats.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	clock   catalog.Clock
	hits    atomic.Int64
	misses  atomic.Int64
}

// NewMemory constructs an empty in-memory cache.
func NewMemory(clock catalog.Clock) *Memory {
	return &Memory{
		entries: make(map[string]entry),
		clock:   clock,
	}
}

// Get returns the cached value for key if present and unexpired.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.clock.Now().Before(e.expiresAt) {
		c.hits.Add(1)
		metrics.ObserveCacheLookup(true)
		out := make([]byte, len(e.value))
		copy(out, e.value)
		return out, true, nil
	}
	if ok {
		c.mu.Lock()
		if cur, still := c.entries[key]; still && !c.clock.Now().Before(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	c.misses.Add(1)
	metrics.ObserveCacheLookup(false)
	return nil, false, nil
}

// Set stores value under key for ttl.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	c.mu.Lock()
	c.entries[key] = entry{
		value:     stored,
		expiresAt: c.clock.Now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}

// Delete removes a single key.
func (c *Memory) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

// Clear drops all entries.
func (c *Memory) Clear(_ context.Context) error {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
	return nil
}

// Stats reports live entry count and hit/miss counters. Expired entries
// are swept as a side effect so the count reflects usable entries.
func (c *Memory) Stats(_ context.Context) (catalog.CacheStats, error) {
	now := c.clock.Now()
	c.mu.Lock()
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	n := len(c.entries)
	c.mu.Unlock()
	return catalog.CacheStats{
		Entries: int64(n),
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}, nil
}
