// Package memory caches same-day crawl results in process memory.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

type entry struct {
	result  rank.CrawlResult
	expires time.Time
}

// Cache is a TTL map guarded by a mutex. Expired entries are dropped on read
// and swept on every write, so keys from past days do not accumulate.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

// New returns an empty cache. now may be nil.
func New(now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{entries: make(map[string]entry), now: now}
}

// Get implements rank.ResultCache.
func (c *Cache) Get(_ context.Context, key string) (rank.CrawlResult, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return rank.CrawlResult{}, false, nil
	}
	if !c.now().Before(e.expires) {
		delete(c.entries, key)
		return rank.CrawlResult{}, false, nil
	}
	return e.result, true, nil
}

// Put implements rank.ResultCache.
func (c *Cache) Put(_ context.Context, key string, result rank.CrawlResult, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}
	c.entries[key] = entry{result: result, expires: now.Add(ttl)}
	return nil
}

// Ping always succeeds.
func (c *Cache) Ping(context.Context) error { return nil }

func (c *Cache) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
