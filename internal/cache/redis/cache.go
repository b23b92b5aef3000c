// Package redis caches same-day crawl results in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/rankwatch/internal/rank"
)

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Client is the subset of the go-redis client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// Cache stores CrawlResults as JSON values with a TTL.
type Cache struct {
	client Client
}

// New dials Redis using cfg.
func New(cfg Config) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("cache.redis.addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{client: client}, nil
}

// NewWithClient wraps an existing client (primarily for testing).
func NewWithClient(client Client) *Cache {
	return &Cache{client: client}
}

// Get returns the cached result for key. A missing key is not an error.
func (c *Cache) Get(ctx context.Context, key string) (rank.CrawlResult, bool, error) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return rank.CrawlResult{}, false, nil
	}
	if err != nil {
		return rank.CrawlResult{}, false, fmt.Errorf("redis get: %w", err)
	}
	var result rank.CrawlResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return rank.CrawlResult{}, false, fmt.Errorf("decode cached result: %w", err)
	}
	return result, true, nil
}

// Put stores result under key until ttl elapses.
func (c *Cache) Put(ctx context.Context, key string, result rank.CrawlResult, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := c.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the client.
func (c *Cache) Close() error {
	return c.client.Close()
}
