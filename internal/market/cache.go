// Package market talks to the external data providers: the redis-backed
// API cache, the solsniffer and market-data HTTP clients, the scan handler
// built on them, and the SOL/USD reference feed.
package market

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"pumpfun-scanner/config"
	"pumpfun-scanner/internal/logging"
)

const cacheOpTimeout = 2 * time.Second

// APICache caches provider responses in redis. Every operation degrades
// gracefully: a cache failure is a miss, never an error for the caller.
type APICache struct {
	client  *redis.Client
	enabled bool
	logger  *logging.Logger
}

// NewAPICache connects to redis. When disabled by config or unreachable at
// startup, the cache runs in pass-through mode.
func NewAPICache(ctx context.Context, cfg config.RedisConfig) *APICache {
	c := &APICache{logger: logging.WithComponent("api-cache")}
	if !cfg.Enabled {
		c.logger.Info("API cache disabled by config")
		return c
	}

	c.client = redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.client.Ping(pingCtx).Err(); err != nil {
		c.logger.Warn("Redis unreachable, running without API cache", "error", err)
		c.client = nil
		return c
	}
	c.enabled = true
	c.logger.Info("API cache connected", "address", cfg.Address)
	return c
}

// Enabled reports whether the cache is live.
func (c *APICache) Enabled() bool { return c.enabled }

// Get unmarshals a cached value into dest. Returns false on miss or any
// cache failure.
func (c *APICache) Get(ctx context.Context, key string, dest interface{}) bool {
	if !c.enabled {
		return false
	}
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()

	raw, err := c.client.Get(opCtx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Cache get failed", "key", key, "error", err)
		}
		return false
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		c.logger.Warn("Cache entry corrupt, ignoring", "key", key, "error", err)
		return false
	}
	return true
}

// Set stores a value with a TTL. Failures are logged and swallowed.
func (c *APICache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	if !c.enabled {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	opCtx, cancel := context.WithTimeout(ctx, cacheOpTimeout)
	defer cancel()
	if err := c.client.Set(opCtx, key, raw, ttl).Err(); err != nil {
		c.logger.Warn("Cache set failed", "key", key, "error", err)
	}
}

// Close releases the redis connection.
func (c *APICache) Close() {
	if c.client != nil {
		_ = c.client.Close()
	}
}
