// Package cache puts a shared Redis tier in front of a shard fetcher so a
// fleet of search processes does not hit the shard origin once per process.
package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/internal/searcher/store"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/doc-symbol-search/pkg/redis"
)

const keyPrefix = "shard:"

// BlobClient is the subset of the Redis client the cache needs.
type BlobClient interface {
	GetBytes(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// ShardCache is a store.Fetcher that serves raw shard bytes from Redis and
// falls through to next on a miss. Keys carry the index version, so a new
// build never sees stale bytes.
type ShardCache struct {
	client  BlobClient
	next    store.Fetcher
	cfg     config.RedisConfig
	version string
	metrics *metrics.Metrics
	group   singleflight.Group
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

func New(client BlobClient, next store.Fetcher, cfg config.RedisConfig, version string, m *metrics.Metrics) *ShardCache {
	return &ShardCache{
		client:  client,
		next:    next,
		cfg:     cfg,
		version: version,
		metrics: m,
		logger:  slog.Default().With("component", "shard-cache"),
	}
}

// Fetch returns cached bytes for id or fetches and caches them. Redis errors
// are logged and treated as misses; origin errors are never cached.
func (c *ShardCache) Fetch(ctx context.Context, id shard.ID) ([]byte, error) {
	key := c.buildKey(id)
	if data, ok := c.get(ctx, key); ok {
		return data, nil
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		data, err := c.next.Fetch(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
			c.logger.Error("cache set failed", "key", key, "error", err)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return val.([]byte), nil
}

func (c *ShardCache) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.GetBytes(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.misses.Add(1)
		c.metrics.IncCache(false)
		return nil, false
	}
	c.hits.Add(1)
	c.metrics.IncCache(true)
	c.logger.Debug("cache hit", "key", key, "bytes", len(data))
	return data, true
}

// Invalidate removes every cached shard of this index version.
func (c *ShardCache) Invalidate(ctx context.Context) error {
	pattern := keyPrefix + c.version + ":*"
	deleted, err := c.client.FlushByPattern(ctx, pattern)
	if err != nil {
		return fmt.Errorf("invalidating shard cache: %w", err)
	}
	c.logger.Info("cache invalidate", "version", c.version, "keys_deleted", deleted)
	return nil
}

func (c *ShardCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ShardCache) buildKey(id shard.ID) string {
	return keyPrefix + c.version + ":" + id.Stem()
}
