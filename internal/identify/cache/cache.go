// Package cache caches identification results in Redis, keyed by the query
// sequence, its parameters, and the reference index build the result was
// computed against. Concurrent identical queries are collapsed with
// singleflight so the engine scores each distinct query once.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/marinedata/edna-platform/internal/identify"
	"github.com/marinedata/edna-platform/pkg/config"
	"github.com/marinedata/edna-platform/pkg/metrics"
	pkgredis "github.com/marinedata/edna-platform/pkg/redis"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "identify:"

// ResultCache is a Redis-backed cache of QueryResults.
type ResultCache struct {
	client  *pkgredis.Client
	cfg     config.RedisConfig
	group   singleflight.Group
	logger  *slog.Logger
	metrics *metrics.Metrics
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a ResultCache over an established Redis client. Metrics may be
// nil.
func New(client *pkgredis.Client, cfg config.RedisConfig, m *metrics.Metrics) *ResultCache {
	return &ResultCache{
		client:  client,
		cfg:     cfg,
		logger:  slog.Default().With("component", "result-cache"),
		metrics: m,
	}
}

// Key builds the cache key for a query. The index build ID is part of the
// key, so results computed against a stale index are never served after a
// rebuild even if invalidation lags.
func Key(buildID, sequence string, opts identify.Options) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%.1f|%d", buildID, sequence, opts.MinScore, opts.TopMatches)))
	return fmt.Sprintf("%s%x", keyPrefix, sum)
}

// GetOrCompute returns the cached result for key, or runs compute exactly
// once per key across concurrent callers and caches its result. The bool
// reports whether the result came from cache. Cache failures degrade to
// computing directly.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, compute func() (*identify.QueryResult, error)) (*identify.QueryResult, bool, error) {
	if cached, ok := c.get(ctx, key); ok {
		return cached, true, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*identify.QueryResult), false, nil
}

// Invalidate drops every cached identification result. Called after an
// index rebuild.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.client.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating result cache: %w", err)
	}
	c.logger.Info("result cache invalidated", "keys_deleted", deleted)
	return nil
}

// Stats returns the hit and miss counters.
func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) get(ctx context.Context, key string) (*identify.QueryResult, bool) {
	data, err := c.client.Get(ctx, key)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Error("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	var result identify.QueryResult
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &result, true
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *ResultCache) set(ctx context.Context, key string, result *identify.QueryResult) {
	data, err := json.Marshal(result)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	if err := c.client.Set(ctx, key, data, c.cfg.CacheTTL); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}
