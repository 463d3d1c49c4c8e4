// Package cache implements the two-level cache used by the memory
// service: a shared Redis level plus a bounded in-process fallback.
// The cache degrades rather than fails: shared-level errors are logged
// and treated as misses, and they never surface to callers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gobwas/glob"
	"github.com/sirupsen/logrus"
)

// TieredCache reads shared-first with a local fallback and writes to
// both levels. Pattern invalidation is applied to each level
// independently so local eviction stays correct when the shared level is
// unreachable.
type TieredCache struct {
	shared  *RedisLevel
	local   *LocalLevel
	logger  *logrus.Logger
	metrics *Metrics
}

// NewTieredCache builds a tiered cache. shared may be nil, which leaves
// only the local level active (used by tests and degraded deployments).
func NewTieredCache(shared *RedisLevel, localMaxEntries int, logger *logrus.Logger) *TieredCache {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &TieredCache{
		shared:  shared,
		local:   NewLocalLevel(localMaxEntries),
		logger:  logger,
		metrics: &Metrics{},
	}
}

// Get looks key up shared-first and decodes the hit into dest. A
// shared-level error counts as a miss there and the local level is
// consulted instead. Returns false on a miss at both levels.
func (c *TieredCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	if c.shared != nil {
		data, hit, err := c.shared.Get(ctx, key)
		if err != nil {
			atomic.AddInt64(&c.metrics.SharedErrors, 1)
			c.logger.WithError(err).WithField("key", key).Warn("shared cache get failed, falling back to local")
		} else if hit {
			if err := json.Unmarshal(data, dest); err != nil {
				return false, fmt.Errorf("decode cached value for %q: %w", key, err)
			}
			atomic.AddInt64(&c.metrics.SharedHits, 1)
			return true, nil
		}
	}

	if data, hit := c.local.Get(key); hit {
		if err := json.Unmarshal(data, dest); err != nil {
			return false, fmt.Errorf("decode cached value for %q: %w", key, err)
		}
		atomic.AddInt64(&c.metrics.LocalHits, 1)
		return true, nil
	}

	atomic.AddInt64(&c.metrics.Misses, 1)
	return false, nil
}

// Set encodes value and writes it to the shared level best-effort and to
// the local level always, both with the same TTL.
func (c *TieredCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode value for %q: %w", key, err)
	}

	if c.shared != nil {
		if err := c.shared.Set(ctx, key, data, ttl); err != nil {
			atomic.AddInt64(&c.metrics.SharedErrors, 1)
			c.logger.WithError(err).WithField("key", key).Warn("shared cache set failed")
		}
	}

	c.local.Set(key, data, ttl)
	atomic.AddInt64(&c.metrics.Sets, 1)
	return nil
}

// Delete removes key from both levels.
func (c *TieredCache) Delete(ctx context.Context, key string) {
	if c.shared != nil {
		if err := c.shared.Delete(ctx, key); err != nil {
			atomic.AddInt64(&c.metrics.SharedErrors, 1)
			c.logger.WithError(err).WithField("key", key).Warn("shared cache delete failed")
		}
	}
	c.local.Delete(key)
	atomic.AddInt64(&c.metrics.Deletes, 1)
}

// InvalidatePattern removes every key matching the glob pattern
// ('*' any run, '?' single character) from both levels. The local level
// is matched against its own key set; the shared level is cleared by key
// enumeration and bulk delete. Returns the number of local keys removed.
func (c *TieredCache) InvalidatePattern(ctx context.Context, pattern string) (int, error) {
	matcher, err := glob.Compile(pattern)
	if err != nil {
		return 0, fmt.Errorf("compile pattern %q: %w", pattern, err)
	}

	if c.shared != nil {
		if _, err := c.shared.DeletePattern(ctx, pattern); err != nil {
			atomic.AddInt64(&c.metrics.SharedErrors, 1)
			c.logger.WithError(err).WithField("pattern", pattern).Warn("shared cache pattern invalidation failed")
		}
	}

	removed := c.local.DeleteFunc(matcher.Match)
	atomic.AddInt64(&c.metrics.Invalidations, 1)
	return removed, nil
}

// Metrics returns a snapshot of the cache counters.
func (c *TieredCache) Metrics() Metrics {
	return c.metrics.Snapshot()
}

// Close releases the shared level connection.
func (c *TieredCache) Close() error {
	if c.shared != nil {
		return c.shared.Close()
	}
	return nil
}
