// Package cache stores computed statistics and search results in Redis.
// Keys cover the request kind, the normalised query, the requested fields,
// the index generation and the visibility snapshot version, so any index
// write or layout change makes old entries unreachable; the TTL reclaims
// them.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Issue-Statistics-Platform/pkg/resilience"
)

const keyPrefix = "stats:"

// defaultComputeTimeout bounds a shared computation once it no longer
// follows any single caller's context.
const defaultComputeTimeout = 30 * time.Second

// Backend is the key-value store behind the cache; *redis.Client from
// pkg/redis implements it.
type Backend interface {
	Lookup(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one cacheable request.
type Key struct {
	Kind              string
	Query             string
	Fields            []string
	Limit             int
	Generation        int64
	VisibilityVersion string
}

func (k Key) String() string {
	raw := fmt.Sprintf("%s|%s|%s|limit=%d|gen=%d|vis=%s",
		k.Kind, k.Query, strings.Join(k.Fields, ","), k.Limit, k.Generation, k.VisibilityVersion)
	hash := sha256.Sum256([]byte(raw))
	return fmt.Sprintf("%s%s:%x", keyPrefix, k.Kind, hash[:16])
}

type ResultCache struct {
	backend        Backend
	ttl            time.Duration
	computeTimeout time.Duration
	group          singleflight.Group
	breaker        *resilience.CircuitBreaker
	metrics        *metrics.Metrics
	logger         *slog.Logger
	hits           atomic.Int64
	misses         atomic.Int64
}

// New creates a cache over backend. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	cbCfg := resilience.CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: 10 * time.Second}
	if m != nil {
		cbCfg.OnStateChange = m.BreakerObserver()
	}
	return &ResultCache{
		backend:        backend,
		ttl:            ttl,
		computeTimeout: defaultComputeTimeout,
		breaker:        resilience.NewCircuitBreaker("result-cache", cbCfg),
		metrics:        m,
		logger:         slog.Default().With("component", "result-cache"),
	}
}

// WithComputeTimeout sets the deadline of shared computations.
func (c *ResultCache) WithComputeTimeout(d time.Duration) *ResultCache {
	if d > 0 {
		c.computeTimeout = d
	}
	return c
}

// get decodes the cached value for key into dst. Backend failures are logged
// and reported as a miss.
func (c *ResultCache) get(ctx context.Context, key string, dst any) bool {
	var (
		data  string
		found bool
	)
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.backend.Lookup(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
		return false
	}
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *ResultCache) set(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.backend.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

func (c *ResultCache) recordHit(hit bool) {
	if hit {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.Inc()
	} else {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// GetOrCompute returns the cached value for key or computes it. Concurrent
// callers with the same key share one computation. compute reports whether
// its result may be cached; partial results should not be.
//
// The shared computation keeps the first caller's context values but not its
// cancellation, so one caller going away does not fail the others; it runs
// under the compute timeout instead. Each caller still returns as soon as
// its own ctx is done.
func GetOrCompute[T any](ctx context.Context, c *ResultCache, key Key, compute func(ctx context.Context) (T, bool, error)) (T, bool, error) {
	var zero T
	k := key.String()
	var cached T
	if c.get(ctx, k, &cached) {
		c.recordHit(true)
		return cached, true, nil
	}
	c.recordHit(false)

	ch := c.group.DoChan(k, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
		defer cancel()
		var again T
		if c.get(shared, k, &again) {
			return again, nil
		}
		result, cacheable, err := compute(shared)
		if err != nil {
			return nil, err
		}
		if cacheable {
			c.set(shared, k, result)
		}
		return result, nil
	})
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, false, res.Err
		}
		return res.Val.(T), false, nil
	}
}

// Invalidate drops every cached result.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
