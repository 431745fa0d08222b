// Package cache memoises ranked results. The first tier is an in-process LRU;
// an optional shared tier (Redis) sits behind a circuit breaker so a slow or
// absent server degrades to local-only caching instead of failing queries.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/methodology-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/methodology-search/pkg/resilience"
)

const keyPrefix = "msearch:"

// Remote is the shared tier. pkg/redis.Client satisfies it.
type Remote interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type Options struct {
	// Size bounds the local tier; values <= 0 use DefaultSize.
	Size int
	// Fingerprint identifies the corpus, so entries written by a process
	// serving different artifacts are never read back.
	Fingerprint string
	Remote      Remote
	RemoteTTL   time.Duration
	// Breaker tunes the circuit breaker around Remote.
	Breaker resilience.CircuitBreakerConfig
	Metrics     *metrics.Metrics
}

const DefaultSize = 1024

// QueryCache implements executor.ResultCache.
type QueryCache struct {
	local       *lru.Cache[string, []executor.Result]
	remote      Remote
	remoteTTL   time.Duration
	breaker     *resilience.CircuitBreaker
	fingerprint string
	metrics     *metrics.Metrics
	group       singleflight.Group
	logger      *slog.Logger
	hits        atomic.Int64
	misses      atomic.Int64
}

func New(opts Options) *QueryCache {
	size := opts.Size
	if size <= 0 {
		size = DefaultSize
	}
	local, _ := lru.New[string, []executor.Result](size)
	var breaker *resilience.CircuitBreaker
	if opts.Remote != nil {
		cfg := opts.Breaker
		if m := opts.Metrics; m != nil {
			next := cfg.OnStateChange
			cfg.OnStateChange = func(name string, from, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
				if next != nil {
					next(name, from, to)
				}
			}
		}
		breaker = resilience.NewCircuitBreaker("redis-cache", cfg)
	}
	return &QueryCache{
		local:       local,
		remote:      opts.Remote,
		remoteTTL:   opts.RemoteTTL,
		breaker:     breaker,
		fingerprint: opts.Fingerprint,
		metrics:     opts.Metrics,
		logger:      logger.WithComponent("query-cache"),
	}
}

// GetOrCompute returns cached results for terms/topK, or runs compute once
// per key no matter how many callers miss concurrently. Cached slices are
// shared and must not be modified.
func (c *QueryCache) GetOrCompute(
	ctx context.Context,
	terms []string,
	topK int,
	compute func() ([]executor.Result, error),
) ([]executor.Result, bool, error) {
	key := c.buildKey(terms, topK)
	if results, ok := c.local.Get(key); ok {
		c.hit("local")
		return results, true, nil
	}

	hit := false
	val, err, _ := c.group.Do(key, func() (any, error) {
		if results, ok := c.local.Get(key); ok {
			hit = true
			return results, nil
		}
		if results, ok := c.lookupRemote(ctx, key); ok {
			c.local.Add(key, results)
			hit = true
			return results, nil
		}
		results, err := compute()
		if err != nil {
			return nil, err
		}
		c.local.Add(key, results)
		c.storeRemote(ctx, key, results)
		return results, nil
	})
	if err != nil {
		return nil, false, err
	}
	// Callers sharing a flight report the leader's outcome; hit stays false
	// for followers, which only skews the counters, not the results.
	if hit {
		c.hit("remote")
	} else {
		c.misses.Add(1)
		if c.metrics != nil {
			c.metrics.CacheMissesTotal.Inc()
		}
	}
	return val.([]executor.Result), hit, nil
}

func (c *QueryCache) lookupRemote(ctx context.Context, key string) ([]executor.Result, bool) {
	if c.remote == nil {
		return nil, false
	}
	var data []byte
	var found bool
	err := c.breaker.Execute(func() error {
		var err error
		data, found, err = c.remote.Lookup(ctx, key)
		return err
	})
	if err != nil {
		c.logger.Warn("remote cache get failed", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	var results []executor.Result
	if err := json.Unmarshal(data, &results); err != nil {
		c.logger.Warn("remote cache entry undecodable", "key", key, "error", err)
		return nil, false
	}
	return results, true
}

func (c *QueryCache) storeRemote(ctx context.Context, key string, results []executor.Result) {
	if c.remote == nil {
		return
	}
	data, err := json.Marshal(results)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Execute(func() error {
		return c.remote.Set(ctx, key, data, c.remoteTTL)
	})
	if err != nil {
		c.logger.Warn("remote cache set failed", "key", key, "error", err)
	}
}

func (c *QueryCache) hit(tier string) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(tier).Inc()
	}
}

// BreakerState reports the remote tier's breaker; closed when there is no
// remote.
func (c *QueryCache) BreakerState() resilience.State {
	if c.breaker == nil {
		return resilience.StateClosed
	}
	return c.breaker.GetState()
}

func (c *QueryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Len is the number of entries in the local tier.
func (c *QueryCache) Len() int {
	return c.local.Len()
}

// buildKey depends only on the set of query terms: scoring ignores term order
// and repeats, so "plan monitoring" and "monitoring plan plan" share a key.
func (c *QueryCache) buildKey(terms []string, topK int) string {
	sorted := slices.Clone(terms)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	raw := fmt.Sprintf("%s|k=%d|%s", c.fingerprint, topK, strings.Join(sorted, " "))
	hash := sha256.Sum256([]byte(raw))
	return keyPrefix + hex.EncodeToString(hash[:16])
}
