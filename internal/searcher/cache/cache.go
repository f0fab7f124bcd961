// Package cache keeps ranked results in redis, keyed by the canonical query
// and its ranking options. Values are zstd-compressed JSON. A circuit
// breaker takes a failing redis out of the query path, and concurrent
// misses on one key compute the result once.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/resilience"
)

const keyPrefix = "retrieval:"

// Store is the byte store behind the cache. *pkgredis.Client implements
// it; misses must satisfy pkgredis.IsNilError.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResultCache struct {
	store   Store
	ttl     time.Duration
	breaker *resilience.CircuitBreaker
	group   singleflight.Group
	enc     *zstd.Encoder
	dec     *zstd.Decoder
	metrics *metrics.Metrics
	// generation is part of every key, so bumping it orphans all entries
	// at once even before the flush completes.
	generation atomic.Uint64
	hits       atomic.Int64
	misses     atomic.Int64
	logger     *slog.Logger
}

func New(store Store, cfg config.RedisConfig, m *metrics.Metrics) (*ResultCache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}
	breakerCfg := resilience.CircuitBreakerConfig{}
	if m != nil {
		breakerCfg.OnStateChange = func(name string, _, to resilience.State) {
			m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		}
	}
	return &ResultCache{
		store:   store,
		ttl:     cfg.CacheTTL,
		breaker: resilience.NewCircuitBreaker("result-cache", breakerCfg),
		enc:     enc,
		dec:     dec,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}, nil
}

// Key names the cached results of node under opts.
func (c *ResultCache) Key(node *query.Node, opts retrieval.Options) string {
	d := xxhash.New()
	d.WriteString(node.String())
	var buf [8]byte
	for _, v := range []int64{int64(opts.Requested), opts.MaxCandidates, boolInt(opts.SkipNames)} {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		d.Write(buf[:])
	}
	if opts.WorkingSet != nil {
		docs := slices.Clone(opts.WorkingSet)
		slices.Sort(docs)
		d.WriteString("ws")
		for _, doc := range docs {
			binary.LittleEndian.PutUint64(buf[:], uint64(doc))
			d.Write(buf[:])
		}
	}
	return keyPrefix + strconv.FormatUint(c.generation.Load(), 10) + ":" + strconv.FormatUint(d.Sum64(), 16)
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

func (c *ResultCache) Get(ctx context.Context, key string) (*retrieval.Results, bool) {
	var data []byte
	err := c.breaker.ExecuteIgnoring(func() error {
		var err error
		data, err = c.store.Get(ctx, key)
		return err
	}, pkgredis.IsNilError)
	if err != nil {
		if !pkgredis.IsNilError(err) {
			c.logger.Warn("cache get failed", "key", key, "error", err)
		}
		c.miss()
		return nil, false
	}
	raw, err := c.dec.DecodeAll(data, nil)
	if err != nil {
		c.logger.Error("cache decompress failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	var res retrieval.Results
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		c.miss()
		return nil, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	return &res, true
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func (c *ResultCache) Set(ctx context.Context, key string, res *retrieval.Results) {
	raw, err := json.Marshal(res)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	data := c.enc.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	err = c.breaker.Execute(func() error {
		return c.store.Set(ctx, key, data, c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached results of key, or computes and stores
// them. Concurrent callers with one key share a single computation. The
// boolean reports a cache hit.
func (c *ResultCache) GetOrCompute(ctx context.Context, key string, compute func(ctx context.Context) (*retrieval.Results, error)) (*retrieval.Results, bool, error) {
	if res, ok := c.Get(ctx, key); ok {
		return res, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		res, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(ctx, key, res)
		return res, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*retrieval.Results), false, nil
}

// Invalidate orphans every cached result and deletes the stored entries.
func (c *ResultCache) Invalidate(ctx context.Context) (int64, error) {
	c.generation.Add(1)
	deleted, err := c.store.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted, "generation", c.generation.Load())
	return deleted, nil
}

func (c *ResultCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ResultCache) Close() {
	c.enc.Close()
	c.dec.Close()
}
