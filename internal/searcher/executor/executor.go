// Package executor owns the shard set a searcher serves. It runs queries
// through the result cache, records query metrics and events, and swaps
// the shard set when a new build is announced.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/events"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/sharded"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/metrics"
)

type Options struct {
	// Cache is optional; without it every query runs against the shards.
	Cache     *cache.ResultCache
	Collector *analytics.Collector
	Metrics   *metrics.Metrics
}

type Executor struct {
	// mu is held for reading for the whole of a query, so Reload waits for
	// in-flight queries before closing the shards they use.
	mu       sync.RWMutex
	searcher *sharded.Searcher
	dirs     []string
	cfg      config.RetrievalConfig
	opts     Options
	logger   *slog.Logger
}

// New opens one shard per directory.
func New(dirs []string, cfg config.RetrievalConfig, opts Options) (*Executor, error) {
	s, err := sharded.Open(dirs, cfg, opts.Metrics)
	if err != nil {
		return nil, err
	}
	return &Executor{
		searcher: s,
		dirs:     slices.Clone(dirs),
		cfg:      cfg,
		opts:     opts,
		logger:   slog.Default().With("component", "query-executor"),
	}, nil
}

// Execute runs node over the current shard set.
func (e *Executor) Execute(ctx context.Context, node *query.Node, opts retrieval.Options) (*retrieval.Results, error) {
	start := time.Now()
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.searcher == nil {
		return nil, fmt.Errorf("%w: executor closed", apperrors.ErrInvalidInput)
	}

	compute := func(ctx context.Context) (*retrieval.Results, error) {
		return e.searcher.RunQuery(ctx, node, opts)
	}
	var (
		res *retrieval.Results
		hit bool
		err error
	)
	if e.opts.Cache != nil && node != nil && opts.Statistics == nil {
		res, hit, err = e.opts.Cache.GetOrCompute(ctx, e.opts.Cache.Key(node, opts), compute)
	} else {
		res, err = compute(ctx)
	}
	elapsed := time.Since(start)
	e.record(ctx, node, opts, res, hit, err, elapsed)
	if err != nil {
		return nil, err
	}
	// cached results are shared between callers
	out := *res
	out.Took = elapsed
	return &out, nil
}

func (e *Executor) record(ctx context.Context, node *query.Node, opts retrieval.Options, res *retrieval.Results, hit bool, err error, elapsed time.Duration) {
	outcome := Outcome(res, err)
	ev := events.Query{
		QueryID:    logger.QueryID(ctx),
		Requested:  opts.Requested,
		LatencyMs:  elapsed.Milliseconds(),
		CacheHit:   hit,
		ShardCount: e.searcher.Len(),
	}
	if node != nil {
		ev.Query = node.String()
	}
	if res != nil {
		ev.Returned = len(res.Documents)
		ev.Candidates = res.Summary.Candidates
		ev.Truncated = res.Summary.Truncated
	}
	if err != nil {
		ev.Error = err.Error()
		logger.FromContext(ctx).Warn("query failed", "outcome", outcome, "error", err)
	}
	e.opts.Collector.Track(ev)

	m := e.opts.Metrics
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	status := "miss"
	if hit {
		status = "hit"
	} else if e.opts.Cache == nil {
		status = "none"
	}
	m.QueryLatency.WithLabelValues(status).Observe(elapsed.Seconds())
	if res != nil {
		m.QueryResultsCount.Observe(float64(len(res.Documents)))
		m.QueryCandidates.Observe(float64(res.Summary.Candidates))
	}
	m.NodeCacheEntries.Set(float64(e.nodeCacheEntries()))
}

// Outcome classifies a finished query for metrics.
func Outcome(res *retrieval.Results, err error) string {
	switch {
	case err == nil && (res == nil || len(res.Documents) == 0):
		return "zero_result"
	case err == nil:
		return "ok"
	case errors.Is(err, apperrors.ErrInvalidInput),
		errors.Is(err, apperrors.ErrBadOperator),
		errors.Is(err, apperrors.ErrConstruction):
		return "invalid"
	case errors.Is(err, apperrors.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

func (e *Executor) nodeCacheEntries() int {
	var n int
	for _, sh := range e.searcher.Shards() {
		if r, ok := sh.(*retrieval.Retrieval); ok && r.NodeCache() != nil {
			n += r.NodeCache().Len()
		}
	}
	return n
}

// PartStatistics sums the statistics of part over the current shards.
func (e *Executor) PartStatistics(ctx context.Context, part string) (disk.PartStatistics, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.searcher == nil {
		return disk.PartStatistics{}, fmt.Errorf("%w: executor closed", apperrors.ErrInvalidInput)
	}
	return e.searcher.PartStatistics(ctx, part)
}

// Dirs returns the shard directories in shard order.
func (e *Executor) Dirs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.dirs)
}

func (e *Executor) ShardCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.searcher == nil {
		return 0
	}
	return e.searcher.Len()
}

// Reload opens dirs and swaps them in for the current shards. The old
// shards close once in-flight queries finish. Cached results are
// invalidated since they were ranked over the old set.
func (e *Executor) Reload(ctx context.Context, dirs []string) error {
	next, err := sharded.Open(dirs, e.cfg, e.opts.Metrics)
	if err != nil {
		return fmt.Errorf("opening new shard set: %w", err)
	}
	e.mu.Lock()
	old := e.searcher
	e.searcher = next
	e.dirs = slices.Clone(dirs)
	e.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			e.logger.Warn("closing previous shards", "error", err)
		}
	}
	if e.opts.Metrics != nil {
		e.opts.Metrics.ActiveShards.Set(float64(next.Len()))
	}
	if e.opts.Cache != nil {
		if _, err := e.opts.Cache.Invalidate(ctx); err != nil {
			e.logger.Warn("cache invalidation after reload failed", "error", err)
		}
	}
	e.logger.Info("shard set reloaded", "shards", len(dirs))
	return nil
}

// InvalidateCache drops every cached result.
func (e *Executor) InvalidateCache(ctx context.Context) (int64, error) {
	if e.opts.Cache == nil {
		return 0, nil
	}
	return e.opts.Cache.Invalidate(ctx)
}

func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.searcher == nil {
		return nil
	}
	err := e.searcher.Close()
	e.searcher = nil
	return err
}
