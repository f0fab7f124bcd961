// Package sharded fans a query out over several index shards, each a
// document-partitioned index with its own id space, and merges their
// rankings. Scoring runs against statistics summed over every shard, so a
// document scores the same whichever shard holds it.
package sharded

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/tracing"
)

// Shard is one index the searcher fans out to. *retrieval.Retrieval is
// the local implementation.
type Shard interface {
	Gather(node *query.Node) (compiler.Statistics, error)
	RunQuery(ctx context.Context, node *query.Node, opts retrieval.Options) (*retrieval.Results, error)
	PartStatistics(part string) (disk.PartStatistics, error)
	Close() error
}

type Options struct {
	// Requested is the merged list length when a query asks for none.
	Requested       int
	TimeoutPerShard time.Duration
	// LocalStatistics scores each shard with its own statistics.
	LocalStatistics bool
	Metrics         *metrics.Metrics
}

// ShardError reports which shard failed a query.
type ShardError struct {
	Shard int
	Err   error
}

func (e *ShardError) Error() string {
	return fmt.Sprintf("%v: shard %d: %v", apperrors.ErrShardFailed, e.Shard, e.Err)
}

func (e *ShardError) Unwrap() []error { return []error{apperrors.ErrShardFailed, e.Err} }

type Searcher struct {
	shards []Shard
	opts   Options
	logger *slog.Logger
}

func New(shards []Shard, opts Options) *Searcher {
	if opts.Requested <= 0 {
		opts.Requested = 1000
	}
	s := &Searcher{
		shards: shards,
		opts:   opts,
		logger: slog.Default().With("component", "sharded-searcher"),
	}
	if opts.Metrics != nil {
		opts.Metrics.ActiveShards.Set(float64(len(shards)))
	}
	return s
}

// Open opens one retrieval handle per directory. Shard numbers follow the
// order of dirs.
func Open(dirs []string, cfg config.RetrievalConfig, m *metrics.Metrics) (*Searcher, error) {
	shards := make([]Shard, 0, len(dirs))
	for i, dir := range dirs {
		r, err := retrieval.Open(dir, cfg)
		if err != nil {
			for _, s := range shards {
				s.Close()
			}
			return nil, fmt.Errorf("opening shard %d at %s: %w", i, dir, err)
		}
		if m != nil {
			m.OpenParts.WithLabelValues(strconv.Itoa(i)).Set(float64(len(r.Parts())))
		}
		shards = append(shards, r)
	}
	return New(shards, Options{
		Requested:       cfg.Requested,
		TimeoutPerShard: cfg.TimeoutPerShard,
		Metrics:         m,
	}), nil
}

func (s *Searcher) Len() int { return len(s.shards) }

// Shards returns the shards in shard-number order.
func (s *Searcher) Shards() []Shard { return s.shards }

// RunQuery runs node on every shard and merges the rankings. Any shard
// failure fails the whole query and no partial results are returned.
func (s *Searcher) RunQuery(ctx context.Context, node *query.Node, opts retrieval.Options) (*retrieval.Results, error) {
	if len(s.shards) == 0 {
		return nil, fmt.Errorf("%w: no shards open", apperrors.ErrInvalidInput)
	}
	if node == nil {
		return nil, fmt.Errorf("%w: empty query", apperrors.ErrInvalidInput)
	}
	start := time.Now()
	if opts.Requested <= 0 {
		opts.Requested = s.opts.Requested
	}
	if len(s.shards) > 1 && !s.opts.LocalStatistics && opts.Statistics == nil {
		global, err := s.Gather(ctx, node)
		if err != nil {
			return nil, err
		}
		opts.Statistics = &global
	}

	ctx, span := tracing.StartChildSpan(ctx, "fan-out")
	defer span.End()
	span.SetAttr("shards", len(s.shards))

	lists := make([][]ranker.ScoredDocument, len(s.shards))
	var summary ranker.Summary
	var mu sync.Mutex
	err := s.each(ctx, "query", func(ctx context.Context, i int, sh Shard) error {
		res, err := sh.RunQuery(ctx, node, opts)
		if err != nil {
			return err
		}
		for j := range res.Documents {
			res.Documents[j].Shard = i
		}
		lists[i] = res.Documents
		mu.Lock()
		summary.Candidates += res.Summary.Candidates
		summary.Scored += res.Summary.Scored
		summary.Truncated = summary.Truncated || res.Summary.Truncated
		mu.Unlock()
		return nil
	})
	if err != nil {
		return nil, err
	}

	merged := ranker.Merge(lists, opts.Requested)
	s.logger.Debug("sharded query executed",
		"shards", len(s.shards),
		"candidates", summary.Candidates,
		"results", len(merged),
	)
	return &retrieval.Results{
		Query:     node.String(),
		Documents: merged,
		Summary:   summary,
		Took:      time.Since(start),
	}, nil
}

// Gather sums the statistics every shard would score node with.
func (s *Searcher) Gather(ctx context.Context, node *query.Node) (compiler.Statistics, error) {
	ctx, span := tracing.StartChildSpan(ctx, "gather-statistics")
	defer span.End()
	parts := make([]compiler.Statistics, len(s.shards))
	err := s.each(ctx, "gather", func(_ context.Context, i int, sh Shard) error {
		st, err := sh.Gather(node)
		if err != nil {
			return err
		}
		parts[i] = st
		return nil
	})
	if err != nil {
		return compiler.Statistics{}, err
	}
	var global compiler.Statistics
	for _, p := range parts {
		global.Add(p)
	}
	return global, nil
}

// PartStatistics sums the statistics of part over every shard.
func (s *Searcher) PartStatistics(ctx context.Context, part string) (disk.PartStatistics, error) {
	parts := make([]disk.PartStatistics, len(s.shards))
	err := s.each(ctx, "part-statistics", func(_ context.Context, i int, sh Shard) error {
		ps, err := sh.PartStatistics(part)
		if err != nil {
			return err
		}
		parts[i] = ps
		return nil
	})
	if err != nil {
		return disk.PartStatistics{}, err
	}
	total := disk.PartStatistics{PartName: part}
	for _, ps := range parts {
		total.Class = ps.Class
		total.DefaultOperator = ps.DefaultOperator
		total = total.Add(ps)
	}
	return total, nil
}

// each runs fn on every shard concurrently, each under the per-shard
// timeout. The first failure cancels the others.
func (s *Searcher) each(ctx context.Context, op string, fn func(ctx context.Context, i int, sh Shard) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for i, sh := range s.shards {
		g.Go(func() error {
			name := fmt.Sprintf("shard %d %s", i, op)
			err := resilience.WithTimeout(gctx, s.opts.TimeoutPerShard, name, func(ctx context.Context) error {
				return fn(ctx, i, sh)
			})
			if err != nil {
				return s.failed(i, op, err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Searcher) failed(i int, op string, err error) error {
	// Shards cancelled because a sibling failed are not failures of their own.
	if errors.Is(err, context.Canceled) {
		return &ShardError{Shard: i, Err: err}
	}
	s.logger.Error("shard failed", "shard", i, "operation", op, "error", err)
	if s.opts.Metrics != nil {
		s.opts.Metrics.ShardFailuresTotal.WithLabelValues(strconv.Itoa(i)).Inc()
	}
	return &ShardError{Shard: i, Err: err}
}

// Close closes every shard.
func (s *Searcher) Close() error {
	var errs []error
	for i, sh := range s.shards {
		if err := sh.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing shard %d: %w", i, err))
		}
	}
	if s.opts.Metrics != nil {
		s.opts.Metrics.ActiveShards.Set(0)
	}
	return errors.Join(errs...)
}
