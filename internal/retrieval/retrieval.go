// Package retrieval is the query handle over one opened index directory.
// It compiles query trees against the index, ranks them and resolves the
// names of the ranked documents.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/compiler"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/ranker"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/tracing"
)

// Options control one query. Zero values fall back to the configuration.
type Options struct {
	Requested     int     `json:"requested"`
	WorkingSet    []int64 `json:"workingSet,omitempty"`
	MaxCandidates int64   `json:"maxCandidates,omitempty"`
	SkipNames     bool    `json:"skipNames,omitempty"`
	// Statistics replace the index's own node and collection statistics
	// wherever they hold an entry.
	Statistics *compiler.Statistics `json:"-"`
}

type Results struct {
	Query     string                  `json:"query"`
	Documents []ranker.ScoredDocument `json:"documents"`
	Summary   ranker.Summary          `json:"summary"`
	Took      time.Duration           `json:"tookNs"`
}

type Retrieval struct {
	path     string
	index    *disk.Index
	compiler *compiler.Compiler
	nodes    *NodeCache
	cfg      config.RetrievalConfig
	closed   atomic.Bool
	logger   *slog.Logger
}

// Open opens the index directory at path and prepares a compiler with the
// built-in operators plus the aliases configured in cfg.
func Open(path string, cfg config.RetrievalConfig) (*Retrieval, error) {
	registry, err := compiler.NewRegistryFromConfig(cfg.Operators)
	if err != nil {
		return nil, fmt.Errorf("building operator registry: %w", err)
	}
	idx, err := disk.Open(path)
	if err != nil {
		return nil, err
	}
	opts := compiler.Options{
		DefaultPart:  cfg.DefaultPart,
		LengthsField: cfg.LengthsField,
		ShareNodes:   cfg.ShareNodes,
		CacheScores:  cfg.CacheScores,
	}
	r := &Retrieval{
		path:   path,
		index:  idx,
		cfg:    cfg,
		logger: slog.Default().With("component", "retrieval", "path", path),
	}
	if cfg.CacheNodes {
		r.nodes = NewNodeCache()
		opts.Cache = r.nodes
	}
	r.compiler = compiler.New(registry, opts)
	return r, nil
}

func (r *Retrieval) Path() string { return r.path }

// Parts lists the names of the index parts.
func (r *Retrieval) Parts() []string { return r.index.PartNames() }

// NodeCache is the in-memory node cache, or nil when disabled.
func (r *Retrieval) NodeCache() *NodeCache { return r.nodes }

// Compile builds the iterator tree of node without running it.
func (r *Retrieval) Compile(node *query.Node) (iterator.Iterator, error) {
	if err := r.check(node); err != nil {
		return nil, err
	}
	return r.compiler.Compile(r.index, node)
}

// RunQuery compiles node, ranks its matches and resolves document names.
func (r *Retrieval) RunQuery(ctx context.Context, node *query.Node, opts Options) (*Results, error) {
	if err := r.check(node); err != nil {
		return nil, err
	}
	start := time.Now()
	rankOpts, err := r.rankOptions(opts)
	if err != nil {
		return nil, err
	}

	_, span := tracing.StartChildSpan(ctx, "compile")
	span.SetAttr("query", node.String())
	root, err := r.compiler.CompileWith(r.index, node, opts.Statistics)
	span.End()
	if err != nil {
		return nil, err
	}

	rankCtx, span := tracing.StartChildSpan(ctx, "rank")
	rk := ranker.New(root, rankOpts)
	docs, err := rk.Run(rankCtx)
	summary := rk.Summary()
	span.SetAttr("candidates", summary.Candidates)
	span.End()
	if err != nil {
		return nil, err
	}

	if !opts.SkipNames {
		if names := r.index.Names(); names != nil {
			nameCtx, span := tracing.StartChildSpan(ctx, "resolve-names")
			err := ranker.ResolveNames(nameCtx, docs, names)
			span.End()
			if err != nil {
				return nil, err
			}
		}
	}

	res := &Results{
		Query:     node.String(),
		Documents: docs,
		Summary:   summary,
		Took:      time.Since(start),
	}
	logger.FromContext(ctx).Debug("query executed",
		"component", "retrieval",
		"path", r.path,
		"results", len(docs),
		"candidates", summary.Candidates,
		"truncated", summary.Truncated,
		"duration_ms", res.Took.Milliseconds(),
	)
	return res, nil
}

func (r *Retrieval) check(node *query.Node) error {
	if r.closed.Load() {
		return fmt.Errorf("%w: index %s is closed", apperrors.ErrInvalidInput, r.path)
	}
	if node == nil {
		return fmt.Errorf("%w: empty query", apperrors.ErrInvalidInput)
	}
	return nil
}

func (r *Retrieval) rankOptions(opts Options) (ranker.Options, error) {
	requested := opts.Requested
	if requested <= 0 {
		requested = r.cfg.Requested
	}
	if r.cfg.MaxRequested > 0 && requested > r.cfg.MaxRequested {
		return ranker.Options{}, fmt.Errorf("%w: requested %d exceeds the limit of %d", apperrors.ErrInvalidInput, requested, r.cfg.MaxRequested)
	}
	maxCandidates := opts.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = r.cfg.MaxCandidates
	}
	out := ranker.Options{Requested: requested, MaxCandidates: maxCandidates}
	if opts.WorkingSet != nil {
		set := roaring64.New()
		for _, doc := range opts.WorkingSet {
			if doc < 0 {
				return ranker.Options{}, fmt.Errorf("%w: negative document id %d in working set", apperrors.ErrInvalidInput, doc)
			}
			set.Add(uint64(doc))
		}
		out.WorkingSet = set
		if names := r.index.Names(); names != nil {
			out.Contains = func(doc int64) (bool, error) {
				_, ok, err := names.Name(doc)
				return ok, err
			}
		}
	}
	return out, nil
}

// Gather reports the node and collection statistics that scoring node
// would read from this index.
func (r *Retrieval) Gather(node *query.Node) (compiler.Statistics, error) {
	if err := r.check(node); err != nil {
		return compiler.Statistics{}, err
	}
	return r.compiler.Gather(r.index, node)
}

// NodeStatistics counts how often node matches in this index.
func (r *Retrieval) NodeStatistics(node *query.Node) (iterator.NodeStatistics, error) {
	if err := r.check(node); err != nil {
		return iterator.NodeStatistics{}, err
	}
	return r.compiler.NodeStatistics(r.index, node)
}

func (r *Retrieval) CollectionStatistics(field string) (postings.FieldStatistics, error) {
	return r.index.CollectionStatistics(field)
}

func (r *Retrieval) PartStatistics(part string) (disk.PartStatistics, error) {
	return r.index.PartStatistics(part)
}

// DocumentID maps a document name to its id.
func (r *Retrieval) DocumentID(name string) (int64, bool, error) {
	rev := r.index.ReverseNames()
	if rev == nil {
		return 0, false, fmt.Errorf("%w: %s", apperrors.ErrPartNotFound, disk.PartNamesReverse)
	}
	return rev.ID(name)
}

// DocumentName maps a document id to its name.
func (r *Retrieval) DocumentName(doc int64) (string, bool, error) {
	names := r.index.Names()
	if names == nil {
		return "", false, fmt.Errorf("%w: %s", apperrors.ErrPartNotFound, disk.PartNames)
	}
	return names.Name(doc)
}

// Close releases the index. Queries after Close fail.
func (r *Retrieval) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	if r.nodes != nil {
		r.nodes.Clear()
	}
	r.logger.Info("index closed")
	return r.index.Close()
}
