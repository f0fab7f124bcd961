// Package compiler turns query trees into iterator trees. Each operator is
// looked up in a Registry and built bottom-up from its compiled children.
// Identical subtrees within one query compile to one shared iterator.
package compiler

import (
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// Source is the index a query compiles against.
type Source interface {
	Iterator(part, key string) (iterator.Iterator, error)
	Lengths(field string) (*postings.LengthsIterator, error)
	CollectionStatistics(field string) (postings.FieldStatistics, error)
}

// NodeCache holds materialized nodes across queries.
type NodeCache interface {
	Load(key string) (*iterator.Materialized, bool)
	Store(key string, m *iterator.Materialized)
}

type Options struct {
	DefaultPart   string
	LengthsField  string
	DefaultScorer string
	// ShareNodes compiles identical subtrees once per query.
	ShareNodes bool
	Cache      NodeCache
	// CacheScores lets score-bearing nodes into Cache. Their scores depend
	// on document lengths, so cached values ignore lengths of documents
	// the node does not match.
	CacheScores bool
}

func DefaultOptions() Options {
	return Options{
		DefaultPart:   "postings",
		LengthsField:  "document",
		DefaultScorer: "dirichlet",
		ShareNodes:    true,
	}
}

// CompileError reports a child that does not fit its operator.
type CompileError struct {
	Operator string
	Position int
	Want     string
	Got      string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("compile #%s: argument %d: want %s, got %s", e.Operator, e.Position, e.Want, e.Got)
}

func (e *CompileError) Unwrap() error { return apperrors.ErrConstruction }

type Compiler struct {
	registry *Registry
	opts     Options
	logger   *slog.Logger
}

func New(registry *Registry, opts Options) *Compiler {
	def := DefaultOptions()
	if opts.DefaultPart == "" {
		opts.DefaultPart = def.DefaultPart
	}
	if opts.LengthsField == "" {
		opts.LengthsField = def.LengthsField
	}
	if opts.DefaultScorer == "" {
		opts.DefaultScorer = def.DefaultScorer
	}
	return &Compiler{
		registry: registry,
		opts:     opts,
		logger:   slog.Default().With("component", "compiler"),
	}
}

func (c *Compiler) Registry() *Registry { return c.registry }

func (c *Compiler) Options() Options { return c.opts }

// Compile builds the iterator tree for root. Nothing is read beyond list
// headers, except where a scoring node must count its child's statistics.
func (c *Compiler) Compile(src Source, root *query.Node) (iterator.Iterator, error) {
	return c.CompileWith(src, root, nil)
}

// CompileWith compiles root with statistics taken from global wherever it
// holds them, so that several shards score against one background model.
func (c *Compiler) CompileWith(src Source, root *query.Node, global *Statistics) (iterator.Iterator, error) {
	ctx := c.newContext(src, c.opts, global)
	it, err := ctx.compile(root, c.opts.ShareNodes)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("query compiled", "query", root.String(), "shared_nodes", len(ctx.shared))
	return it, nil
}

// Gather compiles root without the node cache and reports every node and
// collection statistic its scoring nodes read from src.
func (c *Compiler) Gather(src Source, root *query.Node) (Statistics, error) {
	opts := c.opts
	opts.Cache = nil
	ctx := c.newContext(src, opts, nil)
	if _, err := ctx.compile(root, opts.ShareNodes); err != nil {
		return Statistics{}, err
	}
	return Statistics{Nodes: ctx.stats, Collections: ctx.collection}, nil
}

// NodeStatistics counts n against src the way a scoring node would.
func (c *Compiler) NodeStatistics(src Source, n *query.Node) (iterator.NodeStatistics, error) {
	opts := c.opts
	opts.Cache = nil
	return c.newContext(src, opts, nil).NodeStatistics(n)
}

func (c *Compiler) newContext(src Source, opts Options, global *Statistics) *Context {
	return &Context{
		Source:     src,
		Options:    opts,
		compiler:   c,
		global:     global,
		shared:     make(map[string]iterator.Iterator),
		stats:      make(map[string]iterator.NodeStatistics),
		collection: make(map[string]postings.FieldStatistics),
	}
}

// Statistics are the node statistics, keyed by canonical node string, and
// the per-field collection statistics one compilation used.
type Statistics struct {
	Nodes       map[string]iterator.NodeStatistics  `json:"nodes"`
	Collections map[string]postings.FieldStatistics `json:"collections"`
}

// Add folds other into s.
func (s *Statistics) Add(other Statistics) {
	if s.Nodes == nil {
		s.Nodes = make(map[string]iterator.NodeStatistics)
	}
	if s.Collections == nil {
		s.Collections = make(map[string]postings.FieldStatistics)
	}
	for k, v := range other.Nodes {
		v = s.Nodes[k].Add(v)
		v.Key = k
		s.Nodes[k] = v
	}
	for k, v := range other.Collections {
		v = s.Collections[k].Add(v)
		v.Field = k
		s.Collections[k] = v
	}
}

// Context is the state of one compilation.
type Context struct {
	Source   Source
	Options  Options
	compiler *Compiler
	global   *Statistics
	// shared is keyed by canonical node string.
	shared     map[string]iterator.Iterator
	stats      map[string]iterator.NodeStatistics
	collection map[string]postings.FieldStatistics
}

// Compile builds n within this compilation, sharing identical subtrees.
func (ctx *Context) Compile(n *query.Node) (iterator.Iterator, error) {
	return ctx.compile(n, ctx.Options.ShareNodes)
}

// Private builds an instance of n that shares no iterator with the query
// tree, for work that must run a node to exhaustion at compile time.
func (ctx *Context) Private(n *query.Node) (iterator.Iterator, error) {
	return ctx.compile(n, false)
}

func (ctx *Context) compile(n *query.Node, share bool) (iterator.Iterator, error) {
	return ctx.compileAs(n.String(), n, share)
}

// compileAs builds n under key, which stays the node's name as written
// even when n is an alias resolved to another operator.
func (ctx *Context) compileAs(key string, n *query.Node, share bool) (iterator.Iterator, error) {
	if share {
		if it, ok := ctx.shared[key]; ok {
			return it, nil
		}
	}
	builder, resolved, err := ctx.compiler.registry.resolve(n)
	if err != nil {
		return nil, err
	}
	if cache := ctx.Options.Cache; cache != nil && !isLeaf(resolved.Operator) {
		if m, ok := cache.Load(key); ok {
			it := m.Cursor()
			if share {
				ctx.shared[key] = it
			}
			return it, nil
		}
	}

	children := make([]iterator.Iterator, len(resolved.Children))
	for i, ch := range resolved.Children {
		if children[i], err = ctx.compile(ch, share); err != nil {
			return nil, err
		}
	}
	it, err := builder(ctx, resolved, children)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", key, err)
	}
	if it == nil {
		return nil, fmt.Errorf("%w: #%s built no iterator", apperrors.ErrConstruction, resolved.Operator)
	}
	if it, err = ctx.materialize(key, resolved, it, share); err != nil {
		return nil, err
	}
	if share {
		ctx.shared[key] = it
	}
	return it, nil
}

// materialize stores eligible composed nodes in the node cache and hands
// back a cursor over the stored copy.
func (ctx *Context) materialize(key string, n *query.Node, it iterator.Iterator, share bool) (iterator.Iterator, error) {
	cache := ctx.Options.Cache
	if cache == nil || isLeaf(n.Operator) {
		return it, nil
	}
	switch it.(type) {
	case iterator.CountIterator:
	case iterator.ScoreIterator:
		if !ctx.Options.CacheScores {
			return it, nil
		}
	default:
		return it, nil
	}
	// it may already share children with the rest of the tree, so a
	// private copy is compiled and materialized instead.
	if share {
		return ctx.compileAs(key, n, false)
	}
	m, err := iterator.Materialize(key, it)
	if err != nil {
		return nil, err
	}
	cache.Store(key, m)
	return m.Cursor(), nil
}

// NodeStatistics counts how often the node matches, reading the list
// header for leaves and walking a private instance otherwise.
func (ctx *Context) NodeStatistics(n *query.Node) (iterator.NodeStatistics, error) {
	key := n.String()
	if s, ok := ctx.stats[key]; ok {
		return s, nil
	}
	if ctx.global != nil {
		if s, ok := ctx.global.Nodes[key]; ok {
			ctx.stats[key] = s
			return s, nil
		}
	}
	it, err := ctx.Private(n)
	if err != nil {
		return iterator.NodeStatistics{}, err
	}
	var stats iterator.NodeStatistics
	switch x := it.(type) {
	case iterator.Statistics:
		stats = x.NodeStatistics()
	case iterator.CountIterator:
		if stats, err = iterator.Collect(x); err != nil {
			return stats, fmt.Errorf("counting %s: %w", key, err)
		}
	default:
		return stats, &CompileError{Operator: n.Operator, Position: 0, Want: "a countable node", Got: describe(it)}
	}
	stats.Key = key
	ctx.stats[key] = stats
	return stats, nil
}

// CollectionStatistics reads the length statistics of field once per
// compilation.
func (ctx *Context) CollectionStatistics(field string) (postings.FieldStatistics, error) {
	if s, ok := ctx.collection[field]; ok {
		return s, nil
	}
	if ctx.global != nil {
		if s, ok := ctx.global.Collections[field]; ok {
			ctx.collection[field] = s
			return s, nil
		}
	}
	s, err := ctx.Source.CollectionStatistics(field)
	if err != nil {
		return s, err
	}
	ctx.collection[field] = s
	return s, nil
}

// Lengths returns the lengths iterator of field, shared like any other
// node so that every scorer over one field moves a single cursor.
func (ctx *Context) Lengths(field string) (iterator.LengthsIterator, error) {
	it, err := ctx.Compile(query.New("lengths", query.Params{query.DefaultKey: field}))
	if err != nil {
		return nil, err
	}
	return it.(iterator.LengthsIterator), nil
}

func isLeaf(op string) bool {
	switch op {
	case "text", "extents", "counts", "field", "scores", "prior", "lengths", "null":
		return true
	}
	return false
}

// describe names the capabilities of it for error messages.
func describe(it iterator.Iterator) string {
	switch it.(type) {
	case iterator.ExtentIterator:
		return "extents"
	case iterator.CountIterator:
		return "counts"
	case iterator.ScoreIterator:
		return "scores"
	case iterator.LengthsIterator:
		return "lengths"
	case iterator.DataIterator:
		return "field values"
	case iterator.IndicatorIterator:
		return "indicator"
	case nil:
		return "nothing"
	}
	return fmt.Sprintf("%T", it)
}
