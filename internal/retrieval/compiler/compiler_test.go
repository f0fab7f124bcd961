package compiler

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/build"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

func openIndex(t *testing.T) *disk.Index {
	t.Helper()
	b := build.New(build.Options{WriterOptions: postings.DefaultWriterOptions()})
	docs := []build.Document{
		{ID: 1, Name: "d1", Terms: []string{"white", "whale", "white", "sea"}, Fields: map[string]any{"year": int64(1851)}},
		{ID: 2, Name: "d2", Terms: []string{"sea", "story"}, Fields: map[string]any{"year": int64(1900)}},
		{ID: 5, Name: "d5", Terms: []string{"whale", "song"}, Scores: map[string]float32{"prior": 0.25}},
	}
	for _, d := range docs {
		require.NoError(t, b.Add(d))
	}
	dir := t.TempDir()
	_, err := b.Write(context.Background(), dir)
	require.NoError(t, err)
	idx, err := disk.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

func compile(t *testing.T, c *Compiler, src Source, n *query.Node) iterator.Iterator {
	t.Helper()
	it, err := c.Compile(src, n)
	require.NoError(t, err)
	return it
}

func matches(t *testing.T, root iterator.Iterator) []int64 {
	t.Helper()
	var out []int64
	for !root.IsDone() {
		doc := root.CurrentCandidate()
		_, err := root.MoveTo(doc)
		require.NoError(t, err)
		if root.HasMatch(doc) {
			out = append(out, doc)
		}
		require.NoError(t, root.MovePast(doc))
	}
	return out
}

func score(t *testing.T, it iterator.Iterator, doc int64) float64 {
	t.Helper()
	_, err := it.MoveTo(doc)
	require.NoError(t, err)
	return it.(iterator.ScoreIterator).Score(&iterator.ScoringContext{Document: doc})
}

func TestCompileBooleanOperators(t *testing.T) {
	idx := openIndex(t)
	c := New(NewRegistry(), DefaultOptions())

	tests := []struct {
		name string
		node *query.Node
		want []int64
	}{
		{"all", query.New("all", nil, query.Text("whale"), query.Text("sea")), []int64{1}},
		{"any", query.New("any", nil, query.Text("whale"), query.Text("sea")), []int64{1, 2, 5}},
		{"reject", query.New("reject", nil, query.Text("sea"), query.Text("whale")), []int64{5}},
		{"require", query.New("require", nil, query.Text("sea"), query.Text("whale")), []int64{1}},
		{"od", query.New("od", query.Params{query.DefaultKey: "1"}, query.Text("white"), query.Text("whale")), []int64{1}},
		{"od reversed", query.New("od", query.Params{query.DefaultKey: "1"}, query.Text("whale"), query.Text("white")), []int64{1}},
		{"uw", query.New("uw", query.Params{query.DefaultKey: "2"}, query.Text("whale"), query.Text("song")), []int64{5}},
		{"syn", query.New("syn", nil, query.Text("story"), query.Text("song")), []int64{2, 5}},
		{"greater", query.New("greater", query.Params{query.DefaultKey: "1860"}, query.New("field", query.Params{query.DefaultKey: "year"})), []int64{2}},
		{"between", query.New("between", query.Params{"low": "1800", "high": "1860"}, query.New("field", query.Params{query.DefaultKey: "year"})), []int64{1}},
		{"missing key", query.Text("narwhal"), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matches(t, compile(t, c, idx, tt.node)))
		})
	}
}

func TestMissingKeyCompilesToNull(t *testing.T) {
	idx := openIndex(t)
	c := New(NewRegistry(), DefaultOptions())
	assert.IsType(t, &iterator.Null{}, compile(t, c, idx, query.Text("narwhal")))
}

func TestUnknownOperator(t *testing.T) {
	idx := openIndex(t)
	c := New(NewRegistry(), DefaultOptions())
	_, err := c.Compile(idx, query.New("combine", nil, query.New("frobnicate", nil)))
	assert.ErrorIs(t, err, apperrors.ErrBadOperator)
}

func TestShapeMismatchNamesArgument(t *testing.T) {
	idx := openIndex(t)
	c := New(NewRegistry(), DefaultOptions())
	year := query.New("field", query.Params{query.DefaultKey: "year"})

	_, err := c.Compile(idx, query.New("od", nil, query.Text("whale"), year))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrConstruction)
	var ce *CompileError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "od", ce.Operator)
	assert.Equal(t, 1, ce.Position)
	assert.Equal(t, "extents", ce.Want)
	assert.Equal(t, "field values", ce.Got)

	_, err = c.Compile(idx, query.New("inside", nil, query.Text("whale")))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "inside", ce.Operator)

	_, err = c.Compile(idx, query.New("threshold", nil, query.Text("whale")))
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "a threshold parameter", ce.Want)
}

func TestIdenticalSubtreesAreShared(t *testing.T) {
	idx := openIndex(t)
	q := query.New("combine", nil,
		query.New("dirichlet", nil, query.Text("whale")),
		query.New("dirichlet", nil, query.Text("whale")))

	shared := compile(t, New(NewRegistry(), DefaultOptions()), idx, q).(*iterator.Combine).Children()
	assert.Same(t, shared[0], shared[1])

	opts := DefaultOptions()
	opts.ShareNodes = false
	private := compile(t, New(NewRegistry(), opts), idx, q).(*iterator.Combine).Children()
	assert.NotSame(t, private[0], private[1])

	root := compile(t, New(NewRegistry(), DefaultOptions()), idx, q)
	assert.Equal(t, []int64{1, 5}, matches(t, root))
}

func TestCombineWrapsCountsInDefaultScorer(t *testing.T) {
	idx := openIndex(t)
	c := New(NewRegistry(), DefaultOptions())
	root := compile(t, c, idx, query.New("combine", nil, query.Text("whale"), query.Text("sea")))
	for _, ch := range root.(*iterator.Combine).Children() {
		assert.IsType(t, &iterator.ScoringFunction{}, ch)
	}
	assert.Equal(t, []int64{1, 2, 5}, matches(t, root))
}

func TestDirichletStatistics(t *testing.T) {
	idx := openIndex(t)
	c := New(NewRegistry(), DefaultOptions())

	// whale: once in d1 (length 4), twice over a collection of 8 terms.
	it := compile(t, c, idx, query.New("dirichlet", nil, query.Text("whale")))
	assert.InDelta(t, math.Log((1+1500*2.0/8)/(4+1500)), score(t, it, 1), 1e-9)

	annotated := query.New("dirichlet", query.Params{
		"mu": "10", "collectionLength": "100", "nodeFrequency": "3", "collectionFrequency": "10",
	}, query.Text("whale"))
	it = compile(t, c, idx, annotated)
	assert.InDelta(t, math.Log((1+10*0.1)/(4+10)), score(t, it, 1), 1e-9)

	window := query.New("dirichlet", query.Params{"mu": "10"},
		query.New("od", query.Params{query.DefaultKey: "1"}, query.Text("white"), query.Text("whale")))
	it = compile(t, c, idx, window)
	assert.InDelta(t, math.Log((1+10*1.0/8)/(4+10)), score(t, it, 1), 1e-9)
}

func TestPriorScores(t *testing.T) {
	idx := openIndex(t)
	c := New(NewRegistry(), DefaultOptions())
	it := compile(t, c, idx, query.New("prior", query.Params{query.DefaultKey: "prior", "defaultScore": "-1"}))
	assert.InDelta(t, 0.25, score(t, it, 5), 1e-6)
	assert.Equal(t, -1.0, it.(iterator.ScoreIterator).Score(&iterator.ScoringContext{Document: 6}))
}

func TestRegistryAliasesAndRegister(t *testing.T) {
	r, err := NewRegistryFromConfig(map[string]config.OperatorConfig{
		"okapi": {Operator: "bm25", Params: map[string]string{"b": "0.5"}},
	})
	require.NoError(t, err)
	assert.Contains(t, r.Operators(), "okapi")

	assert.Error(t, r.Alias("okapi", "bm25", nil))
	assert.ErrorIs(t, r.Alias("broken", "nothing", nil), apperrors.ErrBadOperator)
	assert.Error(t, r.Register("combine", buildCombine))

	require.NoError(t, r.Register("twice", func(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
		if err := arity(node, children, 1, 1); err != nil {
			return nil, err
		}
		s, err := scoreChild(ctx, node, children, 0)
		if err != nil {
			return nil, err
		}
		return iterator.NewScale(2, s), nil
	}))

	idx := openIndex(t)
	c := New(r, DefaultOptions())
	okapi := compile(t, c, idx, query.New("okapi", nil, query.Text("whale")))
	bm := compile(t, c, idx, query.New("bm25", query.Params{"b": "0.5"}, query.Text("whale")))
	assert.Equal(t, score(t, bm, 1), score(t, okapi, 1))

	twice := compile(t, c, idx, query.New("twice", nil, query.Text("whale")))
	plain := compile(t, c, idx, query.New("dirichlet", nil, query.Text("whale")))
	assert.InDelta(t, 2*score(t, plain, 5), score(t, twice, 5), 1e-9)
}

type mapCache struct {
	mu     sync.Mutex
	nodes  map[string]*iterator.Materialized
	stores int
}

func (m *mapCache) Load(key string) (*iterator.Materialized, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.nodes[key]
	return n, ok
}

func (m *mapCache) Store(key string, n *iterator.Materialized) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nodes[key] = n
	m.stores++
}

func TestNodeCache(t *testing.T) {
	idx := openIndex(t)
	cache := &mapCache{nodes: map[string]*iterator.Materialized{}}
	opts := DefaultOptions()
	opts.Cache = cache
	c := New(NewRegistry(), opts)

	od := query.New("od", query.Params{query.DefaultKey: "1"}, query.Text("white"), query.Text("whale"))
	q := query.New("combine", nil, query.New("dirichlet", nil, od))

	first := compile(t, c, idx, q)
	assert.Equal(t, []int64{1}, matches(t, first))
	assert.Contains(t, cache.nodes, od.String())
	assert.NotContains(t, cache.nodes, q.String(), "score nodes stay out of the cache by default")
	stores := cache.stores

	second := compile(t, c, idx, q)
	assert.Equal(t, []int64{1}, matches(t, second))
	assert.Equal(t, stores, cache.stores)
}

func TestNodeCacheKeepsAliasKeys(t *testing.T) {
	idx := openIndex(t)
	r, err := NewRegistryFromConfig(map[string]config.OperatorConfig{
		"phrase": {Operator: "od", Params: map[string]string{"default": "1"}},
	})
	require.NoError(t, err)
	cache := &mapCache{nodes: map[string]*iterator.Materialized{}}
	opts := DefaultOptions()
	opts.Cache = cache
	c := New(r, opts)

	phrase := query.New("phrase", nil, query.Text("white"), query.Text("whale"))
	q := query.New("combine", nil, query.New("dirichlet", nil, phrase))

	assert.Equal(t, []int64{1}, matches(t, compile(t, c, idx, q)))
	assert.Contains(t, cache.nodes, phrase.String())
	stores := cache.stores

	assert.Equal(t, []int64{1}, matches(t, compile(t, c, idx, q)))
	assert.Equal(t, stores, cache.stores)
}

func TestGatherAndCompileWithGlobalStatistics(t *testing.T) {
	idx := openIndex(t)
	c := New(NewRegistry(), DefaultOptions())
	whale := query.Text("whale")
	q := query.New("combine", nil, query.New("dirichlet", nil, whale))

	stats, err := c.Gather(idx, q)
	require.NoError(t, err)
	require.Contains(t, stats.Nodes, whale.String())
	assert.Equal(t, int64(2), stats.Nodes[whale.String()].NodeFrequency)
	assert.Equal(t, int64(2), stats.Nodes[whale.String()].CollectionFrequency)
	assert.Equal(t, int64(8), stats.Collections["document"].CollectionLength)

	var global Statistics
	global.Add(stats)
	global.Add(Statistics{
		Nodes:       map[string]iterator.NodeStatistics{whale.String(): {NodeFrequency: 5, CollectionFrequency: 8, MaximumCount: 3}},
		Collections: map[string]postings.FieldStatistics{"document": {CollectionLength: 92, DocumentCount: 20}},
	})
	assert.Equal(t, int64(10), global.Nodes[whale.String()].CollectionFrequency)
	assert.Equal(t, int64(3), global.Nodes[whale.String()].MaximumCount)
	assert.Equal(t, int64(100), global.Collections["document"].CollectionLength)

	it, err := c.CompileWith(idx, query.New("dirichlet", nil, whale), &global)
	require.NoError(t, err)
	assert.InDelta(t, math.Log((1+1500*0.1)/(4+1500)), score(t, it, 1), 1e-9)
}
