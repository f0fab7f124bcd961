package compiler

import (
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
)

func builtins() map[string]Builder {
	b := map[string]Builder{
		"text":    buildText,
		"extents": buildExtents,
		"counts":  buildCounts,
		"field":   buildField,
		"scores":  buildScores,
		"prior":   buildScores,
		"lengths": buildLengths,
		"null":    buildNull,

		"all":     buildAll,
		"band":    buildAll,
		"any":     buildAny,
		"or":      buildAny,
		"require": buildRequire,
		"reject":  buildReject,
		"combine": buildCombine,

		"od":        buildOrdered,
		"ordered":   buildOrdered,
		"uw":        buildUnordered,
		"unordered": buildUnordered,
		"inside":    buildInside,
		"syn":       buildSynonym,
		"synonym":   buildSynonym,

		"threshold": buildThreshold,
		"scale":     buildScale,
		"log":       buildLog,
		"boost":     buildBoost,
		"idf":       buildIDF,

		"dirichlet":     buildScorer(dirichlet),
		"dirichlet-raw": buildScorer(dirichletRaw),
		"jm":            buildScorer(jelinekMercer),
		"linear":        buildScorer(jelinekMercer),
		"bm25":          buildScorer(bm25),
		"dfr":           buildScorer(dfr),
	}
	for _, op := range []string{iterator.CompareGreater, iterator.CompareLess, iterator.CompareEquals, iterator.CompareBetween} {
		b[op] = buildComparison(op)
	}
	return b
}

// arity checks the child count against [lo, hi]; hi < 0 means unbounded.
func arity(node *query.Node, children []iterator.Iterator, lo, hi int) error {
	n := len(children)
	switch {
	case n < lo:
		return &CompileError{Operator: node.Operator, Position: n, Want: "at least " + strconv.Itoa(lo) + " children", Got: strconv.Itoa(n)}
	case hi >= 0 && n > hi:
		return &CompileError{Operator: node.Operator, Position: hi, Want: "at most " + strconv.Itoa(hi) + " children", Got: strconv.Itoa(n)}
	}
	return nil
}

func child[T iterator.Iterator](node *query.Node, children []iterator.Iterator, i int, want string) (T, error) {
	v, ok := children[i].(T)
	if !ok {
		var zero T
		return zero, &CompileError{Operator: node.Operator, Position: i, Want: want, Got: describe(children[i])}
	}
	return v, nil
}

func each[T iterator.Iterator](node *query.Node, children []iterator.Iterator, want string) ([]T, error) {
	out := make([]T, len(children))
	for i := range children {
		v, err := child[T](node, children, i, want)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// scoreChild returns child i as a score iterator, wrapping plain count
// children in the default scorer.
func scoreChild(ctx *Context, node *query.Node, children []iterator.Iterator, i int) (iterator.ScoreIterator, error) {
	switch c := children[i].(type) {
	case *iterator.Null:
		// An absent key still scores its background probability.
		return defaultScorer(ctx, node, i)
	case iterator.ScoreIterator:
		return c, nil
	case iterator.CountIterator:
		return defaultScorer(ctx, node, i)
	}
	return nil, &CompileError{Operator: node.Operator, Position: i, Want: "scores or counts", Got: describe(children[i])}
}

func defaultScorer(ctx *Context, node *query.Node, i int) (iterator.ScoreIterator, error) {
	wrapped, err := ctx.Compile(query.New(ctx.Options.DefaultScorer, nil, node.Children[i]))
	if err != nil {
		return nil, err
	}
	return child[iterator.ScoreIterator](node, []iterator.Iterator{wrapped}, 0, "scores")
}

func leafKey(node *query.Node) (string, error) {
	key := node.Default()
	if key == "" {
		return "", &CompileError{Operator: node.Operator, Position: 0, Want: "a key", Got: "none"}
	}
	return key, nil
}

// lookup opens key in the node's part. An absent key compiles to Null.
func lookup(ctx *Context, node *query.Node, defaultPart string) (iterator.Iterator, error) {
	key, err := leafKey(node)
	if err != nil {
		return nil, err
	}
	it, err := ctx.Source.Iterator(node.Params.Get("part", defaultPart), key)
	if err != nil {
		return nil, err
	}
	if it == nil {
		return iterator.NewNull(), nil
	}
	return it, nil
}

func buildText(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 0, 0); err != nil {
		return nil, err
	}
	return lookup(ctx, node, ctx.Options.DefaultPart)
}

func buildExtents(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	it, err := buildText(ctx, node, children)
	if err != nil {
		return nil, err
	}
	return child[iterator.ExtentIterator](node, []iterator.Iterator{it}, 0, "an extent part")
}

func buildCounts(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	it, err := buildText(ctx, node, children)
	if err != nil {
		return nil, err
	}
	return child[iterator.CountIterator](node, []iterator.Iterator{it}, 0, "a count part")
}

func buildField(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 0, 0); err != nil {
		return nil, err
	}
	it, err := lookup(ctx, node, "fields")
	if err != nil {
		return nil, err
	}
	return child[iterator.DataIterator](node, []iterator.Iterator{it}, 0, "a field part")
}

func buildScores(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 0, 0); err != nil {
		return nil, err
	}
	it, err := lookup(ctx, node, "scores")
	if err != nil {
		return nil, err
	}
	if sparse, ok := it.(*postings.SparseFloatIterator); ok {
		if sparse.Default, err = node.Params.Float("defaultScore", 0); err != nil {
			return nil, err
		}
	}
	return child[iterator.ScoreIterator](node, []iterator.Iterator{it}, 0, "a score part")
}

func buildLengths(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 0, 0); err != nil {
		return nil, err
	}
	field := node.Default()
	if field == "" {
		field = ctx.Options.LengthsField
	}
	return ctx.Source.Lengths(field)
}

func buildNull(_ *Context, _ *query.Node, _ []iterator.Iterator) (iterator.Iterator, error) {
	return iterator.NewNull(), nil
}

func buildAll(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, -1); err != nil {
		return nil, err
	}
	return iterator.NewAll(children...), nil
}

func buildAny(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, -1); err != nil {
		return nil, err
	}
	return iterator.NewAny(children...), nil
}

func buildRequire(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 2, 2); err != nil {
		return nil, err
	}
	return iterator.NewRequire(children[0], children[1]), nil
}

func buildReject(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 2, 2); err != nil {
		return nil, err
	}
	return iterator.NewReject(children[0], children[1]), nil
}

// buildCombine reads child weights from the parameters "0", "1", ...
func buildCombine(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, -1); err != nil {
		return nil, err
	}
	scorers := make([]iterator.ScoreIterator, len(children))
	weights := make([]float64, len(children))
	for i := range children {
		s, err := scoreChild(ctx, node, children, i)
		if err != nil {
			return nil, err
		}
		scorers[i] = s
		if weights[i], err = node.Params.Float(strconv.Itoa(i), 1); err != nil {
			return nil, err
		}
	}
	norm, err := node.Params.Bool("norm", true)
	if err != nil {
		return nil, err
	}
	return iterator.NewCombine(weights, norm, scorers...), nil
}

// width reads the window width from the default parameter or "width".
func width(node *query.Node, def int64) (int, error) {
	if node.Params.Has(query.DefaultKey) {
		w, err := node.Params.Int(query.DefaultKey, def)
		return int(w), err
	}
	w, err := node.Params.Int("width", def)
	return int(w), err
}

func buildOrdered(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, -1); err != nil {
		return nil, err
	}
	ext, err := each[iterator.ExtentIterator](node, children, "extents")
	if err != nil {
		return nil, err
	}
	w, err := width(node, 1)
	if err != nil {
		return nil, err
	}
	return iterator.NewOrderedWindow(w, ext...), nil
}

func buildUnordered(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, -1); err != nil {
		return nil, err
	}
	ext, err := each[iterator.ExtentIterator](node, children, "extents")
	if err != nil {
		return nil, err
	}
	w, err := width(node, int64(4*len(ext)))
	if err != nil {
		return nil, err
	}
	return iterator.NewUnorderedWindow(w, ext...), nil
}

func buildInside(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 2, 2); err != nil {
		return nil, err
	}
	ext, err := each[iterator.ExtentIterator](node, children, "extents")
	if err != nil {
		return nil, err
	}
	return iterator.NewInside(ext[0], ext[1]), nil
}

func buildSynonym(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, -1); err != nil {
		return nil, err
	}
	ext, err := each[iterator.ExtentIterator](node, children, "extents")
	if err != nil {
		return nil, err
	}
	return iterator.NewSynonym(ext...), nil
}

func buildThreshold(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, 1); err != nil {
		return nil, err
	}
	s, err := scoreChild(ctx, node, children, 0)
	if err != nil {
		return nil, err
	}
	if !node.Params.Has(query.DefaultKey) {
		return nil, &CompileError{Operator: node.Operator, Position: 0, Want: "a threshold parameter", Got: "none"}
	}
	t, err := node.Params.Float(query.DefaultKey, 0)
	if err != nil {
		return nil, err
	}
	return iterator.NewThreshold(t, s), nil
}

func buildScale(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, 1); err != nil {
		return nil, err
	}
	s, err := scoreChild(ctx, node, children, 0)
	if err != nil {
		return nil, err
	}
	w, err := node.Params.Float(query.DefaultKey, 1)
	if err != nil {
		return nil, err
	}
	return iterator.NewScale(w, s), nil
}

func buildLog(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, 1); err != nil {
		return nil, err
	}
	s, err := scoreChild(ctx, node, children, 0)
	if err != nil {
		return nil, err
	}
	return iterator.NewLog(s), nil
}

func buildBoost(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, 1); err != nil {
		return nil, err
	}
	beta, err := node.Params.Float("beta", 1)
	if err != nil {
		return nil, err
	}
	if node.Params.Has(query.DefaultKey) {
		if beta, err = node.Params.Float(query.DefaultKey, 1); err != nil {
			return nil, err
		}
	}
	return iterator.NewBoost(beta, children[0]), nil
}

func buildIDF(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
	if err := arity(node, children, 1, 1); err != nil {
		return nil, err
	}
	if _, err := child[iterator.CountIterator](node, children, 0, "counts"); err != nil {
		return nil, err
	}
	stats, _, err := scoringStatistics(ctx, node)
	if err != nil {
		return nil, err
	}
	return iterator.NewIDF(stats, children[0]), nil
}

func buildComparison(op string) Builder {
	return func(_ *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
		if err := arity(node, children, 1, 1); err != nil {
			return nil, err
		}
		data, err := child[iterator.DataIterator](node, children, 0, "field values")
		if err != nil {
			return nil, err
		}
		format := "string"
		if f, ok := data.(interface{ Format() string }); ok {
			format = f.Format()
		}
		lo, hi := node.Default(), ""
		if op == iterator.CompareBetween {
			lo, hi = node.Params.Get("low", ""), node.Params.Get("high", "")
		}
		return iterator.NewFieldComparison(op, format, lo, hi, data)
	}
}

// scoringStatistics gathers the collection statistics of the node's
// lengths field and the node statistics of its first child. Parameters
// of the same name take precedence, so a caller holding statistics of a
// larger collection can supply them.
func scoringStatistics(ctx *Context, node *query.Node) (iterator.ScoringStatistics, string, error) {
	var stats iterator.ScoringStatistics
	field := node.Params.Get("lengths", ctx.Options.LengthsField)
	cs, err := ctx.CollectionStatistics(field)
	if err != nil {
		return stats, field, err
	}
	p := node.Params
	if stats.CollectionLength, err = p.Int("collectionLength", cs.CollectionLength); err != nil {
		return stats, field, err
	}
	if stats.DocumentCount, err = p.Int("documentCount", cs.DocumentCount); err != nil {
		return stats, field, err
	}
	if p.Has("nodeFrequency") && p.Has("collectionFrequency") {
		if stats.NodeFrequency, err = p.Int("nodeFrequency", 0); err != nil {
			return stats, field, err
		}
		if stats.CollectionFrequency, err = p.Int("collectionFrequency", 0); err != nil {
			return stats, field, err
		}
		stats.MaximumCount, err = p.Int("maximumCount", 0)
		return stats, field, err
	}
	ns, err := ctx.NodeStatistics(node.Children[0])
	if err != nil {
		return stats, field, err
	}
	stats.NodeFrequency = ns.NodeFrequency
	stats.CollectionFrequency = ns.CollectionFrequency
	stats.MaximumCount = ns.MaximumCount
	return stats, field, nil
}

type scorerFunc func(p query.Params, stats iterator.ScoringStatistics, counts iterator.CountIterator, lengths iterator.LengthsIterator) (iterator.Iterator, error)

func buildScorer(f scorerFunc) Builder {
	return func(ctx *Context, node *query.Node, children []iterator.Iterator) (iterator.Iterator, error) {
		if err := arity(node, children, 1, 1); err != nil {
			return nil, err
		}
		counts, err := child[iterator.CountIterator](node, children, 0, "counts")
		if err != nil {
			return nil, err
		}
		stats, field, err := scoringStatistics(ctx, node)
		if err != nil {
			return nil, err
		}
		lengths, err := ctx.Lengths(field)
		if err != nil {
			return nil, err
		}
		return f(node.Params, stats, counts, lengths)
	}
}

func dirichlet(p query.Params, stats iterator.ScoringStatistics, c iterator.CountIterator, l iterator.LengthsIterator) (iterator.Iterator, error) {
	mu, err := p.Float("mu", 1500)
	if err != nil {
		return nil, err
	}
	return iterator.NewDirichlet(mu, stats, c, l), nil
}

func dirichletRaw(p query.Params, stats iterator.ScoringStatistics, c iterator.CountIterator, l iterator.LengthsIterator) (iterator.Iterator, error) {
	mu, err := p.Float("mu", 1500)
	if err != nil {
		return nil, err
	}
	return iterator.NewDirichletRaw(mu, stats, c, l), nil
}

func jelinekMercer(p query.Params, stats iterator.ScoringStatistics, c iterator.CountIterator, l iterator.LengthsIterator) (iterator.Iterator, error) {
	lambda, err := p.Float("lambda", 0.5)
	if err != nil {
		return nil, err
	}
	return iterator.NewJelinekMercer(lambda, stats, c, l), nil
}

func bm25(p query.Params, stats iterator.ScoringStatistics, c iterator.CountIterator, l iterator.LengthsIterator) (iterator.Iterator, error) {
	b, err := p.Float("b", 0.75)
	if err != nil {
		return nil, err
	}
	k, err := p.Float("k", 1.2)
	if err != nil {
		return nil, err
	}
	return iterator.NewBM25(b, k, stats, c, l), nil
}

func dfr(p query.Params, stats iterator.ScoringStatistics, c iterator.CountIterator, l iterator.LengthsIterator) (iterator.Iterator, error) {
	cc, err := p.Float("c", 1)
	if err != nil {
		return nil, err
	}
	return iterator.NewDFR(cc, stats, c, l), nil
}
