package iterator

import "sort"

// window is a conjunction of extent children whose own extents are
// computed once per aligned document.
type window struct {
	conjunction
	extentChildren []ExtentIterator
	doc            int64
	extents        ExtentArray
	compute        func(c *ScoringContext) ExtentArray
}

func newWindow(self matcher, children []ExtentIterator) window {
	w := window{extentChildren: children, doc: -1}
	iters := make([]Iterator, len(children))
	for i, ch := range children {
		iters[i] = ch
	}
	w.conjunction = newConjunction(self, iters)
	return w
}

func (w *window) load(id int64) ExtentArray {
	if !w.conjunction.HasMatch(id) {
		return nil
	}
	if w.doc != id {
		w.doc = id
		w.extents = w.compute(&ScoringContext{Document: id})
	}
	return w.extents
}

func (w *window) HasMatch(id int64) bool { return len(w.load(id)) > 0 }

func (w *window) Count(c *ScoringContext) int { return len(w.load(c.Document)) }

func (w *window) Extents(c *ScoringContext) ExtentArray { return w.load(c.Document) }

func (w *window) Reset() error {
	w.doc = -1
	w.extents = nil
	return w.conjunction.Reset()
}

// OrderedWindow matches its children in order, each beginning fewer than
// width positions after the previous one ends.
type OrderedWindow struct {
	window
	width int
}

func NewOrderedWindow(width int, children ...ExtentIterator) *OrderedWindow {
	it := &OrderedWindow{width: width}
	it.window = newWindow(it, children)
	it.compute = it.orderedExtents
	return it
}

func (it *OrderedWindow) orderedExtents(c *ScoringContext) ExtentArray {
	arrays := make([]ExtentArray, len(it.extentChildren))
	for i, ch := range it.extentChildren {
		arrays[i] = ch.Extents(c)
	}
	if len(arrays) == 0 {
		return nil
	}
	pos := make([]int, len(arrays))
	var out ExtentArray
	for _, first := range arrays[0] {
		begin, end := first.Begin, first.End
		matched := true
		for i := 1; i < len(arrays); i++ {
			a := arrays[i]
			for pos[i] < len(a) && a[pos[i]].Begin < end {
				pos[i]++
			}
			if pos[i] == len(a) {
				return out
			}
			next := a[pos[i]]
			if next.Begin-end >= it.width {
				matched = false
				break
			}
			end = next.End
		}
		if matched {
			out = append(out, Extent{Begin: begin, End: end})
		}
	}
	return out
}

// UnorderedWindow matches when one extent of every child falls inside a
// span of at most width positions.
type UnorderedWindow struct {
	window
	width int
}

func NewUnorderedWindow(width int, children ...ExtentIterator) *UnorderedWindow {
	it := &UnorderedWindow{width: width}
	it.window = newWindow(it, children)
	it.compute = it.unorderedExtents
	return it
}

func (it *UnorderedWindow) unorderedExtents(c *ScoringContext) ExtentArray {
	arrays := make([]ExtentArray, len(it.extentChildren))
	for i, ch := range it.extentChildren {
		arrays[i] = ch.Extents(c)
		if len(arrays[i]) == 0 {
			return nil
		}
	}
	if len(arrays) == 0 {
		return nil
	}
	pos := make([]int, len(arrays))
	var out ExtentArray
	for {
		lo, begin, end := 0, arrays[0][pos[0]].Begin, arrays[0][pos[0]].End
		for i := 1; i < len(arrays); i++ {
			e := arrays[i][pos[i]]
			if e.Begin < begin {
				lo, begin = i, e.Begin
			}
			end = max(end, e.End)
		}
		if end-begin <= it.width {
			out = append(out, Extent{Begin: begin, End: end})
		}
		pos[lo]++
		if pos[lo] == len(arrays[lo]) {
			return out
		}
	}
}

// Inside keeps the extents of inner that lie within some extent of outer.
type Inside struct {
	window
}

func NewInside(inner, outer ExtentIterator) *Inside {
	it := &Inside{}
	it.window = newWindow(it, []ExtentIterator{inner, outer})
	it.compute = it.insideExtents
	return it
}

func (it *Inside) insideExtents(c *ScoringContext) ExtentArray {
	inner := it.extentChildren[0].Extents(c)
	outer := it.extentChildren[1].Extents(c)
	var out ExtentArray
	for _, e := range inner {
		for _, o := range outer {
			if o.Contains(e) {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Synonym treats its children as one term: the union of their extents.
type Synonym struct {
	disjunction
	extentChildren []ExtentIterator
	doc            int64
	extents        ExtentArray
}

func NewSynonym(children ...ExtentIterator) *Synonym {
	it := &Synonym{extentChildren: children, doc: -1}
	iters := make([]Iterator, len(children))
	for i, ch := range children {
		iters[i] = ch
	}
	it.disjunction = newDisjunction(it, iters)
	return it
}

func (it *Synonym) load(id int64) ExtentArray {
	if it.doc == id {
		return it.extents
	}
	it.doc = id
	it.extents = it.extents[:0]
	c := &ScoringContext{Document: id}
	for _, ch := range it.extentChildren {
		if ch.HasMatch(id) {
			it.extents = append(it.extents, ch.Extents(c)...)
		}
	}
	sort.Slice(it.extents, func(i, j int) bool {
		a, b := it.extents[i], it.extents[j]
		if a.Begin != b.Begin {
			return a.Begin < b.Begin
		}
		return a.End < b.End
	})
	return it.extents
}

func (it *Synonym) Count(c *ScoringContext) int {
	if !it.HasMatch(c.Document) {
		return 0
	}
	return len(it.load(c.Document))
}

func (it *Synonym) Extents(c *ScoringContext) ExtentArray {
	if !it.HasMatch(c.Document) {
		return nil
	}
	return it.load(c.Document)
}

func (it *Synonym) Reset() error {
	it.doc = -1
	return it.disjunction.Reset()
}

var (
	_ ExtentIterator = (*OrderedWindow)(nil)
	_ ExtentIterator = (*UnorderedWindow)(nil)
	_ ExtentIterator = (*Inside)(nil)
	_ ExtentIterator = (*Synonym)(nil)
)
