package iterator

// All is true for documents every child matches.
type All struct {
	conjunction
}

func NewAll(children ...Iterator) *All {
	it := &All{}
	it.conjunction = newConjunction(it, children)
	return it
}

func (it *All) HasMatch(id int64) bool {
	if !it.conjunction.HasMatch(id) {
		return false
	}
	c := &ScoringContext{Document: id}
	for _, ch := range it.children {
		if ind, ok := ch.(IndicatorIterator); ok && !ind.Indicator(c) {
			return false
		}
	}
	return true
}

func (it *All) Indicator(c *ScoringContext) bool { return it.HasMatch(c.Document) }

// Any is true for documents at least one child matches.
type Any struct {
	disjunction
}

func NewAny(children ...Iterator) *Any {
	it := &Any{}
	it.disjunction = newDisjunction(it, children)
	return it
}

func (it *Any) HasMatch(id int64) bool {
	c := &ScoringContext{Document: id}
	for _, ch := range it.drivers {
		if indicatorOf(ch, c) {
			return true
		}
	}
	return false
}

func (it *Any) Indicator(c *ScoringContext) bool { return it.HasMatch(c.Document) }

// Filter passes its second child through for documents where the
// condition holds (require) or fails (reject).
type Filter struct {
	conjunction
	cond   Iterator
	child  Iterator
	reject bool
}

// NewRequire keeps child's matches where cond is true.
func NewRequire(cond, child Iterator) Iterator {
	f := &Filter{cond: cond, child: child}
	f.conjunction = newConjunction(f, []Iterator{cond, child})
	return f.typed()
}

// NewReject keeps child's matches where cond is false. Only child drives.
func NewReject(cond, child Iterator) Iterator {
	f := &Filter{cond: cond, child: child, reject: true}
	f.conjunction = newConjunction(f, []Iterator{cond, child})
	f.drivers = []Iterator{child}
	f.hasAll = child.HasAllCandidates()
	return f.typed()
}

// typed exposes the child's capability through the filter.
func (f *Filter) typed() Iterator {
	switch ch := f.child.(type) {
	case ExtentIterator:
		return &extentFilter{Filter: f, child: ch}
	case CountIterator:
		return &countFilter{Filter: f, child: ch}
	case ScoreIterator:
		return &scoreFilter{Filter: f, child: ch}
	case DataIterator:
		return &dataFilter{Filter: f, child: ch}
	}
	return f
}

func (f *Filter) HasMatch(id int64) bool {
	if !f.child.HasMatch(id) {
		return false
	}
	holds := indicatorOf(f.cond, &ScoringContext{Document: id})
	return holds != f.reject
}

func (f *Filter) Indicator(c *ScoringContext) bool { return f.HasMatch(c.Document) }

type countFilter struct {
	*Filter
	child CountIterator
}

func (f *countFilter) Count(c *ScoringContext) int {
	if !f.HasMatch(c.Document) {
		return 0
	}
	return f.child.Count(c)
}

type extentFilter struct {
	*Filter
	child ExtentIterator
}

func (f *extentFilter) Count(c *ScoringContext) int {
	if !f.HasMatch(c.Document) {
		return 0
	}
	return f.child.Count(c)
}

func (f *extentFilter) Extents(c *ScoringContext) ExtentArray {
	if !f.HasMatch(c.Document) {
		return nil
	}
	return f.child.Extents(c)
}

type scoreFilter struct {
	*Filter
	child ScoreIterator
}

func (f *scoreFilter) Score(c *ScoringContext) float64 { return f.child.Score(c) }
func (f *scoreFilter) MaximumScore() float64            { return f.child.MaximumScore() }
func (f *scoreFilter) MinimumScore() float64            { return f.child.MinimumScore() }

type dataFilter struct {
	*Filter
	child DataIterator
}

func (f *dataFilter) Data(c *ScoringContext) any {
	if !f.HasMatch(c.Document) {
		return nil
	}
	return f.child.Data(c)
}

var (
	_ IndicatorIterator = (*All)(nil)
	_ IndicatorIterator = (*Any)(nil)
	_ ExtentIterator    = (*extentFilter)(nil)
	_ ScoreIterator     = (*scoreFilter)(nil)
)
