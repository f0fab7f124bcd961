package iterator

import "math"

// Combine is the weighted sum of its score children. It matches any
// document one of them matches; children that do not match still
// contribute their background score.
type Combine struct {
	disjunction
	scorers []ScoreIterator
	weights []float64
}

// NewCombine weights children by weights, which are normalised to sum to
// one when normalize is set. A nil weights slice weights all equally.
func NewCombine(weights []float64, normalize bool, children ...ScoreIterator) *Combine {
	it := &Combine{scorers: children}
	iters := make([]Iterator, len(children))
	for i, ch := range children {
		iters[i] = ch
	}
	it.disjunction = newDisjunction(it, iters)
	it.weights = make([]float64, len(children))
	var sum float64
	for i := range children {
		w := 1.0
		if i < len(weights) {
			w = weights[i]
		}
		it.weights[i] = w
		sum += w
	}
	if normalize && sum != 0 {
		for i := range it.weights {
			it.weights[i] /= sum
		}
	}
	return it
}

func (it *Combine) Weights() []float64 { return it.weights }

func (it *Combine) Score(c *ScoringContext) float64 {
	var total float64
	for i, s := range it.scorers {
		total += it.weights[i] * s.Score(c)
	}
	return total
}

func (it *Combine) MaximumScore() float64 {
	var total float64
	for i, s := range it.scorers {
		if it.weights[i] >= 0 {
			total += it.weights[i] * s.MaximumScore()
		} else {
			total += it.weights[i] * s.MinimumScore()
		}
	}
	return total
}

func (it *Combine) MinimumScore() float64 {
	var total float64
	for i, s := range it.scorers {
		if it.weights[i] >= 0 {
			total += it.weights[i] * s.MinimumScore()
		} else {
			total += it.weights[i] * s.MaximumScore()
		}
	}
	return total
}

// transform wraps a single child and passes movement through.
type transform struct {
	disjunction
	child Iterator
}

func newTransform(self matcher, child Iterator) transform {
	t := transform{child: child}
	t.disjunction = newDisjunction(self, []Iterator{child})
	return t
}

// Scale multiplies its child's score by a constant.
type Scale struct {
	transform
	scorer ScoreIterator
	weight float64
}

func NewScale(weight float64, child ScoreIterator) *Scale {
	it := &Scale{scorer: child, weight: weight}
	it.transform = newTransform(it, child)
	return it
}

func (it *Scale) Score(c *ScoringContext) float64 { return it.weight * it.scorer.Score(c) }

func (it *Scale) MaximumScore() float64 {
	if it.weight < 0 {
		return it.weight * it.scorer.MinimumScore()
	}
	return it.weight * it.scorer.MaximumScore()
}

func (it *Scale) MinimumScore() float64 {
	if it.weight < 0 {
		return it.weight * it.scorer.MaximumScore()
	}
	return it.weight * it.scorer.MinimumScore()
}

// Log is the natural log of its child's score.
type Log struct {
	transform
	scorer ScoreIterator
}

func NewLog(child ScoreIterator) *Log {
	it := &Log{scorer: child}
	it.transform = newTransform(it, child)
	return it
}

func (it *Log) Score(c *ScoringContext) float64 { return math.Log(it.scorer.Score(c)) }
func (it *Log) MaximumScore() float64            { return math.Log(it.scorer.MaximumScore()) }
func (it *Log) MinimumScore() float64            { return math.Log(it.scorer.MinimumScore()) }

// Boost scores beta where its child holds and zero elsewhere.
type Boost struct {
	transform
	beta float64
}

func NewBoost(beta float64, child Iterator) *Boost {
	it := &Boost{beta: beta}
	it.transform = newTransform(it, child)
	return it
}

func (it *Boost) Score(c *ScoringContext) float64 {
	if indicatorOf(it.child, c) {
		return it.beta
	}
	return 0
}

func (it *Boost) MaximumScore() float64 { return max(it.beta, 0) }
func (it *Boost) MinimumScore() float64 { return min(it.beta, 0) }

// Threshold holds for documents whose child score reaches the threshold.
type Threshold struct {
	transform
	scorer    ScoreIterator
	threshold float64
}

func NewThreshold(threshold float64, child ScoreIterator) *Threshold {
	it := &Threshold{scorer: child, threshold: threshold}
	it.transform = newTransform(it, child)
	return it
}

func (it *Threshold) HasMatch(id int64) bool {
	return it.child.HasMatch(id) && it.scorer.Score(&ScoringContext{Document: id}) >= it.threshold
}

func (it *Threshold) Indicator(c *ScoringContext) bool { return it.HasMatch(c.Document) }

// IDF scores every matched document with the inverse document frequency
// of its child.
type IDF struct {
	transform
	idf float64
}

func NewIDF(stats ScoringStatistics, child Iterator) *IDF {
	it := &IDF{idf: inverseDocumentFrequency(stats)}
	it.transform = newTransform(it, child)
	return it
}

func (it *IDF) Score(*ScoringContext) float64 { return it.idf }
func (it *IDF) MaximumScore() float64        { return it.idf }
func (it *IDF) MinimumScore() float64        { return it.idf }

func inverseDocumentFrequency(stats ScoringStatistics) float64 {
	return math.Log(float64(stats.DocumentCount) / (float64(stats.NodeFrequency) + 0.5))
}

var (
	_ ScoreIterator     = (*Combine)(nil)
	_ ScoreIterator     = (*Scale)(nil)
	_ ScoreIterator     = (*Log)(nil)
	_ ScoreIterator     = (*Boost)(nil)
	_ ScoreIterator     = (*IDF)(nil)
	_ IndicatorIterator = (*Threshold)(nil)
)
