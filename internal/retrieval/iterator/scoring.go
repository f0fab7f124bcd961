package iterator

import "math"

// ScoringStatistics are the collection and node counts a scoring function
// is parameterised with.
type ScoringStatistics struct {
	CollectionLength int64
	DocumentCount    int64
	// NodeFrequency is the number of documents the node matches.
	NodeFrequency int64
	// CollectionFrequency is the node's total count over the collection.
	CollectionFrequency int64
	MaximumCount        int64
}

func (s ScoringStatistics) averageLength() float64 {
	if s.DocumentCount == 0 {
		return 0
	}
	return float64(s.CollectionLength) / float64(s.DocumentCount)
}

// background is the collection probability of the node. Unseen nodes get
// half an occurrence.
func (s ScoringStatistics) background() float64 {
	if s.CollectionLength == 0 {
		return 0
	}
	if s.CollectionFrequency > 0 {
		return float64(s.CollectionFrequency) / float64(s.CollectionLength)
	}
	return 0.5 / float64(s.CollectionLength)
}

// ScoringFunction scores documents from a count child and document
// lengths. The count child alone drives it.
type ScoringFunction struct {
	conjunction
	counts  CountIterator
	lengths LengthsIterator
	score   func(count, length float64) float64
	max     float64
	min     float64
}

func newScoringFunction(counts CountIterator, lengths LengthsIterator, score func(count, length float64) float64) *ScoringFunction {
	it := &ScoringFunction{counts: counts, lengths: lengths, score: score}
	it.conjunction = newConjunction(it, []Iterator{counts, lengths})
	return it
}

func (it *ScoringFunction) HasMatch(id int64) bool { return it.counts.HasMatch(id) }

func (it *ScoringFunction) Score(c *ScoringContext) float64 {
	return it.score(float64(it.counts.Count(c)), float64(it.lengths.Length(c)))
}

func (it *ScoringFunction) MaximumScore() float64 { return it.max }
func (it *ScoringFunction) MinimumScore() float64 { return it.min }

// NewDirichlet scores log((count + mu·background) / (length + mu)).
func NewDirichlet(mu float64, stats ScoringStatistics, counts CountIterator, lengths LengthsIterator) *ScoringFunction {
	bg := stats.background()
	f := func(count, length float64) float64 {
		return math.Log((count + mu*bg) / (length + mu))
	}
	it := newScoringFunction(counts, lengths, f)
	maxCount := float64(stats.MaximumCount)
	it.max = f(maxCount, maxCount)
	it.min = f(0, 1)
	return it
}

// NewDirichletRaw is the Dirichlet-smoothed probability without the log.
func NewDirichletRaw(mu float64, stats ScoringStatistics, counts CountIterator, lengths LengthsIterator) *ScoringFunction {
	bg := stats.background()
	f := func(count, length float64) float64 {
		return (count + mu*bg) / (length + mu)
	}
	it := newScoringFunction(counts, lengths, f)
	it.max = 1
	it.min = 0
	return it
}

// NewJelinekMercer scores log((1-λ)·count/length + λ·background).
func NewJelinekMercer(lambda float64, stats ScoringStatistics, counts CountIterator, lengths LengthsIterator) *ScoringFunction {
	bg := stats.background()
	f := func(count, length float64) float64 {
		fg := 0.0
		if length > 0 {
			fg = count / length
		}
		return math.Log((1-lambda)*fg + lambda*bg)
	}
	it := newScoringFunction(counts, lengths, f)
	it.max = f(1, 1)
	it.min = f(0, 1)
	return it
}

// NewBM25 scores idf·count·(k+1) / (count + k·(1 - b + b·length/avgLength)).
func NewBM25(b, k float64, stats ScoringStatistics, counts CountIterator, lengths LengthsIterator) *ScoringFunction {
	idf := inverseDocumentFrequency(stats)
	avg := stats.averageLength()
	f := func(count, length float64) float64 {
		norm := 1 - b
		if avg > 0 {
			norm += b * length / avg
		}
		den := count + k*norm
		if den == 0 {
			return 0
		}
		return idf * count * (k + 1) / den
	}
	it := newScoringFunction(counts, lengths, f)
	maxCount := float64(stats.MaximumCount)
	it.max = f(maxCount, maxCount)
	it.min = 0
	return it
}

// NewDFR scores with the PL2 divergence-from-randomness model; c controls
// term frequency normalisation.
func NewDFR(c float64, stats ScoringStatistics, counts CountIterator, lengths LengthsIterator) *ScoringFunction {
	avg := stats.averageLength()
	freq := 0.0
	if stats.DocumentCount > 0 {
		freq = float64(stats.CollectionFrequency) / float64(stats.DocumentCount)
	}
	f := func(count, length float64) float64 {
		if count == 0 || length == 0 || freq == 0 {
			return 0
		}
		tfn := count * math.Log2(1+c*avg/length)
		return (tfn*math.Log2(tfn/freq) + (freq-tfn)*math.Log2E + 0.5*math.Log2(2*math.Pi*tfn)) / (tfn + 1)
	}
	it := newScoringFunction(counts, lengths, f)
	it.max = math.Inf(1)
	it.min = math.Inf(-1)
	return it
}

var _ ScoreIterator = (*ScoringFunction)(nil)
