// Package iterator defines the candidate-iterator contract shared by every
// posting-list reader and every composed query operator, together with the
// composed iterators themselves.
//
// Iterators advance document-at-a-time. Callers position a tree with MoveTo
// or MovePast on the root, then read per-document values through a
// ScoringContext that names the document under evaluation.
package iterator

import (
	"math"
)

// Done is the candidate reported by an exhausted iterator.
const Done int64 = math.MaxInt64

// ScoringContext carries the document currently under evaluation.
type ScoringContext struct {
	Document int64
}

// Iterator is the contract every leaf and composed iterator satisfies.
type Iterator interface {
	// CurrentCandidate is the document the iterator is positioned on, or Done.
	CurrentCandidate() int64
	IsDone() bool
	// MoveTo advances to the first candidate ≥ id and reports whether id
	// itself matches.
	MoveTo(id int64) (bool, error)
	// MovePast advances strictly beyond id.
	MovePast(id int64) error
	// HasMatch reports whether the iterator sits exactly on id and matches it.
	HasMatch(id int64) bool
	// HasAllCandidates is true for iterators that have a value for every
	// document (lengths, priors). They never drive a merge.
	HasAllCandidates() bool
	TotalEntries() int64
	Reset() error
}

type CountIterator interface {
	Iterator
	Count(c *ScoringContext) int
}

type ExtentIterator interface {
	CountIterator
	Extents(c *ScoringContext) ExtentArray
}

type ScoreIterator interface {
	Iterator
	Score(c *ScoringContext) float64
	MaximumScore() float64
	MinimumScore() float64
}

type IndicatorIterator interface {
	Iterator
	Indicator(c *ScoringContext) bool
}

type LengthsIterator interface {
	Iterator
	Length(c *ScoringContext) int
}

type DataIterator interface {
	Iterator
	Data(c *ScoringContext) any
}

// Statistics is implemented by leaves that know their aggregate counts
// without a scan.
type Statistics interface {
	NodeStatistics() NodeStatistics
}

// NodeStatistics are the per-node counts scoring functions need.
type NodeStatistics struct {
	Key                 string `json:"key"`
	NodeFrequency       int64  `json:"nodeFrequency"`
	CollectionFrequency int64  `json:"collectionFrequency"`
	MaximumCount        int64  `json:"maximumCount"`
}

// Add folds other into s, as when summing statistics across shards.
func (s NodeStatistics) Add(other NodeStatistics) NodeStatistics {
	s.NodeFrequency += other.NodeFrequency
	s.CollectionFrequency += other.CollectionFrequency
	if other.MaximumCount > s.MaximumCount {
		s.MaximumCount = other.MaximumCount
	}
	return s
}

// Extent is a half-open token span [Begin, End).
type Extent struct {
	Begin int
	End   int
}

func (e Extent) Contains(o Extent) bool {
	return e.Begin <= o.Begin && o.End <= e.End
}

// ExtentArray holds the extents of one document, ordered by Begin.
type ExtentArray []Extent

// Collect walks it and computes its statistics. The iterator is left
// exhausted; callers pass a private instance.
func Collect(it CountIterator) (NodeStatistics, error) {
	var stats NodeStatistics
	c := &ScoringContext{}
	for !it.IsDone() {
		doc := it.CurrentCandidate()
		c.Document = doc
		if it.HasMatch(doc) {
			count := int64(it.Count(c))
			if count > 0 {
				stats.NodeFrequency++
				stats.CollectionFrequency += count
				if count > stats.MaximumCount {
					stats.MaximumCount = count
				}
			}
		}
		if err := it.MovePast(doc); err != nil {
			return stats, err
		}
	}
	return stats, nil
}
