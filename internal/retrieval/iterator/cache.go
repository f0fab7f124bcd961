package iterator

import (
	"fmt"
	"sort"
)

// Materialized is a fully evaluated node kept in memory. Cursors over it
// are independent, so one Materialized can back many concurrent queries.
type Materialized struct {
	key     string
	docs    []int64
	counts  []int
	extents []ExtentArray
	scores  []float64
	max     float64
	min     float64
	kind    int
}

const (
	kindCount = iota
	kindExtent
	kindScore
)

// Materialize walks it to exhaustion and records its values. Score nodes
// keep the score of every matched document; unmatched documents read the
// node's minimum score from the cache.
func Materialize(key string, it Iterator) (*Materialized, error) {
	m := &Materialized{key: key}
	switch n := it.(type) {
	case ExtentIterator:
		m.kind = kindExtent
	case CountIterator:
		m.kind = kindCount
	case ScoreIterator:
		m.kind = kindScore
		m.max, m.min = n.MaximumScore(), n.MinimumScore()
	default:
		return nil, fmt.Errorf("materialize %s: unsupported iterator %T", key, it)
	}
	c := &ScoringContext{}
	for !it.IsDone() {
		doc := it.CurrentCandidate()
		if _, err := it.MoveTo(doc); err != nil {
			return nil, fmt.Errorf("materialize %s: %w", key, err)
		}
		if it.HasMatch(doc) {
			c.Document = doc
			m.docs = append(m.docs, doc)
			switch m.kind {
			case kindExtent:
				ext := it.(ExtentIterator).Extents(c)
				m.extents = append(m.extents, append(ExtentArray(nil), ext...))
				m.counts = append(m.counts, len(ext))
			case kindCount:
				m.counts = append(m.counts, it.(CountIterator).Count(c))
			case kindScore:
				m.scores = append(m.scores, it.(ScoreIterator).Score(c))
			}
		}
		if err := it.MovePast(doc); err != nil {
			return nil, fmt.Errorf("materialize %s: %w", key, err)
		}
	}
	return m, nil
}

func (m *Materialized) Key() string { return m.key }

func (m *Materialized) Len() int { return len(m.docs) }

// NodeStatistics is computed from the recorded counts. Score nodes report
// only their document frequency.
func (m *Materialized) NodeStatistics() NodeStatistics {
	stats := NodeStatistics{Key: m.key}
	for i := range m.docs {
		stats.NodeFrequency++
		if m.kind == kindScore {
			continue
		}
		n := int64(m.counts[i])
		stats.CollectionFrequency += n
		stats.MaximumCount = max(stats.MaximumCount, n)
	}
	return stats
}

// Cursor returns a fresh iterator over the recorded values with the same
// capability as the node that was materialized.
func (m *Materialized) Cursor() Iterator {
	base := &memCursor{m: m}
	switch m.kind {
	case kindExtent:
		return &memExtentCursor{memCursor: base}
	case kindScore:
		return &memScoreCursor{memCursor: base}
	}
	return &memCountCursor{memCursor: base}
}

type memCursor struct {
	m   *Materialized
	pos int
}

func (c *memCursor) CurrentCandidate() int64 {
	if c.pos >= len(c.m.docs) {
		return Done
	}
	return c.m.docs[c.pos]
}

func (c *memCursor) IsDone() bool { return c.pos >= len(c.m.docs) }

func (c *memCursor) MoveTo(id int64) (bool, error) {
	if c.CurrentCandidate() < id {
		rest := c.m.docs[c.pos:]
		c.pos += sort.Search(len(rest), func(i int) bool { return rest[i] >= id })
	}
	return c.HasMatch(id), nil
}

func (c *memCursor) MovePast(id int64) error {
	_, err := c.MoveTo(id + 1)
	return err
}

func (c *memCursor) HasMatch(id int64) bool { return c.pos < len(c.m.docs) && c.m.docs[c.pos] == id }

func (c *memCursor) HasAllCandidates() bool { return false }

func (c *memCursor) TotalEntries() int64 { return int64(len(c.m.docs)) }

func (c *memCursor) Reset() error {
	c.pos = 0
	return nil
}

func (c *memCursor) NodeStatistics() NodeStatistics { return c.m.NodeStatistics() }

type memCountCursor struct{ *memCursor }

func (c *memCountCursor) Count(sc *ScoringContext) int {
	if !c.HasMatch(sc.Document) {
		return 0
	}
	return c.m.counts[c.pos]
}

type memExtentCursor struct{ *memCursor }

func (c *memExtentCursor) Count(sc *ScoringContext) int {
	if !c.HasMatch(sc.Document) {
		return 0
	}
	return c.m.counts[c.pos]
}

func (c *memExtentCursor) Extents(sc *ScoringContext) ExtentArray {
	if !c.HasMatch(sc.Document) {
		return nil
	}
	return c.m.extents[c.pos]
}

type memScoreCursor struct{ *memCursor }

func (c *memScoreCursor) Score(sc *ScoringContext) float64 {
	if !c.HasMatch(sc.Document) {
		return c.m.min
	}
	return c.m.scores[c.pos]
}

func (c *memScoreCursor) MaximumScore() float64 { return c.m.max }
func (c *memScoreCursor) MinimumScore() float64 { return c.m.min }

var (
	_ CountIterator  = (*memCountCursor)(nil)
	_ ExtentIterator = (*memExtentCursor)(nil)
	_ ScoreIterator  = (*memScoreCursor)(nil)
	_ Statistics     = (*memCursor)(nil)
)
