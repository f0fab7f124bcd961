package postings

import (
	"math"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
)

// SparseFloatWriter writes key → document → float score lists, such as
// document priors.
type SparseFloatWriter struct {
	*partWriter
}

func NewSparseFloatWriter(path string, opts WriterOptions) (*SparseFloatWriter, error) {
	p, err := newPartWriter(path, ClassSparse, "scores", opts)
	if err != nil {
		return nil, err
	}
	return &SparseFloatWriter{partWriter: p}, nil
}

func (w *SparseFloatWriter) StartKey(key []byte) error { return w.startKey(key) }

func (w *SparseFloatWriter) AddPosting(doc int64, score float32) error {
	l, err := w.list()
	if err != nil {
		return err
	}
	if err := l.beginDocument(doc); err != nil {
		return err
	}
	l.data = vbyte.AppendFloat32(l.data, score)
	l.addCount(1)
	return nil
}

func (w *SparseFloatWriter) Close() error { return w.close() }

type SparseFloatReader struct {
	*Part
}

func OpenSparseFloatReader(name, path string) (*SparseFloatReader, error) {
	p, err := OpenPart(name, path, ClassSparse)
	if err != nil {
		return nil, err
	}
	return &SparseFloatReader{Part: p}, nil
}

func (r *SparseFloatReader) Iterator(key string) (*SparseFloatIterator, error) {
	value, err := r.value([]byte(key))
	if err != nil || value == nil {
		return nil, err
	}
	return NewSparseFloatIterator(key, value)
}

// SparseFloatIterator scores listed documents with their stored value and
// every other document with Default.
type SparseFloatIterator struct {
	cursor
	score   float32
	Default float64
	max     float64
	min     float64
	bounded bool
}

func NewSparseFloatIterator(key string, value []byte) (*SparseFloatIterator, error) {
	it := &SparseFloatIterator{}
	if err := it.init(key, value, it.readScore); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *SparseFloatIterator) readScore(r *vbyte.Reader) (int64, error) {
	f, err := r.Float32()
	if err != nil {
		return 0, err
	}
	it.score = f
	return 1, nil
}

func (it *SparseFloatIterator) Score(c *iterator.ScoringContext) float64 {
	if !it.HasMatch(c.Document) {
		return it.Default
	}
	return float64(it.score)
}

// bounds scans a private copy of the list once for its extreme values.
func (it *SparseFloatIterator) bounds() {
	if it.bounded {
		return
	}
	it.bounded = true
	it.max, it.min = math.Inf(-1), math.Inf(1)
	scan, err := NewSparseFloatIterator(it.key, it.value)
	if err != nil {
		it.max, it.min = math.Inf(1), math.Inf(-1)
		return
	}
	for !scan.IsDone() {
		s := float64(scan.score)
		it.max = math.Max(it.max, s)
		it.min = math.Min(it.min, s)
		if scan.Next() != nil {
			break
		}
	}
	it.max = math.Max(it.max, it.Default)
	it.min = math.Min(it.min, it.Default)
}

func (it *SparseFloatIterator) MaximumScore() float64 {
	it.bounds()
	return it.max
}

func (it *SparseFloatIterator) MinimumScore() float64 {
	it.bounds()
	return it.min
}

var _ iterator.ScoreIterator = (*SparseFloatIterator)(nil)
