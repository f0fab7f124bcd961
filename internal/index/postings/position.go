package postings

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// PositionWriter writes term → document → positions lists.
type PositionWriter struct {
	*partWriter
}

func NewPositionWriter(path string, opts WriterOptions) (*PositionWriter, error) {
	p, err := newPartWriter(path, ClassPosition, "extents", opts)
	if err != nil {
		return nil, err
	}
	return &PositionWriter{partWriter: p}, nil
}

// StartKey begins the list for a new term.
func (w *PositionWriter) StartKey(key []byte) error { return w.startKey(key) }

// AddPosting appends one document and its ascending token positions.
func (w *PositionWriter) AddPosting(doc int64, positions []int) error {
	l, err := w.list()
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return fmt.Errorf("%w: document %d of %q has no positions", apperrors.ErrInvalidInput, doc, l.key)
	}
	for i, p := range positions {
		if p < 0 || (i > 0 && p <= positions[i-1]) {
			return fmt.Errorf("%w: positions of document %d in %q not increasing", apperrors.ErrInvalidInput, doc, l.key)
		}
	}
	if err := l.beginDocument(doc); err != nil {
		return err
	}
	l.data = vbyte.AppendInt(l.data, len(positions))
	last := 0
	for _, p := range positions {
		l.data = vbyte.AppendInt(l.data, p-last)
		last = p
	}
	l.addCount(int64(len(positions)))
	return nil
}

func (w *PositionWriter) Close() error { return w.close() }

// PositionReader serves position lists.
type PositionReader struct {
	*Part
}

func OpenPositionReader(name, path string) (*PositionReader, error) {
	p, err := OpenPart(name, path, ClassPosition)
	if err != nil {
		return nil, err
	}
	return &PositionReader{Part: p}, nil
}

// Iterator returns a cursor over key's list, or nil when the key is absent.
func (r *PositionReader) Iterator(key string) (*PositionIterator, error) {
	value, err := r.value([]byte(key))
	if err != nil || value == nil {
		return nil, err
	}
	return NewPositionIterator(key, value)
}

// PositionIterator exposes counts and single-token extents.
type PositionIterator struct {
	cursor
	extents iterator.ExtentArray
}

func NewPositionIterator(key string, value []byte) (*PositionIterator, error) {
	it := &PositionIterator{}
	if err := it.init(key, value, it.readPositions); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *PositionIterator) readPositions(r *vbyte.Reader) (int64, error) {
	count, err := r.Int()
	if err != nil {
		return 0, err
	}
	if count < 0 || count > r.Len() {
		return 0, fmt.Errorf("position count %d out of range", count)
	}
	it.extents = it.extents[:0]
	pos := 0
	for i := 0; i < count; i++ {
		gap, err := r.Int()
		if err != nil {
			return 0, err
		}
		pos += gap
		it.extents = append(it.extents, iterator.Extent{Begin: pos, End: pos + 1})
	}
	return int64(count), nil
}

func (it *PositionIterator) Count(c *iterator.ScoringContext) int {
	if !it.HasMatch(c.Document) {
		return 0
	}
	return len(it.extents)
}

func (it *PositionIterator) Extents(c *iterator.ScoringContext) iterator.ExtentArray {
	if !it.HasMatch(c.Document) {
		return nil
	}
	return it.extents
}

var _ iterator.ExtentIterator = (*PositionIterator)(nil)
