package postings

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// WindowWriter writes key → document → [begin,end) extent lists, used for
// document fields and precomputed windows.
type WindowWriter struct {
	*partWriter
}

func NewWindowWriter(path string, opts WriterOptions) (*WindowWriter, error) {
	p, err := newPartWriter(path, ClassWindow, "extents", opts)
	if err != nil {
		return nil, err
	}
	return &WindowWriter{partWriter: p}, nil
}

func (w *WindowWriter) StartKey(key []byte) error { return w.startKey(key) }

// AddPosting appends one document's extents, ordered by begin.
func (w *WindowWriter) AddPosting(doc int64, extents iterator.ExtentArray) error {
	l, err := w.list()
	if err != nil {
		return err
	}
	if len(extents) == 0 {
		return fmt.Errorf("%w: document %d of %q has no extents", apperrors.ErrInvalidInput, doc, l.key)
	}
	last := 0
	for _, e := range extents {
		if e.Begin < last || e.End <= e.Begin {
			return fmt.Errorf("%w: bad extent [%d,%d) in document %d of %q", apperrors.ErrInvalidInput, e.Begin, e.End, doc, l.key)
		}
		last = e.Begin
	}
	if err := l.beginDocument(doc); err != nil {
		return err
	}
	l.data = vbyte.AppendInt(l.data, len(extents))
	last = 0
	for _, e := range extents {
		l.data = vbyte.AppendInt(l.data, e.Begin-last)
		l.data = vbyte.AppendInt(l.data, e.End-e.Begin)
		last = e.Begin
	}
	l.addCount(int64(len(extents)))
	return nil
}

func (w *WindowWriter) Close() error { return w.close() }

type WindowReader struct {
	*Part
}

func OpenWindowReader(name, path string) (*WindowReader, error) {
	p, err := OpenPart(name, path, ClassWindow)
	if err != nil {
		return nil, err
	}
	return &WindowReader{Part: p}, nil
}

func (r *WindowReader) Iterator(key string) (*WindowIterator, error) {
	value, err := r.value([]byte(key))
	if err != nil || value == nil {
		return nil, err
	}
	return NewWindowIterator(key, value)
}

type WindowIterator struct {
	cursor
	extents iterator.ExtentArray
}

func NewWindowIterator(key string, value []byte) (*WindowIterator, error) {
	it := &WindowIterator{}
	if err := it.init(key, value, it.readExtents); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *WindowIterator) readExtents(r *vbyte.Reader) (int64, error) {
	count, err := r.Int()
	if err != nil {
		return 0, err
	}
	if count < 0 || count > r.Len() {
		return 0, fmt.Errorf("extent count %d out of range", count)
	}
	it.extents = it.extents[:0]
	begin := 0
	for i := 0; i < count; i++ {
		gap, err := r.Int()
		if err != nil {
			return 0, err
		}
		width, err := r.Int()
		if err != nil {
			return 0, err
		}
		begin += gap
		it.extents = append(it.extents, iterator.Extent{Begin: begin, End: begin + width})
	}
	return int64(count), nil
}

func (it *WindowIterator) Count(c *iterator.ScoringContext) int {
	if !it.HasMatch(c.Document) {
		return 0
	}
	return len(it.extents)
}

func (it *WindowIterator) Extents(c *iterator.ScoringContext) iterator.ExtentArray {
	if !it.HasMatch(c.Document) {
		return nil
	}
	return it.extents
}

var _ iterator.ExtentIterator = (*WindowIterator)(nil)
