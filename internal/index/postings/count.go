package postings

import (
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// CountWriter writes term → document → frequency lists.
type CountWriter struct {
	*partWriter
}

func NewCountWriter(path string, opts WriterOptions) (*CountWriter, error) {
	p, err := newPartWriter(path, ClassCount, "counts", opts)
	if err != nil {
		return nil, err
	}
	return &CountWriter{partWriter: p}, nil
}

func (w *CountWriter) StartKey(key []byte) error { return w.startKey(key) }

func (w *CountWriter) AddPosting(doc int64, count int64) error {
	l, err := w.list()
	if err != nil {
		return err
	}
	if count <= 0 {
		return fmt.Errorf("%w: count %d for document %d", apperrors.ErrInvalidInput, count, doc)
	}
	if err := l.beginDocument(doc); err != nil {
		return err
	}
	l.data = vbyte.AppendInt64(l.data, count)
	l.addCount(count)
	return nil
}

func (w *CountWriter) Close() error { return w.close() }

type CountReader struct {
	*Part
}

func OpenCountReader(name, path string) (*CountReader, error) {
	p, err := OpenPart(name, path, ClassCount)
	if err != nil {
		return nil, err
	}
	return &CountReader{Part: p}, nil
}

func (r *CountReader) Iterator(key string) (*CountIterator, error) {
	value, err := r.value([]byte(key))
	if err != nil || value == nil {
		return nil, err
	}
	return NewCountIterator(key, value)
}

type CountIterator struct {
	cursor
	count int64
}

func NewCountIterator(key string, value []byte) (*CountIterator, error) {
	it := &CountIterator{}
	if err := it.init(key, value, it.readCount); err != nil {
		return nil, err
	}
	return it, nil
}

func (it *CountIterator) readCount(r *vbyte.Reader) (int64, error) {
	count, err := r.Int64()
	if err != nil {
		return 0, err
	}
	it.count = count
	return count, nil
}

func (it *CountIterator) Count(c *iterator.ScoringContext) int {
	if !it.HasMatch(c.Document) {
		return 0
	}
	return int(it.count)
}

// RawCount is the 64-bit count of the current entry.
func (it *CountIterator) RawCount() int64 {
	if it.done {
		return 0
	}
	return it.count
}

var _ iterator.CountIterator = (*CountIterator)(nil)
