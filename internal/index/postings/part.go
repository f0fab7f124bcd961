package postings

import (
	"bytes"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/btree"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// Reader classes recorded in each part's manifest.
const (
	ClassPosition     = "position"
	ClassCount        = "count"
	ClassWindow       = "window"
	ClassField        = "field"
	ClassSparse       = "sparse"
	ClassLengths      = "lengths"
	ClassNames        = "names"
	ClassNamesReverse = "names.reverse"
)

// Manifest keys shared by the codecs.
const (
	KeyReaderClass          = "readerClass"
	KeyWriterClass          = "writerClass"
	KeyDefaultOperator      = "defaultOperator"
	KeyCollectionLength     = "statistics/collectionLength"
	KeyVocabCount           = "statistics/vocabCount"
	KeyDocumentCount        = "statistics/documentCount"
	KeyHighestFrequency     = "statistics/highestFrequency"
	KeyHighestDocumentCount = "statistics/highestDocumentCount"
	KeySkipDistance         = "skipDistance"
	KeySkipResetDistance    = "skipResetDistance"
	KeyFieldFormats         = "tokenizer/formats"
)

// WriterOptions configures every posting-part writer.
type WriterOptions struct {
	BlockSize         int
	Skipping          bool
	SkipDistance      int
	SkipResetDistance int
	// DocumentCount is the number of documents in the collection. When zero
	// the writer falls back to the longest posting list.
	DocumentCount int64
	Manifest      map[string]any
}

func DefaultWriterOptions() WriterOptions {
	return WriterOptions{
		BlockSize:         btree.DefaultBlockSize,
		Skipping:          true,
		SkipDistance:      500,
		SkipResetDistance: 20,
	}
}

func (o WriterOptions) normalize() WriterOptions {
	d := DefaultWriterOptions()
	if o.BlockSize <= 0 {
		o.BlockSize = d.BlockSize
	}
	if o.SkipDistance <= 0 {
		o.SkipDistance = d.SkipDistance
	}
	if o.SkipResetDistance <= 0 {
		o.SkipResetDistance = d.SkipResetDistance
	}
	return o
}

// partWriter holds the state common to every keyed posting-list writer:
// the underlying BTree, the list being filled and the statistics that end
// up in the manifest.
type partWriter struct {
	bt      *btree.Writer
	opts    WriterOptions
	class   string
	current *listWriter
	lastKey []byte

	vocabCount           int64
	collectionLength     int64
	highestFrequency     int64
	highestDocumentCount int64
}

func newPartWriter(path, class, defaultOperator string, opts WriterOptions) (*partWriter, error) {
	opts = opts.normalize()
	bt, err := btree.NewWriter(path, btree.Options{BlockSize: opts.BlockSize})
	if err != nil {
		return nil, err
	}
	m := bt.Manifest()
	for k, v := range opts.Manifest {
		m.Set(k, v)
	}
	m.Set(KeyReaderClass, class)
	m.Set(KeyWriterClass, class)
	m.Set(KeyDefaultOperator, defaultOperator)
	if opts.Skipping {
		m.Set(KeySkipDistance, int64(opts.SkipDistance))
		m.Set(KeySkipResetDistance, int64(opts.SkipResetDistance))
	}
	return &partWriter{bt: bt, opts: opts, class: class}, nil
}

// startKey finishes the open list and begins a new one for key.
func (p *partWriter) startKey(key []byte) error {
	if len(key) > btree.MaxKeyLength {
		return fmt.Errorf("%w: %d bytes", apperrors.ErrKeyTooLong, len(key))
	}
	if p.lastKey != nil {
		switch c := bytes.Compare(p.lastKey, key); {
		case c == 0:
			return fmt.Errorf("%w: %q", apperrors.ErrDuplicateKey, key)
		case c > 0:
			return fmt.Errorf("%w: %q after %q", apperrors.ErrOutOfOrderKey, key, p.lastKey)
		}
	}
	if err := p.finishList(); err != nil {
		return err
	}
	p.lastKey = bytes.Clone(key)
	p.current = newListWriter(p.lastKey, p.opts)
	p.vocabCount++
	return nil
}

func (p *partWriter) list() (*listWriter, error) {
	if p.current == nil {
		return nil, fmt.Errorf("%w: posting added before any key", apperrors.ErrInvalidInput)
	}
	return p.current, nil
}

func (p *partWriter) finishList() error {
	l := p.current
	if l == nil {
		return nil
	}
	p.current = nil
	if l.header.documentCount == 0 {
		p.vocabCount--
		return nil
	}
	l.finish()
	p.collectionLength += l.header.totalCount
	if l.header.maximumCount > p.highestFrequency {
		p.highestFrequency = l.header.maximumCount
	}
	if l.header.documentCount > p.highestDocumentCount {
		p.highestDocumentCount = l.header.documentCount
	}
	return p.bt.AddElement(l)
}

func (p *partWriter) close() error {
	if err := p.finishList(); err != nil {
		p.bt.Close()
		return err
	}
	m := p.bt.Manifest()
	m.SetDefault(KeyCollectionLength, p.collectionLength)
	m.SetDefault(KeyVocabCount, p.vocabCount)
	m.Set(KeyHighestFrequency, p.highestFrequency)
	m.Set(KeyHighestDocumentCount, p.highestDocumentCount)
	if p.opts.DocumentCount > 0 {
		m.SetDefault(KeyDocumentCount, p.opts.DocumentCount)
	} else {
		m.SetDefault(KeyDocumentCount, p.highestDocumentCount)
	}
	return p.bt.Close()
}

// Part is an opened BTree file together with its reader class.
type Part struct {
	name  string
	class string
	bt    *btree.Reader
}

// OpenPart opens path and checks that its manifest names the expected
// reader class. An empty class accepts any part.
func OpenPart(name, path, class string) (*Part, error) {
	bt, err := btree.Open(path)
	if err != nil {
		return nil, err
	}
	got := bt.Manifest().String(KeyReaderClass, "")
	if class != "" && got != class {
		bt.Close()
		return nil, fmt.Errorf("%w: part %s has reader class %q, want %q", apperrors.ErrCorruptIndex, name, got, class)
	}
	return &Part{name: name, class: got, bt: bt}, nil
}

func (p *Part) Name() string { return p.name }

func (p *Part) Class() string { return p.class }

func (p *Part) Manifest() btree.Manifest { return p.bt.Manifest() }

func (p *Part) BTree() *btree.Reader { return p.bt }

func (p *Part) Close() error { return p.bt.Close() }

// value returns the raw list stored under key, or nil when absent.
func (p *Part) value(key []byte) ([]byte, error) {
	v, ok, err := p.bt.Get(key)
	if err != nil {
		return nil, fmt.Errorf("part %s key %q: %w", p.name, key, err)
	}
	if !ok {
		return nil, nil
	}
	return v, nil
}

// Keys lists every key in the part in order.
func (p *Part) Keys() ([]string, error) {
	it, err := p.bt.Iterator()
	if err != nil {
		return nil, err
	}
	var keys []string
	for !it.IsDone() {
		keys = append(keys, string(it.Key()))
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return keys, nil
}
