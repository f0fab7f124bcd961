package postings

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/btree"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// DocKey is the 8-byte big-endian key of a document id, so that byte order
// and numeric order agree.
func DocKey(doc int64) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(doc))
}

func docFromKey(key []byte) (int64, error) {
	if len(key) != 8 {
		return 0, fmt.Errorf("%w: document key of %d bytes", apperrors.ErrCorruptIndex, len(key))
	}
	return int64(binary.BigEndian.Uint64(key)), nil
}

type docName struct {
	doc  int64
	name string
}

// NamesWriter writes the id → name part as documents arrive and the
// name → id part, sorted by name, when closed.
type NamesWriter struct {
	forward *btree.Writer
	reverse *btree.Writer
	pairs   []docName
	lastDoc int64
}

func NewNamesWriter(namesPath, reversePath string, opts WriterOptions) (*NamesWriter, error) {
	opts = opts.normalize()
	forward, err := btree.NewWriter(namesPath, btree.Options{BlockSize: opts.BlockSize})
	if err != nil {
		return nil, err
	}
	reverse, err := btree.NewWriter(reversePath, btree.Options{BlockSize: opts.BlockSize})
	if err != nil {
		forward.Close()
		return nil, err
	}
	forward.Manifest().Set(KeyReaderClass, ClassNames)
	forward.Manifest().Set(KeyWriterClass, ClassNames)
	reverse.Manifest().Set(KeyReaderClass, ClassNamesReverse)
	reverse.Manifest().Set(KeyWriterClass, ClassNamesReverse)
	return &NamesWriter{forward: forward, reverse: reverse, lastDoc: -1}, nil
}

// Add records name for doc. Ids must increase.
func (w *NamesWriter) Add(doc int64, name string) error {
	if doc < 0 {
		return fmt.Errorf("%w: negative document id %d", apperrors.ErrInvalidInput, doc)
	}
	if doc <= w.lastDoc {
		return fmt.Errorf("%w: document %d after %d", apperrors.ErrOutOfOrderKey, doc, w.lastDoc)
	}
	if len(name) > btree.MaxKeyLength {
		return fmt.Errorf("%w: document name %q", apperrors.ErrKeyTooLong, name)
	}
	if err := w.forward.Add(DocKey(doc), []byte(name)); err != nil {
		return err
	}
	w.lastDoc = doc
	w.pairs = append(w.pairs, docName{doc: doc, name: name})
	return nil
}

func (w *NamesWriter) Close() error {
	count := int64(len(w.pairs))
	w.forward.Manifest().Set(KeyDocumentCount, count)
	w.reverse.Manifest().Set(KeyDocumentCount, count)
	ferr := w.forward.Close()

	sort.SliceStable(w.pairs, func(i, j int) bool { return w.pairs[i].name < w.pairs[j].name })
	for i, p := range w.pairs {
		if i > 0 && w.pairs[i-1].name == p.name {
			w.reverse.Close()
			return fmt.Errorf("%w: documents %d and %d share name %q", apperrors.ErrDuplicateKey, w.pairs[i-1].doc, p.doc, p.name)
		}
		if err := w.reverse.Add([]byte(p.name), DocKey(p.doc)); err != nil {
			w.reverse.Close()
			return err
		}
	}
	if err := w.reverse.Close(); err != nil {
		return err
	}
	return ferr
}

// NamesReader maps document ids to names.
type NamesReader struct {
	*Part
}

func OpenNamesReader(name, path string) (*NamesReader, error) {
	p, err := OpenPart(name, path, ClassNames)
	if err != nil {
		return nil, err
	}
	return &NamesReader{Part: p}, nil
}

// Name returns the name of doc and whether it exists.
func (r *NamesReader) Name(doc int64) (string, bool, error) {
	v, err := r.value(DocKey(doc))
	if err != nil || v == nil {
		return "", false, err
	}
	return string(v), true, nil
}

// Names resolves ascending ids in a single forward pass. Missing ids map
// to the empty string.
func (r *NamesReader) Names(docs []int64) ([]string, error) {
	out := make([]string, len(docs))
	it, err := r.bt.Iterator()
	if err != nil {
		return nil, err
	}
	for i, doc := range docs {
		if i > 0 && doc < docs[i-1] {
			return nil, fmt.Errorf("%w: ids not ascending at %d", apperrors.ErrInvalidInput, doc)
		}
		key := DocKey(doc)
		found, err := it.Find(key)
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", r.name, err)
		}
		if !found {
			continue
		}
		v, err := it.Value()
		if err != nil {
			return nil, fmt.Errorf("part %s: %w", r.name, err)
		}
		out[i] = string(v)
	}
	return out, nil
}

// NamesReverseReader maps names back to document ids.
type NamesReverseReader struct {
	*Part
}

func OpenNamesReverseReader(name, path string) (*NamesReverseReader, error) {
	p, err := OpenPart(name, path, ClassNamesReverse)
	if err != nil {
		return nil, err
	}
	return &NamesReverseReader{Part: p}, nil
}

func (r *NamesReverseReader) ID(name string) (int64, bool, error) {
	v, err := r.value([]byte(name))
	if err != nil || v == nil {
		return 0, false, err
	}
	doc, err := docFromKey(v)
	if err != nil {
		return 0, false, err
	}
	return doc, true, nil
}

// Prefix lists the ids of every name starting with prefix, in name order.
func (r *NamesReverseReader) Prefix(prefix string) ([]int64, error) {
	it, err := r.bt.Iterator()
	if err != nil {
		return nil, err
	}
	if err := it.SkipTo([]byte(prefix)); err != nil {
		return nil, err
	}
	var docs []int64
	for !it.IsDone() && bytes.HasPrefix(it.Key(), []byte(prefix)) {
		v, err := it.Value()
		if err != nil {
			return nil, err
		}
		doc, err := docFromKey(v)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
		if err := it.Next(); err != nil {
			return nil, err
		}
	}
	return docs, nil
}
