package postings

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/btree"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// maxLengthsRange bounds the dense array a single field may span.
const maxLengthsRange = 1 << 28

// FieldStatistics summarises the lengths of one field across the part.
type FieldStatistics struct {
	Field                 string  `json:"field"`
	CollectionLength      int64   `json:"collectionLength"`
	DocumentCount         int64   `json:"documentCount"`
	NonZeroLengthDocCount int64   `json:"nonZeroLengthDocCount"`
	MaxLength             int64   `json:"maxLength"`
	MinLength             int64   `json:"minLength"`
	AvgLength             float64 `json:"avgLength"`
	FirstDocID            int64   `json:"firstDocId"`
	LastDocID             int64   `json:"lastDocId"`
}

// Add folds other into s, as when summing across shards.
func (s FieldStatistics) Add(other FieldStatistics) FieldStatistics {
	if other.DocumentCount == 0 {
		return s
	}
	if s.DocumentCount == 0 {
		return other
	}
	s.CollectionLength += other.CollectionLength
	s.DocumentCount += other.DocumentCount
	s.NonZeroLengthDocCount += other.NonZeroLengthDocCount
	s.MaxLength = max(s.MaxLength, other.MaxLength)
	s.MinLength = min(s.MinLength, other.MinLength)
	s.FirstDocID = min(s.FirstDocID, other.FirstDocID)
	s.LastDocID = max(s.LastDocID, other.LastDocID)
	s.AvgLength = float64(s.CollectionLength) / float64(s.DocumentCount)
	return s
}

type docLength struct {
	doc    int64
	length int32
}

// LengthsWriter buffers per-field document lengths and writes one dense
// array per field when closed. Documents may arrive in any order.
type LengthsWriter struct {
	bt     *btree.Writer
	fields map[string][]docLength
}

func NewLengthsWriter(path string, opts WriterOptions) (*LengthsWriter, error) {
	opts = opts.normalize()
	bt, err := btree.NewWriter(path, btree.Options{BlockSize: opts.BlockSize})
	if err != nil {
		return nil, err
	}
	m := bt.Manifest()
	for k, v := range opts.Manifest {
		m.Set(k, v)
	}
	m.Set(KeyReaderClass, ClassLengths)
	m.Set(KeyWriterClass, ClassLengths)
	m.Set(KeyDefaultOperator, "lengths")
	return &LengthsWriter{bt: bt, fields: make(map[string][]docLength)}, nil
}

func (w *LengthsWriter) Add(field string, doc int64, length int) error {
	if doc < 0 || length < 0 || length > math.MaxInt32 {
		return fmt.Errorf("%w: length %d for document %d", apperrors.ErrInvalidInput, length, doc)
	}
	if len(field) > btree.MaxKeyLength {
		return fmt.Errorf("%w: field %q", apperrors.ErrKeyTooLong, field)
	}
	w.fields[field] = append(w.fields[field], docLength{doc: doc, length: int32(length)})
	return nil
}

func (w *LengthsWriter) Close() error {
	names := make([]string, 0, len(w.fields))
	for f := range w.fields {
		names = append(names, f)
	}
	sort.Strings(names)

	var documentCount, collectionLength int64
	for _, f := range names {
		value, stats, err := encodeLengths(f, w.fields[f])
		if err != nil {
			w.bt.Close()
			return err
		}
		if err := w.bt.Add([]byte(f), value); err != nil {
			w.bt.Close()
			return err
		}
		documentCount = max(documentCount, stats.DocumentCount)
		collectionLength += stats.CollectionLength
	}
	m := w.bt.Manifest()
	m.SetDefault(KeyDocumentCount, documentCount)
	m.SetDefault(KeyCollectionLength, collectionLength)
	m.Set(KeyVocabCount, int64(len(names)))
	return w.bt.Close()
}

// encodeLengths lays out a field value as vbyte statistics followed by
// 4-byte big-endian lengths for every id in [firstDoc, lastDoc].
func encodeLengths(field string, entries []docLength) ([]byte, FieldStatistics, error) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].doc < entries[j].doc })
	stats := FieldStatistics{Field: field, MinLength: math.MaxInt64}
	for i, e := range entries {
		if i > 0 && entries[i-1].doc == e.doc {
			return nil, stats, fmt.Errorf("%w: document %d has two lengths for field %q", apperrors.ErrDuplicateKey, e.doc, field)
		}
		l := int64(e.length)
		stats.CollectionLength += l
		stats.DocumentCount++
		if l > 0 {
			stats.NonZeroLengthDocCount++
		}
		stats.MaxLength = max(stats.MaxLength, l)
		stats.MinLength = min(stats.MinLength, l)
	}
	stats.FirstDocID = entries[0].doc
	stats.LastDocID = entries[len(entries)-1].doc
	span := stats.LastDocID - stats.FirstDocID + 1
	if span > maxLengthsRange {
		return nil, stats, fmt.Errorf("%w: field %q spans %d document ids", apperrors.ErrInvalidInput, field, span)
	}

	buf := vbyte.AppendInt64(nil, stats.CollectionLength)
	buf = vbyte.AppendInt64(buf, stats.DocumentCount)
	buf = vbyte.AppendInt64(buf, stats.NonZeroLengthDocCount)
	buf = vbyte.AppendInt64(buf, stats.MaxLength)
	buf = vbyte.AppendInt64(buf, stats.MinLength)
	buf = vbyte.AppendInt64(buf, stats.FirstDocID)
	buf = vbyte.AppendInt64(buf, stats.LastDocID)
	dense := make([]byte, 4*span)
	for _, e := range entries {
		binary.BigEndian.PutUint32(dense[4*(e.doc-stats.FirstDocID):], uint32(e.length))
	}
	stats.AvgLength = float64(stats.CollectionLength) / float64(stats.DocumentCount)
	return append(buf, dense...), stats, nil
}

func decodeLengths(field string, value []byte) (FieldStatistics, []byte, error) {
	r := vbyte.NewReader(value)
	stats := FieldStatistics{Field: field}
	for _, dst := range []*int64{
		&stats.CollectionLength, &stats.DocumentCount, &stats.NonZeroLengthDocCount,
		&stats.MaxLength, &stats.MinLength, &stats.FirstDocID, &stats.LastDocID,
	} {
		v, err := r.Int64()
		if err != nil {
			return stats, nil, fmt.Errorf("%w: lengths of %q: %v", apperrors.ErrCorruptIndex, field, err)
		}
		*dst = v
	}
	dense := value[r.Pos():]
	span := stats.LastDocID - stats.FirstDocID + 1
	if span <= 0 || int64(len(dense)) != 4*span || stats.DocumentCount <= 0 {
		return stats, nil, fmt.Errorf("%w: lengths of %q hold %d bytes for %d documents", apperrors.ErrCorruptIndex, field, len(dense), span)
	}
	stats.AvgLength = float64(stats.CollectionLength) / float64(stats.DocumentCount)
	return stats, dense, nil
}

type LengthsReader struct {
	*Part
}

func OpenLengthsReader(name, path string) (*LengthsReader, error) {
	p, err := OpenPart(name, path, ClassLengths)
	if err != nil {
		return nil, err
	}
	return &LengthsReader{Part: p}, nil
}

// FieldStatistics returns the statistics of field, or ErrPartNotFound when
// the part has no lengths for it.
func (r *LengthsReader) FieldStatistics(field string) (FieldStatistics, error) {
	value, err := r.value([]byte(field))
	if err != nil {
		return FieldStatistics{}, err
	}
	if value == nil {
		return FieldStatistics{}, fmt.Errorf("%w: no lengths for field %q", apperrors.ErrPartNotFound, field)
	}
	stats, _, err := decodeLengths(field, value)
	return stats, err
}

func (r *LengthsReader) Iterator(field string) (*LengthsIterator, error) {
	value, err := r.value([]byte(field))
	if err != nil || value == nil {
		return nil, err
	}
	return NewLengthsIterator(field, value)
}

// LengthsIterator has a value for every document in [FirstDocID, LastDocID].
// Length reads any document directly; ids outside the range have length 0.
type LengthsIterator struct {
	stats   FieldStatistics
	dense   []byte
	current int64
}

func NewLengthsIterator(field string, value []byte) (*LengthsIterator, error) {
	stats, dense, err := decodeLengths(field, value)
	if err != nil {
		return nil, err
	}
	return &LengthsIterator{stats: stats, dense: dense, current: stats.FirstDocID}, nil
}

func (it *LengthsIterator) Statistics() FieldStatistics { return it.stats }

func (it *LengthsIterator) Field() string { return it.stats.Field }

func (it *LengthsIterator) CurrentCandidate() int64 { return it.current }

func (it *LengthsIterator) IsDone() bool { return it.current > it.stats.LastDocID }

func (it *LengthsIterator) MoveTo(id int64) (bool, error) {
	if id > it.current {
		it.current = id
		if it.current > it.stats.LastDocID {
			it.current = iterator.Done
		}
	}
	return it.HasMatch(id), nil
}

func (it *LengthsIterator) MovePast(id int64) error {
	if id == iterator.Done {
		it.current = iterator.Done
		return nil
	}
	_, err := it.MoveTo(id + 1)
	return err
}

func (it *LengthsIterator) HasMatch(id int64) bool {
	return id == it.current && !it.IsDone()
}

func (it *LengthsIterator) HasAllCandidates() bool { return true }

func (it *LengthsIterator) TotalEntries() int64 { return it.stats.DocumentCount }

func (it *LengthsIterator) Reset() error {
	it.current = it.stats.FirstDocID
	return nil
}

func (it *LengthsIterator) Length(c *iterator.ScoringContext) int {
	return it.LengthOf(c.Document)
}

func (it *LengthsIterator) LengthOf(doc int64) int {
	if doc < it.stats.FirstDocID || doc > it.stats.LastDocID {
		return 0
	}
	i := 4 * (doc - it.stats.FirstDocID)
	return int(binary.BigEndian.Uint32(it.dense[i:]))
}

var _ iterator.LengthsIterator = (*LengthsIterator)(nil)
