// Package postings implements the posting-list codecs stored as values in
// BTree parts: position lists, count lists, window (extent) lists, typed
// field values, sparse float scores, plus the lengths and names parts that
// scoring and result presentation depend on.
//
// Every list is a header, a data stream of vbyte(doc gap) + inline payload
// entries, and an optional skip stream. A skip record is written every
// skipDistance entries and holds the document id, the byte offset of the
// next entry in the data stream, and the running aggregate count. Every
// skipResetDistance-th record stores absolute values; the rest are deltas.
package postings

import (
	"fmt"
	"io"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/vbyte"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

const (
	optHasSkips    = 1 << 0
	optHasMaxCount = 1 << 1
)

type listHeader struct {
	options           uint64
	documentCount     int64
	totalCount        int64
	maximumCount      int64
	skipDistance      int64
	skipResetDistance int64
	skipCount         int64
	skipLength        int64
	dataLength        int64
}

func (h *listHeader) encode() []byte {
	buf := vbyte.AppendUint64(nil, h.options)
	buf = vbyte.AppendInt64(buf, h.documentCount)
	buf = vbyte.AppendInt64(buf, h.totalCount)
	if h.options&optHasMaxCount != 0 {
		buf = vbyte.AppendInt64(buf, h.maximumCount)
	}
	if h.options&optHasSkips != 0 {
		buf = vbyte.AppendInt64(buf, h.skipDistance)
		buf = vbyte.AppendInt64(buf, h.skipResetDistance)
		buf = vbyte.AppendInt64(buf, h.skipCount)
		buf = vbyte.AppendInt64(buf, h.skipLength)
	}
	return vbyte.AppendInt64(buf, h.dataLength)
}

func decodeHeader(r *vbyte.Reader) (listHeader, error) {
	var h listHeader
	var err error
	read := func(dst *int64) {
		if err == nil {
			*dst, err = r.Int64()
		}
	}
	if h.options, err = r.Uint64(); err != nil {
		return h, err
	}
	read(&h.documentCount)
	read(&h.totalCount)
	if h.options&optHasMaxCount != 0 {
		read(&h.maximumCount)
	}
	if h.options&optHasSkips != 0 {
		read(&h.skipDistance)
		read(&h.skipResetDistance)
		read(&h.skipCount)
		read(&h.skipLength)
	}
	read(&h.dataLength)
	if err != nil {
		return h, err
	}
	if h.documentCount < 0 || h.dataLength < 0 || h.skipLength < 0 || h.skipCount < 0 {
		return h, fmt.Errorf("negative list header field")
	}
	if h.options&optHasSkips != 0 && (h.skipDistance <= 0 || h.skipResetDistance <= 0) {
		return h, fmt.Errorf("bad skip parameters %d/%d", h.skipDistance, h.skipResetDistance)
	}
	return h, nil
}

// listWriter accumulates one posting list. It is the btree.Element for its
// key once finish has been called.
type listWriter struct {
	key    []byte
	header listHeader
	data   []byte
	skips  []byte

	skipping    bool
	lastDoc     int64
	aggregate   int64
	lastSkipDoc int64
	absOffset   int64
	absAgg      int64
	encoded     []byte
}

func newListWriter(key []byte, opts WriterOptions) *listWriter {
	l := &listWriter{key: key, skipping: opts.Skipping, lastDoc: -1}
	l.header.skipDistance = int64(opts.SkipDistance)
	l.header.skipResetDistance = int64(opts.SkipResetDistance)
	l.header.options = optHasMaxCount
	return l
}

// beginDocument appends the document gap, recording a skip first when the
// previous skipDistance entries are complete.
func (l *listWriter) beginDocument(doc int64) error {
	if doc < 0 {
		return fmt.Errorf("%w: negative document id %d for key %q", apperrors.ErrInvalidInput, doc, l.key)
	}
	if doc <= l.lastDoc {
		return fmt.Errorf("%w: document %d after %d in key %q", apperrors.ErrOutOfOrderKey, doc, l.lastDoc, l.key)
	}
	n := l.header.documentCount
	if l.skipping && n > 0 && n%l.header.skipDistance == 0 {
		l.addSkip()
	}
	gap := doc
	if l.lastDoc >= 0 {
		gap = doc - l.lastDoc
	}
	l.data = vbyte.AppendInt64(l.data, gap)
	l.lastDoc = doc
	l.header.documentCount++
	return nil
}

func (l *listWriter) addSkip() {
	offset := int64(len(l.data))
	l.skips = vbyte.AppendInt64(l.skips, l.lastDoc-l.lastSkipDoc)
	if l.header.skipCount%l.header.skipResetDistance == 0 {
		l.skips = vbyte.AppendInt64(l.skips, offset)
		l.skips = vbyte.AppendInt64(l.skips, l.aggregate)
		l.absOffset = offset
		l.absAgg = l.aggregate
	} else {
		l.skips = vbyte.AppendInt64(l.skips, offset-l.absOffset)
		l.skips = vbyte.AppendInt64(l.skips, l.aggregate-l.absAgg)
	}
	l.lastSkipDoc = l.lastDoc
	l.header.skipCount++
}

// addCount records the per-document count that feeds the aggregate,
// total and maximum statistics.
func (l *listWriter) addCount(count int64) {
	l.aggregate += count
	l.header.totalCount += count
	if count > l.header.maximumCount {
		l.header.maximumCount = count
	}
}

func (l *listWriter) finish() {
	if l.header.skipCount > 0 {
		l.header.options |= optHasSkips
		l.header.skipLength = int64(len(l.skips))
	} else {
		l.skips = nil
	}
	l.header.dataLength = int64(len(l.data))
	l.encoded = l.header.encode()
}

func (l *listWriter) Key() []byte { return l.key }

func (l *listWriter) DataLength() int64 {
	return int64(len(l.encoded) + len(l.data) + len(l.skips))
}

func (l *listWriter) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, part := range [][]byte{l.encoded, l.data, l.skips} {
		n, err := w.Write(part)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// skipState is the cursor over a list's skip stream. The next record is
// decoded ahead of time so moveTo can compare against it.
type skipState struct {
	in       vbyte.Reader
	distance int64
	reset    int64
	total    int64
	read     int64

	nextDoc       int64
	nextOffset    int64
	nextAggregate int64
	absOffset     int64
	absAggregate  int64
}

func (s *skipState) hasNext() bool { return s.read < s.total }

// load decodes record s.read into the next* fields.
func (s *skipState) load() error {
	if !s.hasNext() {
		s.nextDoc = iterator.Done
		return nil
	}
	gap, err := s.in.Int64()
	if err != nil {
		return err
	}
	offset, err := s.in.Int64()
	if err != nil {
		return err
	}
	agg, err := s.in.Int64()
	if err != nil {
		return err
	}
	s.nextDoc += gap
	if s.read%s.reset == 0 {
		s.absOffset, s.absAggregate = offset, agg
		s.nextOffset, s.nextAggregate = offset, agg
	} else {
		s.nextOffset, s.nextAggregate = s.absOffset+offset, s.absAggregate+agg
	}
	return nil
}

// cursor walks a list's data stream. Codec iterators embed it and supply
// readPayload to decode the bytes that follow each document gap.
type cursor struct {
	key    string
	value  []byte
	header listHeader
	data   vbyte.Reader
	skip   *skipState

	index     int64
	current   int64
	aggregate int64
	done      bool

	readPayload func(r *vbyte.Reader) (int64, error)
}

func (c *cursor) init(key string, value []byte, readPayload func(*vbyte.Reader) (int64, error)) error {
	c.key = key
	c.value = value
	c.readPayload = readPayload
	return c.reset()
}

func (c *cursor) corrupt(err error) error {
	return fmt.Errorf("%w: posting list %q entry %d: %v", apperrors.ErrCorruptIndex, c.key, c.index, err)
}

func (c *cursor) reset() error {
	r := vbyte.NewReader(c.value)
	h, err := decodeHeader(r)
	if err != nil {
		return c.corrupt(err)
	}
	start := int64(r.Pos())
	if start+h.dataLength+h.skipLength != int64(len(c.value)) {
		return c.corrupt(fmt.Errorf("stream lengths %d+%d do not match value of %d bytes", h.dataLength, h.skipLength, len(c.value)-int(start)))
	}
	c.header = h
	c.data = *vbyte.NewReader(c.value[start : start+h.dataLength])
	c.skip = nil
	if h.options&optHasSkips != 0 {
		c.skip = &skipState{
			in:       *vbyte.NewReader(c.value[start+h.dataLength:]),
			distance: h.skipDistance,
			reset:    h.skipResetDistance,
			total:    h.skipCount,
		}
		if err := c.skip.load(); err != nil {
			return c.corrupt(err)
		}
	}
	c.index = 0
	c.current = 0
	c.aggregate = 0
	c.done = false
	return c.next()
}

// next decodes the following entry, or marks the cursor done.
func (c *cursor) next() error {
	if c.index >= c.header.documentCount {
		c.done = true
		c.current = iterator.Done
		return nil
	}
	gap, err := c.data.Int64()
	if err != nil {
		return c.corrupt(err)
	}
	if c.index == 0 {
		c.current = gap
	} else {
		c.current += gap
	}
	count, err := c.readPayload(&c.data)
	if err != nil {
		return c.corrupt(err)
	}
	c.aggregate += count
	c.index++
	return nil
}

// moveTo positions the cursor on the first entry ≥ target, jumping through
// the skip stream before decoding linearly.
func (c *cursor) moveTo(target int64) error {
	if c.done || target <= c.current {
		return nil
	}
	if c.skip != nil && c.skip.hasNext() && c.skip.nextDoc < target {
		var (
			jumped              bool
			doc, offset, agg, n int64
		)
		for c.skip.hasNext() && c.skip.nextDoc < target {
			if c.skip.nextDoc > c.current {
				jumped = true
				doc, offset, agg = c.skip.nextDoc, c.skip.nextOffset, c.skip.nextAggregate
				n = (c.skip.read + 1) * c.skip.distance
			}
			c.skip.read++
			if err := c.skip.load(); err != nil {
				return c.corrupt(err)
			}
		}
		if jumped {
			if err := c.data.Seek(int(offset)); err != nil {
				return c.corrupt(err)
			}
			c.current = doc
			c.index = n
			c.aggregate = agg
		}
	}
	for !c.done && c.current < target {
		if err := c.next(); err != nil {
			return err
		}
	}
	return nil
}

func (c *cursor) CurrentCandidate() int64 {
	if c.done {
		return iterator.Done
	}
	return c.current
}

func (c *cursor) IsDone() bool { return c.done }

func (c *cursor) MoveTo(id int64) (bool, error) {
	if err := c.moveTo(id); err != nil {
		return false, err
	}
	return !c.done && c.current == id, nil
}

func (c *cursor) MovePast(id int64) error {
	if id == iterator.Done {
		c.done = true
		c.current = iterator.Done
		return nil
	}
	return c.moveTo(id + 1)
}

// SyncTo is MoveTo without the match report.
func (c *cursor) SyncTo(id int64) error { return c.moveTo(id) }

// Next advances one entry.
func (c *cursor) Next() error {
	if c.done {
		return nil
	}
	return c.next()
}

func (c *cursor) HasMatch(id int64) bool { return !c.done && c.current == id }

func (c *cursor) HasAllCandidates() bool { return false }

func (c *cursor) TotalEntries() int64 { return c.header.documentCount }

func (c *cursor) Reset() error { return c.reset() }

func (c *cursor) Key() string { return c.key }

// AggregateCount is the running payload count through the current entry.
func (c *cursor) AggregateCount() int64 { return c.aggregate }

func (c *cursor) NodeStatistics() iterator.NodeStatistics {
	return iterator.NodeStatistics{
		Key:                 c.key,
		NodeFrequency:       c.header.documentCount,
		CollectionFrequency: c.header.totalCount,
		MaximumCount:        c.header.maximumCount,
	}
}

// SkipDistance reports the stride recorded in the list, or 0 without skips.
func (c *cursor) SkipDistance() int64 {
	if c.skip == nil {
		return 0
	}
	return c.skip.distance
}
