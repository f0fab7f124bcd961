// Package build accumulates tokenized documents in memory and writes them
// out as an index directory of BTree parts.
package build

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	gbtree "github.com/google/btree"
	"github.com/sourcegraph/conc/pool"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// DocumentField is the lengths field covering a document's whole term
// sequence.
const DocumentField = "document"

// Document is one pre-tokenized input document.
type Document struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Terms []string `json:"terms"`
	// Extents maps a field name to the spans of Terms it covers.
	Extents map[string]iterator.ExtentArray `json:"extents,omitempty"`
	// Fields holds typed metadata values: string, integers, floats, bool
	// or time.Time.
	Fields map[string]any     `json:"fields,omitempty"`
	Scores map[string]float32 `json:"scores,omitempty"`
}

type Options struct {
	postings.WriterOptions
	// FieldFormats fixes field formats up front. Fields missing here take
	// the format of their first value.
	FieldFormats map[string]string
	Workers      int
}

type entry[T any] struct {
	doc   int64
	value T
}

type list[T any] struct {
	key     string
	entries []entry[T]
}

func newTree[T any]() *gbtree.BTreeG[*list[T]] {
	return gbtree.NewG(32, func(a, b *list[T]) bool { return a.key < b.key })
}

func appendEntry[T any](tree *gbtree.BTreeG[*list[T]], key string, doc int64, value T) {
	l, ok := tree.Get(&list[T]{key: key})
	if !ok {
		l = &list[T]{key: key}
		tree.ReplaceOrInsert(l)
	}
	l.entries = append(l.entries, entry[T]{doc: doc, value: value})
}

type docLength struct {
	field  string
	doc    int64
	length int
}

// Builder is safe for concurrent Add calls, but document ids must reach it
// in increasing order.
type Builder struct {
	mu        sync.Mutex
	opts      Options
	terms     *gbtree.BTreeG[*list[[]int]]
	extents   *gbtree.BTreeG[*list[iterator.ExtentArray]]
	fields    *gbtree.BTreeG[*list[any]]
	scores    *gbtree.BTreeG[*list[float32]]
	formats   map[string]string
	lengths   []docLength
	names     []entry[string]
	lastDoc   int64
	documents int64
	logger    *slog.Logger
}

func New(opts Options) *Builder {
	formats := make(map[string]string, len(opts.FieldFormats))
	for k, v := range opts.FieldFormats {
		formats[k] = v
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	return &Builder{
		opts:    opts,
		terms:   newTree[[]int](),
		extents: newTree[iterator.ExtentArray](),
		fields:  newTree[any](),
		scores:  newTree[float32](),
		formats: formats,
		lastDoc: -1,
		logger:  slog.Default().With("component", "index-builder"),
	}
}

// Add accumulates one document.
func (b *Builder) Add(doc Document) error {
	if doc.ID < 0 {
		return fmt.Errorf("%w: negative document id %d", apperrors.ErrInvalidInput, doc.ID)
	}
	positions := make(map[string][]int)
	for pos, term := range doc.Terms {
		if term == "" {
			continue
		}
		positions[term] = append(positions[term], pos)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if doc.ID <= b.lastDoc {
		return fmt.Errorf("%w: document %d after %d", apperrors.ErrOutOfOrderKey, doc.ID, b.lastDoc)
	}
	formats := make(map[string]string, len(doc.Fields))
	for field, value := range doc.Fields {
		format, ok := b.formats[field]
		if !ok {
			if format, ok = inferFormat(value); !ok {
				return fmt.Errorf("%w: field %q of document %d has unsupported type %T", apperrors.ErrInvalidInput, field, doc.ID, value)
			}
		}
		formats[field] = format
	}
	b.lastDoc = doc.ID
	b.documents++

	for term, pos := range positions {
		appendEntry(b.terms, term, doc.ID, pos)
	}
	b.lengths = append(b.lengths, docLength{field: DocumentField, doc: doc.ID, length: len(doc.Terms)})
	for field, ext := range doc.Extents {
		if len(ext) == 0 {
			continue
		}
		sorted := append(iterator.ExtentArray(nil), ext...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Begin < sorted[j].Begin })
		appendEntry(b.extents, field, doc.ID, sorted)
		width := 0
		for _, e := range sorted {
			width += e.End - e.Begin
		}
		b.lengths = append(b.lengths, docLength{field: field, doc: doc.ID, length: width})
	}
	for field, value := range doc.Fields {
		b.formats[field] = formats[field]
		appendEntry(b.fields, field, doc.ID, value)
	}
	for key, score := range doc.Scores {
		appendEntry(b.scores, key, doc.ID, score)
	}
	if doc.Name != "" {
		b.names = append(b.names, entry[string]{doc: doc.ID, value: doc.Name})
	}
	return nil
}

func inferFormat(value any) (string, bool) {
	switch value.(type) {
	case string:
		return postings.FormatString, true
	case int, int32, int64:
		return postings.FormatLong, true
	case float32:
		return postings.FormatFloat, true
	case float64:
		return postings.FormatDouble, true
	case bool:
		return postings.FormatBoolean, true
	case time.Time:
		return postings.FormatDate, true
	}
	return "", false
}

// Documents is the number of documents added so far.
func (b *Builder) Documents() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.documents
}

// Summary describes a written index directory.
type Summary struct {
	Dir       string        `json:"dir"`
	Documents int64         `json:"documents"`
	Terms     int           `json:"terms"`
	Parts     []string      `json:"parts"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Write writes every non-empty part into dir, one goroutine per part.
func (b *Builder) Write(ctx context.Context, dir string) (Summary, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	start := time.Now()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("creating index directory: %w", err)
	}
	documents := b.documents
	opts := b.opts.WriterOptions
	opts.DocumentCount = documents

	type task struct {
		part  string
		write func(path string) error
	}
	tasks := []task{
		{disk.PartPostings, func(path string) error { return b.writePostings(path, opts) }},
		{disk.PartLengths, func(path string) error { return b.writeLengths(path, opts) }},
	}
	if b.extents.Len() > 0 {
		tasks = append(tasks, task{disk.PartExtents, func(path string) error { return b.writeExtents(path, opts) }})
	}
	if b.fields.Len() > 0 {
		tasks = append(tasks, task{disk.PartFields, func(path string) error { return b.writeFields(path, opts) }})
	}
	if b.scores.Len() > 0 {
		tasks = append(tasks, task{disk.PartScores, func(path string) error { return b.writeScores(path, opts) }})
	}
	if len(b.names) > 0 {
		tasks = append(tasks, task{disk.PartNames, func(path string) error {
			return b.writeNames(path, filepath.Join(dir, disk.PartNamesReverse), opts)
		}})
	}

	p := pool.New().WithMaxGoroutines(b.opts.Workers).WithContext(ctx).WithCancelOnError()
	for _, t := range tasks {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := t.write(filepath.Join(dir, t.part)); err != nil {
				return fmt.Errorf("writing part %s: %w", t.part, err)
			}
			b.logger.Debug("part written", "part", t.part, "dir", dir)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return Summary{}, err
	}

	summary := Summary{Dir: dir, Documents: documents, Terms: b.terms.Len(), Elapsed: time.Since(start)}
	for _, t := range tasks {
		summary.Parts = append(summary.Parts, t.part)
	}
	if len(b.names) > 0 {
		summary.Parts = append(summary.Parts, disk.PartNamesReverse)
	}
	sort.Strings(summary.Parts)
	b.logger.Info("index written",
		"dir", dir,
		"documents", summary.Documents,
		"terms", summary.Terms,
		"parts", len(summary.Parts),
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

// writeLists walks tree in key order, which is the order every part
// writer requires.
func writeLists[T any](tree *gbtree.BTreeG[*list[T]], startKey func([]byte) error, add func(entry[T]) error) error {
	var err error
	tree.Ascend(func(l *list[T]) bool {
		if err = startKey([]byte(l.key)); err != nil {
			return false
		}
		for _, e := range l.entries {
			if err = add(e); err != nil {
				err = fmt.Errorf("key %q: %w", l.key, err)
				return false
			}
		}
		return true
	})
	return err
}

func (b *Builder) writePostings(path string, opts postings.WriterOptions) error {
	w, err := postings.NewPositionWriter(path, opts)
	if err != nil {
		return err
	}
	if err := writeLists(b.terms, w.StartKey, func(e entry[[]int]) error {
		return w.AddPosting(e.doc, e.value)
	}); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *Builder) writeExtents(path string, opts postings.WriterOptions) error {
	w, err := postings.NewWindowWriter(path, opts)
	if err != nil {
		return err
	}
	if err := writeLists(b.extents, w.StartKey, func(e entry[iterator.ExtentArray]) error {
		return w.AddPosting(e.doc, e.value)
	}); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *Builder) writeFields(path string, opts postings.WriterOptions) error {
	w, err := postings.NewFieldWriter(path, b.formats, opts)
	if err != nil {
		return err
	}
	if err := writeLists(b.fields, w.StartKey, func(e entry[any]) error {
		return w.AddPosting(e.doc, e.value)
	}); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *Builder) writeScores(path string, opts postings.WriterOptions) error {
	w, err := postings.NewSparseFloatWriter(path, opts)
	if err != nil {
		return err
	}
	if err := writeLists(b.scores, w.StartKey, func(e entry[float32]) error {
		return w.AddPosting(e.doc, e.value)
	}); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (b *Builder) writeLengths(path string, opts postings.WriterOptions) error {
	w, err := postings.NewLengthsWriter(path, opts)
	if err != nil {
		return err
	}
	for _, l := range b.lengths {
		if err := w.Add(l.field, l.doc, l.length); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}

func (b *Builder) writeNames(path, reversePath string, opts postings.WriterOptions) error {
	w, err := postings.NewNamesWriter(path, reversePath, opts)
	if err != nil {
		return err
	}
	for _, n := range b.names {
		if err := w.Add(n.doc, n.value); err != nil {
			w.Close()
			return err
		}
	}
	return w.Close()
}
