package postings

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tempPath(t *testing.T, name string) string {
	t.Helper()
	return filepath.Join(t.TempDir(), name)
}

func writeCounts(t *testing.T, opts WriterOptions, lists map[string][][2]int64, order ...string) string {
	t.Helper()
	path := tempPath(t, "counts")
	w, err := NewCountWriter(path, opts)
	require.NoError(t, err)
	for _, key := range order {
		require.NoError(t, w.StartKey([]byte(key)))
		for _, p := range lists[key] {
			require.NoError(t, w.AddPosting(p[0], p[1]))
		}
	}
	require.NoError(t, w.Close())
	return path
}

func TestSkipsMatchLinearDecoding(t *testing.T) {
	var postings [][2]int64
	for i := int64(0); i < 1000; i++ {
		postings = append(postings, [2]int64{3*i + 1, i%7 + 1})
	}
	lists := map[string][][2]int64{"term": postings}

	skipped := writeCounts(t, WriterOptions{Skipping: true, SkipDistance: 10, SkipResetDistance: 5}, lists, "term")
	plain := writeCounts(t, WriterOptions{Skipping: false}, lists, "term")

	sr, err := OpenCountReader("skipped", skipped)
	require.NoError(t, err)
	defer sr.Close()
	pr, err := OpenCountReader("plain", plain)
	require.NoError(t, err)
	defer pr.Close()

	a, err := sr.Iterator("term")
	require.NoError(t, err)
	b, err := pr.Iterator("term")
	require.NoError(t, err)
	assert.Equal(t, int64(10), a.SkipDistance())
	assert.Equal(t, int64(0), b.SkipDistance())

	require.NoError(t, a.SyncTo(453))
	assert.Equal(t, int64(454), a.CurrentCandidate())

	require.NoError(t, a.Reset())
	for target := int64(0); target < 3100; target += 37 {
		require.NoError(t, a.SyncTo(target))
		require.NoError(t, b.SyncTo(target))
		require.Equal(t, b.CurrentCandidate(), a.CurrentCandidate(), "target %d", target)
		require.Equal(t, b.IsDone(), a.IsDone())
		require.Equal(t, b.RawCount(), a.RawCount(), "target %d", target)
		require.Equal(t, b.AggregateCount(), a.AggregateCount(), "target %d", target)
	}
	assert.True(t, a.IsDone())
	assert.Equal(t, iterator.Done, a.CurrentCandidate())
}

func TestSkipsAcrossEveryTarget(t *testing.T) {
	var postings [][2]int64
	for i := int64(0); i < 300; i++ {
		postings = append(postings, [2]int64{2 * i, 1})
	}
	path := writeCounts(t, WriterOptions{Skipping: true, SkipDistance: 4, SkipResetDistance: 3},
		map[string][][2]int64{"t": postings}, "t")
	r, err := OpenCountReader("c", path)
	require.NoError(t, err)
	defer r.Close()

	for target := int64(0); target <= 598; target++ {
		it, err := r.Iterator("t")
		require.NoError(t, err)
		matched, err := it.MoveTo(target)
		require.NoError(t, err)
		want := target + target%2
		assert.Equal(t, want, it.CurrentCandidate())
		assert.Equal(t, target%2 == 0, matched)
		assert.Equal(t, want/2+1, it.AggregateCount())
	}
}

func TestLargeDocumentIDs(t *testing.T) {
	var postings [][2]int64
	base := int64(3_000_000_000)
	for i := int64(0); i < 50; i++ {
		postings = append(postings, [2]int64{base + i*1_000_000_007, i + 1})
	}
	path := writeCounts(t, WriterOptions{Skipping: true, SkipDistance: 8, SkipResetDistance: 2},
		map[string][][2]int64{"big": postings}, "big")
	r, err := OpenCountReader("c", path)
	require.NoError(t, err)
	defer r.Close()

	it, err := r.Iterator("big")
	require.NoError(t, err)
	target := postings[41][0]
	matched, err := it.MoveTo(target)
	require.NoError(t, err)
	assert.True(t, matched)
	assert.Equal(t, int64(42), it.Count(&iterator.ScoringContext{Document: target}))

	require.NoError(t, it.MovePast(target))
	assert.Equal(t, postings[42][0], it.CurrentCandidate())
}

func TestCountPartStatistics(t *testing.T) {
	path := writeCounts(t, WriterOptions{DocumentCount: 10}, map[string][][2]int64{
		"a":     {{1, 2}, {4, 5}},
		"b":     {{2, 1}},
		"empty": nil,
	}, "a", "b", "empty")
	r, err := OpenCountReader("c", path)
	require.NoError(t, err)
	defer r.Close()

	m := r.Manifest()
	assert.Equal(t, ClassCount, m.String(KeyReaderClass, ""))
	assert.Equal(t, "counts", m.String(KeyDefaultOperator, ""))
	assert.Equal(t, int64(8), m.Int64(KeyCollectionLength, 0))
	assert.Equal(t, int64(2), m.Int64(KeyVocabCount, 0))
	assert.Equal(t, int64(10), m.Int64(KeyDocumentCount, 0))
	assert.Equal(t, int64(5), m.Int64(KeyHighestFrequency, 0))
	assert.Equal(t, int64(2), m.Int64(KeyHighestDocumentCount, 0))

	keys, err := r.Keys()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)

	it, err := r.Iterator("a")
	require.NoError(t, err)
	assert.Equal(t, iterator.NodeStatistics{Key: "a", NodeFrequency: 2, CollectionFrequency: 7, MaximumCount: 5}, it.NodeStatistics())

	missing, err := r.Iterator("zzz")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestWriterRejectsBadInput(t *testing.T) {
	w, err := NewCountWriter(tempPath(t, "c"), WriterOptions{})
	require.NoError(t, err)

	assert.ErrorIs(t, w.AddPosting(1, 1), apperrors.ErrInvalidInput)
	require.NoError(t, w.StartKey([]byte("m")))
	require.NoError(t, w.AddPosting(5, 1))
	assert.ErrorIs(t, w.AddPosting(5, 1), apperrors.ErrOutOfOrderKey)
	assert.ErrorIs(t, w.AddPosting(3, 1), apperrors.ErrOutOfOrderKey)
	assert.ErrorIs(t, w.AddPosting(9, 0), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, w.StartKey([]byte("a")), apperrors.ErrOutOfOrderKey)
	assert.ErrorIs(t, w.StartKey([]byte("m")), apperrors.ErrDuplicateKey)
	require.NoError(t, w.Close())
}

func TestPositionExtents(t *testing.T) {
	path := tempPath(t, "extents")
	w, err := NewPositionWriter(path, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.StartKey([]byte("cat")))
	require.NoError(t, w.AddPosting(1, []int{0, 4, 9}))
	require.NoError(t, w.AddPosting(3, []int{2}))
	require.NoError(t, w.StartKey([]byte("dog")))
	assert.ErrorIs(t, w.AddPosting(1, []int{3, 3}), apperrors.ErrInvalidInput)
	require.NoError(t, w.Close())

	r, err := OpenPositionReader("extents", path)
	require.NoError(t, err)
	defer r.Close()
	it, err := r.Iterator("cat")
	require.NoError(t, err)

	c := &iterator.ScoringContext{Document: 1}
	assert.Equal(t, 3, it.Count(c))
	assert.Equal(t, iterator.ExtentArray{{Begin: 0, End: 1}, {Begin: 4, End: 5}, {Begin: 9, End: 10}}, it.Extents(c))
	c.Document = 2
	assert.Equal(t, 0, it.Count(c))
	assert.Nil(t, it.Extents(c))

	require.NoError(t, it.MovePast(1))
	c.Document = 3
	assert.Equal(t, iterator.ExtentArray{{Begin: 2, End: 3}}, it.Extents(c))

	scan, err := r.Iterator("cat")
	require.NoError(t, err)
	stats, err := iterator.Collect(scan)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.NodeFrequency)
	assert.Equal(t, int64(4), stats.CollectionFrequency)
	assert.Equal(t, int64(3), stats.MaximumCount)
}

func TestWindowExtents(t *testing.T) {
	path := tempPath(t, "windows")
	w, err := NewWindowWriter(path, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.StartKey([]byte("title")))
	require.NoError(t, w.AddPosting(7, iterator.ExtentArray{{Begin: 0, End: 4}, {Begin: 10, End: 12}}))
	assert.ErrorIs(t, w.AddPosting(8, iterator.ExtentArray{{Begin: 3, End: 3}}), apperrors.ErrInvalidInput)
	require.NoError(t, w.Close())

	r, err := OpenWindowReader("windows", path)
	require.NoError(t, err)
	defer r.Close()
	it, err := r.Iterator("title")
	require.NoError(t, err)
	c := &iterator.ScoringContext{Document: 7}
	assert.Equal(t, iterator.ExtentArray{{Begin: 0, End: 4}, {Begin: 10, End: 12}}, it.Extents(c))
	assert.Equal(t, 2, it.Count(c))
}

func TestOpenPartChecksClass(t *testing.T) {
	path := writeCounts(t, WriterOptions{}, map[string][][2]int64{"a": {{1, 1}}}, "a")
	_, err := OpenPositionReader("wrong", path)
	assert.ErrorIs(t, err, apperrors.ErrCorruptIndex)
}

func TestSparseFloatScores(t *testing.T) {
	path := tempPath(t, "scores")
	w, err := NewSparseFloatWriter(path, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.StartKey([]byte("a")))
	require.NoError(t, w.AddPosting(5, 0.5))
	require.NoError(t, w.AddPosting(6, 0.7))
	require.NoError(t, w.StartKey([]byte("b")))
	require.NoError(t, w.AddPosting(9, 0.1))
	require.NoError(t, w.AddPosting(11, 0.2))
	require.NoError(t, w.AddPosting(13, 0.3))
	require.NoError(t, w.Close())

	r, err := OpenSparseFloatReader("scores", path)
	require.NoError(t, err)
	defer r.Close()

	a, err := r.Iterator("a")
	require.NoError(t, err)
	a.Default = -1
	c := &iterator.ScoringContext{Document: 5}
	assert.InDelta(t, 0.5, a.Score(c), 1e-6)
	assert.InDelta(t, 0.7, a.MaximumScore(), 1e-6)
	assert.Equal(t, -1.0, a.MinimumScore())

	_, err = a.MoveTo(6)
	require.NoError(t, err)
	c.Document = 6
	assert.InDelta(t, 0.7, a.Score(c), 1e-6)
	c.Document = 7
	assert.Equal(t, -1.0, a.Score(c))

	b, err := r.Iterator("b")
	require.NoError(t, err)
	var docs []int64
	for !b.IsDone() {
		docs = append(docs, b.CurrentCandidate())
		require.NoError(t, b.MovePast(b.CurrentCandidate()))
	}
	assert.Equal(t, []int64{9, 11, 13}, docs)
	assert.Equal(t, int64(3), b.TotalEntries())
}

func TestFieldValues(t *testing.T) {
	path := tempPath(t, "fields")
	formats := map[string]string{
		"live":   FormatBoolean,
		"price":  FormatDouble,
		"rating": FormatFloat,
		"title":  FormatString,
		"when":   FormatDate,
		"year":   FormatInt,
	}
	w, err := NewFieldWriter(path, formats, WriterOptions{})
	require.NoError(t, err)
	when := time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC)

	add := func(field string, doc int64, v any) {
		t.Helper()
		require.NoError(t, w.AddPosting(doc, v))
	}
	require.NoError(t, w.StartKey([]byte("live")))
	add("live", 1, true)
	add("live", 2, false)
	require.NoError(t, w.StartKey([]byte("price")))
	add("price", 1, 9.99)
	require.NoError(t, w.StartKey([]byte("rating")))
	add("rating", 1, 4.5)
	require.NoError(t, w.StartKey([]byte("title")))
	add("title", 1, "Moby Dick")
	assert.ErrorIs(t, w.AddPosting(2, 42), apperrors.ErrInvalidInput)
	require.NoError(t, w.StartKey([]byte("when")))
	add("when", 1, when)
	require.NoError(t, w.StartKey([]byte("year")))
	add("year", 1, 1851)
	require.NoError(t, w.Close())

	r, err := OpenFieldReader("fields", path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, FormatInt, r.Format("year"))
	assert.Equal(t, FormatString, r.Format("unknown"))

	c := &iterator.ScoringContext{Document: 1}
	want := map[string]any{
		"live":   true,
		"price":  9.99,
		"rating": 4.5,
		"title":  "Moby Dick",
		"when":   when.UnixMilli(),
		"year":   int64(1851),
	}
	for field, v := range want {
		it, err := r.Iterator(field)
		require.NoError(t, err)
		assert.Equal(t, v, it.Data(c), field)
		assert.Equal(t, formats[field], it.Format())
	}

	live, err := r.Iterator("live")
	require.NoError(t, err)
	_, err = live.MoveTo(2)
	require.NoError(t, err)
	assert.Equal(t, false, live.Data(&iterator.ScoringContext{Document: 2}))

	_, err = NewFieldWriter(tempPath(t, "bad"), map[string]string{"x": "complex"}, WriterOptions{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestLengths(t *testing.T) {
	path := tempPath(t, "lengths")
	w, err := NewLengthsWriter(path, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Add("document", 12, 7))
	require.NoError(t, w.Add("document", 10, 3))
	require.NoError(t, w.Add("document", 11, 0))
	require.NoError(t, w.Add("title", 10, 2))
	assert.ErrorIs(t, w.Add("document", 1, -1), apperrors.ErrInvalidInput)
	require.NoError(t, w.Close())

	r, err := OpenLengthsReader("lengths", path)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, int64(3), r.Manifest().Int64(KeyDocumentCount, 0))

	stats, err := r.FieldStatistics("document")
	require.NoError(t, err)
	assert.Equal(t, FieldStatistics{
		Field:                 "document",
		CollectionLength:      10,
		DocumentCount:         3,
		NonZeroLengthDocCount: 2,
		MaxLength:             7,
		MinLength:             0,
		AvgLength:             10.0 / 3.0,
		FirstDocID:            10,
		LastDocID:             12,
	}, stats)

	_, err = r.FieldStatistics("body")
	assert.ErrorIs(t, err, apperrors.ErrPartNotFound)

	it, err := r.Iterator("document")
	require.NoError(t, err)
	assert.True(t, it.HasAllCandidates())
	assert.Equal(t, int64(10), it.CurrentCandidate())
	assert.Equal(t, 7, it.Length(&iterator.ScoringContext{Document: 12}))
	assert.Equal(t, 0, it.Length(&iterator.ScoringContext{Document: 99}))

	matched, err := it.MoveTo(12)
	require.NoError(t, err)
	assert.True(t, matched)
	require.NoError(t, it.MovePast(12))
	assert.True(t, it.IsDone())
	require.NoError(t, it.Reset())
	assert.Equal(t, int64(10), it.CurrentCandidate())
}

func TestLengthsRejectDuplicateDocuments(t *testing.T) {
	w, err := NewLengthsWriter(tempPath(t, "lengths"), WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Add("document", 1, 3))
	require.NoError(t, w.Add("document", 1, 4))
	assert.ErrorIs(t, w.Close(), apperrors.ErrDuplicateKey)
}

func TestNames(t *testing.T) {
	dir := t.TempDir()
	namesPath := filepath.Join(dir, "names")
	reversePath := filepath.Join(dir, "names.reverse")
	w, err := NewNamesWriter(namesPath, reversePath, WriterOptions{})
	require.NoError(t, err)
	require.NoError(t, w.Add(2, "doc-b"))
	require.NoError(t, w.Add(5, "doc-a"))
	require.NoError(t, w.Add(4_000_000_000, "doc-c"))
	assert.ErrorIs(t, w.Add(3, "late"), apperrors.ErrOutOfOrderKey)
	require.NoError(t, w.Close())

	names, err := OpenNamesReader("names", namesPath)
	require.NoError(t, err)
	defer names.Close()
	name, ok, err := names.Name(5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "doc-a", name)
	_, ok, err = names.Name(3)
	require.NoError(t, err)
	assert.False(t, ok)

	batch, err := names.Names([]int64{2, 3, 4_000_000_000})
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-b", "", "doc-c"}, batch)
	_, err = names.Names([]int64{5, 2})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	reverse, err := OpenNamesReverseReader("names.reverse", reversePath)
	require.NoError(t, err)
	defer reverse.Close()
	id, ok, err := reverse.ID("doc-c")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4_000_000_000), id)

	ids, err := reverse.Prefix("doc-")
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 2, 4_000_000_000}, ids)
}
