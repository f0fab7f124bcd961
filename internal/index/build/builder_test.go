package build

import (
	"context"
	"sync"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleDocuments() []Document {
	return []Document{
		{
			ID: 1, Name: "d1",
			Terms:   []string{"white", "whale", "white", "sea"},
			Extents: map[string]iterator.ExtentArray{"title": {{Begin: 0, End: 2}}},
			Fields:  map[string]any{"year": int64(1851), "author": "melville"},
			Scores:  map[string]float32{"prior": 0.5},
		},
		{
			ID: 2, Name: "d2",
			Terms:  []string{"sea", "story"},
			Fields: map[string]any{"year": int64(1900)},
		},
		{
			ID: 5, Name: "d5",
			Terms:   []string{"whale", "song"},
			Extents: map[string]iterator.ExtentArray{"title": {{Begin: 1, End: 2}}},
			Scores:  map[string]float32{"prior": 0.25},
		},
	}
}

func buildIndex(t *testing.T, docs []Document) string {
	t.Helper()
	b := New(Options{WriterOptions: postings.WriterOptions{Skipping: true, SkipDistance: 2, SkipResetDistance: 2}})
	for _, d := range docs {
		require.NoError(t, b.Add(d))
	}
	dir := t.TempDir()
	summary, err := b.Write(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, int64(len(docs)), summary.Documents)
	return dir
}

func TestBuildAndOpen(t *testing.T) {
	dir := buildIndex(t, sampleDocuments())
	idx, err := disk.Open(dir)
	require.NoError(t, err)
	defer idx.Close()

	assert.Equal(t, []string{
		disk.PartExtents, disk.PartFields, disk.PartLengths, disk.PartNames,
		disk.PartNamesReverse, disk.PartPostings, disk.PartScores,
	}, idx.PartNames())

	stats, err := idx.PartStatistics(disk.PartPostings)
	require.NoError(t, err)
	assert.Equal(t, disk.PartStatistics{
		PartName:             disk.PartPostings,
		Class:                postings.ClassPosition,
		DefaultOperator:      "extents",
		CollectionLength:     8,
		VocabCount:           5,
		DocumentCount:        3,
		HighestFrequency:     2,
		HighestDocumentCount: 2,
	}, stats)

	it, err := idx.Iterator(disk.PartPostings, "whale")
	require.NoError(t, err)
	ext := it.(iterator.ExtentIterator)
	assert.Equal(t, int64(1), ext.CurrentCandidate())
	assert.Equal(t, iterator.ExtentArray{{Begin: 1, End: 2}}, ext.Extents(&iterator.ScoringContext{Document: 1}))
	require.NoError(t, ext.MovePast(1))
	assert.Equal(t, int64(5), ext.CurrentCandidate())

	missing, err := idx.Iterator(disk.PartPostings, "kraken")
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = idx.Iterator("nope", "whale")
	assert.ErrorIs(t, err, apperrors.ErrPartNotFound)

	collection, err := idx.CollectionStatistics(DocumentField)
	require.NoError(t, err)
	assert.Equal(t, int64(8), collection.CollectionLength)
	assert.Equal(t, int64(3), collection.DocumentCount)
	assert.InDelta(t, 8.0/3.0, collection.AvgLength, 1e-9)

	title, err := idx.CollectionStatistics("title")
	require.NoError(t, err)
	assert.Equal(t, int64(3), title.CollectionLength)

	year, err := idx.Iterator(disk.PartFields, "year")
	require.NoError(t, err)
	_, err = year.MoveTo(2)
	require.NoError(t, err)
	assert.Equal(t, int64(1900), year.(iterator.DataIterator).Data(&iterator.ScoringContext{Document: 2}))
	format, err := idx.FieldFormat(disk.PartFields, "year")
	require.NoError(t, err)
	assert.Equal(t, postings.FormatLong, format)

	prior, err := idx.Iterator(disk.PartScores, "prior")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, prior.(iterator.ScoreIterator).Score(&iterator.ScoringContext{Document: 1}), 1e-6)

	names, err := idx.Names().Names([]int64{1, 2, 5})
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d5"}, names)
	id, ok, err := idx.ReverseNames().ID("d5")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)
}

func TestAddRejectsBadDocuments(t *testing.T) {
	b := New(Options{})
	require.NoError(t, b.Add(Document{ID: 3, Terms: []string{"a"}}))
	assert.ErrorIs(t, b.Add(Document{ID: 3}), apperrors.ErrOutOfOrderKey)
	assert.ErrorIs(t, b.Add(Document{ID: -1}), apperrors.ErrInvalidInput)
	assert.ErrorIs(t, b.Add(Document{ID: 4, Fields: map[string]any{"x": []int{1}}}), apperrors.ErrInvalidInput)
	assert.Equal(t, int64(1), b.Documents())
}

func TestConcurrentAdd(t *testing.T) {
	b := New(Options{})
	var wg sync.WaitGroup
	var mu sync.Mutex
	next := int64(0)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				mu.Lock()
				next++
				err := b.Add(Document{ID: next, Terms: []string{"t"}})
				mu.Unlock()
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(200), b.Documents())

	dir := t.TempDir()
	_, err := b.Write(context.Background(), dir)
	require.NoError(t, err)
	idx, err := disk.Open(dir)
	require.NoError(t, err)
	defer idx.Close()
	it, err := idx.Iterator(disk.PartPostings, "t")
	require.NoError(t, err)
	assert.Equal(t, int64(200), it.TotalEntries())
}

func TestWriteHonoursCancelledContext(t *testing.T) {
	b := New(Options{})
	require.NoError(t, b.Add(Document{ID: 1, Terms: []string{"a"}}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := b.Write(ctx, t.TempDir())
	assert.ErrorIs(t, err, context.Canceled)
}
