package indexer

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/sharded"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

const records = `{"name":"moby-dick","title":"Moby Dick","body":"the white whale and the sea"}
{"name":"sea-story","body":"a story of the sea"}

{"name":"whale-song","title":"Whale Song","fields":{"year":1970}}
{"name":"whalers","body":"whalers at sea","terms":["boat","crew"]}
`

func newEngine(t *testing.T, shards int) *Engine {
	t.Helper()
	cfg := config.Default().Index
	cfg.Shards = shards
	e, err := NewEngine(cfg, nil)
	require.NoError(t, err)
	return e
}

func TestIndexAndSearch(t *testing.T) {
	e := newEngine(t, 2)
	n, err := e.Index(context.Background(), strings.NewReader(records))
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	docs := e.Documents()
	assert.Equal(t, int64(4), docs[0]+docs[1])

	dataDir := t.TempDir()
	summaries, err := e.Write(context.Background(), dataDir, "b1")
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, ShardDirs(dataDir, "b1", 2)[1], summaries[1].Dir)

	s, err := sharded.Open(ShardDirs(dataDir, "b1", 2), config.Default().Retrieval, nil)
	require.NoError(t, err)
	defer s.Close()

	stats, err := s.PartStatistics(context.Background(), disk.PartPostings)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.DocumentCount)

	res, err := s.RunQuery(context.Background(), query.New("combine", nil, query.Text("whale")), retrieval.Options{})
	require.NoError(t, err)
	var names []string
	for _, d := range res.Documents {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"moby-dick", "whale-song"}, names)
}

func TestDocument(t *testing.T) {
	e := newEngine(t, 1)
	id := int64(42)
	doc := e.Document(Record{ID: &id, Name: "x", Title: "Big Whale", Body: "deep sea", Terms: []string{"raw"}}, 7)
	assert.Equal(t, int64(42), doc.ID)
	assert.Equal(t, []string{"big", "whale", "deep", "sea", "raw"}, doc.Terms)
	require.Len(t, doc.Extents["title"], 1)
	assert.Equal(t, 0, doc.Extents["title"][0].Begin)
	assert.Equal(t, 2, doc.Extents["title"][0].End)

	doc = e.Document(Record{Name: "y"}, 7)
	assert.Equal(t, int64(7), doc.ID)
}

func TestIndexRejectsBadInput(t *testing.T) {
	e := newEngine(t, 1)
	_, err := e.Index(context.Background(), strings.NewReader("{\"name\":\"a\"}\nnot json\n"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Contains(t, err.Error(), "line 2")

	e = newEngine(t, 1)
	_, err = e.Index(context.Background(), strings.NewReader("{\"id\":5,\"name\":\"a\"}\n{\"id\":3,\"name\":\"b\"}\n"))
	assert.Error(t, err)
}

func TestIndexCancelled(t *testing.T) {
	e := newEngine(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Index(ctx, strings.NewReader(records))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLatestDirs(t *testing.T) {
	dataDir := t.TempDir()
	older := NewBuildID(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	newer := NewBuildID(time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC))
	assert.Less(t, older, newer)
	for _, id := range []string{newer, older} {
		for _, dir := range ShardDirs(dataDir, id, 2) {
			require.NoError(t, os.MkdirAll(dir, 0o755))
		}
	}
	dirs, err := LatestDirs(dataDir, 2)
	require.NoError(t, err)
	assert.Equal(t, ShardDirs(dataDir, newer, 2), dirs)

	_, err = LatestDirs(dataDir, 3)
	assert.Error(t, err)
}
