package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/build"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/metrics"
)

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, goredis.Nil
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memStore) FlushByPattern(_ context.Context, pattern string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.data {
		if strings.HasPrefix(k, strings.TrimSuffix(pattern, "*")) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

func buildShard(t *testing.T, docs ...build.Document) string {
	t.Helper()
	b := build.New(build.Options{WriterOptions: postings.DefaultWriterOptions()})
	for _, d := range docs {
		require.NoError(t, b.Add(d))
	}
	dir := t.TempDir()
	_, err := b.Write(context.Background(), dir)
	require.NoError(t, err)
	return dir
}

func newExecutor(t *testing.T, dirs []string, withCache bool) (*Executor, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	opts := Options{Metrics: metrics.NewWithRegistry(reg)}
	if withCache {
		c, err := cache.New(&memStore{data: map[string][]byte{}}, config.RedisConfig{CacheTTL: time.Minute}, opts.Metrics)
		require.NoError(t, err)
		t.Cleanup(c.Close)
		opts.Cache = c
	}
	cfg := config.Default().Retrieval
	cfg.CacheNodes = true
	e, err := New(dirs, cfg, opts)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e, reg
}

func counter(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

var (
	mobyDick = build.Document{ID: 1, Name: "moby-dick", Terms: []string{"white", "whale", "white", "sea"}}
	seaStory = build.Document{ID: 2, Name: "sea-story", Terms: []string{"sea", "story"}}
	whalers  = build.Document{ID: 7, Name: "whalers", Terms: []string{"sea", "whale", "whale", "boat", "crew"}}
)

func names(res *retrieval.Results) []string {
	out := make([]string, len(res.Documents))
	for i, d := range res.Documents {
		out[i] = d.Name
	}
	return out
}

func TestExecuteUsesCache(t *testing.T) {
	e, reg := newExecutor(t, []string{buildShard(t, mobyDick, seaStory), buildShard(t, whalers)}, true)
	whale := query.New("combine", nil, query.Text("whale"))

	first, err := e.Execute(context.Background(), whale, retrieval.Options{})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"moby-dick", "whalers"}, names(first))

	second, err := e.Execute(context.Background(), whale, retrieval.Options{})
	require.NoError(t, err)
	assert.Equal(t, first.Documents, second.Documents)

	assert.Equal(t, 2.0, counter(t, reg, "retrieval_queries_total", "outcome", "ok"))
	assert.Equal(t, 2, e.ShardCount())
}

func TestExecuteOutcomes(t *testing.T) {
	e, reg := newExecutor(t, []string{buildShard(t, mobyDick, seaStory)}, false)

	res, err := e.Execute(context.Background(), query.Text("kraken"), retrieval.Options{})
	require.NoError(t, err)
	assert.Empty(t, res.Documents)

	_, err = e.Execute(context.Background(), query.New("no-such-operator", nil), retrieval.Options{})
	assert.ErrorIs(t, err, apperrors.ErrBadOperator)

	assert.Equal(t, 1.0, counter(t, reg, "retrieval_queries_total", "outcome", "zero_result"))
	assert.Equal(t, 1.0, counter(t, reg, "retrieval_queries_total", "outcome", "invalid"))
}

func TestReload(t *testing.T) {
	e, _ := newExecutor(t, []string{buildShard(t, mobyDick)}, true)
	sea := query.New("combine", nil, query.Text("sea"))

	before, err := e.Execute(context.Background(), sea, retrieval.Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"moby-dick"}, names(before))

	next := []string{buildShard(t, mobyDick, seaStory), buildShard(t, whalers)}
	require.NoError(t, e.Reload(context.Background(), next))
	assert.Equal(t, next, e.Dirs())

	after, err := e.Execute(context.Background(), sea, retrieval.Options{})
	require.NoError(t, err)
	assert.Len(t, after.Documents, 3)

	stats, err := e.PartStatistics(context.Background(), disk.PartPostings)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.DocumentCount)
}

func TestReloadFailureKeepsShards(t *testing.T) {
	dir := buildShard(t, mobyDick)
	e, _ := newExecutor(t, []string{dir}, false)
	err := e.Reload(context.Background(), []string{filepath.Join(t.TempDir(), "missing")})
	assert.Error(t, err)
	assert.Equal(t, []string{dir}, e.Dirs())
	_, err = e.Execute(context.Background(), query.Text("whale"), retrieval.Options{})
	assert.NoError(t, err)
}

func TestClosedExecutor(t *testing.T) {
	e, _ := newExecutor(t, []string{buildShard(t, mobyDick)}, false)
	require.NoError(t, e.Close())
	_, err := e.Execute(context.Background(), query.Text("whale"), retrieval.Options{})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
	assert.Zero(t, e.ShardCount())
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "timeout", Outcome(nil, fmt.Errorf("%w: slow", apperrors.ErrTimeout)))
	assert.Equal(t, "timeout", Outcome(nil, context.DeadlineExceeded))
	assert.Equal(t, "error", Outcome(nil, errors.New("boom")))
	assert.Equal(t, "invalid", Outcome(nil, apperrors.ErrConstruction))
}
