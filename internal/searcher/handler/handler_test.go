package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/disk"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/query"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

type fakeExecutor struct {
	node *query.Node
	opts retrieval.Options
	err  error
}

func (f *fakeExecutor) Execute(_ context.Context, node *query.Node, opts retrieval.Options) (*retrieval.Results, error) {
	f.node, f.opts = node, opts
	if f.err != nil {
		return nil, f.err
	}
	return &retrieval.Results{
		Query:     node.String(),
		Documents: []ranker.ScoredDocument{{Document: 1, Name: "moby-dick", Score: -2.5, Rank: 1}},
		Summary:   ranker.Summary{Candidates: 1, Scored: 1},
	}, nil
}

func (f *fakeExecutor) PartStatistics(_ context.Context, part string) (disk.PartStatistics, error) {
	if part != disk.PartPostings {
		return disk.PartStatistics{}, fmt.Errorf("%w: %s", apperrors.ErrPartNotFound, part)
	}
	return disk.PartStatistics{PartName: part, DocumentCount: 3, CollectionLength: 8}, nil
}

func (f *fakeExecutor) InvalidateCache(context.Context) (int64, error) { return 4, nil }

func serve(t *testing.T, exec QueryExecutor, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	New(exec).Register(mux)
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestQuery(t *testing.T) {
	exec := &fakeExecutor{}
	rec := serve(t, exec, http.MethodPost, "/api/v1/query",
		`{"query":{"operator":"combine","children":[{"operator":"text","params":{"default":"whale"}}]},"requested":5,"workingSet":[1,2]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, "combine", exec.node.Operator)
	assert.Equal(t, 5, exec.opts.Requested)
	assert.Equal(t, []int64{1, 2}, exec.opts.WorkingSet)

	var res retrieval.Results
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.Len(t, res.Documents, 1)
	assert.Equal(t, "moby-dick", res.Documents[0].Name)
}

func TestQueryErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"bad json", `{`, nil, http.StatusBadRequest},
		{"no query", `{"requested":3}`, nil, http.StatusBadRequest},
		{"node without operator", `{"query":{"children":[]}}`, nil, http.StatusBadRequest},
		{"bad operator", `{"query":{"operator":"nope"}}`, fmt.Errorf("%w: nope", apperrors.ErrBadOperator), http.StatusBadRequest},
		{"shard failure", `{"query":{"operator":"text","params":{"default":"x"}}}`, apperrors.ErrShardFailed, http.StatusServiceUnavailable},
		{"internal", `{"query":{"operator":"text","params":{"default":"x"}}}`, errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, &fakeExecutor{err: tt.err}, http.MethodPost, "/api/v1/query", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			assert.NotContains(t, rec.Body.String(), "disk on fire")
		})
	}
}

func TestPartStatistics(t *testing.T) {
	rec := serve(t, &fakeExecutor{}, http.MethodGet, "/api/v1/parts/postings/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats disk.PartStatistics
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(3), stats.DocumentCount)

	rec = serve(t, &fakeExecutor{}, http.MethodGet, "/api/v1/parts/missing/stats", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCacheInvalidate(t *testing.T) {
	rec := serve(t, &fakeExecutor{}, http.MethodPost, "/api/v1/cache/invalidate", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"deleted":4`)
}
