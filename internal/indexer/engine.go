// Package indexer turns JSON-lines document records into sharded index
// directories. Records are decoded and tokenized in parallel and reach the
// shard builders in input order.
package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/sourcegraph/conc/stream"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/build"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/postings"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/metrics"
)

const maxLineBytes = 16 << 20

// Record is one input line. Title and Body are tokenized into fields of
// the same name; Terms, when present, are used as-is after them.
type Record struct {
	ID     *int64             `json:"id,omitempty"`
	Name   string             `json:"name"`
	Title  string             `json:"title,omitempty"`
	Body   string             `json:"body,omitempty"`
	Terms  []string           `json:"terms,omitempty"`
	Fields map[string]any     `json:"fields,omitempty"`
	Scores map[string]float32 `json:"scores,omitempty"`
}

type Engine struct {
	tok     *tokenizer.Tokenizer
	router  *shard.Router
	workers int
	next    int64
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func NewEngine(cfg config.IndexConfig, m *metrics.Metrics) (*Engine, error) {
	router, err := shard.NewRouter(cfg.Shards, build.Options{
		WriterOptions: postings.WriterOptions{
			BlockSize:         cfg.BlockSize,
			Skipping:          cfg.Skipping,
			SkipDistance:      cfg.SkipDistance,
			SkipResetDistance: cfg.SkipResetDistance,
		},
		Workers: cfg.Workers,
	})
	if err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Engine{
		tok:     tokenizer.New(tokenizer.Options{Stem: cfg.Stem}),
		router:  router,
		workers: workers,
		metrics: m,
		logger:  slog.Default().With("component", "indexer"),
	}, nil
}

// Document converts r into a builder document. id is used when the record
// carries none.
func (e *Engine) Document(r Record, id int64) build.Document {
	if r.ID != nil {
		id = *r.ID
	}
	tokenized := e.tok.Document([]tokenizer.Field{
		{Name: "title", Text: r.Title},
		{Name: "body", Text: r.Body},
	})
	terms := append(tokenized.Terms, r.Terms...)
	return build.Document{
		ID:      id,
		Name:    r.Name,
		Terms:   terms,
		Extents: tokenized.Extents,
		Fields:  r.Fields,
		Scores:  r.Scores,
	}
}

// Index reads JSON-lines records from r until EOF and returns how many
// were added. Records without an id are numbered by their position in the
// whole input stream, so ids keep increasing across calls.
func (e *Engine) Index(ctx context.Context, r io.Reader) (int64, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64<<10), maxLineBytes)

	var (
		mu       sync.Mutex
		firstErr error
		added    int64
	)
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	failed := func() bool {
		mu.Lock()
		defer mu.Unlock()
		return firstErr != nil
	}

	s := stream.New().WithMaxGoroutines(e.workers)
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			fail(err)
			break
		}
		if failed() {
			break
		}
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		data := append([]byte(nil), raw...)
		lineNo, seq := line, e.next
		e.next++
		s.Go(func() stream.Callback {
			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				return func() { fail(fmt.Errorf("%w: line %d: %v", apperrors.ErrInvalidInput, lineNo, err)) }
			}
			doc := e.Document(rec, seq)
			return func() {
				if failed() {
					return
				}
				if _, err := e.router.Add(doc); err != nil {
					fail(fmt.Errorf("line %d: %w", lineNo, err))
					return
				}
				added++
				if e.metrics != nil {
					e.metrics.DocsIndexedTotal.Inc()
				}
			}
		})
	}
	s.Wait()
	if err := scanner.Err(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("reading records: %w", err)
	}
	e.logger.Info("records indexed", "documents", added, "lines", line, "shards", e.router.NumShards())
	return added, firstErr
}

// ShardDirs names the directories of one build: dataDir/shard-N/buildID.
func ShardDirs(dataDir, buildID string, shards int) []string {
	dirs := make([]string, shards)
	for i := range dirs {
		dirs[i] = filepath.Join(dataDir, fmt.Sprintf("shard-%d", i), buildID)
	}
	return dirs
}

// NewBuildID names a build by its UTC start time, so build ids sort in
// build order.
func NewBuildID(now time.Time) string {
	return now.UTC().Format("20060102T150405.000")
}

// LatestDirs picks the newest build directory of every shard under
// dataDir.
func LatestDirs(dataDir string, shards int) ([]string, error) {
	dirs := make([]string, shards)
	for i := range dirs {
		shardDir := filepath.Join(dataDir, fmt.Sprintf("shard-%d", i))
		entries, err := os.ReadDir(shardDir)
		if err != nil {
			return nil, fmt.Errorf("listing builds of shard %d: %w", i, err)
		}
		var builds []string
		for _, e := range entries {
			if e.IsDir() {
				builds = append(builds, e.Name())
			}
		}
		if len(builds) == 0 {
			return nil, fmt.Errorf("%w: shard %d has no builds in %s", apperrors.ErrPartNotFound, i, shardDir)
		}
		dirs[i] = filepath.Join(shardDir, slices.Max(builds))
	}
	return dirs, nil
}

// Write writes every shard of the build and returns their directories in
// shard order.
func (e *Engine) Write(ctx context.Context, dataDir, buildID string) ([]build.Summary, error) {
	dirs := ShardDirs(dataDir, buildID, e.router.NumShards())
	summaries, err := e.router.WriteAll(ctx, dirs)
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (e *Engine) Documents() []int64 {
	return e.router.Documents()
}
