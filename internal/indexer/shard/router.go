// Package shard partitions documents across index shards by hashing the
// document name. Each shard accumulates into its own builder and is
// written to its own directory.
package shard

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"
	"github.com/sourcegraph/conc/pool"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/index/build"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

// Router maps documents to per-shard builders.
type Router struct {
	builders []*build.Builder
	logger   *slog.Logger
}

func NewRouter(numShards int, opts build.Options) (*Router, error) {
	if numShards < 1 {
		return nil, fmt.Errorf("%w: %d shards", apperrors.ErrInvalidInput, numShards)
	}
	r := &Router{
		builders: make([]*build.Builder, numShards),
		logger:   slog.Default().With("component", "shard-router"),
	}
	for i := range r.builders {
		r.builders[i] = build.New(opts)
	}
	r.logger.Info("shard router ready", "num_shards", numShards)
	return r, nil
}

// Route returns the shard that owns doc. Named documents hash by name,
// anonymous ones by id.
func (r *Router) Route(doc build.Document) int {
	var h uint64
	if doc.Name != "" {
		h = xxhash.Sum64String(doc.Name)
	} else {
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], uint64(doc.ID))
		h = xxhash.Sum64(buf[:])
	}
	return int(h % uint64(len(r.builders)))
}

// Add routes doc and adds it to its shard's builder.
func (r *Router) Add(doc build.Document) (int, error) {
	shard := r.Route(doc)
	if err := r.builders[shard].Add(doc); err != nil {
		return shard, fmt.Errorf("shard %d: %w", shard, err)
	}
	return shard, nil
}

func (r *Router) NumShards() int {
	return len(r.builders)
}

// Documents returns the number of documents accumulated per shard.
func (r *Router) Documents() []int64 {
	out := make([]int64, len(r.builders))
	for i, b := range r.builders {
		out[i] = b.Documents()
	}
	return out
}

// WriteAll writes shard i into dirs[i], all shards in parallel.
func (r *Router) WriteAll(ctx context.Context, dirs []string) ([]build.Summary, error) {
	if len(dirs) != len(r.builders) {
		return nil, fmt.Errorf("%w: %d directories for %d shards", apperrors.ErrInvalidInput, len(dirs), len(r.builders))
	}
	summaries := make([]build.Summary, len(r.builders))
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for i, b := range r.builders {
		p.Go(func(ctx context.Context) error {
			s, err := b.Write(ctx, dirs[i])
			if err != nil {
				return fmt.Errorf("writing shard %d: %w", i, err)
			}
			summaries[i] = s
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}
