// Package ranker drives a compiled iterator tree over its candidates and
// keeps the best scoring documents.
package ranker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/RoaringBitmap/roaring/roaring64"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/internal/retrieval/iterator"
	apperrors "github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/errors"
)

const defaultCheckInterval = 1024

type ScoredDocument struct {
	Document int64   `json:"document"`
	Name     string  `json:"name,omitempty"`
	Score    float64 `json:"score"`
	Rank     int     `json:"rank"`
	// Shard is set when results of several shards are merged.
	Shard int `json:"shard"`
}

type State int

const (
	NotStarted State = iota
	Advancing
	Collecting
	Done
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not-started"
	case Advancing:
		return "advancing"
	case Collecting:
		return "collecting"
	case Done:
		return "done"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type Options struct {
	Requested int
	// WorkingSet restricts ranking to the listed documents, each scored
	// whether or not the root matches it.
	WorkingSet *roaring64.Bitmap
	// Contains reports whether the index holds a document. Working-set
	// entries it rejects are skipped; nil admits every entry.
	Contains func(doc int64) (bool, error)
	// MaxCandidates stops the walk after this many candidates; zero means
	// no limit.
	MaxCandidates int64
	// CheckInterval is how many candidates pass between context checks.
	CheckInterval int
}

// NameResolver maps ascending document ids to names.
type NameResolver interface {
	Names(docs []int64) ([]string, error)
}

// Summary describes one completed walk.
type Summary struct {
	Candidates int64 `json:"candidates"`
	Scored     int64 `json:"scored"`
	Truncated  bool  `json:"truncated"`
}

// Ranker walks one root iterator once. It is not safe for concurrent use.
type Ranker struct {
	root    iterator.Iterator
	scorer  iterator.ScoreIterator
	opts    Options
	state   State
	summary Summary
	logger  *slog.Logger
}

// New prepares a walk over root. Roots that produce no scores rank their
// matches by document id with a score of zero.
func New(root iterator.Iterator, opts Options) *Ranker {
	if opts.Requested <= 0 {
		opts.Requested = 1000
	}
	if opts.CheckInterval <= 0 {
		opts.CheckInterval = defaultCheckInterval
	}
	scorer, _ := root.(iterator.ScoreIterator)
	return &Ranker{
		root:   root,
		scorer: scorer,
		opts:   opts,
		logger: slog.Default().With("component", "ranker"),
	}
}

func (r *Ranker) State() State { return r.state }

func (r *Ranker) Summary() Summary { return r.summary }

// Run walks the root and returns the top documents in rank order, without
// names.
func (r *Ranker) Run(ctx context.Context) ([]ScoredDocument, error) {
	if r.state != NotStarted {
		return nil, fmt.Errorf("%w: ranker already ran", apperrors.ErrInvalidInput)
	}
	r.state = Advancing
	top := NewTopK(r.opts.Requested)
	var err error
	if r.opts.WorkingSet != nil {
		err = r.walkWorkingSet(ctx, top)
	} else {
		err = r.walk(ctx, top)
	}
	if err != nil {
		r.state = Done
		return nil, err
	}
	r.state = Collecting
	results := top.Sorted()
	r.state = Done
	return results, nil
}

func (r *Ranker) checkpoint(ctx context.Context) error {
	if r.summary.Candidates%int64(r.opts.CheckInterval) != 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: ranking stopped after %d candidates: %w", apperrors.ErrTimeout, r.summary.Candidates, err)
	}
	return nil
}

func (r *Ranker) walk(ctx context.Context, top *TopK) error {
	c := &iterator.ScoringContext{}
	for !r.root.IsDone() {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		doc := r.root.CurrentCandidate()
		if _, err := r.root.MoveTo(doc); err != nil {
			return fmt.Errorf("moving to document %d: %w", doc, err)
		}
		if r.root.HasMatch(doc) {
			c.Document = doc
			top.Offer(ScoredDocument{Document: doc, Score: r.score(c)})
			r.summary.Scored++
		}
		if err := r.root.MovePast(doc); err != nil {
			return fmt.Errorf("moving past document %d: %w", doc, err)
		}
		r.summary.Candidates++
		if r.opts.MaxCandidates > 0 && r.summary.Candidates >= r.opts.MaxCandidates {
			r.summary.Truncated = !r.root.IsDone()
			if r.summary.Truncated {
				r.logger.Warn("candidate limit reached", "limit", r.opts.MaxCandidates)
			}
			break
		}
	}
	return nil
}

func (r *Ranker) walkWorkingSet(ctx context.Context, top *TopK) error {
	c := &iterator.ScoringContext{}
	docs := r.opts.WorkingSet.Iterator()
	for docs.HasNext() {
		if err := r.checkpoint(ctx); err != nil {
			return err
		}
		doc := int64(docs.Next())
		if r.opts.Contains != nil {
			ok, err := r.opts.Contains(doc)
			if err != nil {
				return fmt.Errorf("looking up document %d: %w", doc, err)
			}
			if !ok {
				continue
			}
		}
		if _, err := r.root.MoveTo(doc); err != nil {
			return fmt.Errorf("moving to document %d: %w", doc, err)
		}
		r.summary.Candidates++
		if r.scorer != nil || r.root.HasMatch(doc) {
			c.Document = doc
			top.Offer(ScoredDocument{Document: doc, Score: r.score(c)})
			r.summary.Scored++
		}
		if r.opts.MaxCandidates > 0 && r.summary.Candidates >= r.opts.MaxCandidates {
			r.summary.Truncated = docs.HasNext()
			break
		}
	}
	return nil
}

func (r *Ranker) score(c *iterator.ScoringContext) float64 {
	if r.scorer == nil {
		return 0
	}
	return r.scorer.Score(c)
}

// ResolveNames fills in names in one ascending pass over the document ids
// and leaves results in their rank order.
func ResolveNames(ctx context.Context, results []ScoredDocument, names NameResolver) error {
	if len(results) == 0 || names == nil {
		return nil
	}
	byDoc := make([]int, len(results))
	for i := range byDoc {
		byDoc[i] = i
	}
	sort.Slice(byDoc, func(a, b int) bool { return results[byDoc[a]].Document < results[byDoc[b]].Document })
	ids := make([]int64, len(byDoc))
	for i, ri := range byDoc {
		ids[i] = results[ri].Document
	}
	resolved, err := names.Names(ids)
	if err != nil {
		return fmt.Errorf("resolving names: %w", err)
	}
	logger := slog.Default().With("component", "ranker")
	for i, ri := range byDoc {
		results[ri].Name = resolved[i]
		if resolved[i] == "" {
			logger.WarnContext(ctx, "document has no name", "document", ids[i])
		}
	}
	return nil
}
