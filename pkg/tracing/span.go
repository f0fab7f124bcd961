// Package tracing times the stages of a query as a tree of spans carried in
// the context. Finished trees are logged through slog. Tracing is off
// unless a root span is started, and every Span method is safe on a nil
// span.
package tracing

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
)

type contextKey struct{}

// Span represents a timed operation within a trace.
type Span struct {
	Name      string
	TraceID   string
	StartTime time.Time
	Duration  time.Duration
	Children  []*Span
	Attrs     map[string]any
	mu        sync.Mutex
}

// Tracer decides which requests are traced.
type Tracer struct {
	cfg config.TracingConfig
}

func NewTracer(cfg config.TracingConfig) *Tracer {
	return &Tracer{cfg: cfg}
}

// Start begins a root span when tracing is enabled and the request is
// sampled. Otherwise ctx is returned unchanged with a nil span.
func (t *Tracer) Start(ctx context.Context, name, traceID string) (context.Context, *Span) {
	if t == nil || !t.cfg.Enabled {
		return ctx, nil
	}
	if t.cfg.SampleRate > 0 && t.cfg.SampleRate < 1 && rand.Float64() >= t.cfg.SampleRate {
		return ctx, nil
	}
	return StartSpan(ctx, name, traceID)
}

// StartSpan creates a new root span and stores it in the returned context.
func StartSpan(ctx context.Context, name string, traceID string) (context.Context, *Span) {
	span := newSpan(name, traceID)
	return context.WithValue(ctx, contextKey{}, span), span
}

// StartChildSpan creates a child of the span in ctx. Without a parent no
// span is created.
func StartChildSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent := SpanFromContext(ctx)
	if parent == nil {
		return ctx, nil
	}
	child := newSpan(name, parent.TraceID)
	parent.mu.Lock()
	parent.Children = append(parent.Children, child)
	parent.mu.Unlock()
	return context.WithValue(ctx, contextKey{}, child), child
}

func newSpan(name, traceID string) *Span {
	return &Span{
		Name:      name,
		TraceID:   traceID,
		StartTime: time.Now(),
		Attrs:     make(map[string]any),
	}
}

// End records the span's duration.
func (s *Span) End() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Duration = time.Since(s.StartTime)
	s.mu.Unlock()
}

func (s *Span) SetAttr(key string, value any) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.Attrs[key] = value
	s.mu.Unlock()
}

// SpanFromContext extracts the current Span from ctx, or nil if none.
func SpanFromContext(ctx context.Context) *Span {
	if span, ok := ctx.Value(contextKey{}).(*Span); ok {
		return span
	}
	return nil
}

// Log writes the span tree to slog at debug level.
func (s *Span) Log(ctx context.Context) {
	if s == nil {
		return
	}
	s.logRecursive(ctx, 0)
}

func (s *Span) logRecursive(ctx context.Context, depth int) {
	s.mu.Lock()
	attrs := []any{
		"trace_id", s.TraceID,
		"span", s.Name,
		"duration_ms", float64(s.Duration.Microseconds()) / 1000,
		"depth", depth,
	}
	for k, v := range s.Attrs {
		attrs = append(attrs, k, v)
	}
	children := append([]*Span(nil), s.Children...)
	s.mu.Unlock()
	slog.DebugContext(ctx, "span", attrs...)

	for _, child := range children {
		child.logRecursive(ctx, depth+1)
	}
}
