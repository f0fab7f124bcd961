package tracing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/search-retrieval-core/pkg/config"
)

func TestChildSpansNeedARoot(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "compile")
	assert.Nil(t, span)
	assert.Nil(t, SpanFromContext(ctx))
	span.SetAttr("ignored", true)
	span.End()
	span.Log(ctx)
}

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "query", "q-1")
	_, compile := StartChildSpan(ctx, "compile")
	compile.SetAttr("nodes", 3)
	compile.End()
	rankCtx, rank := StartChildSpan(ctx, "rank")
	_, names := StartChildSpan(rankCtx, "resolve-names")
	names.End()
	rank.End()
	root.End()

	require.Len(t, root.Children, 2)
	assert.Equal(t, "compile", root.Children[0].Name)
	assert.Equal(t, "q-1", root.Children[1].Children[0].TraceID)
	assert.Equal(t, 3, root.Children[0].Attrs["nodes"])
	root.Log(ctx)
}

func TestTracerSampling(t *testing.T) {
	_, span := NewTracer(config.TracingConfig{}).Start(context.Background(), "query", "q")
	assert.Nil(t, span)
	_, span = NewTracer(config.TracingConfig{Enabled: true, SampleRate: 1}).Start(context.Background(), "query", "q")
	assert.NotNil(t, span)
	var nilTracer *Tracer
	_, span = nilTracer.Start(context.Background(), "query", "q")
	assert.Nil(t, span)
}
