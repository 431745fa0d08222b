package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansInheritTraceID(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "request", "req-1")
	_, child := StartChildSpan(ctx, "search")
	child.End()
	root.End()

	require.Len(t, root.Children, 1)
	assert.Equal(t, "req-1", child.TraceID)
	assert.Same(t, child, root.Children[0])
}

func TestChildWithoutParent(t *testing.T) {
	ctx, span := StartChildSpan(context.Background(), "orphan")
	span.SetAttr("k", 1)
	span.End()
	assert.Same(t, span, SpanFromContext(ctx))
	assert.Empty(t, span.TraceID)
}

func TestLogOnlyAtDebug(t *testing.T) {
	var buf bytes.Buffer
	ctx, root := StartSpan(context.Background(), "request", "req-2")
	_, child := StartChildSpan(ctx, "rank")
	child.SetAttr("results", 3)
	child.End()
	root.End()

	info := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	root.Log(ctx, info)
	assert.Empty(t, buf.String())

	debug := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	root.Log(ctx, debug)
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "span=request")
	assert.Contains(t, lines[1], "span=rank")
	assert.Contains(t, lines[1], "results=3")
	assert.Contains(t, lines[1], "depth=1")
}
