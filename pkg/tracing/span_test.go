package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "stats.field", "req-1")
	childCtx, child := StartChildSpan(ctx, "shard-0")
	child.SetAttr("hits", 12)
	child.End()
	root.End()

	if SpanFromContext(childCtx) != child || SpanFromContext(ctx) != root {
		t.Fatal("span not stored in context")
	}
	if child.TraceID != "req-1" || len(root.Children) != 1 {
		t.Fatalf("child = %+v, root children = %d", child, len(root.Children))
	}

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	if !strings.Contains(out, "span=stats.field") || !strings.Contains(out, "hits=12") {
		t.Errorf("log output = %q", out)
	}
}

func TestChildWithoutParent(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	if span.TraceID != "" {
		t.Errorf("orphan trace id = %q", span.TraceID)
	}
}
