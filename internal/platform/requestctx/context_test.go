package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
)

func TestLoggerDefaultsToNoop(t *testing.T) {
	if Logger(context.Background()) != NoopLogger() {
		t.Fatalf("expected noop logger on empty context")
	}
	logger := zap.NewExample()
	if got := Logger(WithLogger(context.Background(), logger)); got != logger {
		t.Fatalf("expected stored logger")
	}
	if got := Logger(WithLogger(context.Background(), nil)); got != NoopLogger() {
		t.Fatalf("nil logger should resolve to noop")
	}
}

func TestTraceAndQueryID(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", SpanID: "def"})
	ctx = WithQueryID(ctx, "01J0000000000000000000000Q")

	if TraceID(ctx) != "abc" {
		t.Fatalf("unexpected trace id %q", TraceID(ctx))
	}
	if QueryID(ctx) != "01J0000000000000000000000Q" {
		t.Fatalf("unexpected query id %q", QueryID(ctx))
	}
	if QueryID(context.Background()) != "" || TraceID(context.Background()) != "" {
		t.Fatalf("expected empty identifiers on bare context")
	}
}
