package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	assert.Equal(t, "", RequestID(ctx))
	assert.Equal(t, "", Action(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithAction(ctx, "load")

	assert.Equal(t, "req-1", RequestID(ctx))
	assert.Equal(t, "load", Action(ctx))
}

func TestCorrelationHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)

	ctx := WithAction(WithRequestID(context.Background(), "req-9"), "scan")
	logger.InfoContext(ctx, "scanned", slog.Int("count", 2))

	out := buf.String()
	assert.Contains(t, out, "request_id=req-9")
	assert.Contains(t, out, "action=scan")
	assert.Contains(t, out, "count=2")
}

func TestCorrelationHandler_OmitsMissingKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug)

	logger.InfoContext(context.Background(), "startup")

	out := buf.String()
	assert.NotContains(t, out, "request_id")
	assert.NotContains(t, out, "action=")
}

func TestCorrelationHandler_LevelAndDerivedLoggers(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelWarn).With(slog.String("component", "dispatch")).WithGroup("g")

	ctx := WithRequestID(context.Background(), "req-2")
	logger.InfoContext(ctx, "hidden")
	assert.Empty(t, buf.String())

	logger.WarnContext(ctx, "shown", slog.String("k", "v"))
	out := buf.String()
	assert.Contains(t, out, "component=dispatch")
	assert.Contains(t, out, "request_id=req-2")
	assert.Contains(t, out, "g.k=v")
}
