package observability

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledTracerHandsOutNoopSpans(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{})
	require.NoError(t, err)
	_, span := tp.StartSpan(context.Background(), SpanReplay)
	assert.False(t, span.IsRecording())
	span.End()
	assert.NoError(t, tp.Shutdown(context.Background()))

	var nilProvider *TracerProvider
	_, span = nilProvider.StartSpan(context.Background(), SpanReplay)
	assert.False(t, span.IsRecording())
	assert.NoError(t, nilProvider.Shutdown(context.Background()))
}

func TestTracerRejectsUnknownExporter(t *testing.T) {
	_, err := NewTracerProvider(TracingConfig{Enabled: true, Exporter: "jaeger"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported exporter: jaeger")
}

func TestZipkinTracerRecordsSpans(t *testing.T) {
	tp, err := NewTracerProvider(TracingConfig{Enabled: true, Exporter: "zipkin"})
	require.NoError(t, err)
	defer func() { _ = tp.Shutdown(context.Background()) }()

	ctx := ContextWithRunID(ContextWithSessionID(context.Background(), "s1"), "r1")
	_, span := tp.StartSpan(ctx, SpanWorkflowRun)
	assert.True(t, span.IsRecording())
	span.End()
}

func TestLoggerTagsContextIDs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(LogConfig{Level: "DEBUG", Format: "text", Output: buf})

	ctx := ContextWithRunID(ContextWithSessionID(context.Background(), "s1"), "r1")
	logger.WithContext(ctx).Debug("tick")
	line := buf.String()
	assert.True(t, strings.Contains(line, "session_id=s1"), line)
	assert.True(t, strings.Contains(line, "run_id=r1"), line)

	assert.Same(t, logger, logger.WithContext(context.Background()))
	assert.Empty(t, RunIDFromContext(context.Background()))
}
