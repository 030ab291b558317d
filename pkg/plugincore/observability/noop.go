package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

// RecordEmission does nothing.
func (NoopMetrics) RecordEmission(_ context.Context, _ string, _ int, _ bool) {}

// RecordHandlerExecution does nothing.
func (NoopMetrics) RecordHandlerExecution(_ context.Context, _ string, _ time.Duration, _ error) {}

// RecordRegistration does nothing.
func (NoopMetrics) RecordRegistration(_ context.Context, _ string, _ error) {}

// RecordBatch does nothing.
func (NoopMetrics) RecordBatch(_ context.Context, _ string, _ int, _ error) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartEmitSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartEmitSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartHandlerSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartHandlerSpan(ctx context.Context, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}

// AddSpanEvent does nothing.
func (NoopSpanManager) AddSpanEvent(_ context.Context, _ string, _ ...attribute.KeyValue) {}
