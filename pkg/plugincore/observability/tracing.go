package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for all plugincore spans.
const TracerName = "plugincore"

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartEmitSpan starts a span covering one event dispatch.
	StartEmitSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span)

	// StartHandlerSpan starts a span for one handler invocation.
	// It should be a child of the emit span.
	StartHandlerSpan(ctx context.Context, eventType, subscriptionID string) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

type otelSpanManager struct {
	tracer trace.Tracer
}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The tracer is taken from the global OTel tracer provider at call time.
// Configure the provider first:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{tracer: otel.Tracer(TracerName)}
}

// StartEmitSpan starts a span for an event dispatch.
func (m *otelSpanManager) StartEmitSpan(ctx context.Context, eventType, eventID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "plugincore.emit "+eventType,
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("event.id", eventID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartHandlerSpan starts a span for a handler invocation.
func (m *otelSpanManager) StartHandlerSpan(ctx context.Context, eventType, subscriptionID string) (context.Context, trace.Span) {
	return m.tracer.Start(ctx, "plugincore.handle "+eventType,
		trace.WithAttributes(
			attribute.String("event.type", eventType),
			attribute.String("subscription.id", subscriptionID),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	EndSpanWithError(span, err)
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
