package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func setupTracingTest(t *testing.T) *tracetest.InMemoryExporter {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	original := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	t.Cleanup(func() {
		otel.SetTracerProvider(original)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("shutting down tracer provider: %v", err)
		}
	})
	return exporter
}

func attrValue(attrs []attribute.KeyValue, key string) string {
	for _, a := range attrs {
		if string(a.Key) == key {
			return a.Value.AsString()
		}
	}
	return ""
}

func TestStartEmitSpan(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	_, span := sm.StartEmitSpan(context.Background(), "user:login", "evt-1")
	sm.EndSpanWithError(span, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "plugincore.emit user:login", spans[0].Name)
	assert.Equal(t, "user:login", attrValue(spans[0].Attributes, "event.type"))
	assert.Equal(t, "evt-1", attrValue(spans[0].Attributes, "event.id"))
	assert.Equal(t, codes.Ok, spans[0].Status.Code)
}

func TestStartHandlerSpan_IsChild(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, emit := sm.StartEmitSpan(context.Background(), "job:done", "evt-2")
	_, handler := sm.StartHandlerSpan(ctx, "job:done", "sub-9")
	sm.EndSpanWithError(handler, errors.New("handler exploded"))
	sm.EndSpanWithError(emit, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	h := spans[0]
	assert.Equal(t, "plugincore.handle job:done", h.Name)
	assert.Equal(t, "sub-9", attrValue(h.Attributes, "subscription.id"))
	assert.Equal(t, codes.Error, h.Status.Code)
	assert.Equal(t, "handler exploded", h.Status.Description)
	assert.Equal(t, spans[1].SpanContext.SpanID(), h.Parent.SpanID())
}

func TestAddSpanEvent(t *testing.T) {
	exporter := setupTracingTest(t)
	sm := NewSpanManager()

	ctx, span := sm.StartEmitSpan(context.Background(), "a", "b")
	sm.AddSpanEvent(ctx, "filtered", attribute.String("filter", "rate"))
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	require.Len(t, spans[0].Events, 1)
	assert.Equal(t, "filtered", spans[0].Events[0].Name)
}

func TestAddSpanEvent_NoSpan(t *testing.T) {
	setupTracingTest(t)
	assert.NotPanics(t, func() {
		NewSpanManager().AddSpanEvent(context.Background(), "nothing")
	})
}

func TestEndSpanWithError_Nil(t *testing.T) {
	assert.NotPanics(t, func() { EndSpanWithError(nil, errors.New("x")) })
}
