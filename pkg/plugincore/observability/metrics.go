package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName is the instrumentation scope used for all plugincore metrics.
const MeterName = "plugincore"

// MetricsRecorder records plugin registry and event dispatch metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordEmission records an event emission and how many handlers it reached.
	// Dropped is true when a filter rejected the event.
	RecordEmission(ctx context.Context, eventType string, handlers int, dropped bool)

	// RecordHandlerExecution records one handler invocation.
	RecordHandlerExecution(ctx context.Context, eventType string, duration time.Duration, err error)

	// RecordRegistration records a plugin register attempt.
	RecordRegistration(ctx context.Context, plugin string, err error)

	// RecordBatch records a batch emission.
	RecordBatch(ctx context.Context, mode string, size int, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	emissions          metric.Int64Counter
	dropped            metric.Int64Counter
	handlerExecutions  metric.Int64Counter
	handlerLatency     metric.Float64Histogram
	handlerErrors      metric.Int64Counter
	registrations      metric.Int64Counter
	registrationErrors metric.Int64Counter
	batches            metric.Int64Counter
	batchSize          metric.Int64Histogram
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter(MeterName)

	emissions, err := meter.Int64Counter("plugincore.event.emissions",
		metric.WithDescription("Number of events emitted"),
	)
	if err != nil {
		return nil, err
	}

	dropped, err := meter.Int64Counter("plugincore.event.dropped",
		metric.WithDescription("Number of events rejected by a filter"),
	)
	if err != nil {
		return nil, err
	}

	handlerExecutions, err := meter.Int64Counter("plugincore.handler.executions",
		metric.WithDescription("Number of event handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handlerLatency, err := meter.Float64Histogram("plugincore.handler.latency_ms",
		metric.WithDescription("Event handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	handlerErrors, err := meter.Int64Counter("plugincore.handler.errors",
		metric.WithDescription("Number of failed event handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	registrations, err := meter.Int64Counter("plugincore.plugin.registrations",
		metric.WithDescription("Number of plugin registration attempts"),
	)
	if err != nil {
		return nil, err
	}

	registrationErrors, err := meter.Int64Counter("plugincore.plugin.registration_errors",
		metric.WithDescription("Number of rejected plugin registrations"),
	)
	if err != nil {
		return nil, err
	}

	batches, err := meter.Int64Counter("plugincore.batch.emissions",
		metric.WithDescription("Number of batch emissions"),
	)
	if err != nil {
		return nil, err
	}

	batchSize, err := meter.Int64Histogram("plugincore.batch.size",
		metric.WithDescription("Number of events per batch emission"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		emissions:          emissions,
		dropped:            dropped,
		handlerExecutions:  handlerExecutions,
		handlerLatency:     handlerLatency,
		handlerErrors:      handlerErrors,
		registrations:      registrations,
		registrationErrors: registrationErrors,
		batches:            batches,
		batchSize:          batchSize,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := newOtelMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordEmission records an event emission.
func (m *otelMetrics) RecordEmission(ctx context.Context, eventType string, handlers int, dropped bool) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))
	if dropped {
		m.dropped.Add(ctx, 1, attrs)
		return
	}
	m.emissions.Add(ctx, 1, attrs)
}

// RecordHandlerExecution records a handler invocation.
func (m *otelMetrics) RecordHandlerExecution(ctx context.Context, eventType string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(attribute.String("event_type", eventType))

	m.handlerExecutions.Add(ctx, 1, attrs)
	m.handlerLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.handlerErrors.Add(ctx, 1, attrs)
	}
}

// RecordRegistration records a plugin registration attempt.
func (m *otelMetrics) RecordRegistration(ctx context.Context, plugin string, err error) {
	attrs := metric.WithAttributes(
		attribute.String("plugin", plugin),
		attribute.Bool("success", err == nil),
	)
	m.registrations.Add(ctx, 1, attrs)
	if err != nil {
		m.registrationErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("plugin", plugin)))
	}
}

// RecordBatch records a batch emission.
func (m *otelMetrics) RecordBatch(ctx context.Context, mode string, size int, err error) {
	attrs := metric.WithAttributes(
		attribute.String("mode", mode),
		attribute.Bool("success", err == nil),
	)
	m.batches.Add(ctx, 1, attrs)
	m.batchSize.Record(ctx, int64(size), attrs)
}
