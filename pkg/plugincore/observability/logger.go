// Package observability provides structured logging, metrics, and tracing
// for the plugin registry and the events manager.
//
// Features:
//   - Structured logging via slog
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// PluginLogger adds plugin identity to a logger.
//
// Example:
//
//	log := PluginLogger(logger, "auth", "1.2.0")
//	log.Info("initializing") // includes plugin and plugin_version
func PluginLogger(logger *slog.Logger, name, version string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("plugin", name),
		slog.String("plugin_version", version),
	)
}

// LogPluginRegistered logs a successful registration.
func LogPluginRegistered(logger *slog.Logger, name, version string, dependencies int) {
	if logger == nil {
		return
	}
	logger.Info("plugin registered",
		slog.String("plugin", name),
		slog.String("plugin_version", version),
		slog.Int("dependencies", dependencies),
	)
}

// LogPluginUnregistered logs plugin removal.
func LogPluginUnregistered(logger *slog.Logger, name string) {
	if logger == nil {
		return
	}
	logger.Info("plugin unregistered",
		slog.String("plugin", name),
	)
}

// LogRegistrationFailed logs a rejected register or unregister call.
func LogRegistrationFailed(logger *slog.Logger, name, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("plugin registry operation rejected",
		slog.String("plugin", name),
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogStatusChange logs a plugin status transition.
func LogStatusChange(logger *slog.Logger, name, from, to string) {
	if logger == nil {
		return
	}
	logger.Info("plugin status changed",
		slog.String("plugin", name),
		slog.String("from", from),
		slog.String("to", to),
	)
}

// LogEventDropped logs an event rejected by a filter.
func LogEventDropped(logger *slog.Logger, eventType, eventID, filter string) {
	if logger == nil {
		return
	}
	logger.Debug("event dropped by filter",
		slog.String("event_type", eventType),
		slog.String("event_id", eventID),
		slog.String("filter", filter),
	)
}

// LogPropagationHalted logs an event whose middleware chain did not reach the handlers.
func LogPropagationHalted(logger *slog.Logger, eventType, eventID string, err error) {
	if logger == nil {
		return
	}
	attrs := []slog.Attr{
		slog.String("event_type", eventType),
		slog.String("event_id", eventID),
	}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		logger.LogAttrs(context.Background(), slog.LevelWarn, "event propagation halted by middleware", attrs...)
		return
	}
	logger.LogAttrs(context.Background(), slog.LevelDebug, "event propagation halted by middleware", attrs...)
}

// LogHandlerFailed logs a failed handler invocation at the given level.
func LogHandlerFailed(logger *slog.Logger, level slog.Level, eventType, subscriptionID, plugin string, err error) {
	if logger == nil {
		return
	}
	logger.LogAttrs(context.Background(), level, "event handler failed",
		slog.String("event_type", eventType),
		slog.String("subscription_id", subscriptionID),
		slog.String("plugin", plugin),
		slog.String("error", err.Error()),
	)
}

// LogStoreFailed logs an event store failure (non-fatal).
func LogStoreFailed(logger *slog.Logger, op, eventID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("event store operation failed",
		slog.String("operation", op),
		slog.String("event_id", eventID),
		slog.String("error", err.Error()),
	)
}

// LogBatchItemFailed logs a failed event inside a batch emission.
func LogBatchItemFailed(logger *slog.Logger, index int, eventType string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("batch event failed",
		slog.Int("index", index),
		slog.String("event_type", eventType),
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	elapsed := done()
func TimedOperation() func() time.Duration {
	start := time.Now()
	return func() time.Duration {
		return time.Since(start)
	}
}
