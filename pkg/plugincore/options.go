package plugincore

import (
	"log/slog"
	"os"
	"time"

	"github.com/randalmurphal/plugincore/pkg/plugincore/config"
	"github.com/randalmurphal/plugincore/pkg/plugincore/event"
	"github.com/randalmurphal/plugincore/pkg/plugincore/observability"
)

// coreOptions holds construction-time collaborators for a Core.
type coreOptions struct {
	logger   *slog.Logger
	checker  event.PermissionChecker
	store    event.Store
	storeSet bool
	metrics  observability.MetricsRecorder
	spans    observability.SpanManager
	now      func() time.Time
}

// Option configures a Core.
type Option func(*coreOptions)

// WithLogger sets the logger. Default: built from the logging config,
// writing to stderr.
func WithLogger(logger *slog.Logger) Option {
	return func(o *coreOptions) { o.logger = logger }
}

// WithPermissionChecker replaces the manifest-based permission checker.
func WithPermissionChecker(c event.PermissionChecker) Option {
	return func(o *coreOptions) { o.checker = c }
}

// WithStore uses s instead of the store the config describes. A nil s
// disables storage.
//
// Example:
//
//	core, err := plugincore.New(cfg, plugincore.WithStore(eventstore.NewMemoryStore(100)))
func WithStore(s event.Store) Option {
	return func(o *coreOptions) {
		o.store = s
		o.storeSet = true
	}
}

// WithMetrics sets the metrics recorder. Default: OpenTelemetry when
// observability.metrics is enabled, otherwise a no-op.
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(o *coreOptions) { o.metrics = m }
}

// WithSpanManager sets the span manager. Default: OpenTelemetry when
// observability.tracing is enabled, otherwise a no-op.
func WithSpanManager(s observability.SpanManager) Option {
	return func(o *coreOptions) { o.spans = s }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *coreOptions) { o.now = now }
}

func resolveOptions(cfg config.Config, opts []Option) coreOptions {
	var o coreOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = cfg.Logger(os.Stderr)
	}
	if o.metrics == nil {
		if cfg.Observability.Metrics {
			o.metrics = observability.NewMetricsRecorder()
		} else {
			o.metrics = observability.NoopMetrics{}
		}
	}
	if o.spans == nil {
		if cfg.Observability.Tracing {
			o.spans = observability.NewSpanManager()
		} else {
			o.spans = observability.NoopSpanManager{}
		}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}
