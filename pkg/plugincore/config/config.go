package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Config is the runtime configuration of a plugin core.
type Config struct {
	Events        EventsConfig
	Store         StoreConfig
	Logging       LoggingConfig
	Observability ObservabilityConfig
}

// EventsConfig configures the events manager.
type EventsConfig struct {
	// HandlerTimeout bounds asynchronous handlers. Zero disables it.
	HandlerTimeout time.Duration
	// MaxDepth caps nested emissions from handlers.
	MaxDepth int
}

// StoreConfig selects the event store.
type StoreConfig struct {
	// Backend is memory, sqlite or none.
	Backend string
	// Capacity is the memory ring buffer size.
	Capacity int
	// Path is the sqlite database file.
	Path string
	// MaxRows caps the sqlite table. Zero means unbounded.
	MaxRows int
}

// LoggingConfig configures the slog logger built by Logger.
type LoggingConfig struct {
	Level  string
	Format string
}

// ObservabilityConfig toggles OpenTelemetry instrumentation.
type ObservabilityConfig struct {
	Metrics bool
	Tracing bool
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Events: EventsConfig{
			HandlerTimeout: 30 * time.Second,
			MaxDepth:       10,
		},
		Store: StoreConfig{
			Backend:  BackendMemory,
			Capacity: 10000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// FromValues overlays v on Default.
//
//	events:
//	  handler_timeout: 30s
//	  max_depth: 10
//	store:
//	  backend: sqlite
//	  path: ./events.db
//	  max_rows: 50000
//	logging:
//	  level: debug
//	  format: json
//	observability:
//	  metrics: true
//	  tracing: true
func FromValues(v Values) Config {
	d := Default()
	return Config{
		Events: EventsConfig{
			HandlerTimeout: v.Duration("events.handler_timeout", d.Events.HandlerTimeout),
			MaxDepth:       v.Int("events.max_depth", d.Events.MaxDepth),
		},
		Store: StoreConfig{
			Backend:  strings.ToLower(v.String("store.backend", d.Store.Backend)),
			Capacity: v.Int("store.capacity", d.Store.Capacity),
			Path:     v.String("store.path", d.Store.Path),
			MaxRows:  v.Int("store.max_rows", d.Store.MaxRows),
		},
		Logging: LoggingConfig{
			Level:  v.String("logging.level", d.Logging.Level),
			Format: strings.ToLower(v.String("logging.format", d.Logging.Format)),
		},
		Observability: ObservabilityConfig{
			Metrics: v.Bool("observability.metrics", d.Observability.Metrics),
			Tracing: v.Bool("observability.tracing", d.Observability.Tracing),
		},
	}
}

// Validate reports every invalid field, joined.
func (c Config) Validate() error {
	var errs []error
	if c.Events.HandlerTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: events.handler_timeout must not be negative", ErrInvalid))
	}
	if c.Events.MaxDepth < 1 {
		errs = append(errs, fmt.Errorf("%w: events.max_depth must be at least 1", ErrInvalid))
	}

	switch c.Store.Backend {
	case BackendMemory:
		if c.Store.Capacity < 0 {
			errs = append(errs, fmt.Errorf("%w: store.capacity must not be negative", ErrInvalid))
		}
	case BackendSQLite:
		if c.Store.Path == "" {
			errs = append(errs, fmt.Errorf("%w: store.path is required for the sqlite backend", ErrInvalid))
		}
		if c.Store.MaxRows < 0 {
			errs = append(errs, fmt.Errorf("%w: store.max_rows must not be negative", ErrInvalid))
		}
	case BackendNone:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown store.backend %q", ErrInvalid, c.Store.Backend))
	}

	if _, err := c.Logging.level(); err != nil {
		errs = append(errs, fmt.Errorf("%w: logging.level: %v", ErrInvalid, err))
	}
	if c.Logging.Format != FormatText && c.Logging.Format != FormatJSON {
		errs = append(errs, fmt.Errorf("%w: unknown logging.format %q", ErrInvalid, c.Logging.Format))
	}
	return errors.Join(errs...)
}

func (l LoggingConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if l.Level == "" {
		return slog.LevelInfo, nil
	}
	err := lvl.UnmarshalText([]byte(l.Level))
	return lvl, err
}

// Logger builds a slog logger writing to w. An invalid level falls back to
// info; Validate reports it.
func (c Config) Logger(w io.Writer) *slog.Logger {
	lvl, err := c.Logging.level()
	if err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Logging.Format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
