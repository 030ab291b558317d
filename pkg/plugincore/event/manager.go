package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/randalmurphal/plugincore/pkg/plugincore/observability"
	"github.com/randalmurphal/plugincore/pkg/plugincore/registry"
)

// Config configures Manager behavior.
type Config struct {
	// HandlerTimeout bounds each handler on the asynchronous path when the
	// subscription sets no timeout of its own. Zero disables the default.
	// Default: 30s
	HandlerTimeout time.Duration

	// MaxDepth limits how deeply handlers may emit events from within
	// dispatch. Default: 10
	MaxDepth int
}

// DefaultConfig provides reasonable defaults.
var DefaultConfig = Config{
	HandlerTimeout: 30 * time.Second,
	MaxDepth:       10,
}

// Manager is the publish/subscribe engine. It owns the subscription table,
// the filter and middleware chains and per-type metrics. Create one with
// NewManager; it is safe for concurrent use.
type Manager struct {
	config Config

	table      *subscriptionTable
	filters    *registry.Registry[string, Filter]
	middleware *registry.Registry[string, Middleware]
	book       *metricsBook

	store   Store
	checker PermissionChecker
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	now     func() time.Time

	dropped atomic.Int64
	halted  atomic.Int64
	closed  atomic.Bool

	// closeMu orders pending.Add against Close so no store write starts
	// once Close begins waiting.
	closeMu sync.Mutex
	pending sync.WaitGroup
}

// Option configures a Manager.
type Option func(*Manager)

// WithConfig replaces the default Config. Non-positive fields keep their
// defaults, except a zero HandlerTimeout which disables the default timeout.
func WithConfig(cfg Config) Option {
	return func(m *Manager) {
		if cfg.MaxDepth <= 0 {
			cfg.MaxDepth = DefaultConfig.MaxDepth
		}
		if cfg.HandlerTimeout < 0 {
			cfg.HandlerTimeout = DefaultConfig.HandlerTimeout
		}
		m.config = cfg
	}
}

// WithStore persists every dispatched event to s.
func WithStore(s Store) Option {
	return func(m *Manager) { m.store = s }
}

// WithPermissionChecker sets the security collaborator.
func WithPermissionChecker(c PermissionChecker) Option {
	return func(m *Manager) { m.checker = c }
}

// WithLogger sets the manager logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r observability.MetricsRecorder) Option {
	return func(m *Manager) {
		if r != nil {
			m.metrics = r
		}
	}
}

// WithSpanManager sets the span manager used for tracing dispatch.
func WithSpanManager(s observability.SpanManager) Option {
	return func(m *Manager) {
		if s != nil {
			m.spans = s
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates an events manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		config:     DefaultConfig,
		table:      newSubscriptionTable(),
		filters:    registry.New[string, Filter](),
		middleware: registry.New[string, Middleware](),
		logger:     slog.Default(),
		metrics:    observability.NoopMetrics{},
		spans:      observability.NoopSpanManager{},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.book = newMetricsBook(m.now)
	return m
}

// Subscribe registers handler for eventType and returns the subscription ID.
// Use DefaultSubscribeOptions as the starting point for opts.
func (m *Manager) Subscribe(eventType string, handler Handler, opts SubscribeOptions) (string, error) {
	if m.closed.Load() {
		return "", ErrClosed
	}
	if handler == nil {
		return "", fmt.Errorf("subscribe %q: nil handler", eventType)
	}
	if opts.Plugin != "" && m.checker != nil && !m.checker.HasPermission(opts.Plugin, PermissionSubscribe) {
		return "", fmt.Errorf("plugin %q subscribe %q: %w", opts.Plugin, eventType, ErrPermissionDenied)
	}

	s := &subscription{
		id:           uuid.New().String(),
		eventType:    eventType,
		handler:      handler,
		opts:         opts,
		subscribedAt: m.now(),
	}
	m.table.add(s)
	m.book.subscribed(eventType)
	return s.id, nil
}

// On subscribes with default options modified by opts.
func (m *Manager) On(eventType string, handler Handler, opts ...SubscribeOption) (string, error) {
	o := DefaultSubscribeOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return m.Subscribe(eventType, handler, o)
}

// Once subscribes for a single delivery.
func (m *Manager) Once(eventType string, handler Handler, opts ...SubscribeOption) (string, error) {
	return m.On(eventType, handler, append(opts, func(o *SubscribeOptions) { o.Once = true })...)
}

// Unsubscribe removes a subscription and reports whether it existed.
func (m *Manager) Unsubscribe(id string) bool {
	_, ok := m.table.remove(id)
	return ok
}

// Off is an alias of Unsubscribe.
func (m *Manager) Off(id string) bool {
	return m.Unsubscribe(id)
}

// RemoveAllListeners removes every subscription for eventType and returns
// how many were removed.
func (m *Manager) RemoveAllListeners(eventType string) int {
	return m.table.removeType(eventType)
}

// Listeners describes the subscriptions for eventType in dispatch order.
func (m *Manager) Listeners(eventType string) []SubscriptionInfo {
	subs := m.table.snapshot(eventType)
	out := make([]SubscriptionInfo, 0, len(subs))
	for _, s := range subs {
		out = append(out, s.info())
	}
	return out
}

// ListenerCount returns the number of subscriptions for eventType.
func (m *Manager) ListenerCount(eventType string) int {
	return m.table.count(eventType)
}

// EventTypes returns the event types that currently have subscriptions.
func (m *Manager) EventTypes() []string {
	return m.table.types()
}

// AddFilter appends a named filter. Adding an existing name replaces the
// filter in place.
func (m *Manager) AddFilter(name string, f Filter) {
	m.filters.Set(name, f)
}

// RemoveFilter removes a named filter.
func (m *Manager) RemoveFilter(name string) bool {
	return m.filters.Delete(name)
}

// AddMiddleware appends named middleware. Adding an existing name replaces
// the middleware in place.
func (m *Manager) AddMiddleware(name string, mw Middleware) {
	m.middleware.Set(name, mw)
}

// RemoveMiddleware removes named middleware.
func (m *Manager) RemoveMiddleware(name string) bool {
	return m.middleware.Delete(name)
}

// Metrics returns the metrics for one event type.
func (m *Manager) Metrics(eventType string) EventMetrics {
	em, _ := m.book.snapshot(eventType)
	em.ActiveSubscriptions = m.table.count(eventType)
	return em
}

// AllMetrics returns metrics for every event type that has been subscribed
// to or emitted.
func (m *Manager) AllMetrics() map[string]EventMetrics {
	all := m.book.all()
	for k, em := range all {
		em.ActiveSubscriptions = m.table.count(k)
		all[k] = em
	}
	return all
}

// Stats summarizes the manager.
type Stats struct {
	Subscriptions int
	EventTypes    int
	Filters       int
	Middleware    int
	Emissions     int64
	Dropped       int64
	Halted        int64
}

// Stats returns manager-wide counters.
func (m *Manager) Stats() Stats {
	s := Stats{
		Subscriptions: m.table.len(),
		EventTypes:    len(m.table.types()),
		Filters:       m.filters.Len(),
		Middleware:    m.middleware.Len(),
		Dropped:       m.dropped.Load(),
		Halted:        m.halted.Load(),
	}
	for _, em := range m.book.all() {
		s.Emissions += em.Emissions
	}
	return s
}

// History queries the configured store.
func (m *Manager) History(ctx context.Context, c Criteria) ([]*Event, error) {
	if m.store == nil {
		return nil, ErrNoStore
	}
	return m.store.Retrieve(ctx, c)
}

// Close stops accepting subscriptions and emissions and waits for store
// writes already in flight. Emissions still running when Close is called
// skip their store write. Close does not close the store.
func (m *Manager) Close() error {
	m.closeMu.Lock()
	m.closed.Store(true)
	m.closeMu.Unlock()
	m.pending.Wait()
	return nil
}

// beginWrite registers a store write with pending, or reports false once
// the manager is closed.
func (m *Manager) beginWrite() bool {
	m.closeMu.Lock()
	defer m.closeMu.Unlock()
	if m.closed.Load() {
		return false
	}
	m.pending.Add(1)
	return true
}
