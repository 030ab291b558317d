package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/plugincore/pkg/plugincore/observability"
)

// Result describes the outcome of one emission.
type Result struct {
	Event *Event
	// Dropped is true when a filter rejected the event.
	Dropped bool
	// Halted is true when middleware did not let the event reach handlers.
	Halted    bool
	Invoked   int
	Succeeded int
	Failed    int
	// Errors holds failures from subscriptions whose ErrorHandling is not
	// ErrorHandlingIgnore.
	Errors []*HandlerError
}

// Err joins the reported handler failures, or returns nil.
func (r *Result) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Emit dispatches a system event synchronously: handlers run one after
// another on the caller's goroutine in priority order, and middleware is
// skipped. Handler failures are recorded in the Result, never returned.
func (m *Manager) Emit(ctx context.Context, eventType string, data any) (*Result, error) {
	return m.dispatch(ctx, eventType, data, DefaultEmitOptions(), false)
}

// EmitAsync dispatches a system event through the middleware chain and runs
// matching handlers concurrently, each under its timeout. It returns once
// every handler has finished or timed out.
func (m *Manager) EmitAsync(ctx context.Context, eventType string, data any) (*Result, error) {
	return m.dispatch(ctx, eventType, data, DefaultEmitOptions(), true)
}

// EmitWithOptions dispatches like EmitAsync with explicit event options.
// A non-system Source is checked against the permission checker.
func (m *Manager) EmitWithOptions(ctx context.Context, eventType string, data any, opts EmitOptions) (*Result, error) {
	return m.dispatch(ctx, eventType, data, opts, true)
}

func (m *Manager) dispatch(ctx context.Context, eventType string, data any, opts EmitOptions, async bool) (*Result, error) {
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	depth := depthFrom(ctx)
	if depth >= m.config.MaxDepth {
		return nil, fmt.Errorf("emit %q at depth %d: %w", eventType, depth, ErrMaxDepth)
	}
	if opts.Source != "" && opts.Source != SourceSystem && m.checker != nil &&
		!m.checker.HasPermission(opts.Source, PermissionEmit) {
		return nil, fmt.Errorf("plugin %q emit %q: %w", opts.Source, eventType, ErrPermissionDenied)
	}

	subs := m.table.snapshot(eventType)
	evt := New(eventType, data, opts, m.now())
	res := &Result{Event: evt}

	ctx, span := m.spans.StartEmitSpan(ctx, eventType, evt.ID)
	defer func() { m.spans.EndSpanWithError(span, res.Err()) }()

	if name, ok := m.runFilters(evt); !ok {
		res.Dropped = true
		m.dropped.Add(1)
		observability.LogEventDropped(m.logger, eventType, evt.ID, name)
		m.spans.AddSpanEvent(ctx, "event.dropped", attribute.String("filter", name))
		m.metrics.RecordEmission(ctx, eventType, 0, true)
		return res, nil
	}

	m.persist(ctx, evt, async)

	hctx := withDepth(ctx, depth+1)
	if async {
		m.runAsync(hctx, evt, subs, res)
	} else {
		m.runSync(hctx, evt, subs, res)
	}

	m.book.emitted(eventType, evt.Timestamp)
	m.metrics.RecordEmission(ctx, eventType, res.Invoked, false)
	return res, nil
}

// runFilters returns the name of the rejecting filter and false, or "" and
// true when every filter accepts. A panicking filter rejects.
func (m *Manager) runFilters(evt *Event) (string, bool) {
	rejectedBy := ""
	m.filters.Range(func(name string, f Filter) bool {
		if !safeFilter(f, evt) {
			rejectedBy = name
			return false
		}
		return true
	})
	return rejectedBy, rejectedBy == ""
}

func safeFilter(f Filter, evt *Event) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return f(evt)
}

func (m *Manager) persist(ctx context.Context, evt *Event, wait bool) {
	if m.store == nil || !m.beginWrite() {
		return
	}
	if wait {
		defer m.pending.Done()
		if err := m.store.Store(ctx, evt); err != nil {
			observability.LogStoreFailed(m.logger, "store", evt.ID, err)
		}
		return
	}

	go func() {
		defer m.pending.Done()
		if err := m.store.Store(context.WithoutCancel(ctx), evt); err != nil {
			observability.LogStoreFailed(m.logger, "store", evt.ID, err)
		}
	}()
}

// selectFor reports whether s should receive evt, claiming Once
// subscriptions so they fire exactly once.
func selectFor(s *subscription, evt *Event) bool {
	if !s.matches(evt) {
		return false
	}
	if s.opts.Once && !s.fired.CompareAndSwap(false, true) {
		return false
	}
	return true
}

func (m *Manager) runSync(ctx context.Context, evt *Event, subs []*subscription, res *Result) {
	var selected []*subscription
	for _, s := range subs {
		if selectFor(s, evt) {
			selected = append(selected, s)
		}
	}
	for _, s := range selected {
		d, err := m.invoke(ctx, evt, s, false)
		m.collect(res, evt, s, d, err)
	}
}

func (m *Manager) runAsync(ctx context.Context, evt *Event, subs []*subscription, res *Result) {
	var reached atomic.Bool
	final := func(ctx context.Context) error {
		if !reached.CompareAndSwap(false, true) {
			return nil
		}
		var selected []*subscription
		for _, s := range subs {
			if selectFor(s, evt) {
				selected = append(selected, s)
			}
		}

		var (
			wg sync.WaitGroup
			mu sync.Mutex
		)
		for _, s := range selected {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d, err := m.invoke(ctx, evt, s, true)
				mu.Lock()
				m.collect(res, evt, s, d, err)
				mu.Unlock()
			}()
		}
		wg.Wait()
		return nil
	}

	err := safeChain(ctx, evt, final, m.middleware.Values())
	if !reached.Load() {
		res.Halted = true
		m.halted.Add(1)
		observability.LogPropagationHalted(m.logger, evt.Type, evt.ID, err)
		return
	}
	if err != nil {
		m.logger.Warn("event middleware failed after dispatch",
			slog.String("event_type", evt.Type),
			slog.String("event_id", evt.ID),
			slog.String("error", err.Error()),
		)
	}
}

func safeChain(ctx context.Context, evt *Event, final Next, mws []Middleware) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("middleware panicked: %v", r)
		}
	}()
	return chainMiddleware(evt, final, mws)(ctx)
}

// invoke runs one handler, records its stats and removes Once subscriptions.
func (m *Manager) invoke(ctx context.Context, evt *Event, s *subscription, async bool) (time.Duration, error) {
	hctx, span := m.spans.StartHandlerSpan(ctx, evt.Type, s.id)
	began := time.Now()

	var err error
	if async {
		err = m.callWithTimeout(hctx, s, evt)
	} else {
		err = safeCall(hctx, s.handler, evt)
	}
	d := time.Since(began)

	m.spans.EndSpanWithError(span, err)
	s.record(evt, d, m.now(), err)
	m.book.handled(evt.Type, d, err != nil)
	m.metrics.RecordHandlerExecution(ctx, evt.Type, d, err)

	if s.opts.Once {
		m.table.remove(s.id)
	}
	return d, err
}

func (m *Manager) callWithTimeout(ctx context.Context, s *subscription, evt *Event) error {
	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = m.config.HandlerTimeout
	}
	if timeout <= 0 {
		return safeCall(ctx, s.handler, evt)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- safeCall(tctx, s.handler, evt)
	}()

	select {
	case err := <-done:
		return err
	case <-tctx.Done():
		if ctx.Err() == nil {
			return &TimeoutError{SubscriptionID: s.id, EventType: evt.Type, Timeout: timeout}
		}
		return ctx.Err()
	}
}

func safeCall(ctx context.Context, h Handler, evt *Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return h.Handle(ctx, evt)
}

// collect folds one handler outcome into res and applies the
// subscription's error policy. Callers serialize access to res.
func (m *Manager) collect(res *Result, evt *Event, s *subscription, d time.Duration, err error) {
	res.Invoked++
	if err == nil {
		res.Succeeded++
		return
	}
	res.Failed++

	switch s.opts.ErrorHandling {
	case ErrorHandlingIgnore:
		return
	case ErrorHandlingThrow:
		observability.LogHandlerFailed(m.logger, slog.LevelError, evt.Type, s.id, s.opts.Plugin, err)
	default:
		observability.LogHandlerFailed(m.logger, slog.LevelWarn, evt.Type, s.id, s.opts.Plugin, err)
	}
	res.Errors = append(res.Errors, &HandlerError{
		SubscriptionID: s.id,
		EventType:      evt.Type,
		EventID:        evt.ID,
		Plugin:         s.opts.Plugin,
		Duration:       d,
		Timestamp:      m.now(),
		Err:            err,
	})
}

type depthKey struct{}

func depthFrom(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

func withDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, depthKey{}, depth)
}
