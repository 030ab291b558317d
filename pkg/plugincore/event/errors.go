package event

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the events manager.
var (
	// ErrClosed is returned by operations on a closed Manager.
	ErrClosed = errors.New("events manager closed")

	// ErrPermissionDenied is returned when the permission checker rejects a
	// plugin's subscribe or emit.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrMaxDepth is returned when handlers emit events recursively beyond
	// the configured depth.
	ErrMaxDepth = errors.New("max event depth exceeded")

	// ErrNoStore is returned by History when no store is configured.
	ErrNoStore = errors.New("no event store configured")

	// ErrNotFound is returned by stores when an event ID is unknown.
	ErrNotFound = errors.New("event not found")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")

	// ErrInvalidCondition is returned for malformed condition expressions.
	ErrInvalidCondition = errors.New("invalid condition")
)

// HandlerError records a failed handler invocation. It is collected in the
// emission Result and the subscription's stats; it is never raised to the
// emitter.
type HandlerError struct {
	SubscriptionID string
	EventType      string
	EventID        string
	Plugin         string
	Duration       time.Duration
	Timestamp      time.Time
	Err            error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler %s for %q failed: %v", e.SubscriptionID, e.EventType, e.Err)
}

// Unwrap returns the handler's error.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// TimeoutError reports a handler that did not finish within its timeout on
// the asynchronous path. The handler goroutine is abandoned, not stopped.
type TimeoutError struct {
	SubscriptionID string
	EventType      string
	Timeout        time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("handler %s for %q timed out after %s", e.SubscriptionID, e.EventType, e.Timeout)
}

// Unwrap lets errors.Is(err, context.DeadlineExceeded) match.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// BatchError reports the failure of one event in a batch emission.
type BatchError struct {
	Index     int
	EventType string
	Err       error
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	return fmt.Sprintf("batch event %d (%q) failed: %v", e.Index, e.EventType, e.Err)
}

// Unwrap returns the underlying failure.
func (e *BatchError) Unwrap() error {
	return e.Err
}
