package event

import (
	"maps"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SourceSystem is the source of events emitted by the host rather than a plugin.
const SourceSystem = "system"

// Priority orders subscriptions (and labels events). Higher runs first.
type Priority int

// Standard priority levels.
const (
	PriorityLowest  Priority = 0
	PriorityLow     Priority = 25
	PriorityNormal  Priority = 50
	PriorityHigh    Priority = 75
	PriorityHighest Priority = 100
)

// Event is one emission. A fresh Event is created for every emit call; all
// fields are fixed at creation except the cancelled flag.
type Event struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Source      string         `json:"source"`
	Data        any            `json:"data,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Priority    Priority       `json:"priority"`
	Namespace   string         `json:"namespace,omitempty"`
	Version     string         `json:"version,omitempty"`
	Cancellable bool           `json:"cancellable,omitempty"`

	cancelled atomic.Bool
}

// EmitOptions describe the event an emit call creates.
// Start from DefaultEmitOptions to get the standard source and priority.
type EmitOptions struct {
	Source      string
	Metadata    map[string]any
	Priority    Priority
	Namespace   string
	Version     string
	Cancellable bool
}

// DefaultEmitOptions returns options for a system event at normal priority.
func DefaultEmitOptions() EmitOptions {
	return EmitOptions{Source: SourceSystem, Priority: PriorityNormal}
}

// New creates an event with a fresh ID and the given timestamp.
// An empty source becomes SourceSystem.
func New(eventType string, data any, opts EmitOptions, at time.Time) *Event {
	source := opts.Source
	if source == "" {
		source = SourceSystem
	}
	return &Event{
		ID:          uuid.New().String(),
		Type:        eventType,
		Source:      source,
		Data:        data,
		Timestamp:   at,
		Metadata:    maps.Clone(opts.Metadata),
		Priority:    opts.Priority,
		Namespace:   opts.Namespace,
		Version:     opts.Version,
		Cancellable: opts.Cancellable,
	}
}

// Cancel marks a cancellable event as cancelled and reports whether it did.
// Cancellation is advisory: dispatch continues and handlers may consult
// Cancelled.
func (e *Event) Cancel() bool {
	if !e.Cancellable {
		return false
	}
	e.cancelled.Store(true)
	return true
}

// Cancelled reports whether Cancel succeeded on this event.
func (e *Event) Cancelled() bool {
	return e.cancelled.Load()
}

// Clone returns a copy of the event with its own metadata map.
// Data is shared.
func (e *Event) Clone() *Event {
	c := &Event{
		ID:          e.ID,
		Type:        e.Type,
		Source:      e.Source,
		Data:        e.Data,
		Timestamp:   e.Timestamp,
		Metadata:    maps.Clone(e.Metadata),
		Priority:    e.Priority,
		Namespace:   e.Namespace,
		Version:     e.Version,
		Cancellable: e.Cancellable,
	}
	c.cancelled.Store(e.cancelled.Load())
	return c
}
