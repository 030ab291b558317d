package event

import (
	"cmp"
	"context"
	"iter"
	"slices"
	"time"
)

// Store persists emitted events and answers queries over them.
// Implementations must be safe for concurrent use.
type Store interface {
	// Store saves an event.
	Store(ctx context.Context, evt *Event) error

	// Retrieve returns the events matching c.
	Retrieve(ctx context.Context, c Criteria) ([]*Event, error)

	// Count returns how many events match c, ignoring Skip and Limit.
	Count(ctx context.Context, c Criteria) (int, error)

	// Delete removes the events matching c, ignoring Skip and Limit, and
	// returns how many were removed.
	Delete(ctx context.Context, c Criteria) (int, error)

	// GetByID returns one event, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*Event, error)

	// Stream yields the events matching c in order.
	Stream(ctx context.Context, c Criteria) iter.Seq2[*Event, error]

	// Close releases resources.
	Close() error
}

// SortField selects the ordering of query results.
type SortField int

const (
	// SortByTimestamp orders by emission time. This is the default.
	SortByTimestamp SortField = iota
	// SortByType orders by event type, then time.
	SortByType
	// SortBySource orders by source, then time.
	SortBySource
)

// Criteria selects stored events. Zero-valued fields match everything.
type Criteria struct {
	Types      []string
	Sources    []string
	Namespaces []string
	IDs        []string
	// Since and Until bound Timestamp, inclusive.
	Since time.Time
	Until time.Time

	SortBy     SortField
	Descending bool
	Skip       int
	Limit      int
}

// Matches reports whether evt satisfies the filter fields of c.
func (c Criteria) Matches(evt *Event) bool {
	if len(c.Types) > 0 && !slices.Contains(c.Types, evt.Type) {
		return false
	}
	if len(c.Sources) > 0 && !slices.Contains(c.Sources, evt.Source) {
		return false
	}
	if len(c.Namespaces) > 0 && !slices.Contains(c.Namespaces, evt.Namespace) {
		return false
	}
	if len(c.IDs) > 0 && !slices.Contains(c.IDs, evt.ID) {
		return false
	}
	if !c.Since.IsZero() && evt.Timestamp.Before(c.Since) {
		return false
	}
	if !c.Until.IsZero() && evt.Timestamp.After(c.Until) {
		return false
	}
	return true
}

// Apply sorts events in place per c and returns the Skip/Limit window.
func (c Criteria) Apply(events []*Event) []*Event {
	slices.SortStableFunc(events, func(a, b *Event) int {
		var r int
		switch c.SortBy {
		case SortByType:
			r = cmp.Compare(a.Type, b.Type)
		case SortBySource:
			r = cmp.Compare(a.Source, b.Source)
		}
		if r == 0 {
			r = a.Timestamp.Compare(b.Timestamp)
		}
		if c.Descending {
			r = -r
		}
		return r
	})

	if c.Skip > 0 {
		if c.Skip >= len(events) {
			return events[:0]
		}
		events = events[c.Skip:]
	}
	if c.Limit > 0 && c.Limit < len(events) {
		events = events[:c.Limit]
	}
	return events
}
