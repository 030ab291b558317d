package eventstore

import (
	"context"
	"iter"
	"sync"

	"github.com/randalmurphal/plugincore/pkg/plugincore/event"
)

// MemoryStore keeps the most recent events in a fixed-size ring buffer.
// When full, storing an event evicts the oldest one. Events are cloned on
// the way in and out, so callers never share the stored copy.
type MemoryStore struct {
	mu     sync.RWMutex
	buf    []*event.Event
	head   int // index of the oldest event
	size   int
	closed bool
}

// NewMemoryStore creates a ring buffer holding up to capacity events.
// A non-positive capacity uses DefaultCapacity.
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{buf: make([]*event.Event, capacity)}
}

// Capacity returns the maximum number of events kept.
func (m *MemoryStore) Capacity() int {
	return len(m.buf)
}

// Len returns the number of events currently held.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// Store implements event.Store.
func (m *MemoryStore) Store(_ context.Context, evt *event.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrStoreClosed
	}

	c := evt.Clone()
	if m.size < len(m.buf) {
		m.buf[(m.head+m.size)%len(m.buf)] = c
		m.size++
		return nil
	}
	m.buf[m.head] = c
	m.head = (m.head + 1) % len(m.buf)
	return nil
}

// matching returns the held events that satisfy c, oldest first.
// Caller must hold m.mu.
func (m *MemoryStore) matching(c event.Criteria) []*event.Event {
	var out []*event.Event
	for i := 0; i < m.size; i++ {
		evt := m.buf[(m.head+i)%len(m.buf)]
		if c.Matches(evt) {
			out = append(out, evt)
		}
	}
	return out
}

// Retrieve implements event.Store.
func (m *MemoryStore) Retrieve(_ context.Context, c event.Criteria) ([]*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}

	found := c.Apply(m.matching(c))
	out := make([]*event.Event, len(found))
	for i, evt := range found {
		out[i] = evt.Clone()
	}
	return out, nil
}

// Count implements event.Store.
func (m *MemoryStore) Count(_ context.Context, c event.Criteria) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrStoreClosed
	}
	return len(m.matching(c)), nil
}

// Delete implements event.Store.
func (m *MemoryStore) Delete(_ context.Context, c event.Criteria) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrStoreClosed
	}

	kept := make([]*event.Event, len(m.buf))
	n := 0
	for i := 0; i < m.size; i++ {
		evt := m.buf[(m.head+i)%len(m.buf)]
		if !c.Matches(evt) {
			kept[n] = evt
			n++
		}
	}
	removed := m.size - n
	m.buf, m.head, m.size = kept, 0, n
	return removed, nil
}

// GetByID implements event.Store.
func (m *MemoryStore) GetByID(_ context.Context, id string) (*event.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrStoreClosed
	}
	// Newest first: IDs are unique, and recent lookups are the common case.
	for i := m.size - 1; i >= 0; i-- {
		evt := m.buf[(m.head+i)%len(m.buf)]
		if evt.ID == id {
			return evt.Clone(), nil
		}
	}
	return nil, event.ErrNotFound
}

// Stream implements event.Store. The matching set is captured when
// iteration begins.
func (m *MemoryStore) Stream(ctx context.Context, c event.Criteria) iter.Seq2[*event.Event, error] {
	return func(yield func(*event.Event, error) bool) {
		events, err := m.Retrieve(ctx, c)
		streamSlice(ctx, events, err)(yield)
	}
}

// Close implements event.Store. It drops every held event.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	clear(m.buf)
	m.head, m.size = 0, 0
	return nil
}
