package event

import (
	"sync"
	"time"
)

// maxEmissionHistory caps the timestamps kept for throughput calculation.
const maxEmissionHistory = 10000

// Throughput counts emissions within trailing windows.
type Throughput struct {
	PerSecond int
	PerMinute int
	PerHour   int
}

// EventMetrics aggregates dispatch statistics for one event type.
type EventMetrics struct {
	EventType            string
	Emissions            int64
	SubscriptionsCreated int64
	ActiveSubscriptions  int
	HandlerExecutions    int64
	HandlerFailures      int64
	AverageHandlerTime   time.Duration
	LastEmission         time.Time
	Throughput           Throughput
}

type typeMetrics struct {
	EventMetrics
	history []time.Time
}

// metricsBook tracks EventMetrics for every event type seen.
type metricsBook struct {
	mu     sync.Mutex
	byType map[string]*typeMetrics
	now    func() time.Time
}

func newMetricsBook(now func() time.Time) *metricsBook {
	return &metricsBook{byType: make(map[string]*typeMetrics), now: now}
}

func (b *metricsBook) entry(eventType string) *typeMetrics {
	m, ok := b.byType[eventType]
	if !ok {
		m = &typeMetrics{EventMetrics: EventMetrics{EventType: eventType}}
		b.byType[eventType] = m
	}
	return m
}

func (b *metricsBook) subscribed(eventType string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entry(eventType).SubscriptionsCreated++
}

func (b *metricsBook) emitted(eventType string, at time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.entry(eventType)
	m.Emissions++
	m.LastEmission = at
	m.history = append(m.history, at)
	m.history = trimHistory(m.history, at.Add(-time.Hour))
}

func (b *metricsBook) handled(eventType string, d time.Duration, failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.entry(eventType)
	m.HandlerExecutions++
	m.AverageHandlerTime += (d - m.AverageHandlerTime) / time.Duration(m.HandlerExecutions)
	if failed {
		m.HandlerFailures++
	}
}

// snapshot returns the metrics for eventType. ActiveSubscriptions is filled
// in by the caller.
func (b *metricsBook) snapshot(eventType string) (EventMetrics, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	m, ok := b.byType[eventType]
	if !ok {
		return EventMetrics{EventType: eventType}, false
	}
	return b.withThroughput(m), true
}

func (b *metricsBook) all() map[string]EventMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make(map[string]EventMetrics, len(b.byType))
	for k, m := range b.byType {
		out[k] = b.withThroughput(m)
	}
	return out
}

func (b *metricsBook) withThroughput(m *typeMetrics) EventMetrics {
	now := b.now()
	em := m.EventMetrics
	em.Throughput = Throughput{}
	for i := len(m.history) - 1; i >= 0; i-- {
		age := now.Sub(m.history[i])
		if age > time.Hour {
			break
		}
		em.Throughput.PerHour++
		if age <= time.Minute {
			em.Throughput.PerMinute++
		}
		if age <= time.Second {
			em.Throughput.PerSecond++
		}
	}
	return em
}

// trimHistory drops timestamps before cutoff and enforces the history cap.
// Timestamps are appended in order, so the oldest are at the front.
func trimHistory(h []time.Time, cutoff time.Time) []time.Time {
	drop := 0
	for drop < len(h) && h[drop].Before(cutoff) {
		drop++
	}
	if over := len(h) - drop - maxEmissionHistory; over > 0 {
		drop += over
	}
	if drop == 0 {
		return h
	}
	return append(h[:0], h[drop:]...)
}
