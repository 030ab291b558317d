package event

import (
	"sync"

	"github.com/randalmurphal/plugincore/pkg/plugincore/registry"
)

// subscriptionTable holds subscriptions per event type in dispatch order:
// descending priority, then subscription order.
type subscriptionTable struct {
	mu     sync.RWMutex
	byType map[string][]*subscription
	byID   *registry.Registry[string, *subscription]
}

func newSubscriptionTable() *subscriptionTable {
	return &subscriptionTable{
		byType: make(map[string][]*subscription),
		byID:   registry.New[string, *subscription](),
	}
}

func (t *subscriptionTable) add(s *subscription) {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.byType[s.eventType]
	// Insert after every subscription of equal or higher priority.
	i := len(list)
	for j, existing := range list {
		if existing.opts.Priority < s.opts.Priority {
			i = j
			break
		}
	}
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = s
	t.byType[s.eventType] = list
	t.byID.Insert(s.id, s)
}

func (t *subscriptionTable) remove(id string) (*subscription, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.byID.Get(id)
	if !ok {
		return nil, false
	}
	t.byID.Delete(id)

	list := t.byType[s.eventType]
	for i, existing := range list {
		if existing == s {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(t.byType, s.eventType)
	} else {
		t.byType[s.eventType] = list
	}
	return s, true
}

func (t *subscriptionTable) removeType(eventType string) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	list := t.byType[eventType]
	for _, s := range list {
		t.byID.Delete(s.id)
	}
	delete(t.byType, eventType)
	return len(list)
}

// snapshot returns the current dispatch list for eventType. Later changes to
// the table do not affect the returned slice.
func (t *subscriptionTable) snapshot(eventType string) []*subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()

	list := t.byType[eventType]
	out := make([]*subscription, len(list))
	copy(out, list)
	return out
}

func (t *subscriptionTable) count(eventType string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byType[eventType])
}

func (t *subscriptionTable) len() int {
	return t.byID.Len()
}

func (t *subscriptionTable) types() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.byType))
	for k := range t.byType {
		out = append(out, k)
	}
	return out
}

func (t *subscriptionTable) all() []*subscription {
	return t.byID.Values()
}
