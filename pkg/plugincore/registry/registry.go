// Package registry provides a thread-safe, insertion-ordered keyed collection.
//
// The plugin registry and the events manager both need lookups by key and
// iteration in the order entries were added (plugin search results and
// subscription listings are reported in insertion order).
package registry

import "sync"

// Registry is a thread-safe registry for values indexed by key that
// remembers insertion order. It uses sync.RWMutex for read-heavy workloads.
type Registry[K comparable, V any] struct {
	mu      sync.RWMutex
	order   []K
	entries map[K]V
}

// New creates a new empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{
		entries: make(map[K]V),
	}
}

// Insert adds a value only if the key is absent.
// It returns false, leaving the registry untouched, when the key exists.
func (r *Registry[K, V]) Insert(key K, value V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; ok {
		return false
	}
	r.entries[key] = value
	r.order = append(r.order, key)
	return true
}

// Set adds or replaces a value. A replaced value keeps its original position.
func (r *Registry[K, V]) Set(key K, value V) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		r.order = append(r.order, key)
	}
	r.entries[key] = value
}

// Update applies fn to the value stored under key.
// It returns false if the key does not exist.
func (r *Registry[K, V]) Update(key K, fn func(V) V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.entries[key]
	if !ok {
		return false
	}
	r.entries[key] = fn(v)
	return true
}

// Get returns the value for a key and whether it exists.
func (r *Registry[K, V]) Get(key K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has returns true if the key exists in the registry.
func (r *Registry[K, V]) Has(key K) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Delete removes a key from the registry and reports whether it was present.
func (r *Registry[K, V]) Delete(key K) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Keys returns all keys in insertion order.
func (r *Registry[K, V]) Keys() []K {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]K, len(r.order))
	copy(keys, r.order)
	return keys
}

// Values returns all values in insertion order.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	values := make([]V, 0, len(r.order))
	for _, k := range r.order {
		values = append(values, r.entries[k])
	}
	return values
}

// Len returns the number of entries in the registry.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Range iterates over entries in insertion order.
// If fn returns false, iteration stops.
//
// Range iterates over a snapshot of the registry, so it is safe
// to call Insert or Delete from fn.
func (r *Registry[K, V]) Range(fn func(K, V) bool) {
	r.mu.RLock()
	keys := make([]K, len(r.order))
	copy(keys, r.order)
	values := make([]V, len(keys))
	for i, k := range keys {
		values[i] = r.entries[k]
	}
	r.mu.RUnlock()

	for i, k := range keys {
		if !fn(k, values[i]) {
			return
		}
	}
}
