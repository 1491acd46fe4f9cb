package threadsafe

import "sync"

// Map is a map guarded by a read-write mutex.
type Map[K comparable, V any] struct {
	m     map[K]V
	order []K
	mu    sync.RWMutex
}

// NewMap creates an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		m: make(map[K]V),
	}
}

// Set stores value under key.
func (m *Map[K, V]) Set(key K, value V) {
	m.Update(key, func(V, bool) V { return value })
}

// Update replaces the value under key with fn(old, present) atomically.
func (m *Map[K, V]) Update(key K, fn func(old V, ok bool) V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	old, ok := m.m[key]
	if !ok {
		m.order = append(m.order, key)
	}
	m.m[key] = fn(old, ok)
}

// Get retrieves the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.m[key]
	return val, ok
}

// Keys returns the keys in first-insertion order.
func (m *Map[K, V]) Keys() []K {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]K(nil), m.order...)
}

// Len returns the number of keys.
func (m *Map[K, V]) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.m)
}
