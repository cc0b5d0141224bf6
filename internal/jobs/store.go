package jobs

import "sync"

// StateStore keeps the last value stored per key. Writers replace, readers
// get whatever was stored last. The lock only guards the map; stored values
// are used after it is released.
type StateStore[K comparable, V any] struct {
	mu     sync.RWMutex
	values map[K]V
}

// NewStateStore creates an empty store
func NewStateStore[K comparable, V any]() *StateStore[K, V] {
	return &StateStore[K, V]{values: make(map[K]V)}
}

// Put stores v under k, dropping the previous value
func (s *StateStore[K, V]) Put(k K, v V) {
	s.mu.Lock()
	s.values[k] = v
	s.mu.Unlock()
}

// Get returns the value stored under k
func (s *StateStore[K, V]) Get(k K) (V, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k]
	return v, ok
}

// Len returns the number of stored keys
func (s *StateStore[K, V]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}
