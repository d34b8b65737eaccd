package repository

import (
	"sync"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

// InMemorySessionRegistry implements SessionRegistry with a mutex-guarded map.
type InMemorySessionRegistry[T any] struct {
	mu      sync.RWMutex
	entries map[domain.TaskID]T
}

// NewInMemorySessionRegistry creates an empty registry.
func NewInMemorySessionRegistry[T any]() *InMemorySessionRegistry[T] {
	return &InMemorySessionRegistry[T]{
		entries: make(map[domain.TaskID]T),
	}
}

// Add registers v under id.
func (r *InMemorySessionRegistry[T]) Add(id domain.TaskID, v T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return domain.ErrDuplicateTask
	}
	r.entries[id] = v
	return nil
}

// Get returns the entry for id.
func (r *InMemorySessionRegistry[T]) Get(id domain.TaskID) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.entries[id]
	return v, ok
}

// Remove deletes id. Only the first of concurrent callers gets ok == true.
func (r *InMemorySessionRegistry[T]) Remove(id domain.TaskID) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return v, ok
}

// List returns every live entry in no particular order.
func (r *InMemorySessionRegistry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]T, 0, len(r.entries))
	for _, v := range r.entries {
		result = append(result, v)
	}
	return result
}

// Len returns the number of live entries.
func (r *InMemorySessionRegistry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Clear removes all entries (useful for testing).
func (r *InMemorySessionRegistry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[domain.TaskID]T)
}
