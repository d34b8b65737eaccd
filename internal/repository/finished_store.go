package repository

import (
	"sync"
	"time"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

type finishedEntry struct {
	snap    domain.StatusSnapshot
	expires time.Time
}

// InMemoryFinishedStore implements FinishedStore using in-memory storage.
type InMemoryFinishedStore struct {
	mu      sync.RWMutex
	entries map[domain.TaskID]finishedEntry
}

// NewInMemoryFinishedStore creates a new in-memory finished store.
func NewInMemoryFinishedStore() *InMemoryFinishedStore {
	return &InMemoryFinishedStore{
		entries: make(map[domain.TaskID]finishedEntry),
	}
}

// Put stores snap until expires, replacing any earlier snapshot for the same id.
func (s *InMemoryFinishedStore) Put(snap domain.StatusSnapshot, expires time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snap.TaskID] = finishedEntry{snap: snap, expires: expires}
}

// Get returns the snapshot for id unless it has expired.
func (s *InMemoryFinishedStore) Get(id domain.TaskID, now time.Time) (domain.StatusSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || !now.Before(e.expires) {
		return domain.StatusSnapshot{}, false
	}
	return e.snap, true
}

// Prune removes expired snapshots.
func (s *InMemoryFinishedStore) Prune(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.entries {
		if !now.Before(e.expires) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of retained snapshots, expired or not.
func (s *InMemoryFinishedStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
