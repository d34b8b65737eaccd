package repository

import (
	"time"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

// SessionRegistry holds live sessions keyed by task id.
type SessionRegistry[T any] interface {
	// Add registers v under id. Fails with domain.ErrDuplicateTask if id is live.
	Add(id domain.TaskID, v T) error

	// Get returns the entry for id.
	Get(id domain.TaskID) (T, bool)

	// Remove deletes id and returns the removed entry.
	Remove(id domain.TaskID) (T, bool)

	// List returns every live entry.
	List() []T

	// Len returns the number of live entries.
	Len() int
}

// FinishedStore retains final status snapshots of terminal sessions.
type FinishedStore interface {
	// Put stores snap until expires.
	Put(snap domain.StatusSnapshot, expires time.Time)

	// Get returns the snapshot for id unless it has expired at now.
	Get(id domain.TaskID, now time.Time) (domain.StatusSnapshot, bool)

	// Prune removes entries expired at now and returns how many were removed.
	Prune(now time.Time) int

	// Len returns the number of retained snapshots.
	Len() int
}
