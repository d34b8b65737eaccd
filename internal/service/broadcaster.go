package service

import (
	"log/slog"
	"sync"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

// EventType distinguishes progress updates from lifecycle changes.
type EventType string

const (
	EventProgress EventType = "progress"
	EventStatus   EventType = "status"
)

// Event is one update delivered to session subscribers.
type Event struct {
	Type     EventType             `json:"type"`
	Snapshot domain.StatusSnapshot `json:"snapshot"`
}

// broadcaster fans session events out to any number of subscribers. Sends
// never block: a subscriber whose buffer is full misses the event.
type broadcaster struct {
	mu     sync.RWMutex
	subs   map[uint64]chan Event
	seq    uint64
	buffer int
	closed bool
	logger *slog.Logger
}

func newBroadcaster(buffer int, logger *slog.Logger) *broadcaster {
	if buffer <= 0 {
		buffer = 1
	}
	return &broadcaster{
		subs:   make(map[uint64]chan Event),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a new subscriber. After close the returned channel is
// already closed.
func (b *broadcaster) Subscribe() (uint64, <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.buffer)
	if b.closed {
		close(ch)
		return 0, ch
	}
	b.seq++
	b.subs[b.seq] = ch
	return b.seq, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *broadcaster) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		close(ch)
		delete(b.subs, id)
	}
}

// Publish delivers ev to every subscriber with room in its buffer.
func (b *broadcaster) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	for id, ch := range b.subs {
		select {
		case ch <- ev:
		default:
			b.logger.Debug("subscriber buffer full, dropping event", "subscriber_id", id, "event", ev.Type)
		}
	}
}

// Close delivers final to every subscriber, evicting the oldest buffered
// event when a buffer is full, then closes all channels.
func (b *broadcaster) Close(final Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		select {
		case ch <- final:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- final:
			default:
			}
		}
		close(ch)
		delete(b.subs, id)
	}
}

// Len returns the number of active subscribers.
func (b *broadcaster) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
