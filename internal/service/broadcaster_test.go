package service

import (
	"io"
	"log/slog"
	"testing"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

func testBroadcaster(buffer int) *broadcaster {
	return newBroadcaster(buffer, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func progressEvent(pct float64) Event {
	return Event{Type: EventProgress, Snapshot: domain.StatusSnapshot{Progress: domain.Progress{Percent: pct}}}
}

func TestBroadcaster_FanOut(t *testing.T) {
	b := testBroadcaster(4)
	_, a := b.Subscribe()
	_, c := b.Subscribe()

	b.Publish(progressEvent(10))

	for i, ch := range []<-chan Event{a, c} {
		ev := <-ch
		if ev.Snapshot.Progress.Percent != 10 {
			t.Errorf("subscriber %d got %v, want 10", i, ev.Snapshot.Progress.Percent)
		}
	}
}

func TestBroadcaster_PublishNeverBlocks(t *testing.T) {
	b := testBroadcaster(1)
	_, ch := b.Subscribe()

	for i := 0; i < 10; i++ {
		b.Publish(progressEvent(float64(i)))
	}
	if ev := <-ch; ev.Snapshot.Progress.Percent != 0 {
		t.Errorf("buffered event = %v, want the first one", ev.Snapshot.Progress.Percent)
	}
}

func TestBroadcaster_CloseDeliversFinal(t *testing.T) {
	b := testBroadcaster(1)
	_, ch := b.Subscribe()
	b.Publish(progressEvent(5))

	final := Event{Type: EventStatus, Snapshot: domain.StatusSnapshot{Status: domain.StatusStopped}}
	b.Close(final)

	ev, ok := <-ch
	if !ok || ev.Type != EventStatus || ev.Snapshot.Status != domain.StatusStopped {
		t.Fatalf("got %+v %v, want final status event", ev, ok)
	}
	if _, ok := <-ch; ok {
		t.Error("channel should be closed after the final event")
	}
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}

	b.Publish(progressEvent(50))
	b.Close(final)
}

func TestBroadcaster_SubscribeAfterClose(t *testing.T) {
	b := testBroadcaster(1)
	b.Close(Event{Type: EventStatus})

	_, ch := b.Subscribe()
	if _, ok := <-ch; ok {
		t.Error("subscription after close should be closed")
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	b := testBroadcaster(1)
	id, ch := b.Subscribe()
	b.Unsubscribe(id)
	b.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after unsubscribe")
	}
	b.Publish(progressEvent(1))
	if b.Len() != 0 {
		t.Errorf("Len() = %d, want 0", b.Len())
	}
}
