package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/service"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withURLParam attaches a chi URL parameter to req.
func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

// mockStreamService is a test implementation of StreamService.
type mockStreamService struct {
	mu sync.Mutex

	createErr  error
	lastCreate service.CreateRequest
	creates    int

	outputs  map[domain.TaskID]io.ReadCloser
	openErr  error
	snaps    map[domain.TaskID]domain.StatusSnapshot
	events   map[domain.TaskID]chan service.Event
	stopped  map[domain.TaskID]int
	stopHook func(id domain.TaskID)
}

func newMockStreamService() *mockStreamService {
	return &mockStreamService{
		outputs: make(map[domain.TaskID]io.ReadCloser),
		snaps:   make(map[domain.TaskID]domain.StatusSnapshot),
		events:  make(map[domain.TaskID]chan service.Event),
		stopped: make(map[domain.TaskID]int),
	}
}

func (m *mockStreamService) CreateSession(ctx context.Context, req service.CreateRequest) (*service.Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++
	m.lastCreate = req
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.snaps[req.TaskID] = domain.StatusSnapshot{TaskID: req.TaskID, Status: domain.StatusStreaming, Options: req.Options}
	return &service.Handle{TaskID: req.TaskID}, nil
}

func (m *mockStreamService) OpenStream(id domain.TaskID) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	out, ok := m.outputs[id]
	if !ok {
		return nil, domain.NewStreamError(id, "open", domain.ErrSessionNotFound)
	}
	delete(m.outputs, id)
	return out, nil
}

func (m *mockStreamService) Subscribe(id domain.TaskID) (<-chan service.Event, func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.events[id]
	if !ok {
		return nil, nil, domain.NewStreamError(id, "subscribe", domain.ErrSessionNotFound)
	}
	return ch, func() {}, nil
}

func (m *mockStreamService) GetStatus(id domain.TaskID) (domain.StatusSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.snaps[id]
	if !ok {
		return domain.StatusSnapshot{}, domain.NewStreamError(id, "status", domain.ErrSessionNotFound)
	}
	return snap, nil
}

func (m *mockStreamService) Stop(id domain.TaskID) error {
	m.mu.Lock()
	_, ok := m.snaps[id]
	if ok {
		m.stopped[id]++
	}
	hook := m.stopHook
	m.mu.Unlock()

	if !ok {
		return domain.NewStreamError(id, "stop", domain.ErrSessionNotFound)
	}
	if hook != nil {
		hook(id)
	}
	return nil
}

func (m *mockStreamService) List() []domain.StatusSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StatusSnapshot
	for _, s := range m.snaps {
		out = append(out, s)
	}
	return out
}

func (m *mockStreamService) LiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

func (m *mockStreamService) stopCount(id domain.TaskID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped[id]
}

// addSession registers a live session with the given output and snapshot.
func (m *mockStreamService) addSession(snap domain.StatusSnapshot, out io.ReadCloser) chan service.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan service.Event, 4)
	m.snaps[snap.TaskID] = snap
	m.outputs[snap.TaskID] = out
	m.events[snap.TaskID] = ch
	return ch
}

// recordingProber returns a fixed size and records the calls.
type recordingProber struct {
	mu    sync.Mutex
	size  int64
	err   error
	calls []string
}

func (p *recordingProber) ProbeSize(ctx context.Context, url string, opts domain.Options) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, url)
	return p.size, p.err
}
