package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
)

type mockChecker struct {
	versions map[string]string
	err      error
}

func (m *mockChecker) Versions(ctx context.Context) (map[string]string, error) {
	return m.versions, m.err
}

func TestHealthHandler_Live(t *testing.T) {
	handler := NewHealthHandler(&mockChecker{}, newMockStreamService())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	handler.Live(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	contentType := w.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q, want %q", contentType, "application/json")
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}

	if resp.Timestamp == "" {
		t.Error("timestamp should not be empty")
	}
}

func TestHealthHandler_Ready_Success(t *testing.T) {
	checker := &mockChecker{versions: map[string]string{
		"extractor":  "2025.01.15",
		"transcoder": "ffmpeg version 7.1",
	}}
	handler := NewHealthHandler(checker, newMockStreamService())

	w := httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want %q", resp.Status, "ok")
	}
	if resp.Tools["extractor"] != "2025.01.15" {
		t.Errorf("extractor version = %q", resp.Tools["extractor"])
	}
}

func TestHealthHandler_Ready_ToolMissing(t *testing.T) {
	handler := NewHealthHandler(&mockChecker{err: errors.New("extractor: tool not found")}, newMockStreamService())

	w := httptest.NewRecorder()
	handler.Ready(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", w.Code, http.StatusServiceUnavailable)
	}

	var resp HealthResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Status != "error" || resp.Error == "" {
		t.Errorf("response = %+v, want error with message", resp)
	}
}

func TestHealthHandler_Stats(t *testing.T) {
	svc := newMockStreamService()
	svc.snaps["str_1"] = domain.StatusSnapshot{TaskID: "str_1"}
	svc.snaps["str_2"] = domain.StatusSnapshot{TaskID: "str_2"}
	handler := NewHealthHandler(&mockChecker{}, svc)

	w := httptest.NewRecorder()
	handler.Stats(w, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var stats SystemStats
	if err := json.NewDecoder(w.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.LiveSessions != 2 {
		t.Errorf("live_sessions = %d, want 2", stats.LiveSessions)
	}
	if stats.NumCPU <= 0 || stats.NumGoroutines <= 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "0m"},
		{5 * time.Minute, "5m"},
		{2*time.Hour + 3*time.Minute, "2h 3m"},
		{50*time.Hour + 10*time.Minute, "2d 2h 10m"},
	}

	for _, tt := range tests {
		if got := formatUptime(tt.d); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
