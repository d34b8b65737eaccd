package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"
)

var startTime = time.Now()

// VersionChecker reports the versions of the external tools.
type VersionChecker interface {
	Versions(ctx context.Context) (map[string]string, error)
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	LiveCount() int
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	tools    VersionChecker
	sessions SessionCounter
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(tools VersionChecker, sessions SessionCounter) *HealthHandler {
	return &HealthHandler{
		tools:    tools,
		sessions: sessions,
	}
}

// HealthResponse is the JSON response for health checks.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Tools     map[string]string `json:"tools,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// Live handles GET /health - liveness probe.
func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready - readiness probe. Both tools must run.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	versions, err := h.tools.Versions(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "error",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Tools:     versions,
	})
}

// SystemStats contains system resource statistics.
type SystemStats struct {
	Uptime          int64   `json:"uptime_seconds"`
	UptimeHuman     string  `json:"uptime_human"`
	LiveSessions    int     `json:"live_sessions"`
	MemAllocMB      int64   `json:"mem_alloc_mb"`
	MemSysMB        int64   `json:"mem_sys_mb"`
	MemHeapMB       int64   `json:"mem_heap_mb"`
	NumGoroutines   int     `json:"num_goroutines"`
	NumCPU          int     `json:"num_cpu"`
	CPUPct          float64 `json:"cpu_pct"`
	ChildCPUSeconds float64 `json:"child_cpu_seconds"`
}

// Stats handles GET /api/v1/stats - system statistics.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	uptime := time.Since(startTime)

	writeJSON(w, http.StatusOK, SystemStats{
		Uptime:          int64(uptime.Seconds()),
		UptimeHuman:     formatUptime(uptime),
		LiveSessions:    h.sessions.LiveCount(),
		MemAllocMB:      int64(m.Alloc / 1024 / 1024),
		MemSysMB:        int64(m.Sys / 1024 / 1024),
		MemHeapMB:       int64(m.HeapAlloc / 1024 / 1024),
		NumGoroutines:   runtime.NumGoroutine(),
		NumCPU:          runtime.NumCPU(),
		CPUPct:          getCPUUsage(),
		ChildCPUSeconds: getChildCPUTime().Seconds(),
	})
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
