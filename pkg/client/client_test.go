package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/streams", func(w http.ResponseWriter, r *http.Request) {
		var req CreateRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.URL == "" {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"url is required","code":"MISSING_URL"}`))
			return
		}
		json.NewEncoder(w).Encode(CreateResponse{
			TaskID:    "str_1",
			Status:    "streaming",
			StreamURL: "/api/v1/streams/str_1",
			StatusURL: "/api/v1/streams/str_1/status",
		})
	})
	mux.HandleFunc("GET /api/v1/streams/str_1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"taskId":"str_1","status":"streaming","progress":{"percent":37.5,"total":"10.0 MiB"}}`))
	})
	mux.HandleFunc("GET /api/v1/streams/str_1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Disposition", `attachment; filename="str_1.mp4"`)
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("media"))
	})
	mux.HandleFunc("POST /api/v1/streams/str_1/stop", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"taskId":"str_1","status":"stopped","message":"stream stopped"}`))
	})
	mux.HandleFunc("GET /api/v1/streams", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"streams":[{"taskId":"str_1","status":"streaming"}],"count":1}`))
	})
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"stream not found","code":"STREAM_NOT_FOUND"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_CreateAndStatus(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL+"/", time.Second)
	ctx := context.Background()

	created, err := c.Create(ctx, CreateRequest{URL: "https://example.com/v"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if created.TaskID != "str_1" || created.Status != "streaming" {
		t.Errorf("created = %+v", created)
	}

	status, err := c.Status(ctx, created.TaskID)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Progress.Percent != 37.5 || status.Progress.Total != "10.0 MiB" {
		t.Errorf("progress = %+v", status.Progress)
	}
	if status.Terminal() {
		t.Error("streaming status should not be terminal")
	}
}

func TestClient_CreateError(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second)

	_, err := c.Create(context.Background(), CreateRequest{})
	if err == nil || !strings.Contains(err.Error(), "MISSING_URL") {
		t.Errorf("error = %v, want MISSING_URL", err)
	}
}

func TestClient_Open(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second)

	s, err := c.Open(context.Background(), "str_1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer s.Body.Close()

	data, _ := io.ReadAll(s.Body)
	if string(data) != "media" {
		t.Errorf("body = %q", data)
	}
	if s.ContentLength != 5 || s.ContentType != "video/mp4" || s.Filename != "str_1.mp4" {
		t.Errorf("stream = %+v", s)
	}

	if _, err := c.Open(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open(missing) error = %v, want ErrNotFound", err)
	}
}

func TestClient_StopListHealth(t *testing.T) {
	srv := newTestServer(t)
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	if err := c.Stop(ctx, "str_1"); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
	if err := c.Stop(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Stop(nope) error = %v, want ErrNotFound", err)
	}

	streams, err := c.List(ctx)
	if err != nil || len(streams) != 1 {
		t.Errorf("List() = %v, %v", streams, err)
	}
	if !c.IsAvailable(ctx) {
		t.Error("IsAvailable() = false, want true")
	}
}
