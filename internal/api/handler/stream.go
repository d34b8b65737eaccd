package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/config"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/domain"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/downloader"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/pipeline"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/service"
)

// StreamsPath is the base path of the stream endpoints.
const StreamsPath = "/api/v1/streams"

const copyBufferSize = 32 * 1024

// StreamService is the orchestrator surface the controller needs.
type StreamService interface {
	CreateSession(ctx context.Context, req service.CreateRequest) (*service.Handle, error)
	OpenStream(id domain.TaskID) (io.ReadCloser, error)
	Subscribe(id domain.TaskID) (<-chan service.Event, func(), error)
	GetStatus(id domain.TaskID) (domain.StatusSnapshot, error)
	Stop(id domain.TaskID) error
	List() []domain.StatusSnapshot
}

// StreamHandler handles stream session endpoints.
type StreamHandler struct {
	svc    StreamService
	prober downloader.Prober
	cfg    config.StreamConfig
	logger *slog.Logger
}

// NewStreamHandler creates a new stream handler. prober may be nil.
func NewStreamHandler(svc StreamService, prober downloader.Prober, cfg config.StreamConfig, logger *slog.Logger) *StreamHandler {
	return &StreamHandler{
		svc:    svc,
		prober: prober,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateRequest is the JSON body of POST /api/v1/streams.
type CreateRequest struct {
	URL       string `json:"url"`
	Format    string `json:"format,omitempty"`
	AudioOnly bool   `json:"audioOnly,omitempty"`
}

// CreateResponse is returned for a started session.
type CreateResponse struct {
	TaskID    domain.TaskID `json:"taskId"`
	Status    domain.Status `json:"status"`
	StreamURL string        `json:"streamUrl"`
	StatusURL string        `json:"statusUrl"`
}

// StopResponse is returned for a stopped session.
type StopResponse struct {
	TaskID  domain.TaskID `json:"taskId"`
	Status  domain.Status `json:"status"`
	Message string        `json:"message"`
}

// ListResponse lists live sessions.
type ListResponse struct {
	Streams []domain.StatusSnapshot `json:"streams"`
	Count   int                     `json:"count"`
}

// Create handles POST /api/v1/streams
func (h *StreamHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, CodeInvalidRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, CodeMissingURL, "url is required")
		return
	}
	if err := service.ValidateSource(req.URL); err != nil {
		writeServiceError(w, err)
		return
	}

	opts := domain.Options{Format: req.Format, AudioOnly: req.AudioOnly}.WithDefaults()
	id := domain.TaskID("str_" + uuid.NewString())
	size := h.probe(r.Context(), id, req.URL, opts)

	handle, err := h.svc.CreateSession(r.Context(), service.CreateRequest{
		TaskID:       id,
		URL:          req.URL,
		Options:      opts,
		ExpectedSize: size,
	})
	if err != nil {
		h.logger.Error("failed to create stream", "task_id", id, "url", req.URL, "error", err)
		writeServiceError(w, err)
		return
	}

	base := StreamsPath + "/" + handle.TaskID.String()
	writeJSON(w, http.StatusOK, CreateResponse{
		TaskID:    handle.TaskID,
		Status:    domain.StatusStreaming,
		StreamURL: base,
		StatusURL: base + "/status",
	})
}

// probe returns the expected output size, 0 when unknown.
func (h *StreamHandler) probe(ctx context.Context, id domain.TaskID, url string, opts domain.Options) int64 {
	if h.prober == nil || !h.cfg.ProbeEnabled {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, h.cfg.ProbeTimeout)
	defer cancel()

	size, err := h.prober.ProbeSize(ctx, url, opts)
	if err != nil {
		h.logger.Warn("size probe failed, streaming without length", "task_id", id, "error", err)
		return 0
	}
	return size
}

// Serve handles GET /api/v1/streams/{taskID}
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	id := domain.TaskID(chi.URLParam(r, "taskID"))

	out, err := h.svc.OpenStream(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	defer out.Close()

	snap, err := h.svc.GetStatus(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	events, release, err := h.svc.Subscribe(id)
	if err != nil {
		events, release = nil, func() {}
	}
	defer release()

	logger := h.logger.With("task_id", id)

	var once sync.Once
	stop := func(reason string) {
		once.Do(func() {
			logger.Info("stopping stream", "reason", reason)
			if err := h.svc.Stop(id); err != nil && !service.IsNotFound(err) {
				logger.Warn("failed to stop stream", "error", err)
			}
		})
	}

	copyDone := make(chan struct{})
	defer close(copyDone)
	go func() {
		select {
		case <-r.Context().Done():
			stop("client disconnected")
		case <-copyDone:
		}
	}()

	h.writeStreamHeaders(w, r, snap)
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)
	buf := make([]byte, copyBufferSize)
	for {
		n, readErr := out.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				stop("write failed")
				return
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				stop("flush failed")
				return
			}
		}
		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		// Output closed under us: the session was stopped or failed.
		logger.Warn("stream output interrupted", "error", readErr)
		panic(http.ErrAbortHandler)
	}

	if final, ok := h.awaitTerminal(events); ok && final.Status == domain.StatusError {
		logger.Warn("stream ended with error", "error", final.Error)
		panic(http.ErrAbortHandler)
	}
}

func (h *StreamHandler) writeStreamHeaders(w http.ResponseWriter, r *http.Request, snap domain.StatusSnapshot) {
	container := pipeline.OutputContainer(snap.Options)
	hdr := w.Header()
	hdr.Set("Content-Type", container.ContentType)
	hdr.Set("Content-Disposition", `attachment; filename="`+container.Filename(snap.TaskID)+`"`)
	hdr.Set("Cache-Control", "no-store, no-cache, must-revalidate")
	hdr.Set("Pragma", "no-cache")
	hdr.Set("Expires", "0")
	hdr.Set("X-Content-Type-Options", "nosniff")

	if size := snap.Progress.FileSizeBytes; size > 0 && h.cfg.UseProbedLength {
		hdr.Set("Content-Length", strconv.FormatInt(size, 10))
		hdr.Set("Accept-Ranges", "bytes")
		return
	}
	if r.ProtoAtLeast(1, 1) && r.ProtoMajor == 1 {
		hdr.Set("Transfer-Encoding", "chunked")
	}
}

// awaitTerminal waits for the terminal status event after the output hit
// EOF. The transcoder exit is observed slightly after its output closes.
func (h *StreamHandler) awaitTerminal(events <-chan service.Event) (domain.StatusSnapshot, bool) {
	if events == nil {
		return domain.StatusSnapshot{}, false
	}
	timeout := time.NewTimer(h.cfg.KillTimeout + time.Second)
	defer timeout.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return domain.StatusSnapshot{}, false
			}
			if ev.Type == service.EventStatus && ev.Snapshot.Status.IsTerminal() {
				return ev.Snapshot, true
			}
		case <-timeout.C:
			return domain.StatusSnapshot{}, false
		}
	}
}

// Status handles GET /api/v1/streams/{taskID}/status
func (h *StreamHandler) Status(w http.ResponseWriter, r *http.Request) {
	id := domain.TaskID(chi.URLParam(r, "taskID"))

	snap, err := h.svc.GetStatus(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Stop handles POST /api/v1/streams/{taskID}/stop
func (h *StreamHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := domain.TaskID(chi.URLParam(r, "taskID"))

	if err := h.svc.Stop(id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StopResponse{
		TaskID:  id,
		Status:  domain.StatusStopped,
		Message: "stream stopped",
	})
}

// List handles GET /api/v1/streams
func (h *StreamHandler) List(w http.ResponseWriter, r *http.Request) {
	streams := h.svc.List()
	writeJSON(w, http.StatusOK, ListResponse{Streams: streams, Count: len(streams)})
}
