package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/GDKAYKY/ytdln-open-sub000/internal/api/handler"
	mw "github.com/GDKAYKY/ytdln-open-sub000/internal/api/middleware"
	"github.com/GDKAYKY/ytdln-open-sub000/internal/metrics"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	streamHandler *handler.StreamHandler,
	healthHandler *handler.HealthHandler,
	m *metrics.Metrics,
	requestTimeout time.Duration,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))
	r.Use(mw.CORS)
	r.Use(metrics.RequestMiddleware(m))

	// Health endpoints
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	if m != nil {
		r.Handle("/metrics", m.Handler(nil))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Live streams run as long as the source does.
		r.Get("/streams/{taskID}", streamHandler.Serve)

		r.Group(func(r chi.Router) {
			if requestTimeout > 0 {
				r.Use(middleware.Timeout(requestTimeout))
			}

			// System stats
			r.Get("/stats", healthHandler.Stats)

			r.Post("/streams", streamHandler.Create)
			r.Get("/streams", streamHandler.List)
			r.Get("/streams/{taskID}/status", streamHandler.Status)
			r.Post("/streams/{taskID}/stop", streamHandler.Stop)
		})
	})

	return r
}
