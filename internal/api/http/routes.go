package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates the HTTP router with configured routes, middleware,
// and handlers: the download operation surface, the event stream, a
// health check, and the Prometheus metrics endpoint.
func NewRouter(service DownloadService, registry Registry, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Logger)

	handler := NewDownloadHandler(service, registry, logger)

	r.Route("/downloads", func(r chi.Router) {
		r.Post("/", handler.Submit)
		r.Post("/batch", handler.SubmitBatch)
		r.Get("/", handler.List)
		r.Delete("/completed", handler.RemoveCompleted)
		r.Get("/{taskID}", handler.Get)
		r.Post("/{taskID}/pause", handler.Pause)
		r.Post("/{taskID}/resume", handler.Resume)
		r.Post("/{taskID}/cancel", handler.Cancel)
	})

	r.Get("/events", handler.Events)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
