package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/user/alttext-service/internal/delivery/http/handler"
	"github.com/user/alttext-service/internal/delivery/http/middleware"
	"github.com/user/alttext-service/pkg/metrics"
)

// requestTimeout covers the slowest path: one AI call with its retry.
const requestTimeout = 60 * time.Second

// New builds the API router. A nil gatherer serves the default registry.
func New(h *handler.Handler, m *metrics.Metrics, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(requestTimeout))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/api/health", h.HandleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/inject", h.HandleInject)
		r.Post("/alts", h.HandleResolveAlts)
		r.Post("/preview", h.HandlePreview)
		r.Post("/documents/{id}/process", h.HandleProcessDocument)

		r.Route("/bulk/jobs", func(r chi.Router) {
			r.Post("/", h.HandleStartBulkJob)
			r.Post("/{id}/next", h.HandleNextChunk)
			r.Get("/{id}", h.HandleGetProgress)
			r.Delete("/{id}", h.HandleDeleteJob)
		})

		r.Get("/logs", h.HandleListLogs)
		r.Post("/logs/{id}/revert", h.HandleRevert)
	})

	return r
}
