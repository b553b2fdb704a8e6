package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shipment-tracker/internal/metrics"
	"shipment-tracker/internal/tracking"
)

// Options wires the router to the application
type Options struct {
	Service *tracking.Service
	DB      HealthChecker
	Metrics *metrics.Metrics
	// Gatherer backs /metrics; the route is omitted when nil
	Gatherer prometheus.Gatherer
	// APIKey protects batch tracking and cache invalidation when set
	APIKey string
	Logger *slog.Logger
}

// NewRouter creates the HTTP handler of the API
func NewRouter(opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := NewHandler(opts.Service, opts.DB, logger)

	r := chi.NewRouter()
	r.Use(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		MetricsMiddleware(opts.Metrics),
		CORSMiddleware,
		ContentTypeMiddleware,
		SecurityMiddleware,
	)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)
		r.Get("/carriers", h.GetCarriers)
		r.Get("/carriers/{carrier}/url/{number}", h.GetTrackingURL)
		r.Get("/carriers/{carrier}/track/{number}", h.TrackShipment)
		r.Get("/cache/stats", h.CacheStats)

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(opts.APIKey, logger))
			r.Post("/track", h.TrackBatch)
			r.Delete("/carriers/{carrier}/track/{number}/cache", h.InvalidateShipment)
		})
	})

	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "Method Not Allowed")
	})

	return r
}
