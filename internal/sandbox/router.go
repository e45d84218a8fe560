package sandbox

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/paycheckout/pkg/health"
	"github.com/utafrali/paycheckout/pkg/middleware"
)

// ServiceName labels the sandbox's logs, traces and HTTP metrics.
const ServiceName = "paycheckout-sandbox"

// NewRouter creates a chi router with all sandbox routes registered.
func NewRouter(
	svc *Service,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(ServiceName))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.PrometheusMetrics(ServiceName))

	// Health check and metrics endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())

	orders := NewOrderHandler(svc, logger)

	r.Route("/api/orders", func(r chi.Router) {
		r.Post("/", orders.CreateOrder)
		r.Post("/{id}/capture", orders.CaptureOrder)
	})

	r.Route("/applepay/api/orders", func(r chi.Router) {
		r.Post("/", orders.CreateWalletOrder)
		r.Post("/{id}/capture", orders.CaptureWalletOrder)
	})

	r.Route("/sandbox", func(r chi.Router) {
		r.Get("/scenario", orders.GetScenario)
		r.Put("/scenario", orders.SetScenario)
	})

	return r
}
