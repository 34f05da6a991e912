package handlers

import (
	"net/http"

	"mcnetwork/app/internal/checker"
	"mcnetwork/app/internal/collector"
	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/ratelimit"
	"mcnetwork/app/internal/stats"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps is everything the HTTP layer talks to
type Deps struct {
	Store      database.Store
	Aggregator *stats.Aggregator
	Predictor  *stats.Predictor
	Collector  collector.Runner
	Prober     checker.Prober
	Auth       SecretVerifier
	// Limiter throttles the public read API; nil disables throttling
	Limiter *ratelimit.Limiter
	Health  map[string]HealthChecker
}

// SetupRoutes configures all HTTP routes and middlewares
func SetupRoutes(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(RequestLogger)
	r.Use(SecureHeaders)

	r.Get("/health", HandleHealth(d.Health))
	r.Handle("/metrics", promhttp.Handler())

	// Cron trigger: authorised by secret, serialised by the run guard
	r.Get("/api/analytics/collect", HandleCollect(d.Collector, d.Auth))
	r.Post("/api/analytics/collect", HandleCollect(d.Collector, d.Auth))

	r.Group(func(r chi.Router) {
		if d.Limiter != nil {
			r.Use(d.Limiter.Middleware)
		}
		r.Use(chimiddleware.Compress(5, "application/json"))

		r.Get("/api/analytics/summary", HandleNetworkSummary(d.Store))
		r.Get("/api/analytics/server/{id}", HandleServerAnalytics(d.Aggregator))
		r.Get("/api/analytics/server/{id}/hourly", HandleHourly(d.Aggregator))
		r.Get("/api/analytics/predictions/{id}", HandlePredictions(d.Predictor))
		r.Get("/api/server-status", HandleServerStatus(d.Store, d.Prober))
	})

	return r
}
