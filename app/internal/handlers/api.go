package handlers

import (
	"context"
	"net/http"
	"time"

	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/logging"
	"mcnetwork/app/internal/metrics"
	"mcnetwork/app/internal/stats"

	"github.com/go-chi/chi/v5"
)

// timed records a query duration under kind
func timed[T any](kind string, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	metrics.QueryDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	return v, err
}

// HandleServerAnalytics returns summary stats plus the raw series for one server
func HandleServerAnalytics(agg *stats.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rng := r.URL.Query().Get("range")

		res, err := timed("summary", func() (stats.SummaryResult, error) {
			return agg.Summary(r.Context(), id, rng)
		})
		if err != nil {
			logging.Error().Err(err).Str("server_id", id).Msg("failed to fetch analytics")
			writeError(w, http.StatusInternalServerError, "Failed to fetch analytics")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleHourly returns the range bucketed per hour for charts
func HandleHourly(agg *stats.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rng := r.URL.Query().Get("range")

		res, err := timed("hourly", func() (stats.HourlyResult, error) {
			return agg.Hourly(r.Context(), id, rng)
		})
		if err != nil {
			logging.Error().Err(err).Str("server_id", id).Msg("failed to fetch hourly analytics")
			writeError(w, http.StatusInternalServerError, "Failed to fetch analytics")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandlePredictions returns the hourly player forecast for one server
func HandlePredictions(pred *stats.Predictor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		rng := r.URL.Query().Get("range")

		res, err := timed("predictions", func() (stats.PredictionResult, error) {
			return pred.Predict(r.Context(), id, rng)
		})
		if err != nil {
			logging.Error().Err(err).Str("server_id", id).Msg("failed to fetch predictions")
			writeError(w, http.StatusInternalServerError, "Failed to fetch predictions")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HandleNetworkSummary returns network totals from each active server's latest snapshot
func HandleNetworkSummary(store database.SnapshotStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := timed("network", func() (stats.NetworkSummary, error) {
			return stats.Network(r.Context(), store)
		})
		if err != nil {
			logging.Error().Err(err).Msg("failed to fetch analytics summary")
			writeError(w, http.StatusInternalServerError, "Failed to fetch analytics summary")
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HealthChecker reports on a dependency; nil error means healthy
type HealthChecker func(ctx context.Context) error

// HandleHealth reports liveness plus the state of optional dependencies
func HandleHealth(checks map[string]HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]any{"status": overall, "checks": deps})
	}
}
