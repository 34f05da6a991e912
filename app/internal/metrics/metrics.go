// Package metrics holds the process-wide Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CollectionRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcnetwork_collection_runs_total",
		Help: "Collection runs by result (ok, rejected, failed).",
	}, []string{"result"})

	CollectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "mcnetwork_collection_duration_seconds",
		Help:    "Duration of a full collection run.",
		Buckets: []float64{0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
	})

	ProbeOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcnetwork_probe_outcomes_total",
		Help: "Per-server collection outcomes by status (online, offline, error).",
	}, []string{"status"})

	ServerPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcnetwork_server_players",
		Help: "Player count seen by the latest collection run.",
	}, []string{"server_id"})

	ServerOfflineStreak = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "mcnetwork_server_offline_streak",
		Help: "Consecutive collection runs a server has been offline.",
	}, []string{"server_id"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcnetwork_events_published_total",
		Help: "Run-result events sent to Redis by result (ok, failed, dropped).",
	}, []string{"result"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mcnetwork_query_duration_seconds",
		Help:    "Duration of analytics queries by kind.",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"})
)
