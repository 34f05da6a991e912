// Package collector probes every active server and appends one snapshot per
// server per run.
package collector

import (
	"context"
	"fmt"
	"time"

	"mcnetwork/app/internal/checker"
	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/logging"
	"mcnetwork/app/internal/metrics"
	"mcnetwork/app/internal/models"
	"mcnetwork/app/internal/monitor"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Invalidator drops derived results once new snapshots land
type Invalidator interface {
	Clear()
}

// RunPublisher announces a finished run
type RunPublisher interface {
	PublishRun(ctx context.Context, res models.RunResult) error
}

// Options configures a Collector. Zero values pick sensible defaults.
type Options struct {
	Workers      int
	ProbeTimeout time.Duration
	Guard        Guard
	Tracker      *monitor.OfflineTracker
	Publisher    RunPublisher
	Invalidate   []Invalidator
	Clock        func() time.Time
}

// Collector runs collection passes
type Collector struct {
	registry   database.Registry
	store      database.SnapshotStore
	prober     checker.Prober
	workers    int
	timeout    time.Duration
	guard      Guard
	tracker    *monitor.OfflineTracker
	publisher  RunPublisher
	invalidate []Invalidator
	clock      func() time.Time
}

// New creates a collector
func New(registry database.Registry, store database.SnapshotStore, prober checker.Prober, opts Options) *Collector {
	if opts.Workers < 1 {
		opts.Workers = 8
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = checker.DefaultTimeout
	}
	if opts.Guard == nil {
		opts.Guard = &LocalGuard{}
	}
	if opts.Tracker == nil {
		opts.Tracker = monitor.NewOfflineTracker(3)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Collector{
		registry:   registry,
		store:      store,
		prober:     prober,
		workers:    opts.Workers,
		timeout:    opts.ProbeTimeout,
		guard:      opts.Guard,
		tracker:    opts.Tracker,
		publisher:  opts.Publisher,
		invalidate: opts.Invalidate,
		clock:      opts.Clock,
	}
}

// Run performs one collection pass. Probe failures and per-server store
// failures are reported in the result; only a guard rejection or a registry
// read failure returns an error.
func (c *Collector) Run(ctx context.Context) (models.RunResult, error) {
	release, err := c.guard.TryAcquire(ctx)
	if err != nil {
		metrics.CollectionRuns.WithLabelValues("rejected").Inc()
		return models.RunResult{}, err
	}
	defer release()

	started := time.Now()
	now := c.clock().UTC()
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)

	servers, err := c.registry.ActiveServers(ctx)
	if err != nil {
		metrics.CollectionRuns.WithLabelValues("failed").Inc()
		return models.RunResult{}, fmt.Errorf("list active servers: %w", err)
	}

	results := make([]models.Outcome, len(servers))
	var g errgroup.Group
	g.SetLimit(c.workers)
	for i, srv := range servers {
		g.Go(func() error {
			results[i] = c.collectOne(ctx, srv, now)
			return nil
		})
	}
	_ = g.Wait()

	res := models.RunResult{
		RunID:     runID,
		Success:   true,
		Collected: len(results),
		Results:   results,
		Timestamp: now,
	}
	c.afterRun(ctx, res)

	metrics.CollectionRuns.WithLabelValues("ok").Inc()
	metrics.CollectionDuration.Observe(time.Since(started).Seconds())
	logging.Ctx(ctx).Info().
		Int("servers", len(results)).
		Dur("took", time.Since(started)).
		Msg("collection run finished")
	return res, nil
}

func (c *Collector) collectOne(ctx context.Context, srv models.Server, now time.Time) models.Outcome {
	pctx, cancel := context.WithTimeout(ctx, c.timeout)
	st, perr := c.prober.Probe(pctx, srv.Host, srv.Port)
	cancel()

	snap := models.OfflineSnapshot(srv.ID, now)
	out := models.Outcome{ServerID: srv.ID, Status: models.OutcomeOffline}
	if perr == nil {
		snap = models.Snapshot{
			ServerID:    srv.ID,
			Timestamp:   now,
			Online:      true,
			PlayerCount: st.PlayerCount,
			MaxPlayers:  st.MaxPlayers,
			Latency:     st.Latency,
		}
		if st.Version != "" {
			snap.Version = models.StringPtr(st.Version)
		}
		out.Status = models.OutcomeOnline
		out.Players = models.IntPtr(st.PlayerCount)
	} else {
		out.Error = perr.Error()
		logging.Ctx(ctx).Debug().Str("server_id", srv.ID).Err(perr).Msg("probe failed")
	}

	if err := c.store.AppendSnapshot(ctx, snap); err != nil {
		logging.Ctx(ctx).Error().Str("server_id", srv.ID).Err(err).Msg("failed to store snapshot")
		return models.Outcome{ServerID: srv.ID, Status: models.OutcomeError, Error: err.Error()}
	}
	return out
}

// afterRun feeds the offline tracker, metrics, caches and the publisher.
// Nothing here can fail the run.
func (c *Collector) afterRun(ctx context.Context, res models.RunResult) {
	log := logging.Ctx(ctx)

	for _, tr := range c.tracker.Observe(res.Results) {
		if tr.Recovered {
			log.Info().Str("server_id", tr.ServerID).Int("offline_runs", tr.Streak).Msg("server back online")
		} else {
			log.Warn().Str("server_id", tr.ServerID).Int("offline_runs", tr.Streak).Msg("server offline")
		}
	}

	for _, o := range res.Results {
		metrics.ProbeOutcomes.WithLabelValues(o.Status).Inc()
		metrics.ServerOfflineStreak.WithLabelValues(o.ServerID).Set(float64(c.tracker.Streak(o.ServerID)))
		if o.Players != nil {
			metrics.ServerPlayers.WithLabelValues(o.ServerID).Set(float64(*o.Players))
		} else if o.Status == models.OutcomeOffline {
			metrics.ServerPlayers.WithLabelValues(o.ServerID).Set(0)
		}
	}

	for _, inv := range c.invalidate {
		inv.Clear()
	}

	if c.publisher != nil {
		if err := c.publisher.PublishRun(ctx, res); err != nil {
			log.Warn().Err(err).Msg("failed to publish run result")
		}
	}
}
