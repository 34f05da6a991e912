package stats

import (
	"context"
	"fmt"
	"time"

	"mcnetwork/app/internal/cache"
	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SummaryStats is derived from a snapshot slice on every read
type SummaryStats struct {
	UptimePercent  float64 `json:"uptime_percent"`
	AvgPlayers     float64 `json:"avg_players"`
	PeakPlayers    int     `json:"peak_players"`
	TotalSnapshots int     `json:"total_snapshots"`
}

// SummaryResult answers "what happened on server X over range R"
type SummaryResult struct {
	ServerID string            `json:"server_id"`
	Range    Range             `json:"range"`
	Summary  SummaryStats      `json:"summary"`
	Data     []models.Snapshot `json:"data"`
}

// onlinePlayers returns the player counts of online snapshots as float64
func onlinePlayers(snaps []models.Snapshot) []float64 {
	xs := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		if s.Online {
			xs = append(xs, float64(s.PlayerCount))
		}
	}
	return xs
}

// Summarize computes uptime and player statistics. Averages consider online
// snapshots only; uptime and average are rounded to one decimal.
func Summarize(snaps []models.Snapshot) SummaryStats {
	st := SummaryStats{TotalSnapshots: len(snaps)}
	if len(snaps) == 0 {
		return st
	}

	players := onlinePlayers(snaps)
	st.UptimePercent = Round1(100 * float64(len(players)) / float64(len(snaps)))
	if len(players) > 0 {
		st.AvgPlayers = Round1(stat.Mean(players, nil))
		st.PeakPlayers = int(floats.Max(players))
	}
	return st
}

// Aggregator serves summary queries over the snapshot store
type Aggregator struct {
	store database.SnapshotStore
	cache *cache.Cache[SummaryResult]
	now   func() time.Time
}

// NewAggregator builds an aggregator. c may be nil.
func NewAggregator(store database.SnapshotStore, c *cache.Cache[SummaryResult]) *Aggregator {
	return &Aggregator{store: store, cache: c, now: time.Now}
}

// Summary returns stats and the raw ascending series for serverID over range.
// An unknown server is not an error; it just has no snapshots.
func (a *Aggregator) Summary(ctx context.Context, serverID, rng string) (SummaryResult, error) {
	r := ParseRange(rng)
	return a.cache.GetOrLoad(ctx, "summary:"+serverID+":"+string(r), func(ctx context.Context) (SummaryResult, error) {
		since := a.now().UTC().Add(-r.Lookback())
		snaps, err := a.store.SnapshotsSince(ctx, serverID, since, false)
		if err != nil {
			return SummaryResult{}, fmt.Errorf("load snapshots for %s: %w", serverID, err)
		}
		if snaps == nil {
			snaps = []models.Snapshot{}
		}
		return SummaryResult{
			ServerID: serverID,
			Range:    r,
			Summary:  Summarize(snaps),
			Data:     snaps,
		}, nil
	})
}

// Hourly returns the range's snapshots bucketed per hour for charting.
// The first partial hour of the window is kept.
func (a *Aggregator) Hourly(ctx context.Context, serverID, rng string) (HourlyResult, error) {
	r := ParseRange(rng)
	now := a.now().UTC()
	since := now.Add(-r.Lookback())

	snaps, err := a.store.SnapshotsSince(ctx, serverID, since, false)
	if err != nil {
		return HourlyResult{}, fmt.Errorf("load snapshots for %s: %w", serverID, err)
	}
	return HourlyResult{
		ServerID: serverID,
		Range:    r,
		Start:    since.Truncate(time.Hour),
		End:      now,
		Buckets:  HourlyBuckets(snaps, since.Truncate(time.Hour), now),
	}, nil
}
