package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"mcnetwork/app/internal/cache"
	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/models"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// HistoryWindow is how far back the prediction table looks, independent of
// the requested range.
const HistoryWindow = 30 * 24 * time.Hour

// SlotKey identifies a weekly slot. Day uses 0=Sunday.
type SlotKey struct {
	Day  time.Weekday
	Hour int
}

// SlotOf returns the UTC weekly slot containing t
func SlotOf(t time.Time) SlotKey {
	u := t.UTC()
	return SlotKey{Day: u.Weekday(), Hour: u.Hour()}
}

func (k SlotKey) String() string {
	return fmt.Sprintf("%d-%d", int(k.Day), k.Hour)
}

// PredictionTable maps a weekly slot to its average online player count.
// Slots without samples are absent.
type PredictionTable map[SlotKey]float64

// BuildPredictionTable averages online player counts per slot, rounded to
// one decimal. Offline snapshots are ignored.
func BuildPredictionTable(snaps []models.Snapshot) PredictionTable {
	groups := make(map[SlotKey][]float64)
	for _, s := range snaps {
		if !s.Online {
			continue
		}
		k := SlotOf(s.Timestamp)
		groups[k] = append(groups[k], float64(s.PlayerCount))
	}

	table := make(PredictionTable, len(groups))
	for k, xs := range groups {
		table[k] = Round1(stat.Mean(xs, nil))
	}
	return table
}

// Predict returns the whole-player forecast for the slot containing t
func (t PredictionTable) Predict(at time.Time) int {
	return int(math.Ceil(t[SlotOf(at)]))
}

// PredictionWindow splits a lookback of hours into 80% past and 20% future,
// flooring the past share and ceiling the future one.
func PredictionWindow(hours int) (past, future int) {
	past = hours * 8 / 10
	future = (hours*2 + 9) / 10
	return past, future
}

// PredictionPoint is one hourly forecast
type PredictionPoint struct {
	Timestamp        time.Time `json:"timestamp"`
	PredictedPlayers int       `json:"predicted_players"`
}

// PredictionStats summarise the 30-day history behind a forecast.
// DataPoints is the number of populated slots, a confidence signal.
type PredictionStats struct {
	OverallAvg  float64 `json:"overall_avg"`
	PeakPlayers int     `json:"peak_players"`
	DataPoints  int     `json:"data_points"`
}

// PredictionResult is the forecast for one server and range
type PredictionResult struct {
	ServerID    string            `json:"server_id"`
	Range       Range             `json:"range"`
	Predictions []PredictionPoint `json:"predictions"`
	Stats       PredictionStats   `json:"stats"`
}

// Forecast walks [now-past, now+future] hour by hour, both ends included
func Forecast(table PredictionTable, now time.Time, hours int) []PredictionPoint {
	past, future := PredictionWindow(hours)
	start := now.UTC().Add(-time.Duration(past) * time.Hour)
	end := now.UTC().Add(time.Duration(future) * time.Hour)

	points := make([]PredictionPoint, 0, past+future+1)
	for ts := start; !ts.After(end); ts = ts.Add(time.Hour) {
		points = append(points, PredictionPoint{Timestamp: ts, PredictedPlayers: table.Predict(ts)})
	}
	return points
}

// Predictor serves forecast queries over the snapshot store
type Predictor struct {
	store database.SnapshotStore
	cache *cache.Cache[PredictionResult]
	now   func() time.Time
}

// NewPredictor builds a predictor. c may be nil.
func NewPredictor(store database.SnapshotStore, c *cache.Cache[PredictionResult]) *Predictor {
	return &Predictor{store: store, cache: c, now: time.Now}
}

// Predict builds the table from the trailing 30 days of online history and
// projects it over the window derived from rng. No history means all zeros.
func (p *Predictor) Predict(ctx context.Context, serverID, rng string) (PredictionResult, error) {
	r := ParseRange(rng)
	return p.cache.GetOrLoad(ctx, "predictions:"+serverID+":"+string(r), func(ctx context.Context) (PredictionResult, error) {
		now := p.now().UTC()
		snaps, err := p.store.SnapshotsSince(ctx, serverID, now.Add(-HistoryWindow), true)
		if err != nil {
			return PredictionResult{}, fmt.Errorf("load history for %s: %w", serverID, err)
		}

		table := BuildPredictionTable(snaps)
		res := PredictionResult{
			ServerID:    serverID,
			Range:       r,
			Predictions: Forecast(table, now, r.Hours()),
			Stats:       PredictionStats{DataPoints: len(table)},
		}
		if players := onlinePlayers(snaps); len(players) > 0 {
			res.Stats.OverallAvg = Round1(stat.Mean(players, nil))
			res.Stats.PeakPlayers = int(floats.Max(players))
		}
		return res, nil
	})
}
