package stats

import (
	"math"
	"sort"
	"time"

	"mcnetwork/app/internal/models"

	"gonum.org/v1/gonum/stat"
)

// HourBucket is one calendar hour of a chart series.
// Players and Latency are nil when the hour saw no online snapshot.
type HourBucket struct {
	Hour    time.Time `json:"hour"`
	Online  bool      `json:"online"`
	Players *int      `json:"players"`
	Latency *int      `json:"latency"`
}

// HourlyResult is the bucketed series for one server and range
type HourlyResult struct {
	ServerID string       `json:"server_id"`
	Range    Range        `json:"range"`
	Start    time.Time    `json:"start"`
	End      time.Time    `json:"end"`
	Buckets  []HourBucket `json:"buckets"`
}

type hourAcc struct {
	online    bool
	players   int
	latencies []float64
}

// HourlyBuckets collapses snapshots into one entry per UTC hour in [start, end].
//
// Players is the max over the hour's online snapshots and latency the rounded
// mean of those that carry one. An hour with only offline snapshots is kept as
// Online=false with nil Players so it never reads as "online with 0 players".
// Hours without snapshots are omitted entirely.
func HourlyBuckets(snaps []models.Snapshot, start, end time.Time) []HourBucket {
	start, end = start.UTC(), end.UTC()
	acc := make(map[time.Time]*hourAcc)

	for _, s := range snaps {
		key := s.Timestamp.UTC().Truncate(time.Hour)
		if key.Before(start) || key.After(end) {
			continue
		}
		a, ok := acc[key]
		if !ok {
			a = &hourAcc{}
			acc[key] = a
		}
		if !s.Online {
			continue
		}
		if !a.online || s.PlayerCount > a.players {
			a.players = s.PlayerCount
		}
		a.online = true
		if s.Latency != nil {
			a.latencies = append(a.latencies, float64(*s.Latency))
		}
	}

	out := make([]HourBucket, 0, len(acc))
	for hour, a := range acc {
		b := HourBucket{Hour: hour, Online: a.online}
		if a.online {
			b.Players = models.IntPtr(a.players)
		}
		if len(a.latencies) > 0 {
			b.Latency = models.IntPtr(int(math.Round(stat.Mean(a.latencies, nil))))
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hour.Before(out[j].Hour) })
	return out
}
