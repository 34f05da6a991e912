package monitor

import (
	"sort"
	"sync"

	"mcnetwork/app/internal/models"
)

// OfflineTracker counts consecutive offline collection runs per server.
// It is safe for concurrent use.
type OfflineTracker struct {
	mu        sync.Mutex
	streaks   map[string]int
	threshold int
}

// Transition is reported when a server crosses the offline threshold
// or comes back after having crossed it.
type Transition struct {
	ServerID  string
	Streak    int
	Recovered bool
}

// NewOfflineTracker creates a tracker that reports a server as down after
// threshold consecutive offline runs.
func NewOfflineTracker(threshold int) *OfflineTracker {
	if threshold < 1 {
		threshold = 1
	}
	return &OfflineTracker{
		streaks:   make(map[string]int),
		threshold: threshold,
	}
}

func (t *OfflineTracker) update(serverID string, online bool) int {
	if online {
		t.streaks[serverID] = 0
		return 0
	}
	t.streaks[serverID]++
	return t.streaks[serverID]
}

// Streak returns the current consecutive offline count
func (t *OfflineTracker) Streak(serverID string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.streaks[serverID]
}

// Observe folds one run's outcomes into the streaks and returns threshold
// crossings in server id order. Outcomes with status "error" say nothing
// about liveness and are skipped. Servers absent from the run are forgotten.
func (t *OfflineTracker) Observe(results []models.Outcome) []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Transition
	seen := make(map[string]struct{}, len(results))
	for _, r := range results {
		seen[r.ServerID] = struct{}{}
		switch r.Status {
		case models.OutcomeOnline:
			if prev := t.streaks[r.ServerID]; prev >= t.threshold {
				out = append(out, Transition{ServerID: r.ServerID, Streak: prev, Recovered: true})
			}
			t.update(r.ServerID, true)
		case models.OutcomeOffline:
			if n := t.update(r.ServerID, false); n == t.threshold {
				out = append(out, Transition{ServerID: r.ServerID, Streak: n})
			}
		}
	}
	t.prune(seen)

	sort.Slice(out, func(i, j int) bool { return out[i].ServerID < out[j].ServerID })
	return out
}

// prune forgets servers that are no longer active
func (t *OfflineTracker) prune(valid map[string]struct{}) {
	for id := range t.streaks {
		if _, ok := valid[id]; !ok {
			delete(t.streaks, id)
		}
	}
}
