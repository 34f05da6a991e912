package stats

import (
	"context"
	"fmt"
	"time"

	"mcnetwork/app/internal/database"
	"mcnetwork/app/internal/models"
)

// NetworkTotals aggregates the latest reading of every active server
type NetworkTotals struct {
	TotalServers  int `json:"total_servers"`
	OnlineServers int `json:"online_servers"`
	TotalPlayers  int `json:"total_players"`
}

// NetworkServer is one row of the network overview
type NetworkServer struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Online      bool       `json:"online"`
	PlayerCount int        `json:"player_count"`
	MaxPlayers  int        `json:"max_players"`
	Timestamp   *time.Time `json:"timestamp"`
}

// NetworkSummary is the whole-network overview
type NetworkSummary struct {
	Summary NetworkTotals   `json:"summary"`
	Servers []NetworkServer `json:"servers"`
}

// Totals folds latest statuses into network totals. A server that has
// never been probed counts as offline.
func Totals(latest []models.LatestStatus) NetworkSummary {
	out := NetworkSummary{Servers: make([]NetworkServer, 0, len(latest))}
	out.Summary.TotalServers = len(latest)

	for _, ls := range latest {
		row := NetworkServer{ID: ls.Server.ID, Name: ls.Server.Name}
		if s := ls.Snapshot; s != nil {
			row.Online = s.Online
			row.PlayerCount = s.PlayerCount
			row.MaxPlayers = s.MaxPlayers
			ts := s.Timestamp.UTC()
			row.Timestamp = &ts
			if s.Online {
				out.Summary.OnlineServers++
				out.Summary.TotalPlayers += s.PlayerCount
			}
		}
		out.Servers = append(out.Servers, row)
	}
	return out
}

// Network loads the latest snapshot per active server and totals them
func Network(ctx context.Context, store database.SnapshotStore) (NetworkSummary, error) {
	latest, err := store.LatestSnapshots(ctx)
	if err != nil {
		return NetworkSummary{}, fmt.Errorf("load latest snapshots: %w", err)
	}
	return Totals(latest), nil
}
