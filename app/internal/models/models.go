package models

import "time"

// Server represents a registered game server
type Server struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Active       bool   `json:"is_active"`
	DisplayOrder int    `json:"display_order"`
}

// Snapshot is one probe result for one server at one instant.
// Snapshots are never mutated after they are written.
type Snapshot struct {
	ServerID    string    `json:"server_id"`
	Timestamp   time.Time `json:"timestamp"`
	Online      bool      `json:"online"`
	PlayerCount int       `json:"player_count"`
	MaxPlayers  int       `json:"max_players"`
	Latency     *int      `json:"latency"`
	Version     *string   `json:"version"`
}

// OfflineSnapshot builds the snapshot recorded when a probe fails
func OfflineSnapshot(serverID string, ts time.Time) Snapshot {
	return Snapshot{
		ServerID:  serverID,
		Timestamp: ts,
		Online:    false,
	}
}

// Outcome status values reported per server by a collection run
const (
	OutcomeOnline  = "online"
	OutcomeOffline = "offline"
	OutcomeError   = "error"
)

// Outcome is the per-server entry of a collection run report
type Outcome struct {
	ServerID string `json:"server_id"`
	Status   string `json:"status"`
	Players  *int   `json:"players,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunResult is the report returned by one collection run
type RunResult struct {
	RunID     string    `json:"run_id"`
	Success   bool      `json:"success"`
	Collected int       `json:"collected"`
	Results   []Outcome `json:"results"`
	Timestamp time.Time `json:"timestamp"`
}

// LatestStatus pairs an active server with its most recent snapshot, if any
type LatestStatus struct {
	Server   Server    `json:"server"`
	Snapshot *Snapshot `json:"snapshot"`
}

// LiveStatus is the payload of an on-demand probe that is not persisted
type LiveStatus struct {
	Online      bool    `json:"online"`
	PlayerCount int     `json:"playerCount"`
	MaxPlayers  int     `json:"maxPlayers"`
	Version     *string `json:"version"`
	Motd        *string `json:"motd"`
	Latency     *int    `json:"latency"`
}

// IntPtr returns a pointer to v
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v
func StringPtr(v string) *string { return &v }
