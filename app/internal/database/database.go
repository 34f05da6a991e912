package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcnetwork/app/internal/config"
	"mcnetwork/app/internal/models"
)

// ErrNotFound is returned when a registry lookup matches nothing
var ErrNotFound = errors.New("not found")

// SnapshotStore is the append-only time-series of probe results.
// Rows are never updated or deleted.
type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, s models.Snapshot) error
	// SnapshotsSince returns snapshots for serverID with timestamp > since,
	// oldest first. With onlineOnly, offline rows are skipped.
	SnapshotsSince(ctx context.Context, serverID string, since time.Time, onlineOnly bool) ([]models.Snapshot, error)
	// LatestSnapshots returns every active server with its newest snapshot
	LatestSnapshots(ctx context.Context) ([]models.LatestStatus, error)
}

// Registry is the read side of the server directory plus seeding
type Registry interface {
	ActiveServers(ctx context.Context) ([]models.Server, error)
	ServerByID(ctx context.Context, id string) (models.Server, error)
	UpsertServer(ctx context.Context, s models.Server) error
}

// Store combines both halves with a lifecycle
type Store interface {
	SnapshotStore
	Registry
	Ping(ctx context.Context) error
	Close() error
}

// timeLayout is fixed-width so stored TEXT timestamps sort chronologically
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// rows written by hand or by older builds
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC(), err
}

// Open returns the store selected by cfg.DBDriver
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		return OpenSQLite(cfg.DBPath)
	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case config.DriverMemory:
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", cfg.DBDriver)
	}
}
