package database

import (
	"context"
	"sort"
	"sync"
	"time"

	"mcnetwork/app/internal/models"
)

// MemoryStore keeps everything in process. Used with DB_DRIVER=memory and in tests.
type MemoryStore struct {
	mu        sync.RWMutex
	servers   map[string]models.Server
	snapshots map[string][]models.Snapshot

	// FailAppend, when set, is returned by AppendSnapshot for matching server ids
	FailAppend func(serverID string) error
	// FailRead, when set, is returned by every read
	FailRead error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		servers:   make(map[string]models.Server),
		snapshots: make(map[string][]models.Snapshot),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Ping(context.Context) error { return m.FailRead }

func (m *MemoryStore) AppendSnapshot(_ context.Context, snap models.Snapshot) error {
	if m.FailAppend != nil {
		if err := m.FailAppend(snap.ServerID); err != nil {
			return err
		}
	}
	snap.Timestamp = snap.Timestamp.UTC()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ServerID] = append(m.snapshots[snap.ServerID], snap)
	return nil
}

func (m *MemoryStore) SnapshotsSince(_ context.Context, serverID string, since time.Time, onlineOnly bool) ([]models.Snapshot, error) {
	if m.FailRead != nil {
		return nil, m.FailRead
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Snapshot{}
	for _, s := range m.snapshots[serverID] {
		if !s.Timestamp.After(since) {
			continue
		}
		if onlineOnly && !s.Online {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

func (m *MemoryStore) LatestSnapshots(ctx context.Context) ([]models.LatestStatus, error) {
	servers, err := m.ActiveServers(ctx)
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.LatestStatus, 0, len(servers))
	for _, srv := range servers {
		ls := models.LatestStatus{Server: srv}
		var latest *models.Snapshot
		for i := range m.snapshots[srv.ID] {
			s := m.snapshots[srv.ID][i]
			// later appends win ties, same as ORDER BY taken_at DESC, id DESC
			if latest == nil || !s.Timestamp.Before(latest.Timestamp) {
				latest = &s
			}
		}
		ls.Snapshot = latest
		out = append(out, ls)
	}
	return out, nil
}

func (m *MemoryStore) ActiveServers(_ context.Context) ([]models.Server, error) {
	if m.FailRead != nil {
		return nil, m.FailRead
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []models.Server{}
	for _, s := range m.servers {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) ServerByID(_ context.Context, id string) (models.Server, error) {
	if m.FailRead != nil {
		return models.Server{}, m.FailRead
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.servers[id]
	if !ok {
		return models.Server{}, ErrNotFound
	}
	return s, nil
}

func (m *MemoryStore) UpsertServer(_ context.Context, s models.Server) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.servers[s.ID] = s
	return nil
}

// Count returns how many snapshots are stored for serverID
func (m *MemoryStore) Count(serverID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snapshots[serverID])
}
