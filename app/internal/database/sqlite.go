package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mcnetwork/app/internal/models"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the default single-node store
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and ensures the schema.
// ":memory:" works for tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; also keeps a :memory: database alive on a single connection.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.EnsureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

// EnsureSchema creates all necessary database tables
func (s *SQLiteStore) EnsureSchema() error {
	_, err := s.db.Exec(sqliteSchema)
	return err
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// AppendSnapshot records one probe result
func (s *SQLiteStore) AppendSnapshot(ctx context.Context, snap models.Snapshot) error {
	onlineInt := 0
	if snap.Online {
		onlineInt = 1
	}
	var latency, version any
	if snap.Latency != nil {
		latency = *snap.Latency
	}
	if snap.Version != nil {
		version = *snap.Version
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO snapshots (server_id,taken_at,online,player_count,max_players,latency_ms,version)
		VALUES (?,?,?,?,?,?,?)`,
		snap.ServerID, formatTime(snap.Timestamp), onlineInt, snap.PlayerCount, snap.MaxPlayers, latency, version)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.ServerID, err)
	}
	return nil
}

// SnapshotsSince returns snapshots newer than since, oldest first
func (s *SQLiteStore) SnapshotsSince(ctx context.Context, serverID string, since time.Time, onlineOnly bool) ([]models.Snapshot, error) {
	query := `SELECT server_id, taken_at, online, player_count, max_players, latency_ms, version
		FROM snapshots WHERE server_id = ? AND taken_at > ?`
	if onlineOnly {
		query += " AND online = 1"
	}
	query += " ORDER BY taken_at ASC, id ASC"

	rows, err := s.db.QueryContext(ctx, query, serverID, formatTime(since))
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []models.Snapshot{}
	for rows.Next() {
		var (
			snap    models.Snapshot
			takenAt string
			online  int
			latency sql.NullInt64
			version sql.NullString
		)
		if err := rows.Scan(&snap.ServerID, &takenAt, &online, &snap.PlayerCount, &snap.MaxPlayers, &latency, &version); err != nil {
			return nil, err
		}
		if snap.Timestamp, err = parseTime(takenAt); err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", takenAt, err)
		}
		snap.Online = online != 0
		if latency.Valid {
			snap.Latency = models.IntPtr(int(latency.Int64))
		}
		if version.Valid {
			snap.Version = models.StringPtr(version.String)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// LatestSnapshots pairs each active server with its newest snapshot
func (s *SQLiteStore) LatestSnapshots(ctx context.Context) ([]models.LatestStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.host, s.port, s.active, s.display_order,
		       sn.taken_at, sn.online, sn.player_count, sn.max_players, sn.latency_ms, sn.version
		FROM servers s
		LEFT JOIN snapshots sn ON sn.id = (
			SELECT id FROM snapshots WHERE server_id = s.id ORDER BY taken_at DESC, id DESC LIMIT 1
		)
		WHERE s.active = 1
		ORDER BY s.display_order ASC, s.name ASC, s.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshots: %w", err)
	}
	defer rows.Close()

	out := []models.LatestStatus{}
	for rows.Next() {
		var (
			srv       models.Server
			active    int
			takenAt   sql.NullString
			online    sql.NullInt64
			players   sql.NullInt64
			maxPlayer sql.NullInt64
			latency   sql.NullInt64
			version   sql.NullString
		)
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &active, &srv.DisplayOrder,
			&takenAt, &online, &players, &maxPlayer, &latency, &version); err != nil {
			return nil, err
		}
		srv.Active = active != 0

		ls := models.LatestStatus{Server: srv}
		if takenAt.Valid {
			ts, err := parseTime(takenAt.String)
			if err != nil {
				return nil, fmt.Errorf("bad timestamp %q: %w", takenAt.String, err)
			}
			snap := models.Snapshot{
				ServerID:    srv.ID,
				Timestamp:   ts,
				Online:      online.Int64 != 0,
				PlayerCount: int(players.Int64),
				MaxPlayers:  int(maxPlayer.Int64),
			}
			if latency.Valid {
				snap.Latency = models.IntPtr(int(latency.Int64))
			}
			if version.Valid {
				snap.Version = models.StringPtr(version.String)
			}
			ls.Snapshot = &snap
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

// ActiveServers returns registered servers flagged active, in display order
func (s *SQLiteStore) ActiveServers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, host, port, active, display_order
		FROM servers WHERE active = 1 ORDER BY display_order ASC, name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		var srv models.Server
		var active int
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &active, &srv.DisplayOrder); err != nil {
			return nil, err
		}
		srv.Active = active != 0
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

// ServerByID looks up one server regardless of its active flag
func (s *SQLiteStore) ServerByID(ctx context.Context, id string) (models.Server, error) {
	var srv models.Server
	var active int
	err := s.db.QueryRowContext(ctx, `SELECT id, name, host, port, active, display_order
		FROM servers WHERE id = ?`, id).Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &active, &srv.DisplayOrder)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Server{}, ErrNotFound
	}
	if err != nil {
		return models.Server{}, err
	}
	srv.Active = active != 0
	return srv, nil
}

// UpsertServer inserts or replaces a registry entry
func (s *SQLiteStore) UpsertServer(ctx context.Context, srv models.Server) error {
	activeInt := 0
	if srv.Active {
		activeInt = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (id, name, host, port, active, display_order)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name=excluded.name, host=excluded.host, port=excluded.port,
			active=excluded.active, display_order=excluded.display_order`,
		srv.ID, srv.Name, srv.Host, srv.Port, activeInt, srv.DisplayOrder)
	return err
}
