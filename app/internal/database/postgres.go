package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mcnetwork/app/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore backs multi-instance deployments
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects with dsn, pings and ensures the schema
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{pool: pool}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap models.Snapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO snapshots (server_id, taken_at, online, player_count, max_players, latency_ms, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		snap.ServerID, snap.Timestamp.UTC(), snap.Online, snap.PlayerCount, snap.MaxPlayers, snap.Latency, snap.Version)
	if err != nil {
		return fmt.Errorf("insert snapshot %s: %w", snap.ServerID, err)
	}
	return nil
}

func (s *PostgresStore) SnapshotsSince(ctx context.Context, serverID string, since time.Time, onlineOnly bool) ([]models.Snapshot, error) {
	query := `SELECT server_id, taken_at, online, player_count, max_players, latency_ms, version
		FROM snapshots WHERE server_id = $1 AND taken_at > $2`
	if onlineOnly {
		query += " AND online"
	}
	query += " ORDER BY taken_at ASC, id ASC"

	rows, err := s.pool.Query(ctx, query, serverID, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []models.Snapshot{}
	for rows.Next() {
		var snap models.Snapshot
		if err := rows.Scan(&snap.ServerID, &snap.Timestamp, &snap.Online, &snap.PlayerCount,
			&snap.MaxPlayers, &snap.Latency, &snap.Version); err != nil {
			return nil, err
		}
		snap.Timestamp = snap.Timestamp.UTC()
		out = append(out, snap)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LatestSnapshots(ctx context.Context) ([]models.LatestStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.name, s.host, s.port, s.active, s.display_order,
		       sn.taken_at, sn.online, sn.player_count, sn.max_players, sn.latency_ms, sn.version
		FROM servers s
		LEFT JOIN LATERAL (
			SELECT taken_at, online, player_count, max_players, latency_ms, version
			FROM snapshots WHERE server_id = s.id
			ORDER BY taken_at DESC, id DESC LIMIT 1
		) sn ON TRUE
		WHERE s.active
		ORDER BY s.display_order ASC, s.name ASC, s.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query latest snapshots: %w", err)
	}
	defer rows.Close()

	out := []models.LatestStatus{}
	for rows.Next() {
		var (
			srv       models.Server
			takenAt   *time.Time
			online    *bool
			players   *int
			maxPlayer *int
			latency   *int
			version   *string
		)
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &srv.Active, &srv.DisplayOrder,
			&takenAt, &online, &players, &maxPlayer, &latency, &version); err != nil {
			return nil, err
		}
		ls := models.LatestStatus{Server: srv}
		if takenAt != nil {
			ls.Snapshot = &models.Snapshot{
				ServerID:    srv.ID,
				Timestamp:   takenAt.UTC(),
				Online:      online != nil && *online,
				PlayerCount: derefInt(players),
				MaxPlayers:  derefInt(maxPlayer),
				Latency:     latency,
				Version:     version,
			}
		}
		out = append(out, ls)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ActiveServers(ctx context.Context) ([]models.Server, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, host, port, active, display_order
		FROM servers WHERE active ORDER BY display_order ASC, name ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer rows.Close()

	servers := []models.Server{}
	for rows.Next() {
		var srv models.Server
		if err := rows.Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &srv.Active, &srv.DisplayOrder); err != nil {
			return nil, err
		}
		servers = append(servers, srv)
	}
	return servers, rows.Err()
}

func (s *PostgresStore) ServerByID(ctx context.Context, id string) (models.Server, error) {
	var srv models.Server
	err := s.pool.QueryRow(ctx, `SELECT id, name, host, port, active, display_order
		FROM servers WHERE id = $1`, id).Scan(&srv.ID, &srv.Name, &srv.Host, &srv.Port, &srv.Active, &srv.DisplayOrder)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Server{}, ErrNotFound
	}
	return srv, err
}

func (s *PostgresStore) UpsertServer(ctx context.Context, srv models.Server) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO servers (id, name, host, port, active, display_order)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET name=EXCLUDED.name, host=EXCLUDED.host, port=EXCLUDED.port,
			active=EXCLUDED.active, display_order=EXCLUDED.display_order`,
		srv.ID, srv.Name, srv.Host, srv.Port, srv.Active, srv.DisplayOrder)
	return err
}

func derefInt(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
