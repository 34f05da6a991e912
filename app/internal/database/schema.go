package database

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS servers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  host TEXT NOT NULL,
  port INTEGER NOT NULL DEFAULT 25565,
  active INTEGER NOT NULL DEFAULT 1,
  display_order INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_servers_order ON servers(display_order);

CREATE TABLE IF NOT EXISTS snapshots (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  server_id TEXT NOT NULL,
  taken_at TEXT NOT NULL,
  online INTEGER NOT NULL,
  player_count INTEGER NOT NULL DEFAULT 0,
  max_players INTEGER NOT NULL DEFAULT 0,
  latency_ms INTEGER,
  version TEXT
);
CREATE INDEX IF NOT EXISTS idx_snapshots_server_taken ON snapshots(server_id, taken_at);
`

const postgresSchema = `
CREATE TABLE IF NOT EXISTS servers (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  host TEXT NOT NULL,
  port INTEGER NOT NULL DEFAULT 25565,
  active BOOLEAN NOT NULL DEFAULT TRUE,
  display_order INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_servers_order ON servers(display_order);

CREATE TABLE IF NOT EXISTS snapshots (
  id BIGSERIAL PRIMARY KEY,
  server_id TEXT NOT NULL,
  taken_at TIMESTAMPTZ NOT NULL,
  online BOOLEAN NOT NULL,
  player_count INTEGER NOT NULL DEFAULT 0,
  max_players INTEGER NOT NULL DEFAULT 0,
  latency_ms INTEGER,
  version TEXT
);
CREATE INDEX IF NOT EXISTS idx_snapshots_server_taken ON snapshots(server_id, taken_at);
`
