package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite-backed persistence layer shared by every
// component that needs durable state.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the SQLite database at path and
// applies the schema migration.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite allows only one writer at a time; a single connection
	// avoids "database is locked" errors under concurrent handlers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		remote_url TEXT NOT NULL,
		slug TEXT NOT NULL,
		branch TEXT NOT NULL,
		clone_path TEXT NOT NULL,
		last_commit TEXT NOT NULL DEFAULT '',
		last_sync_at TEXT,
		target_chip TEXT NOT NULL DEFAULT '',
		build_system TEXT NOT NULL DEFAULT '',
		webhook_secret TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS dependencies (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		component_name TEXT NOT NULL,
		version_spec TEXT NOT NULL,
		source_tag TEXT NOT NULL,
		installed INTEGER NOT NULL DEFAULT 0,
		installed_at TEXT,
		last_error TEXT NOT NULL DEFAULT '',
		UNIQUE(project_id, component_name)
	);

	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		commit_hash TEXT NOT NULL,
		commit_message TEXT NOT NULL DEFAULT '',
		commit_author TEXT NOT NULL DEFAULT '',
		branch TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		duration_sec REAL NOT NULL DEFAULT 0,
		build_output TEXT NOT NULL DEFAULT '',
		test_results TEXT NOT NULL DEFAULT '',
		artifacts_path TEXT NOT NULL DEFAULT '',
		triggered_by TEXT NOT NULL,
		event_type TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS webhook_events (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL DEFAULT '',
		event_type TEXT NOT NULL,
		delivery_id TEXT NOT NULL UNIQUE,
		raw_payload TEXT NOT NULL,
		signature_valid INTEGER NOT NULL,
		state TEXT NOT NULL,
		processed_at TEXT,
		error_message TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		last_active TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		duration_sec REAL NOT NULL DEFAULT 0,
		model_tag TEXT NOT NULL DEFAULT '',
		error_msg TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS logs (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		level TEXT NOT NULL,
		agent_id TEXT NOT NULL DEFAULT '',
		job_id TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL,
		meta_json TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS metrics (
		id TEXT PRIMARY KEY,
		at TEXT NOT NULL,
		type TEXT NOT NULL,
		value REAL NOT NULL,
		agent_id TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_dependencies_project ON dependencies(project_id);
	CREATE INDEX IF NOT EXISTS idx_builds_project ON builds(project_id);
	CREATE INDEX IF NOT EXISTS idx_builds_project_commit ON builds(project_id, commit_hash);
	CREATE INDEX IF NOT EXISTS idx_webhook_events_delivery ON webhook_events(delivery_id);
	CREATE INDEX IF NOT EXISTS idx_logs_at ON logs(at);
	CREATE INDEX IF NOT EXISTS idx_logs_agent ON logs(agent_id);
	CREATE INDEX IF NOT EXISTS idx_metrics_at ON metrics(at);
	`

	_, err := s.db.Exec(schema)
	return err
}
