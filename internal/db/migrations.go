package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/marcus/agentrouter/internal/logging"
)

// Migration represents a single schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: events, assignments",
		SQL:         migration001SQL,
	},
	{
		Version:     2,
		Description: "add task_type and confidence to assignments",
		SQL:         migration002SQL,
	},
	{
		Version:     3,
		Description: "add agent index to events",
		SQL:         migration003SQL,
	},
}

const migration001SQL = `
CREATE TABLE events (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    kind        TEXT NOT NULL,
    type        TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    agent_id    TEXT NOT NULL DEFAULT '',
    priority    TEXT NOT NULL DEFAULT '',
    value       REAL,
    metadata    TEXT NOT NULL DEFAULT '{}',
    created_at  DATETIME NOT NULL
);

CREATE TABLE assignments (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    task_id      TEXT NOT NULL,
    issue_number INTEGER NOT NULL DEFAULT 0,
    agent_id     TEXT NOT NULL,
    persona      TEXT NOT NULL,
    assigned_at  DATETIME NOT NULL,
    completed_at DATETIME
);

CREATE INDEX idx_events_time ON events(created_at DESC);
CREATE INDEX idx_assignments_agent ON assignments(agent_id, assigned_at DESC);
`

const migration002SQL = `
ALTER TABLE assignments ADD COLUMN task_type TEXT NOT NULL DEFAULT '';
ALTER TABLE assignments ADD COLUMN confidence REAL NOT NULL DEFAULT 0;
`

const migration003SQL = `
CREATE INDEX IF NOT EXISTS idx_events_agent ON events(agent_id, created_at DESC);
`

// Migrate runs all pending migrations inside transactions.
func Migrate(db *sql.DB) error {
	if db == nil {
		return errors.New("db is nil")
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY, applied_at DATETIME)`); err != nil {
		return fmt.Errorf("create schema_version: %w", err)
	}

	currentVersion, err := CurrentVersion(db)
	if err != nil {
		return err
	}

	log := logging.Component("db")
	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(migration.SQL); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", migration.Version, err)
		}

		if _, err := tx.Exec(`INSERT INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, migration.Version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", migration.Version, err)
		}

		log.DebugCtx("applied migration", map[string]any{
			"version":     migration.Version,
			"description": migration.Description,
		})
		currentVersion = migration.Version
	}

	return nil
}

// CurrentVersion returns the current schema version (0 if no migrations applied).
func CurrentVersion(db *sql.DB) (int, error) {
	if db == nil {
		return 0, errors.New("db is nil")
	}

	row := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`)
	var version int
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("query schema_version: %w", err)
	}
	return version, nil
}
