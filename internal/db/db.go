// Package db persists lifecycle events and task assignment history in SQLite.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// pragmas are applied by the driver to every pooled connection.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"foreign_keys(1)",
}

// DB is the agentrouter store: one SQLite file holding events and
// assignments.
type DB struct {
	sql  *sql.DB
	path string
}

// DefaultPath is where the store lives when telemetry.db_path is unset.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "agentrouter", "agentrouter.db")
}

// Open opens the store at path, creating the file and its directory
// (mode 0700) as needed, and migrates it to the latest schema. An empty
// path means DefaultPath; a leading "~" is expanded.
func Open(path string) (*DB, error) {
	resolved := resolvePath(path)
	if err := os.MkdirAll(filepath.Dir(resolved), 0o700); err != nil {
		return nil, fmt.Errorf("creating db dir: %w", err)
	}

	conn, err := sql.Open("sqlite", dsn(resolved))
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	d := &DB{sql: conn, path: resolved}

	if err := conn.Ping(); err != nil {
		_ = d.Close()
		return nil, fmt.Errorf("ping db %s: %w", resolved, err)
	}
	if err := Migrate(conn); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

// dsn appends the connection pragmas to a file path.
func dsn(path string) string {
	q := url.Values{"_pragma": pragmas}
	return path + "?" + q.Encode()
}

// Close closes the connection pool. It is safe on a nil DB.
func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// Path is the resolved file path.
func (d *DB) Path() string {
	if d == nil {
		return ""
	}
	return d.path
}

// SQL exposes the pool for queries outside the store API.
func (d *DB) SQL() *sql.DB {
	if d == nil {
		return nil
	}
	return d.sql
}

// resolvePath applies the default and expands "~" and "~/...".
func resolvePath(path string) string {
	switch {
	case path == "":
		return DefaultPath()
	case path != "~" && !strings.HasPrefix(path, "~/"):
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
