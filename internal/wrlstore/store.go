// Package wrlstore provides persistent WRL (world) registry state backed
// by an embedded SQLite database. The WLS never persists user or session
// state — only which worlds exist, their per-world bureau limits, and a
// bounded log of spawn events for observability.
//
// Migration design: SQL statements are kept in the [migrations] slice as
// ordered strings. Each is applied exactly once; the applied version is
// tracked in the schema_migrations table. To add a migration, append a new
// string — never edit or reorder existing entries.
package wrlstore

import (
	"database/sql"
	"fmt"
	"log"

	_ "modernc.org/sqlite"
)

var migrations = []string{
	// v1 — world registry
	`CREATE TABLE IF NOT EXISTS wrls (
		name            TEXT PRIMARY KEY,
		max_bureaus     INTEGER NOT NULL DEFAULT 0,
		max_users       INTEGER NOT NULL DEFAULT 0,
		created_at      INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v2 — bounded spawn event log
	`CREATE TABLE IF NOT EXISTS spawn_log (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		wrl        TEXT NOT NULL,
		port       INTEGER NOT NULL,
		spawned_at INTEGER NOT NULL DEFAULT (unixepoch())
	)`,
	// v3 — enable WAL mode
	`PRAGMA journal_mode=WAL`,
}

const spawnLogCap = 500

// Store wraps a SQLite database holding the WRL registry.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the SQLite database at path and applies any
// pending migrations. Use ":memory:" for ephemeral in-process storage.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(`PRAGMA busy_timeout=5000`); err != nil {
		log.Printf("[wrlstore] busy_timeout: %v (non-fatal)", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow(
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`,
	).Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	for i, stmt := range migrations {
		v := i + 1
		if v <= current {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d: %w", v, err)
		}
		if _, err := s.db.Exec(
			`INSERT INTO schema_migrations(version) VALUES(?)`, v,
		); err != nil {
			return fmt.Errorf("record migration %d: %w", v, err)
		}
		log.Printf("[wrlstore] applied migration v%d", v)
	}
	return nil
}

// WRL is a row from the registry. MaxBureaus/MaxUsers of 0 mean "use the
// WLS-wide default" — only a world with an explicit override differs.
type WRL struct {
	Name       string
	MaxBureaus int
	MaxUsers   int
}

// Seed inserts each name in names as a world with no override, skipping
// any that already exist. Used to populate the default world list on a
// fresh database.
func (s *Store) Seed(names []string) error {
	for _, name := range names {
		if _, err := s.db.Exec(
			`INSERT INTO wrls(name) VALUES(?) ON CONFLICT(name) DO NOTHING`, name,
		); err != nil {
			return fmt.Errorf("seed %q: %w", name, err)
		}
	}
	return nil
}

// List returns every registered world, ordered by name.
func (s *Store) List() ([]WRL, error) {
	rows, err := s.db.Query(`SELECT name, max_bureaus, max_users FROM wrls ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WRL
	for rows.Next() {
		var w WRL
		if err := rows.Scan(&w.Name, &w.MaxBureaus, &w.MaxUsers); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// Get returns the world row for name, and false if it isn't registered.
func (s *Store) Get(name string) (WRL, bool, error) {
	var w WRL
	err := s.db.QueryRow(
		`SELECT name, max_bureaus, max_users FROM wrls WHERE name = ?`, name,
	).Scan(&w.Name, &w.MaxBureaus, &w.MaxUsers)
	if err == sql.ErrNoRows {
		return WRL{}, false, nil
	}
	if err != nil {
		return WRL{}, false, err
	}
	return w, true, nil
}

// SetOverrides upserts per-world bureau/user caps, registering the world
// if it doesn't already exist.
func (s *Store) SetOverrides(name string, maxBureaus, maxUsers int) error {
	_, err := s.db.Exec(
		`INSERT INTO wrls(name, max_bureaus, max_users) VALUES(?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET max_bureaus = excluded.max_bureaus, max_users = excluded.max_users`,
		name, maxBureaus, maxUsers,
	)
	return err
}

// RecordSpawn appends a spawn event and trims the log to its cap.
func (s *Store) RecordSpawn(wrl string, port uint16) error {
	if _, err := s.db.Exec(
		`INSERT INTO spawn_log(wrl, port) VALUES(?, ?)`, wrl, port,
	); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`DELETE FROM spawn_log WHERE id NOT IN (
			SELECT id FROM spawn_log ORDER BY id DESC LIMIT ?
		)`, spawnLogCap,
	)
	return err
}

// SpawnEvent is a single bureau spawn recorded for observability.
type SpawnEvent struct {
	WRL       string
	Port      uint16
	SpawnedAt int64
}

// RecentSpawns returns the most recent spawn events, newest first, up to
// limit rows.
func (s *Store) RecentSpawns(limit int) ([]SpawnEvent, error) {
	rows, err := s.db.Query(
		`SELECT wrl, port, spawned_at FROM spawn_log ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SpawnEvent
	for rows.Next() {
		var e SpawnEvent
		if err := rows.Scan(&e.WRL, &e.Port, &e.SpawnedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
