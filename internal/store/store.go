package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 1 - Initial schema (include_sources)
const currentSchemaVersion = 1

// Store is a SQLite-backed cache for fetched include sources. The render
// CLI uses it so repeated renders of the same page do not refetch shared
// fragments. It satisfies the include package's Cache contract.
//
// Correctness never depends on the cache; a broken or stale database only
// costs refetches.
type Store struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path.
// Applies required pragmas and the schema automatically; safe to call on
// an existing database.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite supports one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get implements the include cache contract.
func (s *Store) Get(ref string) (string, bool, error) {
	var src string
	err := s.db.QueryRow(
		`SELECT src FROM include_sources WHERE ref = ?`, ref,
	).Scan(&src)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read include cache: %w", err)
	}
	return src, true, nil
}

// Put implements the include cache contract. An existing entry for ref is
// replaced and its logical fetch sequence advances.
func (s *Store) Put(ref, src string) error {
	_, err := s.db.Exec(
		`INSERT INTO include_sources (ref, src, fetched_seq)
		 VALUES (?, ?, COALESCE((SELECT MAX(fetched_seq) FROM include_sources), 0) + 1)
		 ON CONFLICT(ref) DO UPDATE SET
		     src = excluded.src,
		     fetched_seq = excluded.fetched_seq`,
		ref, src,
	)
	if err != nil {
		return fmt.Errorf("failed to write include cache: %w", err)
	}
	return nil
}

// Purge removes every cached entry.
func (s *Store) Purge() error {
	if _, err := s.db.Exec(`DELETE FROM include_sources`); err != nil {
		return fmt.Errorf("failed to purge include cache: %w", err)
	}
	return nil
}

// Len returns the number of cached entries.
func (s *Store) Len() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM include_sources`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count include cache: %w", err)
	}
	return n, nil
}

// applyPragmas sets required SQLite configuration.
func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

// applySchema creates tables if needed and records the schema version.
// Idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	var version int
	err := db.QueryRow(`SELECT version FROM schema_version`).Scan(&version)
	if err == sql.ErrNoRows {
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, currentSchemaVersion); err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > currentSchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", version, currentSchemaVersion)
	}
	return nil
}
