// Package store is the sqlite persistence layer: schema, predicate-to-SQL
// generation, and the generic per-entity query interface.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"propsift/internal/logging"
)

// DB wraps the sqlite connection pool.
type DB struct {
	conn   *sql.DB
	logger *logging.Logger
	gen    *SQLGen
}

// Open opens or creates the database at path and ensures the schema.
func Open(path string, gen *SQLGen, logger *logging.Logger) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set pragmas for performance
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
		"PRAGMA cache_size=-16000", // 16MB cache
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	db := &DB{
		conn:   conn,
		logger: logger.WithComponent("store"),
		gen:    gen,
	}
	if err := db.EnsureSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

// Conn exposes the underlying pool for transactional callers.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Ping checks connectivity. Used by the readiness endpoint.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// Close closes the connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}
