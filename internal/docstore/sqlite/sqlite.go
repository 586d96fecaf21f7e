// Package sqlite provides a SQLite-backed implementation of the
// docstore.Store interface. Documents are JSON rows keyed by path; change
// notification is an in-process hub fed by the write path.
package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/pantrio/pantrio/internal/docstore"
)

// Ensure Store implements docstore.Store
var _ docstore.Store = (*Store)(nil)

// Store implements docstore.Store using SQLite.
type Store struct {
	db *sql.DB

	// writeMu serializes writers so the read-modify-write inside each
	// update is a real per-document transaction.
	writeMu sync.Mutex

	watch watchHub
}

// New creates a Store with the given database path. It creates parent
// directories and runs migrations automatically.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps transactions serialized at the driver level
	// too; this store is an embedded document store, not a SQL workload.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	s := &Store{db: db}
	s.watch.init()
	return s, nil
}

// Close closes the database connection and drops all subscriptions.
func (s *Store) Close() error {
	s.watch.closeAll()
	return s.db.Close()
}
