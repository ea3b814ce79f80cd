// Package sqlite implements the default slot on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"classledger/pkg/domain"
)

// Slot stores the payload as one row of the state table, keyed by bucket.
type Slot struct {
	db     *sql.DB
	path   string
	bucket string
}

var _ domain.Slot = (*Slot)(nil)

// Open opens (or creates) the database at path and ensures the state table exists.
func Open(ctx context.Context, path, bucket string) (*Slot, error) {
	if path == "" {
		path = "classledger.db"
	}
	if bucket == "" {
		bucket = "classledger"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create state table: %w", err)
	}
	return &Slot{db: db, path: path, bucket: bucket}, nil
}

func (s *Slot) Driver() string { return "sqlite" }

func (s *Slot) Read(ctx context.Context) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM state WHERE bucket = ?`, s.bucket).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("select state: %w", err)
	}
	return payload, nil
}

func (s *Slot) Write(ctx context.Context, payload []byte) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`,
		s.bucket, payload); err != nil {
		return fmt.Errorf("upsert %s: %w", s.bucket, err)
	}
	return nil
}

// Close releases the database handle.
func (s *Slot) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Slot) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Slot) Path() string { return s.path }
