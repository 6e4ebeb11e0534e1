/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/melodydashora/RepEditor/failures"
	_ "modernc.org/sqlite"
)

// Record is one version of a memory entry.
type Record struct {
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	Data      string    `json:"data"`
}

// Store is a versioned key-value memory backed by SQLite. Writes append a
// new version; reads return the latest one.
type Store struct {
	db *sql.DB
}

// OpenStore opens, creating if needed, the memory database at path.
func OpenStore(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("memory path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open memory: %w", err)
	}
	// Versions are assigned inside a transaction; one connection keeps
	// writers serialized.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := db.ExecContext(pctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.ExecContext(pctx, `CREATE TABLE IF NOT EXISTS memory (
  namespace  TEXT NOT NULL,
  key        TEXT NOT NULL,
  version    INTEGER NOT NULL,
  created_at TEXT NOT NULL,
  data       TEXT NOT NULL,
  PRIMARY KEY (namespace, key, version)
);`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap memory: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Write appends data as the next version of key.
func (s *Store) Write(ctx context.Context, namespace, key, data string) (*Record, error) {
	if key == "" {
		return nil, failures.Invalid("memory key is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin memory write: %w", err)
	}
	defer tx.Rollback()

	var current int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM memory WHERE namespace = ? AND key = ?`,
		namespace, key).Scan(&current); err != nil {
		return nil, fmt.Errorf("reading memory version: %w", err)
	}

	rec := &Record{Version: current + 1, CreatedAt: time.Now().UTC().Truncate(time.Millisecond), Data: data}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory (namespace, key, version, created_at, data) VALUES (?, ?, ?, ?, ?)`,
		namespace, key, rec.Version, rec.CreatedAt.Format(time.RFC3339Nano), data); err != nil {
		return nil, fmt.Errorf("writing memory: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing memory: %w", err)
	}
	return rec, nil
}

// Read returns the latest version of key, or an ErrNotFound error.
func (s *Store) Read(ctx context.Context, namespace, key string) (*Record, error) {
	var (
		rec     Record
		created string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT version, created_at, data FROM memory WHERE namespace = ? AND key = ? ORDER BY version DESC LIMIT 1`,
		namespace, key).Scan(&rec.Version, &created, &rec.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, failures.NotFound("memory " + key)
	}
	if err != nil {
		return nil, fmt.Errorf("reading memory: %w", err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("parsing memory timestamp: %w", err)
	}
	return &rec, nil
}
