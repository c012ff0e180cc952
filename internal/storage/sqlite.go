package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS blobs (
    partition  TEXT NOT NULL,
    key        TEXT NOT NULL,
    value      BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (partition, key)
);
CREATE INDEX IF NOT EXISTS idx_blobs_partition ON blobs(partition);
`

// SQLiteStore implements Store with a single SQLite database. One row
// per (partition, key) pair; WAL mode for concurrent readers.
type SQLiteStore struct {
	dbPath string
	db     *sql.DB
	mu     sync.RWMutex
}

// NewSQLiteStore opens (or creates) the database at dbPath and applies
// the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating storage directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("applying schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	return &SQLiteStore{dbPath: dbPath, db: db}, nil
}

// Get returns the blob stored under key, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, partition, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM blobs WHERE partition = ? AND key = ?",
		partition, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading blob %s/%s: %w", partition, key, err)
	}
	return value, nil
}

// Put inserts or replaces the blob stored under key.
func (s *SQLiteStore) Put(ctx context.Context, partition, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blobs (partition, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(partition, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		partition, key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("writing blob %s/%s: %w", partition, key, err)
	}
	return nil
}

// PutMulti writes several blobs in one transaction.
func (s *SQLiteStore) PutMulti(ctx context.Context, partition string, blobs map[string][]byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction for %s: %w", partition, err)
	}

	now := time.Now().UTC()
	for key, value := range blobs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO blobs (partition, key, value, updated_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(partition, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			partition, key, value, now); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("writing blob %s/%s: %w", partition, key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing blobs for %s: %w", partition, err)
	}
	return nil
}

// Delete removes the blob stored under key.
func (s *SQLiteStore) Delete(ctx context.Context, partition, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM blobs WHERE partition = ? AND key = ?", partition, key); err != nil {
		return fmt.Errorf("deleting blob %s/%s: %w", partition, key, err)
	}
	return nil
}

// List returns every blob in the partition.
func (s *SQLiteStore) List(ctx context.Context, partition string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value FROM blobs WHERE partition = ?", partition)
	if err != nil {
		return nil, fmt.Errorf("listing partition %s: %w", partition, err)
	}
	defer func() { _ = rows.Close() }()

	blobs := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scanning blob row: %w", err)
		}
		blobs[key] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating partition %s: %w", partition, err)
	}
	return blobs, nil
}

// DeletePartition removes the entire partition.
func (s *SQLiteStore) DeletePartition(ctx context.Context, partition string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM blobs WHERE partition = ?", partition); err != nil {
		return fmt.Errorf("deleting partition %s: %w", partition, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
