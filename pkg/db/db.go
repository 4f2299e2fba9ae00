package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // sqlite driver
)

// Database owns the sqlite handle backing the order book and the candle
// archive.
type Database struct {
	DB *sql.DB
}

// New opens the sqlite file at path, creating parent directories as
// needed. ":memory:" is accepted for tests.
func New(path string) (*Database, error) {
	if path == "" {
		return nil, errors.New("db: path is empty")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("db: create directory: %w", err)
		}
	}

	handle, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", path, err)
	}
	// Single writer: the order gateway, reconciler, candle writer and
	// API all share this handle.
	handle.SetMaxOpenConns(1)
	handle.SetConnMaxLifetime(time.Hour)
	if _, err := handle.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		handle.Close()
		return nil, fmt.Errorf("db: busy timeout: %w", err)
	}

	return &Database{DB: handle}, nil
}

// Close releases the underlying handle.
func (d *Database) Close() error {
	if d == nil || d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
