// Package sqlite opens the sample store on an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/tunogya/sensorcast/pkg/store/sqlstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS samples (
    id TEXT PRIMARY KEY,
    ts TIMESTAMP NOT NULL,
    sensor TEXT NOT NULL,
    source TEXT NOT NULL DEFAULT '',
    value REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_sensor_ts ON samples(sensor, ts);
CREATE INDEX IF NOT EXISTS idx_samples_ts_sensor ON samples(ts, sensor);

CREATE TABLE IF NOT EXISTS training_runs (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    sensor TEXT NOT NULL,
    trained_at TIMESTAMP NOT NULL,
    samples INTEGER NOT NULL,
    rows_total INTEGER NOT NULL,
    train_rows INTEGER NOT NULL,
    valid_rows INTEGER NOT NULL,
    best_iteration INTEGER NOT NULL,
    valid_rmse REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_runs_sensor ON training_runs(sensor, trained_at);
`

// Client wraps a SQLite database
type Client struct {
	db   *sql.DB
	path string
}

// NewClient opens path, creating its directory if needed. ":memory:" opens a
// private in-memory database.
func NewClient(ctx context.Context, path string) (*Client, error) {
	memory := path == ":memory:" || strings.Contains(path, "mode=memory")

	dsn := path
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is a separate database
	if memory {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{db: db, path: path}, nil
}

// DB returns the underlying database
func (c *Client) DB() *sql.DB {
	return c.db
}

// Repo returns a sample repository backed by this database
func (c *Client) Repo() *sqlstore.Repo {
	return sqlstore.NewRepo(c.db, sqlstore.SQLite)
}

// InitializeSchema creates the tables and applies pragmas
func (c *Client) InitializeSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := c.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return nil
}

// Close closes the database
func (c *Client) Close() error {
	return c.db.Close()
}
