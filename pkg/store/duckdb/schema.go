package duckdb

import (
	"context"
	"fmt"
)

// CreateSamplesTable creates the raw sample fact table
const CreateSamplesTable = `
CREATE TABLE IF NOT EXISTS samples (
    id VARCHAR PRIMARY KEY,
    ts TIMESTAMP NOT NULL,
    sensor VARCHAR NOT NULL,
    source VARCHAR NOT NULL DEFAULT '',
    value DOUBLE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_samples_sensor_ts ON samples(sensor, ts);
CREATE INDEX IF NOT EXISTS idx_samples_ts_sensor ON samples(ts, sensor);
`

// CreateTrainingRunsTable creates the model training history table
const CreateTrainingRunsTable = `
CREATE TABLE IF NOT EXISTS training_runs (
    sensor VARCHAR NOT NULL,
    trained_at TIMESTAMP NOT NULL,
    samples INTEGER NOT NULL,
    rows_total INTEGER NOT NULL,
    train_rows INTEGER NOT NULL,
    valid_rows INTEGER NOT NULL,
    best_iteration INTEGER NOT NULL,
    valid_rmse DOUBLE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_training_runs_sensor ON training_runs(sensor, trained_at);
`

// InitializeSchema creates all required tables
func InitializeSchema(ctx context.Context, c *Client) error {
	for _, schema := range []string{CreateSamplesTable, CreateTrainingRunsTable} {
		if err := c.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// DropAllTables drops all tables (use with caution)
func DropAllTables(ctx context.Context, c *Client) error {
	for _, table := range []string{"training_runs", "samples"} {
		if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
