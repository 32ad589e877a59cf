package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tunogya/sensorcast/pkg/model"
)

// Repo handles sample and training run persistence
type Repo struct {
	db      *sql.DB
	dialect Dialect
}

// NewRepo creates a repository over db
func NewRepo(db *sql.DB, dialect Dialect) *Repo {
	return &Repo{db: db, dialect: dialect}
}

// Dialect returns the dialect the repo was created with
func (r *Repo) Dialect() Dialect {
	return r.dialect
}

// Ping checks the connection
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

const insertSample = `
	INSERT INTO samples (id, ts, sensor, source, value)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (id) DO NOTHING
`

func prepareSample(s model.Sample) model.Sample {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Timestamp.IsZero() {
		s.Timestamp = time.Now()
	}
	s.Timestamp = s.Timestamp.UTC()
	return s
}

// InsertSample stores a single sample, assigning an ID and timestamp if missing
func (r *Repo) InsertSample(ctx context.Context, s model.Sample) (model.Sample, error) {
	s = prepareSample(s)
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(insertSample),
		s.ID, s.Timestamp, string(s.Sensor), s.Source, s.Value,
	)
	if err != nil {
		return model.Sample{}, fmt.Errorf("failed to insert sample: %w", err)
	}
	return s, nil
}

// InsertSamples inserts multiple samples in a transaction. Samples whose ID
// already exists are skipped, so redelivered batches are harmless.
func (r *Repo) InsertSamples(ctx context.Context, samples []model.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, r.dialect.Rebind(insertSample))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, s := range samples {
		s = prepareSample(s)
		if _, err := stmt.ExecContext(ctx, s.ID, s.Timestamp, string(s.Sensor), s.Source, s.Value); err != nil {
			return fmt.Errorf("failed to insert sample: %w", err)
		}
	}

	return tx.Commit()
}

// ReadSamples retrieves samples with from <= ts <= to, oldest first
func (r *Repo) ReadSamples(ctx context.Context, sensor model.SensorKind, from, to time.Time) ([]model.Sample, error) {
	query := `
		SELECT id, ts, sensor, source, value
		FROM samples
		WHERE sensor = ? AND ts >= ? AND ts <= ?
		ORDER BY ts ASC
	`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), string(sensor), from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	return scanSamples(rows)
}

// Latest returns the newest limit samples for sensor, oldest first
func (r *Repo) Latest(ctx context.Context, sensor model.SensorKind, limit int) ([]model.Sample, error) {
	query := `
		SELECT id, ts, sensor, source, value
		FROM samples
		WHERE sensor = ?
		ORDER BY ts DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), string(sensor), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest samples: %w", err)
	}
	defer rows.Close()

	samples, err := scanSamples(rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(samples)-1; i < j; i, j = i+1, j-1 {
		samples[i], samples[j] = samples[j], samples[i]
	}
	return samples, nil
}

// Count returns the number of stored samples for sensor
func (r *Repo) Count(ctx context.Context, sensor model.SensorKind) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(`SELECT COUNT(*) FROM samples WHERE sensor = ?`), string(sensor)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count samples: %w", err)
	}
	return n, nil
}

func scanSamples(rows *sql.Rows) ([]model.Sample, error) {
	var samples []model.Sample
	for rows.Next() {
		var s model.Sample
		var sensor string
		if err := rows.Scan(&s.ID, &s.Timestamp, &sensor, &s.Source, &s.Value); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		s.Sensor = model.SensorKind(sensor)
		s.Timestamp = s.Timestamp.UTC()
		samples = append(samples, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}
	return samples, nil
}

// RecordRun stores a training run
func (r *Repo) RecordRun(ctx context.Context, run model.TrainingRun) error {
	query := `
		INSERT INTO training_runs (sensor, trained_at, samples, rows_total, train_rows, valid_rows, best_iteration, valid_rmse)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query),
		string(run.Sensor), run.TrainedAt.UTC(), run.Samples, run.Rows,
		run.TrainRows, run.ValidRows, run.BestIteration, run.ValidRMSE,
	)
	if err != nil {
		return fmt.Errorf("failed to record training run: %w", err)
	}
	return nil
}

// Runs returns the newest training runs for sensor, newest first
func (r *Repo) Runs(ctx context.Context, sensor model.SensorKind, limit int) ([]model.TrainingRun, error) {
	query := `
		SELECT sensor, trained_at, samples, rows_total, train_rows, valid_rows, best_iteration, valid_rmse
		FROM training_runs
		WHERE sensor = ?
		ORDER BY trained_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), string(sensor), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query training runs: %w", err)
	}
	defer rows.Close()

	var runs []model.TrainingRun
	for rows.Next() {
		var run model.TrainingRun
		var s string
		if err := rows.Scan(&s, &run.TrainedAt, &run.Samples, &run.Rows,
			&run.TrainRows, &run.ValidRows, &run.BestIteration, &run.ValidRMSE); err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		run.Sensor = model.SensorKind(s)
		run.TrainedAt = run.TrainedAt.UTC()
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate training runs: %w", err)
	}
	return runs, nil
}
