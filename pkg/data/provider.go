package data

import (
	"context"
	"time"

	"github.com/tunogya/sensorcast/pkg/model"
)

// SampleReader is the read side of the sample store used by the analytics core
type SampleReader interface {
	// ReadSamples returns samples for sensor with from <= ts <= to
	// Returns samples ordered by timestamp (oldest first)
	ReadSamples(ctx context.Context, sensor model.SensorKind, from, to time.Time) ([]model.Sample, error)
}

// SampleStore adds the write side owned by ingestion
type SampleStore interface {
	SampleReader

	// InsertSample stores one sample and returns it with its assigned ID
	InsertSample(ctx context.Context, s model.Sample) (model.Sample, error)

	// InsertSamples stores a batch of samples in one transaction
	InsertSamples(ctx context.Context, samples []model.Sample) error
}

// BackfillConfig holds configuration for backfill operations
type BackfillConfig struct {
	Sensor    model.SensorKind // optional filter, empty means every sensor
	StartTime time.Time        // Start of backfill range
	EndTime   time.Time        // End of backfill range
	BatchSize int              // Number of samples per insert batch
}

// DefaultBackfillConfig returns a BackfillConfig with sensible defaults
func DefaultBackfillConfig() BackfillConfig {
	return BackfillConfig{
		StartTime: time.Time{},
		EndTime:   time.Now().UTC(),
		BatchSize: 1000,
	}
}

// BackfillProgress tracks the progress of a backfill operation
type BackfillProgress struct {
	TotalSamples     int
	ProcessedSamples int
}

// ProgressCallback is called during backfill to report progress
type ProgressCallback func(progress BackfillProgress)

// Backfill copies samples from src into dst in batches
func Backfill(ctx context.Context, src []model.Sample, dst SampleStore, cfg BackfillConfig, progress ProgressCallback) error {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 1000
	}

	var filtered []model.Sample
	for _, s := range src {
		if cfg.Sensor != "" && s.Sensor != cfg.Sensor {
			continue
		}
		if !cfg.StartTime.IsZero() && s.Timestamp.Before(cfg.StartTime) {
			continue
		}
		if !cfg.EndTime.IsZero() && s.Timestamp.After(cfg.EndTime) {
			continue
		}
		filtered = append(filtered, s)
	}

	p := BackfillProgress{TotalSamples: len(filtered)}
	for i := 0; i < len(filtered); i += batchSize {
		end := min(i+batchSize, len(filtered))
		if err := dst.InsertSamples(ctx, filtered[i:end]); err != nil {
			return err
		}
		p.ProcessedSamples = end
		if progress != nil {
			progress(p)
		}
	}
	return nil
}
