// Package aggregate turns raw samples into evenly spaced time buckets for charting.
package aggregate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/tunogya/sensorcast/pkg/data"
	"github.com/tunogya/sensorcast/pkg/model"
)

const (
	// DefaultTargetPoints is used when a range does not set TargetPoints
	DefaultTargetPoints = 60

	// DefaultLookback is how far back an open-ended range starts
	DefaultLookback = 6 * time.Hour
)

// Aggregator computes bucketed averages over a sample reader
type Aggregator struct {
	reader data.SampleReader
	now    func() time.Time
	log    *slog.Logger
}

// Option configures an Aggregator
type Option func(*Aggregator)

// WithClock overrides the time source used for default bounds
func WithClock(now func() time.Time) Option {
	return func(a *Aggregator) { a.now = now }
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(a *Aggregator) { a.log = log }
}

// New creates an Aggregator reading from reader
func New(reader data.SampleReader, opts ...Option) *Aggregator {
	a := &Aggregator{
		reader: reader,
		now:    func() time.Time { return time.Now().UTC() },
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.log = a.log.With("component", "aggregator")
	return a
}

// Resolve fills in default bounds and target points
func (a *Aggregator) Resolve(r model.TimeRange) (from, to time.Time, points int) {
	now := a.now().UTC()

	to = now
	if r.To != nil {
		to = r.To.UTC()
	}
	from = now.Add(-DefaultLookback).Truncate(time.Minute)
	if r.From != nil {
		from = r.From.UTC()
	}
	points = r.TargetPoints
	if points <= 0 {
		points = DefaultTargetPoints
	}
	return from, to, points
}

// BucketDuration returns the bucket width for a window, at least one minute
func BucketDuration(from, to time.Time, points int) time.Duration {
	total := int(to.Sub(from) / time.Minute)
	if points <= 0 {
		points = DefaultTargetPoints
	}
	return time.Duration(max(1, total/points)) * time.Minute
}

// Aggregate returns the mean of each non-empty bucket in the range.
//
// Buckets are half-open [start, start+d). Boundaries start at from truncated to
// the minute and advance while start < to, so a sample stamped exactly at to is
// only counted when to falls strictly inside the last bucket. Empty buckets are
// omitted; Source is taken from the first sample of each bucket.
func (a *Aggregator) Aggregate(ctx context.Context, sensor model.SensorKind, r model.TimeRange) ([]model.TimeBucket, error) {
	from, to, points := a.Resolve(r)
	if !to.After(from) {
		return []model.TimeBucket{}, nil
	}
	if int(to.Sub(from)/time.Minute) <= 0 {
		return []model.TimeBucket{}, nil
	}
	bucket := BucketDuration(from, to, points)

	samples, err := a.reader.ReadSamples(ctx, sensor, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	if !sort.SliceIsSorted(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) }) {
		a.log.Warn("reader returned unordered samples", "sensor", sensor, "count", len(samples))
		sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	}

	buckets := make([]model.TimeBucket, 0, min(points, len(samples)))
	idx := 0
	for start := from.Truncate(time.Minute); start.Before(to); start = start.Add(bucket) {
		end := start.Add(bucket)

		for idx < len(samples) && samples[idx].Timestamp.Before(start) {
			idx++
		}

		var sum float64
		var count int
		var source string
		for idx < len(samples) && samples[idx].Timestamp.Before(end) {
			if count == 0 {
				source = samples[idx].Source
			}
			sum += samples[idx].Value
			count++
			idx++
		}
		if count == 0 {
			continue
		}

		buckets = append(buckets, model.TimeBucket{
			Start:  start,
			Value:  sum / float64(count),
			Sensor: sensor,
			Source: source,
		})
	}

	a.log.Debug("aggregated",
		"sensor", sensor,
		"from", from,
		"to", to,
		"bucket", bucket,
		"samples", len(samples),
		"buckets", len(buckets),
	)
	return buckets, nil
}
