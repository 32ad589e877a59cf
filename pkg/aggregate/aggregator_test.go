package aggregate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tunogya/sensorcast/pkg/data"
	"github.com/tunogya/sensorcast/pkg/model"
)

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type countingReader struct {
	data.SampleReader
	calls int
	err   error
	order func([]model.Sample)
}

func (r *countingReader) ReadSamples(ctx context.Context, sensor model.SensorKind, from, to time.Time) ([]model.Sample, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out, err := r.SampleReader.ReadSamples(ctx, sensor, from, to)
	if r.order != nil {
		r.order(out)
	}
	return out, err
}

func newAggregator(reader data.SampleReader, now time.Time) *Aggregator {
	return New(reader,
		WithClock(func() time.Time { return now }),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func ptr(t time.Time) *time.Time { return &t }

func sample(offset time.Duration, v float64, source string) model.Sample {
	return model.Sample{Timestamp: t0.Add(offset), Sensor: model.Temperature, Source: source, Value: v}
}

func TestAggregateThreeSampleScenario(t *testing.T) {
	store := data.NewMemoryProvider(
		sample(0, 5.0, "a"),
		sample(time.Minute, 6.0, "b"),
		sample(2*time.Minute, 7.0, "c"),
	)
	reader := &countingReader{SampleReader: store}
	agg := newAggregator(reader, t0.Add(time.Hour))

	buckets, err := agg.Aggregate(context.Background(), model.Temperature, model.TimeRange{
		From:         ptr(t0),
		To:           ptr(t0.Add(2 * time.Minute)),
		TargetPoints: 2,
	})
	require.NoError(t, err)
	require.Equal(t, 1, reader.calls)
	require.Equal(t, []model.TimeBucket{
		{Start: t0, Value: 5.0, Sensor: model.Temperature, Source: "a"},
		{Start: t0.Add(time.Minute), Value: 6.0, Sensor: model.Temperature, Source: "b"},
	}, buckets)
}

func TestAggregateIncludesToInsideLastBucket(t *testing.T) {
	store := data.NewMemoryProvider(
		sample(0, 1, "a"),
		sample(90*time.Second, 3, "a"),
	)
	agg := newAggregator(store, t0.Add(time.Hour))

	buckets, err := agg.Aggregate(context.Background(), model.Temperature, model.TimeRange{
		From:         ptr(t0),
		To:           ptr(t0.Add(90 * time.Second)),
		TargetPoints: 1,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	require.Equal(t, 1.0, buckets[0].Value)
	require.Equal(t, t0.Add(time.Minute), buckets[1].Start)
	require.Equal(t, 3.0, buckets[1].Value)
}

func TestAggregateEmptyWindow(t *testing.T) {
	reader := &countingReader{SampleReader: data.NewMemoryProvider(sample(0, 1, "a"))}
	agg := newAggregator(reader, t0)

	tests := []struct {
		name     string
		from, to time.Time
	}{
		{"reversed", t0.Add(time.Hour), t0},
		{"equal", t0, t0},
		{"under a minute", t0, t0.Add(30 * time.Second)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buckets, err := agg.Aggregate(context.Background(), model.Temperature, model.TimeRange{
				From: ptr(tt.from), To: ptr(tt.to), TargetPoints: 10,
			})
			require.NoError(t, err)
			require.NotNil(t, buckets)
			require.Empty(t, buckets)
		})
	}
	require.Zero(t, reader.calls)
}

func TestAggregateNoSamples(t *testing.T) {
	agg := newAggregator(data.NewMemoryProvider(), t0)
	buckets, err := agg.Aggregate(context.Background(), model.Humidity, model.TimeRange{})
	require.NoError(t, err)
	require.Empty(t, buckets)
}

func TestAggregateBucketsAreExactMeans(t *testing.T) {
	var samples []model.Sample
	for i := 0; i < 360; i++ {
		samples = append(samples, sample(time.Duration(i)*20*time.Second, float64(i%17), "dev"))
	}
	store := data.NewMemoryProvider(samples...)
	agg := newAggregator(store, t0.Add(3*time.Hour))

	from, to := t0, t0.Add(2*time.Hour)
	buckets, err := agg.Aggregate(context.Background(), model.Temperature, model.TimeRange{
		From: ptr(from), To: ptr(to), TargetPoints: 10,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 10)

	width := BucketDuration(from, to, 10)
	require.Equal(t, 12*time.Minute, width)
	for i, b := range buckets {
		if i > 0 {
			require.Equal(t, width, b.Start.Sub(buckets[i-1].Start))
		}
		var sum float64
		var n int
		for _, s := range samples {
			if !s.Timestamp.Before(b.Start) && s.Timestamp.Before(b.Start.Add(width)) {
				sum += s.Value
				n++
			}
		}
		require.InDelta(t, sum/float64(n), b.Value, 1e-9)
	}
}

func TestAggregateSparseDataYieldsFewerBuckets(t *testing.T) {
	store := data.NewMemoryProvider(
		sample(5*time.Minute, 10, "a"),
		sample(50*time.Minute, 20, "a"),
	)
	agg := newAggregator(store, t0)

	buckets, err := agg.Aggregate(context.Background(), model.Temperature, model.TimeRange{
		From: ptr(t0), To: ptr(t0.Add(time.Hour)), TargetPoints: 60,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	require.Equal(t, t0.Add(5*time.Minute), buckets[0].Start)
	require.Equal(t, t0.Add(50*time.Minute), buckets[1].Start)
}

func TestAggregateDefaults(t *testing.T) {
	now := t0.Add(30*time.Second + 7*time.Millisecond)
	agg := newAggregator(data.NewMemoryProvider(), now)

	from, to, points := agg.Resolve(model.TimeRange{})
	require.Equal(t, t0.Add(-6*time.Hour), from)
	require.Equal(t, now, to)
	require.Equal(t, DefaultTargetPoints, points)
}

func TestAggregateFlooredFromAlignsBuckets(t *testing.T) {
	store := data.NewMemoryProvider(sample(10*time.Second, 4, "a"), sample(70*time.Second, 8, "a"))
	agg := newAggregator(store, t0)

	buckets, err := agg.Aggregate(context.Background(), model.Temperature, model.TimeRange{
		From: ptr(t0.Add(5 * time.Second)), To: ptr(t0.Add(3 * time.Minute)), TargetPoints: 100,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	require.Equal(t, t0, buckets[0].Start)
	require.Equal(t, t0.Add(time.Minute), buckets[1].Start)
}

func TestAggregateSortsUnorderedReads(t *testing.T) {
	store := data.NewMemoryProvider(sample(0, 1, "a"), sample(time.Minute, 2, "b"), sample(2*time.Minute, 3, "c"))
	reader := &countingReader{SampleReader: store, order: func(s []model.Sample) {
		for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
			s[i], s[j] = s[j], s[i]
		}
	}}
	agg := newAggregator(reader, t0)

	buckets, err := agg.Aggregate(context.Background(), model.Temperature, model.TimeRange{
		From: ptr(t0), To: ptr(t0.Add(3 * time.Minute)), TargetPoints: 3,
	})
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	require.Equal(t, "a", buckets[0].Source)
	require.Equal(t, 3.0, buckets[2].Value)
}

func TestAggregateStorageError(t *testing.T) {
	boom := errors.New("boom")
	agg := newAggregator(&countingReader{SampleReader: data.NewMemoryProvider(), err: boom}, t0)

	_, err := agg.Aggregate(context.Background(), model.Light, model.TimeRange{})
	require.ErrorIs(t, err, boom)
}
