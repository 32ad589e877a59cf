package data

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tunogya/sensorcast/pkg/model"
)

const sampleCSV = `timestamp,sensor,source,value
2024-03-01T12:02:00Z,temperature,dev-1,22.0
1709294400000,temperature,dev-1,21.0
2024-03-01 12:01:00,Temperature,dev-2,21.5
2024-03-01T13:01:00+01:00,humidity,dev-1,40
not-a-time,temperature,dev-1,1
2024-03-01T12:03:00Z,pressure,dev-1,1000
2024-03-01T12:04:00Z,light,dev-1,abc
`

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func TestCSVProviderParsesAndSorts(t *testing.T) {
	p := &CSVProvider{}
	require.NoError(t, p.load(strings.NewReader(sampleCSV)))

	samples := p.samples
	require.Len(t, samples, 4)

	temps := filterRange(samples, model.Temperature, t0, t0.Add(time.Hour))
	require.Equal(t, []float64{21.0, 21.5, 22.0}, model.Values(temps))
	require.True(t, temps[0].Timestamp.Equal(t0))
	require.Equal(t, "dev-2", temps[1].Source)

	hum := filterRange(samples, model.Humidity, t0, t0.Add(time.Hour))
	require.Len(t, hum, 1)
	require.True(t, hum[0].Timestamp.Equal(t0.Add(time.Minute)))
	require.Equal(t, time.UTC, hum[0].Timestamp.Location())
}

func TestCSVProviderFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samples.csv")
	require.NoError(t, os.WriteFile(path, []byte(sampleCSV), 0o644))

	p := NewCSVProvider(path)
	got, err := p.ReadSamples(context.Background(), model.Temperature, t0.Add(30*time.Second), t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, []float64{21.5, 22.0}, model.Values(got))

	all, err := p.Samples()
	require.NoError(t, err)
	require.Len(t, all, 4)

	_, err = NewCSVProvider(filepath.Join(t.TempDir(), "missing.csv")).Samples()
	require.Error(t, err)
}

func TestParseTimestamp(t *testing.T) {
	for _, v := range []string{"2024-03-01T12:00:00Z", "2024-03-01T13:00:00+01:00", "2024-03-01T12:00:00", "1709294400000"} {
		ts, err := ParseTimestamp(v)
		require.NoError(t, err, v)
		require.True(t, ts.Equal(t0), v)
		require.Equal(t, time.UTC, ts.Location(), v)
	}

	_, err := ParseTimestamp("")
	require.Error(t, err)
	_, err = ParseTimestamp("01/03/2024")
	require.Error(t, err)
}

func TestMemoryProvider(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryProvider(
		model.Sample{Timestamp: t0.Add(2 * time.Minute), Sensor: model.Light, Value: 3},
		model.Sample{Timestamp: t0, Sensor: model.Light, Value: 1},
	)

	s, err := p.InsertSample(ctx, model.Sample{Timestamp: t0.Add(time.Minute), Sensor: model.Light, Value: 2})
	require.NoError(t, err)
	require.NotEmpty(t, s.ID)

	require.NoError(t, p.InsertSamples(ctx, []model.Sample{
		{Timestamp: t0, Sensor: model.Humidity, Value: 50},
	}))
	require.Equal(t, 3, p.Len(model.Light))
	require.Equal(t, 1, p.Len(model.Humidity))

	got, err := p.ReadSamples(ctx, model.Light, t0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 3}, model.Values(got))

	got, err = p.ReadSamples(ctx, model.Light, t0.Add(time.Second), t0.Add(119*time.Second))
	require.NoError(t, err)
	require.Equal(t, []float64{2}, model.Values(got))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = p.ReadSamples(cctx, model.Light, t0, t0.Add(time.Hour))
	require.ErrorIs(t, err, context.Canceled)
}

type failingStore struct {
	*MemoryProvider
	calls int
}

func (f *failingStore) InsertSamples(ctx context.Context, samples []model.Sample) error {
	f.calls++
	if f.calls == 2 {
		return errors.New("disk full")
	}
	return f.MemoryProvider.InsertSamples(ctx, samples)
}

func TestBackfill(t *testing.T) {
	var src []model.Sample
	for i := 0; i < 25; i++ {
		sensor := model.Temperature
		if i%5 == 0 {
			sensor = model.Humidity
		}
		src = append(src, model.Sample{Timestamp: t0.Add(time.Duration(i) * time.Minute), Sensor: sensor, Value: float64(i)})
	}

	dst := NewMemoryProvider()
	cfg := BackfillConfig{Sensor: model.Temperature, StartTime: t0.Add(time.Minute), EndTime: t0.Add(20 * time.Minute), BatchSize: 4}

	var progress []BackfillProgress
	require.NoError(t, Backfill(context.Background(), src, dst, cfg, func(p BackfillProgress) {
		progress = append(progress, p)
	}))

	// minutes 1..20 without multiples of 5
	require.Equal(t, 16, dst.Len(model.Temperature))
	require.Zero(t, dst.Len(model.Humidity))
	require.Len(t, progress, 4)
	require.Equal(t, BackfillProgress{TotalSamples: 16, ProcessedSamples: 16}, progress[3])
	require.Equal(t, 4, progress[0].ProcessedSamples)
}

func TestBackfillStopsOnError(t *testing.T) {
	src := make([]model.Sample, 10)
	for i := range src {
		src[i] = model.Sample{Timestamp: t0.Add(time.Duration(i) * time.Minute), Sensor: model.Light, Value: 1}
	}
	dst := &failingStore{MemoryProvider: NewMemoryProvider()}

	err := Backfill(context.Background(), src, dst, BackfillConfig{BatchSize: 3}, nil)
	require.Error(t, err)
	require.Equal(t, 3, dst.Len(model.Light))
}
