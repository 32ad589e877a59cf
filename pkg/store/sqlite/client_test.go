package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tunogya/sensorcast/pkg/model"
	"github.com/tunogya/sensorcast/pkg/store/sqlstore"
)

func newRepo(t *testing.T) *sqlstore.Repo {
	t.Helper()
	ctx := context.Background()

	c, err := NewClient(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })

	require.NoError(t, c.InitializeSchema(ctx))
	return c.Repo()
}

func TestInsertAndReadSamples(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	stored, err := repo.InsertSample(ctx, model.Sample{
		Timestamp: t0, Sensor: model.Temperature, Source: "dev-1", Value: 21.5,
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	err = repo.InsertSamples(ctx, []model.Sample{
		{ID: "b", Timestamp: t0.Add(2 * time.Minute), Sensor: model.Temperature, Source: "dev-1", Value: 22},
		{ID: "a", Timestamp: t0.Add(time.Minute), Sensor: model.Temperature, Source: "dev-2", Value: 21.8},
		{ID: "h", Timestamp: t0.Add(time.Minute), Sensor: model.Humidity, Source: "dev-1", Value: 40},
	})
	require.NoError(t, err)

	got, err := repo.ReadSamples(ctx, model.Temperature, t0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []float64{21.5, 21.8, 22}, model.Values(got))
	require.Equal(t, "dev-2", got[1].Source)
	require.True(t, got[1].Timestamp.Equal(t0.Add(time.Minute)))
	require.Equal(t, time.UTC, got[1].Timestamp.Location())

	got, err = repo.ReadSamples(ctx, model.Temperature, t0.Add(30*time.Second), t0.Add(90*time.Second))
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "a", got[0].ID)
}

func TestInsertSamplesIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	batch := []model.Sample{
		{ID: "x", Timestamp: t0, Sensor: model.Light, Value: 100},
		{ID: "y", Timestamp: t0.Add(time.Minute), Sensor: model.Light, Value: 120},
	}
	require.NoError(t, repo.InsertSamples(ctx, batch))
	require.NoError(t, repo.InsertSamples(ctx, batch))

	n, err := repo.Count(ctx, model.Light)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestLatest(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	var batch []model.Sample
	for i := 0; i < 10; i++ {
		batch = append(batch, model.Sample{Timestamp: t0.Add(time.Duration(i) * time.Minute), Sensor: model.Humidity, Value: float64(i)})
	}
	require.NoError(t, repo.InsertSamples(ctx, batch))

	got, err := repo.Latest(ctx, model.Humidity, 3)
	require.NoError(t, err)
	require.Equal(t, []float64{7, 8, 9}, model.Values(got))

	got, err = repo.Latest(ctx, model.Temperature, 3)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestTrainingRuns(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		require.NoError(t, repo.RecordRun(ctx, model.TrainingRun{
			Sensor:        model.Temperature,
			TrainedAt:     t0.Add(time.Duration(i) * time.Hour),
			Samples:       300 + i,
			Rows:          295,
			TrainRows:     236,
			ValidRows:     59,
			BestIteration: 40 + i,
			ValidRMSE:     0.25,
		}))
	}

	runs, err := repo.Runs(ctx, model.Temperature, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, 42, runs[0].BestIteration)
	require.True(t, runs[0].TrainedAt.Equal(t0.Add(2*time.Hour)))
	require.Equal(t, 41, runs[1].BestIteration)
	require.Equal(t, 0.25, runs[1].ValidRMSE)

	runs, err = repo.Runs(ctx, model.Light, 10)
	require.NoError(t, err)
	require.Empty(t, runs)
}

func TestFileDatabase(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "data", "sensorcast.db")

	c, err := NewClient(ctx, path)
	require.NoError(t, err)
	require.NoError(t, c.InitializeSchema(ctx))
	_, err = c.Repo().InsertSample(ctx, model.Sample{Sensor: model.Light, Value: 1})
	require.NoError(t, err)
	require.NoError(t, c.Close())

	c, err = NewClient(ctx, path)
	require.NoError(t, err)
	defer c.Close()

	n, err := c.Repo().Count(ctx, model.Light)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
