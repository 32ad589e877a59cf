package forecast

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/tunogya/sensorcast/pkg/feature"
	"github.com/tunogya/sensorcast/pkg/model"
	"github.com/tunogya/sensorcast/pkg/window"
)

// TrainSplit is the chronological share of rows used for fitting; the rest validates
const TrainSplit = 0.8

// fitFunc matches Fit; tests swap it to inject failures
type fitFunc func(train, valid Dataset, p Params) (*Ensemble, error)

// BuildDataset turns ordered samples into supervised rows. Each full context of
// five samples predicts the sample that follows it, with the target time as
// the feature reference. Pairs with broken timestamps are skipped.
func BuildDataset(sensor model.SensorKind, samples []model.Sample) (Dataset, []window.Pair) {
	pairs := window.NewBuilder(window.DefaultConfig(sensor)).Pairs(samples)

	ds := Dataset{
		X: make([][]float64, 0, len(pairs)),
		Y: make([]float64, 0, len(pairs)),
	}
	for _, p := range pairs {
		ds.X = append(ds.X, feature.FromSamples(p.Context.Samples, p.Target.Timestamp, sensor))
		ds.Y = append(ds.Y, p.Target.Value)
	}
	return ds, pairs
}

// SplitChronological splits rows in order, without shuffling
func SplitChronological(ds Dataset, share float64) (train, valid Dataset) {
	idx := int(float64(ds.Len()) * share)
	return Dataset{X: ds.X[:idx], Y: ds.Y[:idx]}, Dataset{X: ds.X[idx:], Y: ds.Y[idx:]}
}

type trainOutcome struct {
	snap  *snapshot
	pairs []window.Pair
}

// train runs one full training pass for sensor. It never panics; a failed fit
// returns an error and leaves the caller's state untouched.
func (f *Forecaster) train(ctx context.Context, sensor model.SensorKind) (*trainOutcome, error) {
	now := f.now()
	samples, err := f.reader.ReadSamples(ctx, sensor, now.Add(-f.trainingLookback), now)
	if err != nil {
		return nil, fmt.Errorf("failed to read training samples: %w", err)
	}
	samples = newest(samples, f.maxTrainingSamples)

	if len(samples) < f.minTrainingPoints {
		return nil, &Error{Kind: ErrInsufficientData, Sensor: sensor, Have: len(samples)}
	}

	ds, pairs := BuildDataset(sensor, samples)
	if ds.Len() < f.minTrainingPoints {
		return nil, &Error{Kind: ErrInsufficientData, Sensor: sensor, Have: ds.Len()}
	}

	trainSet, validSet := SplitChronological(ds, TrainSplit)
	est, err := f.safeFit(trainSet, validSet)
	if err != nil {
		return nil, fmt.Errorf("failed to fit model: %w", err)
	}

	run := model.TrainingRun{
		Sensor:        sensor,
		TrainedAt:     now,
		Samples:       len(samples),
		Rows:          ds.Len(),
		TrainRows:     trainSet.Len(),
		ValidRows:     validSet.Len(),
		BestIteration: est.BestIteration,
		ValidRMSE:     est.ValidRMSE,
	}
	if math.IsNaN(run.ValidRMSE) {
		run.ValidRMSE = 0
	}

	return &trainOutcome{
		snap:  &snapshot{estimator: est, trainedAt: now, run: run},
		pairs: pairs,
	}, nil
}

func (f *Forecaster) safeFit(train, valid Dataset) (est *Ensemble, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during fit: %v", r)
		}
	}()
	return f.fit(train, valid, f.params)
}

// newest keeps the last n samples of an ordered slice
func newest(samples []model.Sample, n int) []model.Sample {
	if n > 0 && len(samples) > n {
		return samples[len(samples)-n:]
	}
	return samples
}

func (f *Forecaster) stale(s *snapshot, now time.Time) bool {
	return now.Sub(s.trainedAt) > f.retrainInterval
}
