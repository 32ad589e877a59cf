// Package forecast keeps one regression model per sensor kind, retrains it
// lazily from recent history and serves multi-horizon point predictions.
//
// Confidence values attached to predictions come from a plausibility
// heuristic (see Confidence) and are not statistical intervals.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tunogya/sensorcast/pkg/data"
	"github.com/tunogya/sensorcast/pkg/feature"
	"github.com/tunogya/sensorcast/pkg/metrics"
	"github.com/tunogya/sensorcast/pkg/model"
	"github.com/tunogya/sensorcast/pkg/window"
)

// Defaults for the model lifecycle
const (
	DefaultRetrainInterval    = 6 * time.Hour
	DefaultMinTrainingPoints  = 10
	DefaultTrainingLookback   = 72 * time.Hour
	DefaultRecentLookback     = 24 * time.Hour
	DefaultMaxTrainingSamples = 5000
	DefaultMaxRecentSamples   = 200

	// MinRecentSamples is the context needed to predict
	MinRecentSamples = 5
)

// DefaultHorizons are used when a request names none (minutes)
var DefaultHorizons = []int{15, 60, 360, 1440}

// RunRecorder persists successful training passes
type RunRecorder interface {
	RecordRun(ctx context.Context, run model.TrainingRun) error
}

// WindowIndexer receives the supervised context windows of a fresh model
type WindowIndexer interface {
	IndexWindows(ctx context.Context, sensor model.SensorKind, pairs []window.Pair) error
}

// Forecaster owns the per-sensor model table
type Forecaster struct {
	reader   data.SampleReader
	params   Params
	now      func() time.Time
	log      *slog.Logger
	metrics  *metrics.Metrics
	recorder RunRecorder
	indexer  WindowIndexer
	fit      fitFunc

	retrainInterval    time.Duration
	minTrainingPoints  int
	trainingLookback   time.Duration
	recentLookback     time.Duration
	maxTrainingSamples int
	maxRecentSamples   int

	models *registry
}

// Option configures a Forecaster
type Option func(*Forecaster)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(f *Forecaster) { f.now = now }
}

// WithLogger sets the logger
func WithLogger(log *slog.Logger) Option {
	return func(f *Forecaster) { f.log = log }
}

// WithMetrics records training and prediction counters
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Forecaster) { f.metrics = m }
}

// WithRunRecorder persists every successful training run
func WithRunRecorder(r RunRecorder) Option {
	return func(f *Forecaster) { f.recorder = r }
}

// WithWindowIndexer hands training windows to the analog index
func WithWindowIndexer(ix WindowIndexer) Option {
	return func(f *Forecaster) { f.indexer = ix }
}

// WithParams overrides the boosting parameters
func WithParams(p Params) Option {
	return func(f *Forecaster) { f.params = p }
}

// WithRetrainInterval sets how old a model may get before it is retrained
func WithRetrainInterval(d time.Duration) Option {
	return func(f *Forecaster) { f.retrainInterval = d }
}

// New creates a Forecaster reading from reader
func New(reader data.SampleReader, opts ...Option) *Forecaster {
	f := &Forecaster{
		reader:             reader,
		params:             DefaultParams(),
		now:                func() time.Time { return time.Now().UTC() },
		log:                slog.Default(),
		fit:                Fit,
		retrainInterval:    DefaultRetrainInterval,
		minTrainingPoints:  DefaultMinTrainingPoints,
		trainingLookback:   DefaultTrainingLookback,
		recentLookback:     DefaultRecentLookback,
		maxTrainingSamples: DefaultMaxTrainingSamples,
		maxRecentSamples:   DefaultMaxRecentSamples,
		models:             newRegistry(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.log = f.log.With("component", "forecaster")
	return f
}

// Predict returns point predictions for each horizon (minutes ahead of now).
// A missing or stale model is trained first, synchronously. Failures are
// returned as *Error values scoped to the sensor; storage errors are wrapped.
func (f *Forecaster) Predict(ctx context.Context, sensor model.SensorKind, horizons []int) (*model.Forecast, error) {
	if len(horizons) == 0 {
		horizons = DefaultHorizons
	}

	e := f.models.get(sensor)
	snap, trainErr := f.ensureTrained(ctx, e)
	if snap == nil {
		f.metrics.Prediction(string(sensor), "not_ready")
		return nil, &Error{Kind: ErrModelNotReady, Sensor: sensor, Cause: trainErr}
	}

	now := f.now().UTC()
	recent, err := f.reader.ReadSamples(ctx, sensor, now.Add(-f.recentLookback), now)
	if err != nil {
		f.metrics.Prediction(string(sensor), "error")
		return nil, fmt.Errorf("failed to read recent samples: %w", err)
	}
	recent = newest(recent, f.maxRecentSamples)
	if len(recent) < MinRecentSamples {
		f.metrics.Prediction(string(sensor), "insufficient_data")
		return nil, &Error{Kind: ErrInsufficientData, Sensor: sensor, Have: len(recent)}
	}

	values := model.Values(recent)
	trainedAt := snap.trainedAt
	fc := &model.Forecast{
		Sensor:       sensor,
		Predictions:  make(map[int]model.Prediction, len(horizons)),
		ModelTrained: &trainedAt,
	}
	for _, h := range horizons {
		at := now.Add(time.Duration(h) * time.Minute)
		vec := feature.FromSamples(recent, at, sensor)
		raw := snap.estimator.Predict(vec)

		fc.Predictions[h] = model.Prediction{
			HorizonMinutes: h,
			Value:          round2(raw),
			Timestamp:      at,
			Confidence:     Confidence(values, raw),
		}
	}

	f.metrics.Prediction(string(sensor), "ok")
	return fc, nil
}

// ensureTrained returns the current snapshot, training first if there is none
// or it is stale. Concurrent callers for one sensor wait on the entry lock and
// reuse the outcome of the attempt that finished while they waited. A pass
// that finishes after the sensor was cleared serves its own caller but is not
// published; the next caller trains again.
func (f *Forecaster) ensureTrained(ctx context.Context, e *entry) (*snapshot, error) {
	if s := e.model.Load(); s != nil && !f.stale(s, f.now()) {
		return s, nil
	}

	seen := e.attempts.Load()
	e.mu.Lock()
	if e.attempts.Load() != seen {
		if s := e.model.Load(); s != nil || e.lastErr != nil {
			err := e.lastErr
			e.mu.Unlock()
			return s, err
		}
	}
	if s := e.model.Load(); s != nil && !f.stale(s, f.now()) {
		e.mu.Unlock()
		return s, nil
	}

	gen := e.generation()
	start := time.Now()
	out, err := f.train(ctx, e.sensor)
	published := false
	if err != nil {
		e.lastErr = err
		e.attempts.Add(1)
	} else if published = e.publish(gen, out.snap); published {
		e.lastErr = nil
		e.attempts.Add(1)
	}
	current := e.model.Load()
	e.mu.Unlock()

	if err != nil {
		f.logTrainingFailure(e.sensor, err)
		return current, err
	}

	run := out.snap.run
	f.metrics.TrainingRun(string(e.sensor), "ok", time.Since(start))
	f.log.Info("model trained",
		"sensor", e.sensor,
		"samples", run.Samples,
		"rows", run.Rows,
		"best_iteration", run.BestIteration,
		"valid_rmse", run.ValidRMSE,
		"published", published,
	)
	f.afterTraining(ctx, run, out.pairs)
	return out.snap, nil
}

func (f *Forecaster) logTrainingFailure(sensor model.SensorKind, err error) {
	var fe *Error
	if errors.As(err, &fe) && errors.Is(fe.Kind, ErrInsufficientData) {
		f.metrics.TrainingRun(string(sensor), "insufficient_data", 0)
		f.log.Warn("not enough data to train", "sensor", sensor, "have", fe.Have)
		return
	}
	f.metrics.TrainingRun(string(sensor), "error", 0)
	f.log.Error("training failed", "sensor", sensor, "error", err)
}

// afterTraining persists the run and indexes windows; failures are only logged
func (f *Forecaster) afterTraining(ctx context.Context, run model.TrainingRun, pairs []window.Pair) {
	if f.recorder != nil {
		if err := f.recorder.RecordRun(ctx, run); err != nil {
			f.log.Error("failed to record training run", "sensor", run.Sensor, "error", err)
		}
	}
	if f.indexer != nil {
		if err := f.indexer.IndexWindows(ctx, run.Sensor, pairs); err != nil {
			f.log.Error("failed to index windows", "sensor", run.Sensor, "error", err)
		}
	}
}

// Clear drops the model for sensor; the next Predict retrains from scratch
func (f *Forecaster) Clear(sensor model.SensorKind) bool {
	removed := f.models.remove(sensor)
	if removed {
		f.log.Info("cleared model", "sensor", sensor)
	}
	return removed
}

// ClearAll drops every model and returns how many were held
func (f *Forecaster) ClearAll() int {
	n := f.models.clear()
	f.log.Info("cleared all models", "count", n)
	return n
}

// Status reports the in-memory model state of every sensor kind
func (f *Forecaster) Status() []model.ModelStatus {
	now := f.now()
	kinds := model.SensorKinds()
	out := make([]model.ModelStatus, 0, len(kinds))
	for _, k := range kinds {
		st := model.ModelStatus{Sensor: k}
		if e, ok := f.models.lookup(k); ok {
			if s := e.model.Load(); s != nil {
				trainedAt := s.trainedAt
				run := s.run
				st.Trained = true
				st.TrainedAt = &trainedAt
				st.Stale = f.stale(s, now)
				st.LastRun = &run
			}
		}
		out = append(out, st)
	}
	return out
}

// TrainedAt returns when the model for sensor was last fitted, if ever
func (f *Forecaster) TrainedAt(sensor model.SensorKind) (time.Time, bool) {
	e, ok := f.models.lookup(sensor)
	if !ok {
		return time.Time{}, false
	}
	s := e.model.Load()
	if s == nil {
		return time.Time{}, false
	}
	return s.trainedAt, true
}
