package window

import (
	"github.com/tunogya/sensorcast/pkg/model"
)

// ContextSize is the number of samples that make up one prediction context
const ContextSize = 5

// Builder manages sliding window construction from a stream of samples
type Builder struct {
	W              int // Window length (number of samples)
	S              int // Step size (samples between window outputs)
	Warmup         int // Minimum samples before first window output
	FeatureVersion int // Version for window ID generation
	Sensor         model.SensorKind

	buffer    *RingBuffer
	stepCount int  // Counter for step-based output
	warmedUp  bool // Whether warmup period is complete
}

// Config holds configuration for window builder
type Config struct {
	W              int              // Window length
	S              int              // Step size
	Warmup         int              // Warmup period (defaults to W if 0)
	FeatureVersion int              // Feature version (defaults to 1)
	Sensor         model.SensorKind // Sensor the samples belong to
}

// DefaultConfig returns a Config producing every 5-sample context
func DefaultConfig(sensor model.SensorKind) Config {
	return Config{
		W:              ContextSize,
		S:              1,
		FeatureVersion: 1,
		Sensor:         sensor,
	}
}

// NewBuilder creates a new window builder with the given configuration
func NewBuilder(cfg Config) *Builder {
	warmup := cfg.Warmup
	if warmup <= 0 {
		warmup = cfg.W
	}
	step := cfg.S
	if step <= 0 {
		step = 1
	}
	version := cfg.FeatureVersion
	if version <= 0 {
		version = 1
	}

	return &Builder{
		W:              cfg.W,
		S:              step,
		Warmup:         warmup,
		FeatureVersion: version,
		Sensor:         cfg.Sensor,
		buffer:         NewRingBuffer(cfg.W),
	}
}

// Push adds a new sample and potentially produces a window
// Returns a window if one should be emitted, and a bool indicating if a window was produced
func (b *Builder) Push(s model.Sample) (*model.SampleWindow, bool) {
	b.buffer.Push(s)
	b.stepCount++

	if !b.warmedUp && b.buffer.Size() >= b.Warmup {
		b.warmedUp = true
		b.stepCount = b.S // Force first output after warmup
	}

	if !b.warmedUp || !b.buffer.IsFull() {
		return nil, false
	}

	if b.stepCount < b.S {
		return nil, false
	}

	b.stepCount = 0
	return model.NewSampleWindow(b.Sensor, b.W, b.FeatureVersion, b.buffer.ToSlice()), true
}

// Pair is a full context window together with the sample that follows it
type Pair struct {
	Context *model.SampleWindow
	Target  model.Sample
}

// Pairs turns an ordered sample series into supervised pairs. Each emitted
// window is matched with the next sample. Several sources may report at the
// same instant, so equal timestamps are fine; a pair with a zero or
// out-of-order timestamp is dropped without affecting its neighbours.
func (b *Builder) Pairs(samples []model.Sample) []Pair {
	var pairs []Pair
	var pending *model.SampleWindow

	for _, s := range samples {
		if pending != nil {
			if validPair(pending, s) {
				pairs = append(pairs, Pair{Context: pending, Target: s})
			}
			pending = nil
		}
		if w, ok := b.Push(s); ok {
			pending = w
		}
	}

	return pairs
}

func validPair(ctx *model.SampleWindow, target model.Sample) bool {
	prev := ctx.Samples[0].Timestamp
	if prev.IsZero() {
		return false
	}
	for _, s := range ctx.Samples[1:] {
		if s.Timestamp.IsZero() || s.Timestamp.Before(prev) {
			return false
		}
		prev = s.Timestamp
	}
	return !target.Timestamp.IsZero() && !target.Timestamp.Before(prev)
}
