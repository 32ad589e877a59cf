package feature

import (
	"math"

	"github.com/tunogya/sensorcast/pkg/model"
)

// EmbeddingDim is the dimension of the analog search embedding
const EmbeddingDim = 9

// Extractor turns sample windows into analog-search embeddings
type Extractor struct {
	FeatureVersion int
	ClipStd        float64 // Standard deviations for clipping (default 3.0)
}

// NewExtractor creates a new embedding extractor
func NewExtractor(featureVersion int) *Extractor {
	return &Extractor{
		FeatureVersion: featureVersion,
		ClipStd:        3.0,
	}
}

// Extract builds the feature vector of a window with its end time as reference
func (e *Extractor) Extract(w *model.SampleWindow) Vector {
	return FromSamples(w.Samples, w.TEnd, w.Sensor)
}

// Embed returns the embedding of a window, or nil if the window is incomplete
func (e *Extractor) Embed(w *model.SampleWindow) []float32 {
	if !w.IsComplete() {
		return nil
	}
	return e.Embedding(e.Extract(w))
}

// Embedding encodes the shape of the lag values plus cyclic time of day and day of week.
// The lag shape is z-scored so that contexts with the same pattern at different
// levels land close together under cosine distance.
func (e *Extractor) Embedding(v Vector) []float32 {
	out := make([]float32, EmbeddingDim)
	if len(v) < Width {
		return out
	}

	clip := e.ClipStd
	if clip <= 0 {
		clip = 3.0
	}
	for i, z := range ZScoreClip(v[:LagCount], clip) {
		out[i] = float32(z)
	}

	hour := v[PosHour] + v[PosMinute]
	out[5] = float32(math.Sin(2 * math.Pi * hour / 24))
	out[6] = float32(math.Cos(2 * math.Pi * hour / 24))
	out[7] = float32(math.Sin(2 * math.Pi * v[PosWeekday] / 7))
	out[8] = float32(math.Cos(2 * math.Pi * v[PosWeekday] / 7))

	return out
}
