package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// SampleWindow is a run of consecutive samples for one sensor, oldest first
type SampleWindow struct {
	WindowID       string     `json:"window_id"`
	Sensor         SensorKind `json:"sensor"`
	TEnd           time.Time  `json:"t_end"`           // timestamp of the newest sample
	W              int        `json:"w"`               // window length
	FeatureVersion int        `json:"feature_version"` // version for idempotency
	Samples        []Sample   `json:"samples"`
}

// GenerateWindowID creates a deterministic window ID based on key parameters.
// The source of the newest sample keeps windows of sources reporting at the
// same instant apart.
// Format: hash(sensor|source|t_end|W|feature_version)
func GenerateWindowID(sensor SensorKind, source string, tEnd time.Time, w, featureVersion int) string {
	data := fmt.Sprintf("%s|%s|%d|%d|%d",
		sensor,
		source,
		tEnd.UnixNano(),
		w,
		featureVersion,
	)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}

// NewSampleWindow creates a new SampleWindow with generated ID
func NewSampleWindow(sensor SensorKind, w, featureVersion int, samples []Sample) *SampleWindow {
	var tEnd time.Time
	var source string
	if len(samples) > 0 {
		tEnd = samples[len(samples)-1].Timestamp
		source = samples[len(samples)-1].Source
	}
	return &SampleWindow{
		WindowID:       GenerateWindowID(sensor, source, tEnd, w, featureVersion),
		Sensor:         sensor,
		TEnd:           tEnd,
		W:              w,
		FeatureVersion: featureVersion,
		Samples:        samples,
	}
}

// IsComplete returns true if the window has the expected number of samples
func (w *SampleWindow) IsComplete() bool {
	return len(w.Samples) == w.W
}

// Last returns the newest sample in the window
func (w *SampleWindow) Last() *Sample {
	if len(w.Samples) == 0 {
		return nil
	}
	return &w.Samples[len(w.Samples)-1]
}

// Values returns the sample values, oldest first
func (w *SampleWindow) Values() []float64 {
	return Values(w.Samples)
}

// Times returns the sample timestamps, oldest first
func (w *SampleWindow) Times() []time.Time {
	return Times(w.Samples)
}
