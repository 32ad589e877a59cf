package forecast

import (
	"math"

	"github.com/tunogya/sensorcast/pkg/feature"
	"gonum.org/v1/gonum/floats"
)

// ConfidenceWindow is how many recent values the confidence heuristic looks at
const ConfidenceWindow = 8

// Confidence scores a prediction against the recent values. It is a sanity
// check on plausibility, not a statistical confidence interval:
//
//   - fewer than 3 recent values: 0.5
//   - prediction within [min-range, max+range]: 1 - std/mean clamped to [0.3, 0.9]
//   - otherwise 0.2
//
// The result is rounded to two decimals.
func Confidence(recent []float64, prediction float64) float64 {
	if len(recent) < 3 {
		return 0.5
	}
	if len(recent) > ConfidenceWindow {
		recent = recent[len(recent)-ConfidenceWindow:]
	}

	lo, hi := floats.Min(recent), floats.Max(recent)
	spread := hi - lo
	if prediction < lo-spread || prediction > hi+spread {
		return 0.2
	}

	mean, std := feature.MeanStd(recent)
	cv := 1.0
	if mean != 0 {
		cv = std / mean
	}
	return round2(math.Max(0.3, math.Min(0.9, 1-cv)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
