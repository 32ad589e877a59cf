package feature

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MeanStd returns the mean and population standard deviation of values
func MeanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

// Median returns the middle value, averaging the two central values for even lengths
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// Range returns max - min
func Range(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Max(values) - floats.Min(values)
}

// Slope fits an ordinary least-squares line over index 0..n-1 and returns its slope.
// Fewer than 3 points yields 0.
func Slope(values []float64) float64 {
	if len(values) < 3 {
		return 0
	}
	xs := make([]float64, len(values))
	for i := range xs {
		xs[i] = float64(i)
	}
	_, beta := stat.LinearRegression(xs, values, nil, false)
	if math.IsNaN(beta) {
		return 0
	}
	return beta
}

// ZScoreClip normalizes values to z-scores clipped at ±clipStd and scaled to [-1, 1]
func ZScoreClip(values []float64, clipStd float64) []float64 {
	if len(values) == 0 {
		return nil
	}

	mean, std := MeanStd(values)
	if std == 0 {
		std = 1
	}

	out := make([]float64, len(values))
	for i, v := range values {
		z := (v - mean) / std
		if z > clipStd {
			z = clipStd
		}
		if z < -clipStd {
			z = -clipStd
		}
		out[i] = z / clipStd
	}

	return out
}
