// Package feature builds the model input vector shared by training and
// prediction, and the compact embedding used for analog search.
package feature

import (
	"math"
	"time"

	"github.com/tunogya/sensorcast/pkg/model"
	"github.com/zeebo/xxh3"
)

// Vector layout
const (
	LagCount = 5

	PosMean        = 5
	PosStd         = 6
	PosMedian      = 7
	PosRange       = 8
	PosLastChange  = 9
	PosDeviation   = 10
	PosSlope       = 11
	PosFingerprint = 12
	PosHour        = 13
	PosWeekday     = 14
	PosMinute      = 15
	PosLeadHours   = 16

	// Width is the number of features the estimator is trained on
	Width = 17

	// MaxLeadHours caps the lead feature
	MaxLeadHours = 24.0
)

// Vector is a fixed-width feature vector
type Vector []float64

// Build constructs the feature vector for a context of up to five samples.
//
// values and times are parallel and ordered oldest first; only the last five
// are used. reference is the instant the target refers to: the target sample
// time when training, now+horizon when predicting. The trailing feature is the
// lead time in hours from the last context sample to reference, clamped to
// [0, 24]. With fewer than three values the all-zero vector is returned.
func Build(values []float64, times []time.Time, reference time.Time, sensor string) Vector {
	v := make(Vector, Width)
	if len(values) < 3 {
		return v
	}
	if len(values) > LagCount {
		values = values[len(values)-LagCount:]
	}
	if len(times) > LagCount {
		times = times[len(times)-LagCount:]
	}

	n := len(values)
	pad := LagCount - n
	for i := 0; i < LagCount; i++ {
		if i < pad {
			v[i] = values[0]
		} else {
			v[i] = values[i-pad]
		}
	}

	mean, std := MeanStd(values)
	last := values[n-1]
	v[PosMean] = mean
	v[PosStd] = std
	v[PosMedian] = Median(values)
	v[PosRange] = Range(values)
	if n > 1 {
		v[PosLastChange] = last - values[n-2]
	}
	v[PosDeviation] = last - mean
	v[PosSlope] = Slope(values)
	v[PosFingerprint] = Fingerprint(sensor)

	ref := reference.UTC()
	v[PosHour] = float64(ref.Hour())
	v[PosWeekday] = float64(Weekday(ref))
	v[PosMinute] = float64(ref.Minute()) / 60.0
	v[PosLeadHours] = LeadHours(times, ref)

	return v
}

// Fingerprint maps a sensor identifier to a stable value in [0, 1)
func Fingerprint(sensor string) float64 {
	return float64(xxh3.HashString(sensor)%1000) / 1000.0
}

// Weekday returns the day of week with Monday as 0 and Sunday as 6
func Weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// LeadHours returns hours between the last timestamp and reference, clamped to [0, 24].
// An empty context counts as one hour.
func LeadHours(times []time.Time, reference time.Time) float64 {
	if len(times) == 0 {
		return 1
	}
	h := reference.Sub(times[len(times)-1]).Hours()
	return math.Max(0, math.Min(h, MaxLeadHours))
}

// FromSamples is Build over a slice of samples
func FromSamples(samples []model.Sample, reference time.Time, sensor model.SensorKind) Vector {
	return Build(model.Values(samples), model.Times(samples), reference, string(sensor))
}
