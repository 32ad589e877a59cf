// Package outcome measures what happened after past context windows.
package outcome

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/tunogya/sensorcast/pkg/data"
	"github.com/tunogya/sensorcast/pkg/model"
	"gonum.org/v1/gonum/stat"
)

// lookaheadSlack extends the forward read so a horizon can be confirmed as reached
const lookaheadSlack = time.Hour

// Engine calculates forward-looking statistics for windows
type Engine struct {
	reader data.SampleReader
}

// NewEngine creates a new outcome engine
func NewEngine(reader data.SampleReader) *Engine {
	return &Engine{reader: reader}
}

// Anchor is the end of a past context window
type Anchor struct {
	WindowID string
	Sensor   model.SensorKind
	TEnd     time.Time
	Base     float64 // newest context value; changes are measured from it
}

// Result holds outcome statistics for a single window-horizon pair
type Result struct {
	WindowID      string
	Horizon       int // minutes
	Complete      bool
	EndChange     float64 // last forward value within the horizon minus base
	FwdChangeMean float64
	FwdChangeP10  float64
	FwdChangeP50  float64
	FwdChangeP90  float64
	MaxDeviation  float64 // largest |value - base| within the horizon
	FwdSamples    int     // Number of forward samples actually found
}

// Calculate computes outcome statistics for the given anchors. A horizon is
// complete once the series has a sample at or beyond TEnd+horizon.
func (e *Engine) Calculate(ctx context.Context, anchors []Anchor, horizons []int) ([]Result, error) {
	if len(horizons) == 0 {
		return nil, nil
	}
	maxH := 0
	for _, h := range horizons {
		maxH = max(maxH, h)
	}

	var results []Result
	for _, a := range anchors {
		end := a.TEnd.Add(time.Duration(maxH)*time.Minute + lookaheadSlack)
		samples, err := e.reader.ReadSamples(ctx, a.Sensor, a.TEnd, end)
		if err != nil {
			return nil, fmt.Errorf("failed to read forward samples for %s: %w", a.WindowID, err)
		}

		// drop the anchor sample itself
		var forward []model.Sample
		for _, s := range samples {
			if s.Timestamp.After(a.TEnd) {
				forward = append(forward, s)
			}
		}

		for _, h := range horizons {
			results = append(results, calculateStats(a, h, forward))
		}
	}

	return results, nil
}

func calculateStats(a Anchor, horizon int, forward []model.Sample) Result {
	limit := a.TEnd.Add(time.Duration(horizon) * time.Minute)

	var changes []float64
	complete := false
	for _, s := range forward {
		if s.Timestamp.After(limit) {
			complete = true
			break
		}
		changes = append(changes, s.Value-a.Base)
		if s.Timestamp.Equal(limit) {
			complete = true
		}
	}

	r := Result{WindowID: a.WindowID, Horizon: horizon, FwdSamples: len(changes)}
	if !complete || len(changes) == 0 {
		return r
	}

	r.Complete = true
	r.EndChange = changes[len(changes)-1]
	r.MaxDeviation = maxAbs(changes)
	r.FwdChangeMean = stat.Mean(changes, nil)

	sorted := make([]float64, len(changes))
	copy(sorted, changes)
	sort.Float64s(sorted)
	r.FwdChangeP10 = percentile(sorted, 10)
	r.FwdChangeP50 = percentile(sorted, 50)
	r.FwdChangeP90 = percentile(sorted, 90)
	return r
}

func maxAbs(values []float64) float64 {
	m := 0.0
	for _, v := range values {
		m = math.Max(m, math.Abs(v))
	}
	return m
}

// percentile calculates the p-th percentile (p in 0-100) of sorted values
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	// Linear interpolation between closest ranks
	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))

	if lower == upper {
		return sorted[lower]
	}

	fraction := rank - float64(lower)
	return sorted[lower] + fraction*(sorted[upper]-sorted[lower])
}

// AggregatedOutcome summarises the end changes of all analogs for one horizon
type AggregatedOutcome struct {
	Horizon      int     `json:"horizon_minutes"`
	SampleCount  int     `json:"sample_count"`
	MeanChange   float64 `json:"mean_change"`
	P10          float64 `json:"p10"`
	P50          float64 `json:"p50"`
	P90          float64 `json:"p90"`
	MaxDevP95    float64 `json:"max_deviation_p95"`
	Incomplete   int     `json:"incomplete"` // analogs whose horizon had not been reached
}

// AggregateResults aggregates outcomes from multiple windows into per-horizon statistics
func AggregateResults(results []Result) map[int]AggregatedOutcome {
	byHorizon := make(map[int][]Result)
	for _, r := range results {
		byHorizon[r.Horizon] = append(byHorizon[r.Horizon], r)
	}

	aggregated := make(map[int]AggregatedOutcome, len(byHorizon))
	for horizon, rs := range byHorizon {
		var ends, devs []float64
		incomplete := 0
		for _, r := range rs {
			if !r.Complete {
				incomplete++
				continue
			}
			ends = append(ends, r.EndChange)
			devs = append(devs, r.MaxDeviation)
		}

		agg := AggregatedOutcome{Horizon: horizon, SampleCount: len(ends), Incomplete: incomplete}
		if len(ends) > 0 {
			sort.Float64s(ends)
			sort.Float64s(devs)
			agg.MeanChange = stat.Mean(ends, nil)
			agg.P10 = percentile(ends, 10)
			agg.P50 = percentile(ends, 50)
			agg.P90 = percentile(ends, 90)
			agg.MaxDevP95 = percentile(devs, 95)
		}
		aggregated[horizon] = agg
	}

	return aggregated
}

// String returns a formatted string representation
func (a AggregatedOutcome) String() string {
	return fmt.Sprintf(
		"Horizon: %d min | Samples: %d | Mean: %.3f | P10: %.3f | P50: %.3f | P90: %.3f | MaxDev95: %.3f",
		a.Horizon, a.SampleCount, a.MeanChange, a.P10, a.P50, a.P90, a.MaxDevP95,
	)
}
