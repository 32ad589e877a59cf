package feature

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tunogya/sensorcast/pkg/model"
)

// Monday
var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func minutes(n int) []time.Time {
	out := make([]time.Time, n)
	for i := range out {
		out[i] = t0.Add(time.Duration(i) * time.Minute)
	}
	return out
}

func TestBuildLayout(t *testing.T) {
	v := Build([]float64{1, 2, 3, 4, 5}, minutes(5), t0.Add(5*time.Minute), "temperature")

	require.Len(t, v, Width)
	require.Equal(t, []float64{1, 2, 3, 4, 5}, []float64(v[:LagCount]))
	require.InDelta(t, 3.0, v[PosMean], 1e-12)
	require.InDelta(t, math.Sqrt2, v[PosStd], 1e-12)
	require.InDelta(t, 3.0, v[PosMedian], 1e-12)
	require.InDelta(t, 4.0, v[PosRange], 1e-12)
	require.InDelta(t, 1.0, v[PosLastChange], 1e-12)
	require.InDelta(t, 2.0, v[PosDeviation], 1e-12)
	require.InDelta(t, 1.0, v[PosSlope], 1e-9)
	require.Equal(t, Fingerprint("temperature"), v[PosFingerprint])
	require.Equal(t, 10.0, v[PosHour])
	require.Equal(t, 0.0, v[PosWeekday])
	require.InDelta(t, 5.0/60.0, v[PosMinute], 1e-12)
	require.InDelta(t, 1.0/60.0, v[PosLeadHours], 1e-12)
}

func TestBuildLeftPadsWithOldest(t *testing.T) {
	v := Build([]float64{2, 4, 6}, minutes(3), t0.Add(time.Hour), "humidity")

	require.Equal(t, []float64{2, 2, 2, 4, 6}, []float64(v[:LagCount]))
	require.InDelta(t, 4.0, v[PosMean], 1e-12)
	require.InDelta(t, math.Sqrt(8.0/3.0), v[PosStd], 1e-12)
	require.InDelta(t, 2.0, v[PosSlope], 1e-9)
	require.InDelta(t, 2.0, v[PosLastChange], 1e-12)
}

func TestBuildUsesLastFive(t *testing.T) {
	v := Build([]float64{100, 1, 2, 3, 4, 5}, minutes(6), t0.Add(6*time.Minute), "light")
	require.Equal(t, []float64{1, 2, 3, 4, 5}, []float64(v[:LagCount]))
	require.InDelta(t, 3.0, v[PosMean], 1e-12)
}

func TestBuildTooFewValues(t *testing.T) {
	for _, n := range []int{0, 1, 2} {
		v := Build(make([]float64, n), minutes(n), t0, "temperature")
		require.Equal(t, make(Vector, Width), v)
	}
}

func TestBuildIsPure(t *testing.T) {
	values := []float64{3.5, 2.25, 9, 4}
	ref := t0.Add(90 * time.Minute)
	require.Equal(t, Build(values, minutes(4), ref, "light"), Build(values, minutes(4), ref, "light"))
}

func TestBuildConvertsReferenceToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+8", 8*3600)
	ref := t0.Add(10 * time.Minute)
	a := Build([]float64{1, 2, 3}, minutes(3), ref, "light")
	b := Build([]float64{1, 2, 3}, minutes(3), ref.In(loc), "light")
	require.Equal(t, a, b)
}

func TestLeadHoursClamped(t *testing.T) {
	times := minutes(3)
	require.Equal(t, MaxLeadHours, LeadHours(times, t0.Add(72*time.Hour)))
	require.Equal(t, 0.0, LeadHours(times, t0.Add(-time.Hour)))
	require.Equal(t, 1.0, LeadHours(nil, t0))
}

func TestWeekdayMondayFirst(t *testing.T) {
	require.Equal(t, 0, Weekday(t0))
	require.Equal(t, 6, Weekday(t0.AddDate(0, 0, 6)))
}

func TestFingerprintStable(t *testing.T) {
	for _, s := range model.SensorKinds() {
		f := Fingerprint(string(s))
		require.GreaterOrEqual(t, f, 0.0)
		require.Less(t, f, 1.0)
		require.Equal(t, f, Fingerprint(string(s)))
	}
}

func TestStats(t *testing.T) {
	require.Equal(t, 2.5, Median([]float64{1, 3, 2, 4}))
	require.Equal(t, 0.0, Median(nil))
	require.Equal(t, 0.0, Slope([]float64{1, 2}))
	require.Equal(t, 0.0, Range(nil))

	mean, std := MeanStd(nil)
	require.Zero(t, mean)
	require.Zero(t, std)

	z := ZScoreClip([]float64{1, 1, 1}, 3)
	require.Equal(t, []float64{0, 0, 0}, z)
	for _, v := range ZScoreClip([]float64{0, 0, 0, 0, 0, 0, 0, 0, 0, 100}, 2) {
		require.LessOrEqual(t, math.Abs(v), 1.0)
	}
}

func TestEmbedding(t *testing.T) {
	e := NewExtractor(1)
	samples := make([]model.Sample, LagCount)
	for i := range samples {
		samples[i] = model.Sample{Timestamp: t0.Add(time.Duration(i) * time.Minute), Sensor: model.Light, Value: 7}
	}
	w := model.NewSampleWindow(model.Light, LagCount, 1, samples)

	emb := e.Embed(w)
	require.Len(t, emb, EmbeddingDim)
	for i := 0; i < LagCount; i++ {
		require.Zero(t, emb[i])
	}

	partial := model.NewSampleWindow(model.Light, LagCount, 1, samples[:3])
	require.Nil(t, e.Embed(partial))

	// same shape at a different level embeds identically
	shifted := make([]model.Sample, LagCount)
	copy(shifted, samples)
	for i := range shifted {
		shifted[i].Value = float64(i)
	}
	raised := make([]model.Sample, LagCount)
	copy(raised, shifted)
	for i := range raised {
		raised[i].Value += 50
	}
	a := e.Embed(model.NewSampleWindow(model.Light, LagCount, 1, shifted))
	b := e.Embed(model.NewSampleWindow(model.Light, LagCount, 1, raised))
	require.InDeltaSlice(t, a, b, 1e-6)
}
