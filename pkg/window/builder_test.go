package window

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tunogya/sensorcast/pkg/model"
)

var t0 = time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)

func series(n int) []model.Sample {
	out := make([]model.Sample, n)
	for i := range out {
		out[i] = model.Sample{
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Sensor:    model.Temperature,
			Value:     float64(i),
		}
	}
	return out
}

func TestRingBufferOrder(t *testing.T) {
	rb := NewRingBuffer(3)
	require.Empty(t, rb.ToSlice())

	for _, s := range series(5) {
		rb.Push(s)
	}

	require.True(t, rb.IsFull())
	require.Equal(t, 3, rb.Size())
	require.Equal(t, []float64{2, 3, 4}, model.Values(rb.ToSlice()))
}

func windows(b *Builder, samples []model.Sample) []*model.SampleWindow {
	var out []*model.SampleWindow
	for _, s := range samples {
		if w, ok := b.Push(s); ok {
			out = append(out, w)
		}
	}
	return out
}

func TestBuilderEmitsAfterWarmup(t *testing.T) {
	got := windows(NewBuilder(DefaultConfig(model.Temperature)), series(8))

	require.Len(t, got, 4)
	require.True(t, got[0].IsComplete())
	require.Equal(t, []float64{0, 1, 2, 3, 4}, got[0].Values())
	require.Equal(t, t0.Add(7*time.Minute), got[3].TEnd)
}

func TestBuilderStep(t *testing.T) {
	cfg := DefaultConfig(model.Light)
	cfg.S = 2
	got := windows(NewBuilder(cfg), series(9))

	require.Len(t, got, 3)
	require.Equal(t, 4.0, got[0].Last().Value)
	require.Equal(t, 6.0, got[1].Last().Value)
}

func TestWindowIDDeterministic(t *testing.T) {
	a := windows(NewBuilder(DefaultConfig(model.Humidity)), series(6))
	b := windows(NewBuilder(DefaultConfig(model.Humidity)), series(6))
	require.Equal(t, a[0].WindowID, b[0].WindowID)
	require.NotEqual(t, a[0].WindowID, a[1].WindowID)
	require.Len(t, a[0].WindowID, 32)
}

func TestPairs(t *testing.T) {
	pairs := NewBuilder(DefaultConfig(model.Temperature)).Pairs(series(7))

	require.Len(t, pairs, 2)
	require.Equal(t, []float64{0, 1, 2, 3, 4}, pairs[0].Context.Values())
	require.Equal(t, 5.0, pairs[0].Target.Value)
	require.Equal(t, 6.0, pairs[1].Target.Value)
}

func TestPairsSkipsBrokenTimestamps(t *testing.T) {
	s := series(8)
	s[6].Timestamp = s[4].Timestamp.Add(-time.Second) // goes back in time

	pairs := NewBuilder(DefaultConfig(model.Temperature)).Pairs(s)

	// windows ending at 4 and 5 are fine; 6 as target or context member is not
	require.Len(t, pairs, 1)
	require.Equal(t, 5.0, pairs[0].Target.Value)
}

func TestPairsSkipsZeroTimestamps(t *testing.T) {
	s := series(7)
	s[2].Timestamp = time.Time{}

	require.Empty(t, NewBuilder(DefaultConfig(model.Temperature)).Pairs(s))
}

func TestPairsAcceptSharedTimestamps(t *testing.T) {
	var s []model.Sample
	for i := 0; i < 6; i++ {
		ts := t0.Add(time.Duration(i) * time.Minute)
		s = append(s,
			model.Sample{Timestamp: ts, Sensor: model.Temperature, Source: "a", Value: float64(i)},
			model.Sample{Timestamp: ts, Sensor: model.Temperature, Source: "b", Value: float64(i) + 0.5},
		)
	}

	pairs := NewBuilder(DefaultConfig(model.Temperature)).Pairs(s)

	require.Len(t, pairs, len(s)-ContextSize)
	require.NotEqual(t, pairs[0].Context.WindowID, pairs[1].Context.WindowID)
	require.Equal(t, pairs[0].Context.TEnd, pairs[1].Context.TEnd)
}

func TestPairsTooShort(t *testing.T) {
	require.Empty(t, NewBuilder(DefaultConfig(model.Temperature)).Pairs(series(5)))
}
