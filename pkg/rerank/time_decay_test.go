package rerank

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tunogya/sensorcast/pkg/store/milvus"
)

var now = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func hit(id string, score float32, age time.Duration) milvus.SearchResult {
	return milvus.SearchResult{WindowID: id, Score: score, TEnd: now.Add(-age)}
}

func TestExponentialDecayPrefersRecent(t *testing.T) {
	r := NewReranker(DefaultTimeDecayConfig())
	ranked := r.Rerank([]milvus.SearchResult{
		hit("old", 0.95, 60*time.Hour),
		hit("new", 0.90, time.Hour),
	}, now)

	require.Equal(t, "new", ranked[0].WindowID)
	require.InDelta(t, math.Exp(-0.02), ranked[0].TimeWeight, 1e-12)
	require.Equal(t, float32(0.95), ranked[1].OriginalScore)
}

func TestFutureWindowsAreNotBoosted(t *testing.T) {
	r := NewReranker(DefaultTimeDecayConfig())
	ranked := r.Rerank([]milvus.SearchResult{hit("future", 0.5, -2*time.Hour)}, now)
	require.Equal(t, 1.0, ranked[0].TimeWeight)
}

func TestSegmentWeights(t *testing.T) {
	r := NewReranker(SegmentConfig())
	ranked := r.Rerank([]milvus.SearchResult{
		hit("a", 1, 2*time.Hour),
		hit("b", 1, 12*time.Hour),
		hit("c", 1, 48*time.Hour),
	}, now)

	require.Equal(t, []float64{1.0, 0.7, 0.4}, []float64{ranked[0].TimeWeight, ranked[1].TimeWeight, ranked[2].TimeWeight})
}

func TestTopNAndFilter(t *testing.T) {
	r := NewReranker(SegmentConfig())
	hits := []milvus.SearchResult{hit("a", 0.9, 0), hit("b", 0.8, 0), hit("c", 0.1, 0)}

	require.Len(t, r.TopN(hits, now, 2), 2)
	require.Len(t, r.TopN(hits, now, 0), 3)
	require.Len(t, FilterByMinScore(r.Rerank(hits, now), 0.5), 2)
}
