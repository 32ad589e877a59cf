// Package rerank reorders analog search hits so that recent windows win ties.
package rerank

import (
	"math"
	"sort"
	"time"

	"github.com/tunogya/sensorcast/pkg/store/milvus"
)

// TimeDecayConfig holds configuration for time decay reranking
type TimeDecayConfig struct {
	Lambda float64 // Exponential decay rate per hour (higher = faster decay)
	// Segment weights for different age ranges (used if UseSegments is true)
	UseSegments  bool
	RecentHours  float64 // Hours considered "recent"
	MediumHours  float64 // Hours considered "medium"
	RecentWeight float64 // Weight for recent (<= RecentHours)
	MediumWeight float64 // Weight for medium (RecentHours < x <= MediumHours)
	OldWeight    float64 // Weight for old (> MediumHours)
}

// DefaultTimeDecayConfig halves a hit's weight roughly every 35 hours
func DefaultTimeDecayConfig() TimeDecayConfig {
	return TimeDecayConfig{
		Lambda:       0.02,
		RecentHours:  6,
		MediumHours:  24,
		RecentWeight: 1.0,
		MediumWeight: 0.7,
		OldWeight:    0.4,
	}
}

// SegmentConfig returns a configuration using segment-based weights
func SegmentConfig() TimeDecayConfig {
	cfg := DefaultTimeDecayConfig()
	cfg.UseSegments = true
	return cfg
}

// RankedResult extends SearchResult with reranked score
type RankedResult struct {
	milvus.SearchResult
	OriginalScore float32
	TimeWeight    float64
	FinalScore    float64
}

// Reranker performs time-based reranking of search results
type Reranker struct {
	config TimeDecayConfig
}

// NewReranker creates a new reranker with the given configuration
func NewReranker(config TimeDecayConfig) *Reranker {
	return &Reranker{config: config}
}

// Rerank reranks search results based on time decay
func (r *Reranker) Rerank(results []milvus.SearchResult, now time.Time) []RankedResult {
	ranked := make([]RankedResult, len(results))

	for i, result := range results {
		ageHours := math.Max(0, now.Sub(result.TEnd).Hours())

		var weight float64
		if r.config.UseSegments {
			weight = r.segmentWeight(ageHours)
		} else {
			weight = math.Exp(-r.config.Lambda * ageHours)
		}

		ranked[i] = RankedResult{
			SearchResult:  result,
			OriginalScore: result.Score,
			TimeWeight:    weight,
			FinalScore:    float64(result.Score) * weight,
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].FinalScore > ranked[j].FinalScore
	})

	return ranked
}

func (r *Reranker) segmentWeight(ageHours float64) float64 {
	switch {
	case ageHours <= r.config.RecentHours:
		return r.config.RecentWeight
	case ageHours <= r.config.MediumHours:
		return r.config.MediumWeight
	default:
		return r.config.OldWeight
	}
}

// TopN returns the top N results after reranking
func (r *Reranker) TopN(results []milvus.SearchResult, now time.Time, n int) []RankedResult {
	ranked := r.Rerank(results, now)
	if n <= 0 || len(ranked) <= n {
		return ranked
	}
	return ranked[:n]
}

// FilterByMinScore filters results by minimum final score
func FilterByMinScore(results []RankedResult, minScore float64) []RankedResult {
	var filtered []RankedResult
	for _, r := range results {
		if r.FinalScore >= minScore {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
