// Package stats reduces raw benchmark timings to the persisted reports.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
)

// Percentiles are the marks every latency report carries.
var Percentiles = []int{10, 25, 50, 75, 90, 99}

// LatencySummary is the reduction of per-iteration latencies in seconds.
type LatencySummary struct {
	Mean        float64
	Percentiles map[int]float64
}

// Summarize computes the mean and the fixed percentiles of latencies.
func Summarize(latencies []float64) (LatencySummary, error) {
	if len(latencies) == 0 {
		return LatencySummary{}, errdefs.Statisticsf("no latencies recorded")
	}
	for _, l := range latencies {
		if math.IsNaN(l) || math.IsInf(l, 0) {
			return LatencySummary{}, errdefs.Statisticsf("latency %v is not finite", l)
		}
	}

	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	summary := LatencySummary{
		Mean:        stat.Mean(latencies, nil),
		Percentiles: make(map[int]float64, len(Percentiles)),
	}
	for _, p := range Percentiles {
		summary.Percentiles[p] = Percentile(sorted, float64(p))
	}
	return summary, nil
}

// Percentile returns the p-th percentile of sorted data, interpolating
// linearly between the two closest order statistics. sorted must be
// non-empty and ascending.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	rank := p / 100.0 * float64(n-1)
	lowerIdx := int(math.Floor(rank))
	upperIdx := int(math.Ceil(rank))

	if upperIdx >= n {
		return sorted[n-1]
	}
	if lowerIdx == upperIdx {
		return sorted[lowerIdx]
	}
	lowerVal, upperVal := sorted[lowerIdx], sorted[upperIdx]
	return lowerVal + (upperVal-lowerVal)*(rank-float64(lowerIdx))
}
