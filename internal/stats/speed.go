package stats

import (
	"math"
	"time"

	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
)

// ThroughputSummary is the rate view of one sustained submission.
type ThroughputSummary struct {
	RequestsPerSecond     float64 `json:"requests_per_second" yaml:"requests-per-second"`
	TokensPerSecond       float64 `json:"tokens_per_second" yaml:"tokens-per-second"`
	OutputTokensPerSecond float64 `json:"output_tokens_per_second" yaml:"output-tokens-per-second"`
}

// SummarizeThroughput divides workload totals by the elapsed wall-clock time.
func SummarizeThroughput(count int, elapsed time.Duration, totalTokens, outputTokens int) (ThroughputSummary, error) {
	if count <= 0 {
		return ThroughputSummary{}, errdefs.Statisticsf("no requests completed")
	}
	seconds := elapsed.Seconds()
	if seconds <= 0 {
		return ThroughputSummary{}, errdefs.Statisticsf("elapsed time must be positive, got %v", elapsed)
	}
	return ThroughputSummary{
		RequestsPerSecond:     float64(count) / seconds,
		TokensPerSecond:       float64(totalTokens) / seconds,
		OutputTokensPerSecond: float64(outputTokens) / seconds,
	}, nil
}

// RoundToTwoDecimals is used for console output only; reports keep full
// precision.
func RoundToTwoDecimals(f float64) float64 {
	return math.Round(f*100) / 100
}
