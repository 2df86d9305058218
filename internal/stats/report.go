package stats

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// LatencyReport is the persisted result of a latency run.
type LatencyReport struct {
	AvgLatency  float64            `json:"avg_latency" yaml:"avg-latency"`
	Latencies   []float64          `json:"latencies" yaml:"latencies"`
	Percentiles map[string]float64 `json:"percentiles" yaml:"percentiles"`
}

// NewLatencyReport summarizes latencies into a report.
func NewLatencyReport(latencies []float64) (LatencyReport, error) {
	summary, err := Summarize(latencies)
	if err != nil {
		return LatencyReport{}, err
	}
	report := LatencyReport{
		AvgLatency:  summary.Mean,
		Latencies:   append([]float64(nil), latencies...),
		Percentiles: make(map[string]float64, len(summary.Percentiles)),
	}
	for p, v := range summary.Percentiles {
		report.Percentiles[strconv.Itoa(p)] = v
	}
	return report, nil
}

// ThroughputReport is the persisted result of a throughput run.
type ThroughputReport struct {
	ElapsedTime       float64 `json:"elapsed_time" yaml:"elapsed-time"`
	NumRequests       int     `json:"num_requests" yaml:"num-requests"`
	TotalNumTokens    int     `json:"total_num_tokens" yaml:"total-num-tokens"`
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests-per-second"`
	TokensPerSecond   float64 `json:"tokens_per_second" yaml:"tokens-per-second"`
}

// NewThroughputReport builds the report and the full rate summary, which
// also carries output tokens per second.
func NewThroughputReport(count int, elapsed time.Duration, totalTokens, outputTokens int) (ThroughputReport, ThroughputSummary, error) {
	summary, err := SummarizeThroughput(count, elapsed, totalTokens, outputTokens)
	if err != nil {
		return ThroughputReport{}, ThroughputSummary{}, err
	}
	return ThroughputReport{
		ElapsedTime:       elapsed.Seconds(),
		NumRequests:       count,
		TotalNumTokens:    totalTokens,
		RequestsPerSecond: summary.RequestsPerSecond,
		TokensPerSecond:   summary.TokensPerSecond,
	}, summary, nil
}

// WriteJSON writes v as indented JSON to path. The document is rendered in
// full before the file is touched and lands through a rename, so readers
// never see a partial report.
func WriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("error marshalling JSON: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating result file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("error writing results to file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("error writing results to file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("error writing results to file: %w", err)
	}
	return nil
}
