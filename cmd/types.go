package main

import (
	"time"

	"github.com/Yoosu-L/llmschedbench/internal/stats"
	"github.com/Yoosu-L/llmschedbench/internal/workload"
)

// Benchmark is the resolved configuration of one run: flags, config file and
// SCHEDBENCH_* environment variables merged by viper.
type Benchmark struct {
	BaseURL     string        `mapstructure:"base-url"`
	ApiKey      string        `mapstructure:"api-key"`
	ModelName   string        `mapstructure:"model"`
	Tokenizer   string        `mapstructure:"tokenizer"`
	Concurrency int           `mapstructure:"concurrency"`
	Timeout     time.Duration `mapstructure:"timeout"`

	Dataset        string  `mapstructure:"dataset"`
	NumRequests    int     `mapstructure:"num-requests"`
	CorpusLimit    int     `mapstructure:"corpus-limit"`
	Seed           int64   `mapstructure:"seed"`
	PrioritySource string  `mapstructure:"priority-source"`
	NoiseStdDev    float64 `mapstructure:"noise-std-dev"`
	NoiseFloor     int     `mapstructure:"noise-floor"`
	NoiseCeiling   int     `mapstructure:"noise-ceiling"`

	workload.Bounds `mapstructure:",squash"`

	SchedulingPolicy string `mapstructure:"scheduling-policy"`
	Reverse          bool   `mapstructure:"reverse"`

	N           int     `mapstructure:"n"`
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top-p"`
	IgnoreEOS   bool    `mapstructure:"ignore-eos"`

	NumItersWarmup int `mapstructure:"num-iters-warmup"`
	NumIters       int `mapstructure:"num-iters"`

	OutputJSON string `mapstructure:"output-json"`
	ProfileDir string `mapstructure:"profile-result-dir"`
	Format     string `mapstructure:"format"`
	Progress   bool   `mapstructure:"progress"`
	DryRun     bool   `mapstructure:"dry-run"`
}

type BenchmarkResult struct {
	Mode           string                  `json:"mode" yaml:"mode"`
	ModelName      string                  `json:"model_name" yaml:"model-name"`
	Policy         string                  `json:"scheduling_policy" yaml:"scheduling-policy"`
	PrioritySource string                  `json:"priority_source" yaml:"priority-source"`
	NumRequests    int                     `json:"num_requests" yaml:"num-requests"`
	Latency        *stats.LatencyReport    `json:"latency,omitempty" yaml:"latency,omitempty"`
	Throughput     *stats.ThroughputReport `json:"throughput,omitempty" yaml:"throughput,omitempty"`
	// OutputTokensPerSecond is not part of the persisted throughput report.
	OutputTokensPerSecond float64 `json:"output_tokens_per_second,omitempty" yaml:"output-tokens-per-second,omitempty"`
	OutputJSON            string  `json:"output_json,omitempty" yaml:"output-json,omitempty"`
}
