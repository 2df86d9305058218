package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yoosu-L/llmschedbench/internal/api"
	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
	"github.com/Yoosu-L/llmschedbench/internal/stats"
	"github.com/Yoosu-L/llmschedbench/internal/workload"
)

// writeCorpus writes n entries whose prompts have i+4 words and whose
// output lengths are 10+i tokens.
func writeCorpus(t *testing.T, n int, outputTokens func(i int) int) string {
	t.Helper()
	entries := make([]map[string]any, n)
	for i := range entries {
		words := make([]string, i+4)
		for j := range words {
			words[j] = fmt.Sprintf("w%d", j)
		}
		entries[i] = map[string]any{
			"input":         strings.Join(words, " "),
			"output_tokens": outputTokens(i),
		}
	}
	data, err := json.Marshal(entries)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "corpus.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func validOutput(i int) int { return 10 + i }

// stubEngine routes runs to fake and counts connection attempts.
func stubEngine(t *testing.T, fake *api.FakeBackend) *int {
	t.Helper()
	connects := 0
	orig := newEngine
	newEngine = func(_ context.Context, _ *Benchmark, _ io.Writer) (*engine, error) {
		connects++
		return &engine{backend: fake, tokenizer: api.WordTokenizer{}, model: "fake-model", clock: fake.Clock}, nil
	}
	t.Cleanup(func() { newEngine = orig })
	return &connects
}

func testBenchmark(dataset string) *Benchmark {
	return &Benchmark{
		Tokenizer:        "words",
		Dataset:          dataset,
		NumRequests:      5,
		SchedulingPolicy: "priority",
		PrioritySource:   "oracle",
		NoiseFloor:       workload.DefaultNoiseFloor,
		NoiseCeiling:     workload.DefaultNoiseCeiling,
		Bounds:           workload.DefaultBounds(),
		N:                1,
		Temperature:      1,
		TopP:             1,
		IgnoreEOS:        true,
		NumItersWarmup:   2,
		NumIters:         3,
		Format:           "text",
	}
}

func TestRunLatency_WritesReport(t *testing.T) {
	fake := &api.FakeBackend{Clock: api.NewManualClock(time.Unix(0, 0)), Delay: 2 * time.Second}
	stubEngine(t, fake)

	b := testBenchmark(writeCorpus(t, 20, validOutput))
	b.OutputJSON = filepath.Join(t.TempDir(), "latency.json")

	result, err := b.runLatency(context.Background(), io.Discard)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "fake-model", result.ModelName)
	assert.Equal(t, 5, result.NumRequests)
	assert.Equal(t, b.OutputJSON, result.OutputJSON)

	require.Len(t, fake.Calls, 5)
	for _, call := range fake.Calls {
		assert.Len(t, call.Prompts, 5)
		assert.Len(t, call.Priorities, 5)
	}

	data, err := os.ReadFile(b.OutputJSON)
	require.NoError(t, err)
	var report stats.LatencyReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.InDelta(t, 2.0, report.AvgLatency, 1e-9)
	assert.Equal(t, []float64{2, 2, 2}, report.Latencies)
	assert.InDelta(t, 2.0, report.Percentiles["50"], 1e-9)
	assert.Len(t, report.Percentiles, len(stats.Percentiles))
}

func TestRunLatency_BackendFailureWritesNothing(t *testing.T) {
	fake := &api.FakeBackend{Clock: api.NewManualClock(time.Unix(0, 0)), Delay: time.Second, FailOnCall: 3}
	stubEngine(t, fake)

	b := testBenchmark(writeCorpus(t, 20, validOutput))
	b.NumItersWarmup = 1
	b.OutputJSON = filepath.Join(t.TempDir(), "latency.json")

	result, err := b.runLatency(context.Background(), io.Discard)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, errdefs.ErrBackend)
	assert.Contains(t, err.Error(), "iteration 2")
	assert.Equal(t, 1, exitCode(err))

	_, statErr := os.Stat(b.OutputJSON)
	assert.True(t, os.IsNotExist(statErr))
}

func TestRun_EmptyWorkloadSendsNothing(t *testing.T) {
	fake := &api.FakeBackend{Clock: api.NewManualClock(time.Unix(0, 0))}
	stubEngine(t, fake)

	b := testBenchmark(writeCorpus(t, 10, func(int) int { return 3 }))

	_, err := b.runThroughput(context.Background(), io.Discard)
	require.Error(t, err)
	assert.ErrorIs(t, err, errdefs.ErrWorkload)
	assert.Empty(t, fake.Calls)
}

func TestRun_BadConfigurationNeverConnects(t *testing.T) {
	fake := &api.FakeBackend{Clock: api.NewManualClock(time.Unix(0, 0))}
	connects := stubEngine(t, fake)
	dataset := writeCorpus(t, 10, validOutput)

	cases := map[string]func(b *Benchmark){
		"unknown policy":          func(b *Benchmark) { b.SchedulingPolicy = "lottery" },
		"reverse without rr":      func(b *Benchmark) { b.Reverse = true },
		"unknown priority source": func(b *Benchmark) { b.PrioritySource = "psychic" },
		"no dataset":              func(b *Benchmark) { b.Dataset = "" },
		"zero warm-up":            func(b *Benchmark) { b.NumItersWarmup = 0 },
		"zero iterations":         func(b *Benchmark) { b.NumIters = 0 },
		"unknown tokenizer":       func(b *Benchmark) { b.Tokenizer = "bytes" },
		"unknown format":          func(b *Benchmark) { b.Format = "xml" },
		"missing output dir":      func(b *Benchmark) { b.OutputJSON = filepath.Join(t.TempDir(), "nope", "out.json") },
		"inverted bounds":         func(b *Benchmark) { b.MaxInputLen = 1 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			b := testBenchmark(dataset)
			mutate(b)
			_, err := b.runLatency(context.Background(), io.Discard)
			require.Error(t, err)
			assert.ErrorIs(t, err, errdefs.ErrConfiguration)
			assert.Equal(t, 2, exitCode(err))
		})
	}
	assert.Zero(t, *connects)
	assert.Empty(t, fake.Calls)
}

func TestRunThroughput_RatesFromWorkload(t *testing.T) {
	fake := &api.FakeBackend{Clock: api.NewManualClock(time.Unix(0, 0)), Delay: 10 * time.Second}
	stubEngine(t, fake)

	b := testBenchmark(writeCorpus(t, 20, validOutput))
	b.SchedulingPolicy = "fcfs"
	b.OutputJSON = filepath.Join(t.TempDir(), "throughput.json")

	result, err := b.runThroughput(context.Background(), io.Discard)
	require.NoError(t, err)
	require.NotNil(t, result.Throughput)

	require.Len(t, fake.Calls, 1)
	assert.Nil(t, fake.Calls[0].Priorities)

	report := result.Throughput
	assert.Equal(t, 5, report.NumRequests)
	assert.InDelta(t, 10.0, report.ElapsedTime, 1e-9)
	assert.InDelta(t, 0.5, report.RequestsPerSecond, 1e-9)
	assert.InDelta(t, float64(report.TotalNumTokens)/10, report.TokensPerSecond, 1e-9)
	assert.Greater(t, result.OutputTokensPerSecond, 0.0)

	data, err := os.ReadFile(b.OutputJSON)
	require.NoError(t, err)
	var persisted stats.ThroughputReport
	require.NoError(t, json.Unmarshal(data, &persisted))
	assert.Equal(t, *report, persisted)
}

func TestRunLatency_DryRunSendsNothing(t *testing.T) {
	fake := &api.FakeBackend{Clock: api.NewManualClock(time.Unix(0, 0))}
	stubEngine(t, fake)

	b := testBenchmark(writeCorpus(t, 20, validOutput))
	b.DryRun = true
	b.ApiKey = "secret"

	var out bytes.Buffer
	result, err := b.runLatency(context.Background(), &out)
	require.NoError(t, err)
	assert.Nil(t, result)
	assert.Empty(t, fake.Calls)
	assert.Contains(t, out.String(), "5 requests")
	assert.NotContains(t, out.String(), "secret")
}

func TestBenchmarkResult_Print(t *testing.T) {
	report, err := stats.NewLatencyReport([]float64{1, 2, 3})
	require.NoError(t, err)
	result := &BenchmarkResult{Mode: modeLatency, ModelName: "m", Policy: "priority", PrioritySource: "oracle", NumRequests: 3, Latency: &report}

	var text bytes.Buffer
	require.NoError(t, result.Print(&text, "text"))
	assert.Contains(t, text.String(), "Avg latency: 2 seconds")
	assert.Contains(t, text.String(), "50% percentile latency: 2 seconds")

	var js bytes.Buffer
	require.NoError(t, result.Print(&js, "json"))
	assert.Contains(t, js.String(), `"avg_latency": 2`)

	var ym bytes.Buffer
	require.NoError(t, result.Print(&ym, "yaml"))
	assert.Contains(t, ym.String(), "avg-latency: 2")
}
