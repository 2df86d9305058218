package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/k0kubun/pp"
	"github.com/sirupsen/logrus"

	"github.com/Yoosu-L/llmschedbench/internal/api"
	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
	"github.com/Yoosu-L/llmschedbench/internal/policy"
	"github.com/Yoosu-L/llmschedbench/internal/runner"
	"github.com/Yoosu-L/llmschedbench/internal/stats"
	"github.com/Yoosu-L/llmschedbench/internal/workload"
)

const (
	modeLatency    = "latency"
	modeThroughput = "throughput"
)

// engine is what a run needs from the serving side.
type engine struct {
	backend   api.Backend
	tokenizer api.Tokenizer
	model     string
	clock     runner.Clock
}

// newEngine connects to the serving engine. Tests replace it.
var newEngine = func(ctx context.Context, b *Benchmark, progress io.Writer) (*engine, error) {
	backend, err := api.NewOpenAIBackend(ctx, api.OpenAIConfig{
		BaseURL:     b.BaseURL,
		APIKey:      b.ApiKey,
		Model:       b.ModelName,
		Concurrency: b.Concurrency,
		Timeout:     b.Timeout,
		Progress:    progress,
	})
	if err != nil {
		return nil, &errdefs.BackendError{Phase: errdefs.PhaseSubmit, Err: err}
	}

	e := &engine{backend: backend, model: backend.Model()}
	switch b.Tokenizer {
	case "words":
		e.tokenizer = api.WordTokenizer{}
	default:
		e.tokenizer = api.NewHTTPTokenizer(b.BaseURL, backend.Model(), b.Timeout)
	}
	return e, nil
}

// setup is everything resolved before the first request is sent.
type setup struct {
	policy   policy.Policy
	source   workload.PrioritySource
	engine   *engine
	workload workload.Workload
	batch    runner.Batch
}

// validate rejects bad configuration before the corpus or the backend is touched.
func (b *Benchmark) validate(mode string) (policy.Policy, workload.PrioritySource, error) {
	p, err := policy.Parse(b.SchedulingPolicy, b.Reverse)
	if err != nil {
		return policy.Policy{}, workload.PrioritySource{}, err
	}

	profile := workload.NoiseProfile{StdDev: b.NoiseStdDev, Floor: b.NoiseFloor, Ceiling: b.NoiseCeiling}
	source, err := workload.ParsePrioritySource(b.PrioritySource, profile)
	if err != nil {
		return policy.Policy{}, workload.PrioritySource{}, fmt.Errorf("%w: %v", errdefs.ErrConfiguration, err)
	}

	switch {
	case b.Dataset == "":
		err = errdefs.Configf("dataset path is required")
	case b.NumRequests <= 0:
		err = errdefs.Configf("num-requests must be positive, got %d", b.NumRequests)
	case b.N <= 0:
		err = errdefs.Configf("n must be positive, got %d", b.N)
	case b.Concurrency < 0:
		err = errdefs.Configf("concurrency must be non-negative, got %d", b.Concurrency)
	case b.Tokenizer != "server" && b.Tokenizer != "words":
		err = errdefs.Configf("unknown tokenizer %q (want server or words)", b.Tokenizer)
	case b.Format != "text" && b.Format != "json" && b.Format != "yaml":
		err = errdefs.Configf("unknown format %q (want text, json or yaml)", b.Format)
	case mode == modeLatency && b.NumItersWarmup < 1:
		err = errdefs.Configf("num-iters-warmup must be at least 1, got %d", b.NumItersWarmup)
	case mode == modeLatency && b.NumIters < 1:
		err = errdefs.Configf("num-iters must be at least 1, got %d", b.NumIters)
	}
	if err != nil {
		return policy.Policy{}, workload.PrioritySource{}, err
	}
	if err := b.Bounds.Validate(); err != nil {
		return policy.Policy{}, workload.PrioritySource{}, err
	}
	if err := checkOutputDir(b.OutputJSON); err != nil {
		return policy.Policy{}, workload.PrioritySource{}, err
	}
	return p, source, nil
}

// checkOutputDir fails early when the report could never be written.
func checkOutputDir(path string) error {
	if path == "" {
		return nil
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	if err != nil {
		return errdefs.Configf("output directory %s: %v", dir, err)
	}
	if !info.IsDir() {
		return errdefs.Configf("output directory %s is not a directory", dir)
	}
	return nil
}

func (b *Benchmark) prepare(ctx context.Context, mode string, progress io.Writer) (*setup, error) {
	p, source, err := b.validate(mode)
	if err != nil {
		return nil, err
	}

	corpus, err := workload.LoadCorpus(b.Dataset)
	if err != nil {
		return nil, err
	}

	e, err := newEngine(ctx, b, progress)
	if err != nil {
		return nil, err
	}

	w, err := workload.Build(ctx, corpus, workload.Options{
		MaxRequests: b.NumRequests,
		CorpusLimit: b.CorpusLimit,
		Bounds:      b.Bounds,
		Source:      source,
		Seed:        b.Seed,
	}, e.tokenizer)
	if err != nil {
		return nil, err
	}
	logrus.Infof("Built workload of %d requests (%d input+output tokens) with %s priorities",
		w.Len(), w.TotalTokens(), source)

	dispatch, err := policy.Resolve(p, w.Len(), w.Priorities())
	if err != nil {
		return nil, err
	}
	batch, err := runner.NewBatch(w, dispatch, api.SamplingParams{
		N:           b.N,
		Temperature: b.Temperature,
		TopP:        b.TopP,
		IgnoreEOS:   b.IgnoreEOS,
	})
	if err != nil {
		return nil, err
	}

	return &setup{policy: p, source: source, engine: e, workload: w, batch: batch}, nil
}

func (b *Benchmark) newResult(mode string, s *setup) BenchmarkResult {
	return BenchmarkResult{
		Mode:           mode,
		ModelName:      s.engine.model,
		Policy:         s.policy.String(),
		PrioritySource: s.source.String(),
		NumRequests:    s.workload.Len(),
	}
}

// dryRun prints the resolved configuration and workload without sending any
// request.
func (b *Benchmark) dryRun(w io.Writer, s *setup) {
	shown := *b
	if shown.ApiKey != "" {
		shown.ApiKey = "****"
	}
	pp.Fprintln(w, shown)
	fmt.Fprintf(w, "%d requests, %d input+output tokens, %d output tokens, priorities passed: %v\n",
		s.workload.Len(), s.workload.TotalTokens(), s.workload.TotalOutputTokens(), s.batch.Priorities != nil)
}

func (b *Benchmark) progressWriter() io.Writer {
	if b.Progress {
		return os.Stderr
	}
	return nil
}

// runLatency times num-iters submissions of the whole batch after
// num-iters-warmup discarded ones and persists the report.
func (b *Benchmark) runLatency(ctx context.Context, out io.Writer) (*BenchmarkResult, error) {
	s, err := b.prepare(ctx, modeLatency, nil)
	if err != nil {
		return nil, err
	}
	if b.DryRun {
		b.dryRun(out, s)
		return nil, nil
	}

	r := &runner.Runner{
		Backend:    s.engine.backend,
		Clock:      s.engine.clock,
		Progress:   b.progressWriter(),
		ProfileDir: b.ProfileDir,
	}
	latencies, err := r.RunLatency(ctx, s.batch, runner.LatencyOptions{
		Warmup:     b.NumItersWarmup,
		Iterations: b.NumIters,
	})
	if err != nil {
		return nil, err
	}

	report, err := stats.NewLatencyReport(latencies)
	if err != nil {
		return nil, err
	}
	result := b.newResult(modeLatency, s)
	result.Latency = &report
	if err := b.persist(&result, report); err != nil {
		return nil, err
	}
	return &result, nil
}

// runThroughput submits the whole workload once and persists the rates.
func (b *Benchmark) runThroughput(ctx context.Context, out io.Writer) (*BenchmarkResult, error) {
	s, err := b.prepare(ctx, modeThroughput, b.progressWriter())
	if err != nil {
		return nil, err
	}
	if b.DryRun {
		b.dryRun(out, s)
		return nil, nil
	}

	r := &runner.Runner{Backend: s.engine.backend, Clock: s.engine.clock}
	m, err := r.RunThroughput(ctx, s.workload, s.batch)
	if err != nil {
		return nil, err
	}

	report, summary, err := stats.NewThroughputReport(m.NumRequests, m.Elapsed, m.TotalTokens, m.OutputTokens)
	if err != nil {
		return nil, err
	}
	result := b.newResult(modeThroughput, s)
	result.Throughput = &report
	result.OutputTokensPerSecond = summary.OutputTokensPerSecond
	if err := b.persist(&result, report); err != nil {
		return nil, err
	}
	return &result, nil
}

func (b *Benchmark) persist(result *BenchmarkResult, report any) error {
	if b.OutputJSON == "" {
		return nil
	}
	if err := stats.WriteJSON(b.OutputJSON, report); err != nil {
		return err
	}
	result.OutputJSON = b.OutputJSON
	return nil
}

// exitCode maps a failed run to a process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errdefs.ErrConfiguration):
		return 2
	default:
		return 1
	}
}
