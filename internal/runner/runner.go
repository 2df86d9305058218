// Package runner drives the backend through the latency and throughput
// protocols and records wall-clock timings.
//
// A latency run moves Idle -> Warmup -> Measuring -> Done; a throughput run
// moves Idle -> Submitting -> AwaitingCompletion -> Done. Any backend failure
// aborts the run and discards every timing taken so far.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"

	"github.com/Yoosu-L/llmschedbench/internal/api"
	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
	"github.com/Yoosu-L/llmschedbench/internal/policy"
	"github.com/Yoosu-L/llmschedbench/internal/workload"
)

// ProfileFile is the name of the CPU profile written under Runner.ProfileDir.
const ProfileFile = "generate.pprof"

// Clock supplies the timestamps that bracket a backend call.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock reads the wall clock.
func SystemClock() Clock { return systemClock{} }

type state string

const (
	stateIdle               state = "idle"
	stateWarmup             state = "warmup"
	stateMeasuring          state = "measuring"
	stateSubmitting         state = "submitting"
	stateAwaitingCompletion state = "awaiting-completion"
	stateDone               state = "done"
)

// Batch is a workload laid out the way the backend consumes it.
type Batch struct {
	Prompts []string
	Params  []api.SamplingParams
	// Priorities is nil when the policy does not use them.
	Priorities []int
}

func (b Batch) Len() int { return len(b.Prompts) }

// NewBatch pairs each request with tmpl, capping generation at the request's
// recorded output length, and attaches the dispatched priorities.
func NewBatch(w workload.Workload, d policy.Dispatch, tmpl api.SamplingParams) (Batch, error) {
	if w.Len() == 0 {
		return Batch{}, errdefs.Configf("workload is empty")
	}
	if d.PassPriorities && len(d.Priorities) != w.Len() {
		return Batch{}, errdefs.Configf("got %d priorities for %d prompts", len(d.Priorities), w.Len())
	}

	b := Batch{
		Prompts: w.Prompts(),
		Params:  make([]api.SamplingParams, w.Len()),
	}
	for i := range b.Params {
		b.Params[i] = tmpl
		b.Params[i].MaxTokens = w.At(i).OutputLen
	}
	if d.PassPriorities {
		b.Priorities = append([]int(nil), d.Priorities...)
	}
	return b, nil
}

// Runner owns the backend handle for the duration of a run.
type Runner struct {
	Backend api.Backend
	// Clock defaults to the wall clock.
	Clock Clock
	// Progress receives iteration progress bars when non-nil.
	Progress io.Writer
	// ProfileDir, when set, adds one untimed iteration under a CPU profile.
	ProfileDir string
}

// LatencyOptions sets the number of discarded and recorded iterations.
type LatencyOptions struct {
	Warmup     int
	Iterations int
}

func (r *Runner) clock() Clock {
	if r.Clock == nil {
		return SystemClock()
	}
	return r.Clock
}

func (r *Runner) transition(mode string, from, to state) {
	logrus.Debugf("%s run: %s -> %s", mode, from, to)
}

func (r *Runner) check(b Batch) error {
	if r.Backend == nil {
		return errdefs.Configf("no backend configured")
	}
	if b.Len() == 0 {
		return errdefs.Configf("batch is empty")
	}
	if len(b.Params) != b.Len() {
		return errdefs.Configf("got %d sampling params for %d prompts", len(b.Params), b.Len())
	}
	if b.Priorities != nil && len(b.Priorities) != b.Len() {
		return errdefs.Configf("got %d priorities for %d prompts", len(b.Priorities), b.Len())
	}
	return nil
}

// runOnce submits the batch and returns how long it took to finish.
func (r *Runner) runOnce(ctx context.Context, b Batch) (time.Duration, error) {
	clock := r.clock()
	start := clock.Now()
	if _, err := r.Backend.Generate(ctx, b.Prompts, b.Params, b.Priorities); err != nil {
		return 0, err
	}
	return clock.Now().Sub(start), nil
}

func (r *Runner) newBar(n int, desc string) *progressbar.ProgressBar {
	if r.Progress == nil {
		return nil
	}
	return progressbar.NewOptions(n,
		progressbar.OptionSetWriter(r.Progress),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionShowCount(),
	)
}

// RunLatency submits the same batch opts.Warmup times without recording and
// then opts.Iterations times recording each duration in seconds.
func (r *Runner) RunLatency(ctx context.Context, b Batch, opts LatencyOptions) ([]float64, error) {
	if opts.Warmup < 1 || opts.Iterations < 1 {
		return nil, errdefs.Configf("warm-up and measured iterations must both be at least 1, got %d and %d", opts.Warmup, opts.Iterations)
	}
	if err := r.check(b); err != nil {
		return nil, err
	}

	r.transition("latency", stateIdle, stateWarmup)
	logrus.Info("Warming up...")
	bar := r.newBar(opts.Warmup, "Warmup iterations")
	for i := 1; i <= opts.Warmup; i++ {
		if _, err := r.runOnce(ctx, b); err != nil {
			return nil, &errdefs.BackendError{Phase: errdefs.PhaseWarmup, Iteration: i, Err: err}
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	r.transition("latency", stateWarmup, stateMeasuring)
	latencies := make([]float64, 0, opts.Iterations)
	bar = r.newBar(opts.Iterations, "Profiling iterations")
	for i := 1; i <= opts.Iterations; i++ {
		elapsed, err := r.runOnce(ctx, b)
		if err != nil {
			return nil, &errdefs.BackendError{Phase: errdefs.PhaseMeasure, Iteration: i, Err: err}
		}
		latencies = append(latencies, elapsed.Seconds())
		logrus.Debugf("Iteration %d of %d: %.4fs", i, opts.Iterations, elapsed.Seconds())
		if bar != nil {
			_ = bar.Add(1)
		}
	}

	if r.ProfileDir != "" {
		if err := r.runProfiled(ctx, b); err != nil {
			return nil, err
		}
	}

	r.transition("latency", stateMeasuring, stateDone)
	return latencies, nil
}

func (r *Runner) runProfiled(ctx context.Context, b Batch) error {
	if err := os.MkdirAll(r.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("creating profile directory: %w", err)
	}
	path := filepath.Join(r.ProfileDir, ProfileFile)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating profile file: %w", err)
	}
	defer f.Close()

	if err := pprof.StartCPUProfile(f); err != nil {
		return fmt.Errorf("starting CPU profile: %w", err)
	}
	_, runErr := r.runOnce(ctx, b)
	pprof.StopCPUProfile()
	if runErr != nil {
		return &errdefs.BackendError{Phase: errdefs.PhaseProfile, Iteration: 1, Err: runErr}
	}
	logrus.Infof("CPU profile written to %s", path)
	return nil
}

// ThroughputMeasurement carries the elapsed time of one sustained submission
// and the workload totals it is divided into.
type ThroughputMeasurement struct {
	Elapsed      time.Duration
	NumRequests  int
	TotalTokens  int
	OutputTokens int
}

// RunThroughput submits the whole batch once. Token totals come from the
// workload, not from what the backend reports back.
func (r *Runner) RunThroughput(ctx context.Context, w workload.Workload, b Batch) (ThroughputMeasurement, error) {
	if err := r.check(b); err != nil {
		return ThroughputMeasurement{}, err
	}
	if b.Len() != w.Len() {
		return ThroughputMeasurement{}, errdefs.Configf("batch has %d prompts but workload has %d requests", b.Len(), w.Len())
	}

	r.transition("throughput", stateIdle, stateSubmitting)
	logrus.Infof("Submitting %d requests", b.Len())
	clock := r.clock()
	start := clock.Now()
	r.transition("throughput", stateSubmitting, stateAwaitingCompletion)
	if _, err := r.Backend.Generate(ctx, b.Prompts, b.Params, b.Priorities); err != nil {
		return ThroughputMeasurement{}, &errdefs.BackendError{Phase: errdefs.PhaseSubmit, Err: err}
	}
	elapsed := clock.Now().Sub(start)
	r.transition("throughput", stateAwaitingCompletion, stateDone)

	return ThroughputMeasurement{
		Elapsed:      elapsed,
		NumRequests:  w.Len(),
		TotalTokens:  w.TotalTokens(),
		OutputTokens: w.TotalOutputTokens(),
	}, nil
}
