// Package errdefs defines the error kinds reported by the benchmark harness.
//
// Every error surfaced to the caller matches exactly one of the kind sentinels
// through errors.Is, so callers can branch on the kind without string matching.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration covers unknown policy names, misaligned priorities and
	// non-positive iteration counts. No run is attempted.
	ErrConfiguration = errors.New("configuration error")
	// ErrWorkload is reported when filtering leaves no usable request.
	ErrWorkload = errors.New("workload error")
	// ErrBackend is reported when a backend or tokenizer call fails.
	ErrBackend = errors.New("backend error")
	// ErrStatistics is reported when a reduction has no samples.
	ErrStatistics = errors.New("insufficient-samples")
)

// Configf returns a configuration error with a formatted message.
func Configf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Statisticsf returns a statistics error with a formatted message.
func Statisticsf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrStatistics, fmt.Sprintf(format, args...))
}

// WorkloadError reports how many corpus entries were scanned before the
// corpus ran out and how many of them were accepted.
type WorkloadError struct {
	Scanned  int
	Accepted int
	Reason   string
}

func (e *WorkloadError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("workload error: %s (scanned %d, accepted %d)", e.Reason, e.Scanned, e.Accepted)
	}
	return fmt.Sprintf("workload error: no valid requests (scanned %d, accepted %d)", e.Scanned, e.Accepted)
}

func (e *WorkloadError) Is(target error) bool { return target == ErrWorkload }

// Phase names the runner stage a backend failure happened in.
type Phase string

const (
	PhaseTokenize Phase = "tokenize"
	PhaseWarmup   Phase = "warm-up"
	PhaseMeasure  Phase = "measure"
	PhaseSubmit   Phase = "submit"
	PhaseProfile  Phase = "profile"
)

// BackendError wraps a failed backend call. Iteration is 1-based within its
// phase and zero when the phase has no iterations.
type BackendError struct {
	Phase     Phase
	Iteration int
	Err       error
}

func (e *BackendError) Error() string {
	switch {
	case e.Phase == PhaseMeasure:
		return fmt.Sprintf("backend failure at iteration %d: %v", e.Iteration, e.Err)
	case e.Iteration > 0:
		return fmt.Sprintf("backend failure at %s iteration %d: %v", e.Phase, e.Iteration, e.Err)
	default:
		return fmt.Sprintf("backend failure during %s: %v", e.Phase, e.Err)
	}
}

func (e *BackendError) Unwrap() error { return e.Err }

func (e *BackendError) Is(target error) bool { return target == ErrBackend }
