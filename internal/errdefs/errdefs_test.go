package errdefs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindsMatchThroughWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	backend := fmt.Errorf("latency run: %w", &BackendError{Phase: PhaseMeasure, Iteration: 2, Err: cause})

	assert.ErrorIs(t, backend, ErrBackend)
	assert.ErrorIs(t, backend, cause)
	assert.NotErrorIs(t, backend, ErrWorkload)
	assert.Contains(t, backend.Error(), "backend failure at iteration 2")

	var be *BackendError
	assert.True(t, errors.As(backend, &be))
	assert.Equal(t, 2, be.Iteration)

	wl := &WorkloadError{Scanned: 100, Accepted: 0}
	assert.ErrorIs(t, wl, ErrWorkload)
	assert.Contains(t, wl.Error(), "scanned 100")

	assert.ErrorIs(t, Configf("unknown policy %q", "lifo"), ErrConfiguration)
	assert.ErrorIs(t, Statisticsf("no latencies"), ErrStatistics)
}

func TestBackendErrorMessages(t *testing.T) {
	cause := errors.New("boom")
	assert.Equal(t, "backend failure at warm-up iteration 1: boom",
		(&BackendError{Phase: PhaseWarmup, Iteration: 1, Err: cause}).Error())
	assert.Equal(t, "backend failure during submit: boom",
		(&BackendError{Phase: PhaseSubmit, Err: cause}).Error())
}
