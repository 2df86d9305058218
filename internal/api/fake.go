package api

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// FakeCall records the arguments of one Generate call.
type FakeCall struct {
	Prompts    []string
	Params     []SamplingParams
	Priorities []int
}

// FakeBackend is a deterministic Backend: every call advances Clock by Delay
// and echoes MaxTokens as the completion length.
type FakeBackend struct {
	Clock *ManualClock
	Delay time.Duration
	// FailOnCall makes the n-th call (1-based) return Err. Zero never fails.
	FailOnCall int
	Err        error

	Calls []FakeCall
}

func (f *FakeBackend) Generate(_ context.Context, prompts []string, params []SamplingParams, priorities []int) ([]Completion, error) {
	if err := checkAligned(prompts, params, priorities); err != nil {
		return nil, err
	}

	call := FakeCall{
		Prompts: append([]string(nil), prompts...),
		Params:  append([]SamplingParams(nil), params...),
	}
	if priorities != nil {
		call.Priorities = append([]int{}, priorities...)
	}
	f.Calls = append(f.Calls, call)

	if f.FailOnCall > 0 && len(f.Calls) == f.FailOnCall {
		if f.Err != nil {
			return nil, f.Err
		}
		return nil, errors.New("fake backend failure")
	}

	if f.Clock != nil {
		f.Clock.Advance(f.Delay)
	}

	completions := make([]Completion, len(prompts))
	for i, p := range prompts {
		completions[i] = Completion{
			PromptTokens:     len(strings.Fields(p)),
			CompletionTokens: params[i].MaxTokens,
			Latency:          f.Delay,
		}
	}
	return completions, nil
}
