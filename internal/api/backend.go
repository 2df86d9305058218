package api

import (
	"context"
	"fmt"
	"time"
)

// SamplingParams mirrors the per-request sampling options understood by the
// serving engine.
type SamplingParams struct {
	N           int     `json:"n" yaml:"n"`
	Temperature float64 `json:"temperature" yaml:"temperature"`
	TopP        float64 `json:"top_p" yaml:"top-p"`
	IgnoreEOS   bool    `json:"ignore_eos" yaml:"ignore-eos"`
	MaxTokens   int     `json:"max_tokens" yaml:"max-tokens"`
}

// Completion is what the harness keeps from a finished request.
type Completion struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Backend submits a whole batch and blocks until every request has finished.
// A nil priorities slice means priorities are not sent at all; otherwise it
// is aligned positionally with prompts. Smaller values are scheduled sooner.
type Backend interface {
	Generate(ctx context.Context, prompts []string, params []SamplingParams, priorities []int) ([]Completion, error)
}

func checkAligned(prompts []string, params []SamplingParams, priorities []int) error {
	if len(params) != len(prompts) {
		return fmt.Errorf("got %d sampling params for %d prompts", len(params), len(prompts))
	}
	if priorities != nil && len(priorities) != len(prompts) {
		return fmt.Errorf("got %d priorities for %d prompts", len(priorities), len(prompts))
	}
	return nil
}
