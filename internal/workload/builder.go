// Package workload turns a prompt/response corpus into a bounded, shuffled
// and prioritized set of benchmark requests.
package workload

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Yoosu-L/llmschedbench/internal/api"
	"github.com/Yoosu-L/llmschedbench/internal/errdefs"
)

// Bounds are the length limits a request must satisfy to be admitted.
type Bounds struct {
	MinInputLen  int `mapstructure:"min-input-len" yaml:"min-input-len"`
	MinOutputLen int `mapstructure:"min-output-len" yaml:"min-output-len"`
	MaxInputLen  int `mapstructure:"max-input-len" yaml:"max-input-len"`
	MaxTotalLen  int `mapstructure:"max-total-len" yaml:"max-total-len"`
}

// DefaultBounds prunes sequences shorter than 4 tokens and anything that
// would not fit a 2048-token context.
func DefaultBounds() Bounds {
	return Bounds{MinInputLen: 4, MinOutputLen: 4, MaxInputLen: 1024, MaxTotalLen: 2048}
}

func (b Bounds) Validate() error {
	if b.MinInputLen < 0 || b.MinOutputLen < 0 {
		return errdefs.Configf("length minimums must be non-negative, got input %d output %d", b.MinInputLen, b.MinOutputLen)
	}
	if b.MaxInputLen < b.MinInputLen {
		return errdefs.Configf("max input length %d is below min input length %d", b.MaxInputLen, b.MinInputLen)
	}
	if b.MaxTotalLen < b.MinInputLen+b.MinOutputLen {
		return errdefs.Configf("max total length %d cannot fit the minimum request", b.MaxTotalLen)
	}
	return nil
}

// Admits reports whether a request with these lengths is within bounds.
func (b Bounds) Admits(inputLen, outputLen int) bool {
	if inputLen < b.MinInputLen || outputLen < b.MinOutputLen {
		return false
	}
	return inputLen <= b.MaxInputLen && inputLen+outputLen <= b.MaxTotalLen
}

// Request is one prompt of a workload.
type Request struct {
	Prompt    string `json:"prompt"`
	InputLen  int    `json:"input_len"`
	OutputLen int    `json:"output_len"`
	Priority  int    `json:"priority"`
}

// Workload is an ordered, immutable list of requests.
type Workload struct {
	requests []Request
}

// NewWorkload wraps already-measured requests, rejecting any outside bounds.
func NewWorkload(requests []Request, bounds Bounds) (Workload, error) {
	for i, r := range requests {
		if !bounds.Admits(r.InputLen, r.OutputLen) {
			return Workload{}, errdefs.Configf("request %d out of bounds (input %d, output %d)", i, r.InputLen, r.OutputLen)
		}
	}
	return Workload{requests: append([]Request(nil), requests...)}, nil
}

func (w Workload) Len() int { return len(w.requests) }

func (w Workload) At(i int) Request { return w.requests[i] }

// Requests returns a copy of the requests.
func (w Workload) Requests() []Request {
	return append([]Request(nil), w.requests...)
}

func (w Workload) Prompts() []string {
	prompts := make([]string, len(w.requests))
	for i, r := range w.requests {
		prompts[i] = r.Prompt
	}
	return prompts
}

func (w Workload) Priorities() []int {
	priorities := make([]int, len(w.requests))
	for i, r := range w.requests {
		priorities[i] = r.Priority
	}
	return priorities
}

// TotalTokens sums input and output lengths as recorded in the workload.
func (w Workload) TotalTokens() int {
	total := 0
	for _, r := range w.requests {
		total += r.InputLen + r.OutputLen
	}
	return total
}

func (w Workload) TotalOutputTokens() int {
	total := 0
	for _, r := range w.requests {
		total += r.OutputLen
	}
	return total
}

// Options control workload construction.
type Options struct {
	MaxRequests int
	// CorpusLimit keeps only the first N corpus entries before shuffling.
	// Zero keeps the whole corpus.
	CorpusLimit int
	Bounds      Bounds
	Source      PrioritySource
	Seed        int64
}

// Build shuffles corpus under opts.Seed, scans it in that order and keeps
// the first opts.MaxRequests entries within bounds. The tokenizer is only
// used to measure prompt lengths. A short workload is not an error; an empty
// one is.
func Build(ctx context.Context, corpus []Entry, opts Options, tokenizer api.Tokenizer) (Workload, error) {
	if opts.MaxRequests <= 0 {
		return Workload{}, errdefs.Configf("max requests must be positive, got %d", opts.MaxRequests)
	}
	if opts.CorpusLimit < 0 {
		return Workload{}, errdefs.Configf("corpus limit must be non-negative, got %d", opts.CorpusLimit)
	}
	if err := opts.Bounds.Validate(); err != nil {
		return Workload{}, err
	}
	if opts.Source.Kind == SourceInjected {
		if err := opts.Source.Profile.Validate(); err != nil {
			return Workload{}, errdefs.Configf("%v", err)
		}
	}

	entries := corpus
	if opts.CorpusLimit > 0 && opts.CorpusLimit < len(entries) {
		entries = entries[:opts.CorpusLimit]
	}
	shuffled := append([]Entry(nil), entries...)

	rngs := NewPartitionedRNG(opts.Seed)
	rngs.ForSubsystem(SubsystemShuffle).Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	requests := make([]Request, 0, min(opts.MaxRequests, len(shuffled)))
	scanned := 0
	for _, entry := range shuffled {
		if len(requests) == opts.MaxRequests {
			break
		}
		scanned++

		outputLen := entry.OutputTokens
		// Skip tokenization when the output length alone rules the entry out.
		if outputLen < opts.Bounds.MinOutputLen || outputLen > opts.Bounds.MaxTotalLen-opts.Bounds.MinInputLen {
			continue
		}

		ids, err := tokenizer.Encode(ctx, entry.Input)
		if err != nil {
			return Workload{}, &errdefs.BackendError{Phase: errdefs.PhaseTokenize, Err: err}
		}
		inputLen := len(ids)
		if !opts.Bounds.Admits(inputLen, outputLen) {
			continue
		}

		priority, err := resolvePriority(entry, opts.Source, rngs)
		if err != nil {
			return Workload{}, &errdefs.WorkloadError{Scanned: scanned, Accepted: len(requests), Reason: err.Error()}
		}
		requests = append(requests, Request{
			Prompt:    entry.Input,
			InputLen:  inputLen,
			OutputLen: outputLen,
			Priority:  priority,
		})
	}

	if len(requests) == 0 {
		return Workload{}, &errdefs.WorkloadError{Scanned: scanned, Accepted: 0}
	}
	if len(requests) < opts.MaxRequests {
		logrus.Warnf("Corpus exhausted: accepted %d of %d requested requests (scanned %d)", len(requests), opts.MaxRequests, scanned)
	}
	logrus.Debugf("Built workload of %d requests with %s priorities (seed %d)", len(requests), opts.Source, opts.Seed)

	return Workload{requests: requests}, nil
}

func resolvePriority(entry Entry, source PrioritySource, rngs *PartitionedRNG) (int, error) {
	switch source.Kind {
	case SourceAnnotated:
		v, ok := entry.Noised[source.Level]
		if !ok {
			return 0, fmt.Errorf("entry has no %s annotation", NoiseField(source.Level))
		}
		return v, nil
	case SourceInjected:
		return Inject(rngs.ForSubsystem(SubsystemNoise), entry.OutputTokens, source.Profile), nil
	default:
		return entry.OutputTokens, nil
	}
}
