package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// OpenAIConfig describes how to reach an OpenAI-compatible serving engine.
type OpenAIConfig struct {
	BaseURL string
	APIKey  string
	// Model is discovered from the server when empty.
	Model string
	// Concurrency caps in-flight requests of one batch; zero submits the whole
	// batch at once and leaves queueing to the engine's scheduler.
	Concurrency int
	Timeout     time.Duration
	// Progress receives a per-request progress bar when non-nil.
	Progress io.Writer
}

// OpenAIBackend issues one completion request per prompt and waits for the
// whole batch.
type OpenAIBackend struct {
	client      *openai.Client
	model       string
	concurrency int
	progress    io.Writer
}

// NewOpenAIBackend builds a client for cfg.BaseURL and resolves the model name.
func NewOpenAIBackend(ctx context.Context, cfg OpenAIConfig) (*OpenAIBackend, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	config.HTTPClient = &extrasDoer{next: &http.Client{Timeout: cfg.Timeout}}
	client := openai.NewClientWithConfig(config)

	model := cfg.Model
	if model == "" {
		discovered, err := GetFirstAvailableModel(ctx, client)
		if err != nil {
			return nil, err
		}
		logrus.Infof("Discovered model %s", discovered)
		model = discovered
	}

	return &OpenAIBackend{
		client:      client,
		model:       model,
		concurrency: cfg.Concurrency,
		progress:    cfg.Progress,
	}, nil
}

// Model returns the model name requests are sent to.
func (b *OpenAIBackend) Model() string {
	return b.model
}

// Generate submits every prompt concurrently. The first failure cancels the
// requests still in flight and no completions are returned.
func (b *OpenAIBackend) Generate(ctx context.Context, prompts []string, params []SamplingParams, priorities []int) ([]Completion, error) {
	if err := checkAligned(prompts, params, priorities); err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if b.progress != nil {
		bar = progressbar.NewOptions(len(prompts),
			progressbar.OptionSetWriter(b.progress),
			progressbar.OptionSetDescription("Requests"),
			progressbar.OptionShowCount(),
		)
	}

	completions := make([]Completion, len(prompts))
	g, gctx := errgroup.WithContext(ctx)
	if b.concurrency > 0 {
		g.SetLimit(b.concurrency)
	}
	for i := range prompts {
		var priority *int
		if priorities != nil {
			p := priorities[i]
			priority = &p
		}
		g.Go(func() error {
			completion, err := b.complete(gctx, prompts[i], params[i], priority)
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			completions[i] = completion
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if bar != nil {
		_ = bar.Finish()
	}
	return completions, nil
}

func (b *OpenAIBackend) complete(ctx context.Context, prompt string, params SamplingParams, priority *int) (Completion, error) {
	start := time.Now()

	ctx = withExtras(ctx, requestExtras{
		Priority:    priority,
		IgnoreEOS:   params.IgnoreEOS,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	})
	resp, err := b.client.CreateCompletion(ctx, openai.CompletionRequest{
		Model:       b.model,
		Prompt:      prompt,
		MaxTokens:   params.MaxTokens,
		N:           params.N,
		Temperature: float32(params.Temperature),
		TopP:        float32(params.TopP),
	})
	if err != nil {
		return Completion{}, fmt.Errorf("OpenAI API request failed: %w", err)
	}

	completion := Completion{
		Latency:          time.Since(start),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	var text strings.Builder
	for _, choice := range resp.Choices {
		text.WriteString(choice.Text)
	}
	completion.Text = text.String()

	// Some servers omit usage; fall back to an estimate of the generated text.
	if completion.CompletionTokens == 0 {
		completion.CompletionTokens = EstimateTokens(completion.Text)
	}
	return completion, nil
}

// GetFirstAvailableModel retrieves the first available model from the server.
func GetFirstAvailableModel(ctx context.Context, client *openai.Client) (string, error) {
	modelList, err := client.ListModels(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list models: %w", err)
	}

	if len(modelList.Models) == 0 {
		return "", fmt.Errorf("no models available")
	}

	return modelList.Models[0].ID, nil
}

// EstimateTokens approximates the token count of generated text: about 1.3
// tokens per word, or one token per three characters when there are no words.
func EstimateTokens(content string) int {
	content = strings.TrimSpace(content)
	if len(content) == 0 {
		return 0
	}

	words := strings.Fields(content)
	if wordCount := len(words); wordCount > 0 {
		return max(1, int(float64(wordCount)*1.3))
	}
	return max(1, len(content)/3)
}
