package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"net/http"
	"strings"
	"time"
)

// Tokenizer measures prompt lengths. Token ids are only counted, never sent.
type Tokenizer interface {
	Encode(ctx context.Context, text string) ([]int, error)
}

// HTTPTokenizer calls vLLM's /tokenize endpoint so that lengths match the
// model being benchmarked.
type HTTPTokenizer struct {
	URL    string
	Model  string
	Client *http.Client
}

type tokenizeRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type tokenizeResponse struct {
	Count  int   `json:"count"`
	Tokens []int `json:"tokens"`
}

// NewHTTPTokenizer derives the /tokenize URL from an OpenAI base URL such as
// http://localhost:8000/v1.
func NewHTTPTokenizer(baseURL, model string, timeout time.Duration) *HTTPTokenizer {
	root := strings.TrimSuffix(strings.TrimRight(baseURL, "/"), "/v1")
	return &HTTPTokenizer{
		URL:    root + "/tokenize",
		Model:  model,
		Client: &http.Client{Timeout: timeout},
	}
}

func (t *HTTPTokenizer) Encode(ctx context.Context, text string) ([]int, error) {
	payload, err := json.Marshal(tokenizeRequest{Model: t.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("encoding tokenize request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building tokenize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokenize request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tokenize request failed: %s", resp.Status)
	}

	var out tokenizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding tokenize response: %w", err)
	}
	if out.Tokens == nil && out.Count > 0 {
		return make([]int, out.Count), nil
	}
	return out.Tokens, nil
}

// WordTokenizer splits on whitespace and hashes each word. It is meant for
// offline dry runs and tests where no server is reachable.
type WordTokenizer struct{}

func (WordTokenizer) Encode(_ context.Context, text string) ([]int, error) {
	words := strings.Fields(text)
	ids := make([]int, len(words))
	for i, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		ids[i] = int(h.Sum32() >> 1)
	}
	return ids, nil
}
