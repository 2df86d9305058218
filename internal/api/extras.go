package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// requestExtras are body fields the OpenAI request types cannot carry:
// vLLM's priority and ignore_eos, plus sampling values that omitempty would
// drop when they are zero.
type requestExtras struct {
	Priority    *int
	IgnoreEOS   bool
	Temperature float64
	TopP        float64
}

type extrasKey struct{}

func withExtras(ctx context.Context, extras requestExtras) context.Context {
	return context.WithValue(ctx, extrasKey{}, extras)
}

// extrasDoer merges requestExtras from the request context into the JSON body.
type extrasDoer struct {
	next openai.HTTPDoer
}

func (d *extrasDoer) Do(req *http.Request) (*http.Response, error) {
	extras, ok := req.Context().Value(extrasKey{}).(requestExtras)
	if !ok || req.Body == nil {
		return d.next.Do(req)
	}

	body, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	payload := map[string]any{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding request body: %w", err)
	}
	payload["ignore_eos"] = extras.IgnoreEOS
	payload["temperature"] = extras.Temperature
	payload["top_p"] = extras.TopP
	if extras.Priority != nil {
		payload["priority"] = *extras.Priority
	}

	merged, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding request body: %w", err)
	}
	req.Body = io.NopCloser(bytes.NewReader(merged))
	req.ContentLength = int64(len(merged))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(merged)), nil
	}
	return d.next.Do(req)
}
