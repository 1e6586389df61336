// Package llm defines the text-completion and embedding collaborator
// contracts consumed by the synthesis machine, plus one HTTP implementation
// speaking the common JSON completion/embedding wire shape.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/edarah/dbgateway/internal/config"
)

// Completer produces text for a prompt. A failure is treated by the caller as
// one exhausted repair cycle — there is no retry policy at this layer.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Embedder turns texts into fixed-length vectors. Failures degrade
// gracefully: callers skip embedding-dependent features, never the request.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Client talks to an HTTP provider exposing /complete and /embed.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	http     *http.Client
}

// NewClient builds a Client from config. Timeouts are mandatory: a hung
// provider must not hold a request slot indefinitely.
func NewClient(cfg config.LLMConfig, timeouts config.TimeoutsConfig) *Client {
	timeout := timeouts.Completion
	if timeouts.Embedding > timeout {
		timeout = timeouts.Embedding
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		http:     &http.Client{Timeout: timeout},
	}
}

// Complete implements Completer.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var out struct {
		Text string `json:"text"`
	}
	err := c.post(ctx, "/complete", map[string]string{
		"model":  c.model,
		"prompt": prompt,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Text, nil
}

// Embed implements Embedder.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	var out struct {
		Embeddings [][]float64 `json:"embeddings"`
	}
	err := c.post(ctx, "/embed", map[string]any{
		"model": c.model,
		"input": texts,
	}, &out)
	if err != nil {
		return nil, err
	}
	if len(out.Embeddings) != len(texts) {
		return nil, fmt.Errorf("provider returned %d embeddings for %d inputs", len(out.Embeddings), len(texts))
	}
	return out.Embeddings, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encoding provider request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building provider request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling provider %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("reading provider response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider %s returned status %d", path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decoding provider response: %w", err)
	}
	return nil
}
