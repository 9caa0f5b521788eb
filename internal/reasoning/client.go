// Package reasoning calls the external natural-language reasoning service.
// The wire shape follows the Ollama generate API.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"spendguard-agent/internal/config"
)

// Generator produces free text from a prompt. The decision engine depends
// on this interface so tests can substitute a fake.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client talks to an Ollama-compatible endpoint.
type Client struct {
	url         string
	model       string
	temperature float64
	topP        float64
	http        *http.Client
}

// NewClient builds a client from the reasoning config section.
func NewClient(cfg config.ReasoningConfig) *Client {
	return &Client{
		url:         cfg.URL,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		http:        &http.Client{Timeout: cfg.CallTimeout()},
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
}

type generateResponse struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
}

// Generate sends one non-streaming completion request. Low temperature
// keeps the labeled-field output parseable across calls.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:  c.model,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: c.temperature,
			TopP:        c.topP,
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("generate returned %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if out.Error != "" {
		return "", fmt.Errorf("generate error: %s", out.Error)
	}
	return out.Response, nil
}
