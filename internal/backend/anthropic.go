// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pdiddy/paper-extract/internal/httputil"
	"github.com/pdiddy/paper-extract/pkg/types"
)

const (
	defaultAnthropicURL = "https://api.anthropic.com"
	anthropicVersion    = "2023-06-01"
	defaultMaxTokens    = 1024
)

// Claude calls the Anthropic Messages API. Anthropic has no embeddings
// endpoint, so Claude is a Generator only.
type Claude struct {
	BaseURL     string
	APIKey      string
	ModelName   string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
}

// claudeRequest is the request body for the Messages API.
type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// claudeResponse is the response body from the Messages API.
type claudeResponse struct {
	Content []claudeContent `json:"content"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func (c *Claude) Model() string { return c.ModelName }

// Generate sends prompt as a single user message and returns the first text
// block of the reply.
func (c *Claude) Generate(ctx context.Context, prompt string) (string, error) {
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var resp claudeResponse
	err := httputil.PostJSON(ctx, c.client(), c.BaseURL+"/v1/messages", c.headers(), claudeRequest{
		Model:       c.ModelName,
		MaxTokens:   maxTokens,
		Temperature: c.Temperature,
		Messages:    []claudeMessage{{Role: "user", Content: prompt}},
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}

	for _, block := range resp.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Claude API response")
}

func (c *Claude) Health(ctx context.Context) error {
	if err := httputil.GetJSON(ctx, c.client(), c.BaseURL+"/v1/models", c.headers(), nil); err != nil {
		return fmt.Errorf("anthropic: %w", err)
	}
	return nil
}

func (c *Claude) headers() map[string]string {
	return map[string]string{
		"x-api-key":         c.APIKey,
		"anthropic-version": anthropicVersion,
	}
}

func (c *Claude) client() *http.Client {
	if c.Client == nil {
		return http.DefaultClient
	}
	return c.Client
}

func init() {
	registerGenerator(types.ProviderAnthropic, func(cfg types.BackendConfig) (Generator, error) {
		if cfg.APIKey == "" {
			return nil, types.NewConfigError("llm.api_key", "anthropic requires an API key (.secrets/anthropic-api-key)")
		}
		return &Claude{
			BaseURL:     baseURL(cfg, defaultAnthropicURL),
			APIKey:      cfg.APIKey,
			ModelName:   cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Client:      httpClient(cfg),
		}, nil
	})
}
