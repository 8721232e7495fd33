// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"fmt"
	"net/http"
	"sort"

	"github.com/pdiddy/paper-extract/internal/httputil"
	"github.com/pdiddy/paper-extract/pkg/types"
)

const (
	defaultOpenAIURL = "https://api.openai.com/v1"
	defaultVLLMURL   = "http://localhost:8000/v1"
)

// OpenAI speaks the OpenAI-compatible chat completions and embeddings API.
// vLLM servers expose the same API and use this client too.
type OpenAI struct {
	BaseURL     string
	APIKey      string
	ModelName   string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (o *OpenAI) Model() string { return o.ModelName }

func (o *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	var resp chatResponse
	err := httputil.PostJSON(ctx, o.client(), o.BaseURL+"/chat/completions", o.headers(), chatRequest{
		Model:       o.ModelName,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: o.Temperature,
		MaxTokens:   o.MaxTokens,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embeddingsResponse
	err := httputil.PostJSON(ctx, o.client(), o.BaseURL+"/embeddings", o.headers(), embeddingsRequest{
		Model: o.ModelName,
		Input: texts,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("embeddings: %w", err)
	}
	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func (o *OpenAI) Health(ctx context.Context) error {
	if err := httputil.GetJSON(ctx, o.client(), o.BaseURL+"/models", o.headers(), nil); err != nil {
		return fmt.Errorf("%s: %w", o.BaseURL, err)
	}
	return nil
}

func (o *OpenAI) headers() map[string]string {
	if o.APIKey == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + o.APIKey}
}

func (o *OpenAI) client() *http.Client {
	if o.Client == nil {
		return http.DefaultClient
	}
	return o.Client
}

func openAIFactory(defaultURL string) func(types.BackendConfig) *OpenAI {
	return func(cfg types.BackendConfig) *OpenAI {
		return &OpenAI{
			BaseURL:     baseURL(cfg, defaultURL),
			APIKey:      cfg.APIKey,
			ModelName:   cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Client:      httpClient(cfg),
		}
	}
}

func init() {
	for name, url := range map[string]string{
		types.ProviderOpenAI: defaultOpenAIURL,
		types.ProviderVLLM:   defaultVLLMURL,
	} {
		build := openAIFactory(url)
		registerGenerator(name, func(cfg types.BackendConfig) (Generator, error) {
			return build(cfg), nil
		})
		registerEmbedder(name, func(cfg types.BackendConfig) (Embedder, error) {
			return build(cfg), nil
		})
	}
}
