// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"fmt"
	"net/http"

	"github.com/pdiddy/paper-extract/internal/httputil"
	"github.com/pdiddy/paper-extract/pkg/types"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama talks to a local Ollama server. It serves both generation
// (/api/generate) and embeddings (/api/embed).
type Ollama struct {
	BaseURL     string
	ModelName   string
	Temperature float64
	MaxTokens   int
	Client      *http.Client
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Format  string         `json:"format,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type ollamaEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func newOllama(cfg types.BackendConfig) *Ollama {
	return &Ollama{
		BaseURL:     baseURL(cfg, defaultOllamaURL),
		ModelName:   cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		Client:      httpClient(cfg),
	}
}

func (o *Ollama) Model() string { return o.ModelName }

// Generate requests a JSON-formatted completion.
func (o *Ollama) Generate(ctx context.Context, prompt string) (string, error) {
	opts := map[string]any{"temperature": o.Temperature}
	if o.MaxTokens > 0 {
		opts["num_predict"] = o.MaxTokens
	}
	var resp ollamaGenerateResponse
	err := httputil.PostJSON(ctx, o.client(), o.BaseURL+"/api/generate", nil, ollamaGenerateRequest{
		Model:   o.ModelName,
		Prompt:  prompt,
		Format:  "json",
		Options: opts,
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return resp.Response, nil
}

func (o *Ollama) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	var resp ollamaEmbedResponse
	err := httputil.PostJSON(ctx, o.client(), o.BaseURL+"/api/embed", nil, ollamaEmbedRequest{
		Model: o.ModelName,
		Input: texts,
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("ollama embed: %w", err)
	}
	return resp.Embeddings, nil
}

// Health lists the local models, which fails fast when the server is down.
func (o *Ollama) Health(ctx context.Context) error {
	if err := httputil.GetJSON(ctx, o.client(), o.BaseURL+"/api/tags", nil, nil); err != nil {
		return fmt.Errorf("ollama at %s: %w", o.BaseURL, err)
	}
	return nil
}

func (o *Ollama) client() *http.Client {
	if o.Client == nil {
		return http.DefaultClient
	}
	return o.Client
}

func init() {
	registerGenerator(types.ProviderOllama, func(cfg types.BackendConfig) (Generator, error) {
		return newOllama(cfg), nil
	})
	registerEmbedder(types.ProviderOllama, func(cfg types.BackendConfig) (Embedder, error) {
		return newOllama(cfg), nil
	})
}
