// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package backend adapts embedding and text-generation services to the two
// narrow interfaces the pipeline depends on. Concrete providers register
// themselves by name; New* builds a retrying, optionally fallback-grouped
// client from configuration.
package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// Embedder turns texts into vectors. The returned slice is aligned with texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Model identifies the embedding model, including any version tag.
	Model() string
}

// Generator completes a prompt. Generation parameters such as temperature
// are bound when the Generator is constructed.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Model() string
}

// HealthChecker is implemented by backends that can be probed cheaply
// before a run starts.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// CheckHealth probes b if it supports health checks. Backends without a
// probe are assumed healthy.
func CheckHealth(ctx context.Context, b any) error {
	if err := probe(ctx, b); err != nil {
		return fmt.Errorf("%w: %w", types.ErrBackendUnavailable, err)
	}
	return nil
}

func probe(ctx context.Context, b any) error {
	if hc, ok := b.(HealthChecker); ok {
		return hc.Health(ctx)
	}
	return nil
}

const defaultTimeout = 2 * time.Minute

type embedderFactory func(cfg types.BackendConfig) (Embedder, error)
type generatorFactory func(cfg types.BackendConfig) (Generator, error)

var (
	embedders  = map[string]embedderFactory{}
	generators = map[string]generatorFactory{}
)

func registerEmbedder(name string, f embedderFactory) {
	embedders[strings.ToLower(name)] = f
}

func registerGenerator(name string, f generatorFactory) {
	generators[strings.ToLower(name)] = f
}

// newEmbedder constructs the raw provider client without retries.
func newEmbedder(cfg types.BackendConfig) (Embedder, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Provider))
	f := embedders[key]
	if f == nil {
		return nil, types.NewConfigError("embedding.provider", "no embedding support for provider %q", cfg.Provider)
	}
	return f(cfg)
}

func newGenerator(cfg types.BackendConfig) (Generator, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Provider))
	f := generators[key]
	if f == nil {
		return nil, types.NewConfigError("llm.provider", "unsupported provider %q", cfg.Provider)
	}
	return f(cfg)
}

func httpClient(cfg types.BackendConfig) *http.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func baseURL(cfg types.BackendConfig, fallback string) string {
	if cfg.BaseURL != "" {
		return strings.TrimRight(cfg.BaseURL, "/")
	}
	return fallback
}
