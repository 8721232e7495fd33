// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// NewEmbedder builds the configured embedder wrapped in retries.
func NewEmbedder(cfg types.BackendConfig, retry types.RetryConfig, log *zap.Logger) (Embedder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	e, err := newEmbedder(cfg)
	if err != nil {
		return nil, err
	}
	return NewRetryingEmbedder(e, PolicyFrom(retry), log.With(zap.String("backend", "embedding"))), nil
}

// NewGenerator builds the configured generator and its fallbacks, each
// wrapped in its own retries, tried in configuration order.
func NewGenerator(cfg types.BackendConfig, retry types.RetryConfig, log *zap.Logger) (Generator, error) {
	if log == nil {
		log = zap.NewNop()
	}
	policy := PolicyFrom(retry)
	chain := append([]types.BackendConfig{cfg}, cfg.Fallback...)

	items := make([]Generator, 0, len(chain))
	for _, c := range chain {
		g, err := newGenerator(c)
		if err != nil {
			return nil, err
		}
		items = append(items, NewRetryingGenerator(g, policy, log.With(
			zap.String("backend", "llm"),
			zap.String("provider", c.Provider),
		)))
	}
	return NewGeneratorGroup(items, log), nil
}
