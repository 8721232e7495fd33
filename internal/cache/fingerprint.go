// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache decides, per paper and per field, whether a persisted
// artifact can be reused or must be recomputed. Reuse is governed by
// fingerprints: a hash over every input that can change the artifact.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// Fingerprint versions. Bump one to invalidate every entry of its kind.
const (
	indexVersion = "index/v1"
	fieldVersion = "field/v1"
)

// IndexFingerprint covers everything that shapes a paper's vectors: its
// text, the chunking parameters, and the embedding model.
func IndexFingerprint(contentHash string, chunking types.ChunkingConfig, embedding types.BackendConfig) string {
	return hash(indexVersion,
		contentHash,
		strconv.Itoa(chunking.Size),
		strconv.Itoa(chunking.Overlap),
		embedding.Provider,
		embedding.Model,
	)
}

// FieldParams are the run-wide inputs of a field extraction besides the
// field itself.
type FieldParams struct {
	LLMModel       string
	LLMProvider    string
	Temperature    float64
	MaxTokens      int
	TopK           int
	MaxPromptChars int
	PromptVersion  string
}

// FieldParamsFrom collects FieldParams from the run configuration. llmModel
// is the generator's reported model, which includes any fallbacks.
func FieldParamsFrom(cfg types.Config, llmModel, promptVersion string) FieldParams {
	return FieldParams{
		LLMModel:       llmModel,
		LLMProvider:    cfg.LLM.Provider,
		Temperature:    cfg.LLM.Temperature,
		MaxTokens:      cfg.LLM.MaxTokens,
		TopK:           cfg.Retrieval.TopK,
		MaxPromptChars: cfg.Retrieval.MaxPromptChars,
		PromptVersion:  promptVersion,
	}
}

// FieldFingerprint covers the paper's index, the field definition, and the
// extraction parameters. Changing a field's description invalidates that
// field only.
func FieldFingerprint(indexFP string, field types.FieldSpec, p FieldParams) string {
	return hash(fieldVersion,
		indexFP,
		field.Name,
		field.Description,
		field.Type,
		p.LLMProvider,
		p.LLMModel,
		strconv.FormatFloat(p.Temperature, 'g', -1, 64),
		strconv.Itoa(p.MaxTokens),
		strconv.Itoa(p.TopK),
		strconv.Itoa(p.MaxPromptChars),
		p.PromptVersion,
	)
}

func hash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(strconv.Itoa(len(p))))
		h.Write([]byte{':'})
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
