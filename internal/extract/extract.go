// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package extract answers one field of one paper from its retrieved chunks:
// it composes the prompt, calls the LLM, and turns the reply into a scored
// ExtractionResult. Failures are recorded on the result, never returned.
package extract

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/backend"
	"github.com/pdiddy/paper-extract/internal/index"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// Options configures an Extractor.
type Options struct {
	// MaxPromptChars bounds the prompt; 0 disables the bound.
	MaxPromptChars int

	// EmbeddingModel is recorded on every result for audit.
	EmbeddingModel string

	Log *zap.Logger
}

// Extractor runs field extractions against one Generator.
type Extractor struct {
	gen  backend.Generator
	opts Options
	log  *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// New creates an Extractor.
func New(gen backend.Generator, opts Options) *Extractor {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Extractor{gen: gen, opts: opts, log: log, now: time.Now}
}

// LLMModel identifies the generator, including fallbacks.
func (e *Extractor) LLMModel() string {
	return e.gen.Model()
}

// Extract answers field for paperID from hits, best match first.
//
// No hits yields no_context without calling the LLM. A generator failure
// yields extraction_error and a malformed reply parse_error; neither carries
// a value.
func (e *Extractor) Extract(ctx context.Context, paperID string, field types.FieldSpec, hits []index.Hit) types.ExtractionResult {
	res := types.ExtractionResult{
		PaperID:          paperID,
		FieldName:        field.Name,
		EmbeddingModel:   e.opts.EmbeddingModel,
		LLMModel:         e.gen.Model(),
		SupportingChunks: []int{},
	}
	log := e.log.With(zap.String("paper", paperID), zap.String("field", field.Name))

	if len(hits) == 0 {
		res.Status = types.ResultNoContext
		res.Explanation = "No relevant text found in the document."
		res.ExtractedAt = e.now()
		return res
	}

	prompt, used, err := composePrompt(field, hits, e.opts.MaxPromptChars)
	if err != nil {
		return e.fail(res, types.ResultExtractionError, err, log)
	}
	for _, h := range used {
		res.SupportingChunks = append(res.SupportingChunks, h.Chunk.Index)
	}
	if len(used) < len(hits) {
		log.Debug("prompt budget dropped chunks", zap.Int("kept", len(used)), zap.Int("retrieved", len(hits)))
	}

	raw, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		return e.fail(res, types.ResultExtractionError, err, log)
	}

	ans, err := parseAnswer(raw)
	if err != nil {
		log.Debug("unparseable answer", zap.String("raw", raw))
		return e.fail(res, types.ResultParseError, err, log)
	}

	res.Found = ans.Found
	res.Explanation = ans.Explanation
	res.Evidence = ans.Evidence
	if ans.Found {
		res.Status = types.ResultOK
		res.Value = ans.Value
	} else {
		res.Status = types.ResultNotFound
	}

	if ans.Confidence != nil {
		res.Confidence = *ans.Confidence
		res.ConfidenceSource = types.ConfidenceModel
	} else {
		res.Confidence = derivedConfidence(used)
		res.ConfidenceSource = types.ConfidenceDerived
	}

	res.ExtractedAt = e.now()
	return res
}

func (e *Extractor) fail(res types.ExtractionResult, status types.ResultStatus, err error, log *zap.Logger) types.ExtractionResult {
	res.Status = status
	res.Error = err.Error()
	res.Value = ""
	res.Found = false
	res.Confidence = 0
	res.ExtractedAt = e.now()
	if !errors.Is(err, context.Canceled) {
		log.Warn("field extraction failed", zap.String("status", string(status)), zap.Error(err))
	}
	return res
}

// derivedConfidence is the mean similarity of the chunks sent to the model,
// clamped to [0,1].
func derivedConfidence(hits []index.Hit) float64 {
	if len(hits) == 0 {
		return 0
	}
	var sum float64
	for _, h := range hits {
		sum += h.Score
	}
	return min(max(sum/float64(len(hits)), 0), 1)
}
