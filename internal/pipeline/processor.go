// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline turns papers into result rows: the Processor runs one
// paper through chunking, indexing, and per-field extraction, and the Runner
// drives the Processor over a batch with a bounded worker pool.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/cache"
	"github.com/pdiddy/paper-extract/internal/chunk"
	"github.com/pdiddy/paper-extract/internal/extract"
	"github.com/pdiddy/paper-extract/internal/index"
	"github.com/pdiddy/paper-extract/internal/store"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// WarnNoText is attached to rows of papers with no extractable text.
const WarnNoText = "no extractable text"

// Deps are the collaborators shared by every paper in a run.
type Deps struct {
	Indexes     *index.Store
	Extractor   *extract.Extractor
	Coordinator *cache.Coordinator

	// Store records run history. It may be nil.
	Store *store.Store

	Log *zap.Logger
}

// Processor runs one paper at a time through the pipeline. It is safe for
// concurrent use by the Runner's workers.
type Processor struct {
	cfg    types.Config
	fields []types.FieldSpec
	deps   Deps
	params cache.FieldParams
	log    *zap.Logger

	// now is replaced in tests.
	now func() time.Time
}

// NewProcessor creates a Processor extracting fields under cfg.
func NewProcessor(cfg types.Config, fields []types.FieldSpec, deps Deps) *Processor {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Processor{
		cfg:    cfg,
		fields: fields,
		deps:   deps,
		params: cache.FieldParamsFrom(cfg, deps.Extractor.LLMModel(), extract.PromptVersion),
		log:    log,
		now:    time.Now,
	}
}

// Process chunks and indexes paper, then resolves every field through the
// cache. The returned row always has one result per field, in field order.
//
// A load or indexing failure skips every field with reason load_failed or
// indexing_failed. A field
// failure is recorded on that field's result and never affects its
// neighbours. Fields not yet started when ctx is cancelled are skipped.
func (p *Processor) Process(ctx context.Context, paper types.Paper) types.ResultRow {
	start := p.now()
	log := p.log.With(zap.String("paper", paper.ID))
	coord := p.deps.Coordinator
	opts := coord.Options()

	row := types.ResultRow{
		PaperID:   paper.ID,
		PaperName: paper.Name,
		Results:   make([]types.ExtractionResult, 0, len(p.fields)),
	}
	if paper.Name == "" {
		row.PaperName = paper.ID
	}

	if paper.LoadError != "" {
		log.Warn("paper failed to load, skipping fields", zap.String("error", paper.LoadError))
		row.Results = p.skipAll(paper.ID, types.SkipLoadFailed)
		row.Warnings = append(row.Warnings, "load failed: "+paper.LoadError)
		coord.PutPaper(ctx, paper)
		return p.finish(ctx, row, start, types.PaperFailed)
	}

	if paper.ContentHash == "" {
		paper.HashContent()
	}
	coord.PutPaper(ctx, paper)
	if paper.IsEmpty() {
		row.Warnings = append(row.Warnings, WarnNoText)
		log.Warn("paper has no extractable text")
	}

	ix, indexFP, err := p.index(ctx, paper, opts)
	if err != nil {
		log.Warn("indexing failed, skipping fields", zap.Error(err))
		row.Results = p.skipAll(paper.ID, types.SkipIndexingFailed)
		row.Warnings = append(row.Warnings, fmt.Sprintf("indexing failed: %v", err))
		return p.finish(ctx, row, start, types.PaperFailed)
	}
	coord.SetPaperStatus(ctx, paper.ID, types.PaperIndexed)

	for _, f := range p.fields {
		if ctx.Err() != nil {
			row.Results = append(row.Results, types.SkippedResult(paper.ID, f.Name, ctx.Err().Error()))
			continue
		}
		fp := cache.FieldFingerprint(indexFP, f, p.params)
		r := coord.Resolve(ctx, paper.ID, f, fp, func(ctx context.Context) types.ExtractionResult {
			return p.extract(ctx, ix, paper.ID, f)
		})
		row.Results = append(row.Results, r)
	}

	status := types.PaperExtracted
	row.Finalize()
	if row.Status == types.RowFailed {
		status = types.PaperFailed
	}
	return p.finish(ctx, row, start, status)
}

func (p *Processor) skipAll(paperID, reason string) []types.ExtractionResult {
	out := make([]types.ExtractionResult, 0, len(p.fields))
	for _, f := range p.fields {
		r := types.SkippedResult(paperID, f.Name, reason)
		r.EmbeddingModel = p.deps.Indexes.EmbeddingModel()
		r.LLMModel = p.params.LLMModel
		out = append(out, r)
	}
	return out
}

func (p *Processor) index(ctx context.Context, paper types.Paper, opts types.RunOptions) (*index.Index, string, error) {
	chunks, err := chunk.Split(paper.ID, paper.Pages, p.cfg.Chunking.Size, p.cfg.Chunking.Overlap)
	if err != nil {
		return nil, "", fmt.Errorf("chunking: %w", err)
	}
	fp := cache.IndexFingerprint(paper.ContentHash, p.cfg.Chunking, p.cfg.Embedding)
	ix, err := p.deps.Indexes.Build(ctx, paper, chunks, fp, opts)
	if err != nil {
		return nil, "", err
	}
	return ix, fp, nil
}

func (p *Processor) extract(ctx context.Context, ix *index.Index, paperID string, f types.FieldSpec) types.ExtractionResult {
	hits, err := p.deps.Indexes.QueryIndex(ctx, ix, f.Query(), p.cfg.Retrieval.TopK)
	if err != nil {
		p.log.Warn("retrieval failed",
			zap.String("paper", paperID), zap.String("field", f.Name), zap.Error(err))
		return types.ExtractionResult{
			PaperID:          paperID,
			FieldName:        f.Name,
			Status:           types.ResultExtractionError,
			Error:            err.Error(),
			SupportingChunks: []int{},
			ExtractedAt:      p.now(),
			EmbeddingModel:   ix.EmbeddingModel,
			LLMModel:         p.params.LLMModel,
		}
	}
	return p.deps.Extractor.Extract(ctx, paperID, f, hits)
}

func (p *Processor) finish(ctx context.Context, row types.ResultRow, start time.Time, status types.PaperStatus) types.ResultRow {
	row.Finalize()
	row.ProcessingTime = p.now().Sub(start)
	p.deps.Coordinator.SetPaperStatus(ctx, row.PaperID, status)
	return row
}
