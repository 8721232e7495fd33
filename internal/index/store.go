// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"errors"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/backend"
	"github.com/pdiddy/paper-extract/internal/store"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// ErrNoIndex is returned by Query for a paper that has not been built.
var ErrNoIndex = errors.New("paper has no index")

const (
	defaultCacheSize      = 64
	defaultQueryCacheSize = 1024
	defaultQueryTTL       = time.Hour
	defaultBatchSize      = 32
)

// Options tunes a Store. Zero values select defaults.
type Options struct {
	// CacheSize bounds the per-paper indices held in memory.
	CacheSize int

	// QueryCacheSize and QueryTTL bound the memo of query embeddings.
	QueryCacheSize int
	QueryTTL       time.Duration

	// BatchSize is the number of chunks sent per embedding request.
	BatchSize int

	Log *zap.Logger
}

// Store builds, persists, and queries per-paper indices.
type Store struct {
	embedder  backend.Embedder
	persist   *store.Store
	live      *lru.Cache[string, *Index]
	queries   *expirable.LRU[string, []float32]
	batchSize int
	log       *zap.Logger
}

// New creates a Store. persist may be nil, in which case indices live only
// in memory.
func New(embedder backend.Embedder, persist *store.Store, opts Options) (*Store, error) {
	if opts.CacheSize <= 0 {
		opts.CacheSize = defaultCacheSize
	}
	if opts.QueryCacheSize <= 0 {
		opts.QueryCacheSize = defaultQueryCacheSize
	}
	if opts.QueryTTL <= 0 {
		opts.QueryTTL = defaultQueryTTL
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	live, err := lru.New[string, *Index](opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating index cache: %w", err)
	}
	return &Store{
		embedder:  embedder,
		persist:   persist,
		live:      live,
		queries:   expirable.NewLRU[string, []float32](opts.QueryCacheSize, nil, opts.QueryTTL),
		batchSize: opts.BatchSize,
		log:       opts.Log,
	}, nil
}

// EmbeddingModel identifies the embedder behind the store.
func (s *Store) EmbeddingModel() string {
	return s.embedder.Model()
}

// Build returns the paper's index for fingerprint. A cached index with the
// same fingerprint is reused without calling the embedder unless
// opts.Force is set. A fresh index is persisted unless opts.DryRun is set
// or ctx was cancelled while building.
func (s *Store) Build(ctx context.Context, paper types.Paper, chunks []types.Chunk, fingerprint string, opts types.RunOptions) (*Index, error) {
	log := s.log.With(zap.String("paper", paper.ID))

	if !opts.Force {
		if ix := s.lookup(ctx, paper.ID, fingerprint, log); ix != nil {
			return ix, nil
		}
	}

	embedded, err := s.embedChunks(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("indexing %s: %w", paper.ID, err)
	}
	ix := newIndex(paper.ID, fingerprint, s.embedder.Model(), embedded)

	if ctx.Err() != nil {
		return nil, fmt.Errorf("indexing %s: %w", paper.ID, ctx.Err())
	}
	if !opts.DryRun && s.persist != nil {
		err := s.persist.PutIndex(ctx, store.IndexRecord{
			PaperID:        paper.ID,
			Fingerprint:    fingerprint,
			EmbeddingModel: ix.EmbeddingModel,
			Chunks:         embedded,
		})
		if err != nil {
			log.Warn("persisting index failed, continuing in memory", zap.Error(err))
		}
	}

	s.live.Add(paper.ID, ix)
	log.Debug("index built", zap.Int("chunks", ix.Len()), zap.String("fingerprint", fingerprint))
	return ix, nil
}

// lookup returns a cached index matching fingerprint, first from memory and
// then from the persistent store. Corrupt entries are logged and ignored.
func (s *Store) lookup(ctx context.Context, paperID, fingerprint string, log *zap.Logger) *Index {
	if ix, ok := s.live.Get(paperID); ok && ix.Fingerprint == fingerprint {
		return ix
	}
	if s.persist == nil {
		return nil
	}

	rec, err := s.persist.GetIndex(ctx, paperID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case errors.Is(err, types.ErrCacheCorruption):
		log.Warn("cached index corrupt, rebuilding", zap.Error(err))
		return nil
	case err != nil:
		log.Warn("reading cached index failed, rebuilding", zap.Error(err))
		return nil
	}
	if rec.Fingerprint != fingerprint {
		log.Debug("cached index stale", zap.String("cached", rec.Fingerprint), zap.String("want", fingerprint))
		return nil
	}

	ix := newIndex(paperID, fingerprint, rec.EmbeddingModel, rec.Chunks)
	ix.Reused = true
	s.live.Add(paperID, ix)
	return ix
}

func (s *Store) embedChunks(ctx context.Context, chunks []types.Chunk) ([]types.Chunk, error) {
	out := make([]types.Chunk, len(chunks))
	copy(out, chunks)

	for start := 0; start < len(out); start += s.batchSize {
		end := min(start+s.batchSize, len(out))
		texts := make([]string, 0, end-start)
		for _, c := range out[start:end] {
			texts = append(texts, c.Text)
		}
		vecs, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vecs), len(texts))
		}
		for i, v := range vecs {
			out[start+i].Vector = v
		}
	}
	return out, nil
}

// Query searches the paper's index for the topK chunks most similar to
// queryText. topK is clamped to the number of chunks; an empty index
// returns no hits without calling the embedder.
func (s *Store) Query(ctx context.Context, paperID, queryText string, topK int) ([]Hit, error) {
	ix, ok := s.live.Get(paperID)
	if !ok {
		return nil, fmt.Errorf("%s: %w", paperID, ErrNoIndex)
	}
	return s.QueryIndex(ctx, ix, queryText, topK)
}

// QueryIndex is Query against an index the caller already holds.
func (s *Store) QueryIndex(ctx context.Context, ix *Index, queryText string, topK int) ([]Hit, error) {
	if ix.Len() == 0 || topK <= 0 {
		return nil, nil
	}
	q, err := s.queryVector(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	return ix.Search(q, topK)
}

// queryVector memoises query embeddings: the same field query is issued
// against every paper in a run.
func (s *Store) queryVector(ctx context.Context, text string) ([]float32, error) {
	key := s.embedder.Model() + "\x00" + text
	if v, ok := s.queries.Get(key); ok {
		return v, nil
	}
	vecs, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vecs) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vecs))
	}
	s.queries.Add(key, vecs[0])
	return vecs[0], nil
}

// Forget drops the given papers from memory. With no IDs it drops all.
func (s *Store) Forget(paperIDs ...string) {
	if len(paperIDs) == 0 {
		s.live.Purge()
		return
	}
	for _, id := range paperIDs {
		s.live.Remove(id)
	}
}
