// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package index

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-extract/internal/store"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// letterEmbedder maps text to a 26-dim letter histogram so similarity is
// predictable.
type letterEmbedder struct {
	mu    sync.Mutex
	calls int
	texts int
	err   error
}

func (e *letterEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	e.texts += len(texts)
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 26)
		for _, r := range strings.ToLower(t) {
			if r >= 'a' && r <= 'z' {
				v[r-'a']++
			}
		}
		out[i] = v
	}
	return out, nil
}

func (e *letterEmbedder) Model() string { return "letters" }

func (e *letterEmbedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func chunksOf(paperID string, texts ...string) []types.Chunk {
	out := make([]types.Chunk, len(texts))
	for i, t := range texts {
		out[i] = types.Chunk{PaperID: paperID, Index: i, Start: i * 100, End: i*100 + len(t), Page: 1, Text: t}
	}
	return out
}

func newTestStore(t *testing.T, e *letterEmbedder, persist *store.Store, batch int) *Store {
	t.Helper()
	s, err := New(e, persist, Options{BatchSize: batch})
	require.NoError(t, err)
	return s
}

func openPersist(t *testing.T) *store.Store {
	t.Helper()
	p, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestSearchRankingAndTies(t *testing.T) {
	ix := newIndex("p", "fp", "m", []types.Chunk{
		{Index: 0, Vector: []float32{0, 1}},
		{Index: 1, Vector: []float32{1, 0}},
		{Index: 2, Vector: []float32{1, 0}},
		{Index: 3, Vector: []float32{1, 1}},
		{Index: 4, Vector: []float32{0, 0}},
	})

	hits, err := ix.Search([]float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, 1, hits[0].Chunk.Index)
	assert.Equal(t, 2, hits[1].Chunk.Index)
	assert.Equal(t, 3, hits[2].Chunk.Index)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.InDelta(t, 0.7071, hits[2].Score, 1e-4)

	all, err := ix.Search([]float32{1, 0}, 50)
	require.NoError(t, err)
	assert.Len(t, all, 5)
	assert.Equal(t, 0.0, all[4].Score)

	_, err = ix.Search([]float32{1, 0, 0}, 2)
	assert.Error(t, err)
}

func TestBuildPersistsAndReuses(t *testing.T) {
	persist := openPersist(t)
	paper := types.Paper{ID: "smith2020"}
	chunks := chunksOf("smith2020", "randomized trial", "cohort of adults", "results table", "discussion", "limitations")

	e := &letterEmbedder{}
	s := newTestStore(t, e, persist, 2)
	ix, err := s.Build(context.Background(), paper, chunks, "fp-1", types.RunOptions{})
	require.NoError(t, err)
	assert.False(t, ix.Reused)
	assert.Equal(t, 5, ix.Len())
	assert.Equal(t, 3, e.Calls(), "five chunks in batches of two")
	for _, c := range ix.Chunks() {
		assert.Len(t, c.Vector, 26)
	}
	assert.Nil(t, chunks[0].Vector, "input chunks are not mutated")

	// A new process with an empty memory cache reuses the persisted vectors.
	e2 := &letterEmbedder{}
	s2 := newTestStore(t, e2, persist, 2)
	ix2, err := s2.Build(context.Background(), paper, chunks, "fp-1", types.RunOptions{})
	require.NoError(t, err)
	assert.True(t, ix2.Reused)
	assert.Equal(t, 0, e2.Calls())
	assert.Equal(t, ix.Chunks(), ix2.Chunks())
}

func TestBuildForceAndStale(t *testing.T) {
	persist := openPersist(t)
	paper := types.Paper{ID: "p"}
	chunks := chunksOf("p", "alpha", "beta")
	e := &letterEmbedder{}
	s := newTestStore(t, e, persist, 32)

	_, err := s.Build(context.Background(), paper, chunks, "fp-1", types.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, e.Calls())

	_, err = s.Build(context.Background(), paper, chunks, "fp-1", types.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, e.Calls(), "fresh index reused from memory")

	_, err = s.Build(context.Background(), paper, chunks, "fp-1", types.RunOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 2, e.Calls(), "force re-embeds")

	_, err = s.Build(context.Background(), paper, chunks, "fp-2", types.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, e.Calls(), "fingerprint change re-embeds")

	rec, err := persist.GetIndex(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "fp-2", rec.Fingerprint)
}

func TestBuildDryRunPersistsNothing(t *testing.T) {
	persist := openPersist(t)
	e := &letterEmbedder{}
	s := newTestStore(t, e, persist, 32)

	ix, err := s.Build(context.Background(), types.Paper{ID: "p"}, chunksOf("p", "alpha"), "fp", types.RunOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, ix.Len())

	_, err = persist.GetIndex(context.Background(), "p")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuildEmptyPaper(t *testing.T) {
	e := &letterEmbedder{}
	s := newTestStore(t, e, openPersist(t), 32)

	ix, err := s.Build(context.Background(), types.Paper{ID: "empty"}, nil, "fp", types.RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())

	hits, err := s.Query(context.Background(), "empty", "Regarding 'x': y", 3)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.Equal(t, 0, e.Calls())
}

func TestBuildEmbedderFailure(t *testing.T) {
	e := &letterEmbedder{err: fmt.Errorf("embed: %w", types.ErrBackendUnavailable)}
	persist := openPersist(t)
	s := newTestStore(t, e, persist, 32)

	_, err := s.Build(context.Background(), types.Paper{ID: "p"}, chunksOf("p", "alpha"), "fp", types.RunOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrBackendUnavailable)

	_, err = persist.GetIndex(context.Background(), "p")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestBuildCancelledPersistsNothing(t *testing.T) {
	persist := openPersist(t)
	s := newTestStore(t, &letterEmbedder{}, persist, 32)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Build(ctx, types.Paper{ID: "p"}, chunksOf("p", "alpha"), "fp", types.RunOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	_, err = persist.GetIndex(context.Background(), "p")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestQueryTopKAndMemo(t *testing.T) {
	e := &letterEmbedder{}
	s := newTestStore(t, e, nil, 32)
	chunks := chunksOf("p", "zzzz", "aaaa", "abab", "bbbb")
	_, err := s.Build(context.Background(), types.Paper{ID: "p"}, chunks, "fp", types.RunOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, e.Calls())

	hits, err := s.Query(context.Background(), "p", "aaa", 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, 1, hits[0].Chunk.Index)
	assert.Equal(t, 2, hits[1].Chunk.Index)
	assert.Equal(t, 2, e.Calls())

	hits, err = s.Query(context.Background(), "p", "aaa", 10)
	require.NoError(t, err)
	assert.Len(t, hits, 4, "topK clamped to chunk count")
	assert.Equal(t, 2, e.Calls(), "query embedding memoised")
}

func TestQueryIsolation(t *testing.T) {
	e := &letterEmbedder{}
	s := newTestStore(t, e, nil, 32)
	_, err := s.Build(context.Background(), types.Paper{ID: "a"}, chunksOf("a", "only in a"), "fa", types.RunOptions{})
	require.NoError(t, err)
	_, err = s.Build(context.Background(), types.Paper{ID: "b"}, chunksOf("b", "only in b"), "fb", types.RunOptions{})
	require.NoError(t, err)

	hits, err := s.Query(context.Background(), "a", "only", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "a", hits[0].Chunk.PaperID)

	_, err = s.Query(context.Background(), "c", "only", 5)
	assert.ErrorIs(t, err, ErrNoIndex)

	s.Forget("a")
	_, err = s.Query(context.Background(), "a", "only", 5)
	assert.ErrorIs(t, err, ErrNoIndex)
}

func TestBuildRebuildsCorruptIndex(t *testing.T) {
	persist := openPersist(t)
	ctx := context.Background()
	chunks := chunksOf("p", "alpha", "beta")

	require.NoError(t, persist.PutIndex(ctx, store.IndexRecord{
		PaperID: "p", Fingerprint: "fp", EmbeddingModel: "letters",
		Chunks: []types.Chunk{{PaperID: "p", Index: 5, Text: "x", Vector: []float32{1}}},
	}))

	e := &letterEmbedder{}
	s := newTestStore(t, e, persist, 32)
	ix, err := s.Build(ctx, types.Paper{ID: "p"}, chunks, "fp", types.RunOptions{})
	require.NoError(t, err)
	assert.False(t, ix.Reused)
	assert.Equal(t, 1, e.Calls())
	assert.Equal(t, 2, ix.Len())
}
