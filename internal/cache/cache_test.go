// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"database/sql"
	"sync"
	"sync/atomic"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-extract/internal/store"
	"github.com/pdiddy/paper-extract/pkg/types"
)

var (
	chunking  = types.ChunkingConfig{Size: 500, Overlap: 50}
	embedding = types.BackendConfig{Provider: "ollama", Model: "nomic-embed-text"}
	params    = FieldParams{LLMModel: "qwen2:7b-instruct", LLMProvider: "ollama", Temperature: 0.1, MaxTokens: 500, TopK: 3, PromptVersion: "v1"}
	field     = types.FieldSpec{Name: "sample_size", Description: "Number of participants."}
)

func TestIndexFingerprint(t *testing.T) {
	base := IndexFingerprint("hash", chunking, embedding)
	assert.Equal(t, base, IndexFingerprint("hash", chunking, embedding), "deterministic")
	assert.Len(t, base, 64)

	assert.NotEqual(t, base, IndexFingerprint("other", chunking, embedding))
	assert.NotEqual(t, base, IndexFingerprint("hash", types.ChunkingConfig{Size: 500, Overlap: 60}, embedding))
	assert.NotEqual(t, base, IndexFingerprint("hash", types.ChunkingConfig{Size: 400, Overlap: 50}, embedding))
	assert.NotEqual(t, base, IndexFingerprint("hash", chunking, types.BackendConfig{Provider: "ollama", Model: "mxbai-embed-large"}))
}

func TestFieldFingerprint(t *testing.T) {
	base := FieldFingerprint("idx", field, params)
	assert.Equal(t, base, FieldFingerprint("idx", field, params))

	changed := field
	changed.Description = "Total number of enrolled participants."
	assert.NotEqual(t, base, FieldFingerprint("idx", changed, params), "description change invalidates")

	assert.NotEqual(t, base, FieldFingerprint("idx2", field, params), "index change invalidates")

	p := params
	p.LLMModel = "qwen2:7b-instruct-q4"
	assert.NotEqual(t, base, FieldFingerprint("idx", field, p), "model version invalidates")

	p = params
	p.TopK = 5
	assert.NotEqual(t, base, FieldFingerprint("idx", field, p))
}

func TestHashIsUnambiguous(t *testing.T) {
	assert.NotEqual(t, hash("ab", "c"), hash("a", "bc"))
}

func TestFieldParamsFrom(t *testing.T) {
	cfg := types.Config{
		LLM:       types.BackendConfig{Provider: "ollama", Model: "m", Temperature: 0.1, MaxTokens: 500},
		Retrieval: types.RetrievalConfig{TopK: 3, MaxPromptChars: 8000},
	}
	p := FieldParamsFrom(cfg, "m|fallback", "extract/v1")
	assert.Equal(t, "m|fallback", p.LLMModel)
	assert.Equal(t, 3, p.TopK)
	assert.Equal(t, 8000, p.MaxPromptChars)
	assert.Equal(t, "extract/v1", p.PromptVersion)
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type counter struct {
	n      atomic.Int32
	status types.ResultStatus
	value  string
}

func (c *counter) compute(context.Context) types.ExtractionResult {
	c.n.Add(1)
	status := c.status
	if status == "" {
		status = types.ResultOK
	}
	return types.ExtractionResult{Status: status, Value: c.value, Confidence: 0.9}
}

func TestResolveStateMachine(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	c := NewCoordinator(st, types.RunOptions{}, nil)
	calc := &counter{value: "120"}

	_, state := c.Lookup(ctx, "p", field.Name, "fp1")
	assert.Equal(t, Absent, state)

	r := c.Resolve(ctx, "p", field, "fp1", calc.compute)
	assert.Equal(t, "120", r.Value)
	assert.False(t, r.Cached)
	assert.Equal(t, "fp1", r.Fingerprint)
	assert.Equal(t, "p", r.PaperID)
	assert.Equal(t, int32(1), calc.n.Load())

	r = c.Resolve(ctx, "p", field, "fp1", calc.compute)
	assert.True(t, r.Cached)
	assert.Equal(t, "120", r.Value)
	assert.Equal(t, int32(1), calc.n.Load(), "fresh entry reused")

	_, state = c.Lookup(ctx, "p", field.Name, "fp2")
	assert.Equal(t, Stale, state)

	calc.value = "130"
	r = c.Resolve(ctx, "p", field, "fp2", calc.compute)
	assert.False(t, r.Cached)
	assert.Equal(t, "130", r.Value)
	assert.Equal(t, int32(2), calc.n.Load())

	cached, state := c.Lookup(ctx, "p", field.Name, "fp2")
	assert.Equal(t, Fresh, state)
	assert.Equal(t, "130", cached.Value)
}

func TestResolveForce(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	calc := &counter{value: "a"}

	NewCoordinator(st, types.RunOptions{}, nil).Resolve(ctx, "p", field, "fp", calc.compute)

	calc.value = "b"
	r := NewCoordinator(st, types.RunOptions{Force: true}, nil).Resolve(ctx, "p", field, "fp", calc.compute)
	assert.Equal(t, "b", r.Value)
	assert.Equal(t, int32(2), calc.n.Load())

	cached, state := NewCoordinator(st, types.RunOptions{}, nil).Lookup(ctx, "p", field.Name, "fp")
	assert.Equal(t, Fresh, state)
	assert.Equal(t, "b", cached.Value, "force overwrites")
}

func TestResolveForceFailureDropsOldEntry(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	calc := &counter{value: "a"}

	NewCoordinator(st, types.RunOptions{}, nil).Resolve(ctx, "p", field, "fp", calc.compute)

	calc.status = types.ResultExtractionError
	r := NewCoordinator(st, types.RunOptions{Force: true}, nil).Resolve(ctx, "p", field, "fp", calc.compute)
	assert.Equal(t, types.ResultExtractionError, r.Status)

	_, state := NewCoordinator(st, types.RunOptions{}, nil).Lookup(ctx, "p", field.Name, "fp")
	assert.Equal(t, Absent, state, "old value is not served after a failed forced recompute")

	calc.status = types.ResultOK
	calc.value = "b"
	r = NewCoordinator(st, types.RunOptions{}, nil).Resolve(ctx, "p", field, "fp", calc.compute)
	assert.False(t, r.Cached)
	assert.Equal(t, "b", r.Value)
	assert.Equal(t, int32(3), calc.n.Load())
}

func TestResolveFailureKeepsEntryWithoutForce(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	calc := &counter{value: "a"}
	c := NewCoordinator(st, types.RunOptions{}, nil)

	c.Resolve(ctx, "p", field, "fp1", calc.compute)
	calc.status = types.ResultParseError
	c.Resolve(ctx, "p", field, "fp2", calc.compute)

	cached, err := st.GetExtraction(ctx, "p", field.Name)
	require.NoError(t, err)
	assert.Equal(t, "a", cached.Value)
	assert.Equal(t, "fp1", cached.Fingerprint)
}

func TestResolveDryRunPersistsNothing(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	c := NewCoordinator(st, types.RunOptions{DryRun: true}, nil)
	calc := &counter{value: "x"}

	c.PutPaper(ctx, types.Paper{ID: "p", Name: "p.pdf"})
	c.Resolve(ctx, "p", field, "fp", calc.compute)
	c.Resolve(ctx, "p", field, "fp", calc.compute)
	assert.Equal(t, int32(2), calc.n.Load())

	_, err := st.GetExtraction(ctx, "p", field.Name)
	assert.ErrorIs(t, err, store.ErrNotFound)
	papers, err := st.ListPapers(ctx)
	require.NoError(t, err)
	assert.Empty(t, papers)
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	for _, status := range []types.ResultStatus{types.ResultParseError, types.ResultExtractionError, types.ResultSkipped} {
		t.Run(string(status), func(t *testing.T) {
			st := openStore(t)
			c := NewCoordinator(st, types.RunOptions{}, nil)
			calc := &counter{status: status}

			c.Resolve(context.Background(), "p", field, "fp", calc.compute)
			c.Resolve(context.Background(), "p", field, "fp", calc.compute)
			assert.Equal(t, int32(2), calc.n.Load(), "failures are recomputed")
		})
	}
}

func TestResolveCachesNotFoundAndNoContext(t *testing.T) {
	for _, status := range []types.ResultStatus{types.ResultNotFound, types.ResultNoContext} {
		t.Run(string(status), func(t *testing.T) {
			c := NewCoordinator(openStore(t), types.RunOptions{}, nil)
			calc := &counter{status: status}
			c.Resolve(context.Background(), "p", field, "fp", calc.compute)
			r := c.Resolve(context.Background(), "p", field, "fp", calc.compute)
			assert.True(t, r.Cached)
			assert.Equal(t, int32(1), calc.n.Load())
		})
	}
}

func TestResolveCancelledContextNotCached(t *testing.T) {
	st := openStore(t)
	c := NewCoordinator(st, types.RunOptions{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	c.Resolve(ctx, "p", field, "fp", func(context.Context) types.ExtractionResult {
		cancel()
		return types.ExtractionResult{Status: types.ResultOK, Value: "late"}
	})

	_, err := st.GetExtraction(context.Background(), "p", field.Name)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestResolveSerialisesSameKey(t *testing.T) {
	c := NewCoordinator(openStore(t), types.RunOptions{}, nil)
	calc := &counter{value: "v"}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Resolve(context.Background(), "p", field, "fp", calc.compute)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calc.n.Load())
}

func TestLookupCorruptIsRecomputed(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	c := NewCoordinator(st, types.RunOptions{}, nil)
	calc := &counter{value: "good"}
	c.Resolve(ctx, "p", field, "fp", calc.compute)

	db, err := sql.Open("sqlite3", st.Path())
	require.NoError(t, err)
	defer db.Close()
	_, err = db.Exec(`UPDATE extractions SET payload = '{"broken' WHERE paper_id = 'p'`)
	require.NoError(t, err)

	_, state := c.Lookup(ctx, "p", field.Name, "fp")
	assert.Equal(t, Corrupt, state)

	r := c.Resolve(ctx, "p", field, "fp", calc.compute)
	assert.False(t, r.Cached)
	assert.Equal(t, int32(2), calc.n.Load())

	_, state = c.Lookup(ctx, "p", field.Name, "fp")
	assert.Equal(t, Fresh, state, "recomputed entry replaces the corrupt one")
}

func TestClearScopes(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	c := NewCoordinator(st, types.RunOptions{}, nil)
	calc := &counter{value: "v"}
	for _, id := range []string{"a", "b", "c"} {
		c.PutPaper(ctx, types.Paper{ID: id, Name: id})
		c.Resolve(ctx, id, field, "fp", calc.compute)
	}

	require.NoError(t, c.Clear(ctx, Scope{}))
	papers, _ := st.ListPapers(ctx)
	assert.Len(t, papers, 3, "empty scope clears nothing")

	require.NoError(t, c.Clear(ctx, Scope{PaperIDs: []string{"a"}}))
	_, state := c.Lookup(ctx, "a", field.Name, "fp")
	assert.Equal(t, Absent, state)
	_, state = c.Lookup(ctx, "b", field.Name, "fp")
	assert.Equal(t, Fresh, state)

	require.NoError(t, NewCoordinator(st, types.RunOptions{DryRun: true}, nil).Clear(ctx, Scope{All: true}))
	_, state = c.Lookup(ctx, "b", field.Name, "fp")
	assert.Equal(t, Fresh, state, "dry run clears nothing")

	require.NoError(t, c.Clear(ctx, Scope{All: true}))
	papers, _ = st.ListPapers(ctx)
	assert.Empty(t, papers)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "absent", Absent.String())
	assert.Equal(t, "fresh", Fresh.String())
	assert.Equal(t, "stale", Stale.String())
	assert.Equal(t, "corrupt", Corrupt.String())
}
