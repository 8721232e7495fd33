// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package index holds one vector index per paper and answers top-k
// similarity queries against it. There is no corpus-wide index: a query
// always names the paper it searches.
package index

import (
	"fmt"
	"math"
	"sort"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// Hit is one retrieved chunk with its cosine similarity to the query.
type Hit struct {
	Chunk types.Chunk `json:"chunk" yaml:"chunk"`
	Score float64     `json:"score" yaml:"score"`
}

// Index is the immutable vector index of a single paper.
type Index struct {
	PaperID        string
	Fingerprint    string
	EmbeddingModel string

	// Reused is set when the vectors came from the cache rather than the
	// embedder.
	Reused bool

	chunks []types.Chunk
	norms  []float64
}

func newIndex(paperID, fingerprint, model string, chunks []types.Chunk) *Index {
	ix := &Index{
		PaperID:        paperID,
		Fingerprint:    fingerprint,
		EmbeddingModel: model,
		chunks:         chunks,
		norms:          make([]float64, len(chunks)),
	}
	for i, c := range chunks {
		ix.norms[i] = norm(c.Vector)
	}
	return ix
}

// Len returns the number of chunks.
func (ix *Index) Len() int {
	return len(ix.chunks)
}

// Chunks returns the indexed chunks in sequence order.
func (ix *Index) Chunks() []types.Chunk {
	return ix.chunks
}

// Search ranks every chunk against q by cosine similarity, highest first,
// breaking ties by ascending chunk index, and returns at most topK hits.
func (ix *Index) Search(q []float32, topK int) ([]Hit, error) {
	if topK <= 0 || len(ix.chunks) == 0 {
		return nil, nil
	}
	qn := norm(q)
	hits := make([]Hit, len(ix.chunks))
	for i, c := range ix.chunks {
		if len(c.Vector) != len(q) {
			return nil, fmt.Errorf("query has %d dims, chunk %s has %d", len(q), c.ID(), len(c.Vector))
		}
		hits[i] = Hit{Chunk: c, Score: cosine(q, c.Vector, qn, ix.norms[i])}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Index < hits[j].Chunk.Index
	})
	return hits[:min(topK, len(hits))], nil
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func cosine(a, b []float32, na, nb float64) float64 {
	if na == 0 || nb == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (na * nb)
}
