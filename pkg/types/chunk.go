// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "fmt"

// Chunk is a bounded segment of a paper's text, the unit of embedding and
// retrieval. A chunk belongs to exactly one paper and never changes once
// created.
type Chunk struct {
	// PaperID identifies the owning paper.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// Index is the zero-based sequence number within the paper.
	Index int `json:"index" yaml:"index"`

	// Start and End are rune offsets of the chunk span in Paper.Text().
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`

	// Page is the page on which the chunk starts.
	Page int `json:"page" yaml:"page"`

	// Text is the chunk content with surrounding whitespace trimmed.
	Text string `json:"text" yaml:"text"`

	// Vector is the embedding, nil until the chunk has been indexed.
	Vector []float32 `json:"-" yaml:"-"`
}

// ID returns the stable identifier "<paper>#<index>".
func (c Chunk) ID() string {
	return fmt.Sprintf("%s#%d", c.PaperID, c.Index)
}
