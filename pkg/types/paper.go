// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// PaperStatus tracks how far a paper has progressed through the pipeline.
type PaperStatus string

const (
	PaperUnprocessed PaperStatus = "unprocessed"
	PaperIndexed     PaperStatus = "indexed"
	PaperExtracted   PaperStatus = "extracted"
	PaperFailed      PaperStatus = "failed"
)

// PageSeparator joins page texts into the single text a paper is chunked from.
const PageSeparator = "\n\n"

// Page is the extracted text of one page of a paper.
type Page struct {
	// Number is the 1-based page number.
	Number int `json:"number" yaml:"number"`

	// Text is the page's plain text in reading order.
	Text string `json:"text" yaml:"text"`
}

// Paper is one document in the extraction corpus.
type Paper struct {
	// ID is a slug derived from the file name (e.g. "smith2020"). It is
	// unique within a run and keys every cached artifact of the paper.
	ID string `json:"id" yaml:"id"`

	// Name is the source file name as discovered (e.g. "smith2020.pdf").
	Name string `json:"name" yaml:"name"`

	// SourcePath is the local filesystem path the text was loaded from.
	SourcePath string `json:"source_path" yaml:"source_path"`

	// Pages holds the extracted text ordered by page.
	Pages []Page `json:"pages,omitempty" yaml:"pages,omitempty"`

	// ContentHash is the hex SHA-256 of Text(). It changes whenever the
	// extracted text changes and invalidates every fingerprint built on it.
	ContentHash string `json:"content_hash" yaml:"content_hash"`

	// Status is the last persisted processing state.
	Status PaperStatus `json:"status" yaml:"status"`

	// LoadError is set when the source file could not be read. The paper
	// still gets a row, with every field skipped.
	LoadError string `json:"-" yaml:"-"`
}

// Text returns the paper's pages joined by PageSeparator.
func (p Paper) Text() string {
	parts := make([]string, len(p.Pages))
	for i, pg := range p.Pages {
		parts[i] = pg.Text
	}
	return strings.Join(parts, PageSeparator)
}

// HashContent computes ContentHash from the current pages.
func (p *Paper) HashContent() string {
	sum := sha256.Sum256([]byte(p.Text()))
	p.ContentHash = hex.EncodeToString(sum[:])
	return p.ContentHash
}

// IsEmpty reports whether the paper has no extractable text.
func (p Paper) IsEmpty() bool {
	for _, pg := range p.Pages {
		if strings.TrimSpace(pg.Text) != "" {
			return false
		}
	}
	return true
}
