// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"time"
)

// ResultStatus classifies the outcome of one (paper, field) extraction.
type ResultStatus string

const (
	// ResultOK means the model answered and the answer parsed.
	ResultOK ResultStatus = "ok"
	// ResultNotFound means the model reported the field absent from the context.
	ResultNotFound ResultStatus = "not_found"
	// ResultNoContext means retrieval returned nothing (empty paper).
	ResultNoContext ResultStatus = "no_context"
	// ResultParseError means the model output could not be parsed.
	ResultParseError ResultStatus = "parse_error"
	// ResultExtractionError means the LLM backend failed after retries.
	ResultExtractionError ResultStatus = "extraction_error"
	// ResultSkipped means extraction never ran, see ExtractionResult.Error.
	ResultSkipped ResultStatus = "skipped"
)

// SkipIndexingFailed is the Error of every result skipped because the
// paper's index could not be built.
const SkipIndexingFailed = "indexing_failed"

// SkipLoadFailed is the Error of every result skipped because the paper's
// source file could not be read.
const SkipLoadFailed = "load_failed"

// ConfidenceSource records where a confidence score came from.
type ConfidenceSource string

const (
	ConfidenceModel   ConfidenceSource = "model-reported"
	ConfidenceDerived ConfidenceSource = "derived"
)

// ExtractionResult is the answer for one field of one paper.
type ExtractionResult struct {
	PaperID   string `json:"paper_id" yaml:"paper_id"`
	FieldName string `json:"field_name" yaml:"field_name"`

	// Value is the extracted answer. Structured answers are kept as compact JSON.
	Value string `json:"value" yaml:"value"`

	// Found is the model's own judgement of whether the field is present.
	Found bool `json:"found" yaml:"found"`

	Explanation string `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Evidence    string `json:"evidence,omitempty" yaml:"evidence,omitempty"`

	// Confidence is always within [0,1].
	Confidence       float64          `json:"confidence" yaml:"confidence"`
	ConfidenceSource ConfidenceSource `json:"confidence_source,omitempty" yaml:"confidence_source,omitempty"`

	Status ResultStatus `json:"status" yaml:"status"`

	// Error carries the failure reason for error and skipped statuses.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// SupportingChunks lists the indices of the chunks sent to the model,
	// best match first.
	SupportingChunks []int `json:"supporting_chunks" yaml:"supporting_chunks"`

	ExtractedAt    time.Time `json:"extracted_at" yaml:"extracted_at"`
	EmbeddingModel string    `json:"embedding_model" yaml:"embedding_model"`
	LLMModel       string    `json:"llm_model" yaml:"llm_model"`

	// Fingerprint is the cache fingerprint the result was computed under.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	// Cached is set when the result was served from the cache in this run.
	// It is never persisted.
	Cached bool `json:"-" yaml:"-"`
}

// Failed reports whether the result is an error or skip.
func (r ExtractionResult) Failed() bool {
	switch r.Status {
	case ResultParseError, ResultExtractionError, ResultSkipped:
		return true
	}
	return false
}

// Cacheable reports whether the result may be persisted and reused.
// Failures are always retried on the next run.
func (r ExtractionResult) Cacheable() bool {
	return !r.Failed() && r.Status != ""
}

// Cell renders the result as a single table cell.
func (r ExtractionResult) Cell() string {
	switch r.Status {
	case ResultOK:
		return r.Value
	case ResultNotFound:
		return "NOT_FOUND"
	case ResultNoContext:
		return "NO_CONTEXT"
	case ResultParseError:
		return "PARSE_ERROR"
	case ResultExtractionError:
		return "EXTRACTION_ERROR"
	case ResultSkipped:
		return fmt.Sprintf("SKIPPED: %s", r.Error)
	}
	return ""
}

// SkippedResult builds the placeholder for a field that never ran.
func SkippedResult(paperID, field, reason string) ExtractionResult {
	return ExtractionResult{
		PaperID:   paperID,
		FieldName: field,
		Status:    ResultSkipped,
		Error:     reason,
	}
}
