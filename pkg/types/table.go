// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"strconv"
	"strings"
	"time"
)

// RowStatus summarises a paper's row.
type RowStatus string

const (
	RowOK      RowStatus = "ok"
	RowPartial RowStatus = "partial"
	RowFailed  RowStatus = "failed"
)

// Metadata columns appended after the field columns.
const (
	ColumnPaper          = "paper"
	ColumnStatus         = "status"
	ColumnConfidenceAvg  = "confidence_avg"
	ColumnProcessingTime = "processing_time_seconds"
	ColumnExtractedAt    = "extracted_at"
	ColumnWarnings       = "warnings"
)

// ResultRow is one paper's line in the result table. Results are aligned
// with ResultTable.Fields.
type ResultRow struct {
	PaperID   string             `json:"paper_id" yaml:"paper_id"`
	PaperName string             `json:"paper_name" yaml:"paper_name"`
	Status    RowStatus          `json:"status" yaml:"status"`
	Results   []ExtractionResult `json:"results" yaml:"results"`

	ConfidenceAvg  float64       `json:"confidence_avg" yaml:"confidence_avg"`
	ProcessingTime time.Duration `json:"processing_time" yaml:"processing_time"`
	ExtractedAt    time.Time     `json:"extracted_at" yaml:"extracted_at"`
	Warnings       []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Finalize derives Status, ConfidenceAvg, and ExtractedAt from Results.
func (r *ResultRow) Finalize() {
	var sum float64
	failed := 0
	var latest time.Time
	for _, res := range r.Results {
		sum += res.Confidence
		if res.Failed() {
			failed++
		}
		if res.ExtractedAt.After(latest) {
			latest = res.ExtractedAt
		}
	}
	if n := len(r.Results); n > 0 {
		r.ConfidenceAvg = sum / float64(n)
	}
	r.ExtractedAt = latest

	switch {
	case len(r.Results) > 0 && failed == len(r.Results):
		r.Status = RowFailed
	case failed > 0:
		r.Status = RowPartial
	default:
		r.Status = RowOK
	}
}

// ResultTable is the run's output: one row per paper in discovery order.
type ResultTable struct {
	RunID  string      `json:"run_id" yaml:"run_id"`
	Fields []string    `json:"fields" yaml:"fields"`
	Rows   []ResultRow `json:"rows" yaml:"rows"`
}

// Columns returns the header: paper, one column per field, then metadata.
func (t *ResultTable) Columns() []string {
	cols := make([]string, 0, len(t.Fields)+6)
	cols = append(cols, ColumnPaper)
	cols = append(cols, t.Fields...)
	return append(cols,
		ColumnStatus, ColumnConfidenceAvg, ColumnProcessingTime,
		ColumnExtractedAt, ColumnWarnings)
}

// Records renders every row as strings aligned with Columns.
func (t *ResultTable) Records() [][]string {
	records := make([][]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make([]string, 0, len(t.Fields)+6)
		rec = append(rec, row.PaperName)
		for i := range t.Fields {
			cell := ""
			if i < len(row.Results) {
				cell = row.Results[i].Cell()
			}
			rec = append(rec, cell)
		}
		extractedAt := ""
		if !row.ExtractedAt.IsZero() {
			extractedAt = row.ExtractedAt.UTC().Format(time.RFC3339)
		}
		rec = append(rec,
			string(row.Status),
			strconv.FormatFloat(row.ConfidenceAvg, 'f', 2, 64),
			strconv.FormatFloat(row.ProcessingTime.Seconds(), 'f', 2, 64),
			extractedAt,
			strings.Join(row.Warnings, "; "),
		)
		records = append(records, rec)
	}
	return records
}
