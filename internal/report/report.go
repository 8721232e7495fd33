// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report writes the result table as CSV, JSON, or YAML. Files are
// written to a temporary file in the target directory and renamed into
// place, so readers never see a partial table.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// Stdout is the output path that writes the table to standard output.
const Stdout = "-"

// Export is the document written for JSON and YAML output.
type Export struct {
	RunID  string        `json:"run_id" yaml:"run_id"`
	Fields []string      `json:"fields" yaml:"fields"`
	Papers []ExportPaper `json:"papers" yaml:"papers"`
}

// ExportPaper is one row of the table with its field results in field order.
type ExportPaper struct {
	Paper                 string        `json:"paper" yaml:"paper"`
	PaperID               string        `json:"paper_id" yaml:"paper_id"`
	Status                string        `json:"status" yaml:"status"`
	ConfidenceAvg         float64       `json:"confidence_avg" yaml:"confidence_avg"`
	ProcessingTimeSeconds float64       `json:"processing_time_seconds" yaml:"processing_time_seconds"`
	ExtractedAt           string        `json:"extracted_at,omitempty" yaml:"extracted_at,omitempty"`
	Warnings              []string      `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Fields                []ExportField `json:"fields" yaml:"fields"`
}

// ExportField is one field result with its audit trail.
type ExportField struct {
	Name             string  `json:"name" yaml:"name"`
	Value            string  `json:"value" yaml:"value"`
	Cell             string  `json:"cell" yaml:"cell"`
	Status           string  `json:"status" yaml:"status"`
	Found            bool    `json:"found" yaml:"found"`
	Confidence       float64 `json:"confidence" yaml:"confidence"`
	ConfidenceSource string  `json:"confidence_source,omitempty" yaml:"confidence_source,omitempty"`
	Explanation      string  `json:"explanation,omitempty" yaml:"explanation,omitempty"`
	Evidence         string  `json:"evidence,omitempty" yaml:"evidence,omitempty"`
	Error            string  `json:"error,omitempty" yaml:"error,omitempty"`
	SupportingChunks []int   `json:"supporting_chunks" yaml:"supporting_chunks,flow"`
	LLMModel         string  `json:"llm_model,omitempty" yaml:"llm_model,omitempty"`
	EmbeddingModel   string  `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
	Fingerprint      string  `json:"fingerprint,omitempty" yaml:"fingerprint,omitempty"`
	Cached           bool    `json:"cached" yaml:"cached"`
}

// FormatFor returns format, or infers it from the path's extension when
// format is empty. CSV is the default.
func FormatFor(path, format string) string {
	if format != "" {
		return strings.ToLower(format)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return types.FormatJSON
	case ".yaml", ".yml":
		return types.FormatYAML
	}
	return types.FormatCSV
}

// Write renders table to path in format. Path "-" writes to w instead.
func Write(table *types.ResultTable, path, format string, w io.Writer) error {
	format = FormatFor(path, format)
	if path == Stdout {
		return Encode(w, table, format)
	}
	return writeAtomic(path, func(f io.Writer) error {
		return Encode(f, table, format)
	})
}

// Encode renders table to w in format.
func Encode(w io.Writer, table *types.ResultTable, format string) error {
	switch format {
	case types.FormatCSV:
		return encodeCSV(w, table)
	case types.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(NewExport(table)); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	case types.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(NewExport(table)); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	}
	return types.NewConfigError("output.format", "unsupported format %q", format)
}

func encodeCSV(w io.Writer, table *types.ResultTable) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Columns()); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	if err := cw.WriteAll(table.Records()); err != nil {
		return fmt.Errorf("writing CSV rows: %w", err)
	}
	return nil
}

// NewExport converts table into its JSON/YAML document.
func NewExport(table *types.ResultTable) Export {
	out := Export{RunID: table.RunID, Fields: table.Fields, Papers: make([]ExportPaper, len(table.Rows))}
	for i, row := range table.Rows {
		p := ExportPaper{
			Paper:                 row.PaperName,
			PaperID:               row.PaperID,
			Status:                string(row.Status),
			ConfidenceAvg:         round(row.ConfidenceAvg),
			ProcessingTimeSeconds: round(row.ProcessingTime.Seconds()),
			Warnings:              row.Warnings,
			Fields:                make([]ExportField, len(row.Results)),
		}
		if !row.ExtractedAt.IsZero() {
			p.ExtractedAt = row.ExtractedAt.UTC().Format(time.RFC3339)
		}
		for j, r := range row.Results {
			chunks := r.SupportingChunks
			if chunks == nil {
				chunks = []int{}
			}
			p.Fields[j] = ExportField{
				Name:             r.FieldName,
				Value:            r.Value,
				Cell:             r.Cell(),
				Status:           string(r.Status),
				Found:            r.Found,
				Confidence:       r.Confidence,
				ConfidenceSource: string(r.ConfidenceSource),
				Explanation:      r.Explanation,
				Evidence:         r.Evidence,
				Error:            r.Error,
				SupportingChunks: chunks,
				LLMModel:         r.LLMModel,
				EmbeddingModel:   r.EmbeddingModel,
				Fingerprint:      r.Fingerprint,
				Cached:           r.Cached,
			}
		}
		out.Papers[i] = p
	}
	return out
}

func round(f float64) float64 {
	return float64(int64(f*100+0.5)) / 100
}

// writeAtomic writes to a temp file beside path and renames it over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp output: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp output: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod temp output: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp output: %w", err)
	}
	return nil
}
