// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-extract/internal/report"
	"github.com/pdiddy/paper-extract/pkg/types"
)

func resultTable() *types.ResultTable {
	return &types.ResultTable{
		RunID:  "run-1",
		Fields: []string{"sample_size"},
		Rows: []types.ResultRow{{
			PaperID:   "smith2020",
			PaperName: "smith2020.pdf",
			Status:    types.RowOK,
			Results:   []types.ExtractionResult{{Status: types.ResultOK, Value: "120"}},
		}},
	}
}

func TestWriteResultsStdout(t *testing.T) {
	var out bytes.Buffer
	err := writeResults(&out, resultTable(), types.OutputConfig{Path: report.Stdout, Format: types.FormatCSV}, false)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "paper,sample_size,")
	assert.Contains(t, out.String(), "smith2020.pdf,120,")
}

func TestWriteResultsDryRunStdoutPrintsOverviewOnly(t *testing.T) {
	var out bytes.Buffer
	err := writeResults(&out, resultTable(), types.OutputConfig{Path: report.Stdout, Format: types.FormatCSV}, true)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "paper,sample_size,", "no encoded table")
	assert.Contains(t, out.String(), "smith2020.pdf")
	assert.Contains(t, out.String(), "Dry run:")
}

func TestWriteResultsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.json")
	output := types.OutputConfig{Path: path, Format: types.FormatJSON}

	var out bytes.Buffer
	require.NoError(t, writeResults(&out, resultTable(), output, true))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "dry run writes no file")

	out.Reset()
	require.NoError(t, writeResults(&out, resultTable(), output, false))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id": "run-1"`)
	assert.Contains(t, out.String(), "Results written to "+path)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, exitOK},
		{&exitError{code: exitPartial, err: errPartial}, exitPartial},
		{fmt.Errorf("%w: %w", types.ErrInterrupted, context.Canceled), exitInterrupted},
		{types.NewConfigError("fields", "empty"), exitFatal},
		{errors.New("boom"), exitFatal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), "%v", tt.err)
	}
}
