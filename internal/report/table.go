// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/pdiddy/paper-extract/pkg/types"
)

var statusColor = map[types.RowStatus]*color.Color{
	types.RowOK:      color.New(color.FgGreen),
	types.RowPartial: color.New(color.FgYellow),
	types.RowFailed:  color.New(color.FgRed),
}

// PrintTable writes a fixed-width overview of table to w: one line per
// paper with its status, mean confidence, and time, followed by the cell of
// every field that did not produce a value.
func PrintTable(w io.Writer, table *types.ResultTable) {
	if len(table.Rows) == 0 {
		fmt.Fprintln(w, "No papers processed.")
		return
	}

	fmt.Fprintf(w, "%-30s  %-8s  %-10s  %-8s  %s\n", "Paper", "Status", "Confidence", "Time", "Issues")
	fmt.Fprintln(w, strings.Repeat("-", 90))
	for _, row := range table.Rows {
		status := fmt.Sprintf("%-8s", row.Status)
		if c, ok := statusColor[row.Status]; ok {
			status = c.Sprint(status)
		}
		fmt.Fprintf(w, "%-30s  %s  %-10.2f  %-8s  %s\n",
			truncate(row.PaperName, 30), status, row.ConfidenceAvg,
			fmt.Sprintf("%.1fs", row.ProcessingTime.Seconds()), issues(row))
	}
	fmt.Fprintf(w, "\n%d papers, %d fields\n", len(table.Rows), len(table.Fields))
}

func issues(row types.ResultRow) string {
	var out []string
	for _, r := range row.Results {
		if r.Status != types.ResultOK {
			out = append(out, r.FieldName+"="+r.Cell())
		}
	}
	return strings.Join(out, ", ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
