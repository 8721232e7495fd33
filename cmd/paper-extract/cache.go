// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/cache"
	"github.com/pdiddy/paper-extract/internal/store"
	"github.com/pdiddy/paper-extract/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the index and extraction cache",
	Long: `Cache manages the SQLite cache under cache_dir that holds each paper's
index and field answers, along with the run history.`,
}

// --- clear subcommand ---

var cacheClearCmd = &cobra.Command{
	Use:   "clear [--all | paper-ids...]",
	Short: "Delete cached indices and answers",
	Long: `Clear deletes everything cached for the named papers, or for every
paper with --all. Run history is kept.`,
	RunE: runCacheClear,
}

func runCacheClear(cmd *cobra.Command, args []string) error {
	all, _ := cmd.Flags().GetBool("all")
	switch {
	case all && len(args) > 0:
		return types.NewConfigError("cache clear", "--all takes no paper IDs")
	case !all && len(args) == 0:
		return types.NewConfigError("cache clear", "name the papers to clear or pass --all")
	}

	st, err := store.Open(loaded.Config.CacheDir)
	if err != nil {
		return err
	}
	defer st.Close()

	coord := cache.NewCoordinator(st, types.RunOptions{}, logger)
	if err := coord.Clear(cmd.Context(), cache.Scope{All: all, PaperIDs: args}); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if all {
		fmt.Fprintf(out, "Cleared cache in %s\n", st.Path())
	} else {
		fmt.Fprintf(out, "Cleared %d paper(s): %s\n", len(args), strings.Join(args, ", "))
	}
	logger.Info("cache cleared", zap.Bool("all", all), zap.Strings("papers", args))
	return nil
}

// --- status subcommand ---

var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List cached papers and recent runs",
	RunE:  runCacheStatus,
}

func runCacheStatus(cmd *cobra.Command, args []string) error {
	runs, _ := cmd.Flags().GetInt("runs")

	st, err := store.Open(loaded.Config.CacheDir)
	if err != nil {
		return err
	}
	defer st.Close()

	papers, err := st.ListPapers(cmd.Context())
	if err != nil {
		return err
	}
	history, err := st.ListRuns(cmd.Context(), runs)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Cache: %s\n\n", st.Path())
	printPapers(out, papers)
	if runs > 0 {
		fmt.Fprintln(out)
		printRuns(out, history)
	}
	return nil
}

func printPapers(w io.Writer, papers []store.PaperSummary) {
	if len(papers) == 0 {
		fmt.Fprintln(w, "No cached papers.")
		return
	}
	fmt.Fprintf(w, "%-30s  %-12s  %-6s  %-6s  %s\n", "Paper", "Status", "Chunks", "Fields", "Updated")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, p := range papers {
		id := p.ID
		if len(id) > 30 {
			id = id[:27] + "..."
		}
		fmt.Fprintf(w, "%-30s  %-12s  %-6d  %-6d  %s\n",
			id, p.Status, p.Chunks, p.Extractions, p.UpdatedAt.Local().Format("2006-01-02 15:04"))
	}
	fmt.Fprintf(w, "\n%d papers\n", len(papers))
}

func printRuns(w io.Writer, runs []store.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	fmt.Fprintf(w, "%-36s  %-16s  %-11s  %-6s  %-3s  %-7s  %-6s  %s\n",
		"Run", "Started", "Outcome", "Papers", "OK", "Partial", "Failed", "Force")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, r := range runs {
		fmt.Fprintf(w, "%-36s  %-16s  %-11s  %-6d  %-3d  %-7d  %-6d  %t\n",
			r.ID, r.StartedAt.Local().Format("2006-01-02 15:04"), r.Outcome,
			r.Papers, r.OK, r.Partial, r.Failed, r.Force)
	}
}

func init() {
	cacheClearCmd.Flags().Bool("all", false, "clear every cached paper")
	cacheStatusCmd.Flags().Int("runs", 10, "number of recent runs to list (0 hides history)")

	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)
	rootCmd.AddCommand(cacheCmd)
}
