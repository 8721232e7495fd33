// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/backend"
	"github.com/pdiddy/paper-extract/internal/cache"
	"github.com/pdiddy/paper-extract/internal/config"
	"github.com/pdiddy/paper-extract/internal/extract"
	"github.com/pdiddy/paper-extract/internal/index"
	"github.com/pdiddy/paper-extract/internal/pipeline"
	"github.com/pdiddy/paper-extract/internal/report"
	"github.com/pdiddy/paper-extract/internal/source"
	"github.com/pdiddy/paper-extract/internal/store"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// errPartial reports a run where some papers or fields failed. The summary
// line already says so, so main prints nothing more.
var errPartial = errors.New("some papers had failures")

var runCmd = &cobra.Command{
	Use:   "run [papers...]",
	Short: "Extract every configured field from the papers",
	Long: `Run loads the papers, builds or reuses each paper's index, and answers
every field from the cache or the LLM. With no arguments every supported
file in papers_dir is processed; otherwise each argument is a file path, a
file name in papers_dir, or a paper ID.

Exit status is 0 when every field of every paper succeeded, 2 when some
failed, 1 when nothing usable was produced or the run could not start,
and 130 when interrupted.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().Bool("force", false, "recompute every index and field, then overwrite the cache")
	runCmd.Flags().Bool("dry-run", false, "run the full pipeline without writing the cache or the output file")
	runCmd.Flags().Bool("clear-cache", false, "delete cached data for the selected papers before processing")
	runCmd.Flags().Bool("skip-health-check", false, "do not probe the backends before starting")
	runCmd.Flags().StringP("output", "o", "", `result table path, "-" for stdout (default from config)`)
	runCmd.Flags().String("format", "", "result table format: csv, json, or yaml (default from config or output extension)")
	runCmd.Flags().String("papers-dir", "", "directory scanned for papers (default from config)")
	runCmd.Flags().String("fields", "", "field configuration file (default from config)")
	runCmd.Flags().Int("concurrency", 0, "papers processed at once (default from config)")

	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, opts, err := runConfig(cmd)
	if err != nil {
		return err
	}

	fields, err := config.LoadFields(cfg.FieldsFile)
	if err != nil {
		return err
	}
	loaders, err := source.LoadersFor(ctx, cfg.Source)
	if err != nil {
		return err
	}
	paths, err := source.Discover(cfg.PapersDir, args, loaders)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return types.NewConfigError("papers_dir", "no papers (%v) found in %s", loaders.Extensions(), cfg.PapersDir)
	}

	embedder, err := backend.NewEmbedder(cfg.Embedding, cfg.Retry, logger)
	if err != nil {
		return err
	}
	gen, err := backend.NewGenerator(cfg.LLM, cfg.Retry, logger)
	if err != nil {
		return err
	}
	if !opts.SkipHealthCheck {
		if err := backend.CheckHealth(ctx, embedder); err != nil {
			return fmt.Errorf("embedding backend %s: %w", cfg.Embedding.Provider, err)
		}
		if err := backend.CheckHealth(ctx, gen); err != nil {
			return fmt.Errorf("llm backend %s: %w", cfg.LLM.Provider, err)
		}
	}

	st, err := store.Open(cfg.CacheDir)
	if err != nil {
		return err
	}
	defer st.Close()

	indexes, err := index.New(embedder, st, index.Options{CacheSize: cfg.IndexCacheSize, Log: logger})
	if err != nil {
		return err
	}
	deps := pipeline.Deps{
		Indexes: indexes,
		Extractor: extract.New(gen, extract.Options{
			MaxPromptChars: cfg.Retrieval.MaxPromptChars,
			EmbeddingModel: indexes.EmbeddingModel(),
			Log:            logger,
		}),
		Coordinator: cache.NewCoordinator(st, opts, logger),
		Store:       st,
		Log:         logger,
	}

	out := cmd.OutOrStdout()
	papers, batch := source.LoadAll(ctx, loaders, paths, out)
	logger.Info("papers loaded",
		zap.Int("loaded", batch.Loaded), zap.Int("empty", batch.Empty), zap.Int("failed", batch.Failed))

	table, sum, err := pipeline.NewRunner(cfg, deps, out).Run(ctx, papers, fields)
	if err != nil {
		return err
	}

	if err := writeResults(out, table, cfg.Output, opts.DryRun); err != nil {
		return err
	}

	switch {
	case sum.Fatal():
		return &exitError{code: exitFatal, err: fmt.Errorf("no field produced a usable result (%d failed)", sum.Results)}
	case sum.HasFailures():
		return &exitError{code: exitPartial, err: errPartial}
	}
	return nil
}

// writeResults renders the table to the configured output. Stdout output
// gets the encoded table; a file gets written and the overview printed. A
// dry run prints the overview only.
func writeResults(out io.Writer, table *types.ResultTable, output types.OutputConfig, dryRun bool) error {
	if output.Path == report.Stdout && !dryRun {
		return report.Write(table, report.Stdout, output.Format, out)
	}

	fmt.Fprintln(out)
	report.PrintTable(out, table)
	if dryRun {
		fmt.Fprintf(out, "\nDry run: %s not written\n", output.Path)
		return nil
	}
	if err := report.Write(table, output.Path, output.Format, out); err != nil {
		return err
	}
	fmt.Fprintf(out, "\nResults written to %s\n", output.Path)
	return nil
}

// runConfig applies the command-line overrides to the loaded configuration.
func runConfig(cmd *cobra.Command) (types.Config, types.RunOptions, error) {
	cfg := loaded.Config
	flags := cmd.Flags()

	var opts types.RunOptions
	opts.Force, _ = flags.GetBool("force")
	opts.DryRun, _ = flags.GetBool("dry-run")
	opts.ClearCache, _ = flags.GetBool("clear-cache")
	opts.SkipHealthCheck, _ = flags.GetBool("skip-health-check")

	if v, _ := flags.GetString("papers-dir"); v != "" {
		cfg.PapersDir = v
	}
	if v, _ := flags.GetString("fields"); v != "" {
		cfg.FieldsFile = v
	}
	if v, _ := flags.GetInt("concurrency"); v > 0 {
		cfg.Concurrency = v
	}

	path, _ := flags.GetString("output")
	format, _ := flags.GetString("format")
	switch {
	case format != "":
	case path != "":
		// An explicit path picks the format from its extension.
		format = report.FormatFor(path, "")
	default:
		format = cfg.Output.Format
	}
	if path != "" {
		cfg.Output.Path = path
	}
	cfg.Output.Format = report.FormatFor(cfg.Output.Path, format)

	if err := cfg.Validate(); err != nil {
		return cfg, opts, err
	}
	if opts.Force && opts.ClearCache {
		logger.Warn("--force with --clear-cache: the cache is cleared and then rebuilt")
	}
	if opts.DryRun {
		fmt.Fprintln(cmd.ErrOrStderr(), "Dry run: nothing will be written to the cache or the output file")
	}
	return cfg, opts, nil
}
