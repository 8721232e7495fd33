// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the paper-extract CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/config"
	"github.com/pdiddy/paper-extract/internal/logging"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// Exit codes.
const (
	exitOK          = 0
	exitFatal       = 1
	exitPartial     = 2
	exitInterrupted = 130
)

// exitError carries a non-zero exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// Set by the root command before any subcommand runs.
var (
	loaded   config.Loaded
	logger   = zap.NewNop()
	closeLog = func() {}
)

// rootCmd is the base command for the paper-extract CLI.
var rootCmd = &cobra.Command{
	Use:   "paper-extract",
	Short: "Extract structured fields from academic papers with retrieval and an LLM",
	Long: `paper-extract reads a folder of papers (PDF, Markdown, or plain text),
indexes each one, and answers a configured list of fields per paper by
retrieving the most relevant passages and asking a language model. The
result is one table row per paper with a cell per field.

Indices and answers are cached under cache_dir, so re-running over the
same papers and fields makes no backend calls. Changing a field's
description recomputes only that field.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file (default: ./paper-extract.yaml or ~/.config/paper-extract/paper-extract.yaml)")
	rootCmd.PersistentFlags().String("env-file", config.DefaultEnvFile, "dotenv file loaded before environment overrides")
	rootCmd.PersistentFlags().String("log-level", "", "log level override: debug, info, warn, error")
}

func initConfig(cmd *cobra.Command) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	l, err := config.Load(config.Options{File: cfgFile, EnvFile: envFile})
	if err != nil {
		return err
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		l.Config.Log.Level = level
	}

	log, closeFn, err := logging.New(l.Config.Log, os.Stderr)
	if err != nil {
		return err
	}
	loaded, logger, closeLog = l, log, closeFn

	if l.File != "" {
		logger.Debug("using config file", zap.String("path", l.File))
	}
	if len(l.Secrets) > 0 {
		logger.Info("loaded secrets", zap.Strings("keys", l.Secrets))
	}
	return nil
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var ee *exitError
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, types.ErrInterrupted), errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.As(err, &ee):
		return ee.code
	}
	return exitFatal
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	closeLog()

	if err != nil {
		var ee *exitError
		if !errors.As(err, &ee) || ee.err != errPartial {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(exitCode(err))
}
