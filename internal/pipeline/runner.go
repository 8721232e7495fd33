// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/paper-extract/internal/cache"
	"github.com/pdiddy/paper-extract/internal/store"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// Run outcomes recorded in run history.
const (
	OutcomeRunning     = "running"
	OutcomeSuccess     = "success"
	OutcomePartial     = "partial"
	OutcomeFailed      = "failed"
	OutcomeInterrupted = "interrupted"
)

// Summary counts what a run did.
type Summary struct {
	RunID   string
	Total   int
	OK      int
	Partial int
	Failed  int

	// Cached and Computed count field results served from the cache and
	// computed in this run. Skipped fields count as neither.
	Cached   int
	Computed int

	// Unusable counts field results with status extraction_error or skipped.
	Unusable int
	Results  int

	Duration time.Duration
}

// HasFailures reports whether any row is partial or failed.
func (s Summary) HasFailures() bool {
	return s.Partial > 0 || s.Failed > 0
}

// Fatal reports whether no field produced a usable result because every
// one hit a backend failure or was skipped.
func (s Summary) Fatal() bool {
	return s.Results > 0 && s.Unusable == s.Results
}

// Outcome classifies the summary for run history.
func (s Summary) Outcome() string {
	switch {
	case s.Fatal():
		return OutcomeFailed
	case s.HasFailures():
		return OutcomePartial
	}
	return OutcomeSuccess
}

// Runner processes a batch of papers through a bounded worker pool.
type Runner struct {
	cfg  types.Config
	deps Deps
	out  io.Writer
	log  *zap.Logger

	mu sync.Mutex
}

// NewRunner creates a Runner. Progress lines are written to out.
func NewRunner(cfg types.Config, deps Deps, out io.Writer) *Runner {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if out == nil {
		out = io.Discard
	}
	return &Runner{cfg: cfg, deps: deps, out: out, log: deps.Log}
}

// Run extracts fields from every paper and returns the table with one row
// per paper in the order given. Paper failures never abort the run; only
// invalid input or cancellation return an error. A cancelled run returns
// types.ErrInterrupted and no table.
func (r *Runner) Run(ctx context.Context, papers []types.Paper, fields []types.FieldSpec) (*types.ResultTable, Summary, error) {
	start := time.Now()
	sum := Summary{RunID: uuid.NewString(), Total: len(papers)}

	if err := types.ValidateFields(fields); err != nil {
		return nil, sum, err
	}
	ids := make([]string, len(papers))
	seen := make(map[string]bool, len(papers))
	for i, p := range papers {
		if p.ID == "" {
			return nil, sum, types.NewConfigError("papers", "paper %q has no ID", p.Name)
		}
		if seen[p.ID] {
			return nil, sum, types.NewConfigError("papers", "duplicate paper ID %q", p.ID)
		}
		seen[p.ID] = true
		ids[i] = p.ID
	}

	log := r.log.With(zap.String("run", sum.RunID))
	opts := r.deps.Coordinator.Options()

	if opts.ClearCache {
		if err := r.deps.Coordinator.Clear(ctx, cache.Scope{PaperIDs: ids}); err != nil {
			return nil, sum, fmt.Errorf("clearing cache: %w", err)
		}
		r.deps.Indexes.Forget(ids...)
		log.Info("cache cleared", zap.Int("papers", len(ids)))
	}

	r.record(ctx, store.RunRecord{
		ID: sum.RunID, StartedAt: start, Papers: len(papers), Fields: len(fields),
		Force: opts.Force, Outcome: OutcomeRunning,
	})
	log.Info("run started",
		zap.Int("papers", len(papers)), zap.Int("fields", len(fields)),
		zap.Int("concurrency", r.cfg.Concurrency),
		zap.Bool("force", opts.Force), zap.Bool("dry_run", opts.DryRun))

	proc := NewProcessor(r.cfg, fields, r.deps)
	rows := make([]types.ResultRow, len(papers))

	var g errgroup.Group
	g.SetLimit(max(r.cfg.Concurrency, 1))
	for i, paper := range papers {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			rows[i] = proc.Process(ctx, paper)
			r.progress(rows[i])
			return nil
		})
	}
	_ = g.Wait()

	sum.Duration = time.Since(start)

	if err := ctx.Err(); err != nil {
		log.Warn("run interrupted", zap.Error(err))
		r.finish(ctx, sum, len(fields), opts.Force, start, OutcomeInterrupted)
		return nil, sum, fmt.Errorf("%w: %w", types.ErrInterrupted, err)
	}

	table := &types.ResultTable{RunID: sum.RunID, Fields: make([]string, len(fields)), Rows: rows}
	for i, f := range fields {
		table.Fields[i] = f.Name
	}
	tally(&sum, rows)

	r.finish(ctx, sum, len(fields), opts.Force, start, sum.Outcome())
	log.Info("run finished",
		zap.Int("ok", sum.OK), zap.Int("partial", sum.Partial), zap.Int("failed", sum.Failed),
		zap.Int("cached", sum.Cached), zap.Int("computed", sum.Computed),
		zap.Duration("duration", sum.Duration))

	fmt.Fprintf(r.out, "\nRun summary: %d ok, %d partial, %d failed (total: %d, fields cached: %d, computed: %d)\n",
		sum.OK, sum.Partial, sum.Failed, sum.Total, sum.Cached, sum.Computed)
	return table, sum, nil
}

func tally(sum *Summary, rows []types.ResultRow) {
	for _, row := range rows {
		switch row.Status {
		case types.RowOK:
			sum.OK++
		case types.RowPartial:
			sum.Partial++
		default:
			sum.Failed++
		}
		for _, res := range row.Results {
			sum.Results++
			switch {
			case res.Status == types.ResultSkipped:
			case res.Cached:
				sum.Cached++
			default:
				sum.Computed++
			}
			if res.Status == types.ResultSkipped || res.Status == types.ResultExtractionError {
				sum.Unusable++
			}
		}
	}
}

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed)
)

// progress writes one line per finished paper. Workers share out, so lines
// are serialised.
func (r *Runner) progress(row types.ResultRow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cached := 0
	for _, res := range row.Results {
		if res.Cached {
			cached++
		}
	}
	switch row.Status {
	case types.RowOK:
		okColor.Fprintf(r.out, "extracted: %s (%d fields, %d cached, %.1fs)\n",
			row.PaperID, len(row.Results), cached, row.ProcessingTime.Seconds())
	case types.RowPartial:
		warnColor.Fprintf(r.out, "partial:   %s (%s)\n", row.PaperID, failedFields(row))
	default:
		failColor.Fprintf(r.out, "failed:    %s (%s)\n", row.PaperID, failedFields(row))
	}
}

func failedFields(row types.ResultRow) string {
	var first string
	n := 0
	for _, res := range row.Results {
		if res.Failed() {
			if n == 0 {
				first = fmt.Sprintf("%s: %s", res.FieldName, res.Cell())
				if res.Error != "" && res.Status != types.ResultSkipped {
					first += ": " + res.Error
				}
			}
			n++
		}
	}
	if n > 1 {
		return fmt.Sprintf("%s; %d more failed", first, n-1)
	}
	return first
}

func (r *Runner) finish(ctx context.Context, sum Summary, fields int, force bool, start time.Time, outcome string) {
	r.record(context.WithoutCancel(ctx), store.RunRecord{
		ID: sum.RunID, StartedAt: start, FinishedAt: time.Now(),
		Papers: sum.Total, Fields: fields,
		OK: sum.OK, Partial: sum.Partial, Failed: sum.Failed,
		Force: force, Outcome: outcome,
	})
}

// record writes run history. Dry runs and runs without a store record
// nothing.
func (r *Runner) record(ctx context.Context, rec store.RunRecord) {
	if r.deps.Store == nil || r.deps.Coordinator.Options().DryRun {
		return
	}
	if err := r.deps.Store.RecordRun(ctx, rec); err != nil {
		r.log.Warn("recording run failed", zap.String("run", rec.ID), zap.Error(err))
	}
}
