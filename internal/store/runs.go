// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"time"
)

// RunRecord is one line of run history.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Papers     int
	Fields     int
	OK         int
	Partial    int
	Failed     int
	Force      bool
	Outcome    string
}

// RecordRun inserts or completes a run history entry.
func (s *Store) RecordRun(ctx context.Context, r RunRecord) error {
	finished := ""
	if !r.FinishedAt.IsZero() {
		finished = r.FinishedAt.UTC().Format(timeFormat)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, finished_at, papers, fields, ok, partial, failed, forced, outcome)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			finished_at=excluded.finished_at, ok=excluded.ok, partial=excluded.partial,
			failed=excluded.failed, outcome=excluded.outcome`,
		r.ID, r.StartedAt.UTC().Format(timeFormat), finished,
		r.Papers, r.Fields, r.OK, r.Partial, r.Failed, r.Force, r.Outcome,
	)
	if err != nil {
		return fmt.Errorf("recording run %s: %w", r.ID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), papers, fields, ok, partial, failed, forced, COALESCE(outcome, '')
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Papers, &r.Fields,
			&r.OK, &r.Partial, &r.Failed, &r.Force, &r.Outcome); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		r.StartedAt, _ = time.Parse(timeFormat, started)
		if finished != "" {
			r.FinishedAt, _ = time.Parse(timeFormat, finished)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
