// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package store persists per-paper indices, extraction results, paper
// status, and run history in a single SQLite database. Every write is one
// transaction, so a crash never leaves a half-written entry behind.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// DBFile is the database file name inside the cache directory.
const DBFile = "cache.db"

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrNotFound is returned when no entry exists for a key.
var ErrNotFound = errors.New("not found")

// Store wraps the cache database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens or creates cacheDir/cache.db and its schema.
func Open(cacheDir string) (*Store, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	path := filepath.Join(cacheDir, DBFile)
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection serialises writers across workers; WAL keeps reads cheap.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			source_path TEXT,
			content_hash TEXT,
			status TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS indexes (
			paper_id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL,
			embedding_model TEXT NOT NULL,
			dims INTEGER NOT NULL,
			chunk_count INTEGER NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			paper_id TEXT NOT NULL,
			idx INTEGER NOT NULL,
			start_offset INTEGER NOT NULL,
			end_offset INTEGER NOT NULL,
			page INTEGER NOT NULL,
			text TEXT NOT NULL,
			embedding TEXT NOT NULL,
			PRIMARY KEY (paper_id, idx)
		)`,
		`CREATE TABLE IF NOT EXISTS extractions (
			paper_id TEXT NOT NULL,
			field_name TEXT NOT NULL,
			fingerprint TEXT NOT NULL,
			status TEXT NOT NULL,
			payload TEXT NOT NULL,
			checksum TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (paper_id, field_name)
		)`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			papers INTEGER NOT NULL,
			fields INTEGER NOT NULL,
			ok INTEGER NOT NULL DEFAULT 0,
			partial INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			forced INTEGER NOT NULL DEFAULT 0,
			outcome TEXT
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// PutPaper upserts a paper's identity, content hash, and status.
func (s *Store) PutPaper(ctx context.Context, p types.Paper) error {
	status := p.Status
	if status == "" {
		status = types.PaperUnprocessed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO papers (id, name, source_path, content_hash, status, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, source_path=excluded.source_path,
			content_hash=excluded.content_hash, status=excluded.status,
			updated_at=excluded.updated_at`,
		p.ID, p.Name, p.SourcePath, p.ContentHash, string(status), now(),
	)
	if err != nil {
		return fmt.Errorf("upserting paper %s: %w", p.ID, err)
	}
	return nil
}

// SetPaperStatus records how far a paper progressed.
func (s *Store) SetPaperStatus(ctx context.Context, paperID string, status types.PaperStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE papers SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), now(), paperID,
	)
	if err != nil {
		return fmt.Errorf("updating paper status %s: %w", paperID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("paper %s: %w", paperID, ErrNotFound)
	}
	return nil
}

// PaperSummary is one line of the cache status listing.
type PaperSummary struct {
	ID          string
	Name        string
	Status      types.PaperStatus
	Chunks      int
	Extractions int
	UpdatedAt   time.Time
}

// ListPapers returns every known paper with its cached entry counts,
// ordered by ID.
func (s *Store) ListPapers(ctx context.Context) ([]PaperSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT p.id, p.name, p.status, p.updated_at,
			COALESCE((SELECT chunk_count FROM indexes i WHERE i.paper_id = p.id), 0),
			(SELECT count(*) FROM extractions e WHERE e.paper_id = p.id)
		 FROM papers p ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("listing papers: %w", err)
	}
	defer rows.Close()

	var out []PaperSummary
	for rows.Next() {
		var ps PaperSummary
		var status, updated string
		if err := rows.Scan(&ps.ID, &ps.Name, &status, &updated, &ps.Chunks, &ps.Extractions); err != nil {
			return nil, fmt.Errorf("scanning paper: %w", err)
		}
		ps.Status = types.PaperStatus(status)
		ps.UpdatedAt, _ = time.Parse(timeFormat, updated)
		out = append(out, ps)
	}
	return out, rows.Err()
}

// DeletePapers removes every cached artifact of the given papers: index,
// chunks, extractions, and the paper record itself.
func (s *Store) DeletePapers(ctx context.Context, ids []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, id := range ids {
		for _, table := range []string{"extractions", "chunks", "indexes"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE paper_id = ?`, id); err != nil {
				return fmt.Errorf("clearing %s for %s: %w", table, id, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id); err != nil {
			return fmt.Errorf("clearing paper %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// DeleteAll empties every cache table. Run history is kept.
func (s *Store) DeleteAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"extractions", "chunks", "indexes", "papers"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("clearing %s: %w", table, err)
		}
	}
	return tx.Commit()
}

func now() string {
	return time.Now().UTC().Format(timeFormat)
}
