// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pgvector/pgvector-go"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// IndexRecord is a persisted per-paper index: every chunk with its vector,
// guarded by the fingerprint it was built under.
type IndexRecord struct {
	PaperID        string
	Fingerprint    string
	EmbeddingModel string
	Dims           int
	Chunks         []types.Chunk
	CreatedAt      time.Time
}

// PutIndex replaces the paper's index atomically. Every chunk must carry a
// vector of the same dimension.
func (s *Store) PutIndex(ctx context.Context, rec IndexRecord) error {
	dims := 0
	for _, c := range rec.Chunks {
		if len(c.Vector) == 0 {
			return fmt.Errorf("chunk %s has no vector", c.ID())
		}
		if dims == 0 {
			dims = len(c.Vector)
		} else if len(c.Vector) != dims {
			return fmt.Errorf("chunk %s has %d dims, expected %d", c.ID(), len(c.Vector), dims)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE paper_id = ?`, rec.PaperID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO indexes (paper_id, fingerprint, embedding_model, dims, chunk_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(paper_id) DO UPDATE SET
			fingerprint=excluded.fingerprint, embedding_model=excluded.embedding_model,
			dims=excluded.dims, chunk_count=excluded.chunk_count, created_at=excluded.created_at`,
		rec.PaperID, rec.Fingerprint, rec.EmbeddingModel, dims, len(rec.Chunks), now(),
	)
	if err != nil {
		return fmt.Errorf("upserting index: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (paper_id, idx, start_offset, end_offset, page, text, embedding)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range rec.Chunks {
		_, err := stmt.ExecContext(ctx,
			rec.PaperID, c.Index, c.Start, c.End, c.Page, c.Text,
			pgvector.NewVector(c.Vector),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.ID(), err)
		}
	}

	return tx.Commit()
}

// GetIndex loads a paper's persisted index. It returns ErrNotFound when
// none exists and an error wrapping types.ErrCacheCorruption when the rows
// disagree with the index header.
func (s *Store) GetIndex(ctx context.Context, paperID string) (*IndexRecord, error) {
	rec := &IndexRecord{PaperID: paperID}
	var count int
	var created string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, embedding_model, dims, chunk_count, created_at
		 FROM indexes WHERE paper_id = ?`, paperID,
	).Scan(&rec.Fingerprint, &rec.EmbeddingModel, &rec.Dims, &count, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading index %s: %w", paperID, err)
	}
	rec.CreatedAt, _ = time.Parse(timeFormat, created)

	chunks, err := s.readChunks(ctx, paperID, rec.Dims)
	if err != nil {
		return nil, err
	}
	if len(chunks) != count {
		return nil, fmt.Errorf("index %s: %d chunks stored, header says %d: %w",
			paperID, len(chunks), count, types.ErrCacheCorruption)
	}
	for i, c := range chunks {
		if c.Index != i {
			return nil, fmt.Errorf("index %s: chunk sequence broken at %d: %w", paperID, i, types.ErrCacheCorruption)
		}
	}
	rec.Chunks = chunks
	return rec, nil
}

func (s *Store) readChunks(ctx context.Context, paperID string, dims int) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT idx, start_offset, end_offset, page, text, embedding
		 FROM chunks WHERE paper_id = ? ORDER BY idx`, paperID)
	if err != nil {
		return nil, fmt.Errorf("reading chunks %s: %w", paperID, err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		c := types.Chunk{PaperID: paperID}
		var raw string
		if err := rows.Scan(&c.Index, &c.Start, &c.End, &c.Page, &c.Text, &raw); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		vec, err := decodeVector(raw)
		if err != nil {
			return nil, fmt.Errorf("chunk %s: %v: %w", c.ID(), err, types.ErrCacheCorruption)
		}
		if len(vec) != dims {
			return nil, fmt.Errorf("chunk %s: %d dims, index says %d: %w", c.ID(), len(vec), dims, types.ErrCacheCorruption)
		}
		c.Vector = vec
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// decodeVector parses the pgvector text form "[x,y,...]".
func decodeVector(raw string) ([]float32, error) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 3 || raw[0] != '[' || raw[len(raw)-1] != ']' {
		return nil, fmt.Errorf("malformed vector %q", raw)
	}
	var v pgvector.Vector
	if err := v.Scan(raw); err != nil {
		return nil, err
	}
	return v.Slice(), nil
}
