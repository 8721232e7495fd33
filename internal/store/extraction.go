// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// PutExtraction stores r as the current result for (PaperID, FieldName),
// replacing any previous one. The payload is checksummed so a damaged row
// is detected on read.
func (s *Store) PutExtraction(ctx context.Context, r types.ExtractionResult) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshaling extraction: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extractions (paper_id, field_name, fingerprint, status, payload, checksum, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(paper_id, field_name) DO UPDATE SET
			fingerprint=excluded.fingerprint, status=excluded.status,
			payload=excluded.payload, checksum=excluded.checksum,
			updated_at=excluded.updated_at`,
		r.PaperID, r.FieldName, r.Fingerprint, string(r.Status),
		string(payload), checksum(payload), now(),
	)
	if err != nil {
		return fmt.Errorf("storing extraction %s/%s: %w", r.PaperID, r.FieldName, err)
	}
	return nil
}

// GetExtraction loads the current result for (paperID, field). It returns
// ErrNotFound when absent and wraps types.ErrCacheCorruption when the
// payload fails its checksum or does not decode to the same key.
func (s *Store) GetExtraction(ctx context.Context, paperID, field string) (types.ExtractionResult, error) {
	var fingerprint, payload, sum string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint, payload, checksum FROM extractions
		 WHERE paper_id = ? AND field_name = ?`, paperID, field,
	).Scan(&fingerprint, &payload, &sum)
	if errors.Is(err, sql.ErrNoRows) {
		return types.ExtractionResult{}, ErrNotFound
	}
	if err != nil {
		return types.ExtractionResult{}, fmt.Errorf("reading extraction %s/%s: %w", paperID, field, err)
	}

	if checksum([]byte(payload)) != sum {
		return types.ExtractionResult{}, fmt.Errorf("extraction %s/%s: checksum mismatch: %w",
			paperID, field, types.ErrCacheCorruption)
	}
	var r types.ExtractionResult
	if err := json.Unmarshal([]byte(payload), &r); err != nil {
		return types.ExtractionResult{}, fmt.Errorf("extraction %s/%s: %v: %w",
			paperID, field, err, types.ErrCacheCorruption)
	}
	if r.PaperID != paperID || r.FieldName != field || r.Fingerprint != fingerprint {
		return types.ExtractionResult{}, fmt.Errorf("extraction %s/%s: payload key mismatch: %w",
			paperID, field, types.ErrCacheCorruption)
	}
	return r, nil
}

// DeleteExtraction removes the current result for (paperID, field). Deleting
// an absent entry is not an error.
func (s *Store) DeleteExtraction(ctx context.Context, paperID, field string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM extractions WHERE paper_id = ? AND field_name = ?`, paperID, field)
	if err != nil {
		return fmt.Errorf("deleting extraction %s/%s: %w", paperID, field, err)
	}
	return nil
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
