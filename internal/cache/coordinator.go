// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/store"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// State is the cache state of one (paper, field) key.
type State int

const (
	Absent State = iota
	Fresh
	Stale
	Corrupt
)

func (s State) String() string {
	switch s {
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Corrupt:
		return "corrupt"
	}
	return "absent"
}

// Scope selects what Clear deletes. An empty PaperIDs with All unset
// deletes nothing.
type Scope struct {
	All      bool
	PaperIDs []string
}

// Coordinator applies the run's force and dry-run options to every cache
// read and write.
type Coordinator struct {
	store *store.Store
	opts  types.RunOptions
	log   *zap.Logger
	locks keyedMutex
}

// NewCoordinator creates a Coordinator over st. A nil st disables
// persistence entirely.
func NewCoordinator(st *store.Store, opts types.RunOptions, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{store: st, opts: opts, log: log}
}

// Options returns the run options the coordinator enforces.
func (c *Coordinator) Options() types.RunOptions {
	return c.opts
}

// Lookup classifies the cached result for (paperID, field) against
// fingerprint. The result is only meaningful when the state is Fresh.
func (c *Coordinator) Lookup(ctx context.Context, paperID, field, fingerprint string) (types.ExtractionResult, State) {
	if c.store == nil {
		return types.ExtractionResult{}, Absent
	}
	r, err := c.store.GetExtraction(ctx, paperID, field)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return types.ExtractionResult{}, Absent
	case errors.Is(err, types.ErrCacheCorruption):
		c.log.Warn("cached extraction corrupt, recomputing",
			zap.String("paper", paperID), zap.String("field", field), zap.Error(err))
		return types.ExtractionResult{}, Corrupt
	case err != nil:
		c.log.Warn("reading cached extraction failed, recomputing",
			zap.String("paper", paperID), zap.String("field", field), zap.Error(err))
		return types.ExtractionResult{}, Absent
	}
	if r.Fingerprint != fingerprint {
		return types.ExtractionResult{}, Stale
	}
	return r, Fresh
}

// Resolve returns the result for (paperID, field) under fingerprint. A fresh
// cached result is returned with Cached set unless the run forces
// recomputation; otherwise compute runs and its result is stored when it is
// cacheable, the run is not a dry run, and ctx is still live.
//
// Calls for the same key are serialised so concurrent callers never compute
// the same field twice.
func (c *Coordinator) Resolve(ctx context.Context, paperID string, field types.FieldSpec, fingerprint string,
	compute func(context.Context) types.ExtractionResult) types.ExtractionResult {

	unlock := c.locks.Lock(paperID + "\x00" + field.Name)
	defer unlock()

	if !c.opts.Force {
		if r, state := c.Lookup(ctx, paperID, field.Name, fingerprint); state == Fresh {
			r.Cached = true
			return r
		}
	}

	r := compute(ctx)
	r.PaperID = paperID
	r.FieldName = field.Name
	r.Fingerprint = fingerprint
	c.save(ctx, r)
	return r
}

func (c *Coordinator) save(ctx context.Context, r types.ExtractionResult) {
	if c.store == nil || c.opts.DryRun || ctx.Err() != nil {
		return
	}
	if !r.Cacheable() {
		// A failed forced recompute retires the entry it was meant to replace.
		if c.opts.Force {
			if err := c.store.DeleteExtraction(ctx, r.PaperID, r.FieldName); err != nil {
				c.log.Warn("dropping cached extraction failed",
					zap.String("paper", r.PaperID), zap.String("field", r.FieldName), zap.Error(err))
			}
		}
		return
	}
	if err := c.store.PutExtraction(ctx, r); err != nil {
		c.log.Warn("caching extraction failed",
			zap.String("paper", r.PaperID), zap.String("field", r.FieldName), zap.Error(err))
	}
}

// PutPaper records a discovered paper. Dry runs record nothing.
func (c *Coordinator) PutPaper(ctx context.Context, p types.Paper) {
	if c.store == nil || c.opts.DryRun {
		return
	}
	if err := c.store.PutPaper(ctx, p); err != nil {
		c.log.Warn("recording paper failed", zap.String("paper", p.ID), zap.Error(err))
	}
}

// SetPaperStatus records a paper's progress. Dry runs and cancelled
// contexts record nothing.
func (c *Coordinator) SetPaperStatus(ctx context.Context, paperID string, status types.PaperStatus) {
	if c.store == nil || c.opts.DryRun || ctx.Err() != nil {
		return
	}
	if err := c.store.SetPaperStatus(ctx, paperID, status); err != nil {
		c.log.Warn("recording paper status failed", zap.String("paper", paperID), zap.Error(err))
	}
}

// Clear deletes persisted entries and index data in scope. It is a no-op in
// dry runs.
func (c *Coordinator) Clear(ctx context.Context, scope Scope) error {
	if c.store == nil || c.opts.DryRun {
		return nil
	}
	switch {
	case scope.All:
		return c.store.DeleteAll(ctx)
	case len(scope.PaperIDs) > 0:
		return c.store.DeletePapers(ctx, scope.PaperIDs)
	}
	return nil
}

// keyedMutex hands out one mutex per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
