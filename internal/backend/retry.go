// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-extract/internal/httputil"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// Policy bounds the retries of one backend call.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	MaxElapsed  time.Duration
}

// PolicyFrom converts the configured retry settings, filling zero values
// with defaults.
func PolicyFrom(cfg types.RetryConfig) Policy {
	p := Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxDelay:    cfg.MaxDelay,
		MaxElapsed:  cfg.MaxElapsed,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.MaxElapsed <= 0 {
		p.MaxElapsed = 5 * time.Minute
	}
	return p
}

// do runs fn under p with jittered exponential backoff. Errors that cannot
// improve on retry stop the loop early. Every failure other than
// cancellation is reported as types.ErrBackendUnavailable.
func do[T any](ctx context.Context, p Policy, log *zap.Logger, op string, fn func() (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.BaseDelay
	eb.MaxInterval = p.MaxDelay
	eb.Multiplier = 2

	attempts := 0
	res, err := backoff.Retry(ctx, func() (T, error) {
		attempts++
		v, err := fn()
		if err != nil && httputil.IsPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(p.MaxAttempts)),
		backoff.WithMaxElapsedTime(p.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("backend call failed, retrying",
				zap.String("op", op),
				zap.Int("attempt", attempts),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
	if err == nil {
		return res, nil
	}

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s: %w", op, ctxErr)
	}
	return res, fmt.Errorf("%s failed after %d attempt(s): %w: %w", op, attempts, types.ErrBackendUnavailable, err)
}

// RetryingEmbedder retries every Embed call under a Policy.
type RetryingEmbedder struct {
	inner  Embedder
	policy Policy
	log    *zap.Logger
}

// NewRetryingEmbedder wraps e. A nil logger discards retry warnings.
func NewRetryingEmbedder(e Embedder, p Policy, log *zap.Logger) *RetryingEmbedder {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingEmbedder{inner: e, policy: p, log: log}
}

func (r *RetryingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return do(ctx, r.policy, r.log, "embed", func() ([][]float32, error) {
		vecs, err := r.inner.Embed(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(texts))
		}
		return vecs, err
	})
}

func (r *RetryingEmbedder) Model() string { return r.inner.Model() }

func (r *RetryingEmbedder) Health(ctx context.Context) error {
	return probe(ctx, r.inner)
}

// RetryingGenerator retries every Generate call under a Policy.
type RetryingGenerator struct {
	inner  Generator
	policy Policy
	log    *zap.Logger
}

// NewRetryingGenerator wraps g. A nil logger discards retry warnings.
func NewRetryingGenerator(g Generator, p Policy, log *zap.Logger) *RetryingGenerator {
	if log == nil {
		log = zap.NewNop()
	}
	return &RetryingGenerator{inner: g, policy: p, log: log}
}

func (r *RetryingGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return do(ctx, r.policy, r.log, "generate", func() (string, error) {
		return r.inner.Generate(ctx, prompt)
	})
}

func (r *RetryingGenerator) Model() string { return r.inner.Model() }

func (r *RetryingGenerator) Health(ctx context.Context) error {
	return probe(ctx, r.inner)
}
