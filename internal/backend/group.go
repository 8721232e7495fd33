// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// GeneratorGroup tries each Generator in order and returns the first
// successful completion.
type GeneratorGroup struct {
	items []Generator
	log   *zap.Logger
}

// NewGeneratorGroup returns the single generator unchanged when there is
// nothing to fall back to.
func NewGeneratorGroup(items []Generator, log *zap.Logger) Generator {
	if len(items) == 1 {
		return items[0]
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &GeneratorGroup{items: items, log: log}
}

func (g *GeneratorGroup) Generate(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for i, item := range g.items {
		res, err := item.Generate(ctx, prompt)
		if err == nil {
			return res, nil
		}
		if errors.Is(err, context.Canceled) {
			return "", err
		}
		lastErr = err
		g.log.Warn("generator failed", zap.Int("index", i), zap.String("model", item.Model()), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("generator not configured")
	}
	return "", lastErr
}

// Model joins every member's model so that adding or removing a fallback
// changes extraction fingerprints.
func (g *GeneratorGroup) Model() string {
	names := make([]string, 0, len(g.items))
	for _, item := range g.items {
		names = append(names, item.Model())
	}
	return strings.Join(names, "|")
}

// Health passes when any member is healthy.
func (g *GeneratorGroup) Health(ctx context.Context) error {
	var errs []error
	for _, item := range g.items {
		err := probe(ctx, item)
		if err == nil {
			return nil
		}
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
