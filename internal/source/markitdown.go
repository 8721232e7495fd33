// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pdiddy/paper-extract/internal/container"
	"github.com/pdiddy/paper-extract/pkg/types"
)

// DefaultMarkitdownImage is the container image used when none is configured.
const DefaultMarkitdownImage = "markitdown:latest"

// MarkitdownLoader converts PDFs by piping them through the markitdown
// container image. Its Markdown output is split into pages on form feeds,
// or on page markers when there are none.
type MarkitdownLoader struct {
	runtime container.Runtime
	image   string
}

// NewMarkitdownLoader verifies that image exists in rt before returning.
func NewMarkitdownLoader(ctx context.Context, rt container.Runtime, image string) (*MarkitdownLoader, error) {
	if image == "" {
		image = DefaultMarkitdownImage
	}
	if err := rt.ImageExists(ctx, image); err != nil {
		return nil, fmt.Errorf("markitdown image not available in %s: %w", rt.Name(), err)
	}
	return &MarkitdownLoader{runtime: rt, image: image}, nil
}

func (m *MarkitdownLoader) Load(ctx context.Context, path string) ([]types.Page, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer f.Close()

	var out bytes.Buffer
	if err := m.runtime.Run(ctx, m.image, f, &out); err != nil {
		return nil, fmt.Errorf("converting with markitdown: %w", err)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("markitdown produced empty output")
	}
	return markdownPages(out.Bytes()), nil
}

func markdownPages(md []byte) []types.Page {
	if !bytes.ContainsRune(md, '\f') {
		return parseMarkdown(md)
	}
	var pages []types.Page
	for _, part := range strings.Split(string(md), "\f") {
		var parts []string
		for _, p := range parseMarkdown([]byte(part)) {
			parts = append(parts, p.Text)
		}
		pages = append(pages, types.Page{Text: strings.Join(parts, "\n\n")})
	}
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1].Text) == "" {
		pages = pages[:n-1]
	}
	return numberPages(pages)
}

// LoadersFor returns the loaders for cfg, swapping in the markitdown PDF
// loader when configured.
func LoadersFor(ctx context.Context, cfg types.SourceConfig) (Loaders, error) {
	loaders := DefaultLoaders()
	if cfg.PDFConverter != types.PDFMarkitdown {
		return loaders, nil
	}
	rt, err := container.Detect(ctx)
	if err != nil {
		return nil, err
	}
	md, err := NewMarkitdownLoader(ctx, rt, cfg.Image)
	if err != nil {
		return nil, err
	}
	loaders[".pdf"] = md
	return loaders, nil
}
