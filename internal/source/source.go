// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package source discovers paper files and loads them into ordered page
// text. Each file type has a Loader; PDFs load in-process or through the
// markitdown container, Markdown and plain text load directly.
package source

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strings"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// Loader turns one file into its pages in reading order.
type Loader interface {
	Load(ctx context.Context, path string) ([]types.Page, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, path string) ([]types.Page, error)

func (f LoaderFunc) Load(ctx context.Context, path string) ([]types.Page, error) {
	return f(ctx, path)
}

// Loaders maps a lower-case file extension (".pdf") to its Loader.
type Loaders map[string]Loader

// DefaultLoaders returns the in-process loaders for .pdf, .md, and .txt.
func DefaultLoaders() Loaders {
	return Loaders{
		".pdf": PDFLoader{},
		".md":  MarkdownLoader{},
		".txt": TextLoader{},
	}
}

// Extensions returns the supported extensions, sorted.
func (l Loaders) Extensions() []string {
	exts := make([]string, 0, len(l))
	for ext := range l {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

func (l Loaders) supports(path string) bool {
	_, ok := l[strings.ToLower(filepath.Ext(path))]
	return ok
}

// BatchResult holds the outcome of loading a batch of papers.
type BatchResult struct {
	Loaded int
	Empty  int
	Failed int
}

// Total returns the number of papers attempted.
func (r BatchResult) Total() int {
	return r.Loaded + r.Empty + r.Failed
}

// HasFailures reports whether any paper failed to load.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// PaperID derives a paper's ID from its file name: the base name without
// extension.
func PaperID(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Discover returns the paper files to process.
//
// With no selectors every supported file directly under dir is returned,
// sorted by path. Otherwise each selector is an existing file path, or a
// file name or paper ID found under dir, and the result keeps the selector
// order with repeats dropped. A selector that matches nothing is a
// ConfigError.
func Discover(dir string, selectors []string, loaders Loaders) ([]string, error) {
	var scanned []string
	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil && (len(selectors) == 0 || !os.IsNotExist(err)) {
			return nil, fmt.Errorf("reading papers directory %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !loaders.supports(e.Name()) {
				continue
			}
			scanned = append(scanned, filepath.Join(dir, e.Name()))
		}
	}
	if len(selectors) == 0 {
		sort.Strings(scanned)
		return scanned, nil
	}

	var paths []string
	for _, sel := range selectors {
		path, err := resolve(sel, scanned, loaders)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(paths, path) {
			paths = append(paths, path)
		}
	}
	return paths, nil
}

func resolve(sel string, scanned []string, loaders Loaders) (string, error) {
	if info, err := os.Stat(sel); err == nil && !info.IsDir() {
		if !loaders.supports(sel) {
			return "", types.NewConfigError("papers", "%s: unsupported file type (want %s)",
				sel, strings.Join(loaders.Extensions(), ", "))
		}
		return sel, nil
	}
	for _, p := range scanned {
		if filepath.Base(p) == sel || PaperID(p) == sel {
			return p, nil
		}
	}
	return "", types.NewConfigError("papers", "no paper matches %q", sel)
}

// LoadAll loads every path in order, printing one status line per file to
// w. A file that fails to load yields a Paper with LoadError set, so the run
// still renders a row for it.
func LoadAll(ctx context.Context, loaders Loaders, paths []string, w io.Writer) ([]types.Paper, BatchResult) {
	var result BatchResult
	papers := make([]types.Paper, 0, len(paths))
	for _, path := range paths {
		p := types.Paper{
			ID:         PaperID(path),
			Name:       filepath.Base(path),
			SourcePath: path,
			Status:     types.PaperUnprocessed,
		}
		pages, err := Load(ctx, loaders, path)
		switch {
		case err != nil:
			p.LoadError = err.Error()
			result.Failed++
			fmt.Fprintf(w, "failed:  %s (%v)\n", p.Name, err)
		default:
			p.Pages = pages
			p.HashContent()
			if p.IsEmpty() {
				result.Empty++
				fmt.Fprintf(w, "empty:   %s (no extractable text)\n", p.Name)
			} else {
				result.Loaded++
				fmt.Fprintf(w, "loaded:  %s (%d pages)\n", p.Name, len(pages))
			}
		}
		papers = append(papers, p)
	}
	return papers, result
}

// Load reads one file with the loader registered for its extension.
func Load(ctx context.Context, loaders Loaders, path string) ([]types.Page, error) {
	l, ok := loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%s: unsupported file type", path)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pages, err := l.Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", filepath.Base(path), err)
	}
	return pages, nil
}

// numberPages assigns 1-based page numbers where a loader left them unset.
func numberPages(pages []types.Page) []types.Page {
	for i := range pages {
		if pages[i].Number == 0 {
			pages[i].Number = i + 1
		}
	}
	return pages
}
