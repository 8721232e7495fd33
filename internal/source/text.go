// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"os"
	"strings"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// TextLoader reads plain text. Form feeds separate pages, as pdftotext and
// similar tools emit them.
type TextLoader struct{}

func (TextLoader) Load(_ context.Context, path string) ([]types.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return splitFormFeeds(string(data)), nil
}

func splitFormFeeds(s string) []types.Page {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	parts := strings.Split(s, "\f")
	// A trailing form feed ends the last page rather than opening a new one.
	if len(parts) > 1 && strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	pages := make([]types.Page, len(parts))
	for i, p := range parts {
		pages[i] = types.Page{Number: i + 1, Text: strings.TrimSpace(p)}
	}
	return pages
}
