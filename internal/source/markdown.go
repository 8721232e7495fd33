// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// MarkdownLoader reads Markdown papers. Page boundaries come from
// "<!-- page N -->" comments on their own line; a document without markers
// is a single page. A leading YAML frontmatter block is ignored.
type MarkdownLoader struct{}

func (MarkdownLoader) Load(_ context.Context, path string) ([]types.Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseMarkdown(data), nil
}

// parseMarkdown renders each top-level block as plain text and groups the
// blocks into pages.
func parseMarkdown(data []byte) []types.Page {
	source := stripFrontmatter(data)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var pages []types.Page
	current := types.Page{Number: 1}
	var blocks []string
	flush := func() {
		current.Text = strings.Join(blocks, "\n\n")
		if current.Text != "" || len(pages) > 0 || current.Number != 1 {
			pages = append(pages, current)
		}
		blocks = nil
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if html, ok := node.(*ast.HTMLBlock); ok {
			if page, ok := markerIn(html, source); ok {
				flush()
				current = types.Page{Number: page}
				continue
			}
		}
		if s := blockText(node, source); s != "" {
			blocks = append(blocks, s)
		}
	}
	flush()
	return pages
}

// markerIn returns the page number of the first page marker in an HTML block.
func markerIn(n *ast.HTMLBlock, source []byte) (int, bool) {
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if page, ok := parsePageMarker(strings.TrimSpace(string(seg.Value(source)))); ok {
			return page, true
		}
	}
	return 0, false
}

// parsePageMarker extracts the page number from an HTML comment like <!-- page 3 -->.
func parsePageMarker(line string) (int, bool) {
	if !strings.HasPrefix(line, "<!-- page ") || !strings.HasSuffix(line, " -->") {
		return 0, false
	}
	inner := strings.TrimPrefix(line, "<!-- page ")
	inner = strings.TrimSuffix(inner, " -->")
	var page int
	if _, err := fmt.Sscanf(inner, "%d", &page); err != nil || page <= 0 {
		return 0, false
	}
	return page, true
}

// blockText flattens a block to plain text: inline markup is dropped, line
// breaks inside paragraphs are kept, and code and HTML blocks keep their raw
// lines.
func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if node.Type() == ast.TypeBlock && node.NextSibling() != nil {
				sb.WriteByte('\n')
			}
			return ast.WalkContinue, nil
		}
		switch v := node.(type) {
		case *ast.CodeBlock, *ast.FencedCodeBlock, *ast.HTMLBlock:
			lines := node.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				sb.Write(seg.Value(source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			sb.Write(v.Segment.Value(source))
			if v.SoftLineBreak() || v.HardLineBreak() {
				sb.WriteByte('\n')
			}
		case *ast.String:
			sb.Write(v.Value)
		case *ast.AutoLink:
			sb.Write(v.Label(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(sb.String())
}

// stripFrontmatter removes a leading "---" delimited YAML block.
func stripFrontmatter(data []byte) []byte {
	s := string(data)
	if !strings.HasPrefix(s, "---\n") {
		return data
	}
	end := strings.Index(s[4:], "\n---\n")
	if end < 0 {
		return data
	}
	return []byte(s[4+end+5:])
}
