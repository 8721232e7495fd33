// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-extract/pkg/types"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// buildPDF writes a minimal PDF with one Helvetica text line per page.
func buildPDF(pages ...string) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	n := len(pages)
	// 1 catalog, 2 pages, 3 font, then a page and content object per page.
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	var kids []string
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 4+2*i))
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		stream := fmt.Sprintf("BT /F1 12 Tf 72 712 Td (%s) Tj ET", text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}

func TestPDFLoader(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "smith2020.pdf")
	require.NoError(t, os.WriteFile(path, buildPDF("Methods enrolled 120 patients", "Results were significant"), 0o644))

	pages, err := PDFLoader{}.Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[0].Text, "Methods enrolled 120 patients")
	assert.Contains(t, pages[1].Text, "Results were significant")
}

func TestPDFLoaderRejectsGarbage(t *testing.T) {
	path := writeFile(t, t.TempDir(), "broken.pdf", strings.Repeat("not a pdf ", 20))
	_, err := PDFLoader{}.Load(context.Background(), path)
	assert.Error(t, err)
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a\nb\tc", sanitize("a\r\x00b\tc\x07"))
	assert.Equal(t, "ok", sanitize("o\uFFFDk"))
}

func TestMarkdownPages(t *testing.T) {
	md := `---
paper_id: "smith2020"
source_pdf: "raw/smith2020.pdf"
---

<!-- page 1 -->
# Introduction

We study **sleep** in adults.
Second line.

<!-- page 2 -->
## Methods

- 120 participants
- randomized

` + "```\ncode stays\n```\n"

	pages := parseMarkdown([]byte(md))
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "Introduction\n\nWe study sleep in adults.\nSecond line.", pages[0].Text)
	assert.NotContains(t, pages[0].Text, "paper_id", "frontmatter dropped")

	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[1].Text, "Methods")
	assert.Contains(t, pages[1].Text, "120 participants\nrandomized")
	assert.Contains(t, pages[1].Text, "code stays")
}

func TestMarkdownWithoutMarkersIsOnePage(t *testing.T) {
	pages := parseMarkdown([]byte("Just one paragraph.\n\nAnd another."))
	require.Len(t, pages, 1)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, "Just one paragraph.\n\nAnd another.", pages[0].Text)
}

func TestParsePageMarker(t *testing.T) {
	tests := []struct {
		line string
		page int
		ok   bool
	}{
		{"<!-- page 3 -->", 3, true},
		{"<!-- page 12 -->", 12, true},
		{"<!-- page x -->", 0, false},
		{"<!-- page 0 -->", 0, false},
		{"<!-- comment -->", 0, false},
		{"page 3", 0, false},
	}
	for _, tt := range tests {
		page, ok := parsePageMarker(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.page, page, tt.line)
	}
}

func TestTextLoaderSplitsFormFeeds(t *testing.T) {
	path := writeFile(t, t.TempDir(), "notes.txt", "page one\r\n\fpage two\n\f")
	pages, err := TextLoader{}.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []types.Page{{Number: 1, Text: "page one"}, {Number: 2, Text: "page two"}}, pages)
}

func TestDiscoverScansSorted(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.md", "b")
	writeFile(t, dir, "a.PDF", "a")
	writeFile(t, dir, "c.txt", "c")
	writeFile(t, dir, "notes.docx", "ignored")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	paths, err := Discover(dir, nil, DefaultLoaders())
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.PDF"),
		filepath.Join(dir, "b.md"),
		filepath.Join(dir, "c.txt"),
	}, paths)
}

func TestDiscoverSelectors(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "smith2020.pdf", "a")
	b := writeFile(t, dir, "jones2021.md", "b")
	outside := writeFile(t, t.TempDir(), "lee2019.txt", "c")

	paths, err := Discover(dir, []string{"smith2020", "jones2021.md", outside, "smith2020.pdf"}, DefaultLoaders())
	require.NoError(t, err)
	assert.Equal(t, []string{a, b, outside}, paths, "selector order kept, repeats dropped")

	_, err = Discover(dir, []string{"missing"}, DefaultLoaders())
	assert.True(t, types.IsConfigError(err))

	docx := writeFile(t, dir, "draft.docx", "x")
	_, err = Discover(dir, []string{docx}, DefaultLoaders())
	assert.True(t, types.IsConfigError(err))
}

func TestDiscoverKeepsSelectorOrder(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "a")
	b := writeFile(t, dir, "b.txt", "b")
	c := writeFile(t, dir, "c.txt", "c")

	paths, err := Discover(dir, []string{"c.txt", "a.txt", "b.txt"}, DefaultLoaders())
	require.NoError(t, err)
	assert.Equal(t, []string{c, a, b}, paths)
}

func TestDiscoverMissingDir(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), nil, DefaultLoaders())
	assert.Error(t, err)
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.txt", "Some text.")
	blank := writeFile(t, dir, "blank.txt", "   ")
	bad := writeFile(t, dir, "bad.pdf", "garbage")

	var out bytes.Buffer
	papers, res := LoadAll(context.Background(), DefaultLoaders(), []string{bad, blank, good}, &out)
	require.Len(t, papers, 3)

	assert.Equal(t, "bad", papers[0].ID)
	assert.NotEmpty(t, papers[0].LoadError)
	assert.Equal(t, "blank", papers[1].ID)
	assert.True(t, papers[1].IsEmpty())
	assert.Equal(t, "good", papers[2].ID)
	assert.Equal(t, "good.txt", papers[2].Name)
	assert.Len(t, papers[2].ContentHash, 64)

	assert.Equal(t, BatchResult{Loaded: 1, Empty: 1, Failed: 1}, res)
	assert.Equal(t, 3, res.Total())
	assert.True(t, res.HasFailures())
	assert.Contains(t, out.String(), "failed:  bad.pdf")
	assert.Contains(t, out.String(), "empty:   blank.txt")
	assert.Contains(t, out.String(), "loaded:  good.txt (1 pages)")
}

func TestPaperID(t *testing.T) {
	assert.Equal(t, "smith2020", PaperID("/papers/smith2020.pdf"))
	assert.Equal(t, "v1.2-notes", PaperID("v1.2-notes.md"))
}

// --- markitdown ---

type fakeRuntime struct {
	image   string
	missing bool
	output  string
	err     error
	input   string
}

func (f *fakeRuntime) Name() string                   { return "docker" }
func (f *fakeRuntime) Available(context.Context) bool { return true }

func (f *fakeRuntime) ImageExists(_ context.Context, image string) error {
	f.image = image
	if f.missing {
		return errors.New("no such image")
	}
	return nil
}

func (f *fakeRuntime) Run(_ context.Context, _ string, stdin io.Reader, stdout io.Writer) error {
	data, _ := io.ReadAll(stdin)
	f.input = string(data)
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(stdout, f.output)
	return err
}

func TestMarkitdownLoader(t *testing.T) {
	rt := &fakeRuntime{output: "# Title\n\nFirst page.\f## Methods\n\nSecond page.\f"}
	l, err := NewMarkitdownLoader(context.Background(), rt, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultMarkitdownImage, rt.image)

	path := writeFile(t, t.TempDir(), "paper.pdf", "%PDF-bytes")
	pages, err := l.Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-bytes", rt.input)
	assert.Equal(t, []types.Page{
		{Number: 1, Text: "Title\n\nFirst page."},
		{Number: 2, Text: "Methods\n\nSecond page."},
	}, pages)
}

func TestMarkitdownLoaderErrors(t *testing.T) {
	_, err := NewMarkitdownLoader(context.Background(), &fakeRuntime{missing: true}, "custom:1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "markitdown image not available in docker")

	path := writeFile(t, t.TempDir(), "paper.pdf", "x")
	l, err := NewMarkitdownLoader(context.Background(), &fakeRuntime{}, "")
	require.NoError(t, err)
	_, err = l.Load(context.Background(), path)
	assert.ErrorContains(t, err, "empty output")

	l, err = NewMarkitdownLoader(context.Background(), &fakeRuntime{err: errors.New("exit 1")}, "")
	require.NoError(t, err)
	_, err = l.Load(context.Background(), path)
	assert.ErrorContains(t, err, "exit 1")
}
