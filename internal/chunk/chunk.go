// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package chunk splits a paper's text into overlapping, position-tagged
// segments for embedding.
package chunk

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pdiddy/paper-extract/pkg/types"
)

// Split cuts the paper's pages into chunks of at most size runes, each
// starting overlap runes before the previous chunk's end. Cuts prefer a
// paragraph break, then a line break, then a sentence end, then a space,
// and fall back to a hard cut at size.
//
// Offsets refer to the pages joined with types.PageSeparator. Whitespace-only
// text yields no chunks and no error.
func Split(paperID string, pages []types.Page, size, overlap int) ([]types.Chunk, error) {
	if err := (types.ChunkingConfig{Size: size, Overlap: overlap}).Validate(); err != nil {
		return nil, err
	}

	text, pageStarts, pageNums := join(pages)
	runes := []rune(text)
	n := len(runes)

	var chunks []types.Chunk
	for start := 0; start < n; {
		end := min(start+size, n)
		cut := end
		if end < n {
			cut = boundary(runes, start, end, overlap, size)
		}

		body := string(runes[start:cut])
		if strings.TrimSpace(body) != "" {
			chunks = append(chunks, types.Chunk{
				PaperID: paperID,
				Index:   len(chunks),
				Start:   start,
				End:     cut,
				Page:    pageAt(pageStarts, pageNums, firstNonSpace(runes, start, cut)),
				Text:    body,
			})
		}

		if cut >= n {
			break
		}
		start = cut - overlap
	}
	return chunks, nil
}

// boundary returns the cut position for the window [start, end). The cut is
// always past start+overlap so the next window makes progress, and past the
// window midpoint so chunks do not shrink to fragments.
func boundary(runes []rune, start, end, overlap, size int) int {
	lo := start + max(overlap+1, size/2)
	if lo >= end {
		return end
	}
	for _, sep := range []func([]rune, int) bool{isParagraph, isLine, isSentence, isSpace} {
		for i := end; i > lo; i-- {
			if sep(runes, i) {
				return i
			}
		}
	}
	return end
}

// Each predicate reports whether a cut at i falls just after a separator.

func isParagraph(r []rune, i int) bool {
	return i >= 2 && r[i-1] == '\n' && r[i-2] == '\n'
}

func isLine(r []rune, i int) bool {
	return r[i-1] == '\n'
}

func isSentence(r []rune, i int) bool {
	if i < 2 || !unicode.IsSpace(r[i-1]) {
		return false
	}
	switch r[i-2] {
	case '.', '!', '?':
		return true
	}
	return false
}

func isSpace(r []rune, i int) bool {
	return unicode.IsSpace(r[i-1])
}

func firstNonSpace(runes []rune, start, end int) int {
	for i := start; i < end; i++ {
		if !unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return start
}

// join concatenates page texts and records the rune offset where each page
// begins.
func join(pages []types.Page) (string, []int, []int) {
	var b strings.Builder
	starts := make([]int, 0, len(pages))
	nums := make([]int, 0, len(pages))
	offset := 0
	for i, pg := range pages {
		if i > 0 {
			b.WriteString(types.PageSeparator)
			offset += len([]rune(types.PageSeparator))
		}
		starts = append(starts, offset)
		nums = append(nums, pg.Number)
		b.WriteString(pg.Text)
		offset += len([]rune(pg.Text))
	}
	return b.String(), starts, nums
}

func pageAt(starts, nums []int, offset int) int {
	if len(starts) == 0 {
		return 0
	}
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return nums[i]
}
