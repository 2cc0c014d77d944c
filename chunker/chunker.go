// Package chunker splits page text into overlapping character windows and
// filters them by page.
package chunker

import (
	"slices"
	"strings"
	"time"

	"vagueness/types"
)

const (
	DefaultSize    = 500
	DefaultOverlap = 100
)

// Window is a chunk before it is bound to a document.
type Window struct {
	Index int
	Start int
	End   int
	Text  string
	Pages []int
}

// Validate checks the window parameters.
func Validate(size, overlap int) error {
	if size <= 0 {
		return types.NewConfigError("chunk_size", "must be positive, got %d", size)
	}
	if overlap < 0 {
		return types.NewConfigError("chunk_overlap", "must not be negative, got %d", overlap)
	}
	if overlap >= size {
		return types.NewConfigError("chunk_overlap", "%d must be smaller than chunk size %d", overlap, size)
	}
	return nil
}

// Windows concatenates the page texts, joining non-empty pages with a
// newline owned by the earlier page, and slides a window of size runes with
// stride size-overlap. The last window may be shorter. Pages without text own
// no characters and therefore never appear in a window's page set.
func Windows(pages []types.Page, size, overlap int) ([]Window, error) {
	if err := Validate(size, overlap); err != nil {
		return nil, err
	}

	var (
		text  []rune
		owner []int
	)
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if len(text) > 0 {
			text = append(text, '\n')
			owner = append(owner, owner[len(owner)-1])
		}
		for _, r := range p.Text {
			text = append(text, r)
			owner = append(owner, p.Number)
		}
	}

	total := len(text)
	if total == 0 {
		return []Window{}, nil
	}

	stride := size - overlap
	windows := make([]Window, 0, total/stride+1)
	for start := 0; ; start += stride {
		end := min(start+size, total)
		windows = append(windows, Window{
			Index: len(windows),
			Start: start,
			End:   end,
			Text:  string(text[start:end]),
			Pages: pageSet(owner[start:end]),
		})
		if end == total {
			break
		}
	}
	return windows, nil
}

func pageSet(owner []int) []int {
	pages := make([]int, 0, 2)
	for _, p := range owner {
		if n := len(pages); n == 0 || pages[n-1] != p {
			pages = append(pages, p)
		}
	}
	slices.Sort(pages)
	return slices.Compact(pages)
}

// Chunk splits a document into addressable chunks stamped with createdAt. The
// result depends only on the arguments.
func Chunk(doc *types.Document, size, overlap int, createdAt time.Time) ([]types.Chunk, error) {
	windows, err := Windows(doc.Pages, size, overlap)
	if err != nil {
		return nil, err
	}
	chunks := make([]types.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = types.Chunk{
			ID:        types.ChunkID(doc.ID, w.Index),
			DocID:     doc.ID,
			Index:     w.Index,
			Text:      w.Text,
			Start:     w.Start,
			End:       w.End,
			Pages:     w.Pages,
			CreatedAt: createdAt,
		}
	}
	return chunks, nil
}

// Text returns the text the chunker windows over, for coverage checks.
func Text(pages []types.Page) string {
	parts := make([]string, 0, len(pages))
	for _, p := range pages {
		if p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	return strings.Join(parts, "\n")
}
