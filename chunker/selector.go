package chunker

import "vagueness/types"

// Select keeps, in order, the chunks whose page set intersects [start, end].
func Select(chunks []types.Chunk, start, end int) []types.Chunk {
	selected := make([]types.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Intersects(start, end) {
			selected = append(selected, c)
		}
	}
	return selected
}

// SelectPages resolves sel against the document and filters its chunks. An
// out-of-bounds selection fails with a ConfigError; an empty result is valid.
func SelectPages(doc *types.Document, chunks []types.Chunk, sel types.PageSelection) ([]types.Chunk, int, int, error) {
	start, end, err := sel.Resolve(doc.PageCount())
	if err != nil {
		return nil, 0, 0, err
	}
	return Select(chunks, start, end), start, end, nil
}
