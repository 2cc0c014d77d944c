package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageSelectionResolve(t *testing.T) {
	t.Run("all pages", func(t *testing.T) {
		start, end, err := AllPages().Resolve(10)
		require.NoError(t, err)
		assert.Equal(t, 1, start)
		assert.Equal(t, 10, end)
	})

	t.Run("empty mode means all", func(t *testing.T) {
		start, end, err := PageSelection{}.Resolve(4)
		require.NoError(t, err)
		assert.Equal(t, 1, start)
		assert.Equal(t, 4, end)
	})

	t.Run("single page", func(t *testing.T) {
		start, end, err := SinglePage(7).Resolve(10)
		require.NoError(t, err)
		assert.Equal(t, 7, start)
		assert.Equal(t, 7, end)
	})

	t.Run("range", func(t *testing.T) {
		start, end, err := PageRange(3, 5).Resolve(10)
		require.NoError(t, err)
		assert.Equal(t, 3, start)
		assert.Equal(t, 5, end)
	})

	invalid := []struct {
		name  string
		sel   PageSelection
		pages int
	}{
		{"single below range", SinglePage(0), 10},
		{"single above range", SinglePage(11), 10},
		{"range past end", PageRange(8, 12), 10},
		{"range before start", PageRange(0, 3), 10},
		{"inverted range", PageRange(5, 3), 10},
		{"unknown mode", PageSelection{Mode: "odd"}, 10},
		{"no pages", AllPages(), 0},
	}
	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := tc.sel.Resolve(tc.pages)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrConfig, "Expected a configuration error")
			var cfgErr *ConfigError
			assert.True(t, errors.As(err, &cfgErr))
		})
	}
}

func TestChunkIntersects(t *testing.T) {
	c := Chunk{Pages: []int{4, 5}}
	assert.True(t, c.Intersects(3, 4))
	assert.True(t, c.Intersects(5, 9))
	assert.False(t, c.Intersects(1, 3))
	assert.False(t, c.Intersects(6, 6))
}

func TestParseCategory(t *testing.T) {
	cases := map[string]Category{
		"ambiguous_modifiers":                       CategoryModifiers,
		"Negative & Passive Structures":             CategoryNegative,
		"Open-Ended / Non-Verifiable Terms":         CategoryOpenEnded,
		"abstractness & subjective language":        CategoryAbstractness,
		"Referent Ambiguity":                        CategoryReferent,
		"Ambiguous Modifiers & Comparative Phrases": CategoryModifiers,
	}
	for in, want := range cases {
		got, ok := ParseCategory(in)
		assert.True(t, ok, "Expected %q to parse", in)
		assert.Equal(t, want, got)
	}

	_, ok := ParseCategory("grammar")
	assert.False(t, ok)
	_, ok = ParseCategory("")
	assert.False(t, ok)
}

func TestSeverityFromScore(t *testing.T) {
	assert.Equal(t, SeverityNone, SeverityFromScore(0.1))
	assert.Equal(t, SeverityLow, SeverityFromScore(0.3))
	assert.Equal(t, SeverityMedium, SeverityFromScore(0.55))
	assert.Equal(t, SeverityHigh, SeverityFromScore(0.7))
	assert.Equal(t, SeverityHigh, SeverityFromScore(1))
}

func TestErrorTaxonomy(t *testing.T) {
	cause := fmt.Errorf("boom")

	assert.ErrorIs(t, &ExtractionError{Source: "a.pdf", Err: cause}, ErrExtraction)
	assert.ErrorIs(t, &ExtractionError{Source: "a.pdf", Err: cause}, cause)
	assert.ErrorIs(t, &ClassificationError{ChunkID: "c", Attempts: 2, Err: cause}, ErrClassification)
	assert.ErrorIs(t, &SuggestionError{ChunkID: "c", Phrase: "p", Err: cause}, ErrSuggestion)
	assert.ErrorIs(t, &RetrievalError{Err: cause}, ErrRetrievalUnavailable)

	wrapped := fmt.Errorf("load: %w", NewConfigError("chunk_size", "must be positive"))
	assert.ErrorIs(t, wrapped, ErrConfig)
	assert.NotErrorIs(t, wrapped, ErrExtraction)
}

func TestAnalyzeParamsValidate(t *testing.T) {
	ok := 0.4
	params := AnalyzeParams{PageSelection: PageRange(1, 2), Threshold: &ok}
	assert.Empty(t, params.Validate())

	bad := 1.5
	params = AnalyzeParams{PageSelection: PageSelection{Mode: "weird"}, Threshold: &bad}
	errs := params.Validate()
	assert.Contains(t, errs, "Mode")
	assert.Contains(t, errs, "Threshold")

	export := ExportParams{Format: "xml"}
	assert.Contains(t, export.Validate(), "Format")
}
