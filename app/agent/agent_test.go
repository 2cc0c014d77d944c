package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vagueness/model"
	"vagueness/types"
)

// scripted replays canned replies in order and records prompts.
type scripted struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (s *scripted) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
	if len(s.replies) == 0 {
		return "", errors.New("no scripted reply left")
	}
	r := s.replies[0]
	s.replies = s.replies[1:]
	return r.text, r.err
}

func (s *scripted) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func script(replies ...string) *scripted {
	s := &scripted{}
	for _, r := range replies {
		s.replies = append(s.replies, reply{text: r})
	}
	return s
}

var fastRetry = CallConfig{MaxRetries: 1, Backoff: time.Millisecond}

const tenderText = "The contractor shall use quality materials where possible. Payment will be issued upon completion."

func tenderChunk() types.Chunk {
	return types.Chunk{ID: types.ChunkID(uuid.New(), 0), Text: tenderText, Pages: []int{3}}
}

func TestScanQualifiers(t *testing.T) {
	matches := ScanQualifiers(tenderText)
	byCat := make(map[types.Category][]string)
	for _, m := range matches {
		byCat[m.Category] = append(byCat[m.Category], strings.ToLower(m.Match))
	}
	assert.Contains(t, byCat[types.CategoryAbstractness], "quality")
	assert.Contains(t, byCat[types.CategoryOpenEnded], "where possible")
	assert.Contains(t, byCat[types.CategoryNegative], "will be issued")

	assert.Empty(t, ScanQualifiers("Concrete grade M25 per IS 456:2000 clause 6.1."), "Expected no rule hits on precise text")
}

func TestDetectAcronyms(t *testing.T) {
	got := DetectAcronyms("Use OPC as per IS 456 and the CPWD manual. XYZ applies. OPC again.")
	require.Len(t, got, 4)
	assert.Equal(t, types.Acronym{Acronym: "OPC", Meaning: "Ordinary Portland Cement", Known: true}, got[0])
	assert.Equal(t, "IS", got[1].Acronym)
	assert.Equal(t, "XYZ", got[3].Acronym)
	assert.False(t, got[3].Known)
}

func TestParseReply(t *testing.T) {
	ok := ParseReply(`{"improved_text":"x"}`, checkSuggestion)
	assert.False(t, ok.Malformed)
	assert.Equal(t, "x", ok.Value.ImprovedText)

	bad := ParseReply(`{"improved_text":""}`, checkSuggestion)
	assert.True(t, bad.Malformed)
	assert.Equal(t, `{"improved_text":""}`, bad.Raw)
	assert.Error(t, bad.Reason)
}

func TestClassifyVague(t *testing.T) {
	r := script(`{"is_vague": true, "vagueness_score": 0.8,
		"vague_phrases": [{"phrase": "quality materials", "category": "abstractness_subjective"},
		                  {"phrase": "where possible", "category": "Open-Ended / Non-Verifiable Terms"},
		                  {"phrase": "invented phrase", "category": "ambiguous_modifiers"}],
		"severity": "high", "explanation": "subjective"}`)
	c := NewClassifier(r, fastRetry)

	res, err := c.Classify(context.Background(), tenderChunk(), DefaultThreshold)
	require.NoError(t, err)
	assert.True(t, res.IsVague)
	assert.Equal(t, 0.8, res.Score)
	assert.Equal(t, types.SeverityHigh, res.Severity)
	require.Len(t, res.Phrases, 2, "Expected phrases absent from the chunk to be dropped")
	assert.Equal(t, types.CategoryOpenEnded, res.Phrases[1].Category)
	assert.NotEmpty(t, res.RuleMatches)
	assert.Equal(t, []int{3}, res.Pages)
	assert.Contains(t, r.prompts[0], "where possible", "Expected rule hints in the prompt")
}

func TestClassifyThresholdRules(t *testing.T) {
	t.Run("score clamped", func(t *testing.T) {
		r := script(`{"vagueness_score": 3.5, "vague_phrases": [{"phrase":"quality","category":"abstractness_subjective"}]}`)
		res, err := NewClassifier(r, fastRetry).Classify(context.Background(), tenderChunk(), 0.3)
		require.NoError(t, err)
		assert.Equal(t, 1.0, res.Score)
		assert.True(t, res.IsVague)
		assert.Equal(t, types.SeverityHigh, res.Severity, "Expected severity derived from score")
	})

	t.Run("below threshold", func(t *testing.T) {
		r := script(`{"is_vague": true, "vagueness_score": 0.2, "vague_phrases": [{"phrase":"quality","category":"abstractness_subjective"}]}`)
		res, err := NewClassifier(r, fastRetry).Classify(context.Background(), tenderChunk(), 0.3)
		require.NoError(t, err)
		assert.False(t, res.IsVague)
		assert.Equal(t, types.SeverityNone, res.Severity)
	})

	t.Run("score above threshold without phrases", func(t *testing.T) {
		r := script(`{"is_vague": true, "vagueness_score": 0.9, "vague_phrases": []}`)
		res, err := NewClassifier(r, fastRetry).Classify(context.Background(), tenderChunk(), 0.3)
		require.NoError(t, err)
		assert.False(t, res.IsVague, "Expected no phrases to mean not vague")
	})

	t.Run("negative score", func(t *testing.T) {
		r := script(`{"vagueness_score": -2, "vague_phrases": []}`)
		res, err := NewClassifier(r, fastRetry).Classify(context.Background(), tenderChunk(), 0.3)
		require.NoError(t, err)
		assert.Equal(t, 0.0, res.Score)
	})
}

func TestClassifyRepairsOnce(t *testing.T) {
	r := script(
		"I think it is vague!",
		`{"vagueness_score": 0.6, "vague_phrases": [{"phrase":"where possible","category":"open_ended_terms"}]}`,
	)
	res, err := NewClassifier(r, fastRetry).Classify(context.Background(), tenderChunk(), 0.3)
	require.NoError(t, err)
	assert.True(t, res.IsVague)
	require.Equal(t, 2, r.calls())
	assert.Contains(t, r.prompts[1], "I think it is vague!", "Expected repair prompt to quote the bad reply")
}

func TestClassifyFailsAfterTwoMalformed(t *testing.T) {
	r := script("nope", `{"vague_phrases": [{"phrase":"x","category":"grammar"}]}`)
	_, err := NewClassifier(r, fastRetry).Classify(context.Background(), tenderChunk(), 0.3)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrClassification)
	assert.ErrorIs(t, err, ErrMalformedReply)
	var ce *types.ClassificationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Attempts)
	assert.Equal(t, 2, r.calls())
}

func TestClassifyRetriesTimeout(t *testing.T) {
	r := &scripted{replies: []reply{
		{err: model.ErrTimeout},
		{text: `{"vagueness_score": 0.1, "vague_phrases": []}`},
	}}
	res, err := NewClassifier(r, fastRetry).Classify(context.Background(), tenderChunk(), 0.3)
	require.NoError(t, err)
	assert.False(t, res.IsVague)
	assert.Equal(t, 2, r.calls())
}

func TestClassifyPermanentError(t *testing.T) {
	r := &scripted{replies: []reply{{err: errors.New("model not found")}}}
	_, err := NewClassifier(r, fastRetry).Classify(context.Background(), tenderChunk(), 0.3)
	assert.ErrorIs(t, err, types.ErrClassification)
	assert.Equal(t, 1, r.calls(), "Expected no retry for a permanent error")
}

func TestClassifyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := script(`{}`)
	_, err := NewClassifier(r, fastRetry).Classify(ctx, tenderChunk(), 0.3)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, types.ErrClassification)
	assert.Equal(t, 0, r.calls())
}

func TestLocate(t *testing.T) {
	r := script(`{"suggested_documents": ["IS 456"], "search_terms": [" concrete  grade ", "Concrete Grade", "", "curing period"], "reasoning": "concrete"}`)
	loc, err := NewLocator(r, fastRetry).Locate(context.Background(), "c:0", "quality materials", tenderText)
	require.NoError(t, err)
	assert.Equal(t, []string{"concrete grade", "curing period"}, loc.Terms)
	assert.Equal(t, []string{"IS 456"}, loc.Documents)
	assert.False(t, loc.Empty())

	empty, err := NewLocator(script(`{"search_terms": []}`), fastRetry).Locate(context.Background(), "c:0", "it", tenderText)
	require.NoError(t, err)
	assert.True(t, empty.Empty())
}

func TestLocateFailure(t *testing.T) {
	_, err := NewLocator(script("x", "y"), fastRetry).Locate(context.Background(), "c:0", "it", tenderText)
	assert.ErrorIs(t, err, types.ErrSuggestion)
}

func passage(title, text string) types.ScoredReference {
	return types.ScoredReference{
		ReferenceChunk: types.ReferenceChunk{ID: uuid.New(), Corpus: "is", Title: title, Text: text},
		Score:          0.8,
	}
}

func TestSuggestGrounded(t *testing.T) {
	r := script(`{"improved_text": "The contractor shall use materials conforming to IS 456.",
		"specific_changes": ["Replaced 'quality materials' with IS 456 conformance"],
		"standards_referenced": ["IS 456", "ASTM C150"],
		"explanation": "measurable"}`)
	s := NewSuggester(r, SuggesterConfig{CallConfig: fastRetry})

	sugg, err := s.Suggest(context.Background(), SuggestRequest{
		ChunkID:     "c:0",
		Text:        tenderText,
		Phrase:      "quality materials",
		Category:    types.CategoryAbstractness,
		SearchTerms: []string{"concrete"},
		Passages:    []types.ScoredReference{passage("IS 456 Plain and Reinforced Concrete", "Materials shall conform to IS 456 clause 5.")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"IS 456"}, sugg.StandardsReferenced, "Expected ungrounded citation dropped")
	assert.False(t, sugg.LowConfidence)
	assert.Len(t, sugg.ReferencesUsed, 1)
	assert.Contains(t, sugg.SpecificChanges[0], "quality materials")
	assert.Contains(t, r.prompts[0], "[R1] IS 456")
}

func TestSuggestResolvesPassageLabels(t *testing.T) {
	r := script(`{"improved_text": "Cure for at least 7 days.",
		"standards_referenced": ["R2", "[R1]", "IS 456 Plain and Reinforced Concrete", "R7"]}`)
	s := NewSuggester(r, SuggesterConfig{CallConfig: fastRetry})

	sugg, err := s.Suggest(context.Background(), SuggestRequest{
		ChunkID:  "c:0",
		Text:     tenderText,
		Phrase:   "as required",
		Category: types.CategoryOpenEnded,
		Passages: []types.ScoredReference{
			passage("IS 456 Plain and Reinforced Concrete", "Curing shall continue for at least 7 days."),
			passage("IS 383 Coarse and Fine Aggregates", "Aggregates shall be clean."),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{
		"IS 383 Coarse and Fine Aggregates",
		"IS 456 Plain and Reinforced Concrete",
	}, sugg.StandardsReferenced, "Expected labels mapped to titles, duplicates folded and R7 dropped")
}

func TestSuggestWithoutPassages(t *testing.T) {
	r := script(`{"improved_text": "Use M25 concrete.", "specific_changes": [], "standards_referenced": ["IS 456"]}`)
	s := NewSuggester(r, SuggesterConfig{CallConfig: fastRetry})

	sugg, err := s.Suggest(context.Background(), SuggestRequest{
		ChunkID: "c:0", Text: tenderText, Phrase: "quality materials", Category: types.CategoryAbstractness,
	})
	require.NoError(t, err)
	assert.NotNil(t, sugg.StandardsReferenced)
	assert.Empty(t, sugg.StandardsReferenced, "Expected no citations without references")
	assert.True(t, sugg.LowConfidence)
	require.NotEmpty(t, sugg.SpecificChanges)
	assert.Contains(t, sugg.SpecificChanges[0], `"quality materials"`, "Expected the changed phrase to be named verbatim")
	assert.Contains(t, r.prompts[0], "No specific reference found.")
}

func TestSuggestCapsReferences(t *testing.T) {
	r := script(`{"improved_text": "x"}`)
	s := NewSuggester(r, SuggesterConfig{CallConfig: fastRetry, MaxReferences: 2})
	ps := []types.ScoredReference{passage("A", "a"), passage("B", "b"), passage("C", "c")}

	sugg, err := s.Suggest(context.Background(), SuggestRequest{ChunkID: "c:0", Text: "t", Phrase: "p", Passages: ps})
	require.NoError(t, err)
	assert.Len(t, sugg.ReferencesUsed, 2)
	assert.NotContains(t, r.prompts[0], "[R3]")
}

func TestSuggestFailure(t *testing.T) {
	s := NewSuggester(script(`{"improved_text": ""}`, `{}`), SuggesterConfig{CallConfig: fastRetry})
	_, err := s.Suggest(context.Background(), SuggestRequest{ChunkID: "c:0", Text: "t", Phrase: "p"})
	assert.ErrorIs(t, err, types.ErrSuggestion)
}
