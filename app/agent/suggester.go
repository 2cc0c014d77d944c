package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"vagueness/model"
	"vagueness/types"
)

type suggestionReply struct {
	ImprovedText        string   `json:"improved_text"`
	SpecificChanges     []string `json:"specific_changes"`
	StandardsReferenced []string `json:"standards_referenced"`
	Explanation         string   `json:"explanation"`
}

func checkSuggestion(r *suggestionReply) error {
	if strings.TrimSpace(r.ImprovedText) == "" {
		return errors.New("missing improved_text")
	}
	return nil
}

type SuggesterConfig struct {
	CallConfig
	// MaxReferences caps how many passages go into the prompt.
	MaxReferences int
	// MaxReferenceTokens caps each passage.
	MaxReferenceTokens int
}

type SuggestRequest struct {
	ChunkID     string
	Text        string
	Phrase      string
	Category    types.Category
	SearchTerms []string
	Passages    []types.ScoredReference
}

type Suggester struct {
	caller caller
	cfg    SuggesterConfig
	tokens *model.TokenCounter
	logger *slog.Logger
}

func NewSuggester(r model.Reasoner, cfg SuggesterConfig) *Suggester {
	if cfg.MaxReferences <= 0 {
		cfg.MaxReferences = 3
	}
	if cfg.MaxReferenceTokens <= 0 {
		cfg.MaxReferenceTokens = 400
	}
	return &Suggester{
		caller: newCaller(r, cfg.CallConfig),
		cfg:    cfg,
		tokens: model.NewTokenCounter(),
		logger: slog.Default(),
	}
}

// Suggest writes a rewrite for one flagged phrase. Citations are kept only
// when they can be found in the supplied passages; with no passages the
// suggestion carries no citations and is marked low confidence.
func (s *Suggester) Suggest(ctx context.Context, req SuggestRequest) (types.Suggestion, error) {
	passages := req.Passages
	if len(passages) > s.cfg.MaxReferences {
		passages = passages[:s.cfg.MaxReferences]
	}

	sugg := types.Suggestion{
		ChunkID:             req.ChunkID,
		VaguePhrase:         req.Phrase,
		Category:            req.Category,
		OriginalText:        req.Text,
		SearchTerms:         req.SearchTerms,
		StandardsReferenced: []string{},
		ReferencesUsed:      []string{},
	}

	prompt := suggestionPrompt(req.Text, req.Phrase, req.Category, s.buildContext(passages))
	reply, _, err := ask(ctx, s.caller, prompt, suggestionShape, checkSuggestion)
	if err != nil {
		if ctx.Err() != nil {
			return sugg, ctx.Err()
		}
		return sugg, &types.SuggestionError{ChunkID: req.ChunkID, Phrase: req.Phrase, Err: err}
	}
	v := reply.Value

	sugg.ImprovedText = strings.TrimSpace(v.ImprovedText)
	sugg.Explanation = v.Explanation
	sugg.SpecificChanges = ensurePhrase(cleanTerms(v.SpecificChanges, 20), req.Phrase, sugg.ImprovedText)

	for _, p := range passages {
		sugg.ReferencesUsed = append(sugg.ReferencesUsed, p.ID.String())
	}
	seen := make(map[string]bool)
	for _, cite := range cleanTerms(v.StandardsReferenced, 20) {
		name, ok := grounded(cite, passages)
		if !ok {
			s.logger.Debug("[SUGGEST] dropping citation absent from references", "chunk", req.ChunkID, "citation", cite)
			continue
		}
		if !seen[name] {
			seen[name] = true
			sugg.StandardsReferenced = append(sugg.StandardsReferenced, name)
		}
	}
	sugg.LowConfidence = len(passages) == 0 || len(sugg.StandardsReferenced) == 0
	return sugg, nil
}

func (s *Suggester) buildContext(passages []types.ScoredReference) string {
	var b strings.Builder
	for i, p := range passages {
		fmt.Fprintf(&b, "[R%d] %s (%s, similarity %.2f)\n", i+1, p.Title, p.Corpus, p.Score)
		b.WriteString(s.tokens.Truncate(p.Text, s.cfg.MaxReferenceTokens))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// grounded reports whether a citation names something present in the
// passages: its text, a passage title, or a passage label such as "R2".
// A label resolves to the title of the passage it points at.
func grounded(cite string, passages []types.ScoredReference) (string, bool) {
	key := squash(cite)
	if key == "" {
		return "", false
	}
	for i, p := range passages {
		if key == fmt.Sprintf("r%d", i+1) || key == fmt.Sprintf("[r%d]", i+1) {
			if p.Title == "" {
				return p.Source, p.Source != ""
			}
			return p.Title, true
		}
	}
	for _, p := range passages {
		title := squash(p.Title)
		if strings.Contains(squash(p.Text), key) || (title != "" && (strings.Contains(title, key) || strings.Contains(key, title))) {
			return cite, true
		}
	}
	return "", false
}

// ensurePhrase makes sure the list of changes names the phrase verbatim.
func ensurePhrase(changes []string, phrase, improved string) []string {
	for _, c := range changes {
		if strings.Contains(c, phrase) {
			return changes
		}
	}
	entry := fmt.Sprintf("Replaced %q", phrase)
	if improved != "" {
		entry = fmt.Sprintf("Replaced %q with a measurable requirement: %s", phrase, improved)
	}
	return append([]string{entry}, changes...)
}
