package agent

import (
	"context"
	"log/slog"
	"strings"

	"vagueness/model"
	"vagueness/types"
)

const MaxSearchTerms = 5

type locationReply struct {
	Documents []string `json:"suggested_documents"`
	Terms     []string `json:"search_terms"`
	Reasoning string   `json:"reasoning"`
}

// Location is the locator's answer. Terms are hints for retrieval only.
type Location struct {
	Terms     []string `json:"search_terms"`
	Documents []string `json:"suggested_documents"`
	Reasoning string   `json:"reasoning"`
}

func (l Location) Empty() bool {
	return len(l.Terms) == 0
}

type Locator struct {
	caller caller
	logger *slog.Logger
}

func NewLocator(r model.Reasoner, cfg CallConfig) *Locator {
	return &Locator{caller: newCaller(r, cfg), logger: slog.Default()}
}

// Locate proposes search terms for the reference index. An empty result is
// valid and means no standard applies.
func (l *Locator) Locate(ctx context.Context, chunkID, phrase, surrounding string) (Location, error) {
	reply, _, err := ask(ctx, l.caller, locationPrompt(phrase, surrounding), locationShape, func(*locationReply) error { return nil })
	if err != nil {
		if ctx.Err() != nil {
			return Location{}, ctx.Err()
		}
		return Location{}, &types.SuggestionError{ChunkID: chunkID, Phrase: phrase, Err: err}
	}

	loc := Location{
		Terms:     cleanTerms(reply.Value.Terms, MaxSearchTerms),
		Documents: cleanTerms(reply.Value.Documents, MaxSearchTerms),
		Reasoning: reply.Value.Reasoning,
	}
	l.logger.Debug("[LOCATE] search terms", "chunk", chunkID, "phrase", phrase, "terms", loc.Terms)
	return loc, nil
}

// cleanTerms trims, drops blanks and case-insensitive duplicates, and caps
// the list at limit entries.
func cleanTerms(in []string, limit int) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{})
	for _, t := range in {
		t = strings.Join(strings.Fields(t), " ")
		if t == "" {
			continue
		}
		key := strings.ToLower(t)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
		if len(out) == limit {
			break
		}
	}
	return out
}
