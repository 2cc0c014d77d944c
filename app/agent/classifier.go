package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"vagueness/model"
	"vagueness/types"
)

const DefaultThreshold = 0.3

type phraseReply struct {
	Phrase   string `json:"phrase"`
	Category string `json:"category"`
}

type classificationReply struct {
	IsVague     bool          `json:"is_vague"`
	Score       *float64      `json:"vagueness_score"`
	Phrases     []phraseReply `json:"vague_phrases"`
	Severity    string        `json:"severity"`
	Explanation string        `json:"explanation"`
}

func checkClassification(r *classificationReply) error {
	if r.Phrases == nil {
		return errors.New("missing vague_phrases")
	}
	for i, p := range r.Phrases {
		if strings.TrimSpace(p.Phrase) == "" {
			return fmt.Errorf("vague_phrases[%d] has no phrase", i)
		}
		if _, ok := types.ParseCategory(p.Category); !ok {
			return fmt.Errorf("vague_phrases[%d] has unknown category %q", i, p.Category)
		}
	}
	return nil
}

type Classifier struct {
	caller caller
	logger *slog.Logger
}

func NewClassifier(r model.Reasoner, cfg CallConfig) *Classifier {
	return &Classifier{
		caller: newCaller(r, cfg),
		logger: slog.Default(),
	}
}

// Classify asks the model whether chunk is vague. A reply that does not fit
// the schema is retried once with a reformatting prompt; a second failure is
// a ClassificationError for this chunk only. Cancellation is returned as the
// context error.
func (c *Classifier) Classify(ctx context.Context, chunk types.Chunk, threshold float64) (types.ClassificationResult, error) {
	hints := ScanQualifiers(chunk.Text)
	result := types.ClassificationResult{
		ChunkID:     chunk.ID,
		Pages:       chunk.Pages,
		Text:        chunk.Text,
		RuleMatches: hints,
		Acronyms:    DetectAcronyms(chunk.Text),
	}

	reply, attempts, err := ask(ctx, c.caller, classificationPrompt(chunk.Text, hints), classificationShape, checkClassification)
	if err != nil {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		return result, &types.ClassificationError{ChunkID: chunk.ID, Attempts: attempts, Err: err}
	}
	v := reply.Value

	lowText := squash(chunk.Text)
	seen := make(map[string]struct{})
	for _, p := range v.Phrases {
		phrase := strings.TrimSpace(p.Phrase)
		key := squash(phrase)
		if !strings.Contains(lowText, key) {
			c.logger.Debug("[CLASSIFY] dropping phrase not found in chunk", "chunk", chunk.ID, "phrase", phrase)
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		cat, _ := types.ParseCategory(p.Category)
		result.Phrases = append(result.Phrases, types.FlaggedPhrase{Phrase: phrase, Category: cat})
	}

	result.Score = c.score(v, hints)
	result.Explanation = v.Explanation
	result.IsVague = result.Score >= threshold && len(result.Phrases) > 0
	if result.Score >= threshold && len(result.Phrases) == 0 {
		c.logger.Warn("[CLASSIFY] score above threshold without phrases, treating as clear",
			"chunk", chunk.ID, "score", result.Score)
	}
	if v.IsVague != result.IsVague {
		c.logger.Debug("[CLASSIFY] model verdict differs from threshold decision",
			"chunk", chunk.ID, "model", v.IsVague, "decision", result.IsVague)
	}

	switch {
	case !result.IsVague:
		result.Severity = types.SeverityNone
	default:
		if sev, ok := types.ParseSeverity(v.Severity); ok {
			result.Severity = sev
		} else if sev := types.SeverityFromScore(result.Score); sev != types.SeverityNone {
			result.Severity = sev
		} else {
			result.Severity = types.SeverityLow
		}
	}
	result.ClassifiedAt = time.Now()
	return result, nil
}

// score clamps the model's score to [0,1]. Without a score it blends the
// rule matches with the model's severity.
func (c *Classifier) score(v classificationReply, hints []types.RuleMatch) float64 {
	if v.Score != nil {
		return clamp(*v.Score)
	}
	score := min(float64(len(hints))*0.1, 0.5)
	if v.IsVague {
		switch sev, _ := types.ParseSeverity(v.Severity); sev {
		case types.SeverityLow:
			score += 0.2
		case types.SeverityHigh:
			score += 0.5
		default:
			score += 0.35
		}
	}
	return clamp(score)
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// squash lowercases s and collapses whitespace runs, so phrases survive line
// breaks introduced by extraction.
func squash(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
