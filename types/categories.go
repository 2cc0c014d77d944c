package types

import "strings"

type Category string

const (
	CategoryAbstractness Category = "abstractness_subjective"
	CategoryModifiers    Category = "ambiguous_modifiers"
	CategoryReferent     Category = "referent_ambiguity"
	CategoryOpenEnded    Category = "open_ended_terms"
	CategoryNegative     Category = "negative_passive"
)

var Categories = []Category{
	CategoryAbstractness,
	CategoryModifiers,
	CategoryReferent,
	CategoryOpenEnded,
	CategoryNegative,
}

var categoryNames = map[Category]string{
	CategoryAbstractness: "Abstractness & Subjective Language",
	CategoryModifiers:    "Ambiguous Modifiers & Comparative Phrases",
	CategoryReferent:     "Referent Ambiguity & Complex Noun Phrases",
	CategoryOpenEnded:    "Open-Ended / Non-Verifiable Terms & Loopholes",
	CategoryNegative:     "Negative & Passive Structures",
}

func (c Category) Name() string {
	if n, ok := categoryNames[c]; ok {
		return n
	}
	return string(c)
}

func (c Category) Valid() bool {
	_, ok := categoryNames[c]
	return ok
}

// ParseCategory accepts a key, a display name or a loose prefix of the name
// ("Ambiguous Modifiers") as models tend to answer with any of them.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	key := Category(strings.ToLower(s))
	if key.Valid() {
		return key, true
	}
	low := strings.ToLower(s)
	for _, c := range Categories {
		name := strings.ToLower(c.Name())
		if name == low || strings.HasPrefix(name, low) || strings.HasPrefix(low, name) {
			return c, true
		}
		head, _, _ := strings.Cut(name, " & ")
		if strings.HasPrefix(low, head) {
			return c, true
		}
	}
	return "", false
}

type Severity string

const (
	SeverityNone   Severity = "none"
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

const (
	LowSeverityScore    = 0.3
	MediumSeverityScore = 0.5
	HighSeverityScore   = 0.7
)

func ParseSeverity(s string) (Severity, bool) {
	switch Severity(strings.ToLower(strings.TrimSpace(s))) {
	case SeverityLow:
		return SeverityLow, true
	case SeverityMedium:
		return SeverityMedium, true
	case SeverityHigh:
		return SeverityHigh, true
	}
	return "", false
}

// SeverityFromScore maps a vagueness score onto the severity bands.
func SeverityFromScore(score float64) Severity {
	switch {
	case score >= HighSeverityScore:
		return SeverityHigh
	case score >= MediumSeverityScore:
		return SeverityMedium
	case score >= LowSeverityScore:
		return SeverityLow
	}
	return SeverityNone
}

// Stage is a step of the per-chunk pipeline.
type Stage string

const (
	StageLoaded     Stage = "loaded"
	StageSelected   Stage = "selected"
	StageClassified Stage = "classified"
	StageLocated    Stage = "located"
	StageRetrieved  Stage = "retrieved"
	StageSuggested  Stage = "suggested"
	StageReported   Stage = "reported"
	StageFailed     Stage = "failed"
)
