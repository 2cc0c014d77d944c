package agent

import (
	"regexp"
	"strings"

	"vagueness/types"
)

// Qualifier is a rule set describing one vagueness category.
type Qualifier struct {
	Category    types.Category
	Description string
	Keywords    []string
	Patterns    []*regexp.Regexp
	Examples    []string
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

var Qualifiers = []Qualifier{
	{
		Category:    types.CategoryAbstractness,
		Description: "Subjective adjectives/adverbs needing personal interpretation",
		Keywords:    []string{"user friendly", "reasonable", "appropriate", "adequate", "suitable", "satisfactory", "acceptable", "sufficient", "substantial", "considerable"},
		Patterns: patterns(
			`\b(quality|user[\s-]friendly|reasonable|appropriate)\b`,
			`\b(adequate|suitable|proper|efficient|effective)\b`,
			`\b(good|bad|excellent|poor|satisfactory)\b`,
			`\b(acceptable|sufficient|necessary|important)\b`,
			`\b(significant|minor|major|substantial|considerable)\b`,
		),
		Examples: []string{"quality food", "user friendly interface", "reasonable price", "appropriate measures"},
	},
	{
		Category:    types.CategoryModifiers,
		Description: "Fuzzy, scalable concepts without objective bounds",
		Keywords:    []string{"approximately", "roughly", "as much as", "close to", "up to"},
		Patterns: patterns(
			`\b(larger|smaller|faster|slower|better|worse)\b`,
			`\b(more|less|higher|lower|greater|lesser)\b`,
			`\b(improved|enhanced|optimized)\b`,
			`\b(approximately|about|around|roughly|nearly)\b`,
			`\b(almost|close\s+to|up\s+to)\b`,
		),
		Examples: []string{"larger than previous", "faster performance", "better quality", "approximately 100 units"},
	},
	{
		Category:    types.CategoryReferent,
		Description: "Structural issues that obscure the actor or referent",
		Keywords:    []string{"aforementioned", "said"},
		Patterns: patterns(
			`\b(it|they|them|this|that|these|those)\s+\w+`,
			`\b(such|said|aforementioned)\b`,
			`\b(implementation|execution|completion|establishment)\s+of\b`,
			`\b(development|creation|formation|construction)\s+of\b`,
		),
		Examples: []string{"it should be done", "they will complete", "implementation of plan", "execution of work"},
	},
	{
		Category:    types.CategoryOpenEnded,
		Description: "Conditional phrasing that creates escape clauses",
		Keywords:    []string{"if feasible", "where possible", "if necessary", "as required", "when needed", "if applicable", "as deemed necessary", "at discretion"},
		Patterns: patterns(
			`\b(if|where)\s+(feasible|possible|necessary|required|applicable)\b`,
			`\b(when|as)\s+(needed|required|appropriate|deemed)\b`,
			`\b(may|might|could|should|would)\b`,
			`\b(not\s+limited\s+to|including\s+but\s+not\s+limited\s+to)\b`,
			`\b(etc|and\s+so\s+on|among\s+others|and\s+the\s+like)\b`,
			`\b(subject\s+to|depending\s+on)\b`,
		),
		Examples: []string{"if feasible", "where possible", "not limited to", "may be required"},
	},
	{
		Category:    types.CategoryNegative,
		Description: "Passive voice or negative commands reducing clarity",
		Keywords:    []string{"is to be", "are to be", "shall not", "must not", "cannot"},
		Patterns: patterns(
			`\b(will|shall|should|must|can|may)\s+be\s+\w+`,
			`\b(is|are|was|were)\s+to\s+be\s+\w+`,
			`\b(should|must|cannot|may|will|shall)\s+not\b`,
			`\b(is|are)\s+not\s+to\b`,
		),
		Examples: []string{"Payment will be issued", "Work shall be completed", "should not work with", "must not exceed"},
	},
}

var keywordRe = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp)
	for _, q := range Qualifiers {
		for _, k := range q.Keywords {
			m[k] = regexp.MustCompile(`(?i)\b` + strings.ReplaceAll(regexp.QuoteMeta(k), " ", `\s+`) + `\b`)
		}
	}
	return m
}()

// ScanQualifiers runs the rule-based pre-scan over text. Matches are hints
// for the model, never a verdict.
func ScanQualifiers(text string) []types.RuleMatch {
	var out []types.RuleMatch
	seen := make(map[string]struct{})
	add := func(c types.Category, kind, match string) {
		key := string(c) + "|" + strings.ToLower(match)
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, types.RuleMatch{Category: c, Kind: kind, Match: match})
	}

	for _, q := range Qualifiers {
		for _, k := range q.Keywords {
			if m := keywordRe[k].FindString(text); m != "" {
				add(q.Category, "keyword", m)
			}
		}
		for _, p := range q.Patterns {
			for _, m := range p.FindAllString(text, -1) {
				add(q.Category, "pattern", m)
			}
		}
	}
	return out
}

var CommonAcronyms = map[string]string{
	"IS":   "Indian Standard",
	"CPWD": "Central Public Works Department",
	"PWD":  "Public Works Department",
	"RCC":  "Reinforced Cement Concrete",
	"PCC":  "Plain Cement Concrete",
	"DPC":  "Damp Proof Course",
	"BOQ":  "Bill of Quantities",
	"SOR":  "Schedule of Rates",
	"HVAC": "Heating, Ventilation, and Air Conditioning",
	"PSC":  "Prestressed Concrete",
	"TMT":  "Thermo-Mechanically Treated",
	"OPC":  "Ordinary Portland Cement",
	"PPC":  "Portland Pozzolana Cement",
}

var acronymRe = regexp.MustCompile(`\b[A-Z]{2,}(?:\d+)?(?::[A-Z]?\d+)?\b`)

// DetectAcronyms lists distinct acronyms in order of first appearance.
func DetectAcronyms(text string) []types.Acronym {
	var out []types.Acronym
	seen := make(map[string]struct{})
	for _, a := range acronymRe.FindAllString(text, -1) {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		meaning, known := CommonAcronyms[a]
		out = append(out, types.Acronym{Acronym: a, Meaning: meaning, Known: known})
	}
	return out
}
