package agent

import (
	"fmt"
	"strings"

	"vagueness/types"
)

const classificationShape = `{
  "is_vague": true,
  "vagueness_score": 0.0,
  "vague_phrases": [{"phrase": "", "category": ""}],
  "severity": "low|medium|high",
  "explanation": ""
}`

const locationShape = `{
  "suggested_documents": [""],
  "search_terms": [""],
  "reasoning": ""
}`

const suggestionShape = `{
  "improved_text": "",
  "specific_changes": [""],
  "standards_referenced": [""],
  "explanation": ""
}`

func classificationPrompt(text string, hints []types.RuleMatch) string {
	var b strings.Builder
	b.WriteString(`You are an expert in analyzing technical and contractual documents for vague, ambiguous, or poorly defined language.

Analyze the following text and identify any vague or ambiguous language.

TEXT:
<<<
`)
	b.WriteString(text)
	b.WriteString(`
>>>

Classify every vague phrase into exactly one of these categories (use the key):
`)
	for _, c := range types.Categories {
		fmt.Fprintf(&b, "- %s: %s\n", c, c.Name())
	}
	if len(hints) > 0 {
		b.WriteString("\nA keyword scan flagged these candidates. They may be false positives:\n")
		for _, h := range hints {
			fmt.Fprintf(&b, "- %q (%s)\n", h.Match, h.Category)
		}
	}
	b.WriteString(`
RULES:
- Every phrase MUST be copied verbatim from the text.
- vagueness_score is a number between 0 and 1 for the whole text.
- If the text is clear, return an empty vague_phrases array and a low score.

Respond with JSON only, in this format:
`)
	b.WriteString(classificationShape)
	return b.String()
}

func locationPrompt(phrase, context string) string {
	return fmt.Sprintf(`You are an expert in construction standards, IS Codes, CPWD manuals and technical specifications.

Given this vague phrase from a tender document: %q
Context: %q

Identify which specific reference documents or standards would help clarify this vague language,
and the search terms that would find the relevant clauses in them.
Focus on specific codes (like IS 456 for concrete, IS 383 for aggregates) when applicable.
If no standard could help, return an empty search_terms array.

Respond with JSON only, in this format:
%s`, phrase, context, locationShape)
}

func suggestionPrompt(text, phrase string, category types.Category, references string) string {
	if references == "" {
		references = "No specific reference found."
	}
	return fmt.Sprintf(`You are an expert in improving technical and contractual language for construction tenders.

ORIGINAL TEXT: %q
VAGUE PHRASE: %q
VAGUENESS TYPE: %s

REFERENCE CONTEXT FROM STANDARDS:
%s

Based on the reference standards, provide a specific, clear, and measurable improvement for this vague language.

Your suggestion should:
1. Remove ambiguity and subjectivity
2. Reference specific standards or codes only if they appear in the reference context
3. Use precise, measurable terms
4. Maintain the original intent

Respond with JSON only, in this format:
%s`, text, phrase, category.Name(), references, suggestionShape)
}
