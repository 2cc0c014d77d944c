package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var ErrNoJSON = errors.New("no valid json found")

// ExtractJSON returns the outermost JSON object in a model reply, ignoring
// markdown fences and chatter around it.
func ExtractJSON(s string) (string, error) {
	if i := strings.Index(s, "```json"); i >= 0 {
		rest := s[i+len("```json"):]
		if j := strings.Index(rest, "```"); j >= 0 {
			s = rest[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")

	if start == -1 || end == -1 || end <= start {
		return s, ErrNoJSON
	}

	return s[start : end+1], nil
}

// DecodeJSON extracts and unmarshals the JSON object of a reply into T.
func DecodeJSON[T any](raw string) (T, error) {
	var out T
	js, err := ExtractJSON(raw)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(js), &out); err != nil {
		return out, fmt.Errorf("decode reply: %w", err)
	}
	return out, nil
}

// BuildRepairPrompt asks the model to restate a bad reply so that it matches
// the given JSON shape.
func BuildRepairPrompt(badOutput, shape string) string {
	return fmt.Sprintf(`
You previously returned output that does not match the required JSON format.

Your task is to FIX it.

RULES:
- Output ONLY valid JSON
- Use EXACTLY the keys of the required format
- Do NOT add or remove information
- Do NOT add explanations
- Do NOT include markdown
- Do NOT include text outside JSON

REQUIRED FORMAT:
%s

INVALID OUTPUT:
<<<
%s
>>>

Return the corrected JSON only.
`, shape, badOutput)
}
