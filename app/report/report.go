// Package report renders analysis runs for export.
package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"vagueness/types"
)

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case FormatJSON, "":
		return FormatJSON, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", types.NewConfigError("format", "unsupported export format %q", s)
}

func (f Format) ContentType() string {
	if f == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/json"
}

func (f Format) Extension() string {
	return string(f)
}

// Write renders run in the requested format.
func Write(w io.Writer, run *types.AnalysisRun, f Format) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, run)
	case FormatJSON, "":
		return WriteJSON(w, run)
	}
	return types.NewConfigError("format", "unsupported export format %q", f)
}

// WriteJSON writes the full nested run record.
func WriteJSON(w io.Writer, run *types.AnalysisRun) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

var Header = []string{
	"run_id", "document", "chunk_id", "pages", "status", "is_vague", "score", "severity",
	"vague_phrase", "category", "improved_text", "specific_changes", "standards_referenced",
	"search_terms", "low_confidence", "unsupported", "explanation", "error",
	"incomplete", "retrieval_degraded",
}

// WriteCSV flattens the run to one row per flagged phrase. Clear chunks get
// a single row with no phrase, failed chunks a row with status "failed".
// Every row repeats the run's incomplete and retrieval_degraded flags.
func WriteCSV(w io.Writer, run *types.AnalysisRun) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, row := range Rows(run) {
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Rows returns the CSV body rows without the header.
func Rows(run *types.AnalysisRun) [][]string {
	base := func(chunkID string, pages []int, status string) []string {
		row := make([]string, len(Header))
		row[0] = run.ID.String()
		row[1] = run.DocumentTitle
		row[2] = chunkID
		row[3] = joinPages(pages)
		row[4] = status
		row[18] = strconv.FormatBool(run.Incomplete)
		row[19] = strconv.FormatBool(run.RetrievalDegraded)
		return row
	}

	var rows [][]string
	for _, res := range run.Results {
		classified := func() []string {
			row := base(res.ChunkID, res.Pages, string(types.StageClassified))
			row[5] = strconv.FormatBool(res.IsVague)
			row[6] = strconv.FormatFloat(res.Score, 'f', 2, 64)
			row[7] = string(res.Severity)
			row[16] = res.Explanation
			return row
		}
		if !res.IsVague || len(res.Phrases) == 0 {
			rows = append(rows, classified())
			continue
		}
		suggestions := run.SuggestionsFor(res.ChunkID)
		for _, ph := range res.Phrases {
			row := classified()
			row[8] = ph.Phrase
			row[9] = ph.Category.Name()
			if s, ok := find(suggestions, ph.Phrase); ok {
				row[4] = string(types.StageSuggested)
				row[10] = s.ImprovedText
				row[11] = strings.Join(s.SpecificChanges, "; ")
				row[12] = strings.Join(s.StandardsReferenced, "; ")
				row[13] = strings.Join(s.SearchTerms, "; ")
				row[14] = strconv.FormatBool(s.LowConfidence)
				row[15] = strconv.FormatBool(s.Unsupported)
				if s.Explanation != "" {
					row[16] = s.Explanation
				}
			}
			rows = append(rows, row)
		}
	}
	for _, f := range run.Failures {
		row := base(f.ChunkID, f.Pages, string(types.StageFailed))
		row[8] = f.Phrase
		row[17] = fmt.Sprintf("%s: %s", f.Stage, f.Error)
		rows = append(rows, row)
	}
	return rows
}

func find(suggestions []types.Suggestion, phrase string) (types.Suggestion, bool) {
	for _, s := range suggestions {
		if s.VaguePhrase == phrase {
			return s, true
		}
	}
	return types.Suggestion{}, false
}

func joinPages(pages []int) string {
	parts := make([]string, len(pages))
	for i, p := range pages {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ";")
}
