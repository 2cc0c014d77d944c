package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Page struct {
	Number    int    `json:"number"`
	Text      string `json:"text"`
	Extracted bool   `json:"extracted"`
}

// Document is an uploaded file split into pages. It is not modified after load.
type Document struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Source     string    `json:"source"`
	SourcePath string    `json:"source_path,omitempty"`
	Pages      []Page    `json:"pages"`
	LoadedAt   time.Time `json:"loaded_at"`
}

func (d *Document) PageCount() int {
	return len(d.Pages)
}

// ExtractedPages returns how many pages produced any text.
func (d *Document) ExtractedPages() int {
	n := 0
	for _, p := range d.Pages {
		if p.Extracted {
			n++
		}
	}
	return n
}

// Chunk is an addressable window over the concatenated text of a document.
// Start and End are rune offsets, End exclusive.
type Chunk struct {
	ID        string    `json:"id"`
	DocID     uuid.UUID `json:"doc_id"`
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Start     int       `json:"start"`
	End       int       `json:"end"`
	Pages     []int     `json:"pages"`
	CreatedAt time.Time `json:"created_at"`
}

func ChunkID(docID uuid.UUID, index int) string {
	return fmt.Sprintf("%s:%d", docID, index)
}

// Intersects reports whether any page of the chunk lies in [start, end].
func (c Chunk) Intersects(start, end int) bool {
	for _, p := range c.Pages {
		if p >= start && p <= end {
			return true
		}
	}
	return false
}

type FlaggedPhrase struct {
	Phrase   string   `json:"phrase"`
	Category Category `json:"category"`
}

type RuleMatch struct {
	Category Category `json:"category"`
	Kind     string   `json:"kind"`
	Match    string   `json:"match"`
}

type Acronym struct {
	Acronym string `json:"acronym"`
	Meaning string `json:"meaning,omitempty"`
	Known   bool   `json:"known"`
}

type ClassificationResult struct {
	ChunkID      string          `json:"chunk_id"`
	Pages        []int           `json:"pages"`
	Text         string          `json:"text"`
	IsVague      bool            `json:"is_vague"`
	Score        float64         `json:"score"`
	Phrases      []FlaggedPhrase `json:"phrases"`
	Severity     Severity        `json:"severity"`
	Explanation  string          `json:"explanation"`
	RuleMatches  []RuleMatch     `json:"rule_matches,omitempty"`
	Acronyms     []Acronym       `json:"acronyms,omitempty"`
	ClassifiedAt time.Time       `json:"classified_at"`
}

// ReferenceDocument is a standard or manual waiting to be ingested into a corpus.
type ReferenceDocument struct {
	Corpus string `json:"corpus"`
	Title  string `json:"title"`
	Source string `json:"source"`
	Pages  []Page `json:"pages"`
}

// ReferenceChunk is immutable once ingested. Seq is the global ingestion order.
type ReferenceChunk struct {
	ID        uuid.UUID `json:"id"`
	Corpus    string    `json:"corpus"`
	Title     string    `json:"title"`
	Source    string    `json:"source"`
	Index     int       `json:"index"`
	Seq       int64     `json:"seq"`
	Pages     []int     `json:"pages"`
	Text      string    `json:"text"`
	Embedding []float32 `json:"-"`
}

type ScoredReference struct {
	ReferenceChunk
	Score float64 `json:"score"`
}

type CorpusStats struct {
	Corpus    string `json:"corpus"`
	Chunks    int    `json:"chunks"`
	Documents int    `json:"documents"`
}

type Suggestion struct {
	ChunkID             string   `json:"chunk_id"`
	VaguePhrase         string   `json:"vague_phrase"`
	Category            Category `json:"category"`
	OriginalText        string   `json:"original_text"`
	ImprovedText        string   `json:"improved_text"`
	StandardsReferenced []string `json:"standards_referenced"`
	SpecificChanges     []string `json:"specific_changes"`
	Explanation         string   `json:"explanation"`
	SearchTerms         []string `json:"search_terms"`
	ReferencesUsed      []string `json:"references_used"`
	LowConfidence       bool     `json:"low_confidence"`
	Unsupported         bool     `json:"unsupported"`
}

type ChunkFailure struct {
	ChunkID string `json:"chunk_id"`
	Pages   []int  `json:"pages"`
	Stage   Stage  `json:"stage"`
	Phrase  string `json:"phrase,omitempty"`
	Error   string `json:"error"`
}

type Summary struct {
	SelectedChunks       int              `json:"selected_chunks"`
	ClassifiedChunks     int              `json:"classified_chunks"`
	FailedChunks         int              `json:"failed_chunks"`
	VagueChunks          int              `json:"vague_chunks"`
	ClearChunks          int              `json:"clear_chunks"`
	VaguenessRate        float64          `json:"vagueness_rate"`
	MeanScore            float64          `json:"mean_score"`
	SeverityDistribution map[Severity]int `json:"severity_distribution"`
	Suggestions          int              `json:"suggestions"`
	UnsupportedPhrases   int              `json:"unsupported_phrases"`
}

type AnalysisRun struct {
	ID                uuid.UUID              `json:"id"`
	DocumentID        uuid.UUID              `json:"document_id"`
	DocumentTitle     string                 `json:"document_title"`
	Selection         PageSelection          `json:"selection"`
	PageStart         int                    `json:"page_start"`
	PageEnd           int                    `json:"page_end"`
	Threshold         float64                `json:"threshold"`
	Results           []ClassificationResult `json:"results"`
	Suggestions       []Suggestion           `json:"suggestions"`
	Failures          []ChunkFailure         `json:"failures"`
	Summary           Summary                `json:"summary"`
	Incomplete        bool                   `json:"incomplete"`
	RetrievalDegraded bool                   `json:"retrieval_degraded"`
	StartedAt         time.Time              `json:"started_at"`
	FinishedAt        time.Time              `json:"finished_at"`
}

// Empty reports whether the selection matched no chunks.
func (r *AnalysisRun) Empty() bool {
	return r.Summary.SelectedChunks == 0
}

// SuggestionsFor returns suggestions produced for a chunk, in phrase order.
func (r *AnalysisRun) SuggestionsFor(chunkID string) []Suggestion {
	var out []Suggestion
	for _, s := range r.Suggestions {
		if s.ChunkID == chunkID {
			out = append(out, s)
		}
	}
	return out
}

// Progress is reported after each chunk leaves the pipeline.
type Progress struct {
	RunID     uuid.UUID `json:"run_id"`
	Processed int       `json:"processed"`
	Total     int       `json:"total"`
	Done      bool      `json:"done"`
}
