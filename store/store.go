package store

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	"vagueness/types"
)

// ReferenceStorer holds embedded reference chunks. SearchReferences orders by
// descending cosine similarity and breaks ties by ingestion order.
type ReferenceStorer interface {
	SaveReferences(ctx context.Context, chunks []types.ReferenceChunk) error
	DeleteReferenceSource(ctx context.Context, corpus, source string) error
	SearchReferences(ctx context.Context, vec []float32, limit int) ([]types.ScoredReference, error)
	Stats(ctx context.Context) ([]types.CorpusStats, error)
	Ping(ctx context.Context) error
}

// RunStorer persists finished analysis runs.
type RunStorer interface {
	SaveRun(ctx context.Context, run *types.AnalysisRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*types.AnalysisRun, error)
	ListRuns(ctx context.Context, limit int) ([]RunInfo, error)
}

type RunInfo struct {
	ID            uuid.UUID `json:"id"`
	DocumentID    uuid.UUID `json:"document_id"`
	DocumentTitle string    `json:"document_title"`
	StartedAt     time.Time `json:"started_at"`
	Incomplete    bool      `json:"incomplete"`
	VaguenessRate float64   `json:"vagueness_rate"`
}

func infoOf(run *types.AnalysisRun) RunInfo {
	return RunInfo{
		ID:            run.ID,
		DocumentID:    run.DocumentID,
		DocumentTitle: run.DocumentTitle,
		StartedAt:     run.StartedAt,
		Incomplete:    run.Incomplete,
		VaguenessRate: run.Summary.VaguenessRate,
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
