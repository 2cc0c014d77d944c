package analysis

import (
	"math"

	"vagueness/types"
)

// Summarize computes run statistics over the classified chunks. Failed
// chunks count in neither numerator nor denominator.
func Summarize(selected int, run *types.AnalysisRun) types.Summary {
	s := types.Summary{
		SelectedChunks:   selected,
		ClassifiedChunks: len(run.Results),
		SeverityDistribution: map[types.Severity]int{
			types.SeverityNone:   0,
			types.SeverityLow:    0,
			types.SeverityMedium: 0,
			types.SeverityHigh:   0,
		},
	}
	failed := make(map[string]struct{})
	for _, f := range run.Failures {
		failed[f.ChunkID] = struct{}{}
	}
	s.FailedChunks = len(failed)

	var total float64
	for _, r := range run.Results {
		total += r.Score
		s.SeverityDistribution[r.Severity]++
		if r.IsVague {
			s.VagueChunks++
		} else {
			s.ClearChunks++
		}
	}
	if s.ClassifiedChunks > 0 {
		s.VaguenessRate = round2(float64(s.VagueChunks) / float64(s.ClassifiedChunks) * 100)
		s.MeanScore = round2(total / float64(s.ClassifiedChunks))
	}
	for _, sg := range run.Suggestions {
		if sg.Unsupported {
			s.UnsupportedPhrases++
		} else {
			s.Suggestions++
		}
	}
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
