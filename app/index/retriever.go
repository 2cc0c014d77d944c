package index

import (
	"context"
	"log"

	"vagueness/types"
)

const (
	DefaultTopK          = 5
	MaxTopK              = 10
	DefaultPerTerm       = 3
	DefaultSimilarityMin = 0.55
)

type RetrieverConfig struct {
	TopK    int
	PerTerm int
	// MinSimilarity drops passages scoring below it.
	MinSimilarity float64
}

// Retriever answers locator search terms with the passages worth showing
// to the suggestion generator.
type Retriever struct {
	index *Index
	cfg   RetrieverConfig
}

func NewRetriever(idx *Index, cfg RetrieverConfig) (*Retriever, error) {
	if cfg.TopK == 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.TopK < 0 || cfg.TopK > MaxTopK {
		return nil, types.NewConfigError("top_k", "must be between 1 and %d, got %d", MaxTopK, cfg.TopK)
	}
	if cfg.PerTerm <= 0 {
		cfg.PerTerm = DefaultPerTerm
	}
	if cfg.MinSimilarity < 0 || cfg.MinSimilarity > 1 {
		return nil, types.NewConfigError("min_similarity", "must be between 0 and 1, got %v", cfg.MinSimilarity)
	}
	return &Retriever{index: idx, cfg: cfg}, nil
}

func (r *Retriever) Retrieve(ctx context.Context, terms []string) ([]types.ScoredReference, error) {
	if len(terms) == 0 {
		return []types.ScoredReference{}, nil
	}
	hits, err := r.index.Search(ctx, terms, r.cfg.PerTerm, r.cfg.TopK)
	if err != nil {
		return nil, err
	}
	kept := hits[:0]
	for _, h := range hits {
		if h.Score >= r.cfg.MinSimilarity {
			kept = append(kept, h)
		} else {
			log.Printf("[FILTER] dropped reference %s with similarity=%.4f (less than %.2f)", h.ID, h.Score, r.cfg.MinSimilarity)
		}
	}
	return kept, nil
}

func (r *Retriever) Available(ctx context.Context) error {
	return r.index.Available(ctx)
}
