// Package index ingests reference documents and serves similarity search
// over them.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"vagueness/chunker"
	"vagueness/model"
	"vagueness/store"
	"vagueness/types"
)

const DefaultCorpus = "default"

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	// EmbedWorkers bounds concurrent embedding calls during ingestion.
	EmbedWorkers int
}

// Index is the reference corpus. Writes to one corpus are serialized;
// searches never wait on ingestion.
type Index struct {
	store    store.ReferenceStorer
	embedder model.Embedder
	cfg      Config
	logger   *slog.Logger

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

func New(s store.ReferenceStorer, e model.Embedder, cfg Config) (*Index, error) {
	if err := chunker.Validate(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.EmbedWorkers <= 0 {
		cfg.EmbedWorkers = 4
	}
	return &Index{
		store:    s,
		embedder: e,
		cfg:      cfg,
		logger:   slog.Default(),
		writers:  make(map[string]*sync.Mutex),
	}, nil
}

func (i *Index) writer(corpus string) *sync.Mutex {
	i.mu.Lock()
	defer i.mu.Unlock()
	w, ok := i.writers[corpus]
	if !ok {
		w = &sync.Mutex{}
		i.writers[corpus] = w
	}
	return w
}

// Ingest chunks and embeds a reference document and replaces any earlier
// version of the same source in its corpus. It returns the chunk count.
func (i *Index) Ingest(ctx context.Context, doc types.ReferenceDocument) (int, error) {
	if strings.TrimSpace(doc.Corpus) == "" {
		doc.Corpus = DefaultCorpus
	}
	if doc.Source == "" {
		doc.Source = doc.Title
	}

	windows, err := chunker.Windows(doc.Pages, i.cfg.ChunkSize, i.cfg.ChunkOverlap)
	if err != nil {
		return 0, err
	}

	chunks := make([]types.ReferenceChunk, len(windows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.cfg.EmbedWorkers)
	for n, w := range windows {
		g.Go(func() error {
			vec, err := i.embedder.Embed(gctx, w.Text)
			if err != nil {
				return fmt.Errorf("embed %s chunk %d: %w", doc.Source, w.Index, err)
			}
			chunks[n] = types.ReferenceChunk{
				ID:        uuid.New(),
				Corpus:    doc.Corpus,
				Title:     doc.Title,
				Source:    doc.Source,
				Index:     w.Index,
				Pages:     w.Pages,
				Text:      w.Text,
				Embedding: vec,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	w := i.writer(doc.Corpus)
	w.Lock()
	defer w.Unlock()

	if err := i.store.DeleteReferenceSource(ctx, doc.Corpus, doc.Source); err != nil {
		return 0, fmt.Errorf("replace %s: %w", doc.Source, err)
	}
	if err := i.store.SaveReferences(ctx, chunks); err != nil {
		return 0, fmt.Errorf("save %s: %w", doc.Source, err)
	}
	i.logger.Info("[INDEX] ingested reference", "corpus", doc.Corpus, "source", doc.Source, "chunks", len(chunks))
	return len(chunks), nil
}

// Search embeds every term, queries the store and merges the hits, keeping
// each chunk's best score. Results are ordered by descending similarity with
// ties broken by ingestion order, and capped at limit.
func (i *Index) Search(ctx context.Context, terms []string, perTerm, limit int) ([]types.ScoredReference, error) {
	best := make(map[uuid.UUID]types.ScoredReference)
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, err := i.embedder.Embed(ctx, term)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &types.RetrievalError{Err: fmt.Errorf("embed %q: %w", term, err)}
		}
		hits, err := i.store.SearchReferences(ctx, vec, perTerm)
		if err != nil {
			return nil, &types.RetrievalError{Err: err}
		}
		for _, h := range hits {
			if prev, ok := best[h.ID]; !ok || h.Score > prev.Score {
				best[h.ID] = h
			}
		}
	}

	out := make([]types.ScoredReference, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Seq < out[b].Seq
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Available checks that the backing store answers.
func (i *Index) Available(ctx context.Context) error {
	if err := i.store.Ping(ctx); err != nil {
		return &types.RetrievalError{Err: err}
	}
	return nil
}

func (i *Index) Stats(ctx context.Context) ([]types.CorpusStats, error) {
	return i.store.Stats(ctx)
}
