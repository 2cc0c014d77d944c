package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"vagueness/app/agent"
	"vagueness/app/analysis"
	"vagueness/app/index"
	"vagueness/config"
	"vagueness/loader"
	"vagueness/model"
	"vagueness/store"
)

// Components is everything a command needs to analyze documents.
type Components struct {
	Config       *config.Config
	Index        *index.Index
	Retriever    *index.Retriever
	Extractor    *loader.Extractor
	Orchestrator *analysis.Orchestrator

	closers []io.Closer
}

// Close releases stores and models in reverse order of creation.
func (c *Components) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i].Close(); err != nil {
			slog.Default().Error("[SERVER] error closing component", "error", err)
		}
	}
}

// Models lets callers swap the language model and embedder, mostly in tests.
type Models struct {
	Reasoner model.Reasoner
	Embedder model.Embedder
}

// Build wires stores, models, the reference index and the analysis
// orchestrator from cfg. Nil fields in models are built from cfg.
func Build(ctx context.Context, cfg *config.Config, models Models) (*Components, error) {
	c := &Components{Config: cfg, Extractor: loader.NewExtractor()}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	refs, runs, err := c.stores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if models.Embedder == nil {
		models.Embedder, err = model.NewEmbedder(model.EmbedderOptions{
			Kind:     cfg.Embedder.Type,
			URL:      cfg.Embedder.URL,
			Model:    cfg.Embedder.Model,
			ModelDir: cfg.Embedder.ModelDir,
		})
		if err != nil {
			return nil, fmt.Errorf("create embedder: %w", err)
		}
		if cl, isCloser := models.Embedder.(io.Closer); isCloser {
			c.closers = append(c.closers, cl)
		}
	}
	if models.Reasoner == nil {
		models.Reasoner = model.NewOllamaReasoner(cfg.LLM.URL, cfg.LLM.Model, float32(cfg.LLM.Temperature))
	}

	// One limiter for every model call, so the in-flight cap holds across
	// classification, location, suggestion and embedding.
	limiter := model.NewLimiter(model.LimiterConfig{
		MaxInFlight:       cfg.Model.MaxInFlight,
		RequestsPerMinute: cfg.Model.RequestsPerMinute,
		CallTimeout:       cfg.Model.Timeout(),
	})
	reasoner := model.LimitReasoner(models.Reasoner, limiter)

	c.Index, err = index.New(refs, model.LimitEmbedder(models.Embedder, limiter), index.Config{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		EmbedWorkers: cfg.Model.MaxInFlight,
	})
	if err != nil {
		return nil, err
	}
	c.Retriever, err = index.NewRetriever(c.Index, index.RetrieverConfig{
		TopK:          cfg.Retrieval.TopK,
		PerTerm:       cfg.Retrieval.PerTerm,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
	})
	if err != nil {
		return nil, err
	}

	call := agent.CallConfig{MaxRetries: cfg.Model.MaxRetries, Backoff: cfg.Model.Backoff()}
	c.Orchestrator, err = analysis.New(analysis.Deps{
		Extractor:  c.Extractor,
		Classifier: agent.NewClassifier(reasoner, call),
		Locator:    agent.NewLocator(reasoner, call),
		Suggester: agent.NewSuggester(reasoner, agent.SuggesterConfig{
			CallConfig:         call,
			MaxReferences:      cfg.Retrieval.MaxReferences,
			MaxReferenceTokens: cfg.Retrieval.MaxReferenceTokens,
		}),
		Retriever: c.Retriever,
		Runs:      runs,
	}, analysis.Config{
		ChunkSize:    cfg.Analysis.ChunkSize,
		ChunkOverlap: cfg.Analysis.ChunkOverlap,
		Concurrency:  cfg.Analysis.Concurrency,
		Threshold:    cfg.Analysis.Threshold,
	})
	if err != nil {
		return nil, err
	}

	ok = true
	return c, nil
}

func (c *Components) stores(ctx context.Context, cfg *config.Config) (store.ReferenceStorer, store.RunStorer, error) {
	if cfg.Store.Type == "postgres" {
		pool, err := store.NewPostgresStore(ctx, cfg.Postgres.ConnString(), cfg.Embedder.Dimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to Postgres: %w", err)
		}
		c.closers = append(c.closers, pool)
		if err := pool.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("create tables: %w", err)
		}
		return pool, pool, nil
	}

	mem := store.NewMemoryStore()
	if cfg.Store.RunsDir == "" {
		return mem, mem, nil
	}
	runs, err := store.NewSQLiteRunStore(cfg.Store.RunsDir)
	if err != nil {
		return nil, nil, err
	}
	c.closers = append(c.closers, runs)
	return mem, runs, nil
}
