// Package analysis owns a working session: loaded documents, their cached
// chunks and the runs analyzed over them.
package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"vagueness/app/agent"
	"vagueness/chunker"
	"vagueness/store"
	"vagueness/types"
)

// Extractor turns raw document bytes into per-page text.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]types.Page, error)
}

// Retriever returns reference passages for locator search terms.
type Retriever interface {
	Retrieve(ctx context.Context, terms []string) ([]types.ScoredReference, error)
	Available(ctx context.Context) error
}

type Config struct {
	ChunkSize    int
	ChunkOverlap int
	// Concurrency is the number of chunks processed at once.
	Concurrency int
	Threshold   float64
}

type Deps struct {
	Extractor  Extractor
	Classifier *agent.Classifier
	Locator    *agent.Locator
	Suggester  *agent.Suggester
	Retriever  Retriever
	Runs       store.RunStorer
}

type chunkKey struct {
	doc     uuid.UUID
	size    int
	overlap int
}

type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	documents map[uuid.UUID]*types.Document
	chunks    map[chunkKey][]types.Chunk
	progress  map[uuid.UUID]types.Progress
	// cancels holds the cancel func of every run still in flight.
	cancels map[uuid.UUID]context.CancelFunc
}

func New(deps Deps, cfg Config) (*Orchestrator, error) {
	if err := chunker.Validate(cfg.ChunkSize, cfg.ChunkOverlap); err != nil {
		return nil, err
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Threshold < 0 || cfg.Threshold > 1 {
		return nil, types.NewConfigError("threshold", "must be between 0 and 1, got %v", cfg.Threshold)
	}
	if deps.Classifier == nil || deps.Locator == nil || deps.Suggester == nil || deps.Retriever == nil {
		return nil, types.NewConfigError("deps", "classifier, locator, suggester and retriever are required")
	}
	if deps.Runs == nil {
		deps.Runs = store.NewMemoryStore()
	}
	return &Orchestrator{
		deps:      deps,
		cfg:       cfg,
		logger:    slog.Default(),
		documents: make(map[uuid.UUID]*types.Document),
		chunks:    make(map[chunkKey][]types.Chunk),
		progress:  make(map[uuid.UUID]types.Progress),
		cancels:   make(map[uuid.UUID]context.CancelFunc),
	}, nil
}

func (o *Orchestrator) Config() Config {
	return o.cfg
}

// Load extracts a document and adds it to the session. The document ID is
// derived from its content, so loading the same bytes twice yields the same
// document.
func (o *Orchestrator) Load(ctx context.Context, title, source string, data []byte) (*types.Document, error) {
	if o.deps.Extractor == nil {
		return nil, types.NewConfigError("extractor", "no extractor configured")
	}
	pages, err := o.deps.Extractor.Extract(ctx, data)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(title) == "" {
		title = source
	}
	doc := &types.Document{
		ID:       uuid.NewMD5(uuid.NameSpaceOID, data),
		Title:    title,
		Source:   source,
		Pages:    pages,
		LoadedAt: time.Now(),
	}
	o.Add(doc)
	o.logger.Info("[LOAD] document loaded", "id", doc.ID, "title", doc.Title,
		"pages", doc.PageCount(), "extracted", doc.ExtractedPages())
	return doc, nil
}

// Add puts an already extracted document into the session, replacing any
// document with the same ID and dropping its cached chunks.
func (o *Orchestrator) Add(doc *types.Document) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	o.documents[doc.ID] = doc
	for k := range o.chunks {
		if k.doc == doc.ID {
			delete(o.chunks, k)
		}
	}
}

func (o *Orchestrator) Document(id uuid.UUID) (*types.Document, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	doc, ok := o.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, types.ErrNotFound)
	}
	return doc, nil
}

// Documents lists loaded documents, oldest first.
func (o *Orchestrator) Documents() []*types.Document {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*types.Document, 0, len(o.documents))
	for _, d := range o.documents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LoadedAt.Equal(out[j].LoadedAt) {
			return out[i].LoadedAt.Before(out[j].LoadedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

// Chunks returns the document's chunks, chunking it on first use only.
func (o *Orchestrator) Chunks(id uuid.UUID) ([]types.Chunk, error) {
	doc, err := o.Document(id)
	if err != nil {
		return nil, err
	}
	key := chunkKey{doc: id, size: o.cfg.ChunkSize, overlap: o.cfg.ChunkOverlap}

	o.mu.RLock()
	cached, ok := o.chunks[key]
	o.mu.RUnlock()
	if ok {
		return cached, nil
	}

	chunks, err := chunker.Chunk(doc, key.size, key.overlap, time.Now())
	if err != nil {
		return nil, err
	}
	o.mu.Lock()
	if cached, ok := o.chunks[key]; ok {
		chunks = cached
	} else {
		o.chunks[key] = chunks
	}
	o.mu.Unlock()
	return chunks, nil
}

// Selection is the outcome of applying a page selection to a document.
type Selection struct {
	DocumentID uuid.UUID           `json:"document_id"`
	Selection  types.PageSelection `json:"selection"`
	PageStart  int                 `json:"page_start"`
	PageEnd    int                 `json:"page_end"`
	Chunks     []types.Chunk       `json:"chunks"`
	Total      int                 `json:"total_chunks"`
}

func (s Selection) Empty() bool {
	return len(s.Chunks) == 0
}

// Select resolves sel against the document and returns the chunks touching
// the selected pages. Invalid selections are a ConfigError.
func (o *Orchestrator) Select(id uuid.UUID, sel types.PageSelection) (Selection, error) {
	doc, err := o.Document(id)
	if err != nil {
		return Selection{}, err
	}
	chunks, err := o.Chunks(id)
	if err != nil {
		return Selection{}, err
	}
	selected, start, end, err := chunker.SelectPages(doc, chunks, sel)
	if err != nil {
		return Selection{}, err
	}
	return Selection{
		DocumentID: id,
		Selection:  sel,
		PageStart:  start,
		PageEnd:    end,
		Chunks:     selected,
		Total:      len(chunks),
	}, nil
}
