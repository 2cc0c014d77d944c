package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"vagueness/types"
)

// MemoryStore keeps references and runs in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	seq  int64
	refs []types.ReferenceChunk
	runs map[uuid.UUID][]byte
	ids  []uuid.UUID
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID][]byte)}
}

func (m *MemoryStore) SaveReferences(ctx context.Context, chunks []types.ReferenceChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range chunks {
		m.seq++
		c.Seq = m.seq
		c.Embedding = append([]float32(nil), c.Embedding...)
		m.refs = append(m.refs, c)
	}
	return nil
}

func (m *MemoryStore) DeleteReferenceSource(ctx context.Context, corpus, source string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.refs[:0]
	for _, c := range m.refs {
		if c.Corpus == corpus && c.Source == source {
			continue
		}
		kept = append(kept, c)
	}
	m.refs = kept
	return nil
}

func (m *MemoryStore) SearchReferences(ctx context.Context, vec []float32, limit int) ([]types.ScoredReference, error) {
	if len(vec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	m.mu.RLock()
	scored := make([]types.ScoredReference, 0, len(m.refs))
	for _, c := range m.refs {
		scored = append(scored, types.ScoredReference{ReferenceChunk: c, Score: Cosine(vec, c.Embedding)})
	}
	m.mu.RUnlock()

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Seq < scored[j].Seq
	})
	if limit >= 0 && len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (m *MemoryStore) Stats(ctx context.Context) ([]types.CorpusStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byCorpus := make(map[string]*types.CorpusStats)
	sources := make(map[string]map[string]struct{})
	var order []string
	for _, c := range m.refs {
		st, ok := byCorpus[c.Corpus]
		if !ok {
			st = &types.CorpusStats{Corpus: c.Corpus}
			byCorpus[c.Corpus] = st
			sources[c.Corpus] = make(map[string]struct{})
			order = append(order, c.Corpus)
		}
		st.Chunks++
		sources[c.Corpus][c.Source] = struct{}{}
	}
	sort.Strings(order)
	out := make([]types.CorpusStats, 0, len(order))
	for _, name := range order {
		st := byCorpus[name]
		st.Documents = len(sources[name])
		out = append(out, *st)
	}
	return out, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error {
	return ctx.Err()
}

// SaveRun stores a deep copy so later mutation of run is not visible.
func (m *MemoryStore) SaveRun(ctx context.Context, run *types.AnalysisRun) error {
	data, err := json.Marshal(run)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[run.ID]; !ok {
		m.ids = append(m.ids, run.ID)
	}
	m.runs[run.ID] = data
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, id uuid.UUID) (*types.AnalysisRun, error) {
	m.mu.RLock()
	data, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, types.ErrNotFound)
	}
	var run types.AnalysisRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	m.mu.RLock()
	ids := append([]uuid.UUID(nil), m.ids...)
	m.mu.RUnlock()

	out := make([]RunInfo, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		run, err := m.GetRun(ctx, ids[i])
		if err != nil {
			return nil, err
		}
		out = append(out, infoOf(run))
	}
	return out, nil
}
