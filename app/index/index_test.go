package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vagueness/store"
	"vagueness/types"
)

var vocabulary = []string{"concrete", "steel", "paint", "curing"}

// wordEmbedder counts vocabulary words, giving predictable similarities.
type wordEmbedder struct{}

func (wordEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	low := strings.ToLower(text)
	vec := make([]float32, len(vocabulary))
	for i, w := range vocabulary {
		vec[i] = float32(strings.Count(low, w))
	}
	return vec, nil
}

type brokenStore struct {
	store.ReferenceStorer
}

func (brokenStore) SearchReferences(context.Context, []float32, int) ([]types.ScoredReference, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Ping(context.Context) error {
	return errors.New("connection refused")
}

func refDoc(source string, texts ...string) types.ReferenceDocument {
	doc := types.ReferenceDocument{Corpus: "is", Title: source, Source: source}
	for i, t := range texts {
		doc.Pages = append(doc.Pages, types.Page{Number: i + 1, Text: t, Extracted: true})
	}
	return doc
}

func newIndex(t *testing.T) (*Index, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	idx, err := New(mem, wordEmbedder{}, Config{ChunkSize: 40, ChunkOverlap: 0})
	require.NoError(t, err)
	return idx, mem
}

func TestNewRejectsBadChunking(t *testing.T) {
	_, err := New(store.NewMemoryStore(), wordEmbedder{}, Config{ChunkSize: 10, ChunkOverlap: 10})
	assert.ErrorIs(t, err, types.ErrConfig)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx, _ := newIndex(t)
	got, err := idx.Search(context.Background(), []string{"concrete"}, 3, 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestIngestAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t)

	n, err := idx.Ingest(ctx, refDoc("IS 456", "concrete concrete curing shall last", "steel bars to be of grade Fe500"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	_, err = idx.Ingest(ctx, refDoc("IS 2395", "paint two coats of paint on steel"))
	require.NoError(t, err)

	got, err := idx.Search(ctx, []string{"concrete curing", "paint"}, 3, 5)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.LessOrEqual(t, len(got), 5)
	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score, "Expected descending similarity")
	}

	ids := make(map[string]bool)
	for _, h := range got {
		assert.False(t, ids[h.ID.String()], "Expected each chunk once")
		ids[h.ID.String()] = true
	}
}

func TestSearchTieOrder(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t)
	_, err := idx.Ingest(ctx, refDoc("first", "steel"))
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, refDoc("second", "steel"))
	require.NoError(t, err)

	top, err := idx.Search(ctx, []string{"steel"}, 3, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "first", top[0].Source, "Expected the earlier ingested chunk to win a tie")
}

func TestIngestReplacesSource(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t)

	n, err := idx.Ingest(ctx, refDoc("IS 456", strings.Repeat("concrete ", 10)))
	require.NoError(t, err)
	require.Equal(t, 3, n)
	_, err = idx.Ingest(ctx, refDoc("IS 456", "concrete only"))
	require.NoError(t, err)

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.Equal(t, 1, stats[0].Chunks)
}

func TestConcurrentIngest(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t)

	var wg sync.WaitGroup
	for _, src := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := idx.Ingest(ctx, refDoc(src, "concrete "+src))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats[0].Documents)
}

func TestSearchUnavailable(t *testing.T) {
	idx, err := New(brokenStore{}, wordEmbedder{}, Config{ChunkSize: 10})
	require.NoError(t, err)

	_, err = idx.Search(context.Background(), []string{"concrete"}, 3, 5)
	assert.ErrorIs(t, err, types.ErrRetrievalUnavailable)
	assert.ErrorIs(t, idx.Available(context.Background()), types.ErrRetrievalUnavailable)
}

func TestRetriever(t *testing.T) {
	ctx := context.Background()
	idx, _ := newIndex(t)
	_, err := idx.Ingest(ctx, refDoc("IS 456", "concrete"))
	require.NoError(t, err)
	_, err = idx.Ingest(ctx, refDoc("IS 1200", "concrete steel paint curing"))
	require.NoError(t, err)

	r, err := NewRetriever(idx, RetrieverConfig{TopK: 5, MinSimilarity: 0.9})
	require.NoError(t, err)

	got, err := r.Retrieve(ctx, []string{"concrete"})
	require.NoError(t, err)
	require.Len(t, got, 1, "Expected the weak match filtered out")
	assert.Equal(t, "concrete", got[0].Text)

	none, err := r.Retrieve(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestRetrieverConfig(t *testing.T) {
	idx, _ := newIndex(t)
	_, err := NewRetriever(idx, RetrieverConfig{TopK: 11})
	assert.ErrorIs(t, err, types.ErrConfig)
	_, err = NewRetriever(idx, RetrieverConfig{MinSimilarity: 1.5})
	assert.ErrorIs(t, err, types.ErrConfig)

	r, err := NewRetriever(idx, RetrieverConfig{})
	require.NoError(t, err)
	assert.Equal(t, DefaultTopK, r.cfg.TopK)
	assert.Equal(t, DefaultPerTerm, r.cfg.PerTerm)
}
