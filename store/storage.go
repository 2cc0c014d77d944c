package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"vagueness/types"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	dims int
}

func NewPostgresStore(ctx context.Context, connStr string, dims int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if dims <= 0 {
		dims = 768
	}
	return &PostgresStore{
		pool: pool,
		dims: dims,
	}, nil
}

func (p *PostgresStore) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *PostgresStore) SaveReferences(ctx context.Context, chunks []types.ReferenceChunk) error {
	query := `
    INSERT INTO reference_chunks (id, corpus, title, source, idx, pages, content, embedding)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `
	batch := &pgx.Batch{}
	for _, c := range chunks {
		if len(c.Embedding) != p.dims {
			return fmt.Errorf("reference chunk %s: embedding has %d dimensions, index expects %d", c.ID, len(c.Embedding), p.dims)
		}
		pages := make([]int32, len(c.Pages))
		for i, n := range c.Pages {
			pages[i] = int32(n)
		}
		batch.Queue(query, c.ID, c.Corpus, c.Title, c.Source, c.Index, pages, c.Text, pgvector.NewVector(c.Embedding))
	}
	return p.pool.SendBatch(ctx, batch).Close()
}

func (p *PostgresStore) DeleteReferenceSource(ctx context.Context, corpus, source string) error {
	_, err := p.pool.Exec(ctx, "DELETE FROM reference_chunks WHERE corpus = $1 AND source = $2", corpus, source)
	return err
}

func (p *PostgresStore) SearchReferences(ctx context.Context, queryVec []float32, limit int) ([]types.ScoredReference, error) {
	if len(queryVec) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}

	query := `
		SELECT rc.id, rc.seq, rc.corpus, rc.title, rc.source, rc.idx, rc.pages, rc.content,
		       1-(rc.embedding <=> $1) AS similarity
		FROM reference_chunks rc
		WHERE rc.embedding IS NOT NULL
		ORDER BY rc.embedding <=> $1, rc.seq
		LIMIT $2
	`
	rows, err := p.pool.Query(ctx, query, pgvector.NewVector(queryVec), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]types.ScoredReference, 0, limit)
	for rows.Next() {
		var (
			ref   types.ScoredReference
			pages []int32
		)
		if err := rows.Scan(
			&ref.ID,
			&ref.Seq,
			&ref.Corpus,
			&ref.Title,
			&ref.Source,
			&ref.Index,
			&pages,
			&ref.Text,
			&ref.Score); err != nil {
			return nil, err
		}
		for _, n := range pages {
			ref.Pages = append(ref.Pages, int(n))
		}
		results = append(results, ref)
	}
	return results, rows.Err()
}

func (p *PostgresStore) Stats(ctx context.Context) ([]types.CorpusStats, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT corpus, count(*), count(DISTINCT source)
		FROM reference_chunks
		GROUP BY corpus
		ORDER BY corpus`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := []types.CorpusStats{}
	for rows.Next() {
		var st types.CorpusStats
		if err := rows.Scan(&st.Corpus, &st.Chunks, &st.Documents); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (p *PostgresStore) SaveRun(ctx context.Context, run *types.AnalysisRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	query := `INSERT INTO analysis_runs (id, document_id, document_title, started_at, finished_at, incomplete, vagueness_rate, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = EXCLUDED.finished_at,
			incomplete = EXCLUDED.incomplete,
			vagueness_rate = EXCLUDED.vagueness_rate,
			payload = EXCLUDED.payload
			`
	_, err = p.pool.Exec(ctx, query,
		run.ID,
		run.DocumentID,
		run.DocumentTitle,
		run.StartedAt,
		run.FinishedAt,
		run.Incomplete,
		run.Summary.VaguenessRate,
		string(payload),
	)
	return err
}

func (p *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*types.AnalysisRun, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, "SELECT payload FROM analysis_runs WHERE id = $1", id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var run types.AnalysisRun
	if err := json.Unmarshal(payload, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (p *PostgresStore) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.pool.Query(ctx, `
		SELECT id, document_id, document_title, started_at, incomplete, vagueness_rate
		FROM analysis_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RunInfo{}
	for rows.Next() {
		var info RunInfo
		if err := rows.Scan(&info.ID, &info.DocumentID, &info.DocumentTitle, &info.StartedAt, &info.Incomplete, &info.VaguenessRate); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

func (p *PostgresStore) createTables(ctx context.Context) error {
	query := fmt.Sprintf(`
    CREATE EXTENSION IF NOT EXISTS vector;

    CREATE TABLE IF NOT EXISTS reference_chunks (
        id UUID PRIMARY KEY,
        seq BIGSERIAL NOT NULL,
        corpus TEXT NOT NULL,
        title TEXT,
        source TEXT NOT NULL,
        idx INT NOT NULL,
        pages INT[],
        content TEXT NOT NULL,
        embedding vector(%d)
    );

	CREATE INDEX IF NOT EXISTS idx_reference_embedding ON reference_chunks USING ivfflat (embedding vector_cosine_ops)
	WITH (lists = 100);

	CREATE INDEX IF NOT EXISTS idx_reference_corpus_source ON reference_chunks(corpus, source);

	CREATE TABLE IF NOT EXISTS analysis_runs (
		id UUID PRIMARY KEY,
		document_id UUID NOT NULL,
		document_title TEXT,
		started_at TIMESTAMP WITH TIME ZONE,
		finished_at TIMESTAMP WITH TIME ZONE,
		incomplete BOOLEAN NOT NULL DEFAULT FALSE,
		vagueness_rate DOUBLE PRECISION,
		payload JSONB NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started ON analysis_runs(started_at DESC);
    `, p.dims)
	_, err := p.pool.Exec(ctx, query)
	return err
}

func (p *PostgresStore) Init(ctx context.Context) error {
	return p.createTables(ctx)
}

func (p *PostgresStore) Close() error {
	if p.pool != nil {
		p.pool.Close()
		log.Println("Postgres connection pool is closed")
	}
	return nil
}
