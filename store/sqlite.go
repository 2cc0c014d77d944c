package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"vagueness/types"
)

// SQLiteRunStore keeps analysis runs in a local database file for the CLI.
type SQLiteRunStore struct {
	db   *sql.DB
	path string
}

func NewSQLiteRunStore(dataDir string) (*SQLiteRunStore, error) {
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		dataDir = filepath.Join(home, ".vagueness")
	}
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "runs.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteRunStore{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

func (s *SQLiteRunStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS analysis_runs (
		id TEXT PRIMARY KEY,
		document_id TEXT NOT NULL,
		document_title TEXT,
		started_at TEXT NOT NULL,
		incomplete INTEGER NOT NULL DEFAULT 0,
		vagueness_rate REAL,
		payload TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_started ON analysis_runs(started_at);
	`)
	return err
}

func (s *SQLiteRunStore) Path() string {
	return s.path
}

func (s *SQLiteRunStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteRunStore) SaveRun(ctx context.Context, run *types.AnalysisRun) error {
	payload, err := json.Marshal(run)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, document_id, document_title, started_at, incomplete, vagueness_rate, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			incomplete = excluded.incomplete,
			vagueness_rate = excluded.vagueness_rate,
			payload = excluded.payload`,
		run.ID.String(),
		run.DocumentID.String(),
		run.DocumentTitle,
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.Incomplete,
		run.Summary.VaguenessRate,
		string(payload),
	)
	return err
}

func (s *SQLiteRunStore) GetRun(ctx context.Context, id uuid.UUID) (*types.AnalysisRun, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM analysis_runs WHERE id = ?", id.String()).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var run types.AnalysisRun
	if err := json.Unmarshal([]byte(payload), &run); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteRunStore) ListRuns(ctx context.Context, limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, document_title, started_at, incomplete, vagueness_rate
		FROM analysis_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []RunInfo{}
	for rows.Next() {
		var (
			info             RunInfo
			id, docID, start string
			title            sql.NullString
			rate             sql.NullFloat64
		)
		if err := rows.Scan(&id, &docID, &title, &start, &info.Incomplete, &rate); err != nil {
			return nil, err
		}
		if info.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		if info.DocumentID, err = uuid.Parse(docID); err != nil {
			return nil, err
		}
		if info.StartedAt, err = time.Parse(time.RFC3339Nano, start); err != nil {
			return nil, err
		}
		info.DocumentTitle = title.String
		info.VaguenessRate = rate.Float64
		out = append(out, info)
	}
	return out, rows.Err()
}
