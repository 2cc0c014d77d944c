package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vagueness/types"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Analysis, cfg.Analysis)
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 0.55, cfg.Retrieval.MinSimilarity)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
analysis:
  chunk_size: 800
  chunk_overlap: 200
  threshold: 0.45
store:
  type: postgres
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Analysis.ChunkSize)
	assert.Equal(t, 200, cfg.Analysis.ChunkOverlap)
	assert.Equal(t, 0.45, cfg.Analysis.Threshold)
	assert.Equal(t, 4, cfg.Analysis.Concurrency, "Expected untouched keys to keep defaults")
	assert.Equal(t, "postgres", cfg.Store.Type)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CHUNK_SIZE", "300")
	t.Setenv("CHUNK_OVERLAP", "30")
	t.Setenv("PG_HOST", "db")
	t.Setenv("PG_PORT", "6543")
	t.Setenv("PG_PASS", "secret")
	t.Setenv("LLM_MODEL", "qwen2.5")
	t.Setenv("LOG_PRETTY", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Analysis.ChunkSize)
	assert.Equal(t, 30, cfg.Analysis.ChunkOverlap)
	assert.Equal(t, "qwen2.5", cfg.LLM.Model)
	assert.True(t, cfg.Log.Pretty)
	assert.Equal(t, "host=db port=6543 user=postgres password=secret dbname=vagueness sslmode=disable", cfg.Postgres.ConnString())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Run("unparsable env", func(t *testing.T) {
		t.Setenv("CHUNK_SIZE", "large")
		_, err := Load("")
		assert.ErrorIs(t, err, types.ErrConfig)
	})

	t.Run("overlap not below size", func(t *testing.T) {
		t.Setenv("CHUNK_SIZE", "100")
		t.Setenv("CHUNK_OVERLAP", "100")
		_, err := Load("")
		assert.ErrorIs(t, err, types.ErrConfig)
		assert.Contains(t, err.Error(), "ChunkOverlap")
	})

	t.Run("top k above limit", func(t *testing.T) {
		t.Setenv("RETRIEVAL_TOP_K", "11")
		_, err := Load("")
		assert.ErrorIs(t, err, types.ErrConfig)
	})

	t.Run("broken yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("analysis: [\n"), 0o644))
		_, err := Load(path)
		assert.ErrorIs(t, err, types.ErrConfig)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Analysis.Threshold = 0.5
	require.NoError(t, Save(path, cfg))

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 0.5, got.Analysis.Threshold)
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("VAGUENESS_TEST_KEY=from-dotenv\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("VAGUENESS_TEST_KEY") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-dotenv", os.Getenv("VAGUENESS_TEST_KEY"))
}
