// Package config loads application settings from an optional YAML file,
// a .env file and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vagueness/types"
)

type ServerConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"db_name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// ConnString renders the keyword/value DSN pgx expects.
func (p PostgresConfig) ConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.DBName, p.SSLMode)
}

type LLMConfig struct {
	URL         string  `yaml:"url" validate:"required,url"`
	Model       string  `yaml:"model" validate:"required"`
	Temperature float64 `yaml:"temperature" validate:"gte=0,lte=2"`
}

type EmbedderConfig struct {
	// Type is "ollama" or "local" (ONNX via hugot).
	Type       string `yaml:"type" validate:"oneof=ollama local"`
	URL        string `yaml:"url" validate:"required_if=Type ollama"`
	Model      string `yaml:"model" validate:"required"`
	ModelDir   string `yaml:"model_dir"`
	Dimensions int    `yaml:"dimensions" validate:"gt=0"`
}

type AnalysisConfig struct {
	ChunkSize    int     `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap int     `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	Threshold    float64 `yaml:"threshold" validate:"gte=0,lte=1"`
	Concurrency  int     `yaml:"concurrency" validate:"gt=0,lte=64"`
}

type ModelCallConfig struct {
	MaxInFlight       int `yaml:"max_in_flight" validate:"gt=0"`
	RequestsPerMinute int `yaml:"requests_per_minute" validate:"gte=0"`
	TimeoutSecs       int `yaml:"timeout_secs" validate:"gt=0"`
	MaxRetries        int `yaml:"max_retries" validate:"gte=0,lte=10"`
	BackoffMillis     int `yaml:"backoff_millis" validate:"gte=0"`
}

func (m ModelCallConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

func (m ModelCallConfig) Backoff() time.Duration {
	return time.Duration(m.BackoffMillis) * time.Millisecond
}

type RetrievalConfig struct {
	ChunkSize          int     `yaml:"chunk_size" validate:"gt=0"`
	ChunkOverlap       int     `yaml:"chunk_overlap" validate:"gte=0,ltfield=ChunkSize"`
	TopK               int     `yaml:"top_k" validate:"gte=1,lte=10"`
	PerTerm            int     `yaml:"per_term" validate:"gte=1"`
	MinSimilarity      float64 `yaml:"min_similarity" validate:"gte=0,lte=1"`
	MaxReferences      int     `yaml:"max_references" validate:"gte=1"`
	MaxReferenceTokens int     `yaml:"max_reference_tokens" validate:"gte=1"`
	Corpus             string  `yaml:"corpus" validate:"required,max=64"`
}

type StoreConfig struct {
	// Type "memory" keeps references and runs in process; "postgres" uses
	// pgvector for both.
	Type string `yaml:"type" validate:"oneof=memory postgres"`
	// RunsDir, when set with the memory store, persists runs to SQLite.
	RunsDir string `yaml:"runs_dir"`
}

type LoaderConfig struct {
	SourceDir        string `yaml:"source_dir" validate:"required"`
	ScanIntervalSecs int    `yaml:"scan_interval_secs" validate:"gt=0"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Pretty bool   `yaml:"pretty"`
}

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	LLM       LLMConfig       `yaml:"llm"`
	Embedder  EmbedderConfig  `yaml:"embedder"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Model     ModelCallConfig `yaml:"model"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Store     StoreConfig     `yaml:"store"`
	Loader    LoaderConfig    `yaml:"loader"`
	Log       LogConfig       `yaml:"log"`
}

func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":3000"},
		Postgres: PostgresConfig{Host: "localhost", Port: 5432, User: "postgres", DBName: "vagueness", SSLMode: "disable"},
		LLM:      LLMConfig{URL: "http://localhost:11434/api/generate", Model: "llama3.1", Temperature: 0.1},
		Embedder: EmbedderConfig{
			Type:       "ollama",
			URL:        "http://localhost:11434/api/embeddings",
			Model:      "nomic-embed-text",
			Dimensions: 768,
		},
		Analysis: AnalysisConfig{ChunkSize: 500, ChunkOverlap: 100, Threshold: 0.3, Concurrency: 4},
		Model:    ModelCallConfig{MaxInFlight: 4, TimeoutSecs: 120, MaxRetries: 2, BackoffMillis: 500},
		Retrieval: RetrievalConfig{
			ChunkSize:          500,
			ChunkOverlap:       50,
			TopK:               5,
			PerTerm:            3,
			MinSimilarity:      0.55,
			MaxReferences:      3,
			MaxReferenceTokens: 400,
			Corpus:             "default",
		},
		Store:  StoreConfig{Type: "memory"},
		Loader: LoaderConfig{SourceDir: "./data", ScanIntervalSecs: 5},
		Log:    LogConfig{Level: "info"},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, types.NewConfigError("file", "%s: %v", path, err)
			}
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, validationError(errs)
	}
	return cfg, nil
}

// LoadDotEnv loads .env files into the environment. Missing files are
// skipped; variables already set win.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var validate = validator.New()

func (c *Config) Validate() map[string]string {
	if err := validate.Struct(c); err != nil {
		errs, ok := err.(validator.ValidationErrors)
		if !ok {
			return map[string]string{"config": err.Error()}
		}
		out := make(map[string]string)
		for _, e := range errs {
			out[e.Namespace()] = fmt.Sprintf("failed on '%s' tag", e.Tag())
		}
		return out
	}
	return nil
}

func validationError(errs map[string]string) error {
	parts := make([]string, 0, len(errs))
	for k, v := range errs {
		parts = append(parts, k+" "+v)
	}
	sort.Strings(parts)
	return types.NewConfigError("config", "%s", strings.Join(parts, "; "))
}

func applyEnv(c *Config) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, types.NewConfigError(key, "not an integer: %q", v))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				errs = append(errs, types.NewConfigError(key, "not a number: %q", v))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, types.NewConfigError(key, "not a boolean: %q", v))
				return
			}
			*dst = b
		}
	}

	str("SERVER_ADDR", &c.Server.Addr)

	str("PG_HOST", &c.Postgres.Host)
	num("PG_PORT", &c.Postgres.Port)
	str("PG_USER", &c.Postgres.User)
	str("PG_PASS", &c.Postgres.Password)
	str("PG_DB_NAME", &c.Postgres.DBName)
	str("PG_SSLMODE", &c.Postgres.SSLMode)

	str("LLM_URL", &c.LLM.URL)
	str("LLM_MODEL", &c.LLM.Model)
	float("LLM_TEMPERATURE", &c.LLM.Temperature)

	str("EMBEDDER_TYPE", &c.Embedder.Type)
	str("OLLAMA_EMBEDDING_URL", &c.Embedder.URL)
	str("OLLAMA_EMBEDDING_MODEL", &c.Embedder.Model)
	str("EMBEDDING_MODEL_DIR", &c.Embedder.ModelDir)
	num("EMBEDDING_DIMENSIONS", &c.Embedder.Dimensions)

	num("CHUNK_SIZE", &c.Analysis.ChunkSize)
	num("CHUNK_OVERLAP", &c.Analysis.ChunkOverlap)
	float("VAGUENESS_THRESHOLD", &c.Analysis.Threshold)
	num("MAX_CONCURRENCY", &c.Analysis.Concurrency)

	num("LLM_MAX_IN_FLIGHT", &c.Model.MaxInFlight)
	num("LLM_REQUESTS_PER_MINUTE", &c.Model.RequestsPerMinute)
	num("LLM_TIMEOUT_SECS", &c.Model.TimeoutSecs)
	num("LLM_MAX_RETRIES", &c.Model.MaxRetries)

	num("REFERENCE_CHUNK_SIZE", &c.Retrieval.ChunkSize)
	num("REFERENCE_CHUNK_OVERLAP", &c.Retrieval.ChunkOverlap)
	num("RETRIEVAL_TOP_K", &c.Retrieval.TopK)
	float("RETRIEVAL_MIN_SIMILARITY", &c.Retrieval.MinSimilarity)
	str("REFERENCE_CORPUS", &c.Retrieval.Corpus)

	str("STORE_TYPE", &c.Store.Type)
	str("RUNS_DIR", &c.Store.RunsDir)

	str("LOADER_SOURCE_DIR", &c.Loader.SourceDir)
	num("LOADER_SCAN_INTERVAL_SECS", &c.Loader.ScanIntervalSecs)

	str("LOG_LEVEL", &c.Log.Level)
	boolean("LOG_PRETTY", &c.Log.Pretty)

	return errors.Join(errs...)
}
