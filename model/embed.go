package model

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"
)

// Embedder turns text into a vector. Implementations must be deterministic.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reasoner sends a prompt to a language model and returns its raw reply.
type Reasoner interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type EmbedderOptions struct {
	Kind     string
	URL      string
	Model    string
	ModelDir string
}

// NewEmbedder picks an embedding backend: "ollama" for a remote Ollama server
// or "local" for an in-process ONNX sentence transformer.
func NewEmbedder(opts EmbedderOptions) (Embedder, error) {
	switch strings.ToLower(opts.Kind) {
	case "", "ollama":
		log.Printf("[EMBEDDER] Uses Ollama for embeddings (%s)", opts.Model)
		return NewOllamaEmbedder(opts.URL, opts.Model), nil
	case "local", "hugot":
		log.Printf("[EMBEDDER] Uses local model for embeddings (%s)", opts.Model)
		return NewLocalEmbedder(opts.Model, opts.ModelDir)
	}
	return nil, fmt.Errorf("unknown embedder %q", opts.Kind)
}

// LocalEmbedder runs a sentence transformer through hugot.
type LocalEmbedder struct {
	mu       sync.Mutex
	session  *hugot.Session
	pipeline *pipelines.FeatureExtractionPipeline
}

func NewLocalEmbedder(modelName, modelDir string) (*LocalEmbedder, error) {
	if modelName == "" {
		modelName = "sentence-transformers/all-MiniLM-L6-v2"
	}
	modelPath, err := prepareModel(modelName, modelDir)
	if err != nil {
		return nil, err
	}

	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "reference-embedder",
	}
	pipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("failed to create embedding pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("failed to create embedding pipeline: %w", err)
	}

	return &LocalEmbedder{session: session, pipeline: pipeline}, nil
}

func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.pipeline.RunPipeline([]string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to generate embedding: %w", err)
	}
	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embedding generated")
	}
	return result.Embeddings[0], nil
}

func (e *LocalEmbedder) Close() error {
	return e.session.Destroy()
}

func prepareModel(modelName, modelDir string) (string, error) {
	if modelDir == "" {
		modelDir = "./models"
	}
	modelPath := filepath.Join(modelDir, strings.ReplaceAll(modelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	}

	if err := os.MkdirAll(modelDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create model directory: %w", err)
	}
	downloadOptions := hugot.NewDownloadOptions()
	downloadOptions.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(modelName, modelDir, downloadOptions)
	if err != nil {
		return "", fmt.Errorf("failed to download model: %w", err)
	}
	return downloaded, nil
}
