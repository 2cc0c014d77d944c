package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"
)

// StatusError is a non-200 reply from the model server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("ollama API error: status %d, body: %s", e.Code, e.Body)
}

// OllamaEmbedder requests embeddings from an Ollama server and normalizes them.
type OllamaEmbedder struct {
	apiURL string
	model  string
	client *http.Client
}

type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

func NewOllamaEmbedder(apiURL, model string) *OllamaEmbedder {
	return &OllamaEmbedder{
		apiURL: apiURL,
		model:  model,
		client: &http.Client{},
	}
}

func (e *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(OllamaEmbeddingRequest{Model: e.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	respBody, err := post(ctx, e.client, e.apiURL, body)
	if err != nil {
		return nil, err
	}

	var ollamaResp OllamaEmbeddingResponse
	if err := json.Unmarshal(respBody, &ollamaResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, errors.New("empty embedding in response")
	}

	norm := normalize64(ollamaResp.Embedding)
	embedding := make([]float32, len(norm))
	for i, v := range norm {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

func normalize64(vec []float64) []float64 {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return vec
	}

	for i, x := range vec {
		vec[i] = x / norm
	}
	return vec
}

// OllamaReasoner sends prompts to an Ollama /api/generate endpoint and
// returns the raw reply text.
type OllamaReasoner struct {
	url         string
	model       string
	system      string
	temperature float32
	client      *http.Client
	logger      *slog.Logger
	tokens      *TokenCounter
}

type GenerateRequest struct {
	Model   string         `json:"model"`
	System  string         `json:"system,omitempty"`
	Prompt  string         `json:"prompt"`
	Format  string         `json:"format,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type GenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

const analystSystem = `You are an expert reviewer of technical and contractual documents.
You answer with a single JSON object and nothing else.`

func NewOllamaReasoner(url, model string, temperature float32) *OllamaReasoner {
	return &OllamaReasoner{
		url:         url,
		model:       model,
		system:      analystSystem,
		temperature: temperature,
		client:      &http.Client{},
		logger:      slog.Default(),
		tokens:      NewTokenCounter(),
	}
}

func (r *OllamaReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	start := time.Now()
	defer func() {
		r.logger.Debug("[LLM] answer took", "duration", time.Since(start), "model", r.model)
	}()

	reqBody, err := json.Marshal(GenerateRequest{
		Model:   r.model,
		System:  r.system,
		Prompt:  prompt,
		Format:  "json",
		Options: map[string]any{"temperature": r.temperature},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}
	r.logger.Debug("[LLM] prompt size", "tokens", r.tokens.Count(string(reqBody)), "bytes", len(reqBody))

	body, err := post(ctx, r.client, r.url, reqBody)
	if err != nil {
		return "", err
	}

	var genResp GenerateResponse
	if err := json.Unmarshal(body, &genResp); err == nil && genResp.Response != "" {
		return genResp.Response, nil
	}

	// streamed reply: concatenate the fragments
	var b strings.Builder
	decoder := json.NewDecoder(bytes.NewReader(body))
	for decoder.More() {
		var chunk GenerateResponse
		if err := decoder.Decode(&chunk); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		b.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	return b.String(), nil
}

func post(ctx context.Context, client *http.Client, url string, body []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{Code: resp.StatusCode, Body: string(respBody)}
	}
	return respBody, nil
}
