package server

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vagueness/config"
	"vagueness/model"
	"vagueness/types"
)

const (
	clearReply = `{"is_vague": false, "vagueness_score": 0.05, "vague_phrases": [], "severity": "low", "explanation": "precise"}`
	vagueReply = `{"is_vague": true, "vagueness_score": 0.6, "vague_phrases": [{"phrase": "as required", "category": "open_ended_terms"}], "severity": "medium", "explanation": "no measurable limit"}`
	locateHit  = `{"suggested_documents": ["IS 456"], "search_terms": ["curing of concrete"], "reasoning": "concrete curing"}`
	suggestIS  = `{"improved_text": "Cure concrete for at least 7 days.", "specific_changes": ["as required -> at least 7 days"], "standards_referenced": ["IS 456"], "explanation": "curing clause"}`
)

type scriptedReasoner struct{}

func (scriptedReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	switch {
	case strings.Contains(prompt, "VAGUE PHRASE:") || strings.Contains(prompt, `"improved_text"`):
		return suggestIS, nil
	case strings.Contains(prompt, `"suggested_documents"`):
		return locateHit, nil
	case strings.Contains(prompt, "as required"):
		return vagueReply, nil
	}
	return clearReply, nil
}

// bagEmbedder hashes words into a small vector, so texts sharing words are similar.
type bagEmbedder struct{}

func (bagEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 32)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(w, ".,")))
		vec[h.Sum32()%32]++
	}
	return vec, nil
}

// gatedReasoner holds its first call until release is closed.
type gatedReasoner struct {
	scriptedReasoner
	calls   atomic.Int32
	reached chan struct{}
	release chan struct{}
}

func (g *gatedReasoner) Complete(ctx context.Context, prompt string) (string, error) {
	if g.calls.Add(1) == 1 {
		close(g.reached)
		<-g.release
	}
	return g.scriptedReasoner.Complete(ctx, prompt)
}

func newApp(t *testing.T) *fiber.App {
	t.Helper()
	return newAppWith(t, scriptedReasoner{}, func(*config.Config) {})
}

func newAppWith(t *testing.T, r model.Reasoner, tweak func(*config.Config)) *fiber.App {
	t.Helper()
	cfg := config.Default()
	cfg.Retrieval.MinSimilarity = 0
	cfg.Store.RunsDir = t.TempDir()
	tweak(cfg)

	c, err := Build(context.Background(), cfg, Models{Reasoner: r, Embedder: bagEmbedder{}})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return NewServer(":0", c).App(context.Background())
}

func upload(t *testing.T, app *fiber.App, path, name string, data []byte, fields map[string]string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	fw, err := w.CreateFormFile("file", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func loadTender(t *testing.T, app *fiber.App) string {
	t.Helper()
	resp := upload(t, app, "/api/v1/documents", "tender.txt",
		[]byte("Cure the concrete as required by the engineer.\fPaint walls with two coats of 20 micron emulsion."), nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	doc := decode[map[string]any](t, resp)
	assert.Equal(t, "tender", doc["title"])
	assert.EqualValues(t, 2, doc["pages"])
	return doc["id"].(string)
}

func TestAnalyzeAndExport(t *testing.T) {
	app := newApp(t)

	resp := upload(t, app, "/api/v1/references", "IS_456.txt",
		[]byte("Curing of concrete shall continue for at least 7 days."), map[string]string{"corpus": "is"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	ingested := decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, ingested["chunks"])

	stats := decode[[]types.CorpusStats](t, doJSON(t, app, http.MethodGet, "/api/v1/references/stats", ""))
	require.Len(t, stats, 1)
	assert.Equal(t, "is", stats[0].Corpus)

	id := loadTender(t, app)

	resp = doJSON(t, app, http.MethodPost, "/api/v1/documents/"+id+"/analyze", `{"mode": "all"}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	run := decode[types.AnalysisRun](t, resp)
	require.Len(t, run.Results, 1)
	assert.True(t, run.Results[0].IsVague)
	require.Len(t, run.Suggestions, 1)
	assert.Equal(t, "as required", run.Suggestions[0].VaguePhrase)
	assert.False(t, run.Suggestions[0].Unsupported)
	assert.False(t, run.Incomplete)

	resp = doJSON(t, app, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/export?format=csv", "")
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".csv")
	csvBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(csvBody), "as required")

	p := decode[types.Progress](t, doJSON(t, app, http.MethodGet, "/api/v1/runs/"+run.ID.String()+"/progress", ""))
	assert.True(t, p.Done)
	assert.Equal(t, 1, p.Processed)

	runs := decode[[]map[string]any](t, doJSON(t, app, http.MethodGet, "/api/v1/runs", ""))
	assert.Len(t, runs, 1)
}

func TestAsyncAnalyze(t *testing.T) {
	app := newApp(t)
	id := loadTender(t, app)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/documents/"+id+"/analyze?async=true", `{"mode": "single", "start": 2}`)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	started := decode[map[string]any](t, resp)
	runID := started["run_id"].(string)

	require.Eventually(t, func() bool {
		resp := doJSON(t, app, http.MethodGet, "/api/v1/runs/"+runID, "")
		return resp.StatusCode == fiber.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
}

func TestCancelRun(t *testing.T) {
	gate := &gatedReasoner{reached: make(chan struct{}), release: make(chan struct{})}
	app := newAppWith(t, gate, func(cfg *config.Config) {
		cfg.Analysis.ChunkSize = 40
		cfg.Analysis.ChunkOverlap = 0
		cfg.Analysis.Concurrency = 1
	})
	id := loadTender(t, app)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/documents/"+id+"/analyze?async=true", `{"mode": "all"}`)
	require.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	runID := decode[map[string]any](t, resp)["run_id"].(string)

	<-gate.reached
	resp = doJSON(t, app, http.MethodPost, "/api/v1/runs/"+runID+"/cancel", "")
	assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
	close(gate.release)

	require.Eventually(t, func() bool {
		return doJSON(t, app, http.MethodGet, "/api/v1/runs/"+runID, "").StatusCode == fiber.StatusOK
	}, 5*time.Second, 20*time.Millisecond)
	run := decode[types.AnalysisRun](t, doJSON(t, app, http.MethodGet, "/api/v1/runs/"+runID, ""))
	assert.True(t, run.Incomplete)
	assert.Equal(t, int32(1), gate.calls.Load(), "Expected no model calls after cancel")

	resp = doJSON(t, app, http.MethodPost, "/api/v1/runs/7d0b8a3e-4f7c-4a86-9b1e-2f6a1c0d9e55/cancel", "")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestSelectPreview(t *testing.T) {
	app := newApp(t)
	id := loadTender(t, app)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/documents/"+id+"/select", `{"mode": "range", "start": 1, "end": 2}`)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	sel := decode[map[string]any](t, resp)
	assert.EqualValues(t, 1, sel["page_start"])
	assert.EqualValues(t, 2, sel["page_end"])
}

func TestErrorStatuses(t *testing.T) {
	app := newApp(t)
	id := loadTender(t, app)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		code   int
	}{
		{"bad id", http.MethodGet, "/api/v1/documents/not-a-uuid", "", fiber.StatusBadRequest},
		{"unknown document", http.MethodGet, "/api/v1/documents/7d0b8a3e-4f7c-4a86-9b1e-2f6a1c0d9e55", "", fiber.StatusNotFound},
		{"unknown run", http.MethodGet, "/api/v1/runs/7d0b8a3e-4f7c-4a86-9b1e-2f6a1c0d9e55", "", fiber.StatusNotFound},
		{"range outside document", http.MethodPost, "/api/v1/documents/" + id + "/analyze", `{"mode": "range", "start": 5, "end": 9}`, fiber.StatusBadRequest},
		{"threshold out of range", http.MethodPost, "/api/v1/documents/" + id + "/analyze", `{"threshold": 1.5}`, fiber.StatusUnprocessableEntity},
		{"unknown mode", http.MethodPost, "/api/v1/documents/" + id + "/select", `{"mode": "odd"}`, fiber.StatusUnprocessableEntity},
		{"malformed body", http.MethodPost, "/api/v1/documents/" + id + "/select", `{"mode": `, fiber.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, app, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.code, resp.StatusCode)
		})
	}

	resp := upload(t, app, "/api/v1/documents", "scan.bin", []byte{0xff, 0xfe, 0x00, 0x01}, nil)
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHealthChecks(t *testing.T) {
	app := newApp(t)

	health := decode[map[string]string](t, doJSON(t, app, http.MethodGet, "/check/healthy", ""))
	assert.Equal(t, "ok", health["result"])

	ready := decode[map[string]string](t, doJSON(t, app, http.MethodGet, "/check/ready", ""))
	assert.Contains(t, []string{"ok", "degraded"}, ready["result"])
}
