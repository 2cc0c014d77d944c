package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"vagueness/app/agent"
	"vagueness/store"
	"vagueness/types"
)

type Request struct {
	DocumentID uuid.UUID
	Selection  types.PageSelection
	// Threshold overrides the configured threshold when set.
	Threshold *float64
	// RunID is assigned when zero.
	RunID uuid.UUID
}

// ProgressFunc is called after each chunk leaves the pipeline. Calls never
// overlap and Processed only grows, so callers need no locking.
type ProgressFunc func(types.Progress)

// chunkOutcome is what one worker produced for one chunk.
type chunkOutcome struct {
	done        bool
	result      types.ClassificationResult
	suggestions []types.Suggestion
	failures    []types.ChunkFailure
	failed      bool
	// cut is set when cancellation stopped the chunk's phrases midway.
	cut bool
}

// Analyze runs the selected chunks through classification and, for vague
// chunks, location, retrieval and suggestion. Per-chunk failures are recorded
// in the run. When ctx is cancelled no new model calls are made, in-flight
// ones finish, and the partial run is returned marked incomplete together
// with an error matching types.ErrCancelled.
func (o *Orchestrator) Analyze(ctx context.Context, req Request, onProgress ProgressFunc) (*types.AnalysisRun, error) {
	threshold := o.cfg.Threshold
	if req.Threshold != nil {
		threshold = *req.Threshold
		if threshold < 0 || threshold > 1 {
			return nil, types.NewConfigError("threshold", "must be between 0 and 1, got %v", threshold)
		}
	}
	sel, err := o.Select(req.DocumentID, req.Selection)
	if err != nil {
		return nil, err
	}
	doc, err := o.Document(req.DocumentID)
	if err != nil {
		return nil, err
	}

	run := &types.AnalysisRun{
		ID:            req.RunID,
		DocumentID:    doc.ID,
		DocumentTitle: doc.Title,
		Selection:     req.Selection,
		PageStart:     sel.PageStart,
		PageEnd:       sel.PageEnd,
		Threshold:     threshold,
		Results:       []types.ClassificationResult{},
		Suggestions:   []types.Suggestion{},
		Failures:      []types.ChunkFailure{},
		StartedAt:     time.Now(),
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	o.track(run.ID, cancel)
	defer func() {
		o.untrack(run.ID)
		cancel()
	}()

	total := len(sel.Chunks)
	o.setProgress(types.Progress{RunID: run.ID, Total: total})
	o.logger.Info("[ANALYZE] run started", "run", run.ID, "document", doc.ID,
		"selection", req.Selection.String(), "chunks", total, "threshold", threshold)

	if total > 0 {
		if err := o.deps.Retriever.Available(ctx); err != nil && ctx.Err() == nil {
			o.logger.Warn("[ANALYZE] reference index unavailable, suggestions will be unsupported", "run", run.ID, "error", err)
			run.RetrievalDegraded = true
		}
	}

	outcomes := make([]chunkOutcome, total)
	var degraded atomic.Bool
	degraded.Store(run.RetrievalDegraded)
	var processed atomic.Int64
	// reportMu keeps progress callbacks serial and in Processed order.
	var reportMu sync.Mutex

	jobs := make(chan int)
	var wg sync.WaitGroup
	for range min(o.cfg.Concurrency, max(total, 1)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				outcomes[i] = o.processChunk(ctx, sel.Chunks[i], threshold, &degraded)
				if !outcomes[i].done {
					continue
				}
				reportMu.Lock()
				p := types.Progress{RunID: run.ID, Processed: int(processed.Add(1)), Total: total}
				o.setProgress(p)
				if onProgress != nil {
					onProgress(p)
				}
				reportMu.Unlock()
			}
		}()
	}
feed:
	for i := range sel.Chunks {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	cut := false
	for _, out := range outcomes {
		if !out.done {
			continue
		}
		cut = cut || out.cut
		if out.failed {
			run.Failures = append(run.Failures, out.failures...)
			continue
		}
		run.Results = append(run.Results, out.result)
		run.Suggestions = append(run.Suggestions, out.suggestions...)
	}
	run.RetrievalDegraded = degraded.Load()
	run.Incomplete = int(processed.Load()) < total || cut
	run.Summary = Summarize(total, run)
	run.FinishedAt = time.Now()

	saveErr := o.deps.Runs.SaveRun(context.WithoutCancel(ctx), run)
	final := types.Progress{RunID: run.ID, Processed: int(processed.Load()), Total: total, Done: true}
	o.setProgress(final)
	if onProgress != nil {
		onProgress(final)
	}
	if saveErr != nil {
		saveErr = fmt.Errorf("save run %s: %w", run.ID, saveErr)
		o.logger.Error("[ANALYZE] error saving run", "run", run.ID, "error", saveErr)
	}
	o.logger.Info("[ANALYZE] run finished", "run", run.ID, "classified", run.Summary.ClassifiedChunks,
		"vague", run.Summary.VagueChunks, "failed", run.Summary.FailedChunks, "incomplete", run.Incomplete,
		"elapsed", run.FinishedAt.Sub(run.StartedAt))

	if run.Incomplete {
		cancelled := fmt.Errorf("%w: %d of %d chunks processed", types.ErrCancelled, processed.Load(), total)
		return run, errors.Join(cancelled, saveErr)
	}
	return run, saveErr
}

// Start validates the request, then analyzes in the background and returns
// the run ID to poll. ctx bounds the background run.
func (o *Orchestrator) Start(ctx context.Context, req Request) (uuid.UUID, error) {
	if _, err := o.Select(req.DocumentID, req.Selection); err != nil {
		return uuid.Nil, err
	}
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		return uuid.Nil, types.NewConfigError("threshold", "must be between 0 and 1, got %v", *req.Threshold)
	}
	if req.RunID == uuid.Nil {
		req.RunID = uuid.New()
	}
	ctx, cancel := context.WithCancel(ctx)
	o.track(req.RunID, cancel)
	o.setProgress(types.Progress{RunID: req.RunID})
	go func() {
		defer func() {
			o.untrack(req.RunID)
			cancel()
		}()
		if _, err := o.Analyze(ctx, req, nil); err != nil {
			o.logger.Error("[ANALYZE] background run failed", "run", req.RunID, "error", err)
		}
	}()
	return req.RunID, nil
}

func (o *Orchestrator) processChunk(ctx context.Context, chunk types.Chunk, threshold float64, degraded *atomic.Bool) chunkOutcome {
	result, err := o.deps.Classifier.Classify(ctx, chunk, threshold)
	if err != nil {
		if ctx.Err() != nil {
			return chunkOutcome{}
		}
		o.logger.Warn("[ANALYZE] chunk failed classification", "chunk", chunk.ID, "error", err)
		return chunkOutcome{
			done:   true,
			failed: true,
			failures: []types.ChunkFailure{{
				ChunkID: chunk.ID, Pages: chunk.Pages, Stage: types.StageClassified, Error: err.Error(),
			}},
		}
	}
	out := chunkOutcome{done: true, result: result}
	if !result.IsVague {
		return out
	}

	for _, ph := range result.Phrases {
		if ctx.Err() != nil {
			out.cut = true
			break
		}
		sugg, fail := o.suggest(ctx, chunk, ph, degraded)
		switch {
		case fail != nil:
			// A failed phrase fails the whole chunk; its other phrases are not tried.
			return chunkOutcome{done: true, failed: true, failures: []types.ChunkFailure{*fail}}
		case sugg != nil:
			out.suggestions = append(out.suggestions, *sugg)
		default:
			out.cut = true
		}
	}
	return out
}

// suggest takes one flagged phrase through location, retrieval and
// suggestion. A nil suggestion with a nil failure means the run was
// cancelled mid-phrase.
func (o *Orchestrator) suggest(ctx context.Context, chunk types.Chunk, ph types.FlaggedPhrase, degraded *atomic.Bool) (*types.Suggestion, *types.ChunkFailure) {
	failure := func(stage types.Stage, err error) *types.ChunkFailure {
		o.logger.Warn("[ANALYZE] phrase failed", "chunk", chunk.ID, "phrase", ph.Phrase, "stage", stage, "error", err)
		return &types.ChunkFailure{ChunkID: chunk.ID, Pages: chunk.Pages, Stage: stage, Phrase: ph.Phrase, Error: err.Error()}
	}
	unsupported := func(terms []string) *types.Suggestion {
		if terms == nil {
			terms = []string{}
		}
		return &types.Suggestion{
			ChunkID:             chunk.ID,
			VaguePhrase:         ph.Phrase,
			Category:            ph.Category,
			OriginalText:        chunk.Text,
			StandardsReferenced: []string{},
			SpecificChanges:     []string{},
			SearchTerms:         terms,
			ReferencesUsed:      []string{},
			LowConfidence:       true,
			Unsupported:         true,
		}
	}

	loc, err := o.deps.Locator.Locate(ctx, chunk.ID, ph.Phrase, chunk.Text)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, failure(types.StageLocated, err)
	}
	if loc.Empty() {
		return unsupported(nil), nil
	}
	if degraded.Load() {
		return unsupported(loc.Terms), nil
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	passages, err := o.deps.Retriever.Retrieve(ctx, loc.Terms)
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		if errors.Is(err, types.ErrRetrievalUnavailable) {
			o.logger.Warn("[ANALYZE] retrieval unavailable, degrading run", "chunk", chunk.ID, "error", err)
			degraded.Store(true)
			return unsupported(loc.Terms), nil
		}
		return nil, failure(types.StageRetrieved, err)
	}
	if ctx.Err() != nil {
		return nil, nil
	}

	sugg, err := o.deps.Suggester.Suggest(ctx, agent.SuggestRequest{
		ChunkID:     chunk.ID,
		Text:        chunk.Text,
		Phrase:      ph.Phrase,
		Category:    ph.Category,
		SearchTerms: loc.Terms,
		Passages:    passages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, nil
		}
		return nil, failure(types.StageSuggested, err)
	}
	return &sugg, nil
}

func (o *Orchestrator) track(runID uuid.UUID, cancel context.CancelFunc) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cancels[runID] = cancel
}

func (o *Orchestrator) untrack(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.cancels, runID)
}

// Cancel stops a run in flight. No new model calls are made after it
// returns; the run finishes with the chunks already done, marked
// incomplete. Cancelling a finished run is a no-op.
func (o *Orchestrator) Cancel(ctx context.Context, runID uuid.UUID) error {
	o.mu.Lock()
	cancel, running := o.cancels[runID]
	_, known := o.progress[runID]
	o.mu.Unlock()
	if running {
		o.logger.Info("[ANALYZE] cancelling run", "run", runID)
		cancel()
		return nil
	}
	if known {
		return nil
	}
	_, err := o.deps.Runs.GetRun(ctx, runID)
	return err
}

func (o *Orchestrator) setProgress(p types.Progress) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.progress[p.RunID] = p
}

// Progress reports how far a run has come. Runs started in another process
// are reported done if they are stored.
func (o *Orchestrator) Progress(ctx context.Context, runID uuid.UUID) (types.Progress, error) {
	o.mu.RLock()
	p, ok := o.progress[runID]
	o.mu.RUnlock()
	if ok {
		return p, nil
	}
	run, err := o.deps.Runs.GetRun(ctx, runID)
	if err != nil {
		return types.Progress{}, err
	}
	done := run.Summary.ClassifiedChunks + run.Summary.FailedChunks
	return types.Progress{RunID: runID, Processed: done, Total: run.Summary.SelectedChunks, Done: true}, nil
}

func (o *Orchestrator) Run(ctx context.Context, runID uuid.UUID) (*types.AnalysisRun, error) {
	return o.deps.Runs.GetRun(ctx, runID)
}

// Runs lists stored runs, newest first.
func (o *Orchestrator) Runs(ctx context.Context, limit int) ([]store.RunInfo, error) {
	return o.deps.Runs.ListRuns(ctx, limit)
}
