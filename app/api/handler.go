package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"vagueness/app/analysis"
	"vagueness/app/report"
	"vagueness/types"
)

type AnalysisHandler struct {
	orch *analysis.Orchestrator
	// base bounds background runs, so they stop with the server.
	base   context.Context
	logger *slog.Logger
}

func NewAnalysisHandler(base context.Context, orch *analysis.Orchestrator) *AnalysisHandler {
	return &AnalysisHandler{
		orch:   orch,
		base:   base,
		logger: slog.Default(),
	}
}

// HandleAnalyze runs the analysis and returns the finished run. With
// ?async=true it starts the run in the background and returns its ID.
func (h *AnalysisHandler) HandleAnalyze(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	var params types.AnalyzeParams
	if len(c.Body()) > 0 && c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	req := analysis.Request{
		DocumentID: id,
		Selection:  params.PageSelection,
		Threshold:  params.Threshold,
	}
	if params.RunID != "" {
		req.RunID = uuid.MustParse(params.RunID)
	}

	if c.QueryBool("async") {
		runID, err := h.orch.Start(h.base, req)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"run_id":   runID,
			"progress": fmt.Sprintf("/api/v1/runs/%s/progress", runID),
		})
	}

	run, err := h.orch.Analyze(c.UserContext(), req, nil)
	if err != nil {
		if run != nil && errors.Is(err, types.ErrCancelled) {
			h.logger.Warn("[API] returning partial run", "run", run.ID, "error", err)
			return c.JSON(run)
		}
		return err
	}
	return c.JSON(run)
}

// HandleCancel stops a run in flight. The partial run stays available
// under the same ID, marked incomplete.
func (h *AnalysisHandler) HandleCancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	if err := h.orch.Cancel(c.UserContext(), id); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return ErrNotFound(id, "run")
		}
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"run_id": id, "cancelled": true})
}

func (h *AnalysisHandler) HandleListRuns(c *fiber.Ctx) error {
	runs, err := h.orch.Runs(c.UserContext(), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	return c.JSON(runs)
}

func (h *AnalysisHandler) HandleGetRun(c *fiber.Ctx) error {
	run, err := h.run(c)
	if err != nil {
		return err
	}
	return c.JSON(run)
}

func (h *AnalysisHandler) HandleProgress(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	p, err := h.orch.Progress(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return ErrNotFound(id, "run")
		}
		return err
	}
	return c.JSON(p)
}

// HandleExport downloads the run as JSON or CSV.
func (h *AnalysisHandler) HandleExport(c *fiber.Ctx) error {
	var params types.ExportParams
	if c.QueryParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	format, err := report.ParseFormat(params.Format)
	if err != nil {
		return err
	}
	run, err := h.run(c)
	if err != nil {
		return err
	}

	c.Attachment(fmt.Sprintf("vagueness-%s.%s", run.ID, format.Extension()))
	c.Set(fiber.HeaderContentType, format.ContentType())
	return report.Write(c.Response().BodyWriter(), run, format)
}

func (h *AnalysisHandler) run(c *fiber.Ctx) (*types.AnalysisRun, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, ErrInvalidID()
	}
	run, err := h.orch.Run(c.UserContext(), id)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, ErrNotFound(id, "run")
		}
		return nil, err
	}
	return run, nil
}
