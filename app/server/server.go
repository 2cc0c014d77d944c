package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"vagueness/app/api"
	"vagueness/app/middleware"
)

var fiberConfig = fiber.Config{
	ErrorHandler: api.ErrorHandler,
	BodyLimit:    64 << 20,
}

type Server struct {
	listenAddr string
	components *Components
	logger     *slog.Logger
}

func NewServer(addr string, c *Components) *Server {
	return &Server{
		listenAddr: addr,
		components: c,
		logger:     slog.Default(),
	}
}

func (s *Server) Stop() {
	s.logger.Info("server stopped")
}

// App builds the HTTP routes. Background runs started through the API are
// bounded by ctx.
func (s *Server) App(ctx context.Context) *fiber.App {
	c := s.components
	var (
		app             = fiber.New(fiberConfig)
		checkHandler    = api.NewCheckHandler(c.Retriever)
		documentHandler = api.NewDocumentHandler(c.Orchestrator)
		analysisHandler = api.NewAnalysisHandler(ctx, c.Orchestrator)
		refHandler      = api.NewReferenceHandler(c.Index, c.Extractor, c.Config.Retrieval.Corpus)
	)
	app.Use(middleware.RequestLogger("/api", s.logger))
	check := app.Group("/check")
	apiv1 := app.Group("/api/v1")

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/ready", checkHandler.HandleReady)

	apiv1.Post("/documents", documentHandler.HandleUpload)
	apiv1.Get("/documents", documentHandler.HandleList)
	apiv1.Get("/documents/:id", documentHandler.HandleGet)
	apiv1.Post("/documents/:id/select", documentHandler.HandleSelect)
	apiv1.Post("/documents/:id/analyze", analysisHandler.HandleAnalyze)

	apiv1.Get("/runs", analysisHandler.HandleListRuns)
	apiv1.Get("/runs/:id", analysisHandler.HandleGetRun)
	apiv1.Get("/runs/:id/progress", analysisHandler.HandleProgress)
	apiv1.Get("/runs/:id/export", analysisHandler.HandleExport)
	apiv1.Post("/runs/:id/cancel", analysisHandler.HandleCancel)

	apiv1.Post("/references", refHandler.HandleIngest)
	apiv1.Get("/references/stats", refHandler.HandleStats)

	return app
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	app := s.App(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.listenAddr)
		errCh <- app.Listen(s.listenAddr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			s.logger.Error("error to start server", "error", err.Error())
		}
		return err
	case <-ctx.Done():
	}

	defer s.Stop()
	return app.ShutdownWithTimeout(10 * time.Second)
}
