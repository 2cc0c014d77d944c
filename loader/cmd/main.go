package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"vagueness/app/index"
	"vagueness/config"
	"vagueness/loader"
	"vagueness/loader/internal"
	"vagueness/loader/service"
	"vagueness/logging"
	"vagueness/model"
	"vagueness/store"
)

func init() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatal("Error loading .env file: ", err)
	}
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.NewPostgresStore(ctx, cfg.Postgres.ConnString(), cfg.Embedder.Dimensions)
	if err != nil {
		log.Fatal("error to connect to Postgres database: ", err)
	}
	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables: ", err)
	}
	defer func() {
		logger.Info("closing database connection pool")
		if err := pool.Close(); err != nil {
			logger.Error("error closing pool", "error", err)
		}
	}()

	embedder, err := model.NewEmbedder(model.EmbedderOptions{
		Kind:     cfg.Embedder.Type,
		URL:      cfg.Embedder.URL,
		Model:    cfg.Embedder.Model,
		ModelDir: cfg.Embedder.ModelDir,
	})
	if err != nil {
		log.Fatal("error creating embedder: ", err)
	}
	limiter := model.NewLimiter(model.LimiterConfig{
		MaxInFlight:       cfg.Model.MaxInFlight,
		RequestsPerMinute: cfg.Model.RequestsPerMinute,
		CallTimeout:       cfg.Model.Timeout(),
	})

	idx, err := index.New(pool, model.LimitEmbedder(embedder, limiter), index.Config{
		ChunkSize:    cfg.Retrieval.ChunkSize,
		ChunkOverlap: cfg.Retrieval.ChunkOverlap,
		EmbedWorkers: cfg.Model.MaxInFlight,
	})
	if err != nil {
		log.Fatal(err)
	}

	svc, err := service.New(idx, loader.NewExtractor(), internal.WatcherConfig{
		SourceDir:  cfg.Loader.SourceDir,
		ArchiveDir: filepath.Join(cfg.Loader.SourceDir, "archive"),
		BadDir:     filepath.Join(cfg.Loader.SourceDir, "bad"),
		Interval:   time.Duration(cfg.Loader.ScanIntervalSecs) * time.Second,
		SettleTime: 2 * time.Duration(cfg.Loader.ScanIntervalSecs) * time.Second,
	}, cfg.Retrieval.Corpus)
	if err != nil {
		log.Fatal(err)
	}

	svc.Run(ctx)
}
