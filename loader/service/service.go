// Package service feeds reference files dropped into a folder into the
// reference index.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vagueness/app/index"
	"vagueness/loader/internal"
	"vagueness/types"
)

// Extractor turns file bytes into pages.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]types.Page, error)
}

type Service struct {
	logger    *slog.Logger
	index     *index.Index
	extractor Extractor
	watcher   *internal.Watcher
	corpus    string
}

func New(idx *index.Index, ex Extractor, cfg internal.WatcherConfig, corpus string) (*Service, error) {
	if len(cfg.Extensions) == 0 {
		cfg.Extensions = []string{".pdf", ".txt"}
	}
	w, err := internal.NewWatcher(cfg)
	if err != nil {
		return nil, err
	}
	return &Service{
		logger:    slog.Default(),
		index:     idx,
		extractor: ex,
		watcher:   w,
		corpus:    corpus,
	}, nil
}

func (s *Service) Stop() {
	s.logger.Info("[LOADER] service stopped")
}

// Run watches the source folder and ingests settled files until ctx is
// cancelled, then waits up to five seconds for the current file to finish.
func (s *Service) Run(ctx context.Context) {
	fileChan := make(chan string, 10)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.watcher.Watch(ctx, fileChan)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for path := range fileChan {
			if ctx.Err() != nil {
				return
			}
			s.Handle(context.WithoutCancel(ctx), path)
		}
	}()

	<-ctx.Done()
	s.logger.Info("[LOADER] shutting down")

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("[LOADER] timeout waiting for goroutines to stop")
	}
	s.Stop()
}

// Handle ingests one file and archives it, or moves it to the bad folder
// when it cannot be read or ingested.
func (s *Service) Handle(ctx context.Context, path string) {
	n, err := s.Ingest(ctx, path)
	state := internal.Processed
	if err != nil {
		s.logger.Error("[LOADER] error ingesting file", "file", path, "error", err)
		state = internal.Bad
	} else {
		s.logger.Info("[LOADER] successfully ingested reference", "file", path, "chunks", n)
	}
	if _, err := s.watcher.Done(path, state); err != nil {
		s.logger.Error("[LOADER] error moving file", "file", path, "error", err)
	}
}

// Ingest reads, extracts and indexes one reference file.
func (s *Service) Ingest(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pages, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s.index.Ingest(ctx, types.ReferenceDocument{
		Corpus: s.corpus,
		Title:  internal.GenerateTitle(path),
		Source: filepath.Base(path),
		Pages:  pages,
	})
}
