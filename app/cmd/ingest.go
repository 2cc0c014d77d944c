package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"vagueness/app/server"
	"vagueness/types"
)

var ingestCorpus string

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE...",
	Short: "Add standards to the reference index",
	Long: `Extracts each PDF or text file and indexes it into a corpus. Files already
in the corpus under the same name are replaced.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestCorpus, "corpus", "", "corpus to ingest into (default from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := server.Build(ctx, cfg, server.Models{})
	if err != nil {
		return err
	}
	defer c.Close()

	if cfg.Store.Type == "memory" {
		cmd.PrintErrln("warning: the memory store is not persisted, set store.type to postgres to keep the index")
	}

	corpus := ingestCorpus
	if corpus == "" {
		corpus = cfg.Retrieval.Corpus
	}

	var failed int
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		pages, err := c.Extractor.Extract(ctx, data)
		if err != nil {
			cmd.PrintErrf("skip %s: %v\n", path, err)
			failed++
			continue
		}
		n, err := c.Index.Ingest(ctx, types.ReferenceDocument{
			Corpus: corpus,
			Title:  titleOf(path),
			Source: filepath.Base(path),
			Pages:  pages,
		})
		if err != nil {
			return fmt.Errorf("ingest %s: %w", path, err)
		}
		cmd.Printf("%s: %d chunks into %q\n", filepath.Base(path), n, corpus)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files could not be read", failed, len(args))
	}
	return nil
}

func titleOf(path string) string {
	name := filepath.Base(path)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return strings.NewReplacer("_", " ", "-", " ").Replace(name)
}
