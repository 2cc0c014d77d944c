package api

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"vagueness/types"
)

type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]types.Page, error)
}

type ReferenceIndex interface {
	Ingest(ctx context.Context, doc types.ReferenceDocument) (int, error)
	Stats(ctx context.Context) ([]types.CorpusStats, error)
}

type ReferenceHandler struct {
	index     ReferenceIndex
	extractor Extractor
	corpus    string
}

func NewReferenceHandler(index ReferenceIndex, ex Extractor, defaultCorpus string) *ReferenceHandler {
	return &ReferenceHandler{index: index, extractor: ex, corpus: defaultCorpus}
}

// HandleIngest adds an uploaded standard to the reference index, replacing
// any earlier upload with the same file name in the same corpus.
func (h *ReferenceHandler) HandleIngest(c *fiber.Ctx) error {
	params := types.IngestParams{Corpus: c.FormValue("corpus")}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}
	if params.Corpus == "" {
		params.Corpus = h.corpus
	}

	data, name, err := readUpload(c)
	if err != nil {
		return err
	}
	pages, err := h.extractor.Extract(c.UserContext(), data)
	if err != nil {
		return err
	}
	title := c.FormValue("title")
	if title == "" {
		title = titleOf(name)
	}

	n, err := h.index.Ingest(c.UserContext(), types.ReferenceDocument{
		Corpus: params.Corpus,
		Title:  title,
		Source: name,
		Pages:  pages,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"corpus": params.Corpus,
		"source": name,
		"chunks": n,
	})
}

func (h *ReferenceHandler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.index.Stats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(stats)
}
