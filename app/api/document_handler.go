package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"vagueness/app/analysis"
	"vagueness/types"
)

type DocumentHandler struct {
	orch *analysis.Orchestrator
}

func NewDocumentHandler(orch *analysis.Orchestrator) *DocumentHandler {
	return &DocumentHandler{orch: orch}
}

// DocumentInfo is a document without its page text.
type DocumentInfo struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Source         string    `json:"source"`
	Pages          int       `json:"pages"`
	ExtractedPages int       `json:"extracted_pages"`
	LoadedAt       time.Time `json:"loaded_at"`
}

func infoOf(doc *types.Document) DocumentInfo {
	return DocumentInfo{
		ID:             doc.ID,
		Title:          doc.Title,
		Source:         doc.Source,
		Pages:          doc.PageCount(),
		ExtractedPages: doc.ExtractedPages(),
		LoadedAt:       doc.LoadedAt,
	}
}

// HandleUpload loads a PDF or text file into the session.
func (h *DocumentHandler) HandleUpload(c *fiber.Ctx) error {
	data, name, err := readUpload(c)
	if err != nil {
		return err
	}
	title := c.FormValue("title")
	if title == "" {
		title = titleOf(name)
	}

	doc, err := h.orch.Load(c.UserContext(), title, name, data)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(infoOf(doc))
}

func (h *DocumentHandler) HandleList(c *fiber.Ctx) error {
	docs := h.orch.Documents()
	out := make([]DocumentInfo, len(docs))
	for i, d := range docs {
		out[i] = infoOf(d)
	}
	return c.JSON(out)
}

func (h *DocumentHandler) HandleGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	doc, err := h.orch.Document(id)
	if err != nil {
		return ErrNotFound(id, "document")
	}
	if c.QueryBool("pages") {
		return c.JSON(doc)
	}
	return c.JSON(infoOf(doc))
}

// HandleSelect previews which chunks a page selection covers.
func (h *DocumentHandler) HandleSelect(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	var params types.SelectParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return NewValidationError(errors)
	}

	sel, err := h.orch.Select(id, params.PageSelection)
	if err != nil {
		return err
	}
	return c.JSON(sel)
}
