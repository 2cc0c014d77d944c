// Package loader turns uploaded files into per-page text.
package loader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"golang.org/x/sync/errgroup"

	"vagueness/types"
)

var pdfMagic = []byte("%PDF-")

// Extractor reads PDFs through pdfcpu and plain text files as they are.
// Text files are split into pages on form feeds. Font encodings and
// ToUnicode maps are read with ledongthuc/pdf.
type Extractor struct {
	// Workers bounds concurrent content stream parsing.
	Workers int
	logger  *slog.Logger
}

func NewExtractor() *Extractor {
	return &Extractor{Workers: 4, logger: slog.Default()}
}

// Extract returns one Page per document page, numbered from 1. Pages with
// no recoverable text are kept with Extracted false so numbering matches
// the source. Encrypted, corrupt or non-text input is an ExtractionError.
func (e *Extractor) Extract(ctx context.Context, data []byte) ([]types.Page, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &types.ExtractionError{Source: "upload", Err: errors.New("empty file")}
	}
	if bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), pdfMagic) {
		return e.extractPDF(ctx, data)
	}
	return extractText(data)
}

func extractText(data []byte) ([]types.Page, error) {
	if !utf8.Valid(data) {
		return nil, &types.ExtractionError{Source: "text", Err: errors.New("not a PDF and not UTF-8 text")}
	}
	text := strings.ReplaceAll(string(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))), "\r\n", "\n")
	parts := strings.Split(text, "\f")
	pages := make([]types.Page, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		pages[i] = types.Page{Number: i + 1, Text: p, Extracted: p != ""}
	}
	return pages, nil
}

func (e *Extractor) extractPDF(ctx context.Context, data []byte) ([]types.Page, error) {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	pdfCtx, err := api.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "password") {
			return nil, &types.ExtractionError{Source: "pdf", Err: fmt.Errorf("encrypted document: %w", err)}
		}
		return nil, &types.ExtractionError{Source: "pdf", Err: err}
	}
	if err := api.ValidateContext(pdfCtx); err != nil {
		return nil, &types.ExtractionError{Source: "pdf", Err: err}
	}
	if pdfCtx.PageCount == 0 {
		return nil, &types.ExtractionError{Source: "pdf", Err: errors.New("document has no pages")}
	}

	fonts := e.fontReader(data)

	// pdfcpu decodes streams into the shared context, so reads stay serial.
	contents := make([][]byte, pdfCtx.PageCount)
	decoders := make([]map[string]Decoder, pdfCtx.PageCount)
	for i := range contents {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r, err := pdfcpu.ExtractPageContent(pdfCtx, i+1)
		if err != nil {
			return nil, &types.ExtractionError{Source: "pdf", Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
		if r == nil {
			continue
		}
		if contents[i], err = io.ReadAll(r); err != nil {
			return nil, &types.ExtractionError{Source: "pdf", Err: fmt.Errorf("page %d: %w", i+1, err)}
		}
		decoders[i] = e.pageFonts(fonts, i+1)
	}

	pages := make([]types.Page, len(contents))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(e.Workers, 1))
	for i, c := range contents {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			text := FontText(c, decoders[i])
			pages[i] = types.Page{Number: i + 1, Text: text, Extracted: text != ""}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	extracted := 0
	for _, p := range pages {
		if p.Extracted {
			extracted++
		}
	}
	if extracted == 0 {
		e.logger.Warn("[EXTRACT] no text found, document may be scanned", "pages", len(pages))
	}
	e.logger.Debug("[EXTRACT] pdf extracted", "pages", len(pages), "with_text", extracted)
	return pages, nil
}

// fontReader opens data for font lookups. Without it pages are decoded
// with the built-in single-byte and UTF-16 rules.
func (e *Extractor) fontReader(data []byte) (r *pdf.Reader) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Debug("[EXTRACT] font tables unreadable", "error", rec)
			r = nil
		}
	}()
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		e.logger.Debug("[EXTRACT] font tables unreadable", "error", err)
		return nil
	}
	return r
}

// pageFonts returns the decoders for the fonts a page uses, keyed by
// resource name.
func (e *Extractor) pageFonts(r *pdf.Reader, n int) (fonts map[string]Decoder) {
	if r == nil || n > r.NumPage() {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Debug("[EXTRACT] page fonts unreadable", "page", n, "error", rec)
			fonts = nil
		}
	}()
	page := r.Page(n)
	if page.V.IsNull() {
		return nil
	}
	fonts = make(map[string]Decoder)
	for _, name := range page.Fonts() {
		fonts[name] = page.Font(name).Encoder()
	}
	return fonts
}
