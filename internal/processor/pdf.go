package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"textbook-rag/internal/models"

	"github.com/ledongthuc/pdf"
)

// PageOptions controls per-page extraction
type PageOptions struct {
	// ForceOCR skips the text layer entirely (scanned Gujarati textbooks).
	ForceOCR bool
	// Languages overrides the extractor's OCR language hint.
	Languages string
	// DPI overrides the extractor's render resolution.
	DPI int
	// Preprocess binarizes rendered pages before recognition.
	Preprocess bool
}

// ExtractPDF extracts text from every page, falling back to OCR page by
// page, and joins the pages in order.
func (e *Extractor) ExtractPDF(ctx context.Context, data []byte) string {
	pages, err := e.Pages(ctx, data, PageOptions{})
	if err != nil {
		e.Logger.Warn("failed to read PDF", "error", err, "pages_read", len(pages))
	}

	var sb strings.Builder
	for _, page := range pages {
		sb.WriteString(page.Text)
		sb.WriteString("\n")
	}
	return sb.String()
}

// Pages extracts the text of each page. The error is only reported when the
// document cannot be opened or ctx is cancelled; pages read so far are
// returned either way.
func (e *Extractor) Pages(ctx context.Context, data []byte, opts PageOptions) ([]models.Page, error) {
	reader, err := openPDF(data)
	if err != nil {
		return nil, err
	}

	total := reader.NumPage()
	pages := make([]models.Page, 0, total)

	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return pages, err
		}

		var text string
		if !opts.ForceOCR {
			text = strings.TrimSpace(pageText(reader, n))
		}

		if opts.ForceOCR || models.TrimmedLen(text) < e.MinTextLength {
			e.Logger.Debug("using OCR for page", "page", n, "text_layer_chars", models.TrimmedLen(text))
			pages = append(pages, models.Page{
				Number: n,
				Text:   e.ocrPage(ctx, data, n, opts),
				OCR:    true,
			})
			continue
		}

		e.Logger.Debug("using text layer for page", "page", n)
		pages = append(pages, models.Page{Number: n, Text: text})
	}

	return pages, nil
}

func (e *Extractor) ocrPage(ctx context.Context, data []byte, n int, opts PageOptions) string {
	if e.Renderer == nil || e.OCR == nil {
		e.Logger.Warn("page needs OCR but no renderer/engine configured", "page", n)
		return ""
	}

	dpi := opts.DPI
	if dpi <= 0 {
		dpi = e.DPI
	}

	renderCtx, cancel := e.withOCRDeadline(ctx)
	img, err := e.Renderer.RenderPage(renderCtx, data, n, dpi)
	cancel()
	if err != nil {
		e.Logger.Warn("failed to render page", "page", n, "error", err)
		return ""
	}

	if opts.Preprocess && e.Preprocessor != nil {
		cleaned, err := e.Preprocessor.Preprocess(img)
		if err != nil {
			e.Logger.Warn("failed to preprocess page, using the raw render", "page", n, "error", err)
		} else {
			img = cleaned
		}
	}

	return e.recognize(ctx, img, opts.Languages)
}

// openPDF opens a PDF held in memory. The parser panics on some malformed
// inputs, which is reported as an error.
func openPDF(data []byte) (r *pdf.Reader, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r = nil
			err = fmt.Errorf("failed to open PDF: %v", rec)
		}
	}()

	if len(data) == 0 {
		return nil, errors.New("failed to open PDF: empty input")
	}

	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	return r, nil
}

func pageText(r *pdf.Reader, n int) (text string) {
	defer func() {
		if rec := recover(); rec != nil {
			text = ""
		}
	}()

	p := r.Page(n)
	if p.V.IsNull() {
		return ""
	}

	text, err := p.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}
