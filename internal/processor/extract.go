package processor

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"textbook-rag/internal/models"
	"textbook-rag/internal/ocr"
)

const (
	// Pages whose text layer is shorter than this are treated as scans
	MinTextLayerLength = 50
	// DefaultRenderDPI is twice the 72 DPI PDF user space
	DefaultRenderDPI  = 144
	DefaultOCRTimeout = 2 * time.Minute
)

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
}

// Extractor converts uploaded documents and textbook PDFs into plain text.
// It never fails: unreadable input degrades to empty or partial text.
type Extractor struct {
	OCR      ocr.Engine
	Renderer ocr.Renderer
	// Preprocessor cleans rendered pages when PageOptions.Preprocess is set.
	Preprocessor  ocr.Preprocessor
	Languages     string
	DPI           int
	MinTextLength int
	OCRTimeout    time.Duration
	Logger        *slog.Logger
}

// NewExtractor creates a new extractor. engine and renderer may be nil, in
// which case scanned pages and images yield no text.
func NewExtractor(engine ocr.Engine, renderer ocr.Renderer, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{
		OCR:           engine,
		Renderer:      renderer,
		Languages:     ocr.DefaultLanguages,
		DPI:           DefaultRenderDPI,
		MinTextLength: MinTextLayerLength,
		OCRTimeout:    DefaultOCRTimeout,
		Logger:        logger,
	}
}

// Supported reports whether filename has an extension the extractor handles.
func Supported(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".pdf" || ext == ".docx" || ext == ".txt" || imageExtensions[ext]
}

// Extract dispatches on the declared file extension.
func (e *Extractor) Extract(ctx context.Context, doc models.Document) string {
	ext := strings.ToLower(filepath.Ext(doc.Filename))

	switch {
	case ext == ".pdf":
		return e.ExtractPDF(ctx, doc.Content)
	case imageExtensions[ext]:
		return e.ExtractImage(ctx, doc.Content)
	case ext == ".docx":
		text, err := ExtractDOCX(doc.Content)
		if err != nil {
			e.Logger.Warn("failed to read docx", "file", doc.Filename, "error", err)
			return ""
		}
		return text
	case ext == ".txt":
		return DecodeText(doc.Content)
	}

	e.Logger.Warn("unsupported file type", "file", doc.Filename)
	return ""
}

// ExtractImage runs OCR over an image with the configured languages.
func (e *Extractor) ExtractImage(ctx context.Context, data []byte) string {
	return e.recognize(ctx, data, e.Languages)
}

func (e *Extractor) recognize(ctx context.Context, image []byte, languages string) string {
	if e.OCR == nil {
		e.Logger.Warn("no OCR engine configured")
		return ""
	}
	if languages == "" {
		languages = e.Languages
	}

	ctx, cancel := e.withOCRDeadline(ctx)
	defer cancel()

	text, err := e.OCR.Recognize(ctx, image, languages)
	if err != nil {
		e.Logger.Warn("OCR failed", "languages", languages, "error", err)
		return ""
	}
	return text
}

func (e *Extractor) withOCRDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.OCRTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.OCRTimeout)
}
