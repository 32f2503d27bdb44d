// Package ingest builds the persisted textbook collections offline.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"textbook-rag/internal/database"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/models"
	"textbook-rag/internal/processor"
)

const (
	DefaultBatchSize    = 100
	DefaultOCRDPI       = 400
	DefaultOCRLanguages = "guj"
)

// Textbook is one source file and the catalog entry it belongs to
type Textbook struct {
	Path     string
	Subject  string
	Grade    string
	Language models.Language
}

// Result reports the outcome of ingesting one textbook
type Result struct {
	Textbook Textbook
	Location models.Location
	Chunks   int
	Skipped  bool
	Err      error
}

// Summary aggregates the results of a batch
type Summary struct {
	Processed int
	Skipped   int
	Failed    int
	Chunks    int
	Databases []string
	Results   []Result
}

// Ingester extracts, chunks, embeds and stores textbooks
type Ingester struct {
	Store     database.Opener
	BasePath  string
	Extractor *processor.Extractor
	Embedders embedding.Set

	ChunkSize    int
	ChunkOverlap int
	OCRChunkSize int
	// BatchSize is the number of records written per insert
	BatchSize int
	// Embedding controls parallelism and rate limiting of embedding calls
	Embedding embedding.BatchOptions
	// SkipIfExists skips files that already have records in the collection
	SkipIfExists bool
	// OCRDPI, OCRLanguages and Preprocess apply to Gujarati books, which are
	// always OCRed
	OCRDPI       int
	OCRLanguages string
	Preprocess   bool

	Logger *slog.Logger
}

// New creates an ingester with the defaults used for the textbook catalog.
func New(store database.Opener, basePath string, extractor *processor.Extractor, embedders embedding.Set, logger *slog.Logger) *Ingester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingester{
		Store:        store,
		BasePath:     basePath,
		Extractor:    extractor,
		Embedders:    embedders,
		ChunkSize:    processor.DefaultChunkSize,
		ChunkOverlap: processor.DefaultChunkOverlap,
		OCRChunkSize: processor.OCRChunkSize,
		BatchSize:    DefaultBatchSize,
		Embedding:    embedding.BatchOptions{BatchSize: 16, MaxConcurrent: 2},
		SkipIfExists: true,
		OCRDPI:       DefaultOCRDPI,
		OCRLanguages: DefaultOCRLanguages,
		Preprocess:   true,
		Logger:       logger,
	}
}

// Locate returns where a textbook is stored. It uses the same rules the
// query path uses, so every ingested book is reachable.
func (in *Ingester) Locate(tb Textbook) models.Location {
	return models.Locate(in.BasePath, tb.Grade, tb.Language, models.ClassifySubject(tb.Subject))
}

// Ingest adds one textbook to its collection.
func (in *Ingester) Ingest(ctx context.Context, tb Textbook) (Result, error) {
	loc := in.Locate(tb)
	result := Result{Textbook: tb, Location: loc}
	source := filepath.Base(tb.Path)
	logger := in.Logger.With("file", source, "subject", tb.Subject, "grade", tb.Grade, "language", tb.Language, "database", loc.Name())

	data, err := os.ReadFile(tb.Path)
	if err != nil {
		return result, fmt.Errorf("failed to read %s: %w", tb.Path, err)
	}

	collection, err := in.Store.Create(ctx, loc, tb.Language.Space())
	if err != nil {
		return result, fmt.Errorf("failed to open collection %s: %w", loc.Name(), err)
	}
	defer collection.Close()

	if in.SkipIfExists {
		exists, err := collection.HasSource(ctx, source)
		if err != nil {
			return result, err
		}
		if exists {
			logger.Info("skipping, already in database")
			result.Skipped = true
			return result, nil
		}
	}

	logger.Info("processing textbook")

	pages, err := in.pages(ctx, tb, source, data)
	if err != nil {
		return result, err
	}

	texts, metas := in.chunkPages(tb, source, pages)
	if len(texts) == 0 {
		return result, fmt.Errorf("no text extracted from %s", source)
	}
	logger.Info("chunked textbook", "pages", len(pages), "chunks", len(texts))

	embedder, err := in.Embedders.For(tb.Language)
	if err != nil {
		return result, err
	}
	embeddings, err := embedding.EmbedBatch(ctx, embedder, texts, in.Embedding)
	if err != nil {
		return result, fmt.Errorf("failed to embed %s: %w", source, err)
	}

	records := make([]models.Record, len(texts))
	for i := range texts {
		m := metas[i]
		records[i] = models.Record{
			ID:        models.RecordID(source, m.Page, m.ChunkIndex),
			Text:      texts[i],
			Embedding: embeddings[i],
			Metadata:  m,
		}
	}

	batchSize := in.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	for start := 0; start < len(records); start += batchSize {
		end := min(start+batchSize, len(records))
		if err := collection.Add(ctx, records[start:end]); err != nil {
			return result, fmt.Errorf("failed to save batch %d: %w", start/batchSize+1, err)
		}
		result.Chunks = end
		logger.Debug("saved batch", "batch", start/batchSize+1, "saved", end, "total", len(records))
	}

	logger.Info("added textbook", "chunks", result.Chunks)
	return result, nil
}

func (in *Ingester) pages(ctx context.Context, tb Textbook, source string, data []byte) ([]models.Page, error) {
	if strings.EqualFold(filepath.Ext(source), ".pdf") {
		opts := processor.PageOptions{}
		if tb.Language == models.Gujarati {
			opts = processor.PageOptions{
				ForceOCR:   true,
				Languages:  in.OCRLanguages,
				DPI:        in.OCRDPI,
				Preprocess: in.Preprocess,
			}
		}
		pages, err := in.Extractor.Pages(ctx, data, opts)
		if err != nil && len(pages) == 0 {
			return nil, fmt.Errorf("failed to read %s: %w", source, err)
		}
		if err != nil {
			in.Logger.Warn("partial read", "file", source, "pages", len(pages), "error", err)
		}
		return pages, nil
	}

	if !processor.Supported(source) {
		return nil, fmt.Errorf("unsupported file type: %s", source)
	}
	text := in.Extractor.Extract(ctx, models.Document{Filename: source, Content: data})
	isImage := !strings.EqualFold(filepath.Ext(source), ".txt") && !strings.EqualFold(filepath.Ext(source), ".docx")
	return []models.Page{{Number: 1, Text: text, OCR: isImage}}, nil
}

func (in *Ingester) chunkPages(tb Textbook, source string, pages []models.Page) ([]string, []models.Metadata) {
	var texts []string
	var metas []models.Metadata

	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			in.Logger.Debug("page has no text", "file", source, "page", page.Number)
			continue
		}

		size := in.ChunkSize
		if page.OCR && in.OCRChunkSize > 0 {
			size = in.OCRChunkSize
		}

		idx := 0
		for chunk := range processor.Chunk(page.Text, size, in.ChunkOverlap) {
			texts = append(texts, chunk)
			metas = append(metas, models.Metadata{
				Subject:    tb.Subject,
				Grade:      tb.Grade,
				Language:   tb.Language.String(),
				Source:     source,
				Page:       page.Number,
				ChunkIndex: idx,
			})
			idx++
		}
	}
	return texts, metas
}

// IngestAll ingests books in order. Failures are recorded and do not stop
// the batch; a cancelled context does.
func (in *Ingester) IngestAll(ctx context.Context, books []Textbook) Summary {
	var summary Summary
	databases := make(map[string]struct{})

	for _, tb := range books {
		if ctx.Err() != nil {
			break
		}

		result, err := in.Ingest(ctx, tb)
		result.Err = err
		summary.Results = append(summary.Results, result)
		databases[result.Location.Name()] = struct{}{}

		switch {
		case err != nil:
			in.Logger.Error("failed to ingest textbook", "file", tb.Path, "error", err)
			summary.Failed++
		case result.Skipped:
			summary.Skipped++
		default:
			summary.Processed++
			summary.Chunks += result.Chunks
		}
	}

	for name := range databases {
		summary.Databases = append(summary.Databases, name)
	}
	sort.Strings(summary.Databases)
	return summary
}

// Clear empties the collection for a grade and subject by dropping and
// recreating it.
func (in *Ingester) Clear(ctx context.Context, grade, subject string, lang models.Language) (models.Location, error) {
	loc := in.Locate(Textbook{Grade: grade, Subject: subject, Language: lang})

	if err := in.Store.Drop(ctx, loc); err != nil {
		return loc, fmt.Errorf("failed to clear %s: %w", loc.Name(), err)
	}
	c, err := in.Store.Create(ctx, loc, lang.Space())
	if err != nil {
		return loc, fmt.Errorf("failed to recreate %s: %w", loc.Name(), err)
	}
	return loc, c.Close()
}

// Count returns the number of records stored for a grade and subject. A
// collection that was never built counts as empty.
func (in *Ingester) Count(ctx context.Context, grade, subject string, lang models.Language) (models.Location, int, error) {
	loc := in.Locate(Textbook{Grade: grade, Subject: subject, Language: lang})

	c, err := in.Store.Open(ctx, loc, lang.Space())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			return loc, 0, nil
		}
		return loc, 0, err
	}
	defer c.Close()

	n, err := c.Count(ctx)
	return loc, n, err
}
