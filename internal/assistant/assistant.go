// Package assistant answers a question about a grade and subject from the
// stored textbook and, optionally, an uploaded file.
package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"textbook-rag/internal/database"
	"textbook-rag/internal/models"
	"textbook-rag/internal/processor"
	"textbook-rag/internal/retriever"

	"github.com/google/uuid"
)

// MinUploadTextLength is the shortest extracted upload text worth indexing
const MinUploadTextLength = 10

// Loader resolves the persisted collection for a grade and subject
type Loader interface {
	Load(ctx context.Context, grade, subject string) (database.Collection, models.Language, error)
}

// Answerer produces the final answer from assembled context
type Answerer interface {
	Answer(ctx context.Context, lang models.Language, passages, question string) (string, error)
}

// Assistant runs the question answering pipeline
type Assistant struct {
	Router       Loader
	Retriever    *retriever.Retriever
	Extractor    *processor.Extractor
	Composer     Answerer
	ChunkSize    int
	ChunkOverlap int
	Logger       *slog.Logger
}

// New creates an assistant with the default upload chunking.
func New(router Loader, r *retriever.Retriever, extractor *processor.Extractor, composer Answerer, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{
		Router:       router,
		Retriever:    r,
		Extractor:    extractor,
		Composer:     composer,
		ChunkSize:    processor.DefaultChunkSize,
		ChunkOverlap: processor.DefaultChunkOverlap,
		Logger:       logger,
	}
}

// Ask answers req. A missing textbook or unusable upload is not an error;
// the answer is then the localized not-found message. Storage, embedding and
// completion failures are returned.
func (a *Assistant) Ask(ctx context.Context, req models.Request) (*models.Response, error) {
	logger := a.Logger.With("request_id", uuid.NewString(), "grade", req.Grade, "subject", req.Subject)
	logger.Info("new query", "message", req.Message, "file", uploadName(req.File))

	collection, lang, err := a.Router.Load(ctx, req.Grade, req.Subject)
	if err != nil {
		return nil, err
	}

	var fragments []string
	var sources []models.Hit

	if collection != nil {
		hits, err := a.textbookContext(ctx, collection, lang, req.Message)
		collection.Close()
		if err != nil {
			return nil, err
		}
		sep := "\n"
		if lang == models.Gujarati {
			sep = "\n\n"
		}
		if len(hits) > 0 {
			fragments = append(fragments, retriever.Join(hits, sep))
			sources = append(sources, hits...)
		}
		logger.Info("retrieved textbook chunks", "language", lang, "chunks", len(hits))
	}

	if req.File != nil {
		hits, err := a.uploadContext(ctx, logger, *req.File, lang, req.Message)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			fragments = append(fragments, retriever.Join(hits, "\n\n"))
			sources = append(sources, hits...)
		}
		logger.Info("retrieved upload chunks", "language", lang, "chunks", len(hits))
	}

	passages := strings.Join(fragments, "\n\n")
	logger.Info("assembled context", "language", lang, "context_chars", len([]rune(passages)))

	answer, err := a.Composer.Answer(ctx, lang, passages, req.Message)
	if err != nil {
		return nil, fmt.Errorf("failed to generate answer: %w", err)
	}

	return &models.Response{
		Answer:    answer,
		Language:  lang,
		Sources:   sources,
		Timestamp: time.Now().Format(time.RFC3339),
	}, nil
}

func (a *Assistant) textbookContext(ctx context.Context, c database.Collection, lang models.Language, question string) ([]models.Hit, error) {
	hits, err := a.Retriever.Retrieve(ctx, c, lang, question)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve from textbook: %w", err)
	}
	return hits, nil
}

// uploadContext indexes the uploaded file into a private in-memory
// collection and queries it. The collection is discarded before returning.
func (a *Assistant) uploadContext(ctx context.Context, logger *slog.Logger, doc models.Document, lang models.Language, question string) ([]models.Hit, error) {
	text := a.Extractor.Extract(ctx, doc)
	logger.Info("extracted upload text", "file", doc.Filename, "chars", len([]rune(text)))

	if models.TrimmedLen(text) < MinUploadTextLength {
		logger.Warn("very little or no text extracted from upload", "file", doc.Filename)
		return nil, nil
	}

	chunks := processor.Chunks(text, a.ChunkSize, a.ChunkOverlap)
	if len(chunks) == 0 {
		return nil, nil
	}

	embedder, err := a.Retriever.Embedders.For(lang)
	if err != nil {
		return nil, err
	}
	embeddings, err := embedder.Embed(ctx, chunks)
	if err != nil {
		return nil, fmt.Errorf("failed to embed upload: %w", err)
	}
	if len(embeddings) != len(chunks) {
		return nil, fmt.Errorf("failed to embed upload: got %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	collection := database.NewMemoryCollection(lang.Space())
	defer collection.Close()

	records := make([]models.Record, len(chunks))
	for i, chunk := range chunks {
		records[i] = models.Record{
			ID:        fmt.Sprintf("%s_chunk_%d", collection.Name(), i),
			Text:      chunk,
			Embedding: embeddings[i],
			Metadata: models.Metadata{
				Language:   lang.String(),
				Source:     doc.Filename,
				Page:       1,
				ChunkIndex: i,
			},
		}
	}
	if err := collection.Add(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to index upload: %w", err)
	}

	hits, err := a.Retriever.RetrieveUpload(ctx, collection, lang, question)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve from upload: %w", err)
	}
	return hits, nil
}

func uploadName(doc *models.Document) string {
	if doc == nil {
		return ""
	}
	return doc.Filename
}
