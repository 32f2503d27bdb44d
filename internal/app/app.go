// Package app builds the assistant and the ingester from configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"textbook-rag/internal/assistant"
	"textbook-rag/internal/config"
	"textbook-rag/internal/database"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/ingest"
	"textbook-rag/internal/llm"
	"textbook-rag/internal/models"
	"textbook-rag/internal/ocr"
	"textbook-rag/internal/processor"
	"textbook-rag/internal/retriever"
	"textbook-rag/internal/router"

	"golang.org/x/time/rate"
)

// Tesseract page segmentation mode used for whole textbook pages
const ingestPSM = 6

// App is the query side: everything needed to answer a request.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Store     database.Opener
	Router    *router.Router
	Assistant *assistant.Assistant

	closers []func()
}

// NewLogger creates the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// New wires the assistant.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger}

	store, closeStore, err := NewStore(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.Store = store
	a.closers = append(a.closers, closeStore)

	embedders, err := NewEmbedders(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	provider, err := NewProvider(cfg.LLM, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	r := retriever.New(embedders, logger)
	r.EnglishK = cfg.Retrieval.EnglishK
	r.GujaratiN = cfg.Retrieval.GujaratiN
	r.UploadN = cfg.Retrieval.UploadN
	r.MaxDistance = cfg.Retrieval.MaxDistance

	composer := llm.NewComposer(provider, logger)
	composer.Temperature = cfg.LLM.Temperature
	composer.TopP = cfg.LLM.TopP
	composer.MaxTokens = cfg.LLM.MaxTokens

	a.Router = router.New(cfg.Storage.BasePath, store, logger)
	a.Assistant = assistant.New(a.Router, r, NewExtractor(cfg.OCR, 0, logger), composer, logger)
	a.Assistant.ChunkSize = cfg.Chunking.Size
	a.Assistant.ChunkOverlap = cfg.Chunking.Overlap

	return a, nil
}

// Close releases the store.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// NewIngester wires the offline ingestion pipeline. It needs no chat
// provider. The returned function releases the store.
func NewIngester(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*ingest.Ingester, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}

	store, closeStore, err := NewStore(ctx, cfg.Storage)
	if err != nil {
		return nil, nil, err
	}

	embedders, err := NewEmbedders(cfg)
	if err != nil {
		closeStore()
		return nil, nil, err
	}

	in := ingest.New(store, cfg.Storage.BasePath, NewExtractor(cfg.OCR, ingestPSM, logger), embedders, logger)
	in.ChunkSize = cfg.Chunking.Size
	in.ChunkOverlap = cfg.Chunking.Overlap
	in.OCRChunkSize = cfg.Chunking.OCRSize
	in.BatchSize = cfg.Ingest.BatchSize
	in.SkipIfExists = cfg.SkipExisting()
	in.OCRDPI = cfg.Ingest.OCRDPI
	in.OCRLanguages = cfg.Ingest.OCRLanguages
	in.Preprocess = cfg.PreprocessPages()
	in.Embedding = embedding.BatchOptions{
		BatchSize:     cfg.Ingest.EmbedBatchSize,
		MaxConcurrent: cfg.Ingest.MaxConcurrent,
	}
	if cfg.Ingest.RateLimit > 0 {
		in.Embedding.Limiter = rate.NewLimiter(rate.Limit(cfg.Ingest.RateLimit), 1)
	}

	return in, closeStore, nil
}

// NewStore opens the configured collection backend.
func NewStore(ctx context.Context, cfg config.StorageConfig) (database.Opener, func(), error) {
	switch cfg.Backend {
	case "", "sqlite":
		return database.NewSQLiteStore(), func() {}, nil
	case "postgres":
		db, err := database.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Initialize(ctx); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}

// NewEmbedders creates the English and Gujarati embedders.
func NewEmbedders(cfg *config.Config) (embedding.Set, error) {
	english, err := newEmbedder(cfg.Embedding.English, models.SpaceEnglish)
	if err != nil {
		return embedding.Set{}, fmt.Errorf("english embedder: %w", err)
	}
	gujarati, err := newEmbedder(cfg.Embedding.Gujarati, models.SpaceGujarati)
	if err != nil {
		return embedding.Set{}, fmt.Errorf("gujarati embedder: %w", err)
	}
	return embedding.Set{English: english, Gujarati: gujarati}, nil
}

func newEmbedder(m config.EmbeddingModel, space models.Space) (embedding.Embedder, error) {
	prefixes := embedding.Prefixes{Query: m.QueryPrefix, Passage: m.PassagePrefix}

	switch m.Provider {
	case "", "ollama":
		e, err := embedding.NewOllamaEmbedder(m.BaseURL, m.Model, space)
		if err != nil {
			return nil, err
		}
		e.Prefixes = prefixes
		return e, nil
	case "openai":
		e := embedding.NewOpenAIEmbedder(m.APIKey, m.BaseURL, m.Model, space)
		e.Prefixes = prefixes
		return e, nil
	}
	return nil, fmt.Errorf("unknown embedding provider %q", m.Provider)
}

// NewProvider creates the chat provider, wrapped with timeouts and retries.
func NewProvider(cfg config.LLMConfig, logger *slog.Logger) (llm.Provider, error) {
	var p llm.Provider

	switch cfg.Provider {
	case "", "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key is required (set GROQ_API_KEY)")
		}
		p = llm.NewOpenAIProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "anthropic":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("llm.api_key is required (set ANTHROPIC_API_KEY)")
		}
		p = llm.NewAnthropicProvider(cfg.APIKey, cfg.BaseURL, cfg.Model)
	case "ollama":
		o, err := llm.NewOllamaLLM(cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		p = o
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	return llm.NewRetrying(p, cfg.Retries(), cfg.Timeout, logger), nil
}

// NewExtractor creates an extractor backed by tesseract and pdftoppm when
// they are installed. Without them scanned pages and images yield no text.
func NewExtractor(cfg config.OCRConfig, psm int, logger *slog.Logger) *processor.Extractor {
	var engine ocr.Engine
	var renderer ocr.Renderer

	if ocr.Available(cfg.Tesseract) {
		engine = ocr.NewTesseract(cfg.Tesseract, psm)
	} else {
		logger.Warn("tesseract not found, OCR disabled", "binary", cfg.Tesseract)
	}
	if ocr.Available(cfg.PDFToPPM) {
		renderer = ocr.NewPDFToPPM(cfg.PDFToPPM)
	} else {
		logger.Warn("pdftoppm not found, scanned PDF pages will be skipped", "binary", cfg.PDFToPPM)
	}

	e := processor.NewExtractor(engine, renderer, logger)
	e.Preprocessor = ocr.NewBinarizer()
	e.Languages = cfg.Languages
	e.DPI = cfg.DPI
	e.OCRTimeout = cfg.Timeout
	return e
}
