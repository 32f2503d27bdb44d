package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"textbook-rag/internal/config"
	"textbook-rag/internal/database"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	for _, key := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OLLAMA_HOST", "DATABASE_URL", "TEXTBOOK_DB_PATH"} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Storage.BasePath = t.TempDir()
	cfg.OCR.Tesseract = "definitely-not-tesseract"
	cfg.OCR.PDFToPPM = "definitely-not-pdftoppm"
	return cfg
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)

	logger.Info("hidden")
	logger.Warn("shown", "grade", "3")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "shown", line["msg"])
	assert.Equal(t, "3", line["grade"])

	buf.Reset()
	NewLogger(config.LogConfig{Level: "nonsense", Format: "text"}, &buf).Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestNewStore(t *testing.T) {
	store, closeStore, err := NewStore(context.Background(), config.StorageConfig{Backend: "sqlite"})
	require.NoError(t, err)
	defer closeStore()
	assert.IsType(t, &database.SQLiteStore{}, store)

	_, _, err = NewStore(context.Background(), config.StorageConfig{Backend: "chroma"})
	assert.ErrorContains(t, err, "unknown storage backend")
}

func TestNewEmbedders(t *testing.T) {
	cfg := testConfig(t)
	cfg.Embedding.Gujarati = config.EmbeddingModel{
		Provider:      "openai",
		Model:         "e5",
		APIKey:        "sk",
		QueryPrefix:   "query: ",
		PassagePrefix: "passage: ",
	}

	set, err := NewEmbedders(cfg)
	require.NoError(t, err)
	require.IsType(t, &embedding.OllamaEmbedder{}, set.English)
	require.IsType(t, &embedding.OpenAIEmbedder{}, set.Gujarati)
	assert.Equal(t, "query: ", set.Gujarati.(*embedding.OpenAIEmbedder).Prefixes.Query)

	cfg.Embedding.English.Provider = "word2vec"
	_, err = NewEmbedders(cfg)
	assert.ErrorContains(t, err, "english embedder")
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(config.LLMConfig{Provider: "openai"}, quietLogger())
	assert.ErrorContains(t, err, "GROQ_API_KEY")

	_, err = NewProvider(config.LLMConfig{Provider: "gemini"}, quietLogger())
	assert.Error(t, err)

	for _, cfg := range []config.LLMConfig{
		{Provider: "openai", APIKey: "gsk"},
		{Provider: "anthropic", APIKey: "sk-ant"},
		{Provider: "ollama"},
	} {
		p, err := NewProvider(cfg, quietLogger())
		require.NoError(t, err, cfg.Provider)
		require.IsType(t, &llm.Retrying{}, p)
		assert.Equal(t, config.DefaultMaxRetries, p.(*llm.Retrying).MaxRetries)
	}

	none := 0
	p, err := NewProvider(config.LLMConfig{Provider: "ollama", MaxRetries: &none}, quietLogger())
	require.NoError(t, err)
	assert.Zero(t, p.(*llm.Retrying).MaxRetries)
}

func TestNewWiresAssistant(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = "gsk_test"
	cfg.Retrieval.GujaratiN = 7
	cfg.Chunking.Size = 300

	a, err := New(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Assistant)
	assert.Equal(t, 7, a.Assistant.Retriever.GujaratiN)
	assert.Equal(t, 300, a.Assistant.ChunkSize)
	assert.Nil(t, a.Assistant.Extractor.OCR)
	assert.Equal(t, cfg.Storage.BasePath, a.Router.BasePath)

	cfg.LLM.APIKey = ""
	_, err = New(context.Background(), cfg, quietLogger())
	assert.Error(t, err)
}

func TestNewIngester(t *testing.T) {
	cfg := testConfig(t)
	skip := false
	cfg.Ingest.SkipExisting = &skip
	cfg.Ingest.RateLimit = 5

	in, closeStore, err := NewIngester(context.Background(), cfg, quietLogger())
	require.NoError(t, err)
	defer closeStore()

	assert.False(t, in.SkipIfExists)
	assert.Equal(t, 400, in.OCRChunkSize)
	assert.Equal(t, 400, in.OCRDPI)
	assert.Equal(t, "guj", in.OCRLanguages)
	assert.True(t, in.Preprocess)
	assert.NotNil(t, in.Extractor.Preprocessor)
	assert.NotNil(t, in.Embedding.Limiter)
	assert.Equal(t, cfg.Storage.BasePath, in.BasePath)
}
