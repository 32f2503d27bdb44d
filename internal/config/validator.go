package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError
	add := func(field, format string, args ...any) {
		errors = append(errors, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// LLM
	if !slices.Contains([]string{"openai", "ollama", "anthropic"}, c.LLM.Provider) {
		add("llm.provider", "unknown provider %q", c.LLM.Provider)
	}
	if c.LLM.Provider != "ollama" && c.LLM.BaseURL != "" && !validURL(c.LLM.BaseURL) {
		add("llm.base_url", "invalid URL")
	}
	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 32768 {
		add("llm.max_tokens", "max_tokens must be between 1 and 32768")
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		add("llm.temperature", "temperature must be between 0 and 2")
	}
	if c.LLM.TopP <= 0 || c.LLM.TopP > 1 {
		add("llm.top_p", "top_p must be in (0, 1]")
	}
	if c.LLM.Timeout < 0 {
		add("llm.timeout", "timeout must not be negative")
	}
	if c.LLM.MaxRetries != nil && *c.LLM.MaxRetries < 0 {
		add("llm.max_retries", "max_retries must not be negative")
	}

	// Embedding
	for name, m := range map[string]EmbeddingModel{"english": c.Embedding.English, "gujarati": c.Embedding.Gujarati} {
		field := "embedding." + name
		switch m.Provider {
		case "ollama":
		case "openai":
			if m.APIKey == "" {
				add(field+".api_key", "an API key is required for provider openai")
			}
		default:
			add(field+".provider", "unknown provider %q", m.Provider)
		}
		if m.Model == "" {
			add(field+".model", "model is required")
		}
		if m.Provider == "openai" && m.BaseURL != "" && !validURL(m.BaseURL) {
			add(field+".base_url", "invalid URL")
		}
	}

	// Storage
	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.BasePath == "" {
			add("storage.base_path", "base_path is required for the sqlite backend")
		}
	case "postgres":
		if c.Storage.DatabaseURL == "" {
			add("storage.database_url", "database_url is required for the postgres backend")
		} else if !validURL(c.Storage.DatabaseURL) {
			add("storage.database_url", "invalid database URL")
		}
	default:
		add("storage.backend", "unknown backend %q", c.Storage.Backend)
	}

	// Retrieval
	if c.Retrieval.EnglishK < 1 {
		add("retrieval.english_k", "english_k must be positive")
	}
	if c.Retrieval.GujaratiN < 1 {
		add("retrieval.gujarati_n", "gujarati_n must be positive")
	}
	if c.Retrieval.UploadN < 1 {
		add("retrieval.upload_n", "upload_n must be positive")
	}
	if c.Retrieval.MaxDistance <= 0 {
		add("retrieval.max_distance", "max_distance must be positive")
	}

	// Chunking
	if c.Chunking.Size < 1 {
		add("chunking.size", "size must be positive")
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		add("chunking.overlap", "overlap must be non-negative and less than size")
	}
	if c.Chunking.OCRSize <= c.Chunking.Overlap {
		add("chunking.ocr_size", "ocr_size must be greater than overlap")
	}

	// OCR
	if c.OCR.DPI < 72 || c.OCR.DPI > 1200 {
		add("ocr.dpi", "dpi must be between 72 and 1200")
	}
	if strings.TrimSpace(c.OCR.Languages) == "" {
		add("ocr.languages", "at least one OCR language is required")
	}

	// Server
	if c.Server.MaxUploadMB < 1 {
		add("server.max_upload_mb", "max_upload_mb must be positive")
	}

	// Ingest
	if c.Ingest.BatchSize < 1 {
		add("ingest.batch_size", "batch_size must be positive")
	}
	if c.Ingest.MaxConcurrent < 1 {
		add("ingest.max_concurrent", "max_concurrent must be positive")
	}
	if c.Ingest.RateLimit < 0 {
		add("ingest.rate_limit", "rate_limit must not be negative")
	}

	// Log
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, strings.ToLower(c.Log.Level)) {
		add("log.level", "unknown level %q", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		add("log.format", "format must be text or json")
	}

	return errors
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && u.Scheme != "" && u.Host != ""
}
