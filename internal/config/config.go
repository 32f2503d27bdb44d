// Package config loads the YAML configuration shared by the server and the
// command line tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

type EmbeddingModel struct {
	// Provider is "ollama" or "openai"
	Provider      string `yaml:"provider"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	QueryPrefix   string `yaml:"query_prefix"`
	PassagePrefix string `yaml:"passage_prefix"`
}

type LLMConfig struct {
	// Provider is "openai" (any OpenAI compatible API, Groq by default),
	// "ollama" or "anthropic"
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	TopP        float64       `yaml:"top_p"`
	Timeout     time.Duration `yaml:"timeout"`
	// MaxRetries of 0 disables retries; unset means DefaultMaxRetries
	MaxRetries *int `yaml:"max_retries"`
}

// DefaultMaxRetries is used when llm.max_retries is not set
const DefaultMaxRetries = 2

// Retries returns the configured retry count
func (c LLMConfig) Retries() int {
	if c.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

type StorageConfig struct {
	// Backend is "sqlite" or "postgres"
	Backend     string `yaml:"backend"`
	BasePath    string `yaml:"base_path"`
	DatabaseURL string `yaml:"database_url"`
}

type RetrievalConfig struct {
	EnglishK    int     `yaml:"english_k"`
	GujaratiN   int     `yaml:"gujarati_n"`
	UploadN     int     `yaml:"upload_n"`
	MaxDistance float64 `yaml:"max_distance"`
}

type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
	OCRSize int `yaml:"ocr_size"`
}

type OCRConfig struct {
	Tesseract string        `yaml:"tesseract"`
	PDFToPPM  string        `yaml:"pdftoppm"`
	Languages string        `yaml:"languages"`
	DPI       int           `yaml:"dpi"`
	Timeout   time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	MaxUploadMB int64    `yaml:"max_upload_mb"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type IngestConfig struct {
	BatchSize      int     `yaml:"batch_size"`
	EmbedBatchSize int     `yaml:"embed_batch_size"`
	MaxConcurrent  int     `yaml:"max_concurrent"`
	RateLimit      float64 `yaml:"rate_limit"`
	OCRLanguages   string  `yaml:"ocr_languages"`
	OCRDPI         int     `yaml:"ocr_dpi"`
	SkipExisting   *bool   `yaml:"skip_existing"`
	// Preprocess binarizes scanned pages before OCR (default true)
	Preprocess *bool `yaml:"preprocess"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	LLM LLMConfig `yaml:"llm"`

	Embedding struct {
		English  EmbeddingModel `yaml:"english"`
		Gujarati EmbeddingModel `yaml:"gujarati"`
	} `yaml:"embedding"`

	Storage   StorageConfig   `yaml:"storage"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	OCR       OCRConfig       `yaml:"ocr"`
	Server    ServerConfig    `yaml:"server"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Log       LogConfig       `yaml:"log"`
}

// Locations searched when no config path is given
func Locations() []string {
	return []string{
		"config.yaml",
		"config.yml",
		filepath.Join(os.Getenv("HOME"), ".config/textbook-rag/config.yaml"),
		"/etc/textbook-rag/config.yaml",
	}
}

func LoadConfig(path string) (*Config, error) {
	// If no path provided, try default locations
	if path == "" {
		for _, loc := range Locations() {
			if _, err := os.Stat(loc); err == nil {
				path = loc
				break
			}
		}
	}

	if path == "" {
		return getDefaultConfig()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	mergeWithEnv(&config)
	applyDefaults(&config)

	return &config, nil
}

func getDefaultConfig() (*Config, error) {
	config := &Config{}
	mergeWithEnv(config)
	applyDefaults(config)
	return config, nil
}

// SkipExisting reports whether ingestion skips files already stored
func (c *Config) SkipExisting() bool {
	return c.Ingest.SkipExisting == nil || *c.Ingest.SkipExisting
}

// PreprocessPages reports whether scanned pages are cleaned up before OCR
func (c *Config) PreprocessPages() bool {
	return c.Ingest.Preprocess == nil || *c.Ingest.Preprocess
}

// MaxUploadBytes is the request body limit for the HTTP server
func (c *Config) MaxUploadBytes() int64 {
	return c.Server.MaxUploadMB << 20
}

func applyDefaults(config *Config) {
	if config.LLM.Provider == "" {
		config.LLM.Provider = "openai"
	}
	if config.LLM.Provider == "openai" && config.LLM.BaseURL == "" {
		config.LLM.BaseURL = "https://api.groq.com/openai/v1"
	}
	if config.LLM.Model == "" {
		switch config.LLM.Provider {
		case "ollama":
			config.LLM.Model = "llama3.2"
		case "anthropic":
			config.LLM.Model = "claude-3-5-haiku-latest"
		default:
			config.LLM.Model = "llama-3.3-70b-versatile"
		}
	}
	if config.LLM.MaxTokens == 0 {
		config.LLM.MaxTokens = 1024
	}
	if config.LLM.TopP == 0 {
		config.LLM.TopP = 0.9
	}
	if config.LLM.Timeout == 0 {
		config.LLM.Timeout = 60 * time.Second
	}

	embeddingDefaults(&config.Embedding.English, "all-minilm")
	embeddingDefaults(&config.Embedding.Gujarati, "bge-m3")

	if config.Storage.Backend == "" {
		config.Storage.Backend = "sqlite"
	}
	if config.Storage.BasePath == "" {
		config.Storage.BasePath = "."
	}

	if config.Retrieval.EnglishK == 0 {
		config.Retrieval.EnglishK = 3
	}
	if config.Retrieval.GujaratiN == 0 {
		config.Retrieval.GujaratiN = 5
	}
	if config.Retrieval.UploadN == 0 {
		config.Retrieval.UploadN = 3
	}
	if config.Retrieval.MaxDistance == 0 {
		config.Retrieval.MaxDistance = 1.5
	}

	if config.Chunking.Size == 0 {
		config.Chunking.Size = 500
	}
	if config.Chunking.Overlap == 0 {
		config.Chunking.Overlap = 50
	}
	if config.Chunking.OCRSize == 0 {
		config.Chunking.OCRSize = 400
	}

	if config.OCR.Tesseract == "" {
		config.OCR.Tesseract = "tesseract"
	}
	if config.OCR.PDFToPPM == "" {
		config.OCR.PDFToPPM = "pdftoppm"
	}
	if config.OCR.Languages == "" {
		config.OCR.Languages = "guj+eng"
	}
	if config.OCR.DPI == 0 {
		config.OCR.DPI = 144
	}
	if config.OCR.Timeout == 0 {
		config.OCR.Timeout = 2 * time.Minute
	}

	if config.Server.Addr == "" {
		config.Server.Addr = ":8000"
	}
	if config.Server.MaxUploadMB == 0 {
		config.Server.MaxUploadMB = 32
	}
	if len(config.Server.CORSOrigins) == 0 {
		config.Server.CORSOrigins = []string{"*"}
	}

	if config.Ingest.BatchSize == 0 {
		config.Ingest.BatchSize = 100
	}
	if config.Ingest.EmbedBatchSize == 0 {
		config.Ingest.EmbedBatchSize = 16
	}
	if config.Ingest.MaxConcurrent == 0 {
		config.Ingest.MaxConcurrent = 2
	}
	if config.Ingest.OCRLanguages == "" {
		config.Ingest.OCRLanguages = "guj"
	}
	if config.Ingest.OCRDPI == 0 {
		config.Ingest.OCRDPI = 400
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "text"
	}
}

func embeddingDefaults(m *EmbeddingModel, model string) {
	if m.Provider == "" {
		m.Provider = "ollama"
	}
	if m.Model == "" && m.Provider == "ollama" {
		m.Model = model
	}
	if m.Model == "" {
		m.Model = "text-embedding-3-small"
	}
}

func mergeWithEnv(config *Config) {
	if key := os.Getenv("GROQ_API_KEY"); key != "" && config.LLM.APIKey == "" {
		config.LLM.APIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if config.LLM.APIKey == "" && config.LLM.Provider == "openai" {
			config.LLM.APIKey = key
		}
		for _, m := range []*EmbeddingModel{&config.Embedding.English, &config.Embedding.Gujarati} {
			if m.APIKey == "" {
				m.APIKey = key
			}
		}
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" && config.LLM.Provider == "anthropic" {
		config.LLM.APIKey = key
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if config.LLM.Provider == "ollama" && config.LLM.BaseURL == "" {
			config.LLM.BaseURL = host
		}
		for _, m := range []*EmbeddingModel{&config.Embedding.English, &config.Embedding.Gujarati} {
			if m.BaseURL == "" && (m.Provider == "" || m.Provider == "ollama") {
				m.BaseURL = host
			}
		}
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.DatabaseURL = dbURL
	}
	if base := os.Getenv("TEXTBOOK_DB_PATH"); base != "" {
		config.Storage.BasePath = base
	}
}
