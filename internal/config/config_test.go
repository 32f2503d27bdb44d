package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OLLAMA_HOST", "DATABASE_URL", "TEXTBOOK_DB_PATH"} {
		t.Setenv(key, "")
	}
	t.Setenv("HOME", t.TempDir())
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")

	configData := `
llm:
  provider: "anthropic"
  model: "claude-test"
  api_key: "sk-ant"
  timeout: 30s
  max_retries: 4

embedding:
  english:
    provider: "openai"
    model: "text-embedding-3-small"
    api_key: "sk-openai"
  gujarati:
    model: "multilingual-e5"
    query_prefix: "query: "
    passage_prefix: "passage: "

storage:
  backend: "postgres"
  database_url: "postgres://localhost:5432/textbooks"

retrieval:
  gujarati_n: 8
  max_distance: 1.2

chunking:
  size: 800
  overlap: 80

server:
  addr: ":9000"
  max_upload_mb: 5

ingest:
  skip_existing: false
  preprocess: false
  rate_limit: 2.5

log:
  level: "debug"
  format: "json"
`
	require.NoError(t, os.WriteFile(configPath, []byte(configData), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, "anthropic", config.LLM.Provider)
	assert.Equal(t, "claude-test", config.LLM.Model)
	assert.Equal(t, 30*time.Second, config.LLM.Timeout)
	assert.Equal(t, 4, config.LLM.Retries())
	assert.Empty(t, config.LLM.BaseURL)
	assert.Equal(t, "openai", config.Embedding.English.Provider)
	assert.Equal(t, "ollama", config.Embedding.Gujarati.Provider)
	assert.Equal(t, "query: ", config.Embedding.Gujarati.QueryPrefix)
	assert.Equal(t, "postgres", config.Storage.Backend)
	assert.Equal(t, 8, config.Retrieval.GujaratiN)
	assert.Equal(t, 3, config.Retrieval.EnglishK)
	assert.Equal(t, 1.2, config.Retrieval.MaxDistance)
	assert.Equal(t, 800, config.Chunking.Size)
	assert.Equal(t, 400, config.Chunking.OCRSize)
	assert.Equal(t, int64(5<<20), config.MaxUploadBytes())
	assert.False(t, config.SkipExisting())
	assert.False(t, config.PreprocessPages())
	assert.Equal(t, 2.5, config.Ingest.RateLimit)
	assert.Equal(t, "json", config.Log.Format)

	assert.Empty(t, config.Validate())
}

func TestDefaultConfig(t *testing.T) {
	clearEnv(t)

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "openai", config.LLM.Provider)
	assert.Equal(t, "https://api.groq.com/openai/v1", config.LLM.BaseURL)
	assert.Equal(t, "llama-3.3-70b-versatile", config.LLM.Model)
	assert.Equal(t, 0.0, config.LLM.Temperature)
	assert.Equal(t, 0.9, config.LLM.TopP)
	assert.Equal(t, "all-minilm", config.Embedding.English.Model)
	assert.Equal(t, "sqlite", config.Storage.Backend)
	assert.Equal(t, 5, config.Retrieval.GujaratiN)
	assert.Equal(t, 1.5, config.Retrieval.MaxDistance)
	assert.Equal(t, 500, config.Chunking.Size)
	assert.Equal(t, 50, config.Chunking.Overlap)
	assert.True(t, config.SkipExisting())
	assert.True(t, config.PreprocessPages())
	assert.Equal(t, DefaultMaxRetries, config.LLM.Retries())
	assert.Empty(t, config.Validate())
}

func TestMaxRetriesZeroDisablesRetries(t *testing.T) {
	clearEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("llm:\n  max_retries: 0\n"), 0644))

	config, err := LoadConfig(configPath)
	require.NoError(t, err)

	require.NotNil(t, config.LLM.MaxRetries)
	assert.Equal(t, 0, config.LLM.Retries())
	assert.Empty(t, config.Validate())
}

func TestEnvironmentOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GROQ_API_KEY", "gsk_env")
	t.Setenv("OLLAMA_HOST", "http://gpu-box:11434")
	t.Setenv("DATABASE_URL", "postgres://db:5432/rag")
	t.Setenv("TEXTBOOK_DB_PATH", "/srv/textbooks")

	config, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "gsk_env", config.LLM.APIKey)
	assert.Equal(t, "http://gpu-box:11434", config.Embedding.English.BaseURL)
	assert.Equal(t, "http://gpu-box:11434", config.Embedding.Gujarati.BaseURL)
	assert.Equal(t, "postgres://db:5432/rag", config.Storage.DatabaseURL)
	assert.Equal(t, "/srv/textbooks", config.Storage.BasePath)
}

func TestLoadConfigErrors(t *testing.T) {
	clearEnv(t)

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("llm: [unclosed"), 0644))
	_, err = LoadConfig(bad)
	assert.ErrorContains(t, err, "error parsing config file")
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		fields []string
	}{
		{
			name:   "valid config",
			modify: func(c *Config) {},
		},
		{
			name:   "overlap not below size",
			modify: func(c *Config) { c.Chunking.Overlap = 500 },
			fields: []string{"chunking.overlap", "chunking.ocr_size"},
		},
		{
			name:   "postgres without url",
			modify: func(c *Config) { c.Storage.Backend = "postgres" },
			fields: []string{"storage.database_url"},
		},
		{
			name:   "unknown backend",
			modify: func(c *Config) { c.Storage.Backend = "chroma" },
			fields: []string{"storage.backend"},
		},
		{
			name: "openai embeddings need a key",
			modify: func(c *Config) {
				c.Embedding.Gujarati.Provider = "openai"
				c.Embedding.Gujarati.BaseURL = "not a url"
			},
			fields: []string{"embedding.gujarati.api_key", "embedding.gujarati.base_url"},
		},
		{
			name: "llm ranges",
			modify: func(c *Config) {
				c.LLM.Provider = "bard"
				c.LLM.Temperature = 3
				c.LLM.TopP = 0
			},
			fields: []string{"llm.provider", "llm.temperature", "llm.top_p"},
		},
		{
			name: "negative retries",
			modify: func(c *Config) {
				retries := -1
				c.LLM.MaxRetries = &retries
			},
			fields: []string{"llm.max_retries"},
		},
		{
			name: "retrieval and logging",
			modify: func(c *Config) {
				c.Retrieval.MaxDistance = -1
				c.Log.Level = "loud"
				c.Log.Format = "xml"
			},
			fields: []string{"retrieval.max_distance", "log.level", "log.format"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := &Config{}
			applyDefaults(config)
			tt.modify(config)

			errs := config.Validate()
			var fields []string
			for _, e := range errs {
				fields = append(fields, e.Field)
				assert.NotEmpty(t, e.Error())
			}
			assert.ElementsMatch(t, tt.fields, fields)
		})
	}
}
