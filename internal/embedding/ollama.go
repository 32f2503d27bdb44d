package embedding

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"textbook-rag/internal/models"

	"github.com/ollama/ollama/api"
	"github.com/ollama/ollama/envconfig"
)

// OllamaEmbedder generates embeddings using Ollama API
type OllamaEmbedder struct {
	Client     *api.Client
	Model      string
	Prefixes   Prefixes
	MaxRetries int
	Timeout    time.Duration
	space      models.Space
}

// NewOllamaEmbedder creates a new Ollama embedder for the given space. An
// empty host falls back to OLLAMA_HOST.
func NewOllamaEmbedder(host, model string, space models.Space) (*OllamaEmbedder, error) {
	hostURL := envconfig.Host()
	if host != "" {
		u, err := url.Parse(host)
		if err != nil {
			return nil, fmt.Errorf("failed to parse ollama host %q: %w", host, err)
		}
		hostURL = u
	}
	client := api.NewClient(hostURL, http.DefaultClient)

	return &OllamaEmbedder{
		Client:     client,
		Model:      model,
		MaxRetries: 3,
		Timeout:    time.Second * 30,
		space:      space,
	}, nil
}

// Space identifies the vectors this embedder produces.
func (e *OllamaEmbedder) Space() models.Space { return e.space }

// Embed generates embeddings for passages
func (e *OllamaEmbedder) Embed(ctx context.Context, texts []string) ([]models.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.embedWithRetry(ctx, e.Prefixes.passages(texts))
	if err != nil {
		return nil, err
	}
	return tag(e.space, vectors), nil
}

// EmbedQuery generates an embedding for a search query
func (e *OllamaEmbedder) EmbedQuery(ctx context.Context, text string) (models.Embedding, error) {
	vectors, err := e.embedWithRetry(ctx, []string{e.Prefixes.Query + text})
	if err != nil {
		return models.Embedding{}, err
	}
	return models.Embedding{Space: e.space, Vector: vectors[0]}, nil
}

func (e *OllamaEmbedder) embedWithRetry(ctx context.Context, input []string) ([][]float32, error) {
	var vectors [][]float32
	var err error

	for retries := 0; retries <= e.MaxRetries; retries++ {
		if retries > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(retries) * time.Second):
			}
		}

		vectors, err = e.createEmbeddings(ctx, input)
		if err == nil {
			return vectors, nil
		}
	}

	return nil, fmt.Errorf("failed to create embedding after %d retries: %w", e.MaxRetries, err)
}

// createEmbeddings is a helper function to embed one batch of inputs
func (e *OllamaEmbedder) createEmbeddings(ctx context.Context, input []string) ([][]float32, error) {
	req := api.EmbedRequest{
		Model:   e.Model,
		Input:   input,
		Options: map[string]any{},
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	resp, err := e.Client.Embed(ctxWithTimeout, &req)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Embeddings) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if err := checkCount(len(resp.Embeddings), len(input)); err != nil {
		return nil, err
	}

	return resp.Embeddings, nil
}
