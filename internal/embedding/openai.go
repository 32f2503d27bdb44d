package embedding

import (
	"context"
	"fmt"
	"sort"

	"textbook-rag/internal/models"

	"github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder talks to any server implementing the OpenAI embeddings
// endpoint (OpenAI itself, text-embeddings-inference, vLLM, ...).
type OpenAIEmbedder struct {
	client   *openai.Client
	Model    string
	Prefixes Prefixes
	space    models.Space
}

// NewOpenAIEmbedder creates an embedder. An empty baseURL targets OpenAI.
func NewOpenAIEmbedder(apiKey, baseURL, model string, space models.Space) *OpenAIEmbedder {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(cfg),
		Model:  model,
		space:  space,
	}
}

// Space identifies the vectors this embedder produces.
func (e *OpenAIEmbedder) Space() models.Space { return e.space }

// Embed embeds passages in one request.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([]models.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors, err := e.create(ctx, e.Prefixes.passages(texts))
	if err != nil {
		return nil, err
	}
	return tag(e.space, vectors), nil
}

// EmbedQuery embeds a search query with the query prefix.
func (e *OpenAIEmbedder) EmbedQuery(ctx context.Context, text string) (models.Embedding, error) {
	vectors, err := e.create(ctx, []string{e.Prefixes.Query + text})
	if err != nil {
		return models.Embedding{}, err
	}
	return models.Embedding{Space: e.space, Vector: vectors[0]}, nil
}

func (e *OpenAIEmbedder) create(ctx context.Context, input []string) ([][]float32, error) {
	rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: input,
		Model: openai.EmbeddingModel(e.Model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(rsp.Data) == 0 {
		return nil, ErrEmptyEmbedding
	}
	if err := checkCount(len(rsp.Data), len(input)); err != nil {
		return nil, err
	}

	sort.Slice(rsp.Data, func(i, j int) bool { return rsp.Data[i].Index < rsp.Data[j].Index })

	vectors := make([][]float32, len(rsp.Data))
	for i, d := range rsp.Data {
		if len(d.Embedding) == 0 {
			return nil, ErrEmptyEmbedding
		}
		vectors[i] = d.Embedding
	}
	return vectors, nil
}
