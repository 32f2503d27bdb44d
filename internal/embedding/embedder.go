package embedding

import (
	"context"
	"errors"
	"fmt"

	"textbook-rag/internal/models"
)

var ErrEmptyEmbedding = errors.New("embedding service returned no vectors")

// Embedder turns text into vectors of a single embedding space.
type Embedder interface {
	// Embed embeds passages, one vector per input, in input order.
	Embed(ctx context.Context, texts []string) ([]models.Embedding, error)
	// EmbedQuery embeds a search query.
	EmbedQuery(ctx context.Context, text string) (models.Embedding, error)
	Space() models.Space
}

// Prefixes are prepended to inputs for models trained with instructions,
// such as the e5 family ("query: ", "passage: ").
type Prefixes struct {
	Query   string
	Passage string
}

func (p Prefixes) passages(texts []string) []string {
	if p.Passage == "" {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = p.Passage + t
	}
	return out
}

// Set holds one embedder per language.
type Set struct {
	English  Embedder
	Gujarati Embedder
}

// For returns the embedder for lang.
func (s Set) For(lang models.Language) (Embedder, error) {
	var e Embedder
	switch lang {
	case models.Gujarati:
		e = s.Gujarati
	default:
		e = s.English
	}
	if e == nil {
		return nil, fmt.Errorf("no embedder configured for %s", lang)
	}
	return e, nil
}

func tag(space models.Space, vectors [][]float32) []models.Embedding {
	out := make([]models.Embedding, len(vectors))
	for i, v := range vectors {
		out[i] = models.Embedding{Space: space, Vector: v}
	}
	return out
}

func checkCount(got, want int) error {
	if got != want {
		return fmt.Errorf("embedding service returned %d vectors for %d inputs", got, want)
	}
	return nil
}
