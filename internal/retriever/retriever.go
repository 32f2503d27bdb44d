// Package retriever runs similarity queries against textbook and upload
// collections and applies the language-specific filtering.
package retriever

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"textbook-rag/internal/database"
	"textbook-rag/internal/embedding"
	"textbook-rag/internal/models"
	"textbook-rag/internal/processor"
)

const (
	DefaultEnglishK    = 3
	DefaultGujaratiN   = 5
	DefaultUploadN     = 3
	DefaultMaxDistance = 1.5
)

// Retriever fetches context chunks for a question.
type Retriever struct {
	Embedders embedding.Set
	// EnglishK is the number of chunks taken from English collections
	EnglishK int
	// GujaratiN is the number of candidates fetched from Gujarati collections
	// before filtering
	GujaratiN int
	// UploadN is the number of candidates fetched from an uploaded file
	UploadN int
	// MaxDistance rejects Gujarati candidates at or beyond this distance
	MaxDistance float64
	Logger      *slog.Logger
}

// New creates a retriever with the default limits.
func New(embedders embedding.Set, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		Embedders:   embedders,
		EnglishK:    DefaultEnglishK,
		GujaratiN:   DefaultGujaratiN,
		UploadN:     DefaultUploadN,
		MaxDistance: DefaultMaxDistance,
		Logger:      logger,
	}
}

// Retrieve queries a persisted textbook collection. English hits are
// returned as ranked; Gujarati hits are cleaned and kept only when they look
// like real Gujarati text and are strictly closer than MaxDistance. An empty
// result means no usable context.
func (r *Retriever) Retrieve(ctx context.Context, c database.Collection, lang models.Language, question string) ([]models.Hit, error) {
	if lang == models.Gujarati {
		hits, err := r.query(ctx, c, lang, question, r.GujaratiN)
		if err != nil {
			return nil, err
		}
		kept := r.filterGujarati(hits, true)
		r.Logger.Debug("filtered gujarati chunks", "collection", c.Name(), "candidates", len(hits), "kept", len(kept))
		return kept, nil
	}

	return r.query(ctx, c, lang, question, r.EnglishK)
}

// RetrieveUpload queries the ephemeral collection built from an uploaded
// file. Gujarati hits are cleaned and validated but not distance-filtered.
func (r *Retriever) RetrieveUpload(ctx context.Context, c database.Collection, lang models.Language, question string) ([]models.Hit, error) {
	hits, err := r.query(ctx, c, lang, question, r.UploadN)
	if err != nil {
		return nil, err
	}
	if lang == models.Gujarati {
		return r.filterGujarati(hits, false), nil
	}
	return hits, nil
}

func (r *Retriever) query(ctx context.Context, c database.Collection, lang models.Language, question string, n int) ([]models.Hit, error) {
	embedder, err := r.Embedders.For(lang)
	if err != nil {
		return nil, err
	}

	q, err := embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	hits, err := c.Query(ctx, q, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", c.Name(), err)
	}
	return hits, nil
}

func (r *Retriever) filterGujarati(hits []models.Hit, checkDistance bool) []models.Hit {
	var kept []models.Hit
	for _, h := range hits {
		cleaned := processor.Clean(h.Text)
		if !processor.IsValidGujarati(cleaned) {
			continue
		}
		if checkDistance && !(h.Distance < r.MaxDistance) {
			continue
		}
		h.Text = cleaned
		kept = append(kept, h)
	}
	return kept
}

// Join concatenates hit texts in order.
func Join(hits []models.Hit, sep string) string {
	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	return strings.Join(texts, sep)
}
