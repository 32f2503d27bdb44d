// Package router maps a grade and a free-text subject to the persisted
// collection that holds its textbook.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"textbook-rag/internal/database"
	"textbook-rag/internal/models"
)

// Router resolves collections below BasePath.
type Router struct {
	BasePath string
	Store    database.Opener
	Logger   *slog.Logger
}

// New creates a router.
func New(basePath string, store database.Opener, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{BasePath: basePath, Store: store, Logger: logger}
}

// Route derives the language and storage location for a subject without
// touching storage.
func (r *Router) Route(grade, subject string) (models.Language, models.Location) {
	lang := models.DetectLanguage(subject)
	bucket := models.ClassifySubject(subject)
	return lang, models.Locate(r.BasePath, grade, lang, bucket)
}

// Load opens the collection for grade and subject. A missing collection is
// not an error: the collection is nil and the language is still reported.
func (r *Router) Load(ctx context.Context, grade, subject string) (database.Collection, models.Language, error) {
	lang, loc := r.Route(grade, subject)

	c, err := r.Store.Open(ctx, loc, lang.Space())
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			r.Logger.Info("no stored textbook content", "grade", grade, "subject", subject, "dir", loc.Dir)
			return nil, lang, nil
		}
		return nil, lang, fmt.Errorf("failed to open collection %s: %w", loc.Name(), err)
	}

	r.Logger.Debug("loaded collection", "dir", loc.Dir, "collection", loc.Collection, "language", lang)
	return c, lang, nil
}
