package database

import (
	"context"
	"errors"
	"fmt"

	"textbook-rag/internal/models"
)

var (
	// ErrNotFound is returned by Opener.Open when the collection does not exist
	ErrNotFound = errors.New("collection not found")
	// ErrSpaceMismatch is returned when vectors from one embedding space are
	// written to or compared with a collection of another space
	ErrSpaceMismatch = errors.New("embedding space mismatch")
)

// Collection is a named set of chunk records that share one embedding space.
type Collection interface {
	Name() string
	Space() models.Space
	// Add stores records. Records whose id already exists are left untouched.
	Add(ctx context.Context, records []models.Record) error
	// Query returns up to n records nearest to q, closest first. Distances
	// are squared euclidean.
	Query(ctx context.Context, q models.Embedding, n int) ([]models.Hit, error)
	// HasSource reports whether any record came from the given source file.
	HasSource(ctx context.Context, source string) (bool, error)
	Count(ctx context.Context) (int, error)
	Close() error
}

// Opener resolves storage locations to collections.
type Opener interface {
	// Open returns ErrNotFound when nothing is stored at loc.
	Open(ctx context.Context, loc models.Location, space models.Space) (Collection, error)
	// Create opens the collection at loc, creating it if needed.
	Create(ctx context.Context, loc models.Location, space models.Space) (Collection, error)
	// Drop removes the collection at loc and all its records.
	Drop(ctx context.Context, loc models.Location) error
}

func checkSpace(collection string, want, got models.Space) error {
	if want != got {
		return fmt.Errorf("%w: collection %s holds %s vectors, got %s", ErrSpaceMismatch, collection, want, got)
	}
	return nil
}

// checkDimension compares vector lengths. A dimension of 0 means the
// collection is still empty and accepts any length.
func checkDimension(collection string, want, got int) error {
	if want > 0 && want != got {
		return fmt.Errorf("%w: collection %s holds %d-dimensional vectors, got %d", ErrSpaceMismatch, collection, want, got)
	}
	return nil
}

// checkRecords verifies that every record matches the collection's space and
// dimension. An empty collection takes the dimension of the first record.
func checkRecords(collection string, space models.Space, dimension int, records []models.Record) error {
	for _, r := range records {
		if err := checkSpace(collection, space, r.Embedding.Space); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
		if dimension == 0 {
			dimension = len(r.Embedding.Vector)
		}
		if err := checkDimension(collection, dimension, len(r.Embedding.Vector)); err != nil {
			return fmt.Errorf("record %s: %w", r.ID, err)
		}
	}
	return nil
}
