package database

import (
	"context"
	"sync"

	"textbook-rag/internal/models"

	"github.com/google/uuid"
)

// MemoryCollection is a request-scoped collection that never touches disk.
type MemoryCollection struct {
	name  string
	space models.Space

	mu        sync.RWMutex
	records   []models.Record
	ids       map[string]struct{}
	dimension int
}

// NewMemoryCollection creates an empty collection with a unique name.
func NewMemoryCollection(space models.Space) *MemoryCollection {
	return &MemoryCollection{
		name:  "upload_" + uuid.NewString(),
		space: space,
		ids:   make(map[string]struct{}),
	}
}

// Name returns the generated collection name.
func (m *MemoryCollection) Name() string { return m.name }

// Space returns the embedding space the collection was created for.
func (m *MemoryCollection) Space() models.Space { return m.space }

// Add stores records in memory. The first record fixes the dimension.
func (m *MemoryCollection) Add(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := checkRecords(m.name, m.space, m.dimension, records); err != nil {
		return err
	}
	if m.dimension == 0 {
		m.dimension = len(records[0].Embedding.Vector)
	}

	for _, r := range records {
		if _, ok := m.ids[r.ID]; ok {
			continue
		}
		m.ids[r.ID] = struct{}{}
		m.records = append(m.records, r)
	}
	return nil
}

// Query ranks every record by squared euclidean distance to q.
func (m *MemoryCollection) Query(ctx context.Context, q models.Embedding, n int) ([]models.Hit, error) {
	if err := checkSpace(m.name, m.space, q.Space); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := checkDimension(m.name, m.dimension, len(q.Vector)); err != nil {
		return nil, err
	}

	hits := make([]models.Hit, 0, len(m.records))
	for _, r := range m.records {
		hits = append(hits, models.Hit{
			Text:     r.Text,
			Distance: SquaredL2(q.Vector, r.Embedding.Vector),
			Metadata: r.Metadata,
		})
	}
	return nearest(hits, n), nil
}

// HasSource reports whether any record came from source.
func (m *MemoryCollection) HasSource(ctx context.Context, source string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.records {
		if r.Metadata.Source == source {
			return true, nil
		}
	}
	return false, nil
}

// Count returns the number of stored records.
func (m *MemoryCollection) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

// Close discards all records.
func (m *MemoryCollection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
	m.ids = make(map[string]struct{})
	m.dimension = 0
	return nil
}
