package database

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"textbook-rag/internal/models"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteFile is the database file kept inside every collection directory
const SQLiteFile = "vectors.db"

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS collections (
	name      TEXT PRIMARY KEY,
	space     TEXT NOT NULL,
	dimension INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS records (
	collection  TEXT NOT NULL,
	id          TEXT NOT NULL,
	document    TEXT NOT NULL,
	embedding   BLOB NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	grade       TEXT NOT NULL DEFAULT '',
	language    TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	page        INTEGER NOT NULL DEFAULT 0,
	chunk_index INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (collection, id)
);
CREATE INDEX IF NOT EXISTS records_source_idx ON records (collection, source);
`

// SQLiteStore keeps each collection in its own directory, mirroring the
// one-directory-per-grade-and-subject layout of the textbook catalog.
type SQLiteStore struct{}

// NewSQLiteStore creates a directory-backed store.
func NewSQLiteStore() *SQLiteStore {
	return &SQLiteStore{}
}

// Open opens an existing collection read-only.
func (s *SQLiteStore) Open(ctx context.Context, loc models.Location, space models.Space) (Collection, error) {
	path := filepath.Join(loc.Dir, SQLiteFile)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, loc.Dir)
		}
		return nil, fmt.Errorf("checking %s: %w", path, err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	c := &SQLiteCollection{db: db, name: loc.Collection}
	stored, err := c.load(ctx)
	if err != nil {
		db.Close()
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s in %s", ErrNotFound, loc.Collection, loc.Dir)
		}
		return nil, err
	}
	if err := checkSpace(loc.Collection, stored, space); err != nil {
		db.Close()
		return nil, err
	}
	c.space = stored

	return c, nil
}

// Create opens the collection for writing, creating directory, schema and
// collection entry as needed.
func (s *SQLiteStore) Create(ctx context.Context, loc models.Location, space models.Space) (Collection, error) {
	if err := os.MkdirAll(loc.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating collection directory: %w", err)
	}

	db, err := openWritable(filepath.Join(loc.Dir, SQLiteFile))
	if err != nil {
		return nil, err
	}

	if _, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO collections (name, space) VALUES (?, ?)`,
		loc.Collection, string(space)); err != nil {
		db.Close()
		return nil, fmt.Errorf("registering collection: %w", err)
	}

	c := &SQLiteCollection{db: db, name: loc.Collection}
	stored, err := c.load(ctx)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := checkSpace(loc.Collection, stored, space); err != nil {
		db.Close()
		return nil, err
	}
	c.space = stored

	return c, nil
}

// Drop deletes the collection's records and registration. The directory and
// database file are kept.
func (s *SQLiteStore) Drop(ctx context.Context, loc models.Location) error {
	path := filepath.Join(loc.Dir, SQLiteFile)
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}

	db, err := openWritable(path)
	if err != nil {
		return err
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE collection = ?`, loc.Collection); err != nil {
		return fmt.Errorf("deleting records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, loc.Collection); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}
	return tx.Commit()
}

func openWritable(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return db, nil
}

// SQLiteCollection is one collection inside a vectors.db file.
type SQLiteCollection struct {
	db        *sql.DB
	name      string
	space     models.Space
	dimension int
}

// Name returns the collection name within the database file.
func (c *SQLiteCollection) Name() string { return c.name }

// Space returns the embedding space recorded for the collection.
func (c *SQLiteCollection) Space() models.Space { return c.space }

// load reads the registered space and vector dimension.
func (c *SQLiteCollection) load(ctx context.Context) (models.Space, error) {
	var space string
	err := c.db.QueryRowContext(ctx,
		`SELECT space, dimension FROM collections WHERE name = ?`, c.name).Scan(&space, &c.dimension)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("reading collection %s: %w", c.name, err)
	}
	return models.Space(space), nil
}

// Add inserts records in one transaction. The first batch fixes the
// collection's dimension.
func (c *SQLiteCollection) Add(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkRecords(c.name, c.space, c.dimension, records); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO records
			(collection, id, document, embedding, subject, grade, language, source, page, chunk_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		m := r.Metadata
		if _, err := stmt.ExecContext(ctx, c.name, r.ID, r.Text, float32SliceToBytes(r.Embedding.Vector),
			m.Subject, m.Grade, m.Language, m.Source, m.Page, m.ChunkIndex); err != nil {
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE collections SET dimension = ? WHERE name = ? AND dimension = 0`,
		len(records[0].Embedding.Vector), c.name); err != nil {
		return fmt.Errorf("updating dimension: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing records: %w", err)
	}
	if c.dimension == 0 {
		c.dimension = len(records[0].Embedding.Vector)
	}
	return nil
}

// Query scans the collection and ranks every record. Textbook collections
// hold a few thousand chunks at most.
func (c *SQLiteCollection) Query(ctx context.Context, q models.Embedding, n int) ([]models.Hit, error) {
	if err := checkSpace(c.name, c.space, q.Space); err != nil {
		return nil, err
	}
	if err := checkDimension(c.name, c.dimension, len(q.Vector)); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT document, embedding, subject, grade, language, source, page, chunk_index
		FROM records
		WHERE collection = ?`, c.name)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var hit models.Hit
		var blob []byte
		m := &hit.Metadata
		if err := rows.Scan(&hit.Text, &blob, &m.Subject, &m.Grade, &m.Language, &m.Source, &m.Page, &m.ChunkIndex); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		hit.Distance = SquaredL2(q.Vector, bytesToFloat32Slice(blob))
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}

	return nearest(hits, n), nil
}

// HasSource reports whether any record came from source.
func (c *SQLiteCollection) HasSource(ctx context.Context, source string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM records WHERE collection = ? AND source = ?)`,
		c.name, source).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking source %s: %w", source, err)
	}
	return exists, nil
}

// Count returns the number of records in the collection.
func (c *SQLiteCollection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE collection = ?`, c.name).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

// Close closes the underlying database handle.
func (c *SQLiteCollection) Close() error {
	return c.db.Close()
}

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}
