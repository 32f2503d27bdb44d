package database

import (
	"context"
	"errors"
	"fmt"

	"textbook-rag/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DB represents the database connection. Each collection lives in its own
// table named after the location directory (e.g. grade3_gujarati_evs_db).
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection
func NewDB(ctx context.Context, connStr string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Initialize enables pgvector and creates the collection registry
func (db *DB) Initialize(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS collections (
			table_name TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			space      TEXT NOT NULL,
			dimension  INTEGER NOT NULL DEFAULT 0
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create collections table: %w", err)
	}

	// registries created before dimensions were tracked
	_, err = db.Pool.Exec(ctx, `ALTER TABLE collections ADD COLUMN IF NOT EXISTS dimension INTEGER NOT NULL DEFAULT 0`)
	if err != nil {
		return fmt.Errorf("failed to add dimension column: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() {
	db.Pool.Close()
}

// Open returns the collection stored in the table for loc
func (db *DB) Open(ctx context.Context, loc models.Location, space models.Space) (Collection, error) {
	table := loc.Name()

	var name, stored string
	var dimension int
	err := db.Pool.QueryRow(ctx,
		`SELECT name, space, dimension FROM collections WHERE table_name = $1`, table).Scan(&name, &stored, &dimension)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, table)
		}
		return nil, fmt.Errorf("failed to look up collection %s: %w", table, err)
	}

	var exists bool
	err = db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)`, table).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, table)
	}

	if err := checkSpace(name, models.Space(stored), space); err != nil {
		return nil, err
	}

	return db.collection(table, name, space, dimension), nil
}

// Create creates the table for loc if needed
func (db *DB) Create(ctx context.Context, loc models.Location, space models.Space) (Collection, error) {
	table := loc.Name()
	ident := pgx.Identifier{table}.Sanitize()

	_, err := db.Pool.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id          TEXT PRIMARY KEY,
			document    TEXT NOT NULL,
			embedding   vector NOT NULL,
			subject     TEXT NOT NULL DEFAULT '',
			grade       TEXT NOT NULL DEFAULT '',
			language    TEXT NOT NULL DEFAULT '',
			source      TEXT NOT NULL DEFAULT '',
			page        INTEGER NOT NULL DEFAULT 0,
			chunk_index INTEGER NOT NULL DEFAULT 0
		)`, ident))
	if err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}

	_, err = db.Pool.Exec(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (source)`,
		pgx.Identifier{table + "_source_idx"}.Sanitize(), ident))
	if err != nil {
		return nil, fmt.Errorf("failed to create source index: %w", err)
	}

	_, err = db.Pool.Exec(ctx, `
		INSERT INTO collections (table_name, name, space) VALUES ($1, $2, $3)
		ON CONFLICT (table_name) DO NOTHING
	`, table, loc.Collection, string(space))
	if err != nil {
		return nil, fmt.Errorf("failed to register collection %s: %w", table, err)
	}

	return db.Open(ctx, loc, space)
}

// Drop removes the table for loc
func (db *DB) Drop(ctx context.Context, loc models.Location) error {
	table := loc.Name()

	if _, err := db.Pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, pgx.Identifier{table}.Sanitize())); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", table, err)
	}
	if _, err := db.Pool.Exec(ctx, `DELETE FROM collections WHERE table_name = $1`, table); err != nil {
		return fmt.Errorf("failed to unregister collection %s: %w", table, err)
	}
	return nil
}

func (db *DB) collection(table, name string, space models.Space, dimension int) *PostgresCollection {
	return &PostgresCollection{
		pool:      db.Pool,
		tableName: table,
		table:     pgx.Identifier{table}.Sanitize(),
		name:      name,
		space:     space,
		dimension: dimension,
	}
}

// PostgresCollection is a collection backed by a pgvector table. The pool is
// owned by DB, so Close is a no-op.
type PostgresCollection struct {
	pool      *pgxpool.Pool
	tableName string
	table     string
	name      string
	space     models.Space
	dimension int
}

// Name returns the collection name registered for the table
func (c *PostgresCollection) Name() string { return c.name }

// Space returns the embedding space registered for the table
func (c *PostgresCollection) Space() models.Space { return c.space }

// Close does nothing; the pool is closed by DB
func (c *PostgresCollection) Close() error { return nil }

// Add stores records in a single batch. The first batch fixes the
// collection's dimension in the registry.
func (c *PostgresCollection) Add(ctx context.Context, records []models.Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkRecords(c.name, c.space, c.dimension, records); err != nil {
		return err
	}

	stmt := fmt.Sprintf(`
		INSERT INTO %s (id, document, embedding, subject, grade, language, source, page, chunk_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`, c.table)

	batch := &pgx.Batch{}
	for _, r := range records {
		m := r.Metadata
		batch.Queue(stmt, r.ID, r.Text, pgvector.NewVector(r.Embedding.Vector),
			m.Subject, m.Grade, m.Language, m.Source, m.Page, m.ChunkIndex)
	}

	if err := c.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert records: %w", err)
	}

	if c.dimension == 0 {
		dimension := len(records[0].Embedding.Vector)
		_, err := c.pool.Exec(ctx,
			`UPDATE collections SET dimension = $1 WHERE table_name = $2 AND dimension = 0`,
			dimension, c.tableName)
		if err != nil {
			return fmt.Errorf("failed to record dimension: %w", err)
		}
		c.dimension = dimension
	}
	return nil
}

// Query finds records nearest to q. pgvector's <-> is the euclidean
// distance; it is squared to match the other stores.
func (c *PostgresCollection) Query(ctx context.Context, q models.Embedding, n int) ([]models.Hit, error) {
	if err := checkSpace(c.name, c.space, q.Space); err != nil {
		return nil, err
	}
	if err := checkDimension(c.name, c.dimension, len(q.Vector)); err != nil {
		return nil, err
	}

	rows, err := c.pool.Query(ctx, fmt.Sprintf(`
		SELECT document, subject, grade, language, source, page, chunk_index,
		       embedding <-> $1 AS distance
		FROM %s
		ORDER BY embedding <-> $1
		LIMIT $2
	`, c.table), pgvector.NewVector(q.Vector), n)
	if err != nil {
		return nil, fmt.Errorf("failed to query similar chunks: %w", err)
	}
	defer rows.Close()

	var hits []models.Hit
	for rows.Next() {
		var hit models.Hit
		var distance float64
		m := &hit.Metadata
		if err := rows.Scan(&hit.Text, &m.Subject, &m.Grade, &m.Language, &m.Source, &m.Page, &m.ChunkIndex, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		hit.Distance = distance * distance
		hits = append(hits, hit)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return hits, nil
}

// HasSource reports whether any record came from source
func (c *PostgresCollection) HasSource(ctx context.Context, source string) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE source = $1)`, c.table), source).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check source %s: %w", source, err)
	}
	return exists, nil
}

// Count returns the number of rows in the table
func (c *PostgresCollection) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.pool.QueryRow(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %s`, c.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return n, nil
}
