package repository

import (
	"context"
	"fmt"

	"corep-assistant/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RegulatoryChunksSchema creates the corpus table
const RegulatoryChunksSchema = `
CREATE TABLE IF NOT EXISTS regulatory_chunks (
    ordinal      INTEGER PRIMARY KEY,
    chunk_id     VARCHAR(255) NOT NULL UNIQUE,
    chunk_text   TEXT NOT NULL,
    source       VARCHAR(255) NOT NULL DEFAULT '',
    section_ref  VARCHAR(255) NOT NULL DEFAULT '',
    template_ids TEXT[] NOT NULL DEFAULT '{}',
    keywords     TEXT[] NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// RegulatoryChunkRepository handles database operations for the regulatory corpus
type RegulatoryChunkRepository struct {
	db *pgxpool.Pool
}

// NewRegulatoryChunkRepository creates a new regulatory chunk repository
func NewRegulatoryChunkRepository(db *pgxpool.Pool) *RegulatoryChunkRepository {
	return &RegulatoryChunkRepository{db: db}
}

// CreateSchema creates the regulatory_chunks table if it does not exist
func (r *RegulatoryChunkRepository) CreateSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, RegulatoryChunksSchema); err != nil {
		return fmt.Errorf("failed to create regulatory_chunks table: %w", err)
	}
	return nil
}

// LoadChunks returns every chunk in corpus order
func (r *RegulatoryChunkRepository) LoadChunks(ctx context.Context) ([]models.RegulatoryChunk, error) {
	query := `
		SELECT chunk_id, chunk_text, source, section_ref, template_ids, keywords
		FROM regulatory_chunks
		ORDER BY ordinal`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query regulatory chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.RegulatoryChunk
	for rows.Next() {
		var chunk models.RegulatoryChunk
		err := rows.Scan(
			&chunk.ID,
			&chunk.Text,
			&chunk.Source,
			&chunk.Section,
			&chunk.TemplateIDs,
			&chunk.Keywords,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan regulatory chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating regulatory chunks: %w", err)
	}

	return chunks, nil
}

// Count returns the number of stored chunks
func (r *RegulatoryChunkRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM regulatory_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count regulatory chunks: %w", err)
	}
	return count, nil
}

// ReplaceAll swaps the stored corpus for chunks in a single transaction.
// Insertion order becomes the ordinal.
func (r *RegulatoryChunkRepository) ReplaceAll(ctx context.Context, chunks []models.RegulatoryChunk) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM regulatory_chunks"); err != nil {
		return fmt.Errorf("failed to clear regulatory chunks: %w", err)
	}

	batch := &pgx.Batch{}
	for i, chunk := range chunks {
		batch.Queue(`
			INSERT INTO regulatory_chunks (
				ordinal, chunk_id, chunk_text, source, section_ref, template_ids, keywords
			) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			i, chunk.ID, chunk.Text, chunk.Source, chunk.Section,
			nonNil(chunk.TemplateIDs), nonNil(chunk.Keywords),
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range chunks {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("failed to insert chunk %s: %w", chunks[i].ID, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("failed to insert regulatory chunks: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
