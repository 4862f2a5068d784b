package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
)

// pgvectorIndex stores entries in the index_entries table and searches
// with the cosine distance operator.
type pgvectorIndex struct {
	db *sql.DB
}

func NewPGVector(db *sql.DB) Index {
	return &pgvectorIndex{db: db}
}

func (p *pgvectorIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	const query = `
		INSERT INTO index_entries (chunk_id, document_id, owner, model_name, ordinal, generation, ingested_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (chunk_id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			owner = EXCLUDED.owner,
			model_name = EXCLUDED.model_name,
			ordinal = EXCLUDED.ordinal,
			generation = EXCLUDED.generation,
			ingested_at = EXCLUDED.ingested_at,
			embedding = EXCLUDED.embedding
	`
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, query,
			e.ChunkID,
			e.DocumentID,
			e.Owner,
			e.Model,
			e.Ordinal,
			e.Generation,
			e.IngestedAt,
			pgvector.NewVector(e.Vector),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *pgvectorIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := checkSearchArgs(vector, topK, filter); err != nil {
		return nil, err
	}
	query := `
		SELECT chunk_id, document_id, ordinal, 1 - (embedding <=> $1) AS score
		FROM index_entries
		WHERE owner = $2
	`
	args := []interface{}{pgvector.NewVector(vector), filter.Owner}
	if filter.Model != "" {
		args = append(args, filter.Model)
		query += fmt.Sprintf(` AND model_name = $%d`, len(args))
	}
	if filter.NotModel != "" {
		args = append(args, filter.NotModel)
		query += fmt.Sprintf(` AND model_name <> $%d`, len(args))
	}
	if filter.DocumentID != "" {
		args = append(args, filter.DocumentID)
		query += fmt.Sprintf(` AND document_id = $%d`, len(args))
	}
	args = append(args, topK)
	query += fmt.Sprintf(` ORDER BY embedding <=> $1, ingested_at DESC, ordinal ASC LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ChunkID, &m.DocumentID, &m.Ordinal, &m.Score); err != nil {
			return nil, err
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (p *pgvectorIndex) DeleteDocument(ctx context.Context, owner string, documentID string) error {
	const query = `DELETE FROM index_entries WHERE owner = $1 AND document_id = $2`
	_, err := p.db.ExecContext(ctx, query, owner, documentID)
	return err
}

func (p *pgvectorIndex) DeleteSuperseded(ctx context.Context, owner string, documentID string, keep int64) error {
	const query = `DELETE FROM index_entries WHERE owner = $1 AND document_id = $2 AND generation <> $3`
	_, err := p.db.ExecContext(ctx, query, owner, documentID, keep)
	return err
}
