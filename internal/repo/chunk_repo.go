package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/mirefly/ragdex/internal/model"
	"github.com/mirefly/ragdex/internal/pkg/dbutil"
)

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

var chunkFields = []string{"id", "document_id", "owner", "ordinal", "content", "start_offset", "end_offset", "generation", "ctime"}

func scanChunk(rows *sql.Rows) (*model.Chunk, error) {
	var c model.Chunk
	if err := rows.Scan(&c.ID, &c.DocumentID, &c.Owner, &c.Ordinal, &c.Text, &c.StartOffset, &c.EndOffset, &c.Generation, &c.Ctime); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *ChunkRepo) BatchInsert(ctx context.Context, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	data := make([]map[string]interface{}, 0, len(chunks))
	for _, c := range chunks {
		data = append(data, map[string]interface{}{
			"id":           c.ID,
			"document_id":  c.DocumentID,
			"owner":        c.Owner,
			"ordinal":      c.Ordinal,
			"content":      c.Text,
			"start_offset": c.StartOffset,
			"end_offset":   c.EndOffset,
			"generation":   c.Generation,
			"ctime":        c.Ctime,
		})
	}
	sqlStr, args, err := builder.BuildInsert("chunks", data)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListByDocument returns the chunks of the given generation in reading order.
func (r *ChunkRepo) ListByDocument(ctx context.Context, owner, docID string, generation int64) ([]model.Chunk, error) {
	where := map[string]interface{}{
		"document_id": docID,
		"owner":       owner,
		"generation":  generation,
		"_orderby":    "ordinal asc",
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) ListByIDs(ctx context.Context, owner string, chunkIDs []string) ([]model.Chunk, error) {
	if len(chunkIDs) == 0 {
		return []model.Chunk{}, nil
	}
	ids := make([]interface{}, 0, len(chunkIDs))
	for _, id := range chunkIDs {
		ids = append(ids, id)
	}
	where := map[string]interface{}{
		"owner":       owner,
		"_custom_ids": builder.In{"id": ids},
	}
	sqlStr, args, err := builder.BuildSelect("chunks", where, chunkFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	chunks := make([]model.Chunk, 0)
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, *c)
	}
	return chunks, rows.Err()
}

func (r *ChunkRepo) DeleteByDocument(ctx context.Context, owner, docID string) error {
	sqlStr, args, err := builder.BuildDelete("chunks", map[string]interface{}{
		"document_id": docID,
		"owner":       owner,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// DeleteSuperseded drops every generation of the document except keep.
func (r *ChunkRepo) DeleteSuperseded(ctx context.Context, owner, docID string, keep int64) error {
	const query = `DELETE FROM chunks WHERE owner = $1 AND document_id = $2 AND generation <> $3`
	_, err := r.db.ExecContext(ctx, query, owner, docID, keep)
	return err
}

// DeleteGeneration drops exactly one generation, used to roll back a failed
// ingestion without touching the live set.
func (r *ChunkRepo) DeleteGeneration(ctx context.Context, owner, docID string, generation int64) error {
	sqlStr, args, err := builder.BuildDelete("chunks", map[string]interface{}{
		"document_id": docID,
		"owner":       owner,
		"generation":  generation,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
