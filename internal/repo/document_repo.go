package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/mirefly/ragdex/internal/model"
	appErr "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/mirefly/ragdex/internal/pkg/dbutil"
)

type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

var documentFields = []string{"id", "owner", "filename", "format", "status", "error_detail", "chunk_count", "generation", "file_key", "ctime", "mtime"}

func scanDocument(rows *sql.Rows) (*model.Document, error) {
	var doc model.Document
	if err := rows.Scan(&doc.ID, &doc.Owner, &doc.Filename, &doc.Format, &doc.Status, &doc.ErrorDetail, &doc.ChunkCount, &doc.Generation, &doc.FileKey, &doc.Ctime, &doc.Mtime); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	data := map[string]interface{}{
		"id":           doc.ID,
		"owner":        doc.Owner,
		"filename":     doc.Filename,
		"format":       doc.Format,
		"status":       doc.Status,
		"error_detail": doc.ErrorDetail,
		"chunk_count":  doc.ChunkCount,
		"generation":   doc.Generation,
		"file_key":     doc.FileKey,
		"ctime":        doc.Ctime,
		"mtime":        doc.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("documents", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err = r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, owner, docID string) (*model.Document, error) {
	where := map[string]interface{}{
		"id":    docID,
		"owner": owner,
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, appErr.ErrNotFound
	}
	return scanDocument(rows)
}

func (r *DocumentRepo) List(ctx context.Context, owner string, limit, offset uint) ([]model.Document, error) {
	where := map[string]interface{}{
		"owner":    owner,
		"_orderby": "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) ListByStatus(ctx context.Context, status string) ([]model.Document, error) {
	where := map[string]interface{}{
		"status":   status,
		"_orderby": "mtime asc",
	}
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	docs := make([]model.Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

func (r *DocumentRepo) Count(ctx context.Context, owner string) (int, error) {
	row := r.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM documents WHERE owner = $1", owner)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateStatus moves the document between lifecycle states. When from is
// non-empty the transition only fires if the current status matches, so
// concurrent movers cannot both win.
func (r *DocumentRepo) UpdateStatus(ctx context.Context, owner, docID, from, to, errorDetail string, mtime int64) error {
	where := map[string]interface{}{
		"id":    docID,
		"owner": owner,
	}
	if from != "" {
		where["status"] = from
	}
	update := map[string]interface{}{
		"status":       to,
		"error_detail": errorDetail,
		"mtime":        mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

// SetIndexed records a successful ingestion: the live generation, the chunk
// count, and the indexed status in one write.
func (r *DocumentRepo) SetIndexed(ctx context.Context, owner, docID string, generation int64, chunkCount int, mtime int64) error {
	where := map[string]interface{}{
		"id":    docID,
		"owner": owner,
	}
	update := map[string]interface{}{
		"status":       model.DocumentStatusIndexed,
		"error_detail": "",
		"generation":   generation,
		"chunk_count":  chunkCount,
		"mtime":        mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("documents", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *DocumentRepo) Delete(ctx context.Context, owner, docID string) error {
	sqlStr, args, err := builder.BuildDelete("documents", map[string]interface{}{
		"id":    docID,
		"owner": owner,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
