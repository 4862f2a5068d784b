package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/mirefly/ragdex/internal/model"
	appErr "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/mirefly/ragdex/internal/pkg/dbutil"
)

type SessionRepo struct {
	db *sql.DB
}

func NewSessionRepo(db *sql.DB) *SessionRepo {
	return &SessionRepo{db: db}
}

var sessionFields = []string{"id", "owner", "title", "ctime", "mtime"}

func (r *SessionRepo) Create(ctx context.Context, session *model.ChatSession) error {
	data := map[string]interface{}{
		"id":    session.ID,
		"owner": session.Owner,
		"title": session.Title,
		"ctime": session.Ctime,
		"mtime": session.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_sessions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *SessionRepo) GetByID(ctx context.Context, owner, sessionID string) (*model.ChatSession, error) {
	where := map[string]interface{}{
		"id":    sessionID,
		"owner": owner,
	}
	sqlStr, args, err := builder.BuildSelect("chat_sessions", where, sessionFields)
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
	var s model.ChatSession
	if err := rows.Scan(&s.ID, &s.Owner, &s.Title, &s.Ctime, &s.Mtime); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepo) List(ctx context.Context, owner string, limit, offset uint) ([]model.ChatSession, error) {
	where := map[string]interface{}{
		"owner":    owner,
		"_orderby": "mtime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("chat_sessions", where, sessionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	sessions := make([]model.ChatSession, 0)
	for rows.Next() {
		var s model.ChatSession
		if err := rows.Scan(&s.ID, &s.Owner, &s.Title, &s.Ctime, &s.Mtime); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *SessionRepo) Touch(ctx context.Context, owner, sessionID string, mtime int64) error {
	sqlStr, args, err := builder.BuildUpdate("chat_sessions",
		map[string]interface{}{"id": sessionID, "owner": owner},
		map[string]interface{}{"mtime": mtime})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// DeleteStaleBefore drops sessions idle since before the cutoff, messages
// included. Returns the number of sessions removed.
func (r *SessionRepo) DeleteStaleBefore(ctx context.Context, cutoff int64) (int64, error) {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM chat_messages WHERE session_id IN (SELECT id FROM chat_sessions WHERE mtime < $1)`, cutoff); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM chat_sessions WHERE mtime < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *SessionRepo) Delete(ctx context.Context, owner, sessionID string) error {
	sqlStr, args, err := builder.BuildDelete("chat_sessions", map[string]interface{}{
		"id":    sessionID,
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
