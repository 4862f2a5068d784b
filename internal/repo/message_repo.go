package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/didi/gendry/builder"

	"github.com/mirefly/ragdex/internal/model"
	"github.com/mirefly/ragdex/internal/pkg/dbutil"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var messageFields = []string{"id", "session_id", "owner", "role", "content", "citations", "ungrounded", "ctime"}

func (r *MessageRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	citations := msg.Citations
	if citations == nil {
		citations = []model.Citation{}
	}
	raw, err := json.Marshal(citations)
	if err != nil {
		return err
	}
	data := map[string]interface{}{
		"id":         msg.ID,
		"session_id": msg.SessionID,
		"owner":      msg.Owner,
		"role":       msg.Role,
		"content":    msg.Content,
		"citations":  string(raw),
		"ungrounded": msg.Ungrounded,
		"ctime":      msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("chat_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *MessageRepo) ListBySession(ctx context.Context, owner, sessionID string, limit, offset uint) ([]model.ChatMessage, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"owner":      owner,
		"_orderby":   "ctime asc",
	}
	if limit > 0 {
		where["_limit"] = []uint{offset, limit}
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	messages := make([]model.ChatMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, rows.Err()
}

// ListRecent returns the newest messages of the session, oldest first.
func (r *MessageRepo) ListRecent(ctx context.Context, owner, sessionID string, limit uint) ([]model.ChatMessage, error) {
	where := map[string]interface{}{
		"session_id": sessionID,
		"owner":      owner,
		"_orderby":   "ctime desc",
		"_limit":     []uint{0, limit},
	}
	sqlStr, args, err := builder.BuildSelect("chat_messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	messages := make([]model.ChatMessage, 0)
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

func (r *MessageRepo) DeleteBySession(ctx context.Context, owner, sessionID string) error {
	sqlStr, args, err := builder.BuildDelete("chat_messages", map[string]interface{}{
		"session_id": sessionID,
		"owner":      owner,
	})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func scanMessage(rows *sql.Rows) (*model.ChatMessage, error) {
	var msg model.ChatMessage
	var citations string
	if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Owner, &msg.Role, &msg.Content, &citations, &msg.Ungrounded, &msg.Ctime); err != nil {
		return nil, err
	}
	if citations != "" {
		if err := json.Unmarshal([]byte(citations), &msg.Citations); err != nil {
			return nil, err
		}
	}
	return &msg, nil
}
