package service

import (
	"context"

	"github.com/mirefly/ragdex/internal/model"
)

// Store interfaces mirror the repo layer so services can be exercised
// against in-memory doubles.

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, owner, docID string) (*model.Document, error)
	List(ctx context.Context, owner string, limit, offset uint) ([]model.Document, error)
	ListByStatus(ctx context.Context, status string) ([]model.Document, error)
	Count(ctx context.Context, owner string) (int, error)
	UpdateStatus(ctx context.Context, owner, docID, from, to, errorDetail string, mtime int64) error
	SetIndexed(ctx context.Context, owner, docID string, generation int64, chunkCount int, mtime int64) error
	Delete(ctx context.Context, owner, docID string) error
}

type ChunkStore interface {
	BatchInsert(ctx context.Context, chunks []model.Chunk) error
	ListByDocument(ctx context.Context, owner, docID string, generation int64) ([]model.Chunk, error)
	ListByIDs(ctx context.Context, owner string, chunkIDs []string) ([]model.Chunk, error)
	DeleteByDocument(ctx context.Context, owner, docID string) error
	DeleteSuperseded(ctx context.Context, owner, docID string, keep int64) error
	DeleteGeneration(ctx context.Context, owner, docID string, generation int64) error
}

type SessionStore interface {
	Create(ctx context.Context, session *model.ChatSession) error
	GetByID(ctx context.Context, owner, sessionID string) (*model.ChatSession, error)
	List(ctx context.Context, owner string, limit, offset uint) ([]model.ChatSession, error)
	Touch(ctx context.Context, owner, sessionID string, mtime int64) error
	Delete(ctx context.Context, owner, sessionID string) error
}

type MessageStore interface {
	Create(ctx context.Context, msg *model.ChatMessage) error
	ListBySession(ctx context.Context, owner, sessionID string, limit, offset uint) ([]model.ChatMessage, error)
	ListRecent(ctx context.Context, owner, sessionID string, limit uint) ([]model.ChatMessage, error)
	DeleteBySession(ctx context.Context, owner, sessionID string) error
}
