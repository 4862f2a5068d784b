package service

import (
	"context"

	"github.com/mirefly/ragdex/internal/model"
)

type ChatService struct {
	sessions SessionStore
	messages MessageStore
}

func NewChatService(sessions SessionStore, messages MessageStore) *ChatService {
	return &ChatService{sessions: sessions, messages: messages}
}

func (s *ChatService) ListSessions(ctx context.Context, owner string, limit, offset uint) ([]model.ChatSession, error) {
	return s.sessions.List(ctx, owner, limit, offset)
}

func (s *ChatService) ListMessages(ctx context.Context, owner, sessionID string, limit, offset uint) ([]model.ChatMessage, error) {
	if _, err := s.sessions.GetByID(ctx, owner, sessionID); err != nil {
		return nil, err
	}
	return s.messages.ListBySession(ctx, owner, sessionID, limit, offset)
}

func (s *ChatService) DeleteSession(ctx context.Context, owner, sessionID string) error {
	if _, err := s.sessions.GetByID(ctx, owner, sessionID); err != nil {
		return err
	}
	if err := s.messages.DeleteBySession(ctx, owner, sessionID); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, owner, sessionID)
}
