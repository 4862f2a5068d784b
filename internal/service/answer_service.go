package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/mirefly/ragdex/internal/ai"
	"github.com/mirefly/ragdex/internal/config"
	"github.com/mirefly/ragdex/internal/model"
	appErr "github.com/mirefly/ragdex/internal/pkg/errors"
)

const (
	groundedPromptHeader = `You are a helpful assistant. Answer the question using the numbered context pieces below. Cite the pieces you rely on with bracketed numbers like [1]. If the context does not contain the answer, say so.`

	ungroundedPromptHeader = `You are a helpful assistant. No relevant documents were found for this question, so answer from general knowledge and start your reply by noting that it is not based on the user's documents.`
)

type AnswerResult struct {
	SessionID     string           `json:"session_id"`
	Answer        string           `json:"answer"`
	Citations     []model.Citation `json:"citations"`
	Ungrounded    bool             `json:"ungrounded"`
	StaleExcluded bool             `json:"stale_excluded,omitempty"`
}

// StreamResult carries citations resolved before generation starts plus the
// live token stream.
type StreamResult struct {
	SessionID     string
	Citations     []model.Citation
	Ungrounded    bool
	StaleExcluded bool
	Events        <-chan ai.StreamEvent
}

type AnswerService struct {
	generator ai.IGenerator
	retrieval *RetrievalService
	documents DocumentStore
	sessions  SessionStore
	messages  MessageStore
	cfg       config.RetrievalConfig
}

func NewAnswerService(generator ai.IGenerator, retrieval *RetrievalService, documents DocumentStore, sessions SessionStore, messages MessageStore, cfg config.RetrievalConfig) *AnswerService {
	return &AnswerService{
		generator: generator,
		retrieval: retrieval,
		documents: documents,
		sessions:  sessions,
		messages:  messages,
		cfg:       cfg,
	}
}

// Answer runs one full question/answer turn: retrieve, assemble the prompt,
// generate, persist both turn halves. webSearch lets the caller skip the
// live web lookup for this turn.
func (s *AnswerService) Answer(ctx context.Context, owner, sessionID, question string, webSearch bool) (*AnswerResult, error) {
	prep, err := s.prepare(ctx, owner, sessionID, question, webSearch)
	if err != nil {
		return nil, err
	}
	answer, err := s.generator.Generate(ctx, prep.prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", appErr.ErrUnavailable)
	}
	s.persistTurn(ctx, prep, question, answer)
	return &AnswerResult{
		SessionID:     prep.sessionID,
		Answer:        answer,
		Citations:     prep.citations,
		Ungrounded:    prep.ungrounded,
		StaleExcluded: prep.staleExcluded,
	}, nil
}

// AnswerStream is Answer with a streamed reply. Citations are final before
// the first delta; the assistant turn is persisted only when the stream
// finishes cleanly.
func (s *AnswerService) AnswerStream(ctx context.Context, owner, sessionID, question string, webSearch bool) (*StreamResult, error) {
	prep, err := s.prepare(ctx, owner, sessionID, question, webSearch)
	if err != nil {
		return nil, err
	}
	upstream, err := s.generator.GenerateStream(ctx, prep.prompt)
	if err != nil {
		return nil, fmt.Errorf("generate answer: %w", appErr.ErrUnavailable)
	}
	events := make(chan ai.StreamEvent)
	go func() {
		defer close(events)
		var buf strings.Builder
		for ev := range upstream {
			if ev.Delta != "" {
				buf.WriteString(ev.Delta)
			}
			events <- ev
			if ev.Err != nil {
				return
			}
			if ev.Done {
				s.persistTurn(ctx, prep, question, buf.String())
				return
			}
		}
	}()
	return &StreamResult{
		SessionID:     prep.sessionID,
		Citations:     prep.citations,
		Ungrounded:    prep.ungrounded,
		StaleExcluded: prep.staleExcluded,
		Events:        events,
	}, nil
}

type preparedTurn struct {
	owner         string
	sessionID     string
	newSession    bool
	prompt        string
	citations     []model.Citation
	ungrounded    bool
	staleExcluded bool
}

func (s *AnswerService) prepare(ctx context.Context, owner, sessionID, question string, webSearch bool) (*preparedTurn, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is required, err: %w", appErr.ErrInvalid)
	}
	newSession := false
	if sessionID == "" {
		sessionID = newID()
		newSession = true
	} else if _, err := s.sessions.GetByID(ctx, owner, sessionID); err != nil {
		return nil, err
	}

	retrieved, err := s.retrieval.Retrieve(ctx, owner, question, 0, webSearch)
	if err != nil {
		return nil, err
	}
	history, err := s.loadHistory(ctx, owner, sessionID, newSession)
	if err != nil {
		return nil, err
	}
	prompt, citations := s.assemblePrompt(ctx, owner, question, retrieved, history)
	return &preparedTurn{
		owner:         owner,
		sessionID:     sessionID,
		newSession:    newSession,
		prompt:        prompt,
		citations:     citations,
		ungrounded:    len(citations) == 0,
		staleExcluded: retrieved.StaleExcluded,
	}, nil
}

func (s *AnswerService) loadHistory(ctx context.Context, owner, sessionID string, newSession bool) ([]model.ChatMessage, error) {
	if newSession || s.cfg.HistoryTurns <= 0 {
		return nil, nil
	}
	return s.messages.ListRecent(ctx, owner, sessionID, uint(s.cfg.HistoryTurns*2))
}

// assemblePrompt builds the final prompt under the context budget. Context
// pieces are taken in retrieval order and numbered from 1; a piece that does
// not fit is skipped along with everything after it. The returned citations
// list exactly the included pieces, in prompt order.
func (s *AnswerService) assemblePrompt(ctx context.Context, owner, question string, retrieved *model.RetrievalResult, history []model.ChatMessage) (string, []model.Citation) {
	budget := s.cfg.ContextBudget
	if budget <= 0 {
		budget = 6000
	}
	var contextBlock strings.Builder
	citations := make([]model.Citation, 0, len(retrieved.Order))
	filenames := make(map[string]string)
	n := 0
	for _, ref := range retrieved.Order {
		piece, citation, ok := s.renderPiece(ctx, owner, ref, retrieved, filenames, n+1)
		if !ok {
			continue
		}
		if contextBlock.Len()+len(piece) > budget {
			break
		}
		contextBlock.WriteString(piece)
		citations = append(citations, citation)
		n++
	}

	var prompt strings.Builder
	if n > 0 {
		prompt.WriteString(groundedPromptHeader)
		prompt.WriteString("\n\nContext:\n")
		prompt.WriteString(contextBlock.String())
	} else {
		prompt.WriteString(ungroundedPromptHeader)
	}
	if len(history) > 0 {
		prompt.WriteString("\nConversation so far:\n")
		for _, msg := range history {
			prompt.WriteString(msg.Role)
			prompt.WriteString(": ")
			prompt.WriteString(msg.Content)
			prompt.WriteString("\n")
		}
	}
	prompt.WriteString("\nQuestion: ")
	prompt.WriteString(question)
	prompt.WriteString("\nAnswer:")
	return prompt.String(), citations
}

func (s *AnswerService) renderPiece(ctx context.Context, owner, ref string, retrieved *model.RetrievalResult, filenames map[string]string, number int) (string, model.Citation, bool) {
	kind, idxStr, ok := strings.Cut(ref, ":")
	if !ok {
		return "", model.Citation{}, false
	}
	idx, err := strconv.Atoi(idxStr)
	if err != nil {
		return "", model.Citation{}, false
	}
	switch kind {
	case "local":
		if idx < 0 || idx >= len(retrieved.Local) {
			return "", model.Citation{}, false
		}
		rc := retrieved.Local[idx]
		filename := s.filenameFor(ctx, owner, rc.Chunk.DocumentID, filenames)
		piece := fmt.Sprintf("[%d] (%s)\n%s\n\n", number, filename, rc.Chunk.Text)
		return piece, model.Citation{
			DocumentID: rc.Chunk.DocumentID,
			ChunkID:    rc.Chunk.ID,
			Filename:   filename,
			Ordinal:    rc.Chunk.Ordinal,
			Score:      rc.Score,
		}, true
	case "web":
		if idx < 0 || idx >= len(retrieved.Web) {
			return "", model.Citation{}, false
		}
		snippet := retrieved.Web[idx]
		piece := fmt.Sprintf("[%d] (web: %s)\n%s\n\n", number, snippet.URL, snippet.Excerpt)
		return piece, model.Citation{
			URL:   snippet.URL,
			Title: snippet.Title,
		}, true
	}
	return "", model.Citation{}, false
}

func (s *AnswerService) filenameFor(ctx context.Context, owner, docID string, cache map[string]string) string {
	if name, ok := cache[docID]; ok {
		return name
	}
	name := docID
	if doc, err := s.documents.GetByID(ctx, owner, docID); err == nil {
		name = doc.Filename
	}
	cache[docID] = name
	return name
}

// persistTurn writes both turn halves. Persistence failures are logged, not
// surfaced: the user already has the answer.
func (s *AnswerService) persistTurn(ctx context.Context, prep *preparedTurn, question, answer string) {
	logger := logutil.GetLogger(ctx).With(zap.String("session_id", prep.sessionID))
	now := time.Now().Unix()
	if prep.newSession {
		title := question
		if len(title) > 80 {
			title = title[:80]
		}
		if err := s.sessions.Create(ctx, &model.ChatSession{
			ID:    prep.sessionID,
			Owner: prep.owner,
			Title: title,
			Ctime: now,
			Mtime: now,
		}); err != nil {
			logger.Warn("failed to create chat session", zap.Error(err))
			return
		}
	} else if err := s.sessions.Touch(ctx, prep.owner, prep.sessionID, now); err != nil {
		logger.Warn("failed to touch chat session", zap.Error(err))
	}
	if err := s.messages.Create(ctx, &model.ChatMessage{
		ID:        newID(),
		SessionID: prep.sessionID,
		Owner:     prep.owner,
		Role:      model.MessageRoleUser,
		Content:   question,
		Ctime:     now,
	}); err != nil {
		logger.Warn("failed to persist user message", zap.Error(err))
	}
	if err := s.messages.Create(ctx, &model.ChatMessage{
		ID:         newID(),
		SessionID:  prep.sessionID,
		Owner:      prep.owner,
		Role:       model.MessageRoleAssistant,
		Content:    answer,
		Citations:  prep.citations,
		Ungrounded: prep.ungrounded,
		Ctime:      now + 1,
	}); err != nil {
		logger.Warn("failed to persist assistant message", zap.Error(err))
	}
}
