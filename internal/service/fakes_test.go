package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/mirefly/ragdex/internal/ai"
	"github.com/mirefly/ragdex/internal/model"
	appErr "github.com/mirefly/ragdex/internal/pkg/errors"
)

type fakeDocStore struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{docs: map[string]*model.Document{}}
}

func (f *fakeDocStore) Create(ctx context.Context, doc *model.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[doc.ID]; ok {
		return appErr.ErrConflict
	}
	clone := *doc
	f.docs[doc.ID] = &clone
	return nil
}

func (f *fakeDocStore) GetByID(ctx context.Context, owner, docID string) (*model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.Owner != owner {
		return nil, appErr.ErrNotFound
	}
	clone := *doc
	return &clone, nil
}

func (f *fakeDocStore) List(ctx context.Context, owner string, limit, offset uint) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Document, 0)
	for _, doc := range f.docs {
		if doc.Owner == owner {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeDocStore) ListByStatus(ctx context.Context, status string) ([]model.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Document, 0)
	for _, doc := range f.docs {
		if doc.Status == status {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (f *fakeDocStore) Count(ctx context.Context, owner string) (int, error) {
	docs, _ := f.List(ctx, owner, 0, 0)
	return len(docs), nil
}

func (f *fakeDocStore) UpdateStatus(ctx context.Context, owner, docID, from, to, errorDetail string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.Owner != owner {
		return appErr.ErrNotFound
	}
	if from != "" && doc.Status != from {
		return appErr.ErrNotFound
	}
	doc.Status = to
	doc.ErrorDetail = errorDetail
	doc.Mtime = mtime
	return nil
}

func (f *fakeDocStore) SetIndexed(ctx context.Context, owner, docID string, generation int64, chunkCount int, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.Owner != owner {
		return appErr.ErrNotFound
	}
	doc.Status = model.DocumentStatusIndexed
	doc.ErrorDetail = ""
	doc.Generation = generation
	doc.ChunkCount = chunkCount
	doc.Mtime = mtime
	return nil
}

func (f *fakeDocStore) Delete(ctx context.Context, owner, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[docID]
	if !ok || doc.Owner != owner {
		return appErr.ErrNotFound
	}
	delete(f.docs, docID)
	return nil
}

type fakeChunkStore struct {
	mu     sync.Mutex
	chunks map[string]model.Chunk
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{chunks: map[string]model.Chunk{}}
}

func (f *fakeChunkStore) BatchInsert(ctx context.Context, chunks []model.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range chunks {
		f.chunks[c.ID] = c
	}
	return nil
}

func (f *fakeChunkStore) ListByDocument(ctx context.Context, owner, docID string, generation int64) ([]model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Chunk, 0)
	for _, c := range f.chunks {
		if c.Owner == owner && c.DocumentID == docID && c.Generation == generation {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) ListByIDs(ctx context.Context, owner string, chunkIDs []string) ([]model.Chunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.Chunk, 0)
	for _, id := range chunkIDs {
		if c, ok := f.chunks[id]; ok && c.Owner == owner {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeChunkStore) DeleteByDocument(ctx context.Context, owner, docID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.chunks {
		if c.Owner == owner && c.DocumentID == docID {
			delete(f.chunks, id)
		}
	}
	return nil
}

func (f *fakeChunkStore) DeleteSuperseded(ctx context.Context, owner, docID string, keep int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.chunks {
		if c.Owner == owner && c.DocumentID == docID && c.Generation != keep {
			delete(f.chunks, id)
		}
	}
	return nil
}

func (f *fakeChunkStore) DeleteGeneration(ctx context.Context, owner, docID string, generation int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, c := range f.chunks {
		if c.Owner == owner && c.DocumentID == docID && c.Generation == generation {
			delete(f.chunks, id)
		}
	}
	return nil
}

func (f *fakeChunkStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chunks)
}

type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*model.ChatSession
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: map[string]*model.ChatSession{}}
}

func (f *fakeSessionStore) Create(ctx context.Context, session *model.ChatSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *session
	f.sessions[session.ID] = &clone
	return nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, owner, sessionID string) (*model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.Owner != owner {
		return nil, appErr.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (f *fakeSessionStore) List(ctx context.Context, owner string, limit, offset uint) ([]model.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ChatSession, 0)
	for _, s := range f.sessions {
		if s.Owner == owner {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f *fakeSessionStore) Touch(ctx context.Context, owner, sessionID string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[sessionID]; ok && s.Owner == owner {
		s.Mtime = mtime
	}
	return nil
}

func (f *fakeSessionStore) Delete(ctx context.Context, owner, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.Owner != owner {
		return appErr.ErrNotFound
	}
	delete(f.sessions, sessionID)
	return nil
}

type fakeMessageStore struct {
	mu       sync.Mutex
	messages []model.ChatMessage
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{}
}

func (f *fakeMessageStore) Create(ctx context.Context, msg *model.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, *msg)
	return nil
}

func (f *fakeMessageStore) ListBySession(ctx context.Context, owner, sessionID string, limit, offset uint) ([]model.ChatMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.ChatMessage, 0)
	for _, m := range f.messages {
		if m.Owner == owner && m.SessionID == sessionID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMessageStore) ListRecent(ctx context.Context, owner, sessionID string, limit uint) ([]model.ChatMessage, error) {
	all, err := f.ListBySession(ctx, owner, sessionID, 0, 0)
	if err != nil {
		return nil, err
	}
	if uint(len(all)) > limit {
		all = all[uint(len(all))-limit:]
	}
	return all, nil
}

func (f *fakeMessageStore) DeleteBySession(ctx context.Context, owner, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.messages[:0]
	for _, m := range f.messages {
		if !(m.Owner == owner && m.SessionID == sessionID) {
			kept = append(kept, m)
		}
	}
	f.messages = kept
	return nil
}

// fakeEmbedder maps exact texts to configured vectors; unknown texts fall
// back to a fixed default direction.
type fakeEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	failAll bool
	calls   int
}

func newFakeEmbedder() *fakeEmbedder {
	return &fakeEmbedder{vectors: map[string][]float32{}}
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	res, err := f.EmbedBatch(ctx, []string{text}, taskType)
	if err != nil {
		return nil, err
	}
	return res[0], nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAll {
		return nil, fmt.Errorf("embedding backend down")
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if vec, ok := f.vectors[text]; ok {
			out = append(out, vec)
			continue
		}
		out = append(out, []float32{0.5, 0.5, 0})
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string {
	return "test-embed"
}

type fakeGenerator struct {
	mu         sync.Mutex
	answer     string
	failure    error
	streamErr  error
	lastPrompt string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.lastPrompt = prompt
	f.mu.Unlock()
	if f.failure != nil {
		return "", f.failure
	}
	return f.answer, nil
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, prompt string) (<-chan ai.StreamEvent, error) {
	f.mu.Lock()
	f.lastPrompt = prompt
	f.mu.Unlock()
	if f.failure != nil {
		return nil, f.failure
	}
	out := make(chan ai.StreamEvent)
	go func() {
		defer close(out)
		half := len(f.answer) / 2
		out <- ai.StreamEvent{Delta: f.answer[:half]}
		if f.streamErr != nil {
			out <- ai.StreamEvent{Err: f.streamErr}
			return
		}
		out <- ai.StreamEvent{Delta: f.answer[half:]}
		out <- ai.StreamEvent{Done: true}
	}()
	return out, nil
}

func (f *fakeGenerator) Available(ctx context.Context) bool {
	return f.failure == nil
}

type fakeWebProvider struct {
	snippets []model.WebSnippet
	err      error
}

func (f *fakeWebProvider) Name() string {
	return "fake"
}

func (f *fakeWebProvider) Search(ctx context.Context, query string, maxResults int) ([]model.WebSnippet, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.snippets, nil
}

type fakeFileStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{files: map[string][]byte{}}
}

func (f *fakeFileStore) Save(ctx context.Context, key string, r io.Reader, size int64) error {
	raw, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[key] = raw
	return nil
}

func (f *fakeFileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.files[key]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", key)
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (f *fakeFileStore) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, key)
	return nil
}
