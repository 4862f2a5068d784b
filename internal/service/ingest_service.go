package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/mirefly/ragdex/internal/ai"
	"github.com/mirefly/ragdex/internal/chunker"
	"github.com/mirefly/ragdex/internal/config"
	"github.com/mirefly/ragdex/internal/extract"
	"github.com/mirefly/ragdex/internal/filestore"
	"github.com/mirefly/ragdex/internal/model"
	appErr "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/mirefly/ragdex/internal/vectorindex"
)

const (
	maxUploadBytes = 32 << 20
	embedBatchSize = 16
	embedTaskType  = "retrieval_document"
)

type IngestService struct {
	documents DocumentStore
	chunks    ChunkStore
	index     vectorindex.Index
	embedder  ai.IEmbedder
	files     filestore.Store
	chunkCfg  chunker.Config

	// one mutex per document keeps ingestion runs serialized
	locks sync.Map
}

func NewIngestService(documents DocumentStore, chunks ChunkStore, index vectorindex.Index, embedder ai.IEmbedder, files filestore.Store, cfg config.ChunkingConfig) *IngestService {
	return &IngestService{
		documents: documents,
		chunks:    chunks,
		index:     index,
		embedder:  embedder,
		files:     files,
		chunkCfg:  chunker.Config{MaxChunkSize: cfg.MaxChunkSize, Overlap: cfg.Overlap},
	}
}

func (s *IngestService) lockFor(docID string) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(docID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Create records an uploaded document and stores its raw bytes. The document
// starts out pending; Ingest moves it through the rest of the lifecycle.
func (s *IngestService) Create(ctx context.Context, owner, filename, format string, r io.Reader) (*model.Document, error) {
	if owner == "" {
		return nil, fmt.Errorf("owner is required, err: %w", appErr.ErrInvalid)
	}
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return nil, fmt.Errorf("filename is required, err: %w", appErr.ErrInvalid)
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if !model.IsValidFormat(format) {
		return nil, fmt.Errorf("unsupported format: %s, err: %w", format, appErr.ErrInvalid)
	}
	raw, err := io.ReadAll(io.LimitReader(r, maxUploadBytes+1))
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty upload, err: %w", appErr.ErrInvalid)
	}
	if len(raw) > maxUploadBytes {
		return nil, fmt.Errorf("upload exceeds %d bytes, err: %w", maxUploadBytes, appErr.ErrInvalid)
	}
	now := time.Now().Unix()
	doc := &model.Document{
		ID:       newID(),
		Owner:    owner,
		Filename: filename,
		Format:   format,
		Status:   model.DocumentStatusPending,
		FileKey:  newID() + "." + format,
		Ctime:    now,
		Mtime:    now,
	}
	if err := s.files.Save(ctx, doc.FileKey, bytes.NewReader(raw), int64(len(raw))); err != nil {
		return nil, err
	}
	if err := s.documents.Create(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Ingest runs the full pipeline for one document: extract, chunk, embed,
// index. Re-running on an already indexed document rebuilds its chunks and
// entries under a fresh generation; readers keep seeing the old set until
// the new one is live.
func (s *IngestService) Ingest(ctx context.Context, owner, docID string) error {
	lock := s.lockFor(docID)
	if !lock.TryLock() {
		return appErr.ErrBusy
	}
	defer lock.Unlock()

	doc, err := s.documents.GetByID(ctx, owner, docID)
	if err != nil {
		return err
	}
	if doc.Status == model.DocumentStatusProcessing {
		return appErr.ErrBusy
	}
	now := time.Now().Unix()
	if err := s.documents.UpdateStatus(ctx, owner, docID, "", model.DocumentStatusProcessing, "", now); err != nil {
		return err
	}
	generation := time.Now().UnixNano()
	if err := s.runPipeline(ctx, doc, generation); err != nil {
		s.rollback(ctx, doc, generation, err)
		return err
	}
	// the new generation is live, drop superseded rows best-effort
	if err := s.index.DeleteSuperseded(ctx, owner, docID, generation); err != nil {
		logutil.GetLogger(ctx).Warn("failed to prune superseded index entries", zap.String("doc_id", docID), zap.Error(err))
	}
	if err := s.chunks.DeleteSuperseded(ctx, owner, docID, generation); err != nil {
		logutil.GetLogger(ctx).Warn("failed to prune superseded chunks", zap.String("doc_id", docID), zap.Error(err))
	}
	return nil
}

func (s *IngestService) runPipeline(ctx context.Context, doc *model.Document, generation int64) error {
	f, err := s.files.Open(ctx, doc.FileKey)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	raw, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		return fmt.Errorf("read stored file: %w", err)
	}
	text, err := extract.Text(doc.Format, raw)
	if err != nil {
		return err
	}
	var spans []chunker.Span
	if doc.Format == model.FormatMarkdown {
		spans, err = chunker.SplitMarkdown(text, s.chunkCfg)
	} else {
		spans, err = chunker.Split(text, s.chunkCfg)
	}
	if err != nil {
		return err
	}
	if len(spans) == 0 {
		return fmt.Errorf("no extractable text, err: %w", appErr.ErrInvalid)
	}
	now := time.Now().Unix()
	chunks := make([]model.Chunk, 0, len(spans))
	texts := make([]string, 0, len(spans))
	for _, span := range spans {
		chunks = append(chunks, model.Chunk{
			ID:          newID(),
			DocumentID:  doc.ID,
			Owner:       doc.Owner,
			Ordinal:     span.Ordinal,
			Text:        span.Text,
			StartOffset: span.Start,
			EndOffset:   span.End,
			Generation:  generation,
			Ctime:       now,
		})
		texts = append(texts, span.Text)
	}
	if err := s.chunks.BatchInsert(ctx, chunks); err != nil {
		return err
	}
	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	ingestedAt := time.Now().UnixMilli()
	entries := make([]vectorindex.Entry, 0, len(chunks))
	for i, c := range chunks {
		entries = append(entries, vectorindex.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Owner:      c.Owner,
			Model:      s.embedder.ModelName(),
			Ordinal:    c.Ordinal,
			Generation: generation,
			IngestedAt: ingestedAt,
			Vector:     vectors[i],
		})
	}
	if err := s.index.Upsert(ctx, entries); err != nil {
		return fmt.Errorf("index chunks: %w", err)
	}
	return s.documents.SetIndexed(ctx, doc.Owner, doc.ID, generation, len(chunks), time.Now().Unix())
}

// embedAll embeds chunk texts in batches, retrying transient provider
// failures with exponential backoff.
func (s *IngestService) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		var result [][]float32
		op := func() error {
			res, err := s.embedder.EmbedBatch(ctx, batch, embedTaskType)
			if err != nil {
				return err
			}
			if len(res) != len(batch) {
				return backoff.Permanent(fmt.Errorf("embedding count mismatch: got %d, want %d", len(res), len(batch)))
			}
			result = res
			return nil
		}
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
		if err := backoff.Retry(op, policy); err != nil {
			return nil, err
		}
		vectors = append(vectors, result...)
	}
	return vectors, nil
}

// rollback removes the partially written generation and marks the document
// failed. The previously indexed generation, if any, stays untouched.
func (s *IngestService) rollback(ctx context.Context, doc *model.Document, generation int64, cause error) {
	logger := logutil.GetLogger(ctx).With(zap.String("doc_id", doc.ID))
	logger.Error("ingestion failed", zap.Error(cause))
	if err := s.index.DeleteSuperseded(ctx, doc.Owner, doc.ID, doc.Generation); err != nil {
		logger.Warn("failed to roll back index entries", zap.Error(err))
	}
	if err := s.chunks.DeleteGeneration(ctx, doc.Owner, doc.ID, generation); err != nil {
		logger.Warn("failed to roll back chunks", zap.Error(err))
	}
	detail := cause.Error()
	if len(detail) > 512 {
		detail = detail[:512]
	}
	if err := s.documents.UpdateStatus(ctx, doc.Owner, doc.ID, "", model.DocumentStatusFailed, detail, time.Now().Unix()); err != nil {
		logger.Warn("failed to mark document failed", zap.Error(err))
	}
}

// Delete removes the document and everything derived from it. Index entries
// go first so retrieval never returns hits for a vanished document.
func (s *IngestService) Delete(ctx context.Context, owner, docID string) error {
	lock := s.lockFor(docID)
	if !lock.TryLock() {
		return appErr.ErrBusy
	}
	defer lock.Unlock()

	doc, err := s.documents.GetByID(ctx, owner, docID)
	if err != nil {
		return err
	}
	if err := s.index.DeleteDocument(ctx, owner, docID); err != nil {
		return err
	}
	if err := s.chunks.DeleteByDocument(ctx, owner, docID); err != nil {
		return err
	}
	if doc.FileKey != "" {
		if err := s.files.Delete(ctx, doc.FileKey); err != nil {
			logutil.GetLogger(ctx).Warn("failed to delete stored file", zap.String("doc_id", docID), zap.Error(err))
		}
	}
	if err := s.documents.Delete(ctx, owner, docID); err != nil {
		return err
	}
	s.locks.Delete(docID)
	return nil
}

func (s *IngestService) Get(ctx context.Context, owner, docID string) (*model.Document, error) {
	return s.documents.GetByID(ctx, owner, docID)
}

func (s *IngestService) List(ctx context.Context, owner string, limit, offset uint) ([]model.Document, error) {
	return s.documents.List(ctx, owner, limit, offset)
}

// ProcessPending ingests documents still pending. Freshly uploaded ones are
// normally picked up by the upload request itself; this sweeps the ones whose
// background run never started, for example after a crash between upload and
// ingestion.
func (s *IngestService) ProcessPending(ctx context.Context, minAgeSeconds int64) error {
	docs, err := s.documents.ListByStatus(ctx, model.DocumentStatusPending)
	if err != nil {
		return err
	}
	cutoff := time.Now().Unix() - minAgeSeconds
	for _, doc := range docs {
		if doc.Mtime > cutoff {
			continue
		}
		if err := s.Ingest(ctx, doc.Owner, doc.ID); err != nil && err != appErr.ErrBusy {
			logutil.GetLogger(ctx).Warn("pending sweep ingestion failed", zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	return nil
}

// RecoverInterrupted marks documents stuck in processing as failed and
// drops whatever their interrupted run managed to write. Meant to run once
// at startup.
func (s *IngestService) RecoverInterrupted(ctx context.Context) error {
	docs, err := s.documents.ListByStatus(ctx, model.DocumentStatusProcessing)
	if err != nil {
		return err
	}
	for _, doc := range docs {
		logutil.GetLogger(ctx).Info("recovering interrupted ingestion", zap.String("doc_id", doc.ID))
		if err := s.index.DeleteSuperseded(ctx, doc.Owner, doc.ID, doc.Generation); err != nil {
			logutil.GetLogger(ctx).Warn("failed to prune index entries", zap.String("doc_id", doc.ID), zap.Error(err))
		}
		if err := s.chunks.DeleteSuperseded(ctx, doc.Owner, doc.ID, doc.Generation); err != nil {
			logutil.GetLogger(ctx).Warn("failed to prune chunks", zap.String("doc_id", doc.ID), zap.Error(err))
		}
		if err := s.documents.UpdateStatus(ctx, doc.Owner, doc.ID, model.DocumentStatusProcessing, model.DocumentStatusFailed, "ingestion interrupted by shutdown", time.Now().Unix()); err != nil {
			logutil.GetLogger(ctx).Warn("failed to mark document failed", zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
	return nil
}
