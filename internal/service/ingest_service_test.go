package service

import (
	"context"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirefly/ragdex/internal/config"
	"github.com/mirefly/ragdex/internal/model"
	appErr "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/mirefly/ragdex/internal/vectorindex"
)

type ingestFixture struct {
	svc      *IngestService
	docs     *fakeDocStore
	chunks   *fakeChunkStore
	index    vectorindex.Index
	embedder *fakeEmbedder
	files    *fakeFileStore
}

func newIngestFixture() *ingestFixture {
	docs := newFakeDocStore()
	chunks := newFakeChunkStore()
	index := vectorindex.NewMemory()
	embedder := newFakeEmbedder()
	files := newFakeFileStore()
	svc := NewIngestService(docs, chunks, index, embedder, files, config.ChunkingConfig{
		MaxChunkSize: 80,
		Overlap:      10,
	})
	return &ingestFixture{svc: svc, docs: docs, chunks: chunks, index: index, embedder: embedder, files: files}
}

const sampleText = "The quick brown fox jumps over the lazy dog. Pack my box with five dozen liquor jugs. How vexingly quick daft zebras jump. The five boxing wizards jump quickly."

func TestCreateValidatesInput(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	_, err := fix.svc.Create(ctx, "", "a.txt", "txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = fix.svc.Create(ctx, "alice", "", "txt", strings.NewReader("x"))
	assert.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = fix.svc.Create(ctx, "alice", "a.xls", "xls", strings.NewReader("x"))
	assert.ErrorIs(t, err, appErr.ErrInvalid)

	_, err = fix.svc.Create(ctx, "alice", "a.txt", "txt", strings.NewReader(""))
	assert.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestIngestHappyPath(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusPending, doc.Status)

	require.NoError(t, fix.svc.Ingest(ctx, "alice", doc.ID))

	stored, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusIndexed, stored.Status)
	assert.Greater(t, stored.ChunkCount, 1)
	assert.NotZero(t, stored.Generation)
	assert.Equal(t, stored.ChunkCount, fix.chunks.count())

	matches, err := fix.index.Search(ctx, []float32{0.5, 0.5, 0}, 10, vectorindex.Filter{Owner: "alice", Model: "test-embed"})
	require.NoError(t, err)
	assert.Len(t, matches, stored.ChunkCount)
}

func TestIngestEmbedFailureRollsBack(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)

	fix.embedder.failAll = true
	err = fix.svc.Ingest(ctx, "alice", doc.ID)
	require.Error(t, err)

	stored, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.ErrorDetail)
	assert.Equal(t, 0, fix.chunks.count())

	matches, err := fix.index.Search(ctx, []float32{0.5, 0.5, 0}, 10, vectorindex.Filter{Owner: "alice"})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestIngestFailureKeepsPreviousGeneration(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)
	require.NoError(t, fix.svc.Ingest(ctx, "alice", doc.ID))
	indexed, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	firstGen := indexed.Generation
	firstCount := fix.chunks.count()

	fix.embedder.failAll = true
	require.Error(t, fix.svc.Ingest(ctx, "alice", doc.ID))

	stored, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, stored.Status)
	// the previously indexed set stays readable
	assert.Equal(t, firstGen, stored.Generation)
	assert.Equal(t, firstCount, fix.chunks.count())
	matches, err := fix.index.Search(ctx, []float32{0.5, 0.5, 0}, 50, vectorindex.Filter{Owner: "alice"})
	require.NoError(t, err)
	assert.Len(t, matches, firstCount)
}

func TestReingestReplacesGeneration(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)
	require.NoError(t, fix.svc.Ingest(ctx, "alice", doc.ID))
	first, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	firstChunks, err := fix.chunks.ListByDocument(ctx, "alice", doc.ID, first.Generation)
	require.NoError(t, err)

	require.NoError(t, fix.svc.Ingest(ctx, "alice", doc.ID))
	second, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)

	assert.Equal(t, model.DocumentStatusIndexed, second.Status)
	assert.NotEqual(t, first.Generation, second.Generation)
	// identical content re-chunks to the same spans
	secondChunks, err := fix.chunks.ListByDocument(ctx, "alice", doc.ID, second.Generation)
	require.NoError(t, err)
	assert.Equal(t, chunkContents(firstChunks), chunkContents(secondChunks))
	// superseded chunks and entries are gone
	assert.Equal(t, second.ChunkCount, fix.chunks.count())
	matches, err := fix.index.Search(ctx, []float32{0.5, 0.5, 0}, 50, vectorindex.Filter{Owner: "alice"})
	require.NoError(t, err)
	assert.Len(t, matches, second.ChunkCount)
}

type chunkContent struct {
	ordinal    int
	text       string
	start, end int
}

// chunkContents strips identifiers and generation so two ingestions of the
// same bytes can be compared by what they produced.
func chunkContents(chunks []model.Chunk) []chunkContent {
	out := make([]chunkContent, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, chunkContent{ordinal: c.Ordinal, text: c.Text, start: c.StartOffset, end: c.EndOffset})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ordinal < out[j].ordinal })
	return out
}

func TestIngestWhitespaceOnlyFails(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "blank.txt", "txt", strings.NewReader("   \n\n\t  "))
	require.NoError(t, err)
	err = fix.svc.Ingest(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, appErr.ErrInvalid)

	stored, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, stored.Status)
}

func TestIngestWrongOwner(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)

	err = fix.svc.Ingest(ctx, "bob", doc.ID)
	assert.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestIngestBusy(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)

	// hold the per-document lock as a concurrent run would
	lock := fix.svc.lockFor(doc.ID)
	lock.Lock()
	defer lock.Unlock()

	assert.ErrorIs(t, fix.svc.Ingest(ctx, "alice", doc.ID), appErr.ErrBusy)
	assert.ErrorIs(t, fix.svc.Delete(ctx, "alice", doc.ID), appErr.ErrBusy)
}

func TestDeleteRemovesEverything(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)
	require.NoError(t, fix.svc.Ingest(ctx, "alice", doc.ID))

	require.NoError(t, fix.svc.Delete(ctx, "alice", doc.ID))

	_, err = fix.svc.Get(ctx, "alice", doc.ID)
	assert.ErrorIs(t, err, appErr.ErrNotFound)
	assert.Equal(t, 0, fix.chunks.count())
	matches, err := fix.index.Search(ctx, []float32{0.5, 0.5, 0}, 10, vectorindex.Filter{Owner: "alice"})
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, fix.files.files)
}

func TestRecoverInterrupted(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)
	require.NoError(t, fix.docs.UpdateStatus(ctx, "alice", doc.ID, "", model.DocumentStatusProcessing, "", 0))

	require.NoError(t, fix.svc.RecoverInterrupted(ctx))

	stored, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusFailed, stored.Status)
	assert.Contains(t, stored.ErrorDetail, "interrupted")
}

func TestProcessPendingSweepsOldDocs(t *testing.T) {
	fix := newIngestFixture()
	ctx := context.Background()

	doc, err := fix.svc.Create(ctx, "alice", "notes.txt", "txt", strings.NewReader(sampleText))
	require.NoError(t, err)

	require.NoError(t, fix.svc.ProcessPending(ctx, 0))

	stored, err := fix.svc.Get(ctx, "alice", doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DocumentStatusIndexed, stored.Status)
}
