package vectorindex

import (
	"context"
	"testing"

	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entry(chunkID, docID, owner string, ordinal int, gen int64, vec []float32) Entry {
	return Entry{
		ChunkID:    chunkID,
		DocumentID: docID,
		Owner:      owner,
		Model:      "test-embed",
		Ordinal:    ordinal,
		Generation: gen,
		IngestedAt: gen,
		Vector:     vec,
	}
}

func TestMemorySearchRanksByCosine(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	err := idx.Upsert(ctx, []Entry{
		entry("c1", "d1", "alice", 0, 1, []float32{1, 0}),
		entry("c2", "d1", "alice", 1, 1, []float32{0, 1}),
		entry("c3", "d1", "alice", 2, 1, []float32{0.9, 0.1}),
	})
	require.NoError(t, err)

	matches, err := idx.Search(ctx, []float32{1, 0}, 2, Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "c1", matches[0].ChunkID)
	assert.Equal(t, "c3", matches[1].ChunkID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

func TestMemorySearchOwnerIsolation(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	err := idx.Upsert(ctx, []Entry{
		entry("c1", "d1", "alice", 0, 1, []float32{1, 0}),
		entry("c2", "d2", "bob", 0, 1, []float32{1, 0}),
	})
	require.NoError(t, err)

	matches, err := idx.Search(ctx, []float32{1, 0}, 10, Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c1", matches[0].ChunkID)
}

func TestMemorySearchInvalidArgs(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()

	_, err := idx.Search(ctx, []float32{1, 0}, 0, Filter{Owner: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = idx.Search(ctx, []float32{1, 0}, 5, Filter{})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)

	_, err = idx.Search(ctx, nil, 5, Filter{Owner: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrInvalid)
}

func TestMemorySearchTieBreak(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	older := entry("old", "d1", "alice", 0, 1, []float32{1, 0})
	older.IngestedAt = 100
	newer := entry("new", "d1", "alice", 1, 1, []float32{1, 0})
	newer.IngestedAt = 200
	require.NoError(t, idx.Upsert(ctx, []Entry{older, newer}))

	matches, err := idx.Search(ctx, []float32{1, 0}, 2, Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "new", matches[0].ChunkID)
	assert.Equal(t, "old", matches[1].ChunkID)
}

func TestMemoryUpsertReplaces(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Entry{entry("c1", "d1", "alice", 0, 1, []float32{0, 1})}))
	require.NoError(t, idx.Upsert(ctx, []Entry{entry("c1", "d1", "alice", 0, 2, []float32{1, 0})}))

	matches, err := idx.Search(ctx, []float32{1, 0}, 10, Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.InDelta(t, 1.0, float64(matches[0].Score), 1e-6)
}

func TestMemoryDeleteDocument(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Entry{
		entry("c1", "d1", "alice", 0, 1, []float32{1, 0}),
		entry("c2", "d2", "alice", 0, 1, []float32{1, 0}),
	}))
	require.NoError(t, idx.DeleteDocument(ctx, "alice", "d1"))
	// deleting again is a no-op
	require.NoError(t, idx.DeleteDocument(ctx, "alice", "d1"))

	matches, err := idx.Search(ctx, []float32{1, 0}, 10, Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "d2", matches[0].DocumentID)
}

func TestMemoryDeleteSuperseded(t *testing.T) {
	idx := NewMemory()
	ctx := context.Background()
	require.NoError(t, idx.Upsert(ctx, []Entry{
		entry("c1", "d1", "alice", 0, 1, []float32{1, 0}),
		entry("c2", "d1", "alice", 0, 2, []float32{1, 0}),
	}))
	require.NoError(t, idx.DeleteSuperseded(ctx, "alice", "d1", 2))

	matches, err := idx.Search(ctx, []float32{1, 0}, 10, Filter{Owner: "alice"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "c2", matches[0].ChunkID)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, float64(cosine([]float32{1, 0}, []float32{2, 0})), 1e-6)
	assert.InDelta(t, 0.0, float64(cosine([]float32{1, 0}, []float32{0, 1})), 1e-6)
	assert.InDelta(t, -1.0, float64(cosine([]float32{1, 0}, []float32{-1, 0})), 1e-6)
	assert.Equal(t, float32(0), cosine([]float32{1}, []float32{1, 2}))
	assert.Equal(t, float32(0), cosine(nil, nil))
}
