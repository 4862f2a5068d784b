package vectorindex

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
)

// Entry is a single indexed chunk vector.
type Entry struct {
	ChunkID    string
	DocumentID string
	Owner      string
	Model      string
	Ordinal    int
	Generation int64
	IngestedAt int64
	Vector     []float32
}

// Filter narrows a search. Owner is mandatory; empty DocumentID means
// all of the owner's documents. NotModel excludes entries embedded with
// the named model, used to probe for stale embedding spaces.
type Filter struct {
	Owner      string
	DocumentID string
	Model      string
	NotModel   string
}

// Match is a search hit, ordered best-first by Score (cosine similarity).
type Match struct {
	ChunkID    string
	DocumentID string
	Ordinal    int
	Score      float32
}

type Index interface {
	// Upsert replaces any existing entries with the same chunk id.
	Upsert(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error)
	// DeleteDocument removes every entry for the document. Deleting an
	// unindexed document is a no-op.
	DeleteDocument(ctx context.Context, owner string, documentID string) error
	// DeleteSuperseded removes entries for the document whose generation
	// differs from keep.
	DeleteSuperseded(ctx context.Context, owner string, documentID string, keep int64) error
}

const (
	typePGVector = "pgvector"
	typeQdrant   = "qdrant"
	typeMemory   = "memory"
)

// New builds the index named by typ. The db handle is only used by the
// pgvector backend.
func New(typ string, args interface{}, db *sql.DB) (Index, error) {
	switch typ {
	case typePGVector, "":
		if db == nil {
			return nil, fmt.Errorf("pgvector index requires a database handle")
		}
		return NewPGVector(db), nil
	case typeQdrant:
		return NewQdrant(args)
	case typeMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown vector index type: %s, err: %w", typ, apperrors.ErrInvalid)
	}
}

func checkSearchArgs(vector []float32, topK int, filter Filter) error {
	if len(vector) == 0 {
		return fmt.Errorf("empty query vector, err: %w", apperrors.ErrInvalid)
	}
	if topK < 1 {
		return fmt.Errorf("topK must be at least 1, err: %w", apperrors.ErrInvalid)
	}
	if filter.Owner == "" {
		return fmt.Errorf("owner filter is required, err: %w", apperrors.ErrInvalid)
	}
	return nil
}
