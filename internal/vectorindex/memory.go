package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"
)

// memoryIndex is a brute-force in-memory index. It is meant for tests
// and small single-node setups.
type memoryIndex struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemory() Index {
	return &memoryIndex{entries: make(map[string]Entry)}
}

func (m *memoryIndex) Upsert(ctx context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		vec := make([]float32, len(e.Vector))
		copy(vec, e.Vector)
		e.Vector = vec
		m.entries[e.ChunkID] = e
	}
	return nil
}

func (m *memoryIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := checkSearchArgs(vector, topK, filter); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	type scored struct {
		entry Entry
		score float32
	}
	candidates := make([]scored, 0, len(m.entries))
	for _, e := range m.entries {
		if e.Owner != filter.Owner {
			continue
		}
		if filter.DocumentID != "" && e.DocumentID != filter.DocumentID {
			continue
		}
		if filter.Model != "" && e.Model != filter.Model {
			continue
		}
		if filter.NotModel != "" && e.Model == filter.NotModel {
			continue
		}
		candidates = append(candidates, scored{entry: e, score: cosine(vector, e.Vector)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].entry.IngestedAt != candidates[j].entry.IngestedAt {
			return candidates[i].entry.IngestedAt > candidates[j].entry.IngestedAt
		}
		return candidates[i].entry.Ordinal < candidates[j].entry.Ordinal
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	matches := make([]Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, Match{
			ChunkID:    c.entry.ChunkID,
			DocumentID: c.entry.DocumentID,
			Ordinal:    c.entry.Ordinal,
			Score:      c.score,
		})
	}
	return matches, nil
}

func (m *memoryIndex) DeleteDocument(ctx context.Context, owner string, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.Owner == owner && e.DocumentID == documentID {
			delete(m.entries, id)
		}
	}
	return nil
}

func (m *memoryIndex) DeleteSuperseded(ctx context.Context, owner string, documentID string, keep int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.entries {
		if e.Owner == owner && e.DocumentID == documentID && e.Generation != keep {
			delete(m.entries, id)
		}
	}
	return nil
}

func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
