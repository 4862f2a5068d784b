package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	apperrors "github.com/mirefly/ragdex/internal/pkg/errors"
)

type qdrantConfig struct {
	URL        string `json:"url"`
	APIKey     string `json:"api_key"`
	Collection string `json:"collection"`
	Dimension  int    `json:"dimension"`
	TimeoutSec int    `json:"timeout_sec"`
}

// qdrantIndex is a minimal REST client to Qdrant. It assumes cosine
// distance and creates the collection on first use if missing.
type qdrantIndex struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

func NewQdrant(args interface{}) (Index, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, err
	}
	cfg := &qdrantConfig{}
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, err
	}
	if cfg.URL == "" || cfg.Collection == "" {
		return nil, fmt.Errorf("qdrant url and collection are required, err: %w", apperrors.ErrInvalid)
	}
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &qdrantIndex{
		url:        strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

func (q *qdrantIndex) ensureCollection(ctx context.Context, dimension int) error {
	body := map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// 200 if created, 409 if it already exists
	err := q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s", q.collection), body, nil)
	if err != nil && !strings.Contains(err.Error(), "409") {
		return err
	}
	return nil
}

func (q *qdrantIndex) Upsert(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	dim := q.dimension
	if dim == 0 {
		dim = len(entries[0].Vector)
	}
	if err := q.ensureCollection(ctx, dim); err != nil {
		return err
	}
	points := make([]map[string]interface{}, 0, len(entries))
	for _, e := range entries {
		points = append(points, map[string]interface{}{
			"id":     pointID(e.ChunkID),
			"vector": e.Vector,
			"payload": map[string]interface{}{
				"chunk_id":    e.ChunkID,
				"document_id": e.DocumentID,
				"owner":       e.Owner,
				"model":       e.Model,
				"ordinal":     e.Ordinal,
				"generation":  e.Generation,
				"ingested_at": e.IngestedAt,
			},
		})
	}
	body := map[string]interface{}{"points": points}
	return q.do(ctx, http.MethodPut, fmt.Sprintf("/collections/%s/points?wait=true", q.collection), body, nil)
}

func (q *qdrantIndex) Search(ctx context.Context, vector []float32, topK int, filter Filter) ([]Match, error) {
	if err := checkSearchArgs(vector, topK, filter); err != nil {
		return nil, err
	}
	req := map[string]interface{}{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter":       qdrantFilter(filter),
	}
	var resp struct {
		Result []struct {
			Score   float32                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		} `json:"result"`
	}
	if err := q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/search", q.collection), req, &resp); err != nil {
		return nil, err
	}
	type hit struct {
		match      Match
		ingestedAt int64
	}
	hits := make([]hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		h := hit{match: Match{Score: r.Score}}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			h.match.ChunkID = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			h.match.DocumentID = v
		}
		if v, ok := r.Payload["ordinal"].(float64); ok {
			h.match.Ordinal = int(v)
		}
		if v, ok := r.Payload["ingested_at"].(float64); ok {
			h.ingestedAt = int64(v)
		}
		hits = append(hits, h)
	}
	// qdrant orders by score only; settle ties deterministically
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].match.Score != hits[j].match.Score {
			return hits[i].match.Score > hits[j].match.Score
		}
		if hits[i].ingestedAt != hits[j].ingestedAt {
			return hits[i].ingestedAt > hits[j].ingestedAt
		}
		return hits[i].match.Ordinal < hits[j].match.Ordinal
	})
	matches := make([]Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, h.match)
	}
	return matches, nil
}

func (q *qdrantIndex) DeleteDocument(ctx context.Context, owner string, documentID string) error {
	body := map[string]interface{}{
		"filter": qdrantFilter(Filter{Owner: owner, DocumentID: documentID}),
	}
	return q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection), body, nil)
}

func (q *qdrantIndex) DeleteSuperseded(ctx context.Context, owner string, documentID string, keep int64) error {
	f := qdrantFilter(Filter{Owner: owner, DocumentID: documentID})
	f["must_not"] = []map[string]interface{}{
		{"key": "generation", "match": map[string]interface{}{"value": keep}},
	}
	body := map[string]interface{}{"filter": f}
	return q.do(ctx, http.MethodPost, fmt.Sprintf("/collections/%s/points/delete?wait=true", q.collection), body, nil)
}

func qdrantFilter(filter Filter) map[string]interface{} {
	must := []map[string]interface{}{
		{"key": "owner", "match": map[string]interface{}{"value": filter.Owner}},
	}
	if filter.DocumentID != "" {
		must = append(must, map[string]interface{}{
			"key": "document_id", "match": map[string]interface{}{"value": filter.DocumentID},
		})
	}
	if filter.Model != "" {
		must = append(must, map[string]interface{}{
			"key": "model", "match": map[string]interface{}{"value": filter.Model},
		})
	}
	f := map[string]interface{}{"must": must}
	if filter.NotModel != "" {
		f["must_not"] = []map[string]interface{}{
			{"key": "model", "match": map[string]interface{}{"value": filter.NotModel}},
		}
	}
	return f
}

// pointID turns a 32-char hex chunk id into the UUID form qdrant
// accepts as a point id. Other shapes pass through unchanged.
func pointID(chunkID string) string {
	if len(chunkID) != 32 {
		return chunkID
	}
	return fmt.Sprintf("%s-%s-%s-%s-%s",
		chunkID[0:8], chunkID[8:12], chunkID[12:16], chunkID[16:20], chunkID[20:32])
}

func (q *qdrantIndex) do(ctx context.Context, method string, path string, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, q.url+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant %s %s failed: %s: %s", method, path, resp.Status, strings.TrimSpace(string(raw)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
