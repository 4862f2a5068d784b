package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/mirefly/ragdex/internal/ai"
	"github.com/mirefly/ragdex/internal/config"
	"github.com/mirefly/ragdex/internal/model"
	appErr "github.com/mirefly/ragdex/internal/pkg/errors"
	"github.com/mirefly/ragdex/internal/vectorindex"
	"github.com/mirefly/ragdex/internal/websearch"
)

const (
	maxTopK        = 50
	queryTaskType  = "retrieval_query"
	maxQueryLength = 4096
)

type RetrievalService struct {
	embedder ai.IEmbedder
	index    vectorindex.Index
	chunks   ChunkStore
	web      websearch.Provider
	cfg      config.RetrievalConfig
	webCfg   config.WebSearchConfig
}

func NewRetrievalService(embedder ai.IEmbedder, index vectorindex.Index, chunks ChunkStore, web websearch.Provider, cfg config.RetrievalConfig, webCfg config.WebSearchConfig) *RetrievalService {
	return &RetrievalService{
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		web:      web,
		cfg:      cfg,
		webCfg:   webCfg,
	}
}

// Retrieve finds the chunks most similar to the query, merged with live web
// snippets when a web provider is configured and the caller left webSearch
// on. Strong local hits come first, then web snippets, then locals below the
// relevance floor. A failing or slow web search degrades to local-only
// results.
func (s *RetrievalService) Retrieve(ctx context.Context, owner, query string, topK int, webSearch bool) (*model.RetrievalResult, error) {
	query = strings.TrimSpace(query)
	if owner == "" {
		return nil, fmt.Errorf("owner is required, err: %w", appErr.ErrInvalid)
	}
	if query == "" {
		return nil, fmt.Errorf("query is required, err: %w", appErr.ErrInvalid)
	}
	if len(query) > maxQueryLength {
		return nil, fmt.Errorf("query exceeds %d bytes, err: %w", maxQueryLength, appErr.ErrInvalid)
	}
	if topK <= 0 {
		topK = s.cfg.TopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	webCh := s.startWebSearch(ctx, query, webSearch)

	vector, err := s.embedder.Embed(ctx, query, queryTaskType)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	matches, err := s.index.Search(ctx, vector, topK, vectorindex.Filter{
		Owner: owner,
		Model: s.embedder.ModelName(),
	})
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}
	stale := s.hasOtherModelEntries(ctx, owner, vector)
	if stale && len(matches) == 0 {
		return nil, appErr.ErrModelMismatch
	}
	local, err := s.hydrate(ctx, owner, matches)
	if err != nil {
		return nil, err
	}

	var web []model.WebSnippet
	if webCh != nil {
		web = <-webCh
	}
	result := mergeResults(local, web, s.cfg.RelevanceFloor)
	result.StaleExcluded = stale
	return result, nil
}

// startWebSearch fires the web lookup concurrently with embedding and index
// search. The channel always yields exactly once; failures yield nil.
func (s *RetrievalService) startWebSearch(ctx context.Context, query string, enabled bool) <-chan []model.WebSnippet {
	if !enabled || s.web == nil {
		return nil
	}
	out := make(chan []model.WebSnippet, 1)
	timeout := time.Duration(s.webCfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	go func() {
		defer close(out)
		wctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		snippets, err := s.web.Search(wctx, query, s.webCfg.MaxResults)
		if err != nil {
			logutil.GetLogger(ctx).Warn("web search degraded", zap.String("provider", s.web.Name()), zap.Error(err))
			out <- nil
			return
		}
		out <- snippets
	}()
	return out
}

// hasOtherModelEntries reports whether the owner has indexed content under a
// different embedding model. Such entries are invisible to the model-scoped
// search and their documents need re-ingestion; callers flag them rather
// than dropping them silently. Probe failures count as no stale entries.
func (s *RetrievalService) hasOtherModelEntries(ctx context.Context, owner string, vector []float32) bool {
	matches, err := s.index.Search(ctx, vector, 1, vectorindex.Filter{
		Owner:    owner,
		NotModel: s.embedder.ModelName(),
	})
	if err != nil {
		logutil.GetLogger(ctx).Warn("stale model probe failed", zap.Error(err))
		return false
	}
	return len(matches) > 0
}

// hydrate loads chunk rows for the matches. Hits whose chunk row vanished
// between search and load are silently dropped.
func (s *RetrievalService) hydrate(ctx context.Context, owner string, matches []vectorindex.Match) ([]model.RetrievedChunk, error) {
	if len(matches) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ChunkID)
	}
	rows, err := s.chunks.ListByIDs(ctx, owner, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Chunk, len(rows))
	for _, c := range rows {
		byID[c.ID] = c
	}
	result := make([]model.RetrievedChunk, 0, len(matches))
	for _, m := range matches {
		c, ok := byID[m.ChunkID]
		if !ok {
			continue
		}
		result = append(result, model.RetrievedChunk{Chunk: c, Score: m.Score})
	}
	return result, nil
}

func mergeResults(local []model.RetrievedChunk, web []model.WebSnippet, floor float32) *model.RetrievalResult {
	result := &model.RetrievalResult{
		Local: local,
		Web:   web,
		Order: make([]string, 0, len(local)+len(web)),
	}
	for i, rc := range local {
		if rc.Score >= floor {
			result.Order = append(result.Order, fmt.Sprintf("local:%d", i))
		}
	}
	for i := range web {
		result.Order = append(result.Order, fmt.Sprintf("web:%d", i))
	}
	for i, rc := range local {
		if rc.Score < floor {
			result.Order = append(result.Order, fmt.Sprintf("local:%d", i))
		}
	}
	return result
}
