package websearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mirefly/ragdex/internal/model"
)

const defaultTavilyBaseURL = "https://api.tavily.com"

type tavilyConfig struct {
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url"`
}

type tavilyProvider struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

type tavilySearchRequest struct {
	APIKey     string `json:"api_key"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type tavilySearchResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func init() {
	Register("tavily", createTavilyProvider)
}

func createTavilyProvider(args interface{}) (Provider, error) {
	cfg := &tavilyConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("tavily api key is required")
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultTavilyBaseURL
	}
	return &tavilyProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (p *tavilyProvider) Name() string {
	return "tavily"
}

func (p *tavilyProvider) Search(ctx context.Context, query string, maxResults int) ([]model.WebSnippet, error) {
	if maxResults < 1 {
		maxResults = 3
	}
	body, err := json.Marshal(tavilySearchRequest{
		APIKey:     p.apiKey,
		Query:      query,
		MaxResults: maxResults,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("tavily search failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	var parsed tavilySearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse tavily response: %w", err)
	}
	snippets := make([]model.WebSnippet, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		excerpt := strings.TrimSpace(r.Content)
		if excerpt == "" {
			continue
		}
		snippets = append(snippets, model.WebSnippet{
			Title:   strings.TrimSpace(r.Title),
			URL:     r.URL,
			Excerpt: excerpt,
		})
	}
	if len(snippets) > maxResults {
		snippets = snippets[:maxResults]
	}
	return snippets, nil
}
