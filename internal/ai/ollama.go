package ai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultOllamaBaseURL = "http://localhost:11434"

type ollamaConfig struct {
	BaseURL string `json:"base_url"`
}

type ollamaProvider struct {
	baseURL string
	client  *http.Client
}

type ollamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) post(ctx context.Context, path string, payload interface{}) (*http.Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama %s failed: %s: %s", path, resp.Status, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

func (p *ollamaProvider) Generate(ctx context.Context, model string, prompt string) (string, error) {
	resp, err := p.post(ctx, "/api/generate", ollamaGenerateRequest{Model: model, Prompt: prompt})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	var parsed ollamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("parse ollama response: %w", err)
	}
	return strings.TrimSpace(parsed.Response), nil
}

func (p *ollamaProvider) GenerateStream(ctx context.Context, model string, prompt string) (<-chan StreamEvent, error) {
	resp, err := p.post(ctx, "/api/generate", ollamaGenerateRequest{Model: model, Prompt: prompt, Stream: true})
	if err != nil {
		return nil, err
	}
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		// ollama streams newline-delimited json objects
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			var chunk ollamaGenerateResponse
			if err := json.Unmarshal([]byte(line), &chunk); err != nil {
				out <- StreamEvent{Err: fmt.Errorf("parse ollama stream chunk: %w", err)}
				return
			}
			if chunk.Response != "" {
				select {
				case out <- StreamEvent{Delta: chunk.Response}:
				case <-ctx.Done():
					out <- StreamEvent{Err: ctx.Err()}
					return
				}
			}
			if chunk.Done {
				out <- StreamEvent{Done: true}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			out <- StreamEvent{Err: err}
			return
		}
		out <- StreamEvent{Err: io.ErrUnexpectedEOF}
	}()
	return out, nil
}

func (p *ollamaProvider) Embed(ctx context.Context, model string, text string, taskType string) ([]float32, error) {
	_ = taskType
	resp, err := p.post(ctx, "/api/embeddings", ollamaEmbedRequest{Model: model, Prompt: text})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	var parsed ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("parse ollama embedding: %w", err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding")
	}
	return parsed.Embedding, nil
}

func (p *ollamaProvider) EmbedBatch(ctx context.Context, model string, texts []string, taskType string) ([][]float32, error) {
	// the embeddings endpoint takes one prompt at a time
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vec, err := p.Embed(ctx, model, text, taskType)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}

func (p *ollamaProvider) Available(ctx context.Context) bool {
	probe, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(probe, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func createOllamaFactory(args interface{}) (IProvider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}
	return &ollamaProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Minute},
	}, nil
}

func init() {
	Register("ollama", createOllamaFactory)
}
