package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mirefly/ragdex/internal/model"
)

// Provider performs a live web search. Implementations must respect the
// context deadline; callers treat any error as a soft failure.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]model.WebSnippet, error)
}

type Factory func(args interface{}) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(name string, args interface{}) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("web_search.provider is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported web search provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("web search config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode web search config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode web search config: %w", err)
	}
	return nil
}
