package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/xxxsen/common/logger"
)

type Config struct {
	Port        int              `json:"port"`
	JWTSecret   string           `json:"jwt_secret"`
	JWTTTLHours int              `json:"jwt_ttl_hours"`
	LogConfig   logger.LogConfig `json:"log_config"`
	Database    DatabaseConfig   `json:"database"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	AI          AIConfig         `json:"ai"`
	WebSearch   WebSearchConfig  `json:"web_search"`
	Retrieval   RetrievalConfig  `json:"retrieval"`
	Chunking    ChunkingConfig   `json:"chunking"`
	FileStore   FileStoreConfig  `json:"file_store"`
	CORSOrigins []string         `json:"cors_origins"`
	// SessionRetentionDays prunes idle chat sessions; 0 keeps them forever.
	SessionRetentionDays int `json:"session_retention_days"`
	EmbedCacheSize       int `json:"embed_cache_size"`
	EmbedCacheTTLMinutes int `json:"embed_cache_ttl_minutes"`
}

type DatabaseConfig struct {
	DSN      string `json:"dsn"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"db_name"`
	SSLMode  string `json:"ssl_mode"`
}

type VectorStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type AIConfig struct {
	Provider      string      `json:"provider"`
	Model         string      `json:"model"`
	EmbedModel    string      `json:"embed_model"`
	TimeoutSec    int         `json:"timeout_sec"`
	MaxInputChars int         `json:"max_input_chars"`
	Data          interface{} `json:"data"`
}

type WebSearchConfig struct {
	Provider   string      `json:"provider"`
	MaxResults int         `json:"max_results"`
	TimeoutMs  int         `json:"timeout_ms"`
	Data       interface{} `json:"data"`
}

type RetrievalConfig struct {
	TopK           int     `json:"top_k"`
	RelevanceFloor float32 `json:"relevance_floor"`
	ContextBudget  int     `json:"context_budget"`
	HistoryTurns   int     `json:"history_turns"`
}

type ChunkingConfig struct {
	MaxChunkSize int `json:"max_chunk_size"`
	Overlap      int `json:"overlap"`
}

type FileStoreConfig struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err := json.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Port == 0 {
		return nil, fmt.Errorf("port is required")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("jwt_secret is required")
	}
	if cfg.JWTTTLHours == 0 {
		cfg.JWTTTLHours = 72
	}
	if cfg.LogConfig.Level == "" {
		cfg.LogConfig.Level = "info"
	}
	if cfg.Database.DSN == "" && cfg.Database.Host == "" {
		return nil, fmt.Errorf("database.dsn or database.host is required")
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "pgvector"
	}
	if cfg.AI.Provider == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	if cfg.AI.Model == "" {
		return nil, fmt.Errorf("ai.model is required")
	}
	if cfg.AI.EmbedModel == "" {
		return nil, fmt.Errorf("ai.embed_model is required")
	}
	if cfg.AI.TimeoutSec == 0 {
		cfg.AI.TimeoutSec = 120
	}
	if cfg.WebSearch.MaxResults == 0 {
		cfg.WebSearch.MaxResults = 3
	}
	if cfg.WebSearch.TimeoutMs == 0 {
		cfg.WebSearch.TimeoutMs = 4000
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Retrieval.RelevanceFloor == 0 {
		cfg.Retrieval.RelevanceFloor = 0.35
	}
	if cfg.Retrieval.ContextBudget == 0 {
		cfg.Retrieval.ContextBudget = 6000
	}
	if cfg.Retrieval.HistoryTurns == 0 {
		cfg.Retrieval.HistoryTurns = 3
	}
	if cfg.Chunking.MaxChunkSize == 0 {
		cfg.Chunking.MaxChunkSize = 1000
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 100
	}
	if cfg.Chunking.Overlap >= cfg.Chunking.MaxChunkSize {
		return nil, fmt.Errorf("chunking.overlap must be smaller than chunking.max_chunk_size")
	}
	if cfg.FileStore.Type == "" {
		cfg.FileStore.Type = "local"
	}
	if cfg.EmbedCacheSize == 0 {
		cfg.EmbedCacheSize = 1024
	}
	if cfg.EmbedCacheTTLMinutes == 0 {
		cfg.EmbedCacheTTLMinutes = 60
	}
	return &cfg, nil
}
