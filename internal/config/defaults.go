package config

import "time"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.OwnerHeader == "" {
		cfg.Server.OwnerHeader = "X-Owner"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "/usr/local/var/shiryo/uploads"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 100
	}
	if cfg.Server.IngestionTTL == 0 {
		cfg.Server.IngestionTTL = time.Hour
	}
	if cfg.VectorStore.Backend == "" {
		cfg.VectorStore.Backend = "sqlite"
	}
	if cfg.VectorStore.Collection == "" {
		cfg.VectorStore.Collection = "documents"
	}
	if cfg.VectorStore.DatabasePath == "" {
		cfg.VectorStore.DatabasePath = "/usr/local/var/shiryo/data/db/points.db"
	}
	if cfg.VectorStore.Qdrant.URL == "" {
		cfg.VectorStore.Qdrant.URL = "http://localhost:6334"
	}
	if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
		cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
	}
	if cfg.VectorStore.Qdrant.Timeout == 0 {
		cfg.VectorStore.Qdrant.Timeout = 30 * time.Second
	}
	if cfg.Keyword.IndexPath == "" {
		cfg.Keyword.IndexPath = "/usr/local/var/shiryo/data/indices/bleve"
	}
	if cfg.Keyword.TitleBoost == 0 {
		cfg.Keyword.TitleBoost = 2.0
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 1536
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 60 * time.Second
	}
	if cfg.Summary.Provider == "" {
		cfg.Summary.Provider = "none"
	}
	if cfg.Summary.Model == "" {
		cfg.Summary.Model = "gpt-4o-mini"
	}
	if cfg.Summary.APIKeyEnv == "" {
		cfg.Summary.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Summary.MaxChars == 0 {
		cfg.Summary.MaxChars = 200
	}
	if cfg.Summary.MaxSentences == 0 {
		cfg.Summary.MaxSentences = 2
	}
	if cfg.Summary.Timeout == 0 {
		cfg.Summary.Timeout = 60 * time.Second
	}
	if cfg.Chunking.RowThreshold == 0 {
		cfg.Chunking.RowThreshold = 250
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.DefaultMode == "" {
		cfg.Search.DefaultMode = "dual"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".xlsx", ".csv", ".pptx", ".docx", ".odt", ".rtf", ".txt", ".md"}
	}
}
