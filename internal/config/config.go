// Package config provides configuration loading and structs for the shiryo server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug       bool              `yaml:"debug"`
	Server      ServerConfig      `yaml:"server"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Keyword     KeywordConfig     `yaml:"keyword"`
	Embedding   EmbeddingConfig   `yaml:"embedding"`
	Summary     SummaryConfig     `yaml:"summary"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Search      SearchConfig      `yaml:"search"`
	Watch       WatchConfig       `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// OwnerHeader names the request header carrying the caller identity set by the gateway.
	OwnerHeader  string        `yaml:"owner_header"`
	UploadDir    string        `yaml:"upload_dir"`
	MaxUploadMB  int64         `yaml:"max_upload_mb"`
	IngestionTTL time.Duration `yaml:"ingestion_ttl"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Backend      string       `yaml:"backend"` // memory, sqlite or qdrant
	Collection   string       `yaml:"collection"`
	DatabasePath string       `yaml:"database_path"`
	SnapshotPath string       `yaml:"snapshot_path"`
	Qdrant       QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds the Qdrant gRPC endpoint settings. An https url enables TLS.
type QdrantConfig struct {
	URL       string        `yaml:"url"`
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout"`
}

// ResolvedAPIKey returns the inline key or the value of APIKeyEnv.
func (q *QdrantConfig) ResolvedAPIKey() string {
	return resolveSecret(q.APIKey, q.APIKeyEnv)
}

// KeywordConfig controls the full-text mirror of chunk payloads.
type KeywordConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	IndexPath string `yaml:"index_path"`
	// TitleBoost multiplies matches in the filename; 1 disables the boost.
	TitleBoost float64 `yaml:"title_boost"`
	// Fuzziness is the edit distance for typo-tolerant matching; 0 disables it.
	Fuzziness int `yaml:"fuzziness"`
}

// EnabledOrDefault returns whether the keyword index is enabled; defaults to true when unset.
func (k *KeywordConfig) EnabledOrDefault() bool {
	if k.Enabled != nil {
		return *k.Enabled
	}
	return true
}

// EmbeddingConfig holds embedder settings.
type EmbeddingConfig struct {
	Provider          string        `yaml:"provider"` // openai, onnx or mock
	Model             string        `yaml:"model"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	APIKeyEnv         string        `yaml:"api_key_env"`
	Dimensions        int           `yaml:"dimensions"`
	MaxTokens         int           `yaml:"max_tokens"`
	ModelPath         string        `yaml:"model_path"`
	CacheSize         int           `yaml:"cache_size"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Timeout           time.Duration `yaml:"timeout"`
}

// ResolvedAPIKey returns the inline key or the value of APIKeyEnv.
func (e *EmbeddingConfig) ResolvedAPIKey() string {
	return resolveSecret(e.APIKey, e.APIKeyEnv)
}

// SummaryConfig configures chunk summary generation.
type SummaryConfig struct {
	Provider     string        `yaml:"provider"` // none, llm or extractive
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	APIKey       string        `yaml:"api_key"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	MaxChars     int           `yaml:"max_chars"`
	MaxSentences int           `yaml:"max_sentences"`
	Timeout      time.Duration `yaml:"timeout"`
}

// ResolvedAPIKey returns the inline key or the value of APIKeyEnv.
func (s *SummaryConfig) ResolvedAPIKey() string {
	return resolveSecret(s.APIKey, s.APIKeyEnv)
}

// ChunkingConfig holds the chunk boundary settings for tabular documents.
type ChunkingConfig struct {
	RowThreshold   int      `yaml:"row_threshold"`
	SummaryColumns []string `yaml:"summary_columns"`
}

// SearchConfig holds search defaults.
type SearchConfig struct {
	DefaultLimit int    `yaml:"default_limit"`
	MaxLimit     int    `yaml:"max_limit"`
	DefaultMode  string `yaml:"default_mode"`
}

// WatchConfig holds inbox watch settings. Each directory contains one subdirectory per owner.
type WatchConfig struct {
	Directories   []string `yaml:"directories"`
	Extensions    []string `yaml:"extensions"`
	DefaultPublic bool     `yaml:"default_public"`
}

// Load reads and parses the config file at path, loads an optional .env next to it,
// expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	ApplyDefaults(&cfg)

	cfg.Server.UploadDir = expandPath(cfg.Server.UploadDir, configDir)
	cfg.VectorStore.DatabasePath = expandPath(cfg.VectorStore.DatabasePath, configDir)
	cfg.VectorStore.SnapshotPath = expandPath(cfg.VectorStore.SnapshotPath, configDir)
	cfg.Keyword.IndexPath = expandPath(cfg.Keyword.IndexPath, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// loadDotEnv loads KEY=value pairs from path into the environment without overriding
// variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}
	return nil
}

func resolveSecret(inline, envName string) string {
	if inline != "" {
		return inline
	}
	if envName == "" {
		return ""
	}
	return os.Getenv(envName)
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
