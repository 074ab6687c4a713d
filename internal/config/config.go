// Package config provides configuration loading and structs for the supportkb retrieval core.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Embedding provider identifiers accepted in embedding.provider.
const (
	ProviderHashing = "hashing"
	ProviderMock    = "mock"
	ProviderONNX    = "onnx"
	ProviderOpenAI  = "openai"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Corpus    CorpusConfig    `yaml:"corpus"`
	Store     StoreConfig     `yaml:"store"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Server    ServerConfig    `yaml:"server"`
	Watch     WatchConfig     `yaml:"watch"`
}

// CorpusConfig locates the reference documents.
type CorpusConfig struct {
	Directory  string   `yaml:"directory"`
	Extensions []string `yaml:"extensions"`
	Recursive  *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to walk subdirectories; defaults to false when unset.
func (c *CorpusConfig) RecursiveOrDefault() bool {
	if c.Recursive != nil {
		return *c.Recursive
	}
	return false
}

// StoreConfig holds the persisted vector store location and rebuild behavior.
type StoreConfig struct {
	Path    string    `yaml:"path"`
	Rebuild bool      `yaml:"rebuild"` // force a rebuild on startup even when a store exists
	ANN     ANNConfig `yaml:"ann"`
}

// ANNConfig configures an optional external approximate-nearest-neighbor candidate index.
type ANNConfig struct {
	Backend    string `yaml:"backend"` // "" (exact scan only) or "qdrant"
	Address    string `yaml:"address"`
	Collection string `yaml:"collection"`
	Candidates int    `yaml:"candidates"` // candidates fetched per query before exact re-scoring
}

// EmbeddingConfig selects and tunes the embedding provider.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Dimensions int    `yaml:"dimensions"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`
	// ONNX
	ModelPath  string `yaml:"model_path"`
	VocabPath  string `yaml:"vocab_path"` // WordPiece vocab.txt shipped with the model
	MaxTokens  int    `yaml:"max_tokens"`
	OutputName string `yaml:"output_name"`
	Pooling    string `yaml:"pooling"` // "mean" over last_hidden_state, or "none" for pooled outputs
	// OpenAI
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"-"`
}

// ChunkingConfig controls how documents are split. Units are characters (runes).
type ChunkingConfig struct {
	Size    int `yaml:"size"`
	Overlap int `yaml:"overlap"`
}

// RetrievalConfig holds query defaults.
type RetrievalConfig struct {
	DefaultK int      `yaml:"default_k"`
	MaxK     int      `yaml:"max_k"`
	MinScore *float64 `yaml:"min_score"`
}

// MinScoreOrDefault returns the relevance threshold; defaults to DefaultMinScore when unset.
// An explicit 0 disables filtering.
func (r *RetrievalConfig) MinScoreOrDefault() float64 {
	if r.MinScore != nil {
		return *r.MinScore
	}
	return DefaultMinScore
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string  `yaml:"host"`
	Port           int     `yaml:"port"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RateLimit      float64 `yaml:"rate_limit"` // requests per second; 0 disables limiting
	RateBurst      int     `yaml:"rate_burst"`
}

// WatchConfig enables rebuilding when the corpus changes while serving.
type WatchConfig struct {
	Enabled        bool `yaml:"enabled"`
	DebounceMillis int  `yaml:"debounce_ms"`
}

// Load reads and parses the config file at path, applies environment overrides
// and defaults, and expands paths relative to the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}
	cfg.expandPaths(filepath.Dir(absPath))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a configuration built only from environment overrides and defaults,
// with relative paths resolved against baseDir.
func Default(baseDir string) (*Config, error) {
	var cfg Config
	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)
	cfg.expandPaths(baseDir)
	if err := cfg.Validate(); err != nil {
		return nil, err
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

// Validate reports settings that would make indexing or retrieval misbehave.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case ProviderHashing, ProviderMock, ProviderONNX, ProviderOpenAI:
	default:
		return fmt.Errorf("unknown embedding provider %q (supported: hashing, mock, onnx, openai)", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Chunking.Size <= 0 {
		return fmt.Errorf("chunking size must be positive, got %d", c.Chunking.Size)
	}
	if c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.Size {
		return fmt.Errorf("chunking overlap must be in [0, %d), got %d", c.Chunking.Size, c.Chunking.Overlap)
	}
	if c.Retrieval.DefaultK < 1 {
		return fmt.Errorf("retrieval default_k must be at least 1, got %d", c.Retrieval.DefaultK)
	}
	if c.Retrieval.MaxK < c.Retrieval.DefaultK {
		return fmt.Errorf("retrieval max_k (%d) must not be below default_k (%d)", c.Retrieval.MaxK, c.Retrieval.DefaultK)
	}
	switch c.Embedding.Pooling {
	case "mean", "none":
	default:
		return fmt.Errorf("unknown pooling %q (supported: mean, none)", c.Embedding.Pooling)
	}
	switch c.Store.ANN.Backend {
	case "", "qdrant":
	default:
		return fmt.Errorf("unknown ann backend %q (supported: qdrant)", c.Store.ANN.Backend)
	}
	return nil
}

func (c *Config) expandPaths(baseDir string) {
	c.Corpus.Directory = expandPath(c.Corpus.Directory, baseDir)
	c.Store.Path = expandPath(c.Store.Path, baseDir)
	c.Embedding.ModelPath = expandPath(c.Embedding.ModelPath, baseDir)
	c.Embedding.VocabPath = expandPath(c.Embedding.VocabPath, baseDir)
}

// expandPath converts a path to absolute. "~/" is the home directory; other relative
// paths are relative to baseDir.
func expandPath(path string, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return filepath.Join(baseDir, path)
}
