package config

import (
	"os"
	"path/filepath"
	"strconv"
)

// DefaultMinScore is the cosine similarity a hit must exceed to count as relevant.
const DefaultMinScore = 0.5

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Corpus.Directory == "" {
		cfg.Corpus.Directory = "./support_docs"
	}
	if cfg.Corpus.Extensions == nil {
		cfg.Corpus.Extensions = []string{".txt", ".md"}
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "./data/knowledge.db"
	}
	if cfg.Store.ANN.Backend != "" {
		if cfg.Store.ANN.Address == "" {
			cfg.Store.ANN.Address = "localhost:6334"
		}
		if cfg.Store.ANN.Collection == "" {
			cfg.Store.ANN.Collection = "supportkb_chunks"
		}
		if cfg.Store.ANN.Candidates == 0 {
			cfg.Store.ANN.Candidates = 100
		}
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = ProviderHashing
	}
	if cfg.Embedding.Dimensions == 0 {
		if cfg.Embedding.Provider == ProviderOpenAI {
			cfg.Embedding.Dimensions = 1536
		} else {
			cfg.Embedding.Dimensions = 384
		}
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 32
	}
	if cfg.Embedding.Provider == ProviderONNX {
		if cfg.Embedding.ModelPath == "" {
			cfg.Embedding.ModelPath = "./models/all-MiniLM-L6-v2/model.onnx"
		}
		if cfg.Embedding.VocabPath == "" {
			cfg.Embedding.VocabPath = filepath.Join(filepath.Dir(cfg.Embedding.ModelPath), "vocab.txt")
		}
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.OutputName == "" {
		cfg.Embedding.OutputName = "last_hidden_state"
	}
	if cfg.Embedding.Pooling == "" {
		cfg.Embedding.Pooling = "mean"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "text-embedding-3-small"
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking.Size = 800
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 100
	}
	if cfg.Retrieval.DefaultK == 0 {
		cfg.Retrieval.DefaultK = 3
	}
	if cfg.Retrieval.MaxK == 0 {
		cfg.Retrieval.MaxK = 50
	}
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.Server.TimeoutSeconds == 0 {
		cfg.Server.TimeoutSeconds = 60
	}
	if cfg.Server.RateLimit > 0 && cfg.Server.RateBurst == 0 {
		cfg.Server.RateBurst = int(cfg.Server.RateLimit) + 1
	}
	if cfg.Watch.DebounceMillis == 0 {
		cfg.Watch.DebounceMillis = 400
	}
}

// ApplyEnv overrides cfg with environment variables, when set.
func ApplyEnv(cfg *Config) {
	cfg.Corpus.Directory = getEnv("SUPPORTKB_CORPUS_DIR", cfg.Corpus.Directory)
	cfg.Store.Path = getEnv("SUPPORTKB_STORE_PATH", cfg.Store.Path)
	cfg.Embedding.Provider = getEnv("SUPPORTKB_EMBEDDING_PROVIDER", cfg.Embedding.Provider)
	cfg.Embedding.ModelPath = getEnv("SUPPORTKB_MODEL_PATH", cfg.Embedding.ModelPath)
	cfg.Embedding.VocabPath = getEnv("SUPPORTKB_VOCAB_PATH", cfg.Embedding.VocabPath)
	cfg.Embedding.BaseURL = getEnv("OPENAI_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.APIKey = getEnv("OPENAI_API_KEY", cfg.Embedding.APIKey)
	if v := os.Getenv("SUPPORTKB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SUPPORTKB_DEBUG"); v != "" {
		if debug, err := strconv.ParseBool(v); err == nil {
			cfg.Debug = debug
		}
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
