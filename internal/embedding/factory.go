package embedding

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/TylerDurden17/support-agent/internal/config"
	"github.com/TylerDurden17/support-agent/pkg/utils"
)

// ONNXOptions configures an ONNXEmbedder.
type ONNXOptions struct {
	ModelPath   string
	VocabPath   string // empty falls back to SimpleTokenizer
	LibraryPath string // onnxruntime shared library; empty uses the platform default
	OutputName  string
	MeanPool    bool // true when the output is last_hidden_state [1, tokens, dims]
	Dimensions  int
	MaxTokens   int
}

// New constructs the embedder selected by cfg.Provider. Model-backed providers are
// wrapped in an LRU cache when cfg.CacheSize is positive. Loading may take seconds;
// callers are expected to do it once per process.
func New(cfg config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	logger = utils.OrNop(logger)
	start := time.Now()
	var (
		e      Embedder
		err    error
		cached bool
	)
	switch cfg.Provider {
	case config.ProviderHashing, "":
		e, err = NewHashingEmbedder(cfg.Dimensions)
	case config.ProviderMock:
		e = NewMockEmbedder(cfg.Dimensions)
	case config.ProviderONNX:
		e, err = NewONNXEmbedder(ONNXOptions{
			ModelPath:   cfg.ModelPath,
			VocabPath:   cfg.VocabPath,
			LibraryPath: os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"),
			OutputName:  cfg.OutputName,
			MeanPool:    cfg.Pooling == "mean",
			Dimensions:  cfg.Dimensions,
			MaxTokens:   cfg.MaxTokens,
		})
		cached = true
	case config.ProviderOpenAI:
		e, err = NewOpenAIEmbedder(OpenAIOptions{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		cached = true
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s embedder: %w", cfg.Provider, err)
	}
	if cached && cfg.CacheSize > 0 {
		e = NewCachedEmbedder(e, cfg.CacheSize)
	}
	logger.Info("embedding provider loaded",
		zap.String("provider", e.Name()),
		zap.Int("dimensions", e.Dimensions()),
		zap.Duration("took", time.Since(start)),
	)
	return e, nil
}
