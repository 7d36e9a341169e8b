package embedding

import (
	"fmt"

	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
)

// New builds the embedder selected by cfg.Provider and wraps it in a CachedEmbedder.
func New(cfg *config.EmbeddingConfig, logger *zap.Logger) (Embedder, error) {
	logger = utils.OrNop(logger)

	var inner Embedder
	switch cfg.Provider {
	case "openai":
		e, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:            cfg.ResolvedAPIKey(),
			BaseURL:           cfg.BaseURL,
			Model:             cfg.Model,
			Dimensions:        cfg.Dimensions,
			RequestsPerSecond: cfg.RequestsPerSecond,
			Timeout:           cfg.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create openai embedder: %w", err)
		}
		inner = e
	case "onnx":
		e, err := NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, fmt.Errorf("failed to create onnx embedder: %w", err)
		}
		inner = e
	case "mock":
		logger.Warn("using mock embedder; search results carry no semantic meaning")
		inner = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}

	logger.Info("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("dimensions", inner.Dimensions()),
		zap.Int("cache_size", cfg.CacheSize),
	)
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}
