package vectorstore

import (
	"fmt"

	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
)

// Open creates the backend named by cfg.Backend. The caller still has to call EnsureCollection.
func Open(cfg *config.VectorStoreConfig, logger *zap.Logger) (Store, error) {
	logger = utils.OrNop(logger)
	switch cfg.Backend {
	case "memory":
		s, err := NewMemoryStore(cfg.SnapshotPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open memory store: %w", err)
		}
		logger.Info("vector store opened", zap.String("backend", "memory"), zap.String("snapshot", cfg.SnapshotPath), zap.Int("points", s.Len()))
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(cfg.DatabasePath, cfg.Collection)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		logger.Info("vector store opened", zap.String("backend", "sqlite"), zap.String("path", cfg.DatabasePath), zap.String("collection", cfg.Collection))
		return s, nil
	case "qdrant":
		s, err := NewQdrantStore(QdrantConfig{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.ResolvedAPIKey(),
			Collection: cfg.Collection,
			Timeout:    cfg.Qdrant.Timeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open qdrant store: %w", err)
		}
		logger.Info("vector store opened", zap.String("backend", "qdrant"), zap.String("url", cfg.Qdrant.URL), zap.String("collection", cfg.Collection))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown vector store backend %q", cfg.Backend)
	}
}
