package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/shiryo/internal/chunk"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/embedding"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/indexer"
	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/hyperjump/shiryo/internal/search"
	"github.com/hyperjump/shiryo/internal/summarize"
	"github.com/hyperjump/shiryo/internal/vectorstore"
	"go.uber.org/zap"
)

// Components holds the stores and services built from a config. Close releases them.
type Components struct {
	Store    vectorstore.Store
	Embedder embedding.Embedder
	Keyword  keyword.Index
	Registry *progress.Registry
	Indexer  *indexer.Indexer
	Engine   *search.Engine
}

// Close releases the keyword index, the embedder and the vector store.
func (c *Components) Close() {
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// DataPaths returns the on-disk locations whose size the status endpoint reports.
func (c *Components) DataPaths(cfg *config.Config) []string {
	var paths []string
	switch cfg.VectorStore.Backend {
	case "sqlite":
		paths = append(paths, cfg.VectorStore.DatabasePath)
	case "memory":
		if cfg.VectorStore.SnapshotPath != "" {
			paths = append(paths, cfg.VectorStore.SnapshotPath)
		}
	}
	if c.Keyword != nil && cfg.Keyword.IndexPath != "" {
		paths = append(paths, cfg.Keyword.IndexPath)
	}
	return paths
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	store, err := vectorstore.Open(&cfg.VectorStore, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	c.Store = store

	embedder, err := embedding.New(&cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	c.Embedder = embedder

	if err := store.EnsureCollection(ctx, embedder.Dimensions()); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize collection: %w", err)
	}

	summarizer, err := summarize.New(&cfg.Summary)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to create summarizer: %w", err)
	}
	ex := extract.NewExtractor()
	resolver := chunk.NewResolver(ex, ex,
		chunk.WithSummarizer(summarizer),
		chunk.WithSummaryLength(cfg.Summary.MaxChars),
		chunk.WithRowThreshold(cfg.Chunking.RowThreshold),
		chunk.WithSummaryColumns(cfg.Chunking.SummaryColumns),
		chunk.WithLogger(logger),
	)

	c.Registry = progress.NewRegistry(0, cfg.Server.IngestionTTL)
	indexerOpts := []indexer.IndexerOption{indexer.WithLogger(logger), indexer.WithRegistry(c.Registry)}
	engineOpts := []search.EngineOption{search.WithLogger(logger)}
	if cfg.Keyword.EnabledOrDefault() {
		kw, err := keyword.NewBleveIndex(cfg.Keyword.IndexPath)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to open keyword index: %w", err)
		}
		c.Keyword = kw
		indexerOpts = append(indexerOpts, indexer.WithKeywordIndex(kw))
		engineOpts = append(engineOpts, search.WithKeywordIndex(kw, &keyword.SearchOptions{
			TitleBoost: cfg.Keyword.TitleBoost,
			Fuzziness:  cfg.Keyword.Fuzziness,
		}))
	}

	c.Indexer = indexer.NewIndexer(store, embedder, resolver, indexerOpts...)
	c.Engine = search.NewEngine(store, embedder, &cfg.Search, engineOpts...)
	return c, nil
}
