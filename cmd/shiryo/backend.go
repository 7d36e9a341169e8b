package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shiryo/internal/cli"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/indexer"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
)

// backend is what the data commands run against: a remote server or the local stores.
type backend interface {
	Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error)
	GetPages(ctx context.Context, q *models.PageQuery) ([]map[string]any, error)
	ListDocuments(ctx context.Context) ([]models.DocumentSummary, error)
	UpdateVisibility(ctx context.Context, filename string, isPublic bool) (int, error)
	DeleteDocument(ctx context.Context, filename string) (int, error)
	Ingest(ctx context.Context, path string, isPublic bool, onUpdate func(progress.Snapshot)) (progress.Snapshot, error)
	Status(ctx context.Context) (*cli.Status, error)
	Close()
}

// openBackend returns a remote backend when --server is set, otherwise it opens the stores
// named by the config.
func (o *globalOptions) openBackend(ctx context.Context) (backend, error) {
	if o.serverURL != "" {
		return &remoteBackend{client: o.remoteClient()}, nil
	}
	cfg, _, logger, err := o.setup()
	if err != nil {
		return nil, err
	}
	c, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return &localBackend{components: c, cfg: cfg, owner: o.owner, logger: logger}, nil
}

// remoteClient returns a client for --server. The owner header follows the config when one
// can be loaded.
func (o *globalOptions) remoteClient() *cli.Client {
	client := cli.NewClient(strings.TrimRight(o.serverURL, "/"), o.owner)
	if cfg, _, err := loadConfig(o.configPath); err == nil {
		client.OwnerHeader = cfg.Server.OwnerHeader
	}
	return client
}

type remoteBackend struct {
	client *cli.Client
}

func (b *remoteBackend) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	return b.client.Search(ctx, query)
}

func (b *remoteBackend) GetPages(ctx context.Context, q *models.PageQuery) ([]map[string]any, error) {
	return b.client.GetPages(ctx, q)
}

func (b *remoteBackend) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	return b.client.ListDocuments(ctx)
}

func (b *remoteBackend) UpdateVisibility(ctx context.Context, filename string, isPublic bool) (int, error) {
	return b.client.UpdateVisibility(ctx, filename, isPublic)
}

func (b *remoteBackend) DeleteDocument(ctx context.Context, filename string) (int, error) {
	return b.client.DeleteDocument(ctx, filename)
}

func (b *remoteBackend) Ingest(ctx context.Context, path string, isPublic bool, onUpdate func(progress.Snapshot)) (progress.Snapshot, error) {
	snap, err := b.client.Ingest(ctx, path, isPublic)
	if err != nil {
		return progress.Snapshot{}, err
	}
	return b.client.WaitIngestion(ctx, snap.RunID, onUpdate)
}

func (b *remoteBackend) Status(ctx context.Context) (*cli.Status, error) {
	return b.client.Status(ctx)
}

func (b *remoteBackend) Close() {}

type localBackend struct {
	components *Components
	cfg        *config.Config
	owner      string
	logger     *zap.Logger
}

func (b *localBackend) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	query.Owner = b.owner
	return b.components.Engine.Search(ctx, query)
}

func (b *localBackend) GetPages(ctx context.Context, q *models.PageQuery) ([]map[string]any, error) {
	q.Owner = b.owner
	return b.components.Engine.GetPages(ctx, q)
}

func (b *localBackend) ListDocuments(ctx context.Context) ([]models.DocumentSummary, error) {
	return b.components.Engine.ListDocuments(ctx, b.owner)
}

func (b *localBackend) UpdateVisibility(ctx context.Context, filename string, isPublic bool) (int, error) {
	return b.components.Indexer.UpdateVisibility(ctx, filename, b.owner, isPublic)
}

func (b *localBackend) DeleteDocument(ctx context.Context, filename string) (int, error) {
	return b.components.Indexer.DeleteDocument(ctx, filename, b.owner)
}

// Ingest runs the ingestion in-process and reports every tracker change to onUpdate.
func (b *localBackend) Ingest(ctx context.Context, path string, isPublic bool, onUpdate func(progress.Snapshot)) (progress.Snapshot, error) {
	t, err := b.components.Indexer.Start(ctx, indexer.Request{
		Path:     path,
		Filename: filepath.Base(path),
		Owner:    b.owner,
		IsPublic: isPublic,
	})
	if err != nil {
		return progress.Snapshot{}, err
	}
	for {
		snap, changed := t.Watch()
		if onUpdate != nil {
			onUpdate(snap)
		}
		if snap.Stage.Terminal() {
			return snap, nil
		}
		select {
		case <-ctx.Done():
			return snap, ctx.Err()
		case <-changed:
		}
	}
}

func (b *localBackend) Status(ctx context.Context) (*cli.Status, error) {
	points, documents, err := b.components.Engine.Stats(ctx)
	if err != nil {
		return nil, err
	}
	s := &cli.Status{Documents: documents, Chunks: points, ActiveIngestions: b.components.Registry.Active()}
	if paths := b.components.DataPaths(b.cfg); len(paths) > 0 {
		if n, err := utils.DiskUsageBytes(paths...); err == nil {
			s.DiskUsageBytes = &n
		} else {
			b.logger.Debug("disk usage unavailable", zap.Error(err))
		}
	}
	return s, nil
}

func (b *localBackend) Close() {
	b.components.Close()
	_ = b.logger.Sync()
}

// requireOwner rejects commands that mutate data without an identity.
func (o *globalOptions) requireOwner() error {
	if strings.TrimSpace(o.owner) == "" {
		return fmt.Errorf("%w: --owner or SHIRYO_OWNER is required", models.ErrInvalidInput)
	}
	return nil
}
