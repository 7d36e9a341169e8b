package watcher

import (
	"context"
	"errors"

	"github.com/hyperjump/shiryo/internal/indexer"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
)

// Ingester is the part of the indexer the inbox drives.
type Ingester interface {
	Start(ctx context.Context, req indexer.Request) (*progress.Tracker, error)
	DeleteDocument(ctx context.Context, filename, owner string) (int, error)
}

// IndexerHandler ingests inbox files through an Ingester and deletes documents whose file
// was removed from the inbox.
type IndexerHandler struct {
	ingester      Ingester
	defaultPublic bool
	logger        *zap.Logger
}

// NewIndexerHandler returns a Handler that ingests new files with is_public set to
// defaultPublic.
func NewIndexerHandler(ingester Ingester, defaultPublic bool, logger *zap.Logger) *IndexerHandler {
	return &IndexerHandler{ingester: ingester, defaultPublic: defaultPublic, logger: utils.OrNop(logger)}
}

// Ingest starts an ingestion run for f and logs its outcome when it finishes.
func (h *IndexerHandler) Ingest(ctx context.Context, f File) {
	log := h.logger.With(zap.String("path", f.Path), zap.String("owner", f.Owner), zap.String("filename", f.Filename))
	t, err := h.ingester.Start(ctx, indexer.Request{
		Path:     f.Path,
		Filename: f.Filename,
		Owner:    f.Owner,
		IsPublic: h.defaultPublic,
	})
	if err != nil {
		if errors.Is(err, models.ErrUnsupportedType) {
			log.Debug("inbox file skipped", zap.Error(err))
			return
		}
		log.Warn("inbox ingest rejected", zap.Error(err))
		return
	}
	go func() {
		<-t.Done()
		if res, err := t.Result(); err != nil {
			log.Warn("inbox ingest failed", zap.String("run_id", t.ID()), zap.Error(err))
		} else {
			log.Info("inbox file ingested", zap.String("run_id", t.ID()), zap.Int("chunks", res.ProcessedChunks))
		}
	}()
}

// Remove deletes the document that f was ingested as.
func (h *IndexerHandler) Remove(ctx context.Context, f File) {
	n, err := h.ingester.DeleteDocument(ctx, f.Filename, f.Owner)
	if err != nil {
		h.logger.Warn("inbox delete failed", zap.String("filename", f.Filename), zap.String("owner", f.Owner), zap.Error(err))
		return
	}
	h.logger.Debug("inbox document removed", zap.String("filename", f.Filename), zap.String("owner", f.Owner), zap.Int("points", n))
}
