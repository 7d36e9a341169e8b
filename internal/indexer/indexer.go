// Package indexer ingests documents into the vector store and keeps the keyword mirror in sync.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/hyperjump/shiryo/internal/chunk"
	"github.com/hyperjump/shiryo/internal/embedding"
	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/pointid"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/hyperjump/shiryo/internal/vectorstore"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
)

// Indexer turns documents into chunk points. Runs for different (filename, owner) pairs may
// execute concurrently; two runs for the same pair race and the last writer wins.
type Indexer struct {
	store        vectorstore.Store
	embedder     embedding.Embedder
	resolver     *chunk.Resolver
	keywordIndex keyword.Index
	registry     *progress.Registry
	logger       *zap.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex mirrors every chunk into a full-text index.
func WithKeywordIndex(k keyword.Index) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// WithRegistry registers trackers created by Start so they can be polled by run id.
func WithRegistry(r *progress.Registry) IndexerOption {
	return func(idx *Indexer) { idx.registry = r }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(store vectorstore.Store, embedder embedding.Embedder, resolver *chunk.Resolver, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		store:    store,
		embedder: embedder,
		resolver: resolver,
	}
	for _, opt := range opts {
		opt(idx)
	}
	idx.logger = utils.OrNop(idx.logger)
	return idx
}

// Request describes one document to ingest.
type Request struct {
	// Path is the file to parse. Its extension selects the chunk producer.
	Path string
	// Filename is the document name stored with each chunk; defaults to the base name of Path.
	Filename string
	Owner    string
	IsPublic bool
}

// prepare validates req and resolves its producer. Every error wraps ErrInvalidInput or
// ErrUnsupportedType and is returned before anything is written.
func (idx *Indexer) prepare(req *Request) (chunk.Producer, error) {
	req.Owner = strings.TrimSpace(req.Owner)
	if req.Owner == "" {
		return nil, fmt.Errorf("%w: owner is required", models.ErrInvalidInput)
	}
	if req.Path == "" {
		return nil, fmt.Errorf("%w: path is required", models.ErrInvalidInput)
	}
	if req.Filename == "" {
		req.Filename = filepath.Base(req.Path)
	}
	if strings.ContainsAny(req.Filename, `/\`) {
		return nil, fmt.Errorf("%w: filename must not contain path separators", models.ErrInvalidInput)
	}
	producer, err := idx.resolver.For(req.Path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidInput, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: not a regular file: %s", models.ErrInvalidInput, req.Path)
	}
	return producer, nil
}

// Start validates req synchronously and ingests it in the background. The returned tracker
// reports the run; the run is not cancelled when ctx is.
func (idx *Indexer) Start(ctx context.Context, req Request) (*progress.Tracker, error) {
	producer, err := idx.prepare(&req)
	if err != nil {
		return nil, err
	}
	var t *progress.Tracker
	if idx.registry != nil {
		t = idx.registry.New(req.Filename, req.Owner)
	} else {
		t = progress.NewTracker(uuid.NewString(), req.Filename, req.Owner)
	}
	runCtx := context.WithoutCancel(ctx)
	go func() {
		_, _ = idx.run(runCtx, req, producer, t)
	}()
	return t, nil
}

// Ingest runs the whole ingestion synchronously. A nil tracker is replaced by a private one.
// Input errors are returned without touching the store; later failures are also recorded
// in the tracker.
func (idx *Indexer) Ingest(ctx context.Context, req Request, t *progress.Tracker) (models.IngestResult, error) {
	producer, err := idx.prepare(&req)
	if err != nil {
		if t != nil {
			t.Fail(err)
		}
		return models.IngestResult{}, err
	}
	if t == nil {
		t = progress.NewTracker(uuid.NewString(), req.Filename, req.Owner)
	}
	return idx.run(ctx, req, producer, t)
}

func (idx *Indexer) run(ctx context.Context, req Request, producer chunk.Producer, t *progress.Tracker) (models.IngestResult, error) {
	log := idx.logger.With(
		zap.String("run_id", t.ID()),
		zap.String("filename", req.Filename),
		zap.String("owner", req.Owner),
	)
	result, err := idx.ingest(ctx, req, producer, t, log)
	if err != nil {
		log.Error("ingestion failed", zap.Error(err))
		t.Fail(err)
		return models.IngestResult{}, err
	}
	log.Info("ingestion completed",
		zap.Int("processed_chunks", result.ProcessedChunks),
		zap.Int("total_chunks", result.TotalChunks),
	)
	return result, nil
}

// ingest has no rollback: a failure leaves whatever was written so far, and re-ingesting
// the document is the recovery path.
func (idx *Indexer) ingest(ctx context.Context, req Request, producer chunk.Producer, t *progress.Tracker, log *zap.Logger) (models.IngestResult, error) {
	t.Init(fmt.Sprintf("starting ingestion of %s", req.Filename))

	chunks, err := producer.Produce(ctx, req.Path)
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("produce chunks: %w", err)
	}
	total := len(chunks)
	t.Parsing(total, fmt.Sprintf("parsed %d chunks", total))
	log.Debug("document parsed", zap.Int("chunks", total))

	if err := idx.store.EnsureCollection(ctx, idx.embedder.Dimensions()); err != nil {
		return models.IngestResult{}, fmt.Errorf("ensure collection: %w", err)
	}
	removed, err := idx.store.Delete(ctx, vectorstore.Document(req.Filename, req.Owner))
	if err != nil {
		return models.IngestResult{}, fmt.Errorf("remove previous version: %w", err)
	}
	if idx.keywordIndex != nil {
		if _, err := idx.keywordIndex.DeleteDocument(ctx, req.Filename, req.Owner); err != nil {
			return models.IngestResult{}, fmt.Errorf("remove previous version from keyword index: %w", err)
		}
	}
	t.Deduplicated(fmt.Sprintf("removed %d previous chunks", removed))
	if removed > 0 {
		log.Debug("previous version removed", zap.Int("points", removed))
	}

	for i := range chunks {
		c := &chunks[i]
		c.Filename = req.Filename
		c.Owner = req.Owner
		c.IsPublic = req.IsPublic

		vecs, err := idx.embedder.EmbedBatch(ctx, []string{c.Summary, c.Content})
		if err != nil {
			return models.IngestResult{}, fmt.Errorf("embed chunk %d: %w", c.SequenceID, err)
		}
		if len(vecs) != 2 {
			return models.IngestResult{}, fmt.Errorf("embed chunk %d: got %d vectors, expected 2", c.SequenceID, len(vecs))
		}
		id := pointid.For(c.Owner, c.Filename, c.SequenceID)
		point := vectorstore.Point{
			ID:            id,
			SummaryVector: vecs[0],
			ContentVector: vecs[1],
			Payload:       *c,
		}
		if err := idx.store.Upsert(ctx, []vectorstore.Point{point}); err != nil {
			return models.IngestResult{}, fmt.Errorf("store chunk %d: %w", c.SequenceID, err)
		}
		if idx.keywordIndex != nil {
			if err := idx.keywordIndex.IndexChunks(ctx, []string{id}, []models.Chunk{*c}); err != nil {
				return models.IngestResult{}, fmt.Errorf("keyword index chunk %d: %w", c.SequenceID, err)
			}
		}
		t.Processing(i+1, total, fmt.Sprintf("stored chunk %d of %d", i+1, total))
	}

	t.Storing("finalizing")
	if err := idx.persist(); err != nil {
		return models.IngestResult{}, err
	}

	result := models.IngestResult{
		Filename:        req.Filename,
		Owner:           req.Owner,
		ProcessedChunks: total,
		TotalChunks:     total,
	}
	t.Complete(result, fmt.Sprintf("indexed %d chunks", total))
	return result, nil
}

// persist flushes stores that keep their points in memory between snapshots.
func (idx *Indexer) persist() error {
	s, ok := idx.store.(interface{ Save() error })
	if !ok {
		return nil
	}
	if err := s.Save(); err != nil {
		return fmt.Errorf("save store: %w", err)
	}
	return nil
}

func checkDocument(filename, owner string) error {
	if strings.TrimSpace(owner) == "" {
		return fmt.Errorf("%w: owner is required", models.ErrInvalidInput)
	}
	if filename == "" {
		return fmt.Errorf("%w: filename is required", models.ErrInvalidInput)
	}
	return nil
}

// UpdateVisibility sets is_public on every chunk of (filename, owner). When nothing matches it
// returns 0 and an error wrapping ErrDocumentNotFound.
func (idx *Indexer) UpdateVisibility(ctx context.Context, filename, owner string, isPublic bool) (int, error) {
	if err := checkDocument(filename, owner); err != nil {
		return 0, err
	}
	n, err := idx.store.SetPublic(ctx, vectorstore.Document(filename, owner), isPublic)
	if err != nil {
		return 0, fmt.Errorf("update visibility: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("%w: %s", models.ErrDocumentNotFound, filename)
	}
	if err := idx.persist(); err != nil {
		return n, err
	}
	if idx.keywordIndex != nil {
		if _, err := idx.keywordIndex.SetPublic(ctx, filename, owner, isPublic); err != nil {
			idx.logger.Warn("keyword index visibility update failed", zap.String("filename", filename), zap.Error(err))
		}
	}
	idx.logger.Info("visibility updated",
		zap.String("filename", filename),
		zap.String("owner", owner),
		zap.Bool("is_public", isPublic),
		zap.Int("points", n),
	)
	return n, nil
}

// DeleteDocument removes every chunk of (filename, owner). Deleting a missing document is
// not an error and returns 0.
func (idx *Indexer) DeleteDocument(ctx context.Context, filename, owner string) (int, error) {
	if err := checkDocument(filename, owner); err != nil {
		return 0, err
	}
	n, err := idx.store.Delete(ctx, vectorstore.Document(filename, owner))
	if err != nil {
		return 0, fmt.Errorf("delete document: %w", err)
	}
	if n > 0 {
		if err := idx.persist(); err != nil {
			return n, err
		}
	}
	if idx.keywordIndex != nil {
		if _, err := idx.keywordIndex.DeleteDocument(ctx, filename, owner); err != nil {
			idx.logger.Warn("keyword index delete failed", zap.String("filename", filename), zap.Error(err))
		}
	}
	idx.logger.Info("document deleted", zap.String("filename", filename), zap.String("owner", owner), zap.Int("points", n))
	return n, nil
}
