// Package search answers similarity, page and document-registry queries over the vector store.
package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/embedding"
	"github.com/hyperjump/shiryo/internal/keyword"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/vectorstore"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Engine runs searches against the vector store. Visibility is always part of the store
// query, so limit counts only chunks the caller may see.
type Engine struct {
	store        vectorstore.Store
	embedder     embedding.Embedder
	keywordIndex keyword.Index
	keywordOpts  keyword.SearchOptions
	config       *config.SearchConfig
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithKeywordIndex enables the keyword mode. opts may be nil.
func WithKeywordIndex(k keyword.Index, opts *keyword.SearchOptions) EngineOption {
	return func(e *Engine) {
		e.keywordIndex = k
		if opts != nil {
			e.keywordOpts = *opts
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a search engine. cfg may be nil to use the built-in defaults.
func NewEngine(store vectorstore.Store, embedder embedding.Embedder, cfg *config.SearchConfig, opts ...EngineOption) *Engine {
	e := &Engine{store: store, embedder: embedder, config: cfg}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = utils.OrNop(e.logger)
	return e
}

// Search runs query in its mode and returns ranked hits.
func (e *Engine) Search(ctx context.Context, query *models.SearchQuery) (*models.SearchResponse, error) {
	start := time.Now()
	if err := ProcessQuery(query, e.config); err != nil {
		return nil, err
	}

	var (
		candidates []*Candidate
		err        error
	)
	switch query.Mode {
	case models.ModeKeyword:
		candidates, err = e.searchKeyword(ctx, query)
	default:
		candidates, err = e.searchVectors(ctx, query)
	}
	if err != nil {
		return nil, err
	}

	hits := make([]*models.Hit, len(candidates))
	for i, c := range candidates {
		hits[i] = &models.Hit{
			Rank:         i + 1,
			Filename:     c.Payload.Filename,
			Owner:        c.Payload.Owner,
			SequenceID:   c.Payload.SequenceID,
			Score:        c.Score,
			SummaryScore: c.SummaryScore,
			ContentScore: c.ContentScore,
			IsPublic:     c.Payload.IsPublic,
			Summary:      c.Payload.Summary,
			Content:      c.Payload.Content,
		}
	}
	resp := &models.SearchResponse{
		Query:     query.Query,
		Mode:      query.Mode,
		Results:   hits,
		Total:     len(hits),
		QueryTime: time.Since(start).Milliseconds(),
	}
	e.logger.Debug("search completed",
		zap.String("mode", string(query.Mode)),
		zap.Int("limit", query.Limit),
		zap.Int("hits", len(hits)),
		zap.Int64("query_time_ms", resp.QueryTime),
	)
	return resp, nil
}

func (e *Engine) searchVectors(ctx context.Context, query *models.SearchQuery) ([]*Candidate, error) {
	vec, err := e.embedder.Embed(ctx, query.Query)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	filter := vectorstore.Visible(query.Owner)

	switch query.Mode {
	case models.ModeSummary, models.ModeContent:
		name := vectorstore.VectorSummary
		if query.Mode == models.ModeContent {
			name = vectorstore.VectorContent
		}
		points, err := e.store.Search(ctx, name, vec, filter, query.Limit)
		if err != nil {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		return single(points, query.Mode), nil
	}

	var summary, content []vectorstore.ScoredPoint
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		summary, err = e.store.Search(gctx, vectorstore.VectorSummary, vec, filter, query.Limit)
		if err != nil {
			return fmt.Errorf("summary search failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		content, err = e.store.Search(gctx, vectorstore.VectorContent, vec, filter, query.Limit)
		if err != nil {
			return fmt.Errorf("content search failed: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return MergeDual(summary, content, query.Owner, query.Limit), nil
}

func (e *Engine) searchKeyword(ctx context.Context, query *models.SearchQuery) ([]*Candidate, error) {
	if e.keywordIndex == nil {
		return nil, fmt.Errorf("%w: keyword search is not enabled", models.ErrInvalidInput)
	}
	opts := e.keywordOpts
	opts.Owner = query.Owner
	results, err := e.keywordIndex.Search(ctx, query.Query, query.Limit, &opts)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	out := make([]*Candidate, len(results))
	for i, r := range results {
		out[i] = &Candidate{ID: r.ID, Payload: r.Chunk, Score: r.Score, order: i}
	}
	return out, nil
}

// GetPages returns the requested chunks of one document in the order of q.SequenceIDs.
// Missing or invisible ids are skipped. When several owners share the filename, the
// caller's own chunk wins over a public one.
func (e *Engine) GetPages(ctx context.Context, q *models.PageQuery) ([]map[string]any, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if len(q.SequenceIDs) == 0 {
		return []map[string]any{}, nil
	}

	seen := make(map[int]bool, len(q.SequenceIDs))
	ids := &vectorstore.Filter{}
	for _, id := range q.SequenceIDs {
		if !seen[id] {
			seen[id] = true
			ids.Should = append(ids.Should, vectorstore.Eq(models.FieldSequenceID, id))
		}
	}
	filter := vectorstore.And(
		&vectorstore.Filter{Must: []vectorstore.Condition{vectorstore.Eq(models.FieldFilename, q.Filename)}},
		ids,
		vectorstore.Visible(q.Owner),
	)
	records, err := e.store.Scroll(ctx, filter, 0)
	if err != nil {
		return nil, fmt.Errorf("page lookup failed: %w", err)
	}

	bySeq := make(map[int]*models.Chunk, len(records))
	for i := range records {
		c := &records[i].Payload
		prev, ok := bySeq[c.SequenceID]
		if !ok || (q.Owner != "" && c.Owner == q.Owner && prev.Owner != q.Owner) {
			bySeq[c.SequenceID] = c
		}
	}

	out := make([]map[string]any, 0, len(q.SequenceIDs))
	for _, id := range q.SequenceIDs {
		if c, ok := bySeq[id]; ok {
			out = append(out, c.Project(q.Fields))
		}
	}
	return out, nil
}

// ListDocuments derives the document registry from the points visible to owner, grouped by
// (filename, owner) and sorted by filename. A document is public when all its visible chunks are.
func (e *Engine) ListDocuments(ctx context.Context, owner string) ([]models.DocumentSummary, error) {
	records, err := e.store.Scroll(ctx, vectorstore.Visible(owner), 0)
	if err != nil {
		return nil, fmt.Errorf("list documents failed: %w", err)
	}
	type key struct{ filename, owner string }
	type entry struct {
		summary models.DocumentSummary
		seqs    map[int]struct{}
	}
	docs := make(map[key]*entry)
	for _, r := range records {
		k := key{r.Payload.Filename, r.Payload.Owner}
		d, ok := docs[k]
		if !ok {
			d = &entry{
				summary: models.DocumentSummary{Filename: k.filename, Owner: k.owner, IsPublic: true},
				seqs:    make(map[int]struct{}),
			}
			docs[k] = d
		}
		d.seqs[r.Payload.SequenceID] = struct{}{}
		d.summary.IsPublic = d.summary.IsPublic && r.Payload.IsPublic
	}

	out := make([]models.DocumentSummary, 0, len(docs))
	for _, d := range docs {
		d.summary.ChunkCount = len(d.seqs)
		out = append(out, d.summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Filename != out[j].Filename {
			return out[i].Filename < out[j].Filename
		}
		return out[i].Owner < out[j].Owner
	})
	return out, nil
}

// Stats reports the number of stored points and documents.
func (e *Engine) Stats(ctx context.Context) (points, documents int, err error) {
	points, err = e.store.Count(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	docs, err := e.ListDocuments(ctx, "")
	if err != nil {
		return 0, 0, err
	}
	return points, len(docs), nil
}
