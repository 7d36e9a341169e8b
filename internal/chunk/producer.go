// Package chunk converts parsed documents into ordered chunks. Each file type maps to a
// Producer; the indexer picks one through a Resolver.
package chunk

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/summarize"
	"github.com/hyperjump/shiryo/pkg/utils"
	"go.uber.org/zap"
)

const (
	// DefaultRowThreshold is the number of letters and digits that closes a row chunk.
	DefaultRowThreshold = 250
	// DefaultSummaryLength is the rune length of truncation summaries.
	DefaultSummaryLength = 200
)

// Producer turns the document at path into chunks ordered by SequenceID. Produced chunks carry
// SequenceID, Content and Summary; the caller stamps filename, owner and visibility.
type Producer interface {
	Produce(ctx context.Context, path string) ([]models.Chunk, error)
}

// PageSource parses paginated documents.
type PageSource interface {
	Pages(path string) ([]extract.Page, error)
}

// TableSource parses tabular documents.
type TableSource interface {
	Tables(path string) ([]extract.Table, error)
}

type options struct {
	summarizer     summarize.Summarizer
	summaryLength  int
	rowThreshold   int
	summaryColumns []string
	logger         *zap.Logger
}

// Option configures producers built by a Resolver.
type Option func(*options)

// WithSummarizer enables generated summaries. Failures fall back to truncation.
func WithSummarizer(s summarize.Summarizer) Option {
	return func(o *options) { o.summarizer = s }
}

// WithSummaryLength sets the rune length of truncation summaries.
func WithSummaryLength(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.summaryLength = n
		}
	}
}

// WithRowThreshold sets the meaningful-character count that closes a row chunk.
func WithRowThreshold(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.rowThreshold = n
		}
	}
}

// WithSummaryColumns names the columns whose values form row chunk summaries.
func WithSummaryColumns(cols []string) Option {
	return func(o *options) { o.summaryColumns = cols }
}

// WithLogger sets the logger used to report summarizer failures.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) options {
	o := options{
		summaryLength: DefaultSummaryLength,
		rowThreshold:  DefaultRowThreshold,
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = utils.OrNop(o.logger)
	return o
}

// summary returns the summarizer output for content, or its truncation when no summarizer
// is set or it fails.
func (o *options) summary(ctx context.Context, content string) string {
	if o.summarizer != nil && strings.TrimSpace(content) != "" {
		s, err := o.summarizer.Summarize(ctx, content)
		if err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		if err != nil {
			o.logger.Warn("summary generation failed, using truncation", zap.Error(err))
		}
	}
	return summarize.Truncate(content, o.summaryLength)
}

// Resolver selects a Producer by file type.
type Resolver struct {
	pages  PageSource
	tables TableSource
	opts   options
}

// NewResolver returns a Resolver backed by the given parsers.
func NewResolver(pages PageSource, tables TableSource, opts ...Option) *Resolver {
	return &Resolver{pages: pages, tables: tables, opts: newOptions(opts)}
}

// For returns the Producer for path, or an error wrapping models.ErrUnsupportedType.
func (r *Resolver) For(path string) (Producer, error) {
	switch extract.KindOf(path) {
	case extract.KindPages:
		return &PageProducer{source: r.pages, opts: r.opts}, nil
	case extract.KindTable:
		return &RowProducer{source: r.tables, opts: r.opts}, nil
	}
	ext := filepath.Ext(path)
	if ext == "" {
		ext = "(none)"
	}
	return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedType, ext)
}
