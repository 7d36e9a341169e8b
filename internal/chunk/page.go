package chunk

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/shiryo/internal/models"
)

// PageProducer emits one chunk per page. SequenceID is the page number.
type PageProducer struct {
	source PageSource
	opts   options
}

// NewPageProducer returns a page-based producer reading from source.
func NewPageProducer(source PageSource, opts ...Option) *PageProducer {
	return &PageProducer{source: source, opts: newOptions(opts)}
}

// Produce parses path and returns one chunk per page, including pages with no text.
func (p *PageProducer) Produce(ctx context.Context, path string) ([]models.Chunk, error) {
	pages, err := p.source.Pages(path)
	if err != nil {
		return nil, fmt.Errorf("parse pages: %w", err)
	}
	chunks := make([]models.Chunk, 0, len(pages))
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		content := strings.TrimSpace(page.Text)
		chunks = append(chunks, models.Chunk{
			SequenceID: page.Number,
			Content:    content,
			Summary:    p.opts.summary(ctx, content),
		})
	}
	return chunks, nil
}
