// Package summarize produces the short summaries stored with each chunk.
package summarize

import (
	"context"
	"fmt"

	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/pkg/utils"
)

// Summarizer turns chunk content into a short summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Truncate returns the first n runes of text with whitespace collapsed. It is the fallback
// summary whenever no summarizer is configured or the summarizer fails.
func Truncate(text string, n int) string {
	return utils.Prefix(utils.CollapseWhitespace(text), n)
}

// New returns the summarizer selected by cfg.Provider, or nil for "none".
func New(cfg *config.SummaryConfig) (Summarizer, error) {
	switch cfg.Provider {
	case "", "none":
		return nil, nil
	case "llm":
		return NewLLMSummarizer(cfg), nil
	case "extractive":
		return NewExtractiveSummarizer(cfg.MaxSentences, cfg.MaxChars), nil
	default:
		return nil, fmt.Errorf("unknown summary provider %q", cfg.Provider)
	}
}
