package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/pkg/utils"
	"github.com/sashabaranov/go-openai"
)

// maxPromptRunes bounds the chunk text sent to the model.
const maxPromptRunes = 8000

const systemPrompt = "You summarize document excerpts for a search index. " +
	"Reply with a single plain-text summary of 100 to 200 characters in the language of the excerpt. " +
	"Do not add commentary or formatting."

// LLMSummarizer asks an OpenAI-compatible chat completion endpoint for a summary.
type LLMSummarizer struct {
	client   *openai.Client
	model    string
	maxChars int
	timeout  time.Duration
}

// NewLLMSummarizer creates a summarizer from cfg. BaseURL may point at any compatible server.
func NewLLMSummarizer(cfg *config.SummaryConfig) *LLMSummarizer {
	clientConfig := openai.DefaultConfig(cfg.ResolvedAPIKey())
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &LLMSummarizer{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    cfg.Model,
		maxChars: cfg.MaxChars,
		timeout:  cfg.Timeout,
	}
}

// Summarize returns the model's summary of text, capped at maxChars runes.
// Empty text returns an empty summary without calling the model.
func (s *LLMSummarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: utils.Prefix(text, maxPromptRunes)},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summary completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("summary completion: no choices returned")
	}
	summary := strings.TrimSpace(resp.Choices[0].Message.Content)
	if summary == "" {
		return "", errors.New("summary completion: empty response")
	}
	return utils.Prefix(summary, s.maxChars), nil
}
