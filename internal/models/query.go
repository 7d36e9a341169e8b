package models

import (
	"fmt"
	"strings"
)

// SearchMode selects which vector path a search uses.
type SearchMode string

const (
	// ModeSummary searches the summary vectors only.
	ModeSummary SearchMode = "summary"
	// ModeContent searches the content vectors only.
	ModeContent SearchMode = "content"
	// ModeDual searches both vectors and keeps the best score per chunk.
	ModeDual SearchMode = "dual"
	// ModeKeyword runs a full-text query over chunk text.
	ModeKeyword SearchMode = "keyword"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// ParseSearchMode maps a string to a SearchMode. An empty string yields ModeDual.
func ParseSearchMode(s string) (SearchMode, error) {
	switch SearchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeDual:
		return ModeDual, nil
	case ModeSummary:
		return ModeSummary, nil
	case ModeContent:
		return ModeContent, nil
	case ModeKeyword:
		return ModeKeyword, nil
	}
	return "", fmt.Errorf("%w: unknown search mode %q", ErrInvalidInput, s)
}

// SearchQuery is a similarity search request. Owner is set by the caller's identity, never by
// request bodies; an empty Owner applies no visibility filter.
type SearchQuery struct {
	Query string     `json:"query"`
	Limit int        `json:"limit,omitempty"`
	Mode  SearchMode `json:"mode,omitempty"`
	Owner string     `json:"-"`
}

// Validate rejects an empty query or unknown mode and normalizes limit and mode.
func (q *SearchQuery) Validate() error {
	if strings.TrimSpace(q.Query) == "" {
		return fmt.Errorf("%w: query cannot be empty", ErrInvalidInput)
	}
	mode, err := ParseSearchMode(string(q.Mode))
	if err != nil {
		return err
	}
	q.Mode = mode
	if q.Limit <= 0 {
		q.Limit = DefaultLimit
	}
	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}
	return nil
}

// PageQuery is an exact lookup of chunks by sequence id within one document.
type PageQuery struct {
	Filename    string   `json:"filename"`
	SequenceIDs []int    `json:"sequence_ids"`
	Fields      []string `json:"fields,omitempty"`
	Owner       string   `json:"-"`
}

// Validate checks the filename and requested fields.
func (q *PageQuery) Validate() error {
	if strings.TrimSpace(q.Filename) == "" {
		return fmt.Errorf("%w: filename cannot be empty", ErrInvalidInput)
	}
	return ValidateFields(q.Fields)
}
