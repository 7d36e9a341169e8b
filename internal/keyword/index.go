// Package keyword mirrors chunk payloads into a full-text index for keyword search.
package keyword

import (
	"context"

	"github.com/hyperjump/shiryo/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// Owner restricts hits to the owner's chunks and public chunks. Empty means no restriction.
	Owner string
	// TitleBoost multiplies the score contribution from matches in the filename.
	// Values > 1 make filename matches rank higher (e.g. 2.0). Use 1.0 for no boost.
	TitleBoost float64
	// Fuzziness is the maximum Levenshtein edit distance for typo tolerance (1 or 2).
	// Zero disables fuzzy matching.
	Fuzziness int
}

// Index keeps a searchable copy of every chunk point, keyed by point id.
type Index interface {
	IndexChunks(ctx context.Context, ids []string, chunks []models.Chunk) error
	Search(ctx context.Context, query string, limit int, opts *SearchOptions) ([]*Result, error)
	// DeleteDocument removes every chunk of (filename, owner) and returns how many were removed.
	DeleteDocument(ctx context.Context, filename, owner string) (int, error)
	// SetPublic rewrites is_public on every chunk of (filename, owner).
	SetPublic(ctx context.Context, filename, owner string, isPublic bool) (int, error)
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ID    string
	Score float64
	Chunk models.Chunk
}
