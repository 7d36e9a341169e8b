// Package vectorstore persists chunk points with two named vectors and answers filtered
// similarity, scroll and bulk payload queries against them.
package vectorstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/shiryo/internal/models"
)

// Named vectors stored with every point.
const (
	VectorSummary = "summary_vector"
	VectorContent = "content_vector"
)

var (
	// ErrDimensionMismatch is returned when a vector does not match the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrUnknownVector is returned for a vector name other than VectorSummary or VectorContent.
	ErrUnknownVector = errors.New("unknown vector name")
	// ErrNotInitialized is returned when a store is used before EnsureCollection.
	ErrNotInitialized = errors.New("collection not initialized")
)

// Point is one chunk as persisted: an id, its two vectors and the chunk itself as payload.
type Point struct {
	ID            string
	SummaryVector []float32
	ContentVector []float32
	Payload       models.Chunk
}

// Record is a stored point without its vectors.
type Record struct {
	ID      string
	Payload models.Chunk
}

// ScoredPoint is a Record with its similarity to the query vector.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload models.Chunk
}

// Store is the vector store contract. Filters are applied inside the query, so limit
// counts eligible points only. A nil filter matches every point.
type Store interface {
	// EnsureCollection creates the collection if it does not exist. Existing collections must
	// have the same dimension.
	EnsureCollection(ctx context.Context, dimensions int) error
	// Upsert inserts points or replaces points with the same id.
	Upsert(ctx context.Context, points []Point) error
	// Search returns up to limit points matching filter, most similar first.
	Search(ctx context.Context, vectorName string, query []float32, filter *Filter, limit int) ([]ScoredPoint, error)
	// Scroll returns points matching filter. limit <= 0 returns all of them.
	Scroll(ctx context.Context, filter *Filter, limit int) ([]Record, error)
	Count(ctx context.Context, filter *Filter) (int, error)
	// Delete removes points matching filter and returns how many were removed.
	Delete(ctx context.Context, filter *Filter) (int, error)
	// SetPublic sets is_public on points matching filter and returns how many matched.
	SetPublic(ctx context.Context, filter *Filter, isPublic bool) (int, error)
	Close() error
}

func checkVectorName(name string) error {
	if name != VectorSummary && name != VectorContent {
		return fmt.Errorf("%w: %q", ErrUnknownVector, name)
	}
	return nil
}

func checkPoint(p *Point, dimensions int) error {
	if p.ID == "" {
		return errors.New("point id is required")
	}
	if len(p.SummaryVector) != dimensions {
		return fmt.Errorf("%w: %s has %d, expected %d", ErrDimensionMismatch, VectorSummary, len(p.SummaryVector), dimensions)
	}
	if len(p.ContentVector) != dimensions {
		return fmt.Errorf("%w: %s has %d, expected %d", ErrDimensionMismatch, VectorContent, len(p.ContentVector), dimensions)
	}
	return nil
}
