package search

import (
	"sort"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/vectorstore"
)

// Candidate is a chunk found by one or both vector paths.
type Candidate struct {
	ID           string
	Payload      models.Chunk
	Score        float64
	SummaryScore *float64
	ContentScore *float64
	// order is the position in the summary pass; content-only hits follow in content order.
	order int
}

type chunkKey struct {
	filename string
	seq      int
}

// MergeDual combines the summary and content passes into one candidate per (filename,
// sequence_id). Each candidate keeps the higher of its two scores. When several owners
// share a key, the payload is the caller's own chunk if owner has one, else the first seen.
// Ties are broken by the content score, then by summary pass order. At most limit
// candidates are returned.
func MergeDual(summary, content []vectorstore.ScoredPoint, owner string, limit int) []*Candidate {
	byKey := make(map[chunkKey]*Candidate, len(summary)+len(content))
	merged := make([]*Candidate, 0, len(summary)+len(content))

	add := func(p vectorstore.ScoredPoint, isSummary bool) {
		s := p.Score
		k := chunkKey{p.Payload.Filename, p.Payload.SequenceID}
		c, ok := byKey[k]
		if !ok {
			c = &Candidate{ID: p.ID, Payload: p.Payload, Score: s, order: len(merged)}
			byKey[k] = c
			merged = append(merged, c)
		} else if owner != "" && p.Payload.Owner == owner && c.Payload.Owner != owner {
			c.ID, c.Payload = p.ID, p.Payload
		}
		target := &c.ContentScore
		if isSummary {
			target = &c.SummaryScore
		}
		if *target == nil || s > **target {
			*target = &s
		}
		if s > c.Score {
			c.Score = s
		}
	}
	for _, p := range summary {
		add(p, true)
	}
	for _, p := range content {
		add(p, false)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ac, bc := contentOrMin(a), contentOrMin(b)
		if ac != bc {
			return ac > bc
		}
		return a.order < b.order
	})
	if limit >= 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

func contentOrMin(c *Candidate) float64 {
	if c.ContentScore == nil {
		return -2 // below any cosine similarity
	}
	return *c.ContentScore
}

// single wraps the results of one vector path as candidates.
func single(points []vectorstore.ScoredPoint, mode models.SearchMode) []*Candidate {
	out := make([]*Candidate, len(points))
	for i, p := range points {
		s := p.Score
		c := &Candidate{ID: p.ID, Payload: p.Payload, Score: s, order: i}
		if mode == models.ModeSummary {
			c.SummaryScore = &s
		} else {
			c.ContentScore = &s
		}
		out[i] = c
	}
	return out
}
