package search

import (
	"testing"

	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sp(id string, score float64) vectorstore.ScoredPoint {
	return vectorstore.ScoredPoint{ID: id, Score: score, Payload: models.Chunk{Filename: id + ".pdf", SequenceID: 1, Owner: "alice"}}
}

func candidateIDs(cs []*Candidate) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ID
	}
	return out
}

func TestMergeDual_KeepsBestScore(t *testing.T) {
	summary := []vectorstore.ScoredPoint{sp("a", 0.95), sp("b", 0.40)}
	content := []vectorstore.ScoredPoint{sp("b", 0.80), sp("a", 0.30), sp("c", 0.70)}

	got := MergeDual(summary, content, "alice", 10)
	require.Equal(t, []string{"a", "b", "c"}, candidateIDs(got))

	assert.Equal(t, 0.95, got[0].Score, "a ranks by its summary score")
	assert.Equal(t, 0.95, *got[0].SummaryScore)
	assert.Equal(t, 0.30, *got[0].ContentScore)

	assert.Equal(t, 0.80, got[1].Score, "b ranks by its content score")
	assert.Nil(t, got[2].SummaryScore)
}

func TestMergeDual_TieBreaks(t *testing.T) {
	// a and b tie at 0.9; b has the better content score
	summary := []vectorstore.ScoredPoint{sp("a", 0.9), sp("b", 0.5)}
	content := []vectorstore.ScoredPoint{sp("b", 0.9), sp("a", 0.2)}
	got := MergeDual(summary, content, "alice", 10)
	assert.Equal(t, []string{"b", "a"}, candidateIDs(got))

	// full tie falls back to summary pass order
	summary = []vectorstore.ScoredPoint{sp("x", 0.7), sp("y", 0.7)}
	got = MergeDual(summary, nil, "alice", 10)
	assert.Equal(t, []string{"x", "y"}, candidateIDs(got))

	// content-only hits come after summary hits on a full tie
	summary = []vectorstore.ScoredPoint{sp("x", 0.7)}
	content := []vectorstore.ScoredPoint{sp("z", 0.7)}
	got = MergeDual(summary, content, "alice", 10)
	assert.Equal(t, []string{"z", "x"}, candidateIDs(got), "z has a content score, x has none")
}

func TestMergeDual_Limit(t *testing.T) {
	summary := []vectorstore.ScoredPoint{sp("a", 0.9), sp("b", 0.8)}
	content := []vectorstore.ScoredPoint{sp("c", 0.85), sp("d", 0.1)}
	got := MergeDual(summary, content, "alice", 2)
	assert.Equal(t, []string{"a", "c"}, candidateIDs(got))

	assert.Empty(t, MergeDual(nil, nil, "alice", 5))
}

func ownedPoint(id, owner string, seq int, score float64) vectorstore.ScoredPoint {
	return vectorstore.ScoredPoint{ID: id, Score: score, Payload: models.Chunk{Filename: "report.pdf", Owner: owner, SequenceID: seq}}
}

func TestMergeDual_OneEntryPerFilenameAndSequence(t *testing.T) {
	summary := []vectorstore.ScoredPoint{
		ownedPoint("bob-1", "bob", 1, 0.9),
		ownedPoint("alice-1", "alice", 1, 0.6),
		ownedPoint("alice-2", "alice", 2, 0.5),
	}
	content := []vectorstore.ScoredPoint{ownedPoint("bob-1", "bob", 1, 0.7)}

	got := MergeDual(summary, content, "alice", 5)
	require.Len(t, got, 2)
	assert.Equal(t, []string{"alice-1", "alice-2"}, candidateIDs(got))

	first := got[0]
	assert.Equal(t, "alice", first.Payload.Owner, "the caller's own chunk wins")
	assert.Equal(t, 0.9, first.Score, "the key keeps its best score")
	assert.Equal(t, 0.9, *first.SummaryScore)
	assert.Equal(t, 0.7, *first.ContentScore)

	// no owner: first chunk seen supplies the payload
	got = MergeDual(summary, content, "", 5)
	require.Len(t, got, 2)
	assert.Equal(t, "bob", got[0].Payload.Owner)

	// duplicates of one key use a single limit slot
	got = MergeDual(summary, content, "alice", 2)
	assert.Equal(t, []string{"alice-1", "alice-2"}, candidateIDs(got))
}

func TestSingle(t *testing.T) {
	got := single([]vectorstore.ScoredPoint{sp("a", 0.5)}, models.ModeContent)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].SummaryScore)
	assert.Equal(t, 0.5, *got[0].ContentScore)
}
