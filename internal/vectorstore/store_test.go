package vectorstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dims = 3

func point(id, filename, owner string, seq int, public bool, summary, content []float32) Point {
	return Point{
		ID:            id,
		SummaryVector: summary,
		ContentVector: content,
		Payload: models.Chunk{
			Filename:   filename,
			Owner:      owner,
			SequenceID: seq,
			IsPublic:   public,
			Summary:    "summary " + id,
			Content:    "content " + id,
		},
	}
}

func seed(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.EnsureCollection(ctx, dims))
	require.NoError(t, s.Upsert(ctx, []Point{
		point("a1", "report.pdf", "alice", 1, false, []float32{1, 0, 0}, []float32{0, 1, 0}),
		point("a2", "report.pdf", "alice", 2, false, []float32{0, 1, 0}, []float32{1, 0, 0}),
		point("b1", "notes.txt", "bob", 1, true, []float32{0.9, 0.1, 0}, []float32{0, 0, 1}),
		point("c1", "plan.xlsx", "carol", 1, false, []float32{1, 0, 0}, []float32{1, 0, 0}),
	}))
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func scoredIDs(ps []ScoredPoint) []string { return ids(ps, func(p ScoredPoint) string { return p.ID }) }
func recordIDs(rs []Record) []string      { return ids(rs, func(r Record) string { return r.ID }) }

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			s, err := NewMemoryStore("")
			require.NoError(t, err)
			return s
		},
		"sqlite": func(t *testing.T) Store {
			s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "points.db"), "documents")
			require.NoError(t, err)
			return s
		},
	}
}

func TestStore_SearchAppliesFilterBeforeLimit(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			seed(t, s)
			ctx := context.Background()

			// carol's c1 is the best match but bob may not see it
			got, err := s.Search(ctx, VectorSummary, []float32{1, 0, 0}, Visible("bob"), 1)
			require.NoError(t, err)
			assert.Equal(t, []string{"b1"}, scoredIDs(got))

			got, err = s.Search(ctx, VectorSummary, []float32{1, 0, 0}, nil, 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"a1", "c1", "b1", "a2"}, scoredIDs(got))
			assert.InDelta(t, 1.0, got[0].Score, 1e-6)

			got, err = s.Search(ctx, VectorContent, []float32{1, 0, 0}, Visible("alice"), 10)
			require.NoError(t, err)
			assert.Equal(t, []string{"a2", "a1", "b1"}, scoredIDs(got))
			assert.Equal(t, "alice", got[0].Payload.Owner)
			assert.Equal(t, 2, got[0].Payload.SequenceID)
		})
	}
}

func TestStore_UpsertReplacesByID(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			seed(t, s)
			ctx := context.Background()

			p := point("a1", "report.pdf", "alice", 1, false, []float32{0, 0, 1}, []float32{0, 0, 1})
			p.Payload.Content = "rewritten"
			require.NoError(t, s.Upsert(ctx, []Point{p}))

			n, err := s.Count(ctx, nil)
			require.NoError(t, err)
			assert.Equal(t, 4, n)

			recs, err := s.Scroll(ctx, Document("report.pdf", "alice"), 0)
			require.NoError(t, err)
			require.Equal(t, []string{"a1", "a2"}, recordIDs(recs))
			assert.Equal(t, "rewritten", recs[0].Payload.Content)
		})
	}
}

func TestStore_DeleteAndSetPublic(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			seed(t, s)
			ctx := context.Background()

			n, err := s.SetPublic(ctx, Document("report.pdf", "alice"), true)
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			visible, err := s.Count(ctx, Visible("bob"))
			require.NoError(t, err)
			assert.Equal(t, 3, visible)

			n, err = s.SetPublic(ctx, Document("report.pdf", "bob"), true)
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			n, err = s.Delete(ctx, Document("report.pdf", "alice"))
			require.NoError(t, err)
			assert.Equal(t, 2, n)

			n, err = s.Delete(ctx, Document("report.pdf", "alice"))
			require.NoError(t, err)
			assert.Equal(t, 0, n)

			recs, err := s.Scroll(ctx, nil, 0)
			require.NoError(t, err)
			assert.Equal(t, []string{"b1", "c1"}, recordIDs(recs))

			recs, err = s.Scroll(ctx, nil, 1)
			require.NoError(t, err)
			assert.Len(t, recs, 1)
		})
	}
}

func TestStore_Validation(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			defer s.Close()
			ctx := context.Background()

			err := s.Upsert(ctx, []Point{point("x", "f", "o", 1, false, []float32{1, 0, 0}, []float32{1, 0, 0})})
			assert.ErrorIs(t, err, ErrNotInitialized)

			require.NoError(t, s.EnsureCollection(ctx, dims))
			assert.ErrorIs(t, s.EnsureCollection(ctx, dims+1), ErrDimensionMismatch)

			err = s.Upsert(ctx, []Point{point("x", "f", "o", 1, false, []float32{1, 0}, []float32{1, 0, 0})})
			assert.ErrorIs(t, err, ErrDimensionMismatch)

			_, err = s.Search(ctx, "title_vector", []float32{1, 0, 0}, nil, 5)
			assert.ErrorIs(t, err, ErrUnknownVector)
		})
	}
}

func TestMemoryStore_SnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap", "points.bin")
	s, err := NewMemoryStore(path)
	require.NoError(t, err)
	seed(t, s)

	_, err = NewMemoryStore(path)
	assert.Error(t, err, "second opener must not get the lock")

	require.NoError(t, s.Close())

	reopened, err := NewMemoryStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 4, reopened.Len())
	require.NoError(t, reopened.EnsureCollection(context.Background(), dims))

	got, err := reopened.Search(context.Background(), VectorContent, []float32{0, 0, 1}, nil, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].ID)
	assert.True(t, got[0].Payload.IsPublic)
}

func TestFilter_Match(t *testing.T) {
	alicePrivate := &models.Chunk{Filename: "f", Owner: "alice", SequenceID: 3}
	bobPublic := &models.Chunk{Filename: "f", Owner: "bob", SequenceID: 3, IsPublic: true}

	var none *Filter
	assert.True(t, none.Match(alicePrivate))
	assert.Nil(t, Visible(""))
	assert.True(t, Visible("alice").Match(alicePrivate))
	assert.False(t, Visible("bob").Match(alicePrivate))
	assert.True(t, Visible("alice").Match(bobPublic))

	f := And(Visible("carol"), &Filter{Must: []Condition{Eq(models.FieldSequenceID, 3)}})
	assert.False(t, f.Match(alicePrivate))
	assert.True(t, f.Match(bobPublic))
	assert.True(t, (&Filter{Must: []Condition{Eq(models.FieldSequenceID, float64(3))}}).Match(bobPublic))
	assert.False(t, (&Filter{Must: []Condition{Eq("title", "f")}}).Match(bobPublic))
}

func TestFilterSQL(t *testing.T) {
	var args []any
	clause, err := filterSQL(And(Document("f", "alice"), Visible("bob")), &args)
	require.NoError(t, err)
	assert.Equal(t, "(filename = ? AND owner = ?) AND ((owner = ? OR is_public = ?))", clause)
	assert.Equal(t, []any{"f", "alice", "bob", true}, args)

	_, err = filterSQL(&Filter{Must: []Condition{Eq("1=1; DROP TABLE points", 1)}}, &args)
	assert.ErrorIs(t, err, models.ErrInvalidField)
}

func TestOpen(t *testing.T) {
	s, err := Open(&config.VectorStoreConfig{Backend: "memory"}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(&config.VectorStoreConfig{Backend: "sqlite", Collection: "documents", DatabasePath: filepath.Join(t.TempDir(), "p.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = Open(&config.VectorStoreConfig{Backend: "faiss"}, nil)
	assert.Error(t, err)
}
