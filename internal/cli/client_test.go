package cli

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyperjump/shiryo/internal/chunk"
	"github.com/hyperjump/shiryo/internal/config"
	"github.com/hyperjump/shiryo/internal/embedding"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/indexer"
	"github.com/hyperjump/shiryo/internal/models"
	"github.com/hyperjump/shiryo/internal/progress"
	"github.com/hyperjump/shiryo/internal/search"
	"github.com/hyperjump/shiryo/internal/server"
	"github.com/hyperjump/shiryo/internal/vectorstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	store, err := vectorstore.NewMemoryStore("")
	require.NoError(t, err)
	embedder := embedding.NewMockEmbedder(8)
	ex := extract.NewExtractor()
	registry := progress.NewRegistry(16, time.Hour)
	idx := indexer.NewIndexer(store, embedder, chunk.NewResolver(ex, ex), indexer.WithRegistry(registry))
	engine := search.NewEngine(store, embedder, nil)
	srv := server.NewServer(engine, idx, registry, &config.ServerConfig{UploadDir: t.TempDir()}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestClient_RoundTrip(t *testing.T) {
	ctx := context.Background()
	url := newTestServer(t)
	alice := NewClient(url, "alice")
	alice.PollInterval = 10 * time.Millisecond
	bob := NewClient(url, "bob")

	path := filepath.Join(t.TempDir(), "plan.md")
	require.NoError(t, os.WriteFile(path, []byte("launch plan for the topic"), 0600))

	snap, err := alice.Ingest(ctx, path, false)
	require.NoError(t, err)
	var updates int
	final, err := alice.WaitIngestion(ctx, snap.RunID, func(progress.Snapshot) { updates++ })
	require.NoError(t, err)
	assert.Equal(t, progress.StageCompleted, final.Stage)
	assert.GreaterOrEqual(t, updates, 1)

	resp, err := bob.Search(ctx, &models.SearchQuery{Query: "topic"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results, "private document hidden from bob")

	_, err = bob.UpdateVisibility(ctx, "plan.md", true)
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)

	n, err := alice.UpdateVisibility(ctx, "plan.md", true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	resp, err = bob.Search(ctx, &models.SearchQuery{Query: "topic"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)

	pages, err := bob.GetPages(ctx, &models.PageQuery{Filename: "plan.md", SequenceIDs: []int{1}, Fields: []string{"content"}})
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, "launch plan for the topic", pages[0]["content"])

	docs, err := bob.ListDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "alice", docs[0].Owner)

	status, err := alice.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status.Documents)

	n, err = alice.DeleteDocument(ctx, "plan.md")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	docs, err = alice.ListDocuments(ctx)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()
	c := NewClient(newTestServer(t), "alice")

	_, err := c.Search(ctx, &models.SearchQuery{Query: ""})
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, []byte{0x89, 'P', 'N', 'G'}, 0600))
	_, err = c.Ingest(ctx, path, false)
	assert.ErrorIs(t, err, models.ErrUnsupportedType)

	_, err = c.Ingestion(ctx, "missing")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.Equal(t, "ingestion not found", apiErr.Message)

	_, err = c.WatchDirectories(ctx)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 501, apiErr.StatusCode)
}
