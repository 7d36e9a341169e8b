package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/shiryo/internal/chunk"
	"github.com/hyperjump/shiryo/internal/embedding"
	"github.com/hyperjump/shiryo/internal/extract"
	"github.com/hyperjump/shiryo/internal/indexer"
	"github.com/hyperjump/shiryo/internal/vectorstore"
)

type recordingHandler struct {
	mu       sync.Mutex
	ingested []File
	removed  []File
}

func (h *recordingHandler) Ingest(_ context.Context, f File) {
	h.mu.Lock()
	h.ingested = append(h.ingested, f)
	h.mu.Unlock()
}

func (h *recordingHandler) Remove(_ context.Context, f File) {
	h.mu.Lock()
	h.removed = append(h.removed, f)
	h.mu.Unlock()
}

func (h *recordingHandler) snapshot() (ingested, removed []File) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]File(nil), h.ingested...), append([]File(nil), h.removed...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func startWatcher(t *testing.T, roots []string, exts []string, h Handler) *Watcher {
	t.Helper()
	w := NewWatcher(roots, exts, h, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(w.Stop)
	return w
}

func TestWatcher_AddRemoveDirectories(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, nil, []string{".txt"}, &recordingHandler{})

	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	dirs := w.Directories()
	if len(dirs) != 1 || filepath.Clean(dirs[0]) != filepath.Clean(dir) {
		t.Errorf("Directories() = %v", dirs)
	}
	if err := w.AddDirectory(dir, false); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 1 {
		t.Errorf("adding twice: %v", w.Directories())
	}
	if err := w.RemoveDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if len(w.Directories()) != 0 {
		t.Errorf("after remove: %v", w.Directories())
	}
}

func TestWatcher_ResolvesOwnerFromDirectory(t *testing.T) {
	root := t.TempDir()
	w := NewWatcher([]string{root}, nil, &recordingHandler{})
	tests := []struct {
		path      string
		wantOK    bool
		wantOwner string
		wantName  string
	}{
		{filepath.Join(root, "alice", "plan.pdf"), true, "alice", "plan.pdf"},
		{filepath.Join(root, "bob", "2024", "q1.xlsx"), true, "bob", "q1.xlsx"},
		{filepath.Join(root, "loose.pdf"), false, "", ""},
		{filepath.Join(root, ".tmp", "x.pdf"), false, "", ""},
		{filepath.Join(t.TempDir(), "alice", "plan.pdf"), false, "", ""},
	}
	for _, tt := range tests {
		f, ok := w.resolve(tt.path)
		if ok != tt.wantOK {
			t.Errorf("resolve(%q) ok = %v, want %v", tt.path, ok, tt.wantOK)
			continue
		}
		if ok && (f.Owner != tt.wantOwner || f.Filename != tt.wantName) {
			t.Errorf("resolve(%q) = %+v", tt.path, f)
		}
	}
}

func TestWatcher_IngestsAndRemovesOwnerFiles(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "alice"), 0755); err != nil {
		t.Fatal(err)
	}
	h := &recordingHandler{}
	startWatcher(t, []string{root}, []string{".txt"}, h)

	path := filepath.Join(root, "alice", "notes.txt")
	if err := os.WriteFile(path, []byte("hello"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "alice", "skip.xyz"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "loose.txt"), []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		ingested, _ := h.snapshot()
		return len(ingested) >= 1
	})
	time.Sleep(150 * time.Millisecond)
	ingested, _ := h.snapshot()
	for _, f := range ingested {
		if f.Owner != "alice" || f.Filename != "notes.txt" {
			t.Errorf("unexpected ingest %+v", f)
		}
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		_, removed := h.snapshot()
		return len(removed) == 1
	})
	_, removed := h.snapshot()
	if removed[0].Owner != "alice" || removed[0].Filename != "notes.txt" {
		t.Errorf("removed = %+v", removed[0])
	}
}

func TestWatcher_NewOwnerDirectory(t *testing.T) {
	root := t.TempDir()
	h := &recordingHandler{}
	startWatcher(t, []string{root}, []string{".txt", ".md"}, h)

	nested := filepath.Join(root, "carol", "drafts")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(nested, "deep.md"), []byte("deep content"), 0600); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool {
		ingested, _ := h.snapshot()
		for _, f := range ingested {
			if f.Owner == "carol" && f.Filename == "deep.md" {
				return true
			}
		}
		return false
	})
}

func TestWatcher_SyncExisting(t *testing.T) {
	root := t.TempDir()
	for name, content := range map[string]string{
		"alice/a.txt":      "hello",
		"alice/ignore.xyz": "x",
		"bob/b.txt":        "world",
		"orphan.txt":       "no owner",
	} {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
	}
	h := &recordingHandler{}
	w := startWatcher(t, []string{root}, []string{".txt"}, h)
	w.SyncExisting()

	ingested, _ := h.snapshot()
	owners := map[string]string{}
	for _, f := range ingested {
		owners[f.Filename] = f.Owner
	}
	if len(owners) != 2 || owners["a.txt"] != "alice" || owners["b.txt"] != "bob" {
		t.Errorf("expected a.txt for alice and b.txt for bob, got %v", ingested)
	}
}

func TestWatcher_Start_createsMissingRootDirectory(t *testing.T) {
	root := filepath.Join(t.TempDir(), "watch", "me")
	startWatcher(t, []string{root}, []string{".txt"}, &recordingHandler{})
	if _, err := os.Stat(root); err != nil {
		t.Errorf("root directory should exist after Start: %v", err)
	}
}

func TestMatchExtension(t *testing.T) {
	tests := []struct {
		path       string
		extensions []string
		want       bool
	}{
		{"/a/b.txt", []string{".txt"}, true},
		{"/a/b.TXT", []string{".txt"}, true},
		{"/a/b.pdf", []string{"pdf"}, true},
		{"/a/b.md", []string{".txt"}, false},
		{"/a/b", nil, true},
		{"/a/b", []string{}, true},
	}
	for _, tt := range tests {
		got := matchExtension(tt.path, tt.extensions)
		if got != tt.want {
			t.Errorf("matchExtension(%q, %v) = %v, want %v", tt.path, tt.extensions, got, tt.want)
		}
	}
}

func TestInDir(t *testing.T) {
	tests := []struct {
		dir  string
		path string
		want bool
	}{
		{"/tmp/a", "/tmp/a", true},
		{"/tmp/a", "/tmp/a/b.txt", true},
		{"/tmp/a", "/tmp/b", false},
		{"/tmp/a", "/tmp/a/../b", false},
	}
	for _, tt := range tests {
		got := inDir(tt.dir, tt.path)
		if got != tt.want {
			t.Errorf("inDir(%q, %q) = %v, want %v", tt.dir, tt.path, got, tt.want)
		}
	}
}

// End to end through the indexer: dropping a file ingests it, removing it deletes it.
func TestIndexerHandler_InboxLifecycle(t *testing.T) {
	ctx := context.Background()
	store, err := vectorstore.NewMemoryStore("")
	if err != nil {
		t.Fatal(err)
	}
	ex := extract.NewExtractor()
	idx := indexer.NewIndexer(store, embedding.NewMockEmbedder(8), chunk.NewResolver(ex, ex))
	h := NewIndexerHandler(idx, true, nil)

	root := t.TempDir()
	path := filepath.Join(root, "alice", "memo.txt")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("inbox memo"), 0600); err != nil {
		t.Fatal(err)
	}
	startWatcher(t, []string{root}, nil, h).SyncExisting()

	count := func() int {
		n, err := store.Count(ctx, vectorstore.Document("memo.txt", "alice"))
		if err != nil {
			t.Fatal(err)
		}
		return n
	}
	waitFor(t, func() bool { return count() == 1 })
	recs, err := store.Scroll(ctx, vectorstore.Document("memo.txt", "alice"), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !recs[0].Payload.IsPublic {
		t.Error("inbox files take the configured default visibility")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return count() == 0 })
}
