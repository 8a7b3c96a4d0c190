package archivist

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/poiesic/archivist/catalog"
	"github.com/poiesic/archivist/config"
	"github.com/poiesic/archivist/core"
	"github.com/poiesic/archivist/journal"
	"github.com/poiesic/archivist/objectstore/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCatalog serves the subset of the catalog API the commands use.
type fakeCatalog struct {
	mu          sync.Mutex
	requests    int
	collections map[string]*core.Collection
	blobs       []core.Blob
	deleted     []string
	resources   map[string]bool
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		collections: map[string]*core.Collection{},
		resources:   map[string]bool{},
	}
}

func (f *fakeCatalog) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if r.Header.Get("Authorization") != "tok" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	path := r.URL.Path
	switch {
	case r.Method == http.MethodPost && path == "/api/collections":
		var body struct {
			Name string `json:"name"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		coll := &core.Collection{URI: body.Name, Display: body.Name, Ingestions: []core.Ingestion{}}
		f.collections[body.Name] = coll
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(coll)

	case strings.HasPrefix(path, "/api/collections/"):
		name := strings.TrimPrefix(path, "/api/collections/")
		coll, ok := f.collections[name]
		switch r.Method {
		case http.MethodGet:
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(coll)
		case http.MethodPost:
			var body struct {
				Name string `json:"name"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			coll.Ingestions = append(coll.Ingestions, core.Ingestion{URI: name + "/" + body.Name, Display: body.Name})
			w.WriteHeader(http.StatusOK)
		case http.MethodDelete:
			delete(f.collections, name)
			w.WriteHeader(http.StatusNoContent)
		}

	case r.Method == http.MethodGet && path == "/api/blobs":
		_ = json.NewEncoder(w).Encode(map[string][]core.Blob{"blobs": f.blobs})

	case r.Method == http.MethodDelete && strings.HasPrefix(path, "/api/blobs/"):
		uri := strings.TrimPrefix(path, "/api/blobs/")
		f.deleted = append(f.deleted, uri)
		for i, b := range f.blobs {
			if b.URI == uri {
				f.blobs = append(f.blobs[:i], f.blobs[i+1:]...)
				break
			}
		}
		w.WriteHeader(http.StatusNoContent)

	case r.Method == http.MethodGet && strings.HasPrefix(path, "/api/resources/"):
		if f.resources[strings.TrimPrefix(path, "/api/resources/")] {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeCatalog) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

type harness struct {
	archivist *Archivist
	catalog   *fakeCatalog
	server    string
	store     *badger.Store
	dir       string
}

func newHarness(t *testing.T, login bool, mutate ...func(*config.Config)) *harness {
	t.Helper()
	fc := newFakeCatalog()
	srv := httptest.NewServer(fc)
	t.Cleanup(srv.Close)

	store, err := badger.OpenMemory(nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	dir := t.TempDir()
	cfg := config.NewConfig(config.WithServer(srv.URL), config.WithConcurrency(4))
	cfg.CredentialsDir = filepath.Join(dir, "creds")
	for _, m := range mutate {
		m(cfg)
	}

	a, err := New(cfg, WithStore(store), WithProgressWriter(nil))
	require.NoError(t, err)
	if login {
		require.NoError(t, a.Login("", "tok"))
	}
	return &harness{archivist: a, catalog: fc, server: srv.URL, store: store, dir: dir}
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func TestNew(t *testing.T) {
	t.Run("rejects invalid config", func(t *testing.T) {
		cfg := config.NewConfig(config.WithFormat("xml"))
		_, err := New(cfg)
		require.Error(t, err)
		assert.True(t, core.IsInputError(err))
	})

	t.Run("nil config uses defaults", func(t *testing.T) {
		t.Setenv("HOME", t.TempDir())
		a, err := New(nil)
		require.NoError(t, err)
		assert.Equal(t, 128, a.Config().Ingest.Concurrency)
	})
}

func TestIngestCreatesCatalogEntriesAndUploads(t *testing.T) {
	h := newHarness(t, true, func(c *config.Config) {
		c.Metrics.File = filepath.Join(t.TempDir(), "archivist.prom")
	})
	root := writeTree(t, map[string]string{
		"a.txt": strings.Repeat("a", 10),
		"b.txt": strings.Repeat("b", 20),
	})
	logFile := filepath.Join(h.dir, "run.tsv")

	result, err := h.archivist.Ingest(context.Background(), IngestRequest{
		IngestionURI: core.MustParseURI("c/i"),
		Path:         root,
		Languages:    []core.Language{core.LanguageEnglish},
		LogFile:      logFile,
	})
	require.NoError(t, err)
	assert.Equal(t, logFile, result.LogFile)
	assert.Equal(t, 2, result.Stats.Succeeded)
	assert.Equal(t, 0, result.Stats.Failed)

	coll := h.catalog.collections["c"]
	require.NotNil(t, coll)
	require.Len(t, coll.Ingestions, 1)
	assert.Equal(t, "c/i", coll.Ingestions[0].URI)

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		assert.True(t, strings.HasPrefix(line, "success\t"), line)
	}

	ctx := context.Background()
	metadata, err := h.store.Keys(ctx, "metadata/")
	require.NoError(t, err)
	assert.Len(t, metadata, 2)
	content, err := h.store.Keys(ctx, "data/")
	require.NoError(t, err)
	assert.Len(t, content, 2)

	prom, err := os.ReadFile(h.archivist.Config().Metrics.File)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `archivist_files_total{ingestion="c/i",stage="none",status="success"} 2`)
}

func TestIngestResumesFromPreviousLog(t *testing.T) {
	h := newHarness(t, true)
	root := writeTree(t, map[string]string{"a.txt": "aaa", "b.txt": "bbb", "sub/c.txt": "ccc"})
	ctx := context.Background()

	first := filepath.Join(h.dir, "first.ndjson")
	_, err := h.archivist.Ingest(ctx, IngestRequest{
		IngestionURI: core.MustParseURI("c/i"),
		Path:         root,
		Languages:    []core.Language{core.LanguageEnglish},
		LogFile:      first,
	})
	require.NoError(t, err)

	second := filepath.Join(h.dir, "second.ndjson")
	result, err := h.archivist.Ingest(ctx, IngestRequest{
		IngestionURI: core.MustParseURI("c/i"),
		Path:         root,
		Languages:    []core.Language{core.LanguageEnglish},
		ProgressFrom: first,
		LogFile:      second,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Stats.Skipped)
	assert.Equal(t, 0, result.Stats.Processed)

	ix, err := journal.LoadIndex(second, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, ix.Len())

	// The ingestion already existed, so it was not created twice.
	assert.Len(t, h.catalog.collections["c"].Ingestions, 1)
}

func TestIngestDefaultLogName(t *testing.T) {
	h := newHarness(t, true)
	h.archivist.now = func() time.Time { return time.UnixMilli(1700000000000) }
	root := writeTree(t, map[string]string{"a.txt": "a"})

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(h.dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	result, err := h.archivist.Ingest(context.Background(), IngestRequest{
		IngestionURI: core.MustParseURI("c/i"),
		Path:         root,
		Languages:    []core.Language{core.LanguageFrench},
	})
	require.NoError(t, err)
	assert.Equal(t, "ingestion-1700000000000.tsv", result.LogFile)
	assert.FileExists(t, filepath.Join(h.dir, result.LogFile))
}

func TestIngestWithoutLoginIsAuthError(t *testing.T) {
	h := newHarness(t, false)
	root := writeTree(t, map[string]string{"a.txt": "a"})

	_, err := h.archivist.Ingest(context.Background(), IngestRequest{
		IngestionURI: core.MustParseURI("c/i"),
		Path:         root,
		Languages:    []core.Language{core.LanguageEnglish},
		LogFile:      filepath.Join(h.dir, "run.tsv"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrAuth)
	assert.Equal(t, 0, h.catalog.requestCount())
}

func TestIngestRejectsBadInputBeforeCallingCatalog(t *testing.T) {
	h := newHarness(t, true)
	root := writeTree(t, map[string]string{"a.txt": "a"})
	badLog := filepath.Join(h.dir, "bad.tsv")
	require.NoError(t, os.WriteFile(badLog, []byte("garbage\n"), 0644))

	tests := []struct {
		name string
		req  IngestRequest
	}{
		{"missing path", IngestRequest{IngestionURI: core.MustParseURI("c/i"), Path: filepath.Join(root, "nope"), Languages: []core.Language{core.LanguageEnglish}}},
		{"file as path", IngestRequest{IngestionURI: core.MustParseURI("c/i"), Path: filepath.Join(root, "a.txt"), Languages: []core.Language{core.LanguageEnglish}}},
		{"no ingestion uri", IngestRequest{Path: root, Languages: []core.Language{core.LanguageEnglish}}},
		{"no languages", IngestRequest{IngestionURI: core.MustParseURI("c/i"), Path: root}},
		{"malformed progress log", IngestRequest{IngestionURI: core.MustParseURI("c/i"), Path: root, Languages: []core.Language{core.LanguageEnglish}, ProgressFrom: badLog}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.archivist.Ingest(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, core.IsInputError(err), "got %v", err)
		})
	}
	assert.Equal(t, 0, h.catalog.requestCount())
}

func TestIngestUsesConfiguredLanguages(t *testing.T) {
	h := newHarness(t, true, func(c *config.Config) {
		c.Ingest.Languages = []string{"german"}
	})
	root := writeTree(t, map[string]string{"a.txt": "a"})

	result, err := h.archivist.Ingest(context.Background(), IngestRequest{
		IngestionURI: core.MustParseURI("c/i"),
		Path:         root,
		LogFile:      filepath.Join(h.dir, "run.tsv"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Stats.Succeeded)
}

func TestCheckHash(t *testing.T) {
	h := newHarness(t, true)
	const emptyHash = "z4PhNX7vuL3xVChQ1m2AB9Yg5AULVxXcg_SpIdNs6c5H0NE8XYXysP-DGNKHfuwvY7kxvUdBeoGlODJ6-SfaPg"
	h.catalog.resources[emptyHash] = true

	ctx := context.Background()
	exists, err := h.archivist.CheckHash(ctx, "", emptyHash)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = h.archivist.CheckHash(ctx, h.server, "other")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListBlobs(t *testing.T) {
	h := newHarness(t, true)
	h.catalog.blobs = []core.Blob{{URI: "b1", Ingestions: []string{"c/i"}}}

	blobs, err := h.archivist.ListBlobs(context.Background(), "", "c", catalog.FilterAll)
	require.NoError(t, err)
	assert.Equal(t, h.catalog.blobs, blobs)
}

func TestDeleteCollection(t *testing.T) {
	h := newHarness(t, true)
	h.catalog.collections["c"] = &core.Collection{URI: "c"}
	h.catalog.blobs = []core.Blob{{URI: "b1"}, {URI: "b2"}, {URI: "b3"}}

	deleted, err := h.archivist.DeleteCollection(context.Background(), "", "c", true)
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)
	assert.Equal(t, []string{"b1", "b2", "b3"}, h.catalog.deleted)
	assert.NotContains(t, h.catalog.collections, "c")

	_, err = h.archivist.DeleteCollection(context.Background(), "", "", false)
	assert.True(t, core.IsInputError(err))
}

func TestLogin(t *testing.T) {
	h := newHarness(t, false)
	assert.True(t, core.IsInputError(h.archivist.Login(h.server, "")))

	require.NoError(t, h.archivist.Login(h.server, "tok"))
	token, err := os.ReadFile(h.archivist.tokens.Path(h.server))
	require.NoError(t, err)
	assert.Equal(t, "tok", string(token))
}

func TestCatalogRequiresServer(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	a, err := New(config.NewConfig())
	require.NoError(t, err)
	_, err = a.Catalog("")
	assert.True(t, core.IsInputError(err))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	t.Run("local", func(t *testing.T) {
		store, err := OpenStore(ctx, config.StoreConfig{Kind: config.StoreLocal, LocalDir: t.TempDir()}, nil)
		require.NoError(t, err)
		assert.IsType(t, &badger.Store{}, store)
		assert.NoError(t, store.Close())
	})

	t.Run("minio", func(t *testing.T) {
		store, err := OpenStore(ctx, config.StoreConfig{
			Kind: config.StoreMinio, Endpoint: "http://localhost:9000", Bucket: "b", AccessKey: "a", SecretKey: "s",
		}, nil)
		require.NoError(t, err)
		assert.NoError(t, store.Close())
	})

	t.Run("unknown", func(t *testing.T) {
		_, err := OpenStore(ctx, config.StoreConfig{Kind: "tape"}, nil)
		assert.True(t, core.IsInputError(err))
	})
}
