package ingestion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/poiesic/archivist/core"
	"github.com/poiesic/archivist/journal"
	"github.com/poiesic/archivist/objectstore/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryOutcomes collects outcomes in memory.
type memoryOutcomes struct {
	mu       sync.Mutex
	outcomes []core.Outcome
}

func (m *memoryOutcomes) Log(o core.Outcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, o)
	return nil
}

func (m *memoryOutcomes) byPath() map[string]core.Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]core.Outcome, len(m.outcomes))
	for _, o := range m.outcomes {
		out[o.Path] = o
	}
	return out
}

// testStore records puts and fails keys whose content matches failOn.
type testStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  func(key string, body []byte) bool
}

func newTestStore() *testStore {
	return &testStore{objects: map[string][]byte{}}
}

func (s *testStore) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	if s.failOn != nil && s.failOn(key, data) {
		return errors.New("injected failure")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *testStore) Close() error { return nil }

func (s *testStore) keysWithPrefix(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys
}

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return root
}

func testJob(root string) Job {
	return Job{
		Root:         root,
		IngestionURI: core.MustParseURI("coll/ingest"),
		Languages:    []core.Language{core.LanguageEnglish},
	}
}

func TestNewPipeline_Validation(t *testing.T) {
	_, err := NewPipeline(nil, &memoryOutcomes{})
	assert.ErrorIs(t, err, ErrStoreRequired)

	_, err = NewPipeline(newTestStore(), nil)
	assert.ErrorIs(t, err, ErrOutcomeLoggerRequired)

	p, err := NewPipeline(newTestStore(), &memoryOutcomes{}, WithPoolSize(0), WithLogger(nil))
	require.NoError(t, err)
	defer p.Release()
	assert.Equal(t, 1, p.pool.Cap())
}

func TestRun_ValidatesJob(t *testing.T) {
	p, err := NewPipeline(newTestStore(), &memoryOutcomes{})
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(context.Background(), Job{IngestionURI: core.MustParseURI("a/b")})
	assert.ErrorIs(t, err, ErrRootRequired)

	_, err = p.Run(context.Background(), Job{Root: t.TempDir()})
	assert.ErrorIs(t, err, ErrIngestionURIRequired)
}

func TestRun_TwoFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"a.txt": strings.Repeat("a", 10),
		"b.txt": strings.Repeat("b", 20),
	})
	store, err := badger.OpenMemory(nil)
	require.NoError(t, err)
	defer store.Close()

	logPath := filepath.Join(t.TempDir(), "run.tsv")
	logger, err := journal.OpenLogger(logPath, core.FormatTSV)
	require.NoError(t, err)

	p, err := NewPipeline(store, logger)
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), testJob(root))
	require.NoError(t, err)
	require.NoError(t, logger.Close())

	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.Processed)
	assert.Equal(t, 2, stats.Succeeded)
	assert.Equal(t, 0, stats.Failed)
	assert.Equal(t, 0, stats.Skipped)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	sizes := map[string]uint64{}
	for _, line := range lines {
		o, err := journal.Decode(core.FormatTSV, line)
		require.NoError(t, err)
		assert.True(t, o.Succeeded())
		sizes[filepath.Base(o.Path)] = o.Size
	}
	assert.Equal(t, map[string]uint64{"a.txt": 10, "b.txt": 20}, sizes)

	ctx := context.Background()
	metaKeys, err := store.Keys(ctx, "metadata/")
	require.NoError(t, err)
	dataKeys, err := store.Keys(ctx, "data/")
	require.NoError(t, err)
	assert.Len(t, metaKeys, 2)
	assert.Len(t, dataKeys, 2)

	for _, key := range dataKeys {
		obj, err := store.Get(ctx, key)
		require.NoError(t, err)
		assert.Contains(t, []int64{10, 20}, obj.Size)
	}
}

func TestRun_MetadataEnvelope(t *testing.T) {
	root := writeTree(t, map[string]string{"dir/sub/file.txt": "hello"})
	store := newTestStore()
	outcomes := &memoryOutcomes{}

	fixed := time.UnixMilli(1700000000000)
	p, err := NewPipeline(store, outcomes, WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(context.Background(), testJob(root))
	require.NoError(t, err)

	metaKeys := store.keysWithPrefix("metadata/")
	require.Len(t, metaKeys, 1)
	assert.True(t, strings.HasPrefix(metaKeys[0], "metadata/1700000000000_"))
	assert.True(t, strings.HasSuffix(metaKeys[0], ".metadata.json"))

	dataKey := "data/" + strings.TrimSuffix(strings.TrimPrefix(metaKeys[0], "metadata/"), ".metadata.json") + ".data"
	assert.Equal(t, []byte("hello"), store.objects[dataKey])

	var envelope struct {
		File struct {
			URI           string `json:"uri"`
			ParentURI     string `json:"parentUri"`
			Size          uint64 `json:"size"`
			IsRegularFile bool   `json:"isRegularFile"`
		} `json:"file"`
		Ingestion string   `json:"ingestion"`
		Languages []string `json:"languages"`
	}
	require.NoError(t, json.Unmarshal(store.objects[metaKeys[0]], &envelope))
	assert.Equal(t, "coll/ingest/dir/sub/file.txt", envelope.File.URI)
	assert.Equal(t, "coll/ingest/dir/sub", envelope.File.ParentURI)
	assert.Equal(t, uint64(5), envelope.File.Size)
	assert.True(t, envelope.File.IsRegularFile)
	assert.Equal(t, "coll/ingest", envelope.Ingestion)
	assert.Equal(t, []string{"english"}, envelope.Languages)
}

func TestRun_ExactlyOneOutcomePerFile(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 200; i++ {
		files[fmt.Sprintf("d%d/f%03d.txt", i%7, i)] = fmt.Sprint(i)
	}
	root := writeTree(t, files)
	store := newTestStore()
	outcomes := &memoryOutcomes{}

	p, err := NewPipeline(store, outcomes, WithPoolSize(8))
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), testJob(root))
	require.NoError(t, err)

	assert.Len(t, outcomes.outcomes, 200)
	assert.Len(t, outcomes.byPath(), 200, "no duplicates")
	assert.Equal(t, 200, stats.Succeeded)
	for rel := range files {
		_, ok := outcomes.byPath()[filepath.Join(root, filepath.FromSlash(rel))]
		assert.True(t, ok, "missing outcome for %s", rel)
	}
}

// slowStore holds every put briefly and records the peak number of
// concurrent puts.
type slowStore struct {
	*testStore
	delay    time.Duration
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (s *slowStore) Put(ctx context.Context, key string, body io.Reader, size int64) error {
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(s.delay)
	return s.testStore.Put(ctx, key, body, size)
}

func TestRun_BoundedConcurrency(t *testing.T) {
	const poolSize = 4
	files := map[string]string{}
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("f%02d.txt", i)] = fmt.Sprint(i)
	}
	root := writeTree(t, files)
	store := &slowStore{testStore: newTestStore(), delay: 10 * time.Millisecond}
	outcomes := &memoryOutcomes{}

	p, err := NewPipeline(store, outcomes, WithPoolSize(poolSize))
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), testJob(root))
	require.NoError(t, err)
	assert.Equal(t, 40, stats.Succeeded)

	assert.LessOrEqual(t, store.peak.Load(), int64(poolSize))
	assert.Greater(t, store.peak.Load(), int64(1), "uploads should overlap")
	assert.Equal(t, int64(0), store.inFlight.Load())
}

func TestRun_MetadataFailureSkipsData(t *testing.T) {
	root := writeTree(t, map[string]string{
		"good.txt": "good",
		"bad.txt":  "bad",
	})
	store := newTestStore()
	store.failOn = func(key string, body []byte) bool {
		return strings.HasPrefix(key, "metadata/") && bytes.Contains(body, []byte("bad.txt"))
	}
	outcomes := &memoryOutcomes{}

	p, err := NewPipeline(store, outcomes)
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), testJob(root))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Succeeded)
	assert.Equal(t, 1, stats.Failed)

	byPath := outcomes.byPath()
	bad := byPath[filepath.Join(root, "bad.txt")]
	assert.Equal(t, core.StatusFailure, bad.Status)
	assert.Equal(t, core.StageUploadMetadata, bad.Stage)
	assert.Contains(t, bad.Reason, "injected failure")
	assert.Equal(t, uint64(3), bad.Size)

	assert.True(t, byPath[filepath.Join(root, "good.txt")].Succeeded())

	dataKeys := store.keysWithPrefix("data/")
	require.Len(t, dataKeys, 1, "no content upload for the failed file")
	assert.Equal(t, []byte("good"), store.objects[dataKeys[0]])
}

func TestRun_DataFailure(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "payload"})
	store := newTestStore()
	store.failOn = func(key string, _ []byte) bool { return strings.HasPrefix(key, "data/") }
	outcomes := &memoryOutcomes{}

	p, err := NewPipeline(store, outcomes)
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), testJob(root))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Failed)

	o := outcomes.byPath()[filepath.Join(root, "a.txt")]
	assert.Equal(t, core.StageUploadData, o.Stage)
	assert.Len(t, store.keysWithPrefix("metadata/"), 1, "metadata stays uploaded")
}

func TestRun_ResumeSkipsSucceededAndRetriesFailed(t *testing.T) {
	root := writeTree(t, map[string]string{
		"1.txt": "one",
		"2.txt": "two",
		"3.txt": "three",
		"4.txt": "four",
		"5.txt": "five",
	})
	logPath := filepath.Join(t.TempDir(), "run.ndjson")

	// First run: 2 and 4 fail at the data stage.
	first := newTestStore()
	first.failOn = func(key string, body []byte) bool {
		return strings.HasPrefix(key, "data/") && (string(body) == "two" || string(body) == "four")
	}
	logger, err := journal.OpenLogger(logPath, core.FormatNDJSON)
	require.NoError(t, err)
	p, err := NewPipeline(first, logger)
	require.NoError(t, err)
	stats, err := p.Run(context.Background(), testJob(root))
	require.NoError(t, err)
	p.Release()
	require.NoError(t, logger.Close())
	assert.Equal(t, 3, stats.Succeeded)
	assert.Equal(t, 2, stats.Failed)

	// Second run resumes from the same log.
	index, err := journal.LoadIndex(logPath, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, index.Len())

	second := newTestStore()
	outcomes := &memoryOutcomes{}
	p, err = NewPipeline(second, outcomes, WithIndex(index))
	require.NoError(t, err)
	defer p.Release()

	stats, err = p.Run(context.Background(), testJob(root))
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Total)
	assert.Equal(t, 3, stats.Skipped)
	assert.Equal(t, 2, stats.Succeeded)

	retried := outcomes.byPath()
	assert.Len(t, retried, 2)
	assert.Contains(t, retried, filepath.Join(root, "2.txt"))
	assert.Contains(t, retried, filepath.Join(root, "4.txt"))
}

func TestRun_EmptyTree(t *testing.T) {
	outcomes := &memoryOutcomes{}
	p, err := NewPipeline(newTestStore(), outcomes)
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), testJob(t.TempDir()))
	require.NoError(t, err)
	assert.Equal(t, &Stats{Elapsed: stats.Elapsed}, stats)
	assert.Empty(t, outcomes.outcomes)
}

func TestRun_MissingRoot(t *testing.T) {
	store := newTestStore()
	p, err := NewPipeline(store, &memoryOutcomes{})
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(context.Background(), testJob(filepath.Join(t.TempDir(), "missing")))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, store.objects)
}

func TestRun_SkipsSymlinks(t *testing.T) {
	root := writeTree(t, map[string]string{"real.txt": "x"})
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	outcomes := &memoryOutcomes{}
	p, err := NewPipeline(newTestStore(), outcomes)
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), testJob(root))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Total)
	assert.Len(t, outcomes.outcomes, 1)
	assert.Contains(t, outcomes.byPath(), filepath.Join(root, "real.txt"))
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b"})
	outcomes := &memoryOutcomes{}
	p, err := NewPipeline(newTestStore(), outcomes)
	require.NoError(t, err)
	defer p.Release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := p.Run(ctx, testJob(root))
	require.NoError(t, err)
	assert.True(t, stats.Interrupted)
	assert.Equal(t, 0, stats.Processed)
	assert.Empty(t, outcomes.outcomes)
}

type countingMetrics struct {
	mu        sync.Mutex
	succeeded int
	failed    int
	skipped   int
}

func (c *countingMetrics) RecordOutcome(o core.Outcome, _ time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.Succeeded() {
		c.succeeded++
	} else {
		c.failed++
	}
}

func (c *countingMetrics) RecordSkipped() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.skipped++
}

func TestRun_ReportsMetricsAndProgress(t *testing.T) {
	root := writeTree(t, map[string]string{"a.txt": "a", "b.txt": "b", "c.txt": "c"})
	store := newTestStore()
	store.failOn = func(key string, body []byte) bool { return string(body) == "c" }

	var progress bytes.Buffer
	metrics := &countingMetrics{}
	index, err := journal.LoadIndex(writeIndexLog(t, filepath.Join(root, "a.txt")), 0)
	require.NoError(t, err)

	p, err := NewPipeline(store, &memoryOutcomes{},
		WithMetrics(metrics),
		WithIndex(index),
		WithProgress(&progress, 1))
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(context.Background(), testJob(root))
	require.NoError(t, err)

	assert.Equal(t, 1, metrics.succeeded)
	assert.Equal(t, 1, metrics.failed)
	assert.Equal(t, 1, metrics.skipped)
	assert.Contains(t, progress.String(), "3/3")
	assert.Contains(t, progress.String(), "1 skipped, 1 failed")
}

func writeIndexLog(t *testing.T, succeeded ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prior.tsv")
	var b strings.Builder
	for _, p := range succeeded {
		line, err := journal.Encode(core.FormatTSV, core.Outcome{Status: core.StatusSuccess, Path: p})
		require.NoError(t, err)
		b.Write(line)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0644))
	return path
}
