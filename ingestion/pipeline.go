package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/archivist/core"
	"github.com/poiesic/archivist/journal"
	"github.com/poiesic/archivist/objectstore"
)

// DefaultPoolSize is the number of files uploaded at once.
const DefaultPoolSize = 128

// OutcomeLogger receives exactly one outcome per attempted file.
// Implementations must be safe for concurrent use.
type OutcomeLogger interface {
	Log(o core.Outcome) error
}

// MetricsRecorder observes a run. Implementations must be safe for
// concurrent use.
type MetricsRecorder interface {
	RecordOutcome(o core.Outcome, elapsed time.Duration)
	RecordSkipped()
}

// Job describes one ingestion run.
type Job struct {
	// Root is the directory to upload. Outcome paths are Root joined with
	// each file's relative path.
	Root string
	// IngestionURI names the target collection and ingestion.
	IngestionURI core.URI
	// Languages are recorded in every metadata envelope.
	Languages []core.Language
}

// Stats summarizes a run.
type Stats struct {
	Total       int           `json:"total"`
	Skipped     int           `json:"skipped"`
	Processed   int           `json:"processed"`
	Succeeded   int           `json:"succeeded"`
	Failed      int           `json:"failed"`
	Elapsed     time.Duration `json:"elapsed_ns"`
	Interrupted bool          `json:"interrupted"`
}

// Pipeline uploads the files of a Job to an object store.
type Pipeline struct {
	store    objectstore.Store
	outcomes OutcomeLogger
	pool     *ants.Pool
	index    *journal.Index
	metrics  MetricsRecorder
	keys     KeyFunc
	now      func() time.Time
	logger   *slog.Logger

	progressWriter   io.Writer
	progressInterval int
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many files are uploaded concurrently.
// Default is DefaultPoolSize, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithIndex skips every path the index holds.
func WithIndex(index *journal.Index) Option {
	return func(p *Pipeline) error {
		p.index = index
		return nil
	}
}

// WithProgress reports progress to w every interval files.
func WithProgress(w io.Writer, interval int) Option {
	return func(p *Pipeline) error {
		p.progressWriter = w
		p.progressInterval = interval
		return nil
	}
}

// WithMetrics records every outcome and skip.
func WithMetrics(m MetricsRecorder) Option {
	return func(p *Pipeline) error {
		p.metrics = m
		return nil
	}
}

// WithKeyFunc replaces RandomKeys.
func WithKeyFunc(fn KeyFunc) Option {
	return func(p *Pipeline) error {
		if fn != nil {
			p.keys = fn
		}
		return nil
	}
}

// WithClock replaces time.Now for outcome timestamps and keys.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) error {
		if now != nil {
			p.now = now
		}
		return nil
	}
}

// NewPipeline creates a pipeline that uploads to store and reports to
// outcomes.
func NewPipeline(store objectstore.Store, outcomes OutcomeLogger, opts ...Option) (*Pipeline, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if outcomes == nil {
		return nil, ErrOutcomeLoggerRequired
	}

	pool, err := ants.NewPool(DefaultPoolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		store:    store,
		outcomes: outcomes,
		pool:     pool,
		index:    journal.EmptyIndex(),
		keys:     RandomKeys,
		now:      time.Now,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	return p, nil
}

// Run uploads every regular file under job.Root that the index does not
// hold. It returns an error only when the run cannot start: an invalid job
// or an unreadable root. Per-file failures are outcomes, not errors.
//
// Cancelling ctx stops new files from starting. Files already started are
// finished and logged before Run returns.
func (p *Pipeline) Run(ctx context.Context, job Job) (*Stats, error) {
	if job.Root == "" {
		return nil, ErrRootRequired
	}
	if job.IngestionURI.IsZero() {
		return nil, ErrIngestionURIRequired
	}

	start := time.Now()
	p.logger.Info("counting files", "root", job.Root)
	total := countFiles(job.Root)

	var tracker *ProgressTracker
	if p.progressWriter != nil {
		tracker = NewProgressTracker(p.progressWriter, total, p.progressInterval)
		tracker.Start()
	}

	p.logger.Info("processing files", "root", job.Root, "total", total, "already_done", p.index.Len())

	var (
		wg                sync.WaitGroup
		skipped           int
		succeeded, failed atomic.Int64
		interrupted       bool
	)
	// In-flight uploads outlive a cancelled walk.
	taskCtx := context.WithoutCancel(ctx)

	walkErr := walkFiles(ctx, job.Root, p.logger, func(path string) error {
		if p.index.Contains(path) {
			skipped++
			if p.metrics != nil {
				p.metrics.RecordSkipped()
			}
			if tracker != nil {
				tracker.Skip()
			}
			return nil
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			o := p.processFile(taskCtx, job, path)
			if o.Succeeded() {
				succeeded.Add(1)
			} else {
				failed.Add(1)
			}
			if tracker != nil {
				tracker.Done(o.Succeeded())
			}
		})
		if err != nil {
			wg.Done()
			return err
		}
		return nil
	})
	if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
		interrupted = true
		walkErr = nil
		p.logger.Warn("ingestion interrupted, waiting for in-flight uploads")
	}

	wg.Wait()
	if tracker != nil {
		tracker.Finish()
	}

	stats := &Stats{
		Total:       total,
		Skipped:     skipped,
		Succeeded:   int(succeeded.Load()),
		Failed:      int(failed.Load()),
		Elapsed:     time.Since(start),
		Interrupted: interrupted,
	}
	stats.Processed = stats.Succeeded + stats.Failed

	if walkErr != nil {
		return stats, walkErr
	}

	p.logger.Info("ingestion finished",
		"total", stats.Total,
		"skipped", stats.Skipped,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
		"elapsed", stats.Elapsed)
	return stats, nil
}

// processFile uploads one file and logs its outcome. Metadata is always
// stored before content; a file whose metadata fails has no content upload.
func (p *Pipeline) processFile(ctx context.Context, job Job, path string) core.Outcome {
	started := p.now()
	keys := p.keys(started)

	o := p.upload(ctx, job, path, keys, started)

	if err := p.outcomes.Log(o); err != nil {
		p.logger.Error("failed to log outcome", "path", path, "err", err)
	}
	if p.metrics != nil {
		p.metrics.RecordOutcome(o, p.now().Sub(started))
	}
	return o
}

func (p *Pipeline) upload(ctx context.Context, job Job, path string, keys ObjectKeys, started time.Time) core.Outcome {
	record, err := core.NewFileRecord(job.IngestionURI, job.Root, path)
	if err != nil {
		p.logger.Warn("failed to read file", "path", path, "err", err)
		return core.NewFailure(path, 0, started, p.now(), core.StageUploadMetadata, err)
	}

	envelope, err := json.Marshal(core.NewMetadata(job.IngestionURI, record, job.Languages))
	if err != nil {
		return core.NewFailure(path, record.Size, started, p.now(), core.StageUploadMetadata, err)
	}

	if err := objectstore.PutBytes(ctx, p.store, keys.Metadata, envelope); err != nil {
		p.logger.Warn("failed to upload metadata", "path", path, "key", keys.Metadata, "err", err)
		return core.NewFailure(path, record.Size, started, p.now(), core.StageUploadMetadata, err)
	}

	if _, err := objectstore.PutFile(ctx, p.store, keys.Data, path); err != nil {
		p.logger.Warn("failed to upload data", "path", path, "key", keys.Data, "err", err)
		return core.NewFailure(path, record.Size, started, p.now(), core.StageUploadData, err)
	}

	p.logger.Debug("uploaded file", "path", path, "size", record.Size, "key", keys.Data)
	return core.NewSuccess(path, record.Size, started, p.now())
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
