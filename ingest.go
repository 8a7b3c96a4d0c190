package archivist

import (
	"context"
	"fmt"
	"os"

	"github.com/poiesic/archivist/core"
	"github.com/poiesic/archivist/ingestion"
	"github.com/poiesic/archivist/journal"
	"github.com/poiesic/archivist/metrics"
	"github.com/poiesic/archivist/objectstore"
)

// IngestRequest describes an ingest command.
type IngestRequest struct {
	// Server is the catalog URI; empty uses the configured server.
	Server       string
	IngestionURI core.URI
	// Path is the directory to upload.
	Path string
	// Languages defaults to the configured languages when empty.
	Languages []core.Language
	// ProgressFrom is a previous outcome log whose successes are skipped.
	ProgressFrom string
	// ProgressFormat is the format of ProgressFrom; zero infers it from
	// the file extension.
	ProgressFormat core.Format
	// LogFile receives this run's outcomes. Empty picks
	// ingestion-<millis>.<ext> in the working directory.
	LogFile string
}

// IngestResult reports a finished ingest.
type IngestResult struct {
	Stats   *ingestion.Stats
	LogFile string
}

// Ingest makes sure the target collection and ingestion exist, then uploads
// every file under req.Path that the previous log does not list as done.
// Per-file failures are recorded in the outcome log, not returned.
func (a *Archivist) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	if req.IngestionURI.IsZero() {
		return nil, core.NewInputError("no ingestion URI given")
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, &core.InputError{Msg: "cannot read ingestion path", Err: err}
	}
	if !info.IsDir() {
		return nil, core.NewInputError("ingestion path %s is not a directory", req.Path)
	}

	languages := req.Languages
	if len(languages) == 0 {
		languages, err = core.ParseLanguages(a.cfg.Ingest.Languages)
		if err != nil {
			return nil, &core.InputError{Msg: "invalid configured languages", Err: err}
		}
	}
	if len(languages) == 0 {
		return nil, core.NewInputError("at least one language is required")
	}

	// Read the previous log first so a bad one fails before anything
	// touches the catalog.
	index, err := journal.LoadIndex(req.ProgressFrom, req.ProgressFormat)
	if err != nil {
		return nil, err
	}

	client, err := a.Catalog(req.Server)
	if err != nil {
		return nil, err
	}
	coll, err := client.GetOrInsertCollection(ctx, req.IngestionURI)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create collection: %w", err)
	}
	if err := client.GetOrInsertIngestion(ctx, req.IngestionURI, coll, req.Path, languages); err != nil {
		return nil, fmt.Errorf("failed to get or create ingestion: %w", err)
	}

	store := a.store
	if store == nil {
		if err := a.cfg.ValidateStore(); err != nil {
			return nil, &core.InputError{Msg: "invalid object store configuration", Err: err}
		}
		store, err = OpenStore(ctx, a.cfg.Store, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open object store: %w", err)
		}
		defer func() {
			if err := store.Close(); err != nil {
				a.logger.Error("error closing object store", "err", err)
			}
		}()
	}

	logFile, format, err := a.outcomeLog(req.LogFile)
	if err != nil {
		return nil, err
	}
	outcomes, err := journal.OpenLogger(logFile, format, journal.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	a.logger.Info("writing outcomes", "file", logFile, "format", format)

	stats, runErr := a.runPipeline(ctx, store, outcomes, req, languages, index)
	if err := outcomes.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return &IngestResult{Stats: stats, LogFile: logFile}, runErr
}

func (a *Archivist) outcomeLog(name string) (string, core.Format, error) {
	format, err := core.ParseFormat(a.cfg.Ingest.LogFormat)
	if err != nil {
		return "", 0, &core.InputError{Msg: "invalid outcome log format", Err: err}
	}
	if name == "" {
		return journal.DefaultLogName(a.now(), format), format, nil
	}
	if inferred, err := journal.FormatFromPath(name); err == nil {
		format = inferred
	}
	return name, format, nil
}

func (a *Archivist) runPipeline(ctx context.Context, store objectstore.Store, outcomes ingestion.OutcomeLogger,
	req IngestRequest, languages []core.Language, index *journal.Index) (*ingestion.Stats, error) {
	run := metrics.NewRun(req.IngestionURI.String())

	opts := []ingestion.Option{
		ingestion.WithPoolSize(a.cfg.Ingest.Concurrency),
		ingestion.WithLogger(a.logger),
		ingestion.WithIndex(index),
		ingestion.WithMetrics(run),
	}
	if a.progress != nil {
		opts = append(opts, ingestion.WithProgress(a.progress, a.cfg.Ingest.ProgressInterval))
	}

	pipeline, err := ingestion.NewPipeline(store, outcomes, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingestion pipeline: %w", err)
	}
	defer pipeline.Release()

	stats, err := pipeline.Run(ctx, ingestion.Job{
		Root:         req.Path,
		IngestionURI: req.IngestionURI,
		Languages:    languages,
	})

	run.Finish(a.now())
	if path := a.cfg.Metrics.File; path != "" {
		if werr := run.WriteTextfile(path); werr != nil {
			a.logger.Warn("failed to write metrics file", "file", path, "err", werr)
		}
	}
	return stats, err
}
