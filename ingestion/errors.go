package ingestion

import "errors"

var (
	// ErrStoreRequired is returned when an object store is not provided.
	ErrStoreRequired = errors.New("object store required")

	// ErrOutcomeLoggerRequired is returned when an outcome logger is not provided.
	ErrOutcomeLoggerRequired = errors.New("outcome logger required")

	// ErrRootRequired is returned when a job has no source directory.
	ErrRootRequired = errors.New("source path required")

	// ErrIngestionURIRequired is returned when a job has no ingestion URI.
	ErrIngestionURIRequired = errors.New("ingestion URI required")
)
