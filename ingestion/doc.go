// Package ingestion uploads a directory tree to an object store.
//
// A Pipeline walks the source directory, skips files an earlier run already
// stored, and uploads every other regular file as two objects: a JSON
// metadata envelope and then the raw content. Uploads run concurrently on a
// bounded worker pool.
//
// Every attempted file produces exactly one core.Outcome, handed to an
// OutcomeLogger. A failed file never stops the others; it is recorded and
// retried by the next run that resumes from the log.
package ingestion
