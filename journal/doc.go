// Package journal reads and writes outcome logs.
//
// An outcome log records, one line per file, whether an ingestion run stored
// that file. Lines are either tab-separated (.tsv) or newline-delimited JSON
// (.ndjson); one log uses one format throughout.
//
// The Logger serializes concurrent outcomes through a single writer so every
// line is whole. LoadIndex reads a log back into the set of paths that
// succeeded, which a resumed run skips.
package journal
