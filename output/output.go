// Package output prints command results to stdout as TSV rows or JSON lines
// and maps errors to the process exit codes.
package output

import (
	"encoding/json"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/poiesic/archivist/core"
	"github.com/poiesic/archivist/ingestion"
)

// Exit codes. These are stable; scripts depend on them.
const (
	ExitOK            = 0
	ExitHash          = 1
	ExitSetAuthToken  = 2
	ExitAPI           = 3
	ExitPipeline      = 4
	ExitSerialization = 5
	ExitUsage         = 6
)

// ExitCode picks the exit code for err. Input, serialization and catalog
// errors have their own codes; anything else gets fallback.
func ExitCode(err error, fallback int) int {
	var serr *core.SerializationError
	switch {
	case err == nil:
		return ExitOK
	case core.IsInputError(err):
		return ExitUsage
	case errors.As(err, &serr):
		return ExitSerialization
	case core.IsAPIError(err):
		return ExitAPI
	default:
		return fallback
	}
}

// FileCheck is the result of check-file.
type FileCheck struct {
	Hash   string `json:"hash"`
	Path   string `json:"path"`
	Exists bool   `json:"exists"`
}

// CollectionDeletion is the result of delete-collection.
type CollectionDeletion struct {
	Collection   string `json:"collection"`
	DeletedBlobs int    `json:"deleted_blobs"`
}

// Printer writes one result per line in a fixed format.
type Printer struct {
	w      io.Writer
	format core.Format
}

// NewPrinter returns a Printer writing to w. Unknown formats fall back to TSV.
func NewPrinter(w io.Writer, format core.Format) *Printer {
	if format != core.FormatNDJSON {
		format = core.FormatTSV
	}
	return &Printer{w: w, format: format}
}

// Hash prints a hash result.
func (p *Printer) Hash(r core.HashResult) error {
	return p.row(r, r.Hash, r.Path)
}

// Exists prints the result of check-hash.
func (p *Printer) Exists(exists bool) error {
	return p.row(struct {
		Exists bool `json:"exists"`
	}{exists}, boolField(exists))
}

// FileCheck prints the result of check-file.
func (p *Printer) FileCheck(r FileCheck) error {
	return p.row(r, r.Hash, r.Path, boolField(r.Exists))
}

// Blobs prints one line per blob.
func (p *Printer) Blobs(blobs []core.Blob) error {
	for _, b := range blobs {
		if err := p.row(b, b.URI, strings.Join(b.Ingestions, ",")); err != nil {
			return err
		}
	}
	return nil
}

// Stats prints the summary of an ingest run.
func (p *Printer) Stats(s *ingestion.Stats) error {
	return p.row(s,
		strconv.Itoa(s.Total),
		strconv.Itoa(s.Skipped),
		strconv.Itoa(s.Processed),
		strconv.Itoa(s.Succeeded),
		strconv.Itoa(s.Failed),
		strconv.FormatInt(s.Elapsed.Nanoseconds(), 10),
		boolField(s.Interrupted))
}

// CollectionDeletion prints the result of delete-collection.
func (p *Printer) CollectionDeletion(d CollectionDeletion) error {
	return p.row(d, d.Collection, strconv.Itoa(d.DeletedBlobs))
}

func (p *Printer) row(v any, fields ...string) error {
	var line []byte
	if p.format == core.FormatNDJSON {
		data, err := json.Marshal(v)
		if err != nil {
			return &core.SerializationError{Err: err}
		}
		line = append(data, '\n')
	} else {
		for i, f := range fields {
			fields[i] = tsvEscaper.Replace(f)
		}
		line = []byte(strings.Join(fields, "\t") + "\n")
	}
	if _, err := p.w.Write(line); err != nil {
		return &core.SerializationError{Err: err}
	}
	return nil
}

var tsvEscaper = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

func boolField(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
