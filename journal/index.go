package journal

import (
	"bufio"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/archivist/core"
)

// maxLineSize bounds a single log line; paths and reasons are short.
const maxLineSize = 1 << 20

// Index is the set of paths a previous run stored successfully.
// It is built once and never modified, so lookups need no locking.
type Index struct {
	paths map[string]struct{}
}

// EmptyIndex returns an index that skips nothing.
func EmptyIndex() *Index {
	return &Index{paths: map[string]struct{}{}}
}

// Contains reports whether path already succeeded.
func (ix *Index) Contains(path string) bool {
	if ix == nil {
		return false
	}
	_, ok := ix.paths[path]
	return ok
}

// Len returns the number of indexed paths.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return len(ix.paths)
}

// FormatFromPath infers a log's format from its extension.
func FormatFromPath(path string) (core.Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".tsv":
		return core.FormatTSV, nil
	case ".ndjson", ".json", ".jsonl":
		return core.FormatNDJSON, nil
	default:
		return 0, core.NewInputError("cannot infer log format of %q: use a .tsv or .ndjson file or pass the format explicitly", path)
	}
}

// LoadIndex reads a prior outcome log. An empty path yields an empty index.
// When format is zero it is inferred from the file extension; either way it
// is fixed for the whole file. Only Success records are indexed so failed
// files are attempted again. Any unreadable or malformed line is an
// InputError, except an unterminated final line, which is ignored.
func LoadIndex(path string, format core.Format) (*Index, error) {
	if path == "" {
		return EmptyIndex(), nil
	}
	if format == 0 {
		f, err := FormatFromPath(path)
		if err != nil {
			return nil, err
		}
		format = f
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, &core.InputError{Msg: "cannot open progress log " + path, Err: err}
	}
	defer file.Close()

	ix := EmptyIndex()
	reader := bufio.NewReaderSize(file, 64*1024)

	lineNo := 0
	for {
		raw, readErr := reader.ReadString('\n')
		if readErr != nil && readErr != io.EOF {
			return nil, &core.InputError{Msg: "cannot read progress log " + path, Err: readErr}
		}
		if raw == "" && readErr == io.EOF {
			break
		}
		lineNo++
		complete := strings.HasSuffix(raw, "\n")
		line := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		if len(line) > maxLineSize {
			return nil, core.NewInputError("line %d of %s exceeds %d bytes", lineNo, path, maxLineSize)
		}
		if strings.TrimSpace(line) != "" {
			o, err := Decode(format, line)
			switch {
			case err != nil && !complete:
				// A run killed mid-write can leave a torn final line; the
				// file will simply be attempted again.
			case err != nil:
				return nil, &core.InputError{Msg: "invalid record in log file " + path + " at line " + strconv.Itoa(lineNo), Err: err}
			case o.Succeeded():
				ix.paths[o.Path] = struct{}{}
			}
		}
		if readErr == io.EOF {
			break
		}
	}
	return ix, nil
}

// DefaultLogName returns the log file name used when none is given:
// ingestion-<unix millis>.<ext>.
func DefaultLogName(now time.Time, format core.Format) string {
	return "ingestion-" + strconv.FormatInt(now.UnixMilli(), 10) + "." + format.Extension()
}
