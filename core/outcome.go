package core

import (
	"fmt"
	"strings"
	"time"
)

// Status is the terminal state of one attempted file.
type Status int

const (
	// StatusSuccess means both metadata and content were stored.
	StatusSuccess Status = iota + 1
	// StatusFailure means one of the upload stages failed.
	StatusFailure
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "Success"
	case StatusFailure:
		return "Failure"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// FailureStage names the upload step that failed.
type FailureStage int

const (
	// StageNone is used on successful outcomes.
	StageNone FailureStage = iota
	// StageUploadMetadata covers building and storing the metadata envelope.
	StageUploadMetadata
	// StageUploadData covers storing the file content.
	StageUploadData
)

func (s FailureStage) String() string {
	switch s {
	case StageUploadMetadata:
		return "UploadMetadata"
	case StageUploadData:
		return "UploadData"
	default:
		return ""
	}
}

// ParseFailureStage accepts the NDJSON stage names.
func ParseFailureStage(s string) (FailureStage, error) {
	switch s {
	case "UploadMetadata":
		return StageUploadMetadata, nil
	case "UploadData":
		return StageUploadData, nil
	default:
		return StageNone, fmt.Errorf("%w: unknown failure stage %q", ErrInvalidOutcome, s)
	}
}

// Outcome is the terminal record for one attempted file. It is written once
// and never changed; a log of outcomes is what a later run resumes from.
type Outcome struct {
	Status      Status
	Path        string
	Size        uint64
	StartMillis int64
	EndMillis   int64
	Stage       FailureStage // StageNone on success
	Reason      string       // empty on success
}

// NewSuccess builds a success outcome.
func NewSuccess(path string, size uint64, start, end time.Time) Outcome {
	return Outcome{
		Status:      StatusSuccess,
		Path:        path,
		Size:        size,
		StartMillis: start.UnixMilli(),
		EndMillis:   end.UnixMilli(),
	}
}

// NewFailure builds a failure outcome tagged with the failing stage.
func NewFailure(path string, size uint64, start, end time.Time, stage FailureStage, reason error) Outcome {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return Outcome{
		Status:      StatusFailure,
		Path:        path,
		Size:        size,
		StartMillis: start.UnixMilli(),
		EndMillis:   end.UnixMilli(),
		Stage:       stage,
		Reason:      msg,
	}
}

// Succeeded reports whether the outcome is a success.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Format selects the serialization of the outcome log and CLI output.
type Format int

const (
	// FormatTSV writes tab-separated rows.
	FormatTSV Format = iota + 1
	// FormatNDJSON writes one JSON object per line.
	FormatNDJSON
)

// ParseFormat accepts the CLI names "tsv" and "json" (and "ndjson").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "tsv":
		return FormatTSV, nil
	case "json", "ndjson":
		return FormatNDJSON, nil
	default:
		return 0, fmt.Errorf("%w %q: must be one of tsv, json", ErrInvalidFormat, s)
	}
}

// Extension returns the file extension used for outcome logs, without a dot.
func (f Format) Extension() string {
	switch f {
	case FormatTSV:
		return "tsv"
	case FormatNDJSON:
		return "ndjson"
	default:
		return ""
	}
}

func (f Format) String() string {
	switch f {
	case FormatTSV:
		return "tsv"
	case FormatNDJSON:
		return "json"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}
