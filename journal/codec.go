package journal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/poiesic/archivist/core"
)

const (
	tsvSuccess = "success"
	tsvFailure = "failure"

	tsvStageMetadata = "failed_to_upload_metadata"
	tsvStageData     = "failed_to_upload_data"

	tsvColumns = 7
)

// jsonOutcome is the NDJSON wire shape. Field order is the on-disk order.
type jsonOutcome struct {
	Status       string  `json:"status"`
	Path         string  `json:"path"`
	PathBytes    string  `json:"path_b64,omitempty"`
	Size         uint64  `json:"size"`
	StartMillis  int64   `json:"start_millis"`
	EndMillis    int64   `json:"end_millis"`
	FailureStage *string `json:"failure_stage,omitempty"`
	Reason       *string `json:"reason,omitempty"`
}

// Encode renders o as a single newline-terminated line.
func Encode(format core.Format, o core.Outcome) ([]byte, error) {
	switch format {
	case core.FormatTSV:
		return []byte(encodeTSV(o)), nil
	case core.FormatNDJSON:
		return encodeJSON(o)
	default:
		return nil, fmt.Errorf("%w: %v", core.ErrInvalidFormat, format)
	}
}

// Decode parses one line (without its newline) written by Encode.
func Decode(format core.Format, line string) (core.Outcome, error) {
	switch format {
	case core.FormatTSV:
		return decodeTSV(line)
	case core.FormatNDJSON:
		return decodeJSON(line)
	default:
		return core.Outcome{}, fmt.Errorf("%w: %v", core.ErrInvalidFormat, format)
	}
}

func encodeTSV(o core.Outcome) string {
	status, stage := tsvSuccess, ""
	if !o.Succeeded() {
		status = tsvFailure
		stage = tsvStage(o.Stage)
	}
	var b strings.Builder
	b.WriteString(status)
	b.WriteByte('\t')
	b.WriteString(escapePath(o.Path))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatUint(o.Size, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(o.StartMillis, 10))
	b.WriteByte('\t')
	b.WriteString(strconv.FormatInt(o.EndMillis, 10))
	b.WriteByte('\t')
	b.WriteString(stage)
	b.WriteByte('\t')
	b.WriteString(sanitizeReason(o.Reason))
	b.WriteByte('\n')
	return b.String()
}

// sanitizeReason keeps a reason on one TSV row.
func sanitizeReason(s string) string {
	return strings.NewReplacer("\t", " ", "\r", " ", "\n", " ").Replace(s)
}

var (
	pathEscaper   = strings.NewReplacer(`\`, `\\`, "\t", `\t`, "\n", `\n`, "\r", `\r`)
	pathUnescaper = strings.NewReplacer(`\\`, `\`, `\t`, "\t", `\n`, "\n", `\r`, "\r")
)

// escapePath keeps a path in one TSV column.
func escapePath(s string) string {
	return pathEscaper.Replace(s)
}

// unescapePath reverses escapePath. Unknown sequences are kept as written.
func unescapePath(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return pathUnescaper.Replace(s)
}

func tsvStage(s core.FailureStage) string {
	switch s {
	case core.StageUploadMetadata:
		return tsvStageMetadata
	case core.StageUploadData:
		return tsvStageData
	default:
		return ""
	}
}

func decodeTSV(line string) (core.Outcome, error) {
	cols := strings.Split(line, "\t")
	// Older logs ended success rows after the end timestamp's tab.
	if len(cols) == tsvColumns-1 && cols[0] == tsvSuccess {
		cols = append(cols, "")
	}
	n := len(cols)
	if n != tsvColumns {
		return core.Outcome{}, fmt.Errorf("expected %d columns, found %d", tsvColumns, n)
	}

	o := core.Outcome{Path: unescapePath(cols[1]), Reason: cols[n-1]}
	var err error
	if o.Size, err = strconv.ParseUint(cols[n-5], 10, 64); err != nil {
		return core.Outcome{}, fmt.Errorf("invalid size %q", cols[n-5])
	}
	if o.StartMillis, err = strconv.ParseInt(cols[n-4], 10, 64); err != nil {
		return core.Outcome{}, fmt.Errorf("invalid start_millis %q", cols[n-4])
	}
	if o.EndMillis, err = strconv.ParseInt(cols[n-3], 10, 64); err != nil {
		return core.Outcome{}, fmt.Errorf("invalid end_millis %q", cols[n-3])
	}

	switch cols[0] {
	case tsvSuccess:
		o.Status = core.StatusSuccess
		o.Reason = ""
	case tsvFailure:
		o.Status = core.StatusFailure
		switch cols[n-2] {
		case tsvStageMetadata:
			o.Stage = core.StageUploadMetadata
		case tsvStageData:
			o.Stage = core.StageUploadData
		default:
			return core.Outcome{}, fmt.Errorf("invalid failure stage %q", cols[n-2])
		}
	default:
		return core.Outcome{}, fmt.Errorf("invalid status %q", cols[0])
	}
	return o, nil
}

func encodeJSON(o core.Outcome) ([]byte, error) {
	rec := jsonOutcome{
		Status:      o.Status.String(),
		Path:        o.Path,
		Size:        o.Size,
		StartMillis: o.StartMillis,
		EndMillis:   o.EndMillis,
	}
	// JSON strings cannot carry invalid UTF-8, so such paths also travel as raw bytes.
	if !utf8.ValidString(o.Path) {
		rec.Path = strings.ToValidUTF8(o.Path, "\uFFFD")
		rec.PathBytes = base64.StdEncoding.EncodeToString([]byte(o.Path))
	}
	if !o.Succeeded() {
		stage, reason := o.Stage.String(), o.Reason
		rec.FailureStage = &stage
		rec.Reason = &reason
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func decodeJSON(line string) (core.Outcome, error) {
	var rec jsonOutcome
	if err := json.Unmarshal([]byte(line), &rec); err != nil {
		return core.Outcome{}, err
	}
	o := core.Outcome{
		Path:        rec.Path,
		Size:        rec.Size,
		StartMillis: rec.StartMillis,
		EndMillis:   rec.EndMillis,
	}
	if rec.PathBytes != "" {
		raw, err := base64.StdEncoding.DecodeString(rec.PathBytes)
		if err != nil {
			return core.Outcome{}, fmt.Errorf("invalid path_b64: %w", err)
		}
		o.Path = string(raw)
	}
	switch rec.Status {
	case "Success":
		o.Status = core.StatusSuccess
	case "Failure":
		o.Status = core.StatusFailure
		if rec.FailureStage == nil {
			return core.Outcome{}, fmt.Errorf("failure record without failure_stage")
		}
		stage, err := core.ParseFailureStage(*rec.FailureStage)
		if err != nil {
			return core.Outcome{}, err
		}
		o.Stage = stage
		if rec.Reason != nil {
			o.Reason = *rec.Reason
		}
	default:
		return core.Outcome{}, fmt.Errorf("invalid status %q", rec.Status)
	}
	if o.Path == "" {
		return core.Outcome{}, fmt.Errorf("record without path")
	}
	return o, nil
}
