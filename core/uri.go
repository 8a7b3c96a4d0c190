package core

import (
	"encoding/json"
	"path/filepath"
	"regexp"
	"strings"
)

// uriPattern matches "segment/segment(/segment)*" where no segment is empty
// or contains '.', '/' or a newline. A single trailing slash is tolerated.
var uriPattern = regexp.MustCompile(`^[^\n/.]+(/[^\n/.]+)+/?$`)

// URI identifies an ingestion, or a file inside one, in the form
// "collection/ingestion[/path...]". The zero value is not a valid URI.
type URI struct {
	value string
}

// ParseURI validates s and returns it as a URI.
func ParseURI(s string) (URI, error) {
	if !uriPattern.MatchString(s) {
		return URI{}, NewInputError("URI must be in the form 'collection/ingestion'. Provided '%s'", s)
	}
	return URI{value: strings.TrimSuffix(s, "/")}, nil
}

// MustParseURI is like ParseURI but panics on invalid input.
// Intended for constants and tests.
func MustParseURI(s string) URI {
	u, err := ParseURI(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Collection returns the first segment.
func (u URI) Collection() string {
	return u.segment(0)
}

// Ingestion returns the second segment.
func (u URI) Ingestion() string {
	return u.segment(1)
}

func (u URI) segment(i int) string {
	parts := strings.SplitN(u.value, "/", 3)
	if i >= len(parts) {
		return ""
	}
	return parts[i]
}

// Extend returns a new URI with the given path appended. OS separators are
// converted to '/' and a trailing slash is dropped. Absolute paths are
// appended as-is so the separator is not doubled.
func (u URI) Extend(path string) URI {
	p := strings.TrimRight(filepath.ToSlash(path), "/")
	if p == "" || p == "." {
		return u
	}
	if strings.HasPrefix(p, "/") {
		return URI{value: u.value + p}
	}
	return URI{value: u.value + "/" + p}
}

// IsZero reports whether u was never parsed.
func (u URI) IsZero() bool {
	return u.value == ""
}

func (u URI) String() string {
	return u.value
}

// MarshalJSON encodes the URI as a plain JSON string.
func (u URI) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.value)
}
