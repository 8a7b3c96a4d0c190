// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import (
	"errors"
	"fmt"
	"net/http"
)

// Domain errors
var (
	// ErrAuth indicates the catalog rejected our credentials (HTTP 401).
	ErrAuth = errors.New("API auth error")

	// ErrUnsupportedSystem indicates no per-user home directory could be found.
	ErrUnsupportedSystem = errors.New("your current OS is not supported, please use Linux, MacOS, or Windows")

	// ErrInvalidLanguage indicates a language name outside the supported set.
	ErrInvalidLanguage = errors.New("invalid language")

	// ErrInvalidFormat indicates an unknown serialization format name.
	ErrInvalidFormat = errors.New("invalid format")

	// ErrInvalidOutcome indicates an Outcome that violates the success/failure shape.
	ErrInvalidOutcome = errors.New("invalid outcome")
)

// InputError reports malformed user input: a bad URI, flag, or log record.
type InputError struct {
	Msg string
	Err error
}

// NewInputError formats a new InputError.
func NewInputError(format string, args ...any) *InputError {
	return &InputError{Msg: fmt.Sprintf(format, args...)}
}

func (e *InputError) Error() string {
	if e.Err != nil {
		return "input error: " + e.Msg + ": " + e.Err.Error()
	}
	return "input error: " + e.Msg
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// UnexpectedResponseError reports a catalog status code we don't accept.
type UnexpectedResponseError struct {
	StatusCode int
}

func (e *UnexpectedResponseError) Error() string {
	return fmt.Sprintf("unexpected response from server: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// SerializationError reports a failure to encode or persist output.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return "serialization error: " + e.Err.Error()
}

func (e *SerializationError) Unwrap() error {
	return e.Err
}

// IsInputError reports whether err wraps an InputError.
func IsInputError(err error) bool {
	var ie *InputError
	return errors.As(err, &ie)
}

// IsAPIError reports whether err came from a rejected catalog call.
func IsAPIError(err error) bool {
	var ue *UnexpectedResponseError
	return errors.Is(err, ErrAuth) || errors.As(err, &ue)
}
