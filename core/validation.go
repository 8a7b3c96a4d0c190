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
	"fmt"
	"strings"
)

// ParseLanguage maps a case-insensitive name onto a supported Language.
func ParseLanguage(s string) (Language, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, l := range Languages {
		if string(l) == name {
			return l, nil
		}
	}
	return "", fmt.Errorf("%w %q", ErrInvalidLanguage, s)
}

// ParseLanguages parses each name, dropping duplicates while keeping order.
func ParseLanguages(names []string) ([]Language, error) {
	seen := make(map[Language]bool, len(names))
	langs := make([]Language, 0, len(names))
	for _, n := range names {
		l, err := ParseLanguage(n)
		if err != nil {
			return nil, err
		}
		if seen[l] {
			continue
		}
		seen[l] = true
		langs = append(langs, l)
	}
	return langs, nil
}

// ValidateOutcome checks the success/failure shape of an outcome.
//
// Validation rules:
//   - Status must be Success or Failure
//   - Path must not be empty
//   - Success carries no stage; Failure must name one
//   - EndMillis must not precede StartMillis
func ValidateOutcome(o Outcome) error {
	if o.Path == "" {
		return fmt.Errorf("%w: empty path", ErrInvalidOutcome)
	}
	switch o.Status {
	case StatusSuccess:
		if o.Stage != StageNone {
			return fmt.Errorf("%w: success with failure stage %s", ErrInvalidOutcome, o.Stage)
		}
	case StatusFailure:
		if o.Stage != StageUploadMetadata && o.Stage != StageUploadData {
			return fmt.Errorf("%w: failure without stage", ErrInvalidOutcome)
		}
	default:
		return fmt.Errorf("%w: status %d", ErrInvalidOutcome, o.Status)
	}
	if o.EndMillis < o.StartMillis {
		return fmt.Errorf("%w: ends before it starts", ErrInvalidOutcome)
	}
	return nil
}
