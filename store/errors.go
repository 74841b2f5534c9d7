/*
 * Copyright 2019 The CovenantSQL Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package store

import (
	"strings"
	"unicode"

	"github.com/pkg/errors"
)

var (
	// ErrNoActiveRun defines error on writing sessions or log records outside a run.
	ErrNoActiveRun = errors.New("no active run")

	// ErrRunActive defines error on starting a run while another one is active.
	ErrRunActive = errors.New("run already active")

	// ErrDuplicateEntry defines error on re-registering an existing catalog entry without force.
	ErrDuplicateEntry = errors.New("catalog entry already exists")

	// ErrEntryNotFound defines error on looking up a catalog entry that does not exist.
	ErrEntryNotFound = errors.New("catalog entry not found")

	// ErrInvalidMetaType defines error on an unknown or unsupported catalog type.
	ErrInvalidMetaType = errors.New("invalid catalog type")

	// ErrInvalidName defines error on a malformed catalog or session name.
	ErrInvalidName = errors.New("invalid name")

	// ErrSessionNotFound defines error on addressing a session that does not exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrClosed defines error on using a closed store.
	ErrClosed = errors.New("store closed")
)

const maxNameLength = 256

// ValidName reports whether name may be used as a catalog entry or session name.
func ValidName(name string) bool {
	if name == "" || len(name) > maxNameLength || strings.TrimSpace(name) != name {
		return false
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return false
		}
	}
	return true
}

// ValidSessionName is ValidName without path separators.
func ValidSessionName(name string) bool {
	return ValidName(name) && !strings.Contains(name, "/") && name != "." && name != ".."
}
