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

package rpc

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/explog/store"
)

// ErrorKind classifies a failure crossing the wire.
type ErrorKind string

// Error kinds.
const (
	KindNoActiveRun     ErrorKind = "no_active_run"
	KindRunActive       ErrorKind = "run_active"
	KindDuplicateEntry  ErrorKind = "duplicate_entry"
	KindInvalidName     ErrorKind = "invalid_name"
	KindInvalidMetaType ErrorKind = "invalid_meta_type"
	KindNotFound        ErrorKind = "not_found"
	KindSessionNotFound ErrorKind = "session_not_found"
	KindBadArgument     ErrorKind = "bad_argument"
	KindClosed          ErrorKind = "closed"
	KindUnknownMethod   ErrorKind = "unknown_method"
	KindInternal        ErrorKind = "internal"
)

var (
	// ErrBadArgument defines error on a call argument of the wrong type or a missing one.
	ErrBadArgument = errors.New("bad argument")

	// ErrUnknownMethod defines error on calling a method that is not remote callable.
	ErrUnknownMethod = errors.New("unknown method")

	// ErrInternal is the cause of remote failures that have no dedicated kind.
	ErrInternal = errors.New("internal error")

	// ErrNotOpened defines error on using a closed proxy or publisher.
	ErrNotOpened = errors.New("connection not opened")
)

var kindCauses = map[ErrorKind]error{
	KindNoActiveRun:     store.ErrNoActiveRun,
	KindRunActive:       store.ErrRunActive,
	KindDuplicateEntry:  store.ErrDuplicateEntry,
	KindInvalidName:     store.ErrInvalidName,
	KindInvalidMetaType: store.ErrInvalidMetaType,
	KindNotFound:        store.ErrEntryNotFound,
	KindSessionNotFound: store.ErrSessionNotFound,
	KindBadArgument:     ErrBadArgument,
	KindClosed:          store.ErrClosed,
	KindUnknownMethod:   ErrUnknownMethod,
}

// RemoteError is a failure raised by the server, carried back to the caller.
type RemoteError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Trace   string    `json:"trace"`
}

// Error implements error.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s: %s", e.Kind, e.Message)
}

// Cause returns the sentinel error matching the kind, so errors.Cause on a RemoteError gives
// the same value it gives on the server side.
func (e *RemoteError) Cause() error {
	if c, ok := kindCauses[e.Kind]; ok {
		return c
	}
	return ErrInternal
}

// NewRemoteError classifies err by its cause.
func NewRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	if re, ok := err.(*RemoteError); ok {
		return re
	}
	kind := KindInternal
	cause := errors.Cause(err)
	for k, c := range kindCauses {
		if c == cause {
			kind = k
			break
		}
	}
	return &RemoteError{
		Kind:    kind,
		Message: err.Error(),
		Trace:   fmt.Sprintf("%+v", err),
	}
}
