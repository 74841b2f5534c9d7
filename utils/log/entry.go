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

package log

import (
	"github.com/sirupsen/logrus"
)

// Entry wraps logrus entry type.
type Entry logrus.Entry

func (entry *Entry) raw() *logrus.Entry { return (*logrus.Entry)(entry) }

// WithError adds an error as single field (using the key defined in ErrorKey) to the Entry.
func (entry *Entry) WithError(err error) *Entry {
	return (*Entry)(entry.raw().WithError(err))
}

// WithField adds a single field to the Entry.
func (entry *Entry) WithField(key string, value interface{}) *Entry {
	return (*Entry)(entry.raw().WithField(key, value))
}

// WithFields adds a map of fields to the Entry.
func (entry *Entry) WithFields(fields Fields) *Entry {
	return (*Entry)(entry.raw().WithFields(logrus.Fields(fields)))
}

func (entry *Entry) Debug(args ...interface{})   { entry.raw().Debug(args...) }
func (entry *Entry) Info(args ...interface{})    { entry.raw().Info(args...) }
func (entry *Entry) Warning(args ...interface{}) { entry.raw().Warning(args...) }
func (entry *Entry) Error(args ...interface{})   { entry.raw().Error(args...) }
func (entry *Entry) Fatal(args ...interface{})   { entry.raw().Fatal(args...) }

func (entry *Entry) Warningf(format string, args ...interface{}) {
	entry.raw().Warningf(format, args...)
}
