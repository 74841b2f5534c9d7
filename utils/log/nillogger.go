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

// NilFormatter renders every entry to nothing. The caller hook swaps it in for entries from
// packages filtered by PkgDebugLogFilter.
type NilFormatter struct{}

// Format implements logrus.Formatter.
func (*NilFormatter) Format(*logrus.Entry) ([]byte, error) { return nil, nil }

// NilWriter swallows output, for tests that only care about hooks.
type NilWriter struct{}

func (*NilWriter) Write(p []byte) (int, error) { return len(p), nil }
