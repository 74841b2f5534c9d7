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
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type autocommitMode int

const (
	autocommitNever autocommitMode = iota
	autocommitAlways
	autocommitInterval
)

// AutocommitPolicy decides when buffered log writes are flushed to disk.
type AutocommitPolicy struct {
	mode     autocommitMode
	interval time.Duration
}

// NeverAutocommit flushes only on explicit commits, session changes and close.
func NeverAutocommit() AutocommitPolicy {
	return AutocommitPolicy{mode: autocommitNever}
}

// AutocommitEveryWrite flushes after every log record.
func AutocommitEveryWrite() AutocommitPolicy {
	return AutocommitPolicy{mode: autocommitAlways}
}

// AutocommitEvery flushes once more than d has elapsed since the last flush.
func AutocommitEvery(d time.Duration) AutocommitPolicy {
	if d <= 0 {
		return AutocommitEveryWrite()
	}
	return AutocommitPolicy{mode: autocommitInterval, interval: d}
}

// ParseAutocommit parses "never"/"" , "always"/"true" or an interval ("5s", or bare seconds).
func ParseAutocommit(s string) (p AutocommitPolicy, err error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "never", "none", "false":
		return NeverAutocommit(), nil
	case "always", "true", "every":
		return AutocommitEveryWrite(), nil
	}
	if secs, perr := strconv.ParseFloat(s, 64); perr == nil {
		return AutocommitEvery(time.Duration(secs * float64(time.Second))), nil
	}
	var d time.Duration
	if d, err = time.ParseDuration(s); err != nil {
		err = errors.Wrapf(err, "unrecognized autocommit policy %q", s)
		return
	}
	return AutocommitEvery(d), nil
}

// Due reports whether a flush is due at now given the time of the last flush.
func (p AutocommitPolicy) Due(last, now time.Time) bool {
	switch p.mode {
	case autocommitAlways:
		return true
	case autocommitInterval:
		return now.Sub(last) > p.interval
	}
	return false
}

func (p AutocommitPolicy) String() string {
	switch p.mode {
	case autocommitAlways:
		return "always"
	case autocommitInterval:
		return p.interval.String()
	}
	return "never"
}
