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

package explog

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/CovenantSQL/explog/store"
)

const maxPendingDebugRecords = 4096

type debugRecord struct {
	entry *logrus.Entry
	level logrus.Level
}

// debugHook mirrors log entries into the debug_logging table of the active run.
//
// logrus fires hooks under its own lock and the entries are often produced inside the store
// critical section, so Fire only queues a copy. The engine drains the queue inside its next
// critical section.
type debugHook struct {
	sync.Mutex
	levels    []logrus.Level
	pending   []debugRecord
	dropped   uint64
	disabled  int32
	formatter logrus.Formatter
}

func newDebugHook(level logrus.Level) *debugHook {
	h := &debugHook{formatter: &logrus.JSONFormatter{}}
	for _, l := range logrus.AllLevels {
		if l <= level {
			h.levels = append(h.levels, l)
		}
	}
	return h
}

// Levels implements logrus.Hook.
func (h *debugHook) Levels() []logrus.Level {
	return h.levels
}

// Fire implements logrus.Hook.
func (h *debugHook) Fire(entry *logrus.Entry) error {
	if atomic.LoadInt32(&h.disabled) != 0 {
		return nil
	}

	// the entry is reused by logrus once the hooks returned
	data := make(logrus.Fields, len(entry.Data))
	for k, v := range entry.Data {
		data[k] = v
	}
	cp := &logrus.Entry{
		Logger:  entry.Logger,
		Data:    data,
		Time:    entry.Time,
		Level:   entry.Level,
		Message: entry.Message,
	}

	h.Lock()
	defer h.Unlock()
	if len(h.pending) >= maxPendingDebugRecords {
		h.dropped++
		return nil
	}
	h.pending = append(h.pending, debugRecord{entry: cp, level: entry.Level})
	return nil
}

// flush writes the queued entries through tx. Entries queued while no run is active are dropped.
func (h *debugHook) flush(tx *store.Tx) (err error) {
	h.Lock()
	pending := h.pending
	h.pending = nil
	h.Unlock()

	if tx.ActiveRun() == 0 {
		return
	}
	for _, r := range pending {
		b, ferr := h.formatter.Format(r.entry)
		if ferr != nil {
			continue
		}
		if err = tx.InsertDebugLog(strings.TrimSpace(string(b)), int(r.level)); err != nil {
			return
		}
	}
	return
}

func (h *debugHook) disable() {
	atomic.StoreInt32(&h.disabled, 1)
	h.Lock()
	h.pending = nil
	h.Unlock()
}
