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

// Package explog implements the experiment logging engine: one writer owning a store, a clock
// corrected against NTP and a cursor into the session tree.
package explog

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"

	"github.com/CovenantSQL/explog/navigator"
	"github.com/CovenantSQL/explog/ntpsync"
	"github.com/CovenantSQL/explog/store"
	"github.com/CovenantSQL/explog/utils/log"
)

// LogRateMeterName is the name of the log record meter in Engine.Registry.
const LogRateMeterName = "explog.log"

// Config holds engine open options.
type Config struct {
	// DSN is the sqlite file path or "file:path?k=v" connection string.
	DSN        string
	Autocommit store.AutocommitPolicy

	NTPSync    bool
	NTPServers []string
	NTPQueries int
	// NTPQuerier overrides the network querier, mostly for tests.
	NTPQuerier ntpsync.Querier

	// AutoStart starts a run as soon as the engine is open.
	AutoStart bool
	RunConfig map[string]interface{}
	TestRun   bool

	// DebugLogLevel is the least severe level mirrored into the debug_logging table.
	DebugLogLevel logrus.Level

	// Now replaces the wall clock before the NTP offset is applied.
	Now func() time.Time
}

// Engine is the experiment logger.
type Engine struct {
	st       *store.Store
	cursor   *navigator.Cursor
	clock    *ntpsync.Clock
	now      func() time.Time
	hook     *debugHook
	registry metrics.Registry
	logMeter metrics.Meter

	opened      int32
	runID       int64
	logs        uint64
	autoStreams uint64
	failures    uint64
}

// Open opens the store, samples the clock offset and, when configured, starts a run.
func Open(cfg Config) (e *Engine, err error) {
	var offset time.Duration
	if cfg.NTPSync {
		offset = ntpsync.Sync(ntpsync.Config{
			Servers: cfg.NTPServers,
			Queries: cfg.NTPQueries,
			Querier: cfg.NTPQuerier,
		})
	}

	e = &Engine{
		clock:    ntpsync.NewClock(offset),
		registry: metrics.NewRegistry(),
	}
	e.now = e.clock.Now
	if cfg.Now != nil {
		e.now = func() time.Time { return cfg.Now().Add(offset) }
	}
	e.logMeter = metrics.NewMeter()
	_ = e.registry.Register(LogRateMeterName, e.logMeter)

	if e.st, err = store.Open(cfg.DSN, store.Config{
		Autocommit: cfg.Autocommit,
		Now:        e.now,
	}); err != nil {
		e.logMeter.Stop()
		return nil, err
	}
	e.cursor = navigator.New(e.st)

	level := cfg.DebugLogLevel
	if level == 0 {
		level = logrus.WarnLevel
	}
	e.hook = newDebugHook(level)
	log.AddHook(e.hook)
	atomic.StoreInt32(&e.opened, 1)

	var dirty []*store.Run
	if err = e.do(func(tx *store.Tx) (err error) {
		dirty, err = tx.DirtyRuns()
		return
	}); err != nil {
		_ = e.Close()
		return nil, err
	}
	for _, r := range dirty {
		log.WithFields(log.Fields{
			"run":   r.ID,
			"uuid":  r.UUID,
			"start": r.StartTime,
		}).Warning("run was not closed cleanly")
	}

	log.WithFields(log.Fields{
		"dsn":    cfg.DSN,
		"offset": offset,
	}).Info("experiment log opened")

	if cfg.AutoStart {
		if err = e.Start(cfg.RunConfig, cfg.TestRun); err != nil {
			_ = e.Close()
			return nil, err
		}
	}
	return
}

// do runs fn in the store critical section and drains queued diagnostics afterwards.
func (e *Engine) do(fn func(tx *store.Tx) error) error {
	return e.st.Do(func(tx *store.Tx) error {
		err := fn(tx)
		if ferr := e.hook.flush(tx); ferr != nil && err == nil {
			err = ferr
		}
		return err
	})
}

// Start begins a new run. config is stored with the run as JSON.
func (e *Engine) Start(config map[string]interface{}, testRun bool) error {
	return e.do(func(tx *store.Tx) (err error) {
		run := &store.Run{
			TestRun:     testRun,
			Uname:       hostInfo(),
			ClockOffset: e.clock.Offset(),
			Config:      config,
		}
		var id int64
		if id, err = tx.StartRun(run); err != nil {
			return
		}
		atomic.StoreInt64(&e.runID, id)
		log.WithFields(log.Fields{
			"run":  id,
			"uuid": run.UUID,
		}).Info("run started")
		return
	})
}

// End ends the active run with a clean exit and commits.
func (e *Engine) End() error {
	return e.do(func(tx *store.Tx) (err error) {
		if err = e.hook.flush(tx); err != nil {
			return
		}
		if err = tx.EndRun(); err != nil {
			return
		}
		log.WithField("run", atomic.LoadInt64(&e.runID)).Info("run ended")
		return tx.Commit()
	})
}

// Close ends the active run if any, commits and closes the store. Closing twice is a no-op.
func (e *Engine) Close() (err error) {
	if !atomic.CompareAndSwapInt32(&e.opened, 1, 0) {
		return nil
	}

	err = e.do(func(tx *store.Tx) (err error) {
		if tx.ActiveRun() != 0 {
			if err = e.hook.flush(tx); err != nil {
				return
			}
			if err = tx.EndRun(); err != nil {
				return
			}
		}
		return
	})
	e.hook.disable()
	log.RemoveHook(e.hook)
	if cerr := e.st.Close(); cerr != nil && err == nil {
		err = cerr
	}
	e.logMeter.Stop()
	log.Info("experiment log closed")
	return
}

// Opened reports whether the engine has not been closed yet.
func (e *Engine) Opened() bool {
	return atomic.LoadInt32(&e.opened) == 1
}

// InRun reports whether a run is active.
func (e *Engine) InRun() (inRun bool) {
	_ = e.st.Do(func(tx *store.Tx) error {
		inRun = tx.ActiveRun() != 0
		return nil
	})
	return
}

// RunID returns the identity of the current or last run.
func (e *Engine) RunID() int64 {
	return atomic.LoadInt64(&e.runID)
}

// Now returns the corrected clock reading.
func (e *Engine) Now() time.Time {
	return e.now()
}

// ClockOffset returns the NTP correction applied to every timestamp.
func (e *Engine) ClockOffset() time.Duration {
	return e.clock.Offset()
}

// Cursor returns the engine's own cursor.
func (e *Engine) Cursor() *navigator.Cursor {
	return e.cursor
}

// NewCursor returns an independent cursor at the root session.
func (e *Engine) NewCursor() *navigator.Cursor {
	return navigator.New(e.st)
}

// Registry returns the go-metrics registry holding the log rate meter.
func (e *Engine) Registry() metrics.Registry {
	return e.registry
}

// LogRequest is one record to write. A zero Time is stamped by the engine clock; a nil Valid
// means valid.
type LogRequest struct {
	Stream string
	Tag    string
	Time   time.Time
	Valid  *bool
	Data   interface{}
	Binary []byte
}

// Log writes a record into the current session. Unknown streams are created with the AUTO subtype.
func (e *Engine) Log(req LogRequest) (id int64, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		if tx.ActiveRun() == 0 {
			return errors.Wrap(store.ErrNoActiveRun, "cannot log data")
		}

		var (
			stream  int64
			created bool
		)
		if stream, created, err = tx.ResolveStreamID(req.Stream, true); err != nil {
			return
		}
		if created {
			atomic.AddUint64(&e.autoStreams, 1)
		}

		valid := true
		if req.Valid != nil {
			valid = *req.Valid
		}
		id, err = tx.AppendLog(&store.LogRecord{
			Session: e.cursor.SessionID(),
			Stream:  stream,
			Tag:     req.Tag,
			Time:    req.Time,
			Valid:   valid,
			Data:    req.Data,
			Binary:  req.Binary,
		})
		return
	})
	if err != nil {
		atomic.AddUint64(&e.failures, 1)
		return
	}
	atomic.AddUint64(&e.logs, 1)
	e.logMeter.Mark(1)
	return
}

// Register creates or, with forceUpdate, overwrites the catalog entry mtype:name.
func (e *Engine) Register(mtype store.MetaType, name, subtype, description string,
	data interface{}, forceUpdate bool) (id int64, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		id, err = tx.RegisterCatalogEntry(mtype, name, subtype, description, data, forceUpdate)
		return
	})
	return
}

// Find returns the catalog entry mtype:name.
func (e *Engine) Find(mtype store.MetaType, name string) (m *store.Meta, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		m, err = tx.FindCatalogEntry(mtype, name)
		return
	})
	return
}

// Catalog lists the catalog entries of mtype.
func (e *Engine) Catalog(mtype store.MetaType) (entries []*store.Meta, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		entries, err = tx.ListCatalogEntries(mtype)
		return
	})
	return
}

// Bind attaches the catalog entry mtype:name to the current session.
func (e *Engine) Bind(mtype store.MetaType, name string, data interface{}) error {
	return e.do(func(tx *store.Tx) error {
		return tx.Bind(e.cursor.SessionID(), mtype, name, data)
	})
}

// Unbind retires the binding of mtype:name on the current session only.
func (e *Engine) Unbind(mtype store.MetaType, name string) error {
	return e.do(func(tx *store.Tx) error {
		return tx.Unbind(e.cursor.SessionID(), mtype, name)
	})
}

// SetMeta merges kv into the dataset metadata.
func (e *Engine) SetMeta(kv map[string]interface{}) error {
	return e.do(func(tx *store.Tx) error {
		return tx.SetDatasetMeta(kv)
	})
}

// GetMeta returns the latest dataset metadata.
func (e *Engine) GetMeta() (kv map[string]interface{}, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		kv, err = tx.GetDatasetMeta()
		return
	})
	return
}

// GetMetaField returns a nested value of the latest dataset metadata.
func (e *Engine) GetMetaField(path ...string) (v interface{}, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		v, err = tx.GetDatasetMetaField(path...)
		return
	})
	return
}

// SyncExternal records the alignment of an external media file.
func (e *Engine) SyncExternal(a *store.SyncAnchor) (id int64, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		id, err = tx.AddSyncAnchor(a)
		return
	})
	return
}

// Enter creates a child of the current session and moves into it.
func (e *Engine) Enter(opts navigator.EnterOptions) (s *store.Session, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		if s, err = e.cursor.EnterTx(tx, opts); err != nil {
			return
		}
		return tx.Commit()
	})
	return
}

// Leave ends the current session and moves to its parent.
func (e *Engine) Leave(complete, valid bool) error {
	return e.do(func(tx *store.Tx) (err error) {
		if err = e.cursor.LeaveTx(tx, complete, valid); err != nil {
			return
		}
		return tx.Commit()
	})
}

// Cd moves the engine cursor to path.
func (e *Engine) Cd(path string) error {
	return e.cursor.Cd(path)
}

// Resume points the engine cursor at an existing session.
func (e *Engine) Resume(id int64) error {
	return e.cursor.Resume(id)
}

// Path returns the path of the current session.
func (e *Engine) Path() (string, error) {
	return e.cursor.Path()
}

// SessionID returns the identity of the current session.
func (e *Engine) SessionID() int64 {
	return e.cursor.SessionID()
}

// Bindings returns the active bindings of the current session.
func (e *Engine) Bindings() ([]*store.Binding, error) {
	return e.cursor.Bindings()
}

// RandomSeed returns the seed of the current session.
func (e *Engine) RandomSeed() (uint64, error) {
	return e.cursor.RandomSeed()
}

// LastSession returns the most recent incomplete session, or any session with includeCompleted.
func (e *Engine) LastSession(includeCompleted bool) (id int64, ok bool, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		id, ok, err = tx.LastSession(includeCompleted)
		return
	})
	return
}

// Commit flushes buffered writes.
func (e *Engine) Commit() error {
	return e.do(func(tx *store.Tx) error {
		return tx.Commit()
	})
}

// AddIndices adds the log lookup indices.
func (e *Engine) AddIndices() error {
	return e.do(func(tx *store.Tx) error {
		return tx.AddIndices()
	})
}

// DirtyRuns returns the runs that never recorded an end time.
func (e *Engine) DirtyRuns() (runs []*store.Run, err error) {
	err = e.do(func(tx *store.Tx) (err error) {
		runs, err = tx.DirtyRuns()
		return
	})
	return
}

// Stats is a snapshot of the engine counters.
type Stats struct {
	Logs         uint64
	LogFailures  uint64
	AutoStreams  uint64
	Commits      uint64
	InRun        bool
	LogRate      float64
	DroppedDebug uint64
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	e.hook.Lock()
	dropped := e.hook.dropped
	e.hook.Unlock()

	return Stats{
		Logs:         atomic.LoadUint64(&e.logs),
		LogFailures:  atomic.LoadUint64(&e.failures),
		AutoStreams:  atomic.LoadUint64(&e.autoStreams),
		Commits:      e.st.Commits(),
		InRun:        e.InRun(),
		LogRate:      e.logMeter.Rate1(),
		DroppedDebug: dropped,
	}
}
