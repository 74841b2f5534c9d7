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
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/navigator"
	"github.com/CovenantSQL/explog/store"
)

// Engine is the set of engine operations reachable over the wire.
type Engine interface {
	Opened() bool
	InRun() bool
	Now() time.Time

	Start(config map[string]interface{}, testRun bool) error
	End() error
	Close() error
	Commit() error
	AddIndices() error
	DirtyRuns() ([]*store.Run, error)

	Log(req explog.LogRequest) (int64, error)
	SyncExternal(a *store.SyncAnchor) (int64, error)

	Register(mtype store.MetaType, name, subtype, description string, data interface{}, forceUpdate bool) (int64, error)
	Find(mtype store.MetaType, name string) (*store.Meta, error)
	Catalog(mtype store.MetaType) ([]*store.Meta, error)
	Bind(mtype store.MetaType, name string, data interface{}) error
	Unbind(mtype store.MetaType, name string) error
	SetMeta(kv map[string]interface{}) error
	GetMeta() (map[string]interface{}, error)
	GetMetaField(path ...string) (interface{}, error)

	Enter(opts navigator.EnterOptions) (*store.Session, error)
	Leave(complete, valid bool) error
	Cd(path string) error
	Resume(id int64) error
	Path() (string, error)
	SessionID() int64
	Bindings() ([]*store.Binding, error)
	RandomSeed() (uint64, error)
	LastSession(includeCompleted bool) (int64, bool, error)
}

var _ Engine = (*explog.Engine)(nil)

// SessionRef is the result of last_session.
type SessionRef struct {
	ID    int64
	Found bool
}

type handler func(e Engine, a args) (interface{}, error)

// Remote method names.
const (
	MethodLog          = "log"
	MethodEnter        = "enter"
	MethodLeave        = "leave"
	MethodCd           = "cd"
	MethodResume       = "resume_session"
	MethodLastSession  = "last_session"
	MethodRegister     = "register"
	MethodCreate       = "create"
	MethodFind         = "find"
	MethodCatalog      = "catalog"
	MethodBind         = "bind"
	MethodUnbind       = "unbind"
	MethodSetMeta      = "set_meta"
	MethodGetMeta      = "get_meta"
	MethodGetMetaField = "get_meta_field"
	MethodSyncExt      = "sync_ext"
	MethodStart        = "start"
	MethodEnd          = "end"
	MethodClose        = "close"
	MethodCommit       = "commit"
	MethodAddIndices   = "add_indices"
	MethodDirtyRuns    = "dirty_runs"
	MethodBindings     = "bindings"
	MethodSessionPath  = "session_path"
	MethodSessionID    = "session_id"
	MethodNow          = "t"
	MethodInRun        = "in_run"
	MethodRandomSeed   = "random_seed"
)

var dispatchTable = map[string]handler{
	MethodLog:          callLog,
	MethodEnter:        callEnter,
	MethodLeave:        callLeave,
	MethodCd:           callCd,
	MethodResume:       callResume,
	MethodLastSession:  callLastSession,
	MethodRegister:     callRegister,
	MethodCreate:       callRegister,
	MethodFind:         callFind,
	MethodCatalog:      callCatalog,
	MethodBind:         callBind,
	MethodUnbind:       callUnbind,
	MethodSetMeta:      callSetMeta,
	MethodGetMeta:      callGetMeta,
	MethodGetMetaField: callGetMetaField,
	MethodSyncExt:      callSyncExt,
	MethodStart:        callStart,
	MethodEnd:          noResult(Engine.End),
	MethodClose:        noResult(Engine.Close),
	MethodCommit:       noResult(Engine.Commit),
	MethodAddIndices:   noResult(Engine.AddIndices),
	MethodDirtyRuns:    callDirtyRuns,

	MethodBindings:    callBindings,
	MethodSessionPath: callPath,
	MethodSessionID: func(e Engine, _ args) (interface{}, error) {
		return e.SessionID(), nil
	},
	MethodNow: func(e Engine, _ args) (interface{}, error) {
		return toEpoch(e.Now()), nil
	},
	MethodInRun: func(e Engine, _ args) (interface{}, error) {
		return e.InRun(), nil
	},
	MethodRandomSeed: callRandomSeed,
}

// Methods returns the sorted remote method names.
func Methods() (names []string) {
	names = make([]string, 0, len(dispatchTable))
	for k := range dispatchTable {
		names = append(names, k)
	}
	sort.Strings(names)
	return
}

// Dispatch runs call against e.
func Dispatch(e Engine, call *Call) (result interface{}, err error) {
	h, ok := dispatchTable[call.Method]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownMethod, "method %q", call.Method)
	}
	return h(e, args{call: call})
}

func noResult(fn func(Engine) error) handler {
	return func(e Engine, _ args) (interface{}, error) {
		return nil, fn(e)
	}
}

func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func metaType(a args, pos int) (store.MetaType, error) {
	s, err := a.RequiredString(pos, "mtype")
	return store.MetaType(s), err
}

func callLog(e Engine, a args) (interface{}, error) {
	var (
		req explog.LogRequest
		err error
	)
	if req.Stream, err = a.RequiredString(0, "stream"); err != nil {
		return nil, err
	}
	if req.Tag, err = a.String(1, "tag", ""); err != nil {
		return nil, err
	}
	if req.Time, _, err = a.Time(2, "time"); err != nil {
		return nil, err
	}
	if v := a.Value(3, "valid"); v != nil {
		var valid bool
		if valid, err = a.Bool(3, "valid", true); err != nil {
			return nil, err
		}
		req.Valid = &valid
	}
	req.Data = a.Value(4, "data")
	if req.Binary, err = a.Bytes(5, "blob"); err != nil {
		return nil, err
	}
	return e.Log(req)
}

func callEnter(e Engine, a args) (interface{}, error) {
	var (
		opts navigator.EnterOptions
		err  error
	)
	if opts.Name, err = a.String(0, "name", ""); err != nil {
		return nil, err
	}
	opts.Data = a.Value(1, "data")
	if opts.TestRun, err = a.Bool(2, "test_run", false); err != nil {
		return nil, err
	}
	if opts.Description, err = a.String(3, "description", ""); err != nil {
		return nil, err
	}
	if opts.Prototype, err = a.String(4, "prototype", ""); err != nil {
		return nil, err
	}
	return e.Enter(opts)
}

func callLeave(e Engine, a args) (interface{}, error) {
	complete, err := a.Bool(0, "complete", true)
	if err != nil {
		return nil, err
	}
	valid, err := a.Bool(1, "valid", true)
	if err != nil {
		return nil, err
	}
	return nil, e.Leave(complete, valid)
}

func callCd(e Engine, a args) (interface{}, error) {
	path, err := a.RequiredString(0, "path")
	if err != nil {
		return nil, err
	}
	return nil, e.Cd(path)
}

func callResume(e Engine, a args) (interface{}, error) {
	if _, ok := a.get(0, "id"); !ok {
		return nil, errors.Wrap(ErrBadArgument, "missing argument id")
	}
	id, err := a.Int64(0, "id", 0)
	if err != nil {
		return nil, err
	}
	return nil, e.Resume(id)
}

func callLastSession(e Engine, a args) (interface{}, error) {
	includeCompleted, err := a.Bool(0, "include_completed", false)
	if err != nil {
		return nil, err
	}
	id, ok, err := e.LastSession(includeCompleted)
	if err != nil {
		return nil, err
	}
	return &SessionRef{ID: id, Found: ok}, nil
}

func callRegister(e Engine, a args) (interface{}, error) {
	mtype, err := metaType(a, 0)
	if err != nil {
		return nil, err
	}
	name, err := a.RequiredString(1, "name")
	if err != nil {
		return nil, err
	}
	subtype, err := a.String(2, "type", "")
	if err != nil {
		return nil, err
	}
	description, err := a.String(3, "description", "")
	if err != nil {
		return nil, err
	}
	forceUpdate, err := a.Bool(5, "force_update", false)
	if err != nil {
		return nil, err
	}
	return e.Register(mtype, name, subtype, description, a.Value(4, "data"), forceUpdate)
}

func callFind(e Engine, a args) (interface{}, error) {
	mtype, err := metaType(a, 0)
	if err != nil {
		return nil, err
	}
	name, err := a.RequiredString(1, "name")
	if err != nil {
		return nil, err
	}
	return e.Find(mtype, name)
}

func callCatalog(e Engine, a args) (interface{}, error) {
	mtype, err := metaType(a, 0)
	if err != nil {
		return nil, err
	}
	return e.Catalog(mtype)
}

func callBind(e Engine, a args) (interface{}, error) {
	mtype, err := metaType(a, 0)
	if err != nil {
		return nil, err
	}
	name, err := a.RequiredString(1, "name")
	if err != nil {
		return nil, err
	}
	return nil, e.Bind(mtype, name, a.Value(2, "data"))
}

func callUnbind(e Engine, a args) (interface{}, error) {
	mtype, err := metaType(a, 0)
	if err != nil {
		return nil, err
	}
	name, err := a.RequiredString(1, "name")
	if err != nil {
		return nil, err
	}
	return nil, e.Unbind(mtype, name)
}

// set_meta takes either one mapping argument or the mapping as keyword arguments.
func callSetMeta(e Engine, a args) (interface{}, error) {
	kv, err := a.Map(0, "")
	if err != nil {
		return nil, err
	}
	if kv == nil {
		kv = a.extraKwargs()
	}
	return nil, e.SetMeta(kv)
}

func callGetMeta(e Engine, _ args) (interface{}, error) {
	return e.GetMeta()
}

func callGetMetaField(e Engine, a args) (interface{}, error) {
	var path []string
	if len(a.call.Args) > 0 {
		path = make([]string, 0, len(a.call.Args))
		for i := range a.call.Args {
			s, err := a.RequiredString(i, "path")
			if err != nil {
				return nil, err
			}
			path = append(path, s)
		}
	} else {
		var err error
		if path, err = a.Strings(-1, "path"); err != nil {
			return nil, err
		}
	}
	return e.GetMetaField(path...)
}

func callSyncExt(e Engine, a args) (interface{}, error) {
	var (
		anchor store.SyncAnchor
		err    error
	)
	if anchor.File, err = a.RequiredString(0, "file"); err != nil {
		return nil, err
	}
	if anchor.StartTime, _, err = a.Time(1, "start_time"); err != nil {
		return nil, err
	}
	if anchor.Duration, anchor.HasDuration, err = a.Float64(2, "duration"); err != nil {
		return nil, err
	}
	if anchor.MediaStart, _, err = a.Float64(3, "media_start"); err != nil {
		return nil, err
	}
	if anchor.TimeRate, _, err = a.Float64(4, "time_rate"); err != nil {
		return nil, err
	}
	if anchor.Description, err = a.String(5, "description", ""); err != nil {
		return nil, err
	}
	anchor.Data = a.Value(6, "data")
	return e.SyncExternal(&anchor)
}

func callStart(e Engine, a args) (interface{}, error) {
	config, err := a.Map(0, "config")
	if err != nil {
		return nil, err
	}
	testRun, err := a.Bool(1, "test_run", false)
	if err != nil {
		return nil, err
	}
	return nil, e.Start(config, testRun)
}

func callDirtyRuns(e Engine, _ args) (interface{}, error) {
	return e.DirtyRuns()
}

func callBindings(e Engine, _ args) (interface{}, error) {
	return e.Bindings()
}

func callPath(e Engine, _ args) (interface{}, error) {
	return e.Path()
}

func callRandomSeed(e Engine, _ args) (interface{}, error) {
	return e.RandomSeed()
}
