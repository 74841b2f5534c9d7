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
	"math"
	"net/rpc"
	"sync"
	"time"

	"github.com/pkg/errors"
	mux "github.com/xtaci/smux"

	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/navigator"
	"github.com/CovenantSQL/explog/store"
	"github.com/CovenantSQL/explog/utils"
	"github.com/CovenantSQL/explog/utils/log"
)

// Proxy forwards calls to a remote engine over the request/reply endpoint. At most one call
// is in flight at a time and replies are awaited without timeout.
type Proxy struct {
	sync.Mutex
	RemoteAddr string
	sess       *mux.Session
	client     *rpc.Client
}

// Dial connects a proxy to the server request endpoint at addr.
func Dial(addr string) (p *Proxy, err error) {
	sess, stream, err := dialStream(addr)
	if err != nil {
		return
	}
	p = &Proxy{
		RemoteAddr: addr,
		sess:       sess,
		client:     rpc.NewClientWithCodec(utils.GetMsgPackClientCodec(stream)),
	}
	return
}

// Close closes the connection, the remote engine stays open.
func (p *Proxy) Close() (err error) {
	p.Lock()
	defer p.Unlock()
	if p.client == nil {
		return
	}
	err = p.client.Close()
	_ = p.sess.Close()
	p.client = nil
	return
}

func (p *Proxy) roundTrip(method string, args []interface{}, kwargs map[string]interface{}) (reply *Reply, err error) {
	p.Lock()
	defer p.Unlock()
	if p.client == nil {
		return nil, errors.Wrapf(ErrNotOpened, "call %s", method)
	}
	reply = &Reply{}
	if err = p.client.Call(ServiceName+".Call", &Call{
		Method: method,
		Args:   args,
		Kwargs: kwargs,
	}, reply); err != nil {
		return nil, errors.Wrapf(err, "call %s to %s failed", method, p.RemoteAddr)
	}
	if !reply.Success {
		if reply.Error == nil {
			reply.Error = &RemoteError{Kind: KindInternal, Message: "call failed without error"}
		}
		log.WithFields(log.Fields{
			"method": method,
			"remote": p.RemoteAddr,
			"kind":   reply.Error.Kind,
		}).Warningf("remote call failed: %s", reply.Error.Trace)
		return nil, reply.Error
	}
	return
}

// Invoke calls method and decodes the result into out, which may be nil. A failed call returns
// the *RemoteError, its errors.Cause is the error the server saw.
func (p *Proxy) Invoke(method string, args []interface{}, kwargs map[string]interface{}, out interface{}) error {
	reply, err := p.roundTrip(method, args, kwargs)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return reply.Decode(out)
}

// Call calls method by name and returns the decoded result.
func (p *Proxy) Call(method string, args []interface{}, kwargs map[string]interface{}) (result interface{}, err error) {
	err = p.Invoke(method, args, kwargs, &result)
	return
}

func epochArg(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return toEpoch(t)
}

func fromEpoch(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

// Log writes a record into the remote current session.
func (p *Proxy) Log(req explog.LogRequest) (id int64, err error) {
	var valid interface{}
	if req.Valid != nil {
		valid = *req.Valid
	}
	err = p.Invoke(MethodLog, []interface{}{
		req.Stream, req.Tag, epochArg(req.Time), valid, req.Data, req.Binary,
	}, nil, &id)
	return
}

// Enter creates a child of the remote current session and moves into it.
func (p *Proxy) Enter(opts navigator.EnterOptions) (s *store.Session, err error) {
	s = &store.Session{}
	if err = p.Invoke(MethodEnter, []interface{}{
		opts.Name, opts.Data, opts.TestRun, opts.Description, opts.Prototype,
	}, nil, s); err != nil {
		s = nil
	}
	return
}

// Leave closes the remote current session and moves to its parent.
func (p *Proxy) Leave(complete, valid bool) error {
	return p.Invoke(MethodLeave, []interface{}{complete, valid}, nil, nil)
}

// Cd moves the remote cursor to path.
func (p *Proxy) Cd(path string) error {
	return p.Invoke(MethodCd, []interface{}{path}, nil, nil)
}

// Resume moves the remote cursor to session id.
func (p *Proxy) Resume(id int64) error {
	return p.Invoke(MethodResume, []interface{}{id}, nil, nil)
}

// LastSession returns the most recently started session of the dataset.
func (p *Proxy) LastSession(includeCompleted bool) (id int64, ok bool, err error) {
	var ref SessionRef
	if err = p.Invoke(MethodLastSession, []interface{}{includeCompleted}, nil, &ref); err != nil {
		return
	}
	return ref.ID, ref.Found, nil
}

// Register creates or, with forceUpdate, overwrites a remote catalog entry.
func (p *Proxy) Register(mtype store.MetaType, name, subtype, description string,
	data interface{}, forceUpdate bool) (id int64, err error) {
	err = p.Invoke(MethodRegister, []interface{}{
		string(mtype), name, subtype, description, data, forceUpdate,
	}, nil, &id)
	return
}

// Find returns the remote catalog entry mtype:name.
func (p *Proxy) Find(mtype store.MetaType, name string) (m *store.Meta, err error) {
	m = &store.Meta{}
	if err = p.Invoke(MethodFind, []interface{}{string(mtype), name}, nil, m); err != nil {
		m = nil
	}
	return
}

// Catalog lists the remote catalog entries of mtype.
func (p *Proxy) Catalog(mtype store.MetaType) (entries []*store.Meta, err error) {
	err = p.Invoke(MethodCatalog, []interface{}{string(mtype)}, nil, &entries)
	return
}

// Bind binds a catalog entry to the remote current session.
func (p *Proxy) Bind(mtype store.MetaType, name string, data interface{}) error {
	return p.Invoke(MethodBind, []interface{}{string(mtype), name, data}, nil, nil)
}

// Unbind retires a binding of the remote current session.
func (p *Proxy) Unbind(mtype store.MetaType, name string) error {
	return p.Invoke(MethodUnbind, []interface{}{string(mtype), name}, nil, nil)
}

// SetMeta merges kv into the dataset metadata.
func (p *Proxy) SetMeta(kv map[string]interface{}) error {
	return p.Invoke(MethodSetMeta, []interface{}{kv}, nil, nil)
}

// GetMeta returns the latest dataset metadata.
func (p *Proxy) GetMeta() (kv map[string]interface{}, err error) {
	err = p.Invoke(MethodGetMeta, nil, nil, &kv)
	return
}

// GetMetaField returns one dataset metadata field.
func (p *Proxy) GetMetaField(path ...string) (v interface{}, err error) {
	args := make([]interface{}, len(path))
	for i, s := range path {
		args[i] = s
	}
	err = p.Invoke(MethodGetMetaField, args, nil, &v)
	return
}

// SyncExternal anchors an external media file against the remote log timeline.
func (p *Proxy) SyncExternal(a *store.SyncAnchor) (id int64, err error) {
	var duration interface{}
	if a.HasDuration {
		duration = a.Duration
	}
	err = p.Invoke(MethodSyncExt, []interface{}{
		a.File, epochArg(a.StartTime), duration, a.MediaStart, a.TimeRate, a.Description, a.Data,
	}, nil, &id)
	return
}

// Start starts a remote run.
func (p *Proxy) Start(config map[string]interface{}, testRun bool) error {
	return p.Invoke(MethodStart, []interface{}{config, testRun}, nil, nil)
}

// End ends the remote run.
func (p *Proxy) End() error {
	return p.Invoke(MethodEnd, nil, nil, nil)
}

// CloseEngine closes the remote engine, which in turn stops the server.
func (p *Proxy) CloseEngine() error {
	return p.Invoke(MethodClose, nil, nil, nil)
}

// Commit flushes the remote store.
func (p *Proxy) Commit() error {
	return p.Invoke(MethodCommit, nil, nil, nil)
}

// AddIndices creates the query indices of the remote store.
func (p *Proxy) AddIndices() error {
	return p.Invoke(MethodAddIndices, nil, nil, nil)
}

// DirtyRuns returns the runs of the remote store that never ended.
func (p *Proxy) DirtyRuns() (runs []*store.Run, err error) {
	err = p.Invoke(MethodDirtyRuns, nil, nil, &runs)
	return
}

// Bindings returns the bindings of the remote current session.
func (p *Proxy) Bindings() (bindings []*store.Binding, err error) {
	err = p.Invoke(MethodBindings, nil, nil, &bindings)
	return
}

// Path returns the remote current session path.
func (p *Proxy) Path() (path string, err error) {
	err = p.Invoke(MethodSessionPath, nil, nil, &path)
	return
}

// SessionID returns the remote current session id.
func (p *Proxy) SessionID() (id int64, err error) {
	err = p.Invoke(MethodSessionID, nil, nil, &id)
	return
}

// Now returns the remote synchronized clock reading.
func (p *Proxy) Now() (t time.Time, err error) {
	var epoch float64
	if err = p.Invoke(MethodNow, nil, nil, &epoch); err != nil {
		return
	}
	return fromEpoch(epoch), nil
}

// InRun reports whether the remote engine is in a run.
func (p *Proxy) InRun() (inRun bool, err error) {
	err = p.Invoke(MethodInRun, nil, nil, &inRun)
	return
}

// RandomSeed returns the remote current session seed.
func (p *Proxy) RandomSeed() (seed uint64, err error) {
	err = p.Invoke(MethodRandomSeed, nil, nil, &seed)
	return
}
