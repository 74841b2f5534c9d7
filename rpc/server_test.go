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
	"testing"
	"time"

	"github.com/fortytw2/leaktest"
	"github.com/pkg/errors"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/navigator"
	"github.com/CovenantSQL/explog/store"
)

func TestProxy(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	Convey("Given a server hosting a running engine", t, func() {
		e, s, err := startTestServer()
		So(err, ShouldBeNil)
		So(s.State(), ShouldEqual, StateListening)

		p, err := Dial(s.Addr())
		So(err, ShouldBeNil)
		Reset(func() {
			_ = p.Close()
			s.Stop()
			_ = e.Close()
		})

		Convey("Navigation calls should move the remote cursor", func() {
			sess, err := p.Enter(navigator.EnterOptions{Name: "Trial", Description: "warmup"})
			So(err, ShouldBeNil)
			So(sess.Name, ShouldEqual, "Trial")
			So(sess.Path, ShouldEqual, "/Trial/")

			path, err := p.Path()
			So(err, ShouldBeNil)
			So(path, ShouldEqual, "/Trial/")
			id, err := p.SessionID()
			So(err, ShouldBeNil)
			So(id, ShouldEqual, sess.ID)
			So(e.SessionID(), ShouldEqual, sess.ID)

			anon, err := p.Enter(navigator.EnterOptions{})
			So(err, ShouldBeNil)
			So(anon.Name, ShouldEqual, "0")
			So(p.Leave(true, true), ShouldBeNil)
			So(p.Cd("/Other"), ShouldBeNil)
			path, err = p.Path()
			So(err, ShouldBeNil)
			So(path, ShouldEqual, "/Other/")

			So(p.Resume(sess.ID), ShouldBeNil)
			last, ok, err := p.LastSession(true)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(last, ShouldBeGreaterThan, sess.ID)
		})
		Convey("Zero argument reads should return plain values", func() {
			inRun, err := p.InRun()
			So(err, ShouldBeNil)
			So(inRun, ShouldBeTrue)

			now, err := p.Now()
			So(err, ShouldBeNil)
			So(now.Sub(e.Now()), ShouldBeLessThan, time.Minute)

			seed, err := p.RandomSeed()
			So(err, ShouldBeNil)
			local, err := e.RandomSeed()
			So(err, ShouldBeNil)
			So(seed, ShouldEqual, local)

			bindings, err := p.Bindings()
			So(err, ShouldBeNil)
			So(bindings, ShouldBeEmpty)

			runs, err := p.DirtyRuns()
			So(err, ShouldBeNil)
			So(runs, ShouldBeEmpty)
		})
		Convey("Logging and catalog calls should reach the store", func() {
			valid := false
			id, err := p.Log(explog.LogRequest{
				Stream: "keys",
				Tag:    "press",
				Valid:  &valid,
				Data:   map[string]interface{}{"key": "a"},
				Binary: []byte{1, 2, 3},
			})
			So(err, ShouldBeNil)
			So(id, ShouldBeGreaterThan, 0)

			m, err := p.Find(store.MetaStream, "keys")
			So(err, ShouldBeNil)
			So(m.Type, ShouldEqual, store.AutoStreamType)

			_, err = p.Register(store.MetaUser, "Moss Green", "", "participant", nil, false)
			So(err, ShouldBeNil)
			So(p.Bind(store.MetaUser, "Moss Green", map[string]interface{}{"seat": 2}), ShouldBeNil)
			bindings, err := p.Bindings()
			So(err, ShouldBeNil)
			So(bindings, ShouldHaveLength, 1)
			So(bindings[0].Name, ShouldEqual, "Moss Green")
			So(bindings[0].Description, ShouldEqual, "participant")
			So(p.Unbind(store.MetaUser, "Moss Green"), ShouldBeNil)

			entries, err := p.Catalog(store.MetaUser)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 1)

			So(p.SetMeta(map[string]interface{}{"a": 1}), ShouldBeNil)
			So(p.SetMeta(map[string]interface{}{"b": 2}), ShouldBeNil)
			kv, err := p.GetMeta()
			So(err, ShouldBeNil)
			So(kv, ShouldResemble, map[string]interface{}{"a": float64(1), "b": float64(2)})
			v, err := p.GetMetaField("b")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, float64(2))

			anchor, err := p.SyncExternal(&store.SyncAnchor{
				File:        "cam.mp4",
				StartTime:   time.Unix(1500000000, 0),
				Duration:    12.5,
				HasDuration: true,
				TimeRate:    1,
			})
			So(err, ShouldBeNil)
			So(anchor, ShouldBeGreaterThan, 0)

			So(p.Commit(), ShouldBeNil)
			So(p.AddIndices(), ShouldBeNil)
			So(s.Stats().Calls, ShouldBeGreaterThan, 0)
		})
		Convey("Remote failures should keep their cause", func() {
			err := p.Bind(store.MetaUser, " bad name", nil)
			So(err, ShouldNotBeNil)
			So(errors.Cause(err), ShouldEqual, store.ErrInvalidName)
			re, ok := err.(*RemoteError)
			So(ok, ShouldBeTrue)
			So(re.Kind, ShouldEqual, KindInvalidName)
			So(re.Trace, ShouldContainSubstring, "bind")

			_, err = p.Register(store.MetaDataset, "x", "", "", nil, false)
			So(errors.Cause(err), ShouldEqual, store.ErrInvalidMetaType)
			So(errors.Cause(p.Start(nil, false)), ShouldEqual, store.ErrRunActive)
			So(errors.Cause(p.Resume(1<<40)), ShouldEqual, store.ErrSessionNotFound)
			_, err = p.Call("no_such_method", nil, nil)
			So(errors.Cause(err), ShouldEqual, ErrUnknownMethod)

			So(p.End(), ShouldBeNil)
			_, err = p.Log(explog.LogRequest{Stream: "keys"})
			So(errors.Cause(err), ShouldEqual, store.ErrNoActiveRun)
			So(s.Stats().CallFailures, ShouldBeGreaterThanOrEqualTo, 6)
		})
		Convey("A closed proxy should refuse calls", func() {
			So(p.Close(), ShouldBeNil)
			_, err := p.Path()
			So(errors.Cause(err), ShouldEqual, ErrNotOpened)
		})
	})
}

func TestPublisher(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	Convey("Given a server hosting a running engine", t, func() {
		e, s, err := startTestServer()
		So(err, ShouldBeNil)
		Reset(func() {
			s.Stop()
			_ = e.Close()
		})

		Convey("Published records should be logged without replies", func() {
			pub, err := DialPublisher(s.PublishAddr(), 256)
			So(err, ShouldBeNil)
			for i := 0; i < 100; i++ {
				So(pub.Log(explog.LogRequest{
					Stream: "mouse",
					Data:   map[string]interface{}{"x": i},
				}), ShouldBeNil)
			}
			So(pub.Close(), ShouldBeNil)
			So(pub.Sent()+pub.Dropped(), ShouldEqual, 100)
			So(errors.Cause(pub.Log(explog.LogRequest{Stream: "mouse"})), ShouldEqual, ErrNotOpened)

			So(waitFor(func() bool {
				return e.Stats().Logs == pub.Sent()
			}, 5*time.Second), ShouldBeTrue)
			So(s.Stats().Published, ShouldEqual, pub.Sent())
		})
		Convey("Published failures should be counted on the server only", func() {
			pub, err := DialPublisher(s.PublishAddr(), 0)
			So(err, ShouldBeNil)
			So(pub.Log(explog.LogRequest{Stream: " bad"}), ShouldBeNil)
			So(pub.Close(), ShouldBeNil)
			So(waitFor(func() bool {
				return s.Stats().PublishFailures == 1
			}, 5*time.Second), ShouldBeTrue)
		})
	})
}

func TestServerShutdown(t *testing.T) {
	defer leaktest.CheckTimeout(t, 10*time.Second)()

	Convey("Given a server hosting a running engine", t, func() {
		e, s, err := startTestServer()
		So(err, ShouldBeNil)
		p, err := Dial(s.Addr())
		So(err, ShouldBeNil)
		Reset(func() {
			_ = p.Close()
			s.Stop()
			_ = e.Close()
		})

		Convey("Closing the engine remotely should stop the server", func() {
			So(p.CloseEngine(), ShouldBeNil)
			So(e.Opened(), ShouldBeFalse)
			select {
			case <-s.Done():
			case <-time.After(5 * time.Second):
			}
			So(s.State(), ShouldEqual, StateStopped)
			_, err := p.Path()
			So(err, ShouldNotBeNil)
		})
		Convey("Stop should be idempotent and refuse new connections", func() {
			s.Stop()
			s.Stop()
			So(s.State(), ShouldEqual, StateStopped)
			_, err := p.Path()
			So(err, ShouldNotBeNil)
			So(e.Opened(), ShouldBeTrue)
		})
	})
}
