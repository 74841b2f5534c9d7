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
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/explog/navigator"
	"github.com/CovenantSQL/explog/store"
	"github.com/CovenantSQL/explog/utils/log"
)

type constQuerier time.Duration

func registeredHooks(hook logrus.Hook) (n int) {
	for _, hooks := range logrus.StandardLogger().Hooks {
		for _, h := range hooks {
			if h == hook {
				n++
			}
		}
	}
	return
}

func (q constQuerier) Offset(server string) (time.Duration, error) {
	return time.Duration(q), nil
}

func TestEngineLifecycle(t *testing.T) {
	Convey("Given an engine opened without a run", t, func() {
		fl := nextTestDB()
		e, err := Open(Config{DSN: fl})
		So(err, ShouldBeNil)
		Reset(func() { _ = e.Close() })

		So(e.Opened(), ShouldBeTrue)
		So(e.InRun(), ShouldBeFalse)

		Convey("Logging should fail and write nothing", func() {
			_, err := e.Log(LogRequest{Stream: "mouse"})
			So(errors.Cause(err), ShouldEqual, store.ErrNoActiveRun)
			_, err = e.Find(store.MetaStream, "mouse")
			So(errors.Cause(err), ShouldEqual, store.ErrEntryNotFound)
			So(e.Stats().LogFailures, ShouldEqual, 1)
		})
		Convey("Entering a session should fail", func() {
			_, err := e.Enter(navigator.EnterOptions{Name: "A"})
			So(errors.Cause(err), ShouldEqual, store.ErrNoActiveRun)
		})
		Convey("Start and end should bracket a clean run", func() {
			So(e.Start(map[string]interface{}{"subject": "s1"}, true), ShouldBeNil)
			So(e.InRun(), ShouldBeTrue)
			So(errors.Cause(e.Start(nil, false)), ShouldEqual, store.ErrRunActive)
			id := e.RunID()
			So(id, ShouldBeGreaterThan, 0)
			So(e.End(), ShouldBeNil)
			So(e.InRun(), ShouldBeFalse)

			dirty, err := e.DirtyRuns()
			So(err, ShouldBeNil)
			So(dirty, ShouldBeEmpty)
			So(e.st.Do(func(tx *store.Tx) error {
				r, err := tx.GetRun(id)
				So(err, ShouldBeNil)
				So(r.TestRun, ShouldBeTrue)
				So(r.CleanExit, ShouldBeTrue)
				So(r.Uname, ShouldNotBeNil)
				return nil
			}), ShouldBeNil)
		})
		Convey("Close should unregister the debug hook", func() {
			So(registeredHooks(e.hook), ShouldBeGreaterThan, 0)
			So(e.Close(), ShouldBeNil)
			So(registeredHooks(e.hook), ShouldEqual, 0)

			e2, err := Open(Config{DSN: nextTestDB()})
			So(err, ShouldBeNil)
			So(registeredHooks(e.hook), ShouldEqual, 0)
			So(registeredHooks(e2.hook), ShouldBeGreaterThan, 0)
			So(e2.Close(), ShouldBeNil)
		})
		Convey("Close should end the run and be idempotent", func() {
			So(e.Start(nil, false), ShouldBeNil)
			id := e.RunID()
			So(e.Close(), ShouldBeNil)
			So(e.Opened(), ShouldBeFalse)
			So(e.Close(), ShouldBeNil)
			_, err := e.Log(LogRequest{Stream: "mouse"})
			So(errors.Cause(err), ShouldEqual, store.ErrClosed)

			e2, err := Open(Config{DSN: fl})
			So(err, ShouldBeNil)
			defer e2.Close()
			dirty, err := e2.DirtyRuns()
			So(err, ShouldBeNil)
			So(dirty, ShouldBeEmpty)
			So(e2.st.Do(func(tx *store.Tx) error {
				r, err := tx.GetRun(id)
				So(err, ShouldBeNil)
				So(r.Ended, ShouldBeTrue)
				return nil
			}), ShouldBeNil)
		})
	})
}

func TestEngineLogging(t *testing.T) {
	Convey("Given a running engine", t, func() {
		base := time.Unix(1500000000, 0)
		e, err := Open(Config{
			DSN:        nextTestDB(),
			AutoStart:  true,
			NTPSync:    true,
			NTPServers: []string{"local"},
			NTPQueries: 1,
			NTPQuerier: constQuerier(2 * time.Second),
			Now:        func() time.Time { return base },
		})
		So(err, ShouldBeNil)
		Reset(func() { _ = e.Close() })

		So(e.InRun(), ShouldBeTrue)
		So(e.ClockOffset(), ShouldEqual, 2*time.Second)
		So(e.Now(), ShouldResemble, base.Add(2*time.Second))

		Convey("Unknown streams should be created on demand", func() {
			id, err := e.Log(LogRequest{Stream: "mouse", Tag: "move", Data: map[string]interface{}{"x": 3}})
			So(err, ShouldBeNil)
			_, err = e.Log(LogRequest{Stream: "mouse"})
			So(err, ShouldBeNil)

			m, err := e.Find(store.MetaStream, "mouse")
			So(err, ShouldBeNil)
			So(m.Type, ShouldEqual, store.AutoStreamType)

			stats := e.Stats()
			So(stats.Logs, ShouldEqual, 2)
			So(stats.AutoStreams, ShouldEqual, 1)
			So(stats.InRun, ShouldBeTrue)

			So(e.st.Do(func(tx *store.Tx) error {
				r, err := tx.GetLogRecord(id)
				So(err, ShouldBeNil)
				So(r.Valid, ShouldBeTrue)
				So(r.Session, ShouldEqual, tx.RootID())
				So(r.Time.Equal(base.Add(2*time.Second)), ShouldBeTrue)
				return nil
			}), ShouldBeNil)
		})
		Convey("Records should land in the current session", func() {
			invalid := false
			s, err := e.Enter(navigator.EnterOptions{Name: "Trial"})
			So(err, ShouldBeNil)
			So(e.SessionID(), ShouldEqual, s.ID)
			id, err := e.Log(LogRequest{Stream: "keys", Valid: &invalid, Time: base, Binary: []byte("raw")})
			So(err, ShouldBeNil)
			So(e.Leave(true, true), ShouldBeNil)

			So(e.st.Do(func(tx *store.Tx) error {
				r, err := tx.GetLogRecord(id)
				So(err, ShouldBeNil)
				So(r.Session, ShouldEqual, s.ID)
				So(r.Valid, ShouldBeFalse)
				So(r.Time.Equal(base), ShouldBeTrue)
				So(r.Binary, ShouldResemble, []byte("raw"))
				return nil
			}), ShouldBeNil)

			last, ok, err := e.LastSession(true)
			So(err, ShouldBeNil)
			So(ok, ShouldBeTrue)
			So(last, ShouldEqual, s.ID)
		})
		Convey("Catalog operations should pass through", func() {
			_, err := e.Register(store.MetaUser, "Moss Green", "", "", nil, false)
			So(err, ShouldBeNil)
			_, err = e.Register(store.MetaUser, "Moss Green", "", "", nil, false)
			So(errors.Cause(err), ShouldEqual, store.ErrDuplicateEntry)
			So(e.Bind(store.MetaUser, "Moss Green", nil), ShouldBeNil)

			So(e.Cd("/A/B"), ShouldBeNil)
			path, err := e.Path()
			So(err, ShouldBeNil)
			So(path, ShouldEqual, "/A/B/")
			bindings, err := e.Bindings()
			So(err, ShouldBeNil)
			So(bindings, ShouldHaveLength, 1)

			So(e.Unbind(store.MetaUser, "Moss Green"), ShouldBeNil)
			bindings, err = e.Bindings()
			So(err, ShouldBeNil)
			So(bindings, ShouldBeEmpty)

			entries, err := e.Catalog(store.MetaPath)
			So(err, ShouldBeNil)
			So(entries, ShouldHaveLength, 2)

			seed, err := e.RandomSeed()
			So(err, ShouldBeNil)
			So(seed, ShouldBeGreaterThan, 0)
			So(e.Resume(e.st.RootID()), ShouldBeNil)
			So(e.SessionID(), ShouldEqual, e.st.RootID())
		})
		Convey("Dataset metadata should merge", func() {
			So(e.SetMeta(map[string]interface{}{"a": 1}), ShouldBeNil)
			So(e.SetMeta(map[string]interface{}{"b": map[string]interface{}{"c": "d"}}), ShouldBeNil)
			kv, err := e.GetMeta()
			So(err, ShouldBeNil)
			So(kv, ShouldResemble, map[string]interface{}{
				"a": float64(1),
				"b": map[string]interface{}{"c": "d"},
			})
			v, err := e.GetMetaField("b", "c")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "d")
		})
		Convey("External media should be anchored", func() {
			id, err := e.SyncExternal(&store.SyncAnchor{File: "cam.mp4"})
			So(err, ShouldBeNil)
			So(id, ShouldBeGreaterThan, 0)
			So(e.AddIndices(), ShouldBeNil)
			So(e.Commit(), ShouldBeNil)
		})
		Convey("Warnings should be mirrored into the debug log", func() {
			log.WithField("probe", "x").Warning("mirrored diagnostic")
			So(e.Commit(), ShouldBeNil)
			So(e.st.Do(func(tx *store.Tx) error {
				n, err := tx.DebugLogCount(e.RunID())
				So(err, ShouldBeNil)
				So(n, ShouldBeGreaterThanOrEqualTo, 1)
				return nil
			}), ShouldBeNil)
		})
	})
}
