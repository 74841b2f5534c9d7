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

package metric

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/rpc"
)

type fakeEngine explog.Stats

func (f *fakeEngine) Stats() explog.Stats {
	return explog.Stats(*f)
}

type fakeServer rpc.ServerStats

func (f *fakeServer) Stats() rpc.ServerStats {
	return rpc.ServerStats(*f)
}

func TestExplogCollector(t *testing.T) {
	Convey("Given engine and server counters", t, func() {
		engine := &fakeEngine{Logs: 42, AutoStreams: 2, Commits: 7, InRun: true, LogRate: 1.5}
		server := &fakeServer{Calls: 9, CallFailures: 1, Published: 40}

		Convey("The registry should expose them", func() {
			reg, err := StartMetricCollector(engine, server)
			So(err, ShouldBeNil)
			mm, err := Gather(reg)
			So(err, ShouldBeNil)
			So(mm, ShouldContainKey, "explog_log_records_total")
			So(mm, ShouldContainKey, "explog_rpc_published_total")
			So(mm, ShouldContainKey, "go_goroutines")

			crucial := mm.FilterCrucialMetrics()
			So(crucial["log_records"], ShouldEqual, 42)
			So(crucial["auto_streams"], ShouldEqual, 2)
			So(crucial["commits"], ShouldEqual, 7)
			So(crucial["in_run"], ShouldEqual, 1)
			So(crucial["log_rate1"], ShouldEqual, 1.5)
			So(crucial["rpc_calls"], ShouldEqual, 9)
			So(crucial["rpc_call_failures"], ShouldEqual, 1)
			So(crucial["rpc_published"], ShouldEqual, 40)

			engine.Logs = 43
			engine.InRun = false
			mm, err = Gather(reg)
			So(err, ShouldBeNil)
			crucial = mm.FilterCrucialMetrics()
			So(crucial["log_records"], ShouldEqual, 43)
			So(crucial["in_run"], ShouldEqual, 0)
		})
		Convey("Server metrics should be left out without a server", func() {
			reg, err := StartMetricCollector(engine, nil)
			So(err, ShouldBeNil)
			mm, err := Gather(reg)
			So(err, ShouldBeNil)
			So(mm, ShouldContainKey, "explog_commits_total")
			So(mm, ShouldNotContainKey, "explog_rpc_calls_total")
		})
	})
}
