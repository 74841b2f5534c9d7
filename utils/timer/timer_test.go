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

package timer

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestTimer(t *testing.T) {
	Convey("Given a timer with two stages", t, func() {
		t := NewTimer()
		time.Sleep(time.Millisecond * 20)
		t.Add("1.pool.ntp.org")

		time.Sleep(time.Millisecond * 50)
		t.Add("2.pool.ntp.org")

		m := t.ToMap()
		So(m, ShouldHaveLength, 3)
		So(m["1.pool.ntp.org"], ShouldBeGreaterThanOrEqualTo, time.Millisecond*20)
		So(m["2.pool.ntp.org"], ShouldBeGreaterThanOrEqualTo, time.Millisecond*50)
		So(m["total"], ShouldBeGreaterThanOrEqualTo, time.Millisecond*70)
		So(t.Elapsed(), ShouldBeGreaterThanOrEqualTo, m["total"])

		f := t.ToLogFields()
		So(f, ShouldHaveLength, 3)
		So(f["total"], ShouldEqual, m["total"])
	})

	Convey("An empty timer should report nothing", t, func() {
		So(NewTimer().ToMap(), ShouldBeEmpty)
	})
}
