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

package storage

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestDSN(t *testing.T) {
	Convey("DSN strings should be parsed and formatted", t, func() {
		testStrings := []string{
			"",
			"file:test.db",
			"file::memory:?cache=shared&mode=memory",
			"file:test.db?p1=v1&p2=v2&p1=v3",
		}

		for _, s := range testStrings {
			dsn, err := NewDSN(s)
			So(err, ShouldBeNil)

			dsn.SetFileName("/dev/null")
			dsn.AddParam("key", "value")
			v, ok := dsn.GetParam("key")
			So(ok, ShouldBeTrue)
			So(v, ShouldEqual, "value")

			dsn.AddParam("key", "")
			_, ok = dsn.GetParam("key")
			So(ok, ShouldBeFalse)
		}
	})

	Convey("Parameters should be formatted in key order", t, func() {
		dsn, err := NewDSN("file:test.db?b=2&a=1")
		So(err, ShouldBeNil)
		So(dsn.Format(), ShouldEqual, "file:test.db?a=1&b=2")
		So(dsn.GetFileName(), ShouldEqual, "test.db")
	})

	Convey("Memory databases should be detected", t, func() {
		dsn, err := NewDSN("file::memory:")
		So(err, ShouldBeNil)
		So(dsn.IsMemory(), ShouldBeTrue)
		dsn, err = NewDSN("file:x.db?mode=memory")
		So(err, ShouldBeNil)
		So(dsn.IsMemory(), ShouldBeTrue)
		dsn, err = NewDSN("x.db")
		So(err, ShouldBeNil)
		So(dsn.IsMemory(), ShouldBeFalse)
	})

	Convey("Malformed parameters should be rejected", t, func() {
		_, err := NewDSN("file:test.db?p1")
		So(err, ShouldNotBeNil)
	})

	Convey("Clones should not share parameters", t, func() {
		dsn := &DSN{}
		dsn.AddParam("clone", "true")
		clone := dsn.Clone()
		_, ok := clone.GetParam("clone")
		So(ok, ShouldBeTrue)
		clone.AddParam("clone", "")
		_, ok = dsn.GetParam("clone")
		So(ok, ShouldBeTrue)
	})
}
