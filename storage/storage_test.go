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
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestOpen(t *testing.T) {
	Convey("Given a temporary directory", t, func() {
		dir, err := ioutil.TempDir("", "explog-storage")
		So(err, ShouldBeNil)
		Reset(func() {
			_ = os.RemoveAll(dir)
		})

		Convey("Opening a file DSN should create the database with pragmas applied", func() {
			fl := filepath.Join(dir, "test.db")
			db, err := Open("file:" + fl)
			So(err, ShouldBeNil)
			defer db.Close()
			So(fl, ShouldNotBeEmpty)

			var sync int
			err = db.QueryRow("PRAGMA synchronous").Scan(&sync)
			So(err, ShouldBeNil)
			So(sync, ShouldEqual, 0)

			_, err = db.Exec("CREATE TABLE t (k INTEGER PRIMARY KEY, v TEXT)")
			So(err, ShouldBeNil)
			_, err = os.Stat(fl)
			So(err, ShouldBeNil)
		})
		Convey("Missing parent directories should be created", func() {
			fl := filepath.Join(dir, "nested", "deeper", "test.db")
			db, err := Open(fl)
			So(err, ShouldBeNil)
			defer db.Close()
			_, err = db.Exec("CREATE TABLE t (k INTEGER PRIMARY KEY)")
			So(err, ShouldBeNil)
			_, err = os.Stat(filepath.Dir(fl))
			So(err, ShouldBeNil)
		})
		Convey("An empty file name should be refused", func() {
			_, err := Open("file:?mode=memory")
			So(err, ShouldNotBeNil)
		})
		Convey("A malformed DSN should be refused", func() {
			_, err := Open("file:x.db?broken")
			So(err, ShouldNotBeNil)
		})
	})
}
