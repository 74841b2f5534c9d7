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

package log

import (
	"bytes"
	"errors"
	"testing"

	"github.com/sirupsen/logrus"
	. "github.com/smartystreets/goconvey/convey"
)

func TestStandardLogger(t *testing.T) {
	Convey("Given the standard logger writing to a buffer", t, func() {
		var (
			buf      = &bytes.Buffer{}
			oldLevel = GetLevel()
		)
		SetOutput(buf)
		SetFormatter(&logrus.TextFormatter{DisableColors: true})
		Reset(func() {
			SetOutput(&NilWriter{})
			SetLevel(oldLevel)
		})

		Convey("Entries at or above the level should be written", func() {
			SetLevel(InfoLevel)
			Debug("hidden")
			Info("shown")
			WithField("stream", "sensor_1").Warningf("auto created %d", 1)
			So(buf.String(), ShouldNotContainSubstring, "hidden")
			So(buf.String(), ShouldContainSubstring, "shown")
			So(buf.String(), ShouldContainSubstring, "stream=sensor_1")
		})
		Convey("Error entries should carry the caller", func() {
			SetLevel(DebugLevel)
			WithError(errors.New("boom")).Error("failed")
			So(buf.String(), ShouldContainSubstring, "caller=")
			So(buf.String(), ShouldContainSubstring, "error=boom")
		})
		Convey("Filtered packages should be held to their level", func() {
			SetLevel(DebugLevel)
			PkgDebugLogFilter["utils/log"] = InfoLevel
			Reset(func() { delete(PkgDebugLogFilter, "utils/log") })
			Debug("dropped by filter")
			Info("kept by filter")
			So(buf.String(), ShouldNotContainSubstring, "dropped by filter")
			So(buf.String(), ShouldContainSubstring, "kept by filter")
		})
		Convey("Removed hooks should no longer fire", func() {
			h := &countingHook{}
			AddHook(h)
			Warning("one")
			RemoveHook(h)
			Warning("two")
			So(h.fired, ShouldEqual, 1)
			Error("three")
			So(buf.String(), ShouldContainSubstring, "caller=")
		})
		Convey("String levels should fall back to the default", func() {
			SetStringLevel("not-a-level", WarnLevel)
			So(GetLevel(), ShouldEqual, WarnLevel)
			SetStringLevel("debug", WarnLevel)
			So(GetLevel(), ShouldEqual, DebugLevel)
		})
	})
}

type countingHook struct {
	fired int
}

func (h *countingHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *countingHook) Fire(*logrus.Entry) error {
	h.fired++
	return nil
}

func TestNilFormatter(t *testing.T) {
	Convey("The nil formatter should discard entries", t, func() {
		n := NilFormatter{}
		a, b := n.Format(&logrus.Entry{})
		So(a, ShouldBeNil)
		So(b, ShouldBeNil)
	})
}
