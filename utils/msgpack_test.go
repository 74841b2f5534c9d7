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

package utils

import (
	"bytes"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

type msgpackTestCall struct {
	Method string
	Args   []interface{}
	Kwargs map[string]interface{}
}

func TestMsgPack_EncodeDecode(t *testing.T) {
	Convey("Untyped maps should decode as string keyed maps", t, func() {
		buf, err := EncodeMsgPack(map[string]interface{}{"a": 1, "b": "two"})
		So(err, ShouldBeNil)
		var out interface{}
		err = DecodeMsgPack(buf.Bytes(), &out)
		So(err, ShouldBeNil)
		m, ok := out.(map[string]interface{})
		So(ok, ShouldBeTrue)
		So(m["b"], ShouldEqual, "two")
	})

	Convey("Call-like envelopes should survive a round trip", t, func() {
		pre := &msgpackTestCall{
			Method: "log",
			Args:   []interface{}{"sensor_1"},
			Kwargs: map[string]interface{}{"tag": "t"},
		}
		buf, err := EncodeMsgPack(pre)
		So(err, ShouldBeNil)
		var post msgpackTestCall
		err = DecodeMsgPack(buf.Bytes(), &post)
		So(err, ShouldBeNil)
		So(post.Method, ShouldEqual, "log")
		So(post.Args[0], ShouldEqual, "sensor_1")
		So(post.Kwargs["tag"], ShouldEqual, "t")
	})

	Convey("Stream encoders should frame consecutive values", t, func() {
		var (
			buf = &bytes.Buffer{}
			enc = NewMsgPackEncoder(buf)
		)
		So(enc.Encode("first"), ShouldBeNil)
		So(enc.Encode("second"), ShouldBeNil)
		dec := NewMsgPackDecoder(buf)
		var s string
		So(dec.Decode(&s), ShouldBeNil)
		So(s, ShouldEqual, "first")
		So(dec.Decode(&s), ShouldBeNil)
		So(s, ShouldEqual, "second")
	})
}
