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
	"io"
	"net/rpc"
	"reflect"

	"github.com/ugorji/go/codec"
)

var (
	msgpackHandle = newMsgPackHandle()
)

func newMsgPackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{
		WriteExt: true,
	}
	h.RawToString = true
	// Decode untyped maps the same way encoding/json does so payloads can be passed
	// straight to the store.
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

// DecodeMsgPack reverses the encode operation on a byte slice input.
func DecodeMsgPack(buf []byte, out interface{}) error {
	dec := codec.NewDecoderBytes(buf, msgpackHandle)
	return dec.Decode(out)
}

// EncodeMsgPack writes an encoded object to a new bytes buffer.
func EncodeMsgPack(in interface{}) (*bytes.Buffer, error) {
	buf := bytes.NewBuffer(nil)
	enc := codec.NewEncoder(buf, msgpackHandle)
	err := enc.Encode(in)
	return buf, err
}

// NewMsgPackEncoder returns a stream encoder writing to w.
func NewMsgPackEncoder(w io.Writer) *codec.Encoder {
	return codec.NewEncoder(w, msgpackHandle)
}

// NewMsgPackDecoder returns a stream decoder reading from r.
func NewMsgPackDecoder(r io.Reader) *codec.Decoder {
	return codec.NewDecoder(r, msgpackHandle)
}

// GetMsgPackServerCodec returns a net/rpc server codec speaking msgpack-rpc on conn.
func GetMsgPackServerCodec(conn io.ReadWriteCloser) rpc.ServerCodec {
	return codec.MsgpackSpecRpc.ServerCodec(conn, msgpackHandle)
}

// GetMsgPackClientCodec returns a net/rpc client codec speaking msgpack-rpc on conn.
func GetMsgPackClientCodec(conn io.ReadWriteCloser) rpc.ClientCodec {
	return codec.MsgpackSpecRpc.ClientCodec(conn, msgpackHandle)
}
