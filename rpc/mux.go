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
	"net"

	"github.com/pkg/errors"
	mux "github.com/xtaci/smux"
)

var (
	// MuxConfig holds the default mux config
	MuxConfig *mux.Config
)

func init() {
	MuxConfig = mux.DefaultConfig()
}

// dialStream connects to addr and opens one stream on a new mux session. Closing the session
// closes conn too.
func dialStream(addr string) (sess *mux.Session, stream *mux.Stream, err error) {
	var conn net.Conn
	if conn, err = net.Dial("tcp", addr); err != nil {
		err = errors.Wrapf(err, "dial %s failed", addr)
		return
	}
	if sess, err = mux.Client(conn, MuxConfig); err != nil {
		_ = conn.Close()
		err = errors.Wrapf(err, "init mux client to %s failed", addr)
		return
	}
	if stream, err = sess.OpenStream(); err != nil {
		_ = sess.Close()
		err = errors.Wrapf(err, "open new stream to %s failed", addr)
	}
	return
}
