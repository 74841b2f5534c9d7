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
	"net/rpc"
	"sync/atomic"
)

// InflightServerCodec wraps normal rpc.ServerCodec and counts requests read but not yet
// answered, so a stopping server can let pending replies out before tearing down sessions.
type InflightServerCodec struct {
	rpc.ServerCodec
	inflight *int64
}

// NewInflightServerCodec returns new InflightServerCodec counting into inflight.
func NewInflightServerCodec(codec rpc.ServerCodec, inflight *int64) *InflightServerCodec {
	return &InflightServerCodec{
		ServerCodec: codec,
		inflight:    inflight,
	}
}

// ReadRequestHeader override default rpc.ServerCodec behaviour, every header read is answered
// by exactly one WriteResponse.
func (c *InflightServerCodec) ReadRequestHeader(r *rpc.Request) (err error) {
	if err = c.ServerCodec.ReadRequestHeader(r); err != nil {
		return
	}
	atomic.AddInt64(c.inflight, 1)
	return
}

// WriteResponse override default rpc.ServerCodec behaviour.
func (c *InflightServerCodec) WriteResponse(r *rpc.Response, body interface{}) error {
	defer atomic.AddInt64(c.inflight, -1)
	return c.ServerCodec.WriteResponse(r, body)
}
