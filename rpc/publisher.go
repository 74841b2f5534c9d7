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
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
	mux "github.com/xtaci/smux"

	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/utils"
	"github.com/CovenantSQL/explog/utils/log"
)

// DefaultPublishQueue is the publisher buffer size used when none is given.
const DefaultPublishQueue = 1024

// Publisher is a send-only proxy for log calls. Records are queued and written by a background
// goroutine; nothing is acknowledged, and records are dropped while the queue is full.
type Publisher struct {
	RemoteAddr string

	sess   *mux.Session
	stream *mux.Stream
	enc    *codec.Encoder

	lock   sync.RWMutex
	closed bool
	queue  chan *Call
	wg     sync.WaitGroup

	sent    uint64
	dropped uint64
	failed  uint64
}

// DialPublisher connects a publisher to the server publish endpoint at addr.
func DialPublisher(addr string, queueSize int) (p *Publisher, err error) {
	if queueSize <= 0 {
		queueSize = DefaultPublishQueue
	}
	sess, stream, err := dialStream(addr)
	if err != nil {
		return
	}
	p = &Publisher{
		RemoteAddr: addr,
		sess:       sess,
		stream:     stream,
		enc:        utils.NewMsgPackEncoder(stream),
		queue:      make(chan *Call, queueSize),
	}
	p.wg.Add(1)
	go p.writeLoop()
	return
}

func (p *Publisher) writeLoop() {
	defer p.wg.Done()
	for call := range p.queue {
		if err := p.enc.Encode(call); err != nil {
			atomic.AddUint64(&p.failed, 1)
			log.WithField("remote", p.RemoteAddr).WithError(err).Debug("publish failed")
			continue
		}
		atomic.AddUint64(&p.sent, 1)
	}
}

// Log queues a record. It never blocks: a full queue drops the record.
func (p *Publisher) Log(req explog.LogRequest) error {
	var valid interface{}
	if req.Valid != nil {
		valid = *req.Valid
	}
	call := &Call{
		Method: MethodLog,
		Args:   []interface{}{req.Stream, req.Tag, epochArg(req.Time), valid, req.Data, req.Binary},
	}

	p.lock.RLock()
	defer p.lock.RUnlock()
	if p.closed {
		return errors.Wrap(ErrNotOpened, "publisher closed")
	}
	select {
	case p.queue <- call:
	default:
		atomic.AddUint64(&p.dropped, 1)
	}
	return nil
}

// Sent returns the number of records written to the connection.
func (p *Publisher) Sent() uint64 {
	return atomic.LoadUint64(&p.sent)
}

// Dropped returns the number of records dropped on a full queue.
func (p *Publisher) Dropped() uint64 {
	return atomic.LoadUint64(&p.dropped)
}

// Failed returns the number of records the connection refused.
func (p *Publisher) Failed() uint64 {
	return atomic.LoadUint64(&p.failed)
}

// Close writes out what is queued and closes the connection.
func (p *Publisher) Close() (err error) {
	p.lock.Lock()
	if p.closed {
		p.lock.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.lock.Unlock()

	p.wg.Wait()
	err = p.stream.Close()
	_ = p.sess.Close()
	return
}
