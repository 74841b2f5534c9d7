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
	"bytes"
	"net"
	"net/rpc"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	mux "github.com/xtaci/smux"

	"github.com/CovenantSQL/explog/eventbus"
	"github.com/CovenantSQL/explog/utils"
	"github.com/CovenantSQL/explog/utils/log"
)

const (
	// DefaultPollInterval is the bounded wait of one server poll cycle.
	DefaultPollInterval = 500 * time.Millisecond

	publishTopic = "/rpc/publish"
	drainTimeout = 2 * time.Second
)

// State is the server state.
type State int32

// Server states.
const (
	StateListening State = iota
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateStopped:
		return "STOPPED"
	}
	return "UNKNOWN"
}

// ServerConfig holds the listen endpoints.
type ServerConfig struct {
	ListenAddr   string
	PublishAddr  string
	PollInterval time.Duration
}

// ServerStats is a snapshot of the server counters.
type ServerStats struct {
	Calls           uint64
	CallFailures    uint64
	Published       uint64
	PublishFailures uint64
}

// Server hosts one engine on a request/reply endpoint and a publish endpoint.
type Server struct {
	engine    Engine
	poll      time.Duration
	rpcServer *rpc.Server
	bus       *eventbus.Bus

	reqListener net.Listener
	pubListener net.Listener

	// procLock serializes dispatch across both endpoints.
	procLock sync.Mutex
	state    int32
	inflight int64

	sessLock sync.Mutex
	sessions map[*mux.Session]struct{}

	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	calls           uint64
	callFailures    uint64
	published       uint64
	publishFailures uint64
}

// Service is the net/rpc receiver for request/reply calls.
type Service struct {
	s *Server
}

// Call dispatches one call. Failures travel inside reply, the returned error is always nil.
func (svc *Service) Call(call *Call, reply *Reply) error {
	atomic.AddUint64(&svc.s.calls, 1)
	startTime := time.Now()
	result, err := svc.s.dispatch(call)
	if _, known := dispatchTable[call.Method]; known {
		recordCallCost(startTime, call.Method, err)
	}
	if err == nil {
		var buf *bytes.Buffer
		if buf, err = utils.EncodeMsgPack(result); err == nil {
			reply.Success = true
			reply.Result = buf.Bytes()
			return nil
		}
		err = errors.Wrapf(err, "encode result of %s failed", call.Method)
	}
	atomic.AddUint64(&svc.s.callFailures, 1)
	reply.Error = NewRemoteError(err)
	log.WithFields(log.Fields{
		"method": call.Method,
		"kind":   reply.Error.Kind,
	}).WithError(err).Warning("remote call failed")
	return nil
}

// NewServer binds both endpoints.
func NewServer(e Engine, cfg ServerConfig) (s *Server, err error) {
	s = &Server{
		engine:    e,
		poll:      cfg.PollInterval,
		rpcServer: rpc.NewServer(),
		bus:       eventbus.New(),
		sessions:  make(map[*mux.Session]struct{}),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	if s.poll <= 0 {
		s.poll = DefaultPollInterval
	}
	if err = s.rpcServer.RegisterName(ServiceName, &Service{s: s}); err != nil {
		err = errors.Wrap(err, "register service failed")
		return
	}
	if _, err = s.bus.SubscribeAsync(publishTopic, s.handlePublished, true); err != nil {
		err = errors.Wrap(err, "subscribe publish topic failed")
		return
	}
	if s.reqListener, err = net.Listen("tcp", cfg.ListenAddr); err != nil {
		err = errors.Wrapf(err, "listen on %s failed", cfg.ListenAddr)
		return
	}
	if s.pubListener, err = net.Listen("tcp", cfg.PublishAddr); err != nil {
		_ = s.reqListener.Close()
		err = errors.Wrapf(err, "listen on %s failed", cfg.PublishAddr)
		return
	}
	return
}

// Addr returns the request/reply endpoint.
func (s *Server) Addr() string {
	return s.reqListener.Addr().String()
}

// PublishAddr returns the publish endpoint.
func (s *Server) PublishAddr() string {
	return s.pubListener.Addr().String()
}

// State returns the current server state.
func (s *Server) State() State {
	return State(atomic.LoadInt32(&s.state))
}

// Done is closed once the server has stopped.
func (s *Server) Done() <-chan struct{} {
	return s.doneCh
}

// Stats returns the server counters.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Calls:           atomic.LoadUint64(&s.calls),
		CallFailures:    atomic.LoadUint64(&s.callFailures),
		Published:       atomic.LoadUint64(&s.published),
		PublishFailures: atomic.LoadUint64(&s.publishFailures),
	}
}

// Serve runs the accept loops and blocks until the server stops, either by Stop or because
// the hosted engine was closed.
func (s *Server) Serve() {
	log.WithFields(log.Fields{
		"addr":    s.Addr(),
		"publish": s.PublishAddr(),
	}).Info("rpc server listening")

	s.wg.Add(2)
	go s.acceptLoop(s.reqListener, s.handleRequestConn)
	go s.acceptLoop(s.pubListener, s.handlePublishConn)
	<-s.doneCh
}

type deadlineListener interface {
	SetDeadline(t time.Time) error
}

func (s *Server) acceptLoop(l net.Listener, handle func(net.Conn)) {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		default:
		}
		if !s.engine.Opened() {
			log.Info("engine closed, stopping rpc server")
			go s.Stop()
			return
		}
		if dl, ok := l.(deadlineListener); ok {
			_ = dl.SetDeadline(time.Now().Add(s.poll))
		}
		conn, err := l.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			log.WithError(err).Warning("accept failed")
			time.Sleep(s.poll)
			continue
		}
		log.WithField("remote", conn.RemoteAddr().String()).Debug("accept")
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			handle(conn)
		}()
	}
}

func (s *Server) openSession(conn net.Conn) (sess *mux.Session, ok bool) {
	sess, err := mux.Server(conn, MuxConfig)
	if err != nil {
		log.WithError(err).Warning("create mux server failed")
		_ = conn.Close()
		return
	}
	s.sessLock.Lock()
	defer s.sessLock.Unlock()
	select {
	case <-s.stopCh:
		_ = sess.Close()
		return nil, false
	default:
	}
	s.sessions[sess] = struct{}{}
	return sess, true
}

func (s *Server) closeSession(sess *mux.Session) {
	s.sessLock.Lock()
	delete(s.sessions, sess)
	s.sessLock.Unlock()
	_ = sess.Close()
}

func (s *Server) serveSession(conn net.Conn, serve func(stream *mux.Stream)) {
	sess, ok := s.openSession(conn)
	if !ok {
		return
	}
	defer s.closeSession(sess)

	for {
		stream, err := sess.AcceptStream()
		if err != nil {
			log.WithField("remote", conn.RemoteAddr().String()).WithError(err).Debug("session closed")
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			serve(stream)
		}()
	}
}

func (s *Server) handleRequestConn(conn net.Conn) {
	s.serveSession(conn, func(stream *mux.Stream) {
		s.rpcServer.ServeCodec(NewInflightServerCodec(utils.GetMsgPackServerCodec(stream), &s.inflight))
	})
}

func (s *Server) handlePublishConn(conn net.Conn) {
	s.serveSession(conn, func(stream *mux.Stream) {
		defer stream.Close()
		dec := utils.NewMsgPackDecoder(stream)
		for {
			call := &Call{}
			if err := dec.Decode(call); err != nil {
				log.WithError(err).Debug("publish stream ended")
				return
			}
			atomic.AddUint64(&s.published, 1)
			s.bus.Publish(publishTopic, call)
		}
	})
}

func (s *Server) handlePublished(_ string, payload interface{}) {
	call, ok := payload.(*Call)
	if !ok {
		return
	}
	if _, err := s.dispatch(call); err != nil {
		atomic.AddUint64(&s.publishFailures, 1)
		log.WithField("method", call.Method).WithError(err).Warning("published call failed")
	}
}

func (s *Server) dispatch(call *Call) (result interface{}, err error) {
	s.procLock.Lock()
	defer s.procLock.Unlock()
	if !atomic.CompareAndSwapInt32(&s.state, int32(StateListening), int32(StateProcessing)) {
		return nil, errors.Wrap(ErrNotOpened, "server stopped")
	}
	defer atomic.CompareAndSwapInt32(&s.state, int32(StateProcessing), int32(StateListening))
	log.WithField("method", call.Method).Debug("dispatch")
	return Dispatch(s.engine, call)
}

// Stop closes both endpoints and every open session, and waits for the server goroutines.
// Replies already being written are let out first.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		_ = s.reqListener.Close()
		_ = s.pubListener.Close()

		// wait for the current dispatch, if any, then refuse new ones
		s.procLock.Lock()
		atomic.StoreInt32(&s.state, int32(StateStopped))
		s.procLock.Unlock()

		deadline := time.Now().Add(drainTimeout)
		for atomic.LoadInt64(&s.inflight) > 0 && time.Now().Before(deadline) {
			time.Sleep(10 * time.Millisecond)
		}

		s.sessLock.Lock()
		for sess := range s.sessions {
			_ = sess.Close()
		}
		s.sessLock.Unlock()

		s.wg.Wait()
		s.bus.WaitAsync()
		log.Info("rpc server stopped")
		close(s.doneCh)
	})
	<-s.doneCh
}
