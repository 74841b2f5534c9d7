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
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/CovenantSQL/explog/explog"
	"github.com/CovenantSQL/explog/utils/log"
)

var (
	testingDataDir string
	testingDBSeq   int64
)

func nextTestDB() string {
	return filepath.Join(testingDataDir, fmt.Sprintf("rpc-%d.db", atomic.AddInt64(&testingDBSeq, 1)))
}

func openTestEngine() (e *explog.Engine, err error) {
	return explog.Open(explog.Config{
		DSN:       nextTestDB(),
		AutoStart: true,
		TestRun:   true,
	})
}

// startTestServer serves a fresh running engine on loopback ports.
func startTestServer() (e *explog.Engine, s *Server, err error) {
	if e, err = openTestEngine(); err != nil {
		return
	}
	if s, err = NewServer(e, ServerConfig{
		ListenAddr:   "127.0.0.1:0",
		PublishAddr:  "127.0.0.1:0",
		PollInterval: 50 * time.Millisecond,
	}); err != nil {
		_ = e.Close()
		return
	}
	go s.Serve()
	return
}

func waitFor(cond func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func setup() {
	var err error
	if testingDataDir, err = ioutil.TempDir("", "explog-rpc"); err != nil {
		panic(err)
	}
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
	// go-metrics starts its meter ticker on first use and never stops it
	metrics.NewMeter().Stop()
}

func teardown() {
	if err := os.RemoveAll(testingDataDir); err != nil {
		panic(err)
	}
}

func TestMain(m *testing.M) {
	os.Exit(func() int {
		setup()
		defer teardown()
		return m.Run()
	}())
}
