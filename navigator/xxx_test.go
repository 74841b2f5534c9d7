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

package navigator

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/CovenantSQL/explog/store"
	"github.com/CovenantSQL/explog/utils/log"
)

var (
	testingDataDir string
	testingDBSeq   int64
)

// openRunningStore opens a fresh store with an active run.
func openRunningStore() (st *store.Store, err error) {
	fl := filepath.Join(testingDataDir, fmt.Sprintf("nav-%d.db", atomic.AddInt64(&testingDBSeq, 1)))
	if st, err = store.Open(fl, store.Config{}); err != nil {
		return
	}
	if err = st.Do(func(tx *store.Tx) error {
		_, err := tx.StartRun(&store.Run{})
		return err
	}); err != nil {
		_ = st.Close()
		return nil, err
	}
	return
}

func setup() {
	var err error
	if testingDataDir, err = ioutil.TempDir("", "explog-navigator"); err != nil {
		panic(err)
	}
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)
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
