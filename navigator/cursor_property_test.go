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
	"strconv"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/CovenantSQL/explog/store"
)

// genSteps generates navigation moves: an empty step leaves, "*" enters an anonymous child and
// any other value enters a named child.
func genSteps() gopter.Gen {
	return gen.SliceOf(gen.OneConstOf("", "*", "a", "b", "c"))
}

func propertyParameters() *gopter.TestParameters {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	parameters.MaxSize = 20
	return parameters
}

// TestPathIsStackOfOpenNames checks that after any enter/leave sequence the cursor path is the
// concatenation of the names entered and not yet left, and that leaving the root does nothing.
func TestPathIsStackOfOpenNames(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())

	properties.Property("path follows the open name stack", prop.ForAll(
		func(steps []string) bool {
			st, err := openRunningStore()
			if err != nil {
				return false
			}
			defer st.Close()
			c := New(st)

			var (
				stack    []string
				counters = map[int64]int64{}
			)
			for _, s := range steps {
				switch s {
				case "":
					if err = c.Leave(true, true); err != nil {
						return false
					}
					if len(stack) > 0 {
						stack = stack[:len(stack)-1]
					}
				case "*":
					parent := c.SessionID()
					var sess *store.Session
					if sess, err = c.Enter(EnterOptions{}); err != nil {
						return false
					}
					if sess.Name != strconv.FormatInt(counters[parent], 10) {
						return false
					}
					counters[parent]++
					stack = append(stack, sess.Name)
				default:
					if _, err = c.Enter(EnterOptions{Name: s}); err != nil {
						return false
					}
					stack = append(stack, s)
				}
			}

			want := "/"
			for _, name := range stack {
				want += name + "/"
			}
			got, err := c.Path()
			if err != nil || got != want {
				return false
			}
			if len(stack) == 0 && c.SessionID() != st.RootID() {
				return false
			}
			return true
		},
		genSteps(),
	))

	properties.TestingRun(t)
}

// TestAbsoluteCdSharesPrefix checks that moving between two absolute paths only leaves the
// sessions below their common prefix.
func TestAbsoluteCdSharesPrefix(t *testing.T) {
	properties := gopter.NewProperties(propertyParameters())
	names := gen.SliceOfN(3, gen.OneConstOf("x", "y"))

	properties.Property("cd leaves to the common prefix", prop.ForAll(
		func(from, to []string) bool {
			st, err := openRunningStore()
			if err != nil {
				return false
			}
			defer st.Close()
			c := New(st)

			if err = c.Cd("/" + strings.Join(from, "/")); err != nil {
				return false
			}
			before := c.SessionID()
			if err = c.Cd("/" + strings.Join(to, "/")); err != nil {
				return false
			}
			got, err := c.Path()
			if err != nil || got != "/"+strings.Join(to, "/")+"/" {
				return false
			}

			common := 0
			for common < len(from) && common < len(to) && from[common] == to[common] {
				common++
			}

			// every session created by the second cd is a fresh one, so the session count grows
			// by exactly the number of differing components
			var sessions int
			if err = st.Do(func(tx *store.Tx) error {
				ids, err := tx.RunSessions(tx.ActiveRun())
				sessions = len(ids)
				return err
			}); err != nil {
				return false
			}
			if sessions != len(from)+len(to)-common {
				return false
			}
			return common < len(to) || c.SessionID() == before
		},
		names, names,
	))

	properties.TestingRun(t)
}
