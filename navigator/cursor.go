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

// Package navigator moves a cursor through the session tree of a store.
//
// A Cursor is a plain value: it holds the store and the identity of the session new log records
// are written into. Any number of cursors may share one store, each walking the tree on its own.
// Cursor state only changes inside the store critical section, so composite moves (an enter that
// creates a session, records its path and copies bindings) are atomic to other store users.
package navigator

import (
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/explog/store"
	"github.com/CovenantSQL/explog/utils/log"
)

// EnterOptions describes a child session. An empty Name enters an anonymous child named by the
// parent's subcount.
type EnterOptions struct {
	Name        string
	Data        interface{}
	TestRun     bool
	Description string
	// Prototype names a SESSION catalog entry to bind to the new session.
	Prototype string
}

// Cursor is a position in the session tree.
type Cursor struct {
	st      *store.Store
	session int64
}

// New returns a cursor positioned at the root session of st.
func New(st *store.Store) *Cursor {
	return &Cursor{
		st:      st,
		session: st.RootID(),
	}
}

// SessionID returns the identity of the current session.
func (c *Cursor) SessionID() int64 {
	return atomic.LoadInt64(&c.session)
}

func (c *Cursor) moveTo(id int64) {
	atomic.StoreInt64(&c.session, id)
}

// Enter creates a child of the current session and moves into it.
func (c *Cursor) Enter(opts EnterOptions) (s *store.Session, err error) {
	err = c.st.Do(func(tx *store.Tx) (err error) {
		if s, err = c.EnterTx(tx, opts); err != nil {
			return
		}
		return tx.Commit()
	})
	return
}

// EnterTx is Enter for callers already inside the store critical section. It does not commit.
// A failed enter leaves neither a session nor a consumed subcount behind.
func (c *Cursor) EnterTx(tx *store.Tx, opts EnterOptions) (s *store.Session, err error) {
	if tx.ActiveRun() == 0 {
		return nil, errors.Wrap(store.ErrNoActiveRun, "cannot start session")
	}
	if opts.Name != "" && !store.ValidSessionName(opts.Name) {
		return nil, errors.Wrapf(store.ErrInvalidName, "session %q", opts.Name)
	}
	if opts.Prototype != "" && !store.ValidName(opts.Prototype) {
		return nil, errors.Wrapf(store.ErrInvalidName, "prototype %q", opts.Prototype)
	}

	parent := c.SessionID()
	if err = tx.Savepoint(func() (err error) {
		s, err = c.createChild(tx, parent, opts)
		return
	}); err != nil {
		return nil, err
	}

	c.moveTo(s.ID)
	log.WithFields(log.Fields{
		"path":    s.Path,
		"session": s.ID,
	}).Debug("new session")
	return
}

func (c *Cursor) createChild(tx *store.Tx, parent int64, opts EnterOptions) (s *store.Session, err error) {
	name := opts.Name
	if name == "" {
		var n int64
		if n, err = tx.NextSubcount(parent); err != nil {
			return
		}
		name = strconv.FormatInt(n, 10)
	}

	var parentPath string
	if parentPath, err = tx.SessionPath(parent); err != nil {
		return
	}
	path := parentPath + name + "/"
	log.WithFields(log.Fields{
		"parent": parent,
		"path":   path,
	}).Debug("entering session")

	if err = tx.EnsurePath(path); err != nil {
		return
	}
	if s, err = tx.CreateSession(&store.NewSession{
		Parent:      parent,
		Name:        name,
		Path:        path,
		TestRun:     opts.TestRun,
		Description: opts.Description,
		Data:        opts.Data,
	}); err != nil {
		return
	}

	if opts.Prototype != "" {
		if err = tx.Bind(s.ID, store.MetaSession, opts.Prototype, nil); err != nil {
			return
		}
	}
	_, err = tx.CopyBindings(parent, s.ID)
	return
}

// Leave ends the current session and moves to its parent. Leaving the root is a no-op.
// Leaving any other session needs an active run. Buffered writes are committed.
func (c *Cursor) Leave(complete, valid bool) error {
	return c.st.Do(func(tx *store.Tx) (err error) {
		if err = c.LeaveTx(tx, complete, valid); err != nil {
			return
		}
		return tx.Commit()
	})
}

// LeaveTx is Leave for callers already inside the store critical section. It does not commit.
func (c *Cursor) LeaveTx(tx *store.Tx, complete, valid bool) (err error) {
	var s *store.Session
	if s, err = tx.GetSession(c.SessionID()); err != nil {
		return
	}
	if s.IsRoot() {
		log.Warning("tried to leave the root session")
		return nil
	}
	if tx.ActiveRun() == 0 {
		return errors.Wrapf(store.ErrNoActiveRun, "cannot leave %s", s.Path)
	}
	log.WithFields(log.Fields{
		"path":     s.Path,
		"complete": complete,
		"valid":    valid,
	}).Debug("leaving session")

	if err = tx.CloseSession(s.ID, complete, valid); err != nil {
		return
	}
	c.moveTo(s.Parent)
	return
}

// Cd moves to path using unix path rules. Absolute paths leave down to the longest common prefix
// with the current path and enter the rest; "." stays and ".." leaves. Every component that is
// entered creates a new session, even when a sibling with that name already exists.
func (c *Cursor) Cd(path string) error {
	return c.st.Do(func(tx *store.Tx) (err error) {
		var current string
		if current, err = tx.SessionPath(c.SessionID()); err != nil {
			return
		}

		components := splitPath(path)
		if strings.HasPrefix(path, "/") {
			here := splitPath(current)
			i := 0
			for i < len(components) && i < len(here) && components[i] == here[i] {
				i++
			}
			for k := len(here) - i; k > 0; k-- {
				if err = c.LeaveTx(tx, true, true); err != nil {
					return
				}
			}
			components = components[i:]
		}

		for _, component := range components {
			switch component {
			case ".":
			case "..":
				err = c.LeaveTx(tx, true, true)
			default:
				_, err = c.EnterTx(tx, EnterOptions{Name: component})
			}
			if err != nil {
				return
			}
		}

		log.WithFields(log.Fields{
			"from": current,
			"to":   path,
		}).Debug("changed session")
		return tx.Commit()
	})
}

func splitPath(path string) (components []string) {
	for _, p := range strings.Split(path, "/") {
		if p != "" {
			components = append(components, p)
		}
	}
	return
}

// Resume points the cursor at an existing session.
func (c *Cursor) Resume(id int64) error {
	return c.st.Do(func(tx *store.Tx) (err error) {
		var s *store.Session
		if s, err = tx.GetSession(id); err != nil {
			return
		}
		c.moveTo(id)
		log.WithFields(log.Fields{
			"session": id,
			"path":    s.Path,
		}).Debug("resuming session")
		return
	})
}

// Path returns the path of the current session.
func (c *Cursor) Path() (path string, err error) {
	err = c.st.Do(func(tx *store.Tx) (err error) {
		path, err = tx.SessionPath(c.SessionID())
		return
	})
	return
}

// Bindings returns the active bindings of the current session.
func (c *Cursor) Bindings() (bindings []*store.Binding, err error) {
	err = c.st.Do(func(tx *store.Tx) (err error) {
		bindings, err = tx.Bindings(c.SessionID())
		return
	})
	return
}

// RandomSeed returns the seed of the current session.
func (c *Cursor) RandomSeed() (seed uint64, err error) {
	err = c.st.Do(func(tx *store.Tx) (err error) {
		var s *store.Session
		if s, err = tx.GetSession(c.SessionID()); err != nil {
			return
		}
		seed = s.RandomSeed
		return
	})
	return
}

// Bind attaches the catalog entry mtype:name to the current session.
func (c *Cursor) Bind(mtype store.MetaType, name string, data interface{}) error {
	return c.st.Do(func(tx *store.Tx) error {
		return tx.Bind(c.SessionID(), mtype, name, data)
	})
}

// Unbind retires the binding of mtype:name on the current session.
func (c *Cursor) Unbind(mtype store.MetaType, name string) error {
	return c.st.Do(func(tx *store.Tx) error {
		return tx.Unbind(c.SessionID(), mtype, name)
	})
}
