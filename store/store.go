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

// Package store implements the catalog and session store of an experiment log on top of a
// single sqlite file.
//
// Every read and write goes through Store.Do, which holds the store lock for the whole
// callback. Methods of Tx assume the lock is held, so composite operations (entering a
// session, merging dataset metadata) run as one critical section and other goroutines never
// observe a partial mutation.
//
// Writes are buffered in an open sqlite transaction and made durable by Commit, either
// explicitly or according to the AutocommitPolicy evaluated after every appended log record.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/explog/storage"
	"github.com/CovenantSQL/explog/utils/log"
)

const defaultStreamCacheSize = 1024

// Config holds store open options.
type Config struct {
	Autocommit      AutocommitPolicy
	Now             func() time.Time
	StreamCacheSize int
}

// Store is the catalog and session store.
type Store struct {
	mu         sync.Mutex
	db         *sql.DB
	tx         *sql.Tx
	policy     AutocommitPolicy
	now        func() time.Time
	lastCommit time.Time
	streams    *lru.Cache
	rootID     int64
	activeRun  int64
	commits    uint64
	savepoints int
	closed     bool
}

// Tx is the view of the store inside the critical section.
type Tx struct {
	s *Store
}

// Open opens the store at dsn, creating the schema and the root session on first use.
func Open(dsn string, cfg Config) (s *Store, err error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.StreamCacheSize <= 0 {
		cfg.StreamCacheSize = defaultStreamCacheSize
	}

	s = &Store{
		policy: cfg.Autocommit,
		now:    cfg.Now,
	}
	if s.streams, err = lru.New(cfg.StreamCacheSize); err != nil {
		err = errors.Wrap(err, "create stream cache failed")
		return nil, err
	}
	if s.db, err = storage.Open(dsn); err != nil {
		return nil, err
	}
	if s.tx, err = s.db.Begin(); err != nil {
		_ = s.db.Close()
		return nil, errors.Wrap(err, "begin transaction failed")
	}

	if err = s.init(); err != nil {
		_ = s.tx.Rollback()
		_ = s.db.Close()
		return nil, err
	}

	s.lastCommit = s.now()
	log.WithFields(log.Fields{
		"dsn":        dsn,
		"autocommit": s.policy.String(),
		"root":       s.rootID,
	}).Debug("store opened")
	return s, nil
}

func (s *Store) init() (err error) {
	var count int
	if err = s.tx.QueryRow(
		`SELECT count(*) FROM sqlite_master WHERE type='table' AND name='runs'`,
	).Scan(&count); err != nil {
		return errors.Wrap(err, "check schema failed")
	}

	if count == 0 {
		log.Debug("creating tables")
		for _, q := range schema {
			if _, err = s.tx.Exec(q); err != nil {
				return errors.Wrapf(err, "create schema failed: %s", q)
			}
		}
		if _, err = s.tx.Exec(
			`INSERT INTO session(name, start_time, path, subcount) VALUES (?, ?, ?, ?)`,
			RootName, toEpoch(s.now()), "/", 0,
		); err != nil {
			return errors.Wrap(err, "insert root session failed")
		}
		if err = s.commitLocked(); err != nil {
			return
		}
	} else {
		log.Debug("tables already created")
	}

	if err = s.tx.QueryRow(
		`SELECT id FROM session WHERE parent IS NULL ORDER BY id LIMIT 1`,
	).Scan(&s.rootID); err != nil {
		return errors.Wrap(err, "load root session failed")
	}
	return
}

// Do runs fn inside the store's critical section.
func (s *Store) Do(fn func(tx *Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	return fn(&Tx{s: s})
}

// RootID returns the identity of the permanent root session.
func (s *Store) RootID() int64 {
	return s.rootID
}

// Commit forces all buffered writes to disk.
func (s *Store) Commit() error {
	return s.Do(func(tx *Tx) error {
		return tx.Commit()
	})
}

// Commits returns the number of flushes performed since open.
func (s *Store) Commits() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commits
}

// Close commits pending writes and closes the database. Closing twice is a no-op.
func (s *Store) Close() (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err = s.tx.Commit(); err != nil {
		err = errors.Wrap(err, "final commit failed")
	}
	if cerr := s.db.Close(); cerr != nil && err == nil {
		err = errors.Wrap(cerr, "close database failed")
	}
	log.Debug("store closed")
	return
}

// Commit forces all buffered writes to disk.
func (tx *Tx) Commit() error {
	return tx.s.commitLocked()
}

// Now returns the store clock reading.
func (tx *Tx) Now() time.Time {
	return tx.s.now()
}

// RootID returns the identity of the permanent root session.
func (tx *Tx) RootID() int64 {
	return tx.s.rootID
}

// AddIndices adds the log lookup indices.
func (tx *Tx) AddIndices() (err error) {
	for _, q := range indices {
		if _, err = tx.exec(q); err != nil {
			return errors.Wrap(err, "add index failed")
		}
	}
	return
}

// Savepoint runs fn inside a sqlite savepoint. When fn fails its writes are rolled back and the
// rest of the pending transaction is kept. fn must not commit.
func (tx *Tx) Savepoint(fn func() error) (err error) {
	tx.s.savepoints++
	name := fmt.Sprintf("sp%d", tx.s.savepoints)
	defer func() { tx.s.savepoints-- }()

	if _, err = tx.exec(`SAVEPOINT ` + name); err != nil {
		return errors.Wrap(err, "create savepoint failed")
	}
	if err = fn(); err != nil {
		if _, rerr := tx.exec(`ROLLBACK TO ` + name); rerr != nil {
			log.WithError(rerr).Error("rollback to savepoint failed")
		}
		if _, rerr := tx.exec(`RELEASE ` + name); rerr != nil {
			log.WithError(rerr).Error("release savepoint failed")
		}
		return
	}
	if _, err = tx.exec(`RELEASE ` + name); err != nil {
		err = errors.Wrap(err, "release savepoint failed")
	}
	return
}

func (s *Store) commitLocked() (err error) {
	if err = s.tx.Commit(); err != nil {
		return errors.Wrap(err, "commit failed")
	}
	s.commits++
	s.lastCommit = s.now()
	if s.tx, err = s.db.Begin(); err != nil {
		return errors.Wrap(err, "begin transaction failed")
	}
	log.Debug("<commit>")
	return
}

func (tx *Tx) autocommit() error {
	now := tx.s.now()
	if !tx.s.policy.Due(tx.s.lastCommit, now) {
		return nil
	}
	return tx.s.commitLocked()
}

func (tx *Tx) exec(query string, args ...interface{}) (sql.Result, error) {
	return tx.s.tx.Exec(query, args...)
}

func (tx *Tx) queryRow(query string, args ...interface{}) *sql.Row {
	return tx.s.tx.QueryRow(query, args...)
}

func (tx *Tx) query(query string, args ...interface{}) (*sql.Rows, error) {
	return tx.s.tx.Query(query, args...)
}
