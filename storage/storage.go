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

// Package storage opens the sqlite files backing an experiment log.
//
// Although a sql.DB should be safe for concurrent use, the sqlite driver only guarantees
// the safety of concurrent readers. The store package therefore funnels every statement through
// a single connection guarded by its own lock; Open reflects that by capping the pool at one
// connection.
package storage

import (
	"database/sql"
	"os"
	"path/filepath"

	sqlite3 "github.com/CovenantSQL/go-sqlite3-encrypt"
	"github.com/pkg/errors"

	"github.com/CovenantSQL/explog/utils"
	"github.com/CovenantSQL/explog/utils/log"
)

const driverName = "sqlite3-explog"

// Pragmas applied to every new connection: a large page cache and no fsync on each write,
// durability is driven by explicit commits instead.
var connectPragmas = []string{
	"PRAGMA cache_size=2000000",
	"PRAGMA synchronous=OFF",
	"PRAGMA foreign_keys=OFF",
}

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(c *sqlite3.SQLiteConn) (err error) {
			for _, p := range connectPragmas {
				if _, err = c.Exec(p, nil); err != nil {
					return
				}
			}
			return
		},
	})
}

// Open opens the sqlite database described by dsn, creating the file if needed.
func Open(dsn string) (db *sql.DB, err error) {
	var d *DSN
	if d, err = NewDSN(dsn); err != nil {
		err = errors.Wrap(err, "parse dsn failed")
		return
	}
	if d.GetFileName() == "" {
		err = errors.New("empty database file name")
		return
	}
	if !d.IsMemory() {
		if dir := filepath.Dir(d.GetFileName()); !utils.Exist(dir) {
			if err = os.MkdirAll(dir, 0755); err != nil {
				err = errors.Wrapf(err, "create database dir %s failed", dir)
				return
			}
		}
	}
	if _, ok := d.GetParam("_busy_timeout"); !ok {
		d.AddParam("_busy_timeout", "5000")
	}

	if db, err = sql.Open(driverName, d.Format()); err != nil {
		err = errors.Wrapf(err, "open sqlite %s failed", d.GetFileName())
		return
	}
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		_ = db.Close()
		db = nil
		err = errors.Wrapf(err, "ping sqlite %s failed", d.GetFileName())
		return
	}

	log.WithField("dsn", d.Format()).Debug("sqlite opened")
	return
}
