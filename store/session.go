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

package store

import (
	"database/sql"

	"github.com/pkg/errors"
)

// NewSession describes a session row to be created under Parent.
type NewSession struct {
	Parent      int64
	Name        string
	Path        string
	TestRun     bool
	Description string
	Data        interface{}
}

const sessionColumns = `id, parent, path, name, start_time, end_time, valid, complete, test_run,
	random_seed, subcount, description, json`

func scanSession(row rowScanner) (s *Session, err error) {
	var (
		parent      sql.NullInt64
		path        sql.NullString
		name        sql.NullString
		start       sql.NullFloat64
		end         sql.NullFloat64
		valid       sql.NullInt64
		complete    sql.NullInt64
		testRun     sql.NullInt64
		seed        sql.NullInt64
		subcount    sql.NullInt64
		description sql.NullString
		data        sql.NullString
	)
	s = &Session{}
	if err = row.Scan(&s.ID, &parent, &path, &name, &start, &end, &valid, &complete, &testRun,
		&seed, &subcount, &description, &data); err != nil {
		return nil, err
	}
	s.Parent, s.HasParent = parent.Int64, parent.Valid
	s.Path = path.String
	s.Name = name.String
	s.StartTime, _ = nullEpoch(start)
	s.EndTime, s.Ended = nullEpoch(end)
	s.Valid = valid.Int64 != 0
	s.Complete = complete.Int64 != 0
	s.TestRun = testRun.Int64 != 0
	s.RandomSeed = uint64(seed.Int64)
	s.Subcount = subcount.Int64
	s.Description = description.String
	if s.Data, err = decodeJSON(data); err != nil {
		return nil, err
	}
	return
}

// GetSession returns the session with the given identity.
func (tx *Tx) GetSession(id int64) (s *Session, err error) {
	s, err = scanSession(tx.queryRow(`SELECT `+sessionColumns+` FROM session WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrSessionNotFound, "session %d", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load session failed")
	}
	return
}

// SessionPath returns the materialized path of a session.
func (tx *Tx) SessionPath(id int64) (path string, err error) {
	err = tx.queryRow(`SELECT path FROM session WHERE id=?`, id).Scan(&path)
	if err == sql.ErrNoRows {
		return "", errors.Wrapf(ErrSessionNotFound, "session %d", id)
	}
	if err != nil {
		return "", errors.Wrap(err, "load session path failed")
	}
	return
}

// NextSubcount reads and increments the anonymous child counter of a session.
func (tx *Tx) NextSubcount(id int64) (n int64, err error) {
	var sub sql.NullInt64
	err = tx.queryRow(`SELECT subcount FROM session WHERE id=?`, id).Scan(&sub)
	if err == sql.ErrNoRows {
		return 0, errors.Wrapf(ErrSessionNotFound, "session %d", id)
	}
	if err != nil {
		return 0, errors.Wrap(err, "load subcount failed")
	}
	n = sub.Int64
	if _, err = tx.exec(`UPDATE session SET subcount=? WHERE id=?`, n+1, id); err != nil {
		return 0, errors.Wrap(err, "update subcount failed")
	}
	return
}

// CreateSession inserts a new session row and maps it to the active run.
func (tx *Tx) CreateSession(ns *NewSession) (s *Session, err error) {
	if tx.s.activeRun == 0 {
		return nil, errors.Wrap(ErrNoActiveRun, "cannot start session")
	}

	var (
		now  = tx.s.now()
		seed = randomSeed(toEpoch(now), ns.Parent)
		data string
		res  sql.Result
		id   int64
	)
	if data, err = encodeJSON(ns.Data); err != nil {
		return
	}
	if res, err = tx.exec(
		`INSERT INTO session(name, start_time, test_run, json, description, parent, path, complete, subcount, random_seed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ns.Name, toEpoch(now), boolToInt(ns.TestRun), data, ns.Description, ns.Parent, ns.Path, 0, 0, int64(seed),
	); err != nil {
		return nil, errors.Wrap(err, "insert session failed")
	}
	if id, err = res.LastInsertId(); err != nil {
		return nil, errors.Wrap(err, "fetch session id failed")
	}
	if err = tx.MapRunSession(id); err != nil {
		return
	}

	return tx.GetSession(id)
}

// MapRunSession records that session was created during the active run.
func (tx *Tx) MapRunSession(session int64) (err error) {
	if tx.s.activeRun == 0 {
		return errors.Wrap(ErrNoActiveRun, "cannot map session")
	}
	if _, err = tx.exec(`INSERT INTO run_session(session, run) VALUES (?, ?)`, session, tx.s.activeRun); err != nil {
		err = errors.Wrap(err, "map run session failed")
	}
	return
}

// randomSeed derives a reproducible 64 bit seed from the creation time and the parent identity.
func randomSeed(epoch float64, parent int64) uint64 {
	return uint64(epoch*1000) * uint64(parent)
}

// CloseSession stamps the end time and flags of a session.
func (tx *Tx) CloseSession(id int64, complete, valid bool) (err error) {
	if _, err = tx.exec(
		`UPDATE session SET end_time=?, valid=?, complete=? WHERE id=?`,
		toEpoch(tx.s.now()), boolToInt(valid), boolToInt(complete), id,
	); err != nil {
		err = errors.Wrap(err, "close session failed")
	}
	return
}

// Children returns the sessions whose parent is id, in creation order.
func (tx *Tx) Children(id int64) (sessions []*Session, err error) {
	var rows *sql.Rows
	if rows, err = tx.query(`SELECT `+sessionColumns+` FROM session WHERE parent=? ORDER BY id`, id); err != nil {
		return nil, errors.Wrap(err, "query children failed")
	}
	defer rows.Close()

	for rows.Next() {
		var s *Session
		if s, err = scanSession(rows); err != nil {
			return nil, errors.Wrap(err, "scan session failed")
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// LastSession returns the most recently started incomplete session, or the most recently
// started session of any kind when includeCompleted is set. ok is false if there is none.
func (tx *Tx) LastSession(includeCompleted bool) (id int64, ok bool, err error) {
	q := `SELECT id FROM session WHERE start_time=(SELECT max(start_time) FROM session)`
	if !includeCompleted {
		q = `SELECT id FROM session WHERE start_time=(SELECT max(start_time) FROM session WHERE complete=0)
			AND complete=0`
	}
	err = tx.queryRow(q+` ORDER BY id DESC LIMIT 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, errors.Wrap(err, "query last session failed")
	}
	return id, true, nil
}

// RunSessions returns the identities of the sessions created during a run.
func (tx *Tx) RunSessions(run int64) (ids []int64, err error) {
	var rows *sql.Rows
	if rows, err = tx.query(`SELECT session FROM run_session WHERE run=? ORDER BY id`, run); err != nil {
		return nil, errors.Wrap(err, "query run sessions failed")
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scan run session failed")
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
