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
	uuid "github.com/satori/go.uuid"

	"github.com/CovenantSQL/explog/utils/log"
)

// ActiveRun returns the active run identity, or 0 if no run is active.
func (tx *Tx) ActiveRun() int64 {
	return tx.s.activeRun
}

// StartRun inserts a new run row, makes it the active run and commits.
func (tx *Tx) StartRun(r *Run) (id int64, err error) {
	if tx.s.activeRun != 0 {
		return 0, errors.Wrapf(ErrRunActive, "run %d", tx.s.activeRun)
	}
	if r.UUID == "" {
		var u uuid.UUID
		if u, err = uuid.NewV4(); err != nil {
			return 0, errors.Wrap(err, "generate run uuid failed")
		}
		r.UUID = u.String()
	}
	if r.StartTime.IsZero() {
		r.StartTime = tx.s.now()
	}

	var unameJSON, configJSON string
	if unameJSON, err = encodeJSON(r.Uname); err != nil {
		return
	}
	if configJSON, err = encodeJSON(r.Config); err != nil {
		return
	}

	var res sql.Result
	if res, err = tx.exec(
		`INSERT INTO runs(uuid, start_time, clean_exit, ntp_clock_offset, uname, json, test_run)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.UUID, toEpoch(r.StartTime), 0, r.ClockOffset.Seconds(), unameJSON, configJSON, boolToInt(r.TestRun),
	); err != nil {
		return 0, errors.Wrap(err, "insert run failed")
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, errors.Wrap(err, "fetch run id failed")
	}
	r.ID = id
	tx.s.activeRun = id

	log.WithFields(log.Fields{
		"run":  id,
		"uuid": r.UUID,
	}).Debug("run started")
	err = tx.Commit()
	return
}

// EndRun stamps the end time and the clean exit flag on the active run.
func (tx *Tx) EndRun() (err error) {
	if tx.s.activeRun == 0 {
		return ErrNoActiveRun
	}
	if _, err = tx.exec(
		`UPDATE runs SET end_time=?, clean_exit=? WHERE id=?`,
		toEpoch(tx.s.now()), 1, tx.s.activeRun,
	); err != nil {
		return errors.Wrap(err, "update run failed")
	}
	log.WithField("run", tx.s.activeRun).Debug("marking end of run")
	tx.s.activeRun = 0
	return
}

const runColumns = `id, uuid, start_time, end_time, test_run, clean_exit, json, uname, ntp_clock_offset`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (r *Run, err error) {
	var (
		uuidStr   sql.NullString
		start     sql.NullFloat64
		end       sql.NullFloat64
		testRun   sql.NullInt64
		cleanExit sql.NullInt64
		config    sql.NullString
		uname     sql.NullString
		offset    sql.NullFloat64
	)
	r = &Run{}
	if err = row.Scan(&r.ID, &uuidStr, &start, &end, &testRun, &cleanExit, &config, &uname, &offset); err != nil {
		return nil, err
	}
	r.UUID = uuidStr.String
	r.StartTime, _ = nullEpoch(start)
	r.EndTime, r.Ended = nullEpoch(end)
	r.TestRun = testRun.Int64 != 0
	r.CleanExit = cleanExit.Int64 != 0
	r.ClockOffset = secondsToDuration(offset.Float64)
	if r.Config, err = decodeJSON(config); err != nil {
		return nil, err
	}
	if r.Uname, err = decodeJSON(uname); err != nil {
		return nil, err
	}
	return
}

// GetRun returns the run with the given identity.
func (tx *Tx) GetRun(id int64) (r *Run, err error) {
	r, err = scanRun(tx.queryRow(`SELECT `+runColumns+` FROM runs WHERE id=?`, id))
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("run %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load run failed")
	}
	return
}

// DirtyRuns returns every run other than the active one that never recorded an end time.
func (tx *Tx) DirtyRuns() (runs []*Run, err error) {
	var rows *sql.Rows
	if rows, err = tx.query(
		`SELECT `+runColumns+` FROM runs WHERE end_time IS NULL AND id != ? ORDER BY id`,
		tx.s.activeRun,
	); err != nil {
		return nil, errors.Wrap(err, "query dirty runs failed")
	}
	defer rows.Close()

	for rows.Next() {
		var r *Run
		if r, err = scanRun(rows); err != nil {
			return nil, errors.Wrap(err, "scan run failed")
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// InsertDebugLog mirrors a diagnostic record into the debug_logging table.
func (tx *Tx) InsertDebugLog(record string, level int) (err error) {
	if _, err = tx.exec(
		`INSERT INTO debug_logging(time, record, run, level) VALUES (?, ?, ?, ?)`,
		toEpoch(tx.s.now()), record, tx.s.activeRun, level,
	); err != nil {
		err = errors.Wrap(err, "insert debug record failed")
	}
	return
}

// DebugLogCount returns the number of mirrored diagnostic records of a run.
func (tx *Tx) DebugLogCount(run int64) (n int, err error) {
	if err = tx.queryRow(`SELECT count(*) FROM debug_logging WHERE run=?`, run).Scan(&n); err != nil {
		err = errors.Wrap(err, "count debug records failed")
	}
	return
}
