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
	"fmt"

	"github.com/pkg/errors"
)

// AppendLog writes rec into the log, storing its binary attachment first. The store autocommit
// policy is evaluated after the write.
func (tx *Tx) AppendLog(rec *LogRecord) (id int64, err error) {
	if tx.s.activeRun == 0 {
		return 0, errors.Wrap(ErrNoActiveRun, "cannot log data")
	}
	if rec.Time.IsZero() {
		rec.Time = tx.s.now()
	}

	var payload string
	if payload, err = encodeJSON(rec.Data); err != nil {
		return
	}

	var (
		res      sql.Result
		binaryID sql.NullInt64
	)
	if rec.Binary != nil {
		if res, err = tx.exec(`INSERT INTO binary(binary) VALUES (?)`, rec.Binary); err != nil {
			return 0, errors.Wrap(err, "insert binary failed")
		}
		if binaryID.Int64, err = res.LastInsertId(); err != nil {
			return 0, errors.Wrap(err, "fetch binary id failed")
		}
		binaryID.Valid = true
		rec.BinaryID = binaryID.Int64
	}

	if res, err = tx.exec(
		`INSERT INTO log(session, valid, time, stream, tag, json, binary) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Session, boolToInt(rec.Valid), toEpoch(rec.Time), rec.Stream, rec.Tag, payload, binaryID,
	); err != nil {
		return 0, errors.Wrap(err, "insert log record failed")
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, errors.Wrap(err, "fetch log record id failed")
	}
	rec.ID = id

	err = tx.autocommit()
	return
}

const logColumns = `log.id, log.session, log.stream, log.tag, log.time, log.valid, log.json, log.binary, binary.binary`

func scanLogRecord(row rowScanner) (r *LogRecord, err error) {
	var (
		tag      sql.NullString
		t        sql.NullFloat64
		valid    sql.NullInt64
		data     sql.NullString
		binaryID sql.NullInt64
		blob     []byte
	)
	r = &LogRecord{}
	if err = row.Scan(&r.ID, &r.Session, &r.Stream, &tag, &t, &valid, &data, &binaryID, &blob); err != nil {
		return nil, err
	}
	r.Tag = tag.String
	r.Time, _ = nullEpoch(t)
	r.Valid = valid.Int64 != 0
	r.BinaryID = binaryID.Int64
	r.Binary = blob
	if r.Data, err = decodeJSON(data); err != nil {
		return nil, err
	}
	return
}

// GetLogRecord returns a log record with its binary attachment.
func (tx *Tx) GetLogRecord(id int64) (r *LogRecord, err error) {
	r, err = scanLogRecord(tx.queryRow(
		`SELECT `+logColumns+` FROM log LEFT JOIN binary ON binary.id=log.binary WHERE log.id=?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, errors.Errorf("log record %d not found", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load log record failed")
	}
	return
}

// LogRecords returns the records written in session in write order.
func (tx *Tx) LogRecords(session int64) (records []*LogRecord, err error) {
	var rows *sql.Rows
	if rows, err = tx.query(
		`SELECT `+logColumns+` FROM log LEFT JOIN binary ON binary.id=log.binary WHERE log.session=? ORDER BY log.id`,
		session,
	); err != nil {
		return nil, errors.Wrap(err, "query log records failed")
	}
	defer rows.Close()

	for rows.Next() {
		var r *LogRecord
		if r, err = scanLogRecord(rows); err != nil {
			return nil, errors.Wrap(err, "scan log record failed")
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// StreamRecordCount returns the number of records visible through the stream's view.
func (tx *Tx) StreamRecordCount(name string) (n int64, err error) {
	if err = tx.queryRow(fmt.Sprintf(`SELECT count(*) FROM %s`, StreamView(name))).Scan(&n); err != nil {
		err = errors.Wrapf(err, "count stream %q failed", name)
	}
	return
}
