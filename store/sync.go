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

// AddSyncAnchor records the alignment of an external media file. A zero StartTime is stamped
// with the store clock and a zero TimeRate defaults to 1.
func (tx *Tx) AddSyncAnchor(a *SyncAnchor) (id int64, err error) {
	if a.StartTime.IsZero() {
		a.StartTime = tx.s.now()
	}
	if a.TimeRate == 0 {
		a.TimeRate = 1
	}

	var payload string
	if payload, err = encodeJSON(a.Data); err != nil {
		return
	}

	duration := sql.NullFloat64{Float64: a.Duration, Valid: a.HasDuration}
	var res sql.Result
	if res, err = tx.exec(
		`INSERT INTO sync_ext(fname, start_time, duration, media_start_time, time_rate, description, json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.File, toEpoch(a.StartTime), duration, a.MediaStart, a.TimeRate, a.Description, payload,
	); err != nil {
		return 0, errors.Wrap(err, "insert sync anchor failed")
	}
	if id, err = res.LastInsertId(); err != nil {
		return 0, errors.Wrap(err, "fetch sync anchor id failed")
	}
	a.ID = id
	return
}

// SyncAnchors returns every recorded anchor in insertion order.
func (tx *Tx) SyncAnchors() (anchors []*SyncAnchor, err error) {
	var rows *sql.Rows
	if rows, err = tx.query(
		`SELECT id, fname, start_time, duration, media_start_time, time_rate, description, json
		FROM sync_ext ORDER BY id`,
	); err != nil {
		return nil, errors.Wrap(err, "query sync anchors failed")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			a                 = &SyncAnchor{}
			file, description sql.NullString
			start, duration   sql.NullFloat64
			mediaStart, rate  sql.NullFloat64
			data              sql.NullString
		)
		if err = rows.Scan(&a.ID, &file, &start, &duration, &mediaStart, &rate, &description, &data); err != nil {
			return nil, errors.Wrap(err, "scan sync anchor failed")
		}
		a.File = file.String
		a.StartTime, _ = nullEpoch(start)
		a.Duration, a.HasDuration = duration.Float64, duration.Valid
		a.MediaStart = mediaStart.Float64
		a.TimeRate = rate.Float64
		a.Description = description.String
		if a.Data, err = decodeJSON(data); err != nil {
			return nil, err
		}
		anchors = append(anchors, a)
	}
	return anchors, rows.Err()
}
