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

	"github.com/jmoiron/jsonq"
	"github.com/mohae/deepcopy"
	"github.com/pkg/errors"
)

// SetDatasetMeta merges kv on top of the latest dataset snapshot and appends the result as a
// new snapshot. Earlier snapshots are never modified.
func (tx *Tx) SetDatasetMeta(kv map[string]interface{}) (err error) {
	var current map[string]interface{}
	if current, err = tx.GetDatasetMeta(); err != nil {
		return
	}
	for k, v := range kv {
		current[k] = deepcopy.Copy(v)
	}

	var payload string
	if payload, err = encodeJSON(current); err != nil {
		return
	}
	if _, err = tx.exec(
		`INSERT INTO meta(name, json, mtype) VALUES (?, ?, ?)`, "", payload, string(MetaDataset),
	); err != nil {
		err = errors.Wrap(err, "insert dataset snapshot failed")
	}
	return
}

// GetDatasetMeta returns a copy of the latest dataset snapshot, or an empty map.
func (tx *Tx) GetDatasetMeta() (kv map[string]interface{}, err error) {
	var data sql.NullString
	err = tx.queryRow(
		`SELECT json FROM meta WHERE mtype=? ORDER BY id DESC LIMIT 1`, string(MetaDataset),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load dataset snapshot failed")
	}
	return decodeSnapshot(data)
}

// GetDatasetMetaField reads a nested value of the latest dataset snapshot, e.g. ("sensor", "rate").
func (tx *Tx) GetDatasetMetaField(path ...string) (v interface{}, err error) {
	var kv map[string]interface{}
	if kv, err = tx.GetDatasetMeta(); err != nil {
		return
	}
	if v, err = jsonq.NewQuery(kv).Interface(path...); err != nil {
		err = errors.Wrapf(ErrEntryNotFound, "dataset field %v: %v", path, err)
	}
	return
}

// DatasetSnapshots returns the whole snapshot chain, oldest first.
func (tx *Tx) DatasetSnapshots() (snapshots []map[string]interface{}, err error) {
	var rows *sql.Rows
	if rows, err = tx.query(`SELECT json FROM meta WHERE mtype=? ORDER BY id`, string(MetaDataset)); err != nil {
		return nil, errors.Wrap(err, "query dataset snapshots failed")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			data sql.NullString
			kv   map[string]interface{}
		)
		if err = rows.Scan(&data); err != nil {
			return nil, errors.Wrap(err, "scan dataset snapshot failed")
		}
		if kv, err = decodeSnapshot(data); err != nil {
			return
		}
		snapshots = append(snapshots, kv)
	}
	return snapshots, rows.Err()
}

func decodeSnapshot(data sql.NullString) (kv map[string]interface{}, err error) {
	var v interface{}
	if v, err = decodeJSON(data); err != nil {
		return
	}
	if m, ok := v.(map[string]interface{}); ok {
		return m, nil
	}
	return map[string]interface{}{}, nil
}
