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
	"strings"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/explog/utils/log"
)

// RegisterCatalogEntry creates the catalog entry mtype:name. An existing entry is overwritten in
// place when forceUpdate is set and rejected with ErrDuplicateEntry otherwise.
func (tx *Tx) RegisterCatalogEntry(mtype MetaType, name, subtype, description string,
	data interface{}, forceUpdate bool) (id int64, err error) {
	if !mtype.Valid() || mtype == MetaDataset {
		return 0, errors.Wrapf(ErrInvalidMetaType, "register %q", mtype)
	}
	if !ValidName(name) {
		return 0, errors.Wrapf(ErrInvalidName, "register %s:%q", mtype, name)
	}

	var payload string
	if payload, err = encodeJSON(data); err != nil {
		return
	}

	var found bool
	if id, found, err = tx.findCatalogID(mtype, name); err != nil {
		return
	}

	le := log.WithFields(log.Fields{
		"mtype": mtype,
		"name":  name,
	})
	if !found {
		var res sql.Result
		if res, err = tx.exec(
			`INSERT INTO meta(name, type, description, json, mtype) VALUES (?, ?, ?, ?, ?)`,
			name, subtype, description, payload, string(mtype),
		); err != nil {
			return 0, errors.Wrap(err, "insert catalog entry failed")
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, errors.Wrap(err, "fetch catalog entry id failed")
		}
		le.WithField("id", id).Debug("registered catalog entry")
	} else {
		if !forceUpdate {
			return 0, errors.Wrapf(ErrDuplicateEntry, "%s:%s", mtype, name)
		}
		le.Warning("catalog entry exists, force updating")
		if _, err = tx.exec(
			`UPDATE meta SET type=?, description=?, json=? WHERE id=?`,
			subtype, description, payload, id,
		); err != nil {
			return 0, errors.Wrap(err, "update catalog entry failed")
		}
	}

	if mtype == MetaStream {
		if _, err = tx.exec(fmt.Sprintf(
			`CREATE VIEW IF NOT EXISTS %s AS SELECT * FROM log WHERE stream=%d`, StreamView(name), id,
		)); err != nil {
			return 0, errors.Wrap(err, "create stream view failed")
		}
		tx.s.streams.Add(name, id)
	}
	return
}

// StreamView returns the quoted name of the per-stream log view.
func StreamView(name string) string {
	return `"stream_` + strings.Replace(name, `"`, `""`, -1) + `"`
}

func (tx *Tx) findCatalogID(mtype MetaType, name string) (id int64, found bool, err error) {
	err = tx.queryRow(`SELECT id FROM meta WHERE mtype=? AND name=?`, string(mtype), name).Scan(&id)
	switch err {
	case nil:
		return id, true, nil
	case sql.ErrNoRows:
		return 0, false, nil
	}
	return 0, false, errors.Wrap(err, "query catalog failed")
}

const metaColumns = `id, mtype, name, type, description, json`

func scanMeta(row rowScanner) (m *Meta, err error) {
	var (
		mtype, name, subtype, description sql.NullString
		data                              sql.NullString
	)
	m = &Meta{}
	if err = row.Scan(&m.ID, &mtype, &name, &subtype, &description, &data); err != nil {
		return nil, err
	}
	m.MType = MetaType(mtype.String)
	m.Name = name.String
	m.Type = subtype.String
	m.Description = description.String
	if m.Data, err = decodeJSON(data); err != nil {
		return nil, err
	}
	return
}

// FindCatalogEntry returns the catalog entry mtype:name.
func (tx *Tx) FindCatalogEntry(mtype MetaType, name string) (m *Meta, err error) {
	if !mtype.Valid() {
		return nil, errors.Wrapf(ErrInvalidMetaType, "find %q", mtype)
	}
	m, err = scanMeta(tx.queryRow(
		`SELECT `+metaColumns+` FROM meta WHERE mtype=? AND name=? ORDER BY id DESC LIMIT 1`,
		string(mtype), name,
	))
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(ErrEntryNotFound, "%s:%s", mtype, name)
	}
	if err != nil {
		return nil, errors.Wrap(err, "load catalog entry failed")
	}
	return
}

// ListCatalogEntries returns every entry of mtype in registration order.
func (tx *Tx) ListCatalogEntries(mtype MetaType) (entries []*Meta, err error) {
	if !mtype.Valid() {
		return nil, errors.Wrapf(ErrInvalidMetaType, "list %q", mtype)
	}
	var rows *sql.Rows
	if rows, err = tx.query(`SELECT `+metaColumns+` FROM meta WHERE mtype=? ORDER BY id`, string(mtype)); err != nil {
		return nil, errors.Wrap(err, "query catalog failed")
	}
	defer rows.Close()

	for rows.Next() {
		var m *Meta
		if m, err = scanMeta(rows); err != nil {
			return nil, errors.Wrap(err, "scan catalog entry failed")
		}
		entries = append(entries, m)
	}
	return entries, rows.Err()
}

// ResolveStreamID maps a stream name to its catalog identity. Unknown streams are registered
// with the AUTO subtype when autoCreate is set; created reports whether that happened.
func (tx *Tx) ResolveStreamID(name string, autoCreate bool) (id int64, created bool, err error) {
	if v, ok := tx.s.streams.Get(name); ok {
		return v.(int64), false, nil
	}

	var found bool
	if id, found, err = tx.findCatalogID(MetaStream, name); err != nil {
		return
	}
	if found {
		tx.s.streams.Add(name, id)
		return id, false, nil
	}
	if !autoCreate {
		return 0, false, errors.Wrapf(ErrEntryNotFound, "stream %q", name)
	}

	log.WithField("stream", name).Warning("no stream registered, creating a new blank entry")
	if id, err = tx.RegisterCatalogEntry(MetaStream, name, AutoStreamType, "", nil, false); err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// EnsurePath records path as a PATH catalog entry unless it is already known.
func (tx *Tx) EnsurePath(path string) (err error) {
	var found bool
	if _, found, err = tx.findCatalogID(MetaPath, path); err != nil || found {
		return
	}
	if _, err = tx.exec(`INSERT INTO meta(name, mtype) VALUES (?, ?)`, path, string(MetaPath)); err != nil {
		err = errors.Wrap(err, "insert path failed")
	}
	return
}
