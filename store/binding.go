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

	"github.com/CovenantSQL/explog/utils/log"
)

// Bind attaches the catalog entry mtype:name to session with the binding payload data.
// Binding an unknown entry logs a warning and does nothing.
func (tx *Tx) Bind(session int64, mtype MetaType, name string, data interface{}) (err error) {
	if !mtype.Valid() {
		return errors.Wrapf(ErrInvalidMetaType, "bind %q", mtype)
	}
	if !ValidName(name) {
		return errors.Wrapf(ErrInvalidName, "bind %s:%q", mtype, name)
	}

	le := log.WithFields(log.Fields{
		"mtype":   mtype,
		"name":    name,
		"session": session,
	})

	var (
		id    int64
		found bool
	)
	if id, found, err = tx.findCatalogID(mtype, name); err != nil {
		return
	}
	if !found {
		le.Warning("tried to bind non-existent catalog entry")
		return nil
	}

	var payload string
	if payload, err = encodeJSON(data); err != nil {
		return
	}
	if _, err = tx.exec(
		`INSERT INTO meta_session(meta, session, time, json) VALUES (?, ?, ?, ?)`,
		id, session, toEpoch(tx.s.now()), payload,
	); err != nil {
		return errors.Wrap(err, "insert binding failed")
	}
	le.Debug("bound catalog entry")
	return
}

// Unbind retires the bindings of mtype:name on session. Bindings inherited by descendants are
// left untouched.
func (tx *Tx) Unbind(session int64, mtype MetaType, name string) (err error) {
	if !mtype.Valid() {
		return errors.Wrapf(ErrInvalidMetaType, "unbind %q", mtype)
	}
	if !ValidName(name) {
		return errors.Wrapf(ErrInvalidName, "unbind %s:%q", mtype, name)
	}

	le := log.WithFields(log.Fields{
		"mtype":   mtype,
		"name":    name,
		"session": session,
	})

	var (
		id    int64
		found bool
	)
	if id, found, err = tx.findCatalogID(mtype, name); err != nil {
		return
	}
	if !found {
		le.Warning("tried to unbind non-existent catalog entry")
		return nil
	}

	var (
		res sql.Result
		n   int64
	)
	if res, err = tx.exec(
		`UPDATE meta_session SET unbound_session=session, session=NULL WHERE meta=? AND session=?`,
		id, session,
	); err != nil {
		return errors.Wrap(err, "retire binding failed")
	}
	if n, err = res.RowsAffected(); err != nil {
		return errors.Wrap(err, "retire binding failed")
	}
	if n == 0 {
		le.Warning("catalog entry is not bound to session")
		return nil
	}
	le.WithField("retired", n).Debug("unbound catalog entry")
	return
}

// Bindings returns the active bindings of session in binding order.
func (tx *Tx) Bindings(session int64) (bindings []*Binding, err error) {
	var rows *sql.Rows
	if rows, err = tx.query(
		`SELECT meta.mtype, meta.name, meta.type, meta.description, meta.json, meta_session.json, meta_session.time
		FROM meta JOIN meta_session ON meta_session.meta=meta.id
		WHERE meta_session.session=? ORDER BY meta_session.id`,
		session,
	); err != nil {
		return nil, errors.Wrap(err, "query bindings failed")
	}
	defer rows.Close()

	for rows.Next() {
		var (
			b                                 = &Binding{}
			mtype, name, subtype, description sql.NullString
			data, bindingData                 sql.NullString
			t                                 sql.NullFloat64
		)
		if err = rows.Scan(&mtype, &name, &subtype, &description, &data, &bindingData, &t); err != nil {
			return nil, errors.Wrap(err, "scan binding failed")
		}
		b.MType = MetaType(mtype.String)
		b.Name = name.String
		b.Type = subtype.String
		b.Description = description.String
		b.Time, _ = nullEpoch(t)
		if b.Data, err = decodeJSON(data); err != nil {
			return nil, err
		}
		if b.BindingData, err = decodeJSON(bindingData); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// CopyBindings copies the active bindings of from onto to, stamped with the current time.
// Later changes to either side do not propagate.
func (tx *Tx) CopyBindings(from, to int64) (n int64, err error) {
	var res sql.Result
	if res, err = tx.exec(
		`INSERT INTO meta_session(meta, json, session, time)
		SELECT meta, json, ?, ? FROM meta_session WHERE session=? ORDER BY id`,
		to, toEpoch(tx.s.now()), from,
	); err != nil {
		return 0, errors.Wrap(err, "copy bindings failed")
	}
	if n, err = res.RowsAffected(); err != nil {
		err = errors.Wrap(err, "copy bindings failed")
	}
	return
}
