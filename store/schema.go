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

// The layout below is read by the export tools; columns are only ever added.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS meta
		(id INTEGER PRIMARY KEY, mtype TEXT, name TEXT, type TEXT, description TEXT, json TEXT, meta INTEGER)`,

	`CREATE UNIQUE INDEX IF NOT EXISTS meta_name_ix ON meta(mtype, name) WHERE mtype != 'DATASET'`,

	`CREATE TABLE IF NOT EXISTS session
		(id INTEGER PRIMARY KEY, start_time REAL, end_time REAL,
		test_run INT, random_seed INT,
		valid INT, complete INT, description TEXT,
		json TEXT, subcount INT,
		parent INT, path TEXT, name TEXT,
		FOREIGN KEY (parent) REFERENCES session(id))`,

	`CREATE TABLE IF NOT EXISTS log
		(id INTEGER PRIMARY KEY, session INT, valid INT, time REAL, stream INT, tag TEXT, json TEXT, binary INT,
		FOREIGN KEY(stream) REFERENCES meta(id),
		FOREIGN KEY(session) REFERENCES session(id),
		FOREIGN KEY(binary) REFERENCES binary(id))`,

	`CREATE TABLE IF NOT EXISTS binary (id INTEGER PRIMARY KEY, binary BLOB)`,

	`CREATE TABLE IF NOT EXISTS sync_ext
		(id INTEGER PRIMARY KEY,
		fname TEXT,
		description TEXT,
		json TEXT,
		start_time REAL,
		media_start_time REAL,
		duration REAL,
		time_rate REAL)`,

	// clean_exit stays 0 until the run is ended explicitly; ntp_clock_offset is already
	// included in every timestamp of the run.
	`CREATE TABLE IF NOT EXISTS runs
		(id INTEGER PRIMARY KEY,
		uuid TEXT,
		start_time REAL,
		end_time REAL,
		test_run INT,
		clean_exit INT,
		json TEXT,
		uname TEXT,
		ntp_clock_offset REAL)`,

	`CREATE TABLE IF NOT EXISTS run_session
		(id INTEGER PRIMARY KEY, session INT, run INT,
		FOREIGN KEY(session) REFERENCES session(id),
		FOREIGN KEY(run) REFERENCES runs(id))`,

	`CREATE TABLE IF NOT EXISTS debug_logging
		(id INTEGER PRIMARY KEY, time REAL, record TEXT, run INT, level INT,
		FOREIGN KEY(run) REFERENCES runs(id))`,

	// unbound_session holds the session a retired binding used to belong to.
	`CREATE TABLE IF NOT EXISTS meta_session
		(id INTEGER PRIMARY KEY, meta INT, session INT, json TEXT, time REAL, unbound_session INT,
		FOREIGN KEY(meta) REFERENCES meta(id),
		FOREIGN KEY(session) REFERENCES session(id))`,

	`CREATE VIEW IF NOT EXISTS users AS SELECT * FROM meta WHERE mtype='USER'`,
	`CREATE VIEW IF NOT EXISTS session_meta AS SELECT * FROM meta WHERE mtype='SESSION'`,
	`CREATE VIEW IF NOT EXISTS stream AS SELECT * FROM meta WHERE mtype='STREAM'`,
	`CREATE VIEW IF NOT EXISTS path AS SELECT * FROM meta WHERE mtype='PATH'`,
	`CREATE VIEW IF NOT EXISTS equipment AS SELECT * FROM meta WHERE mtype='EQUIPMENT'`,
	`CREATE VIEW IF NOT EXISTS dataset AS SELECT * FROM meta WHERE mtype='DATASET'`,
}

var indices = []string{
	`CREATE INDEX IF NOT EXISTS log_session_ix ON log(session)`,
	`CREATE INDEX IF NOT EXISTS log_tag_ix ON log(tag)`,
	`CREATE INDEX IF NOT EXISTS log_stream_ix ON log(stream)`,
	`CREATE INDEX IF NOT EXISTS log_valid_ix ON log(valid)`,
}
