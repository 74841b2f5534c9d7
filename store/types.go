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
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
)

// MetaType is the catalog entry type tag (the mtype column).
type MetaType string

const (
	// MetaStream entries are the valid log channel identifiers.
	MetaStream MetaType = "STREAM"
	// MetaUser entries describe participants, usually named by a pseudonym.
	MetaUser MetaType = "USER"
	// MetaSession entries are session prototypes bound at enter time.
	MetaSession MetaType = "SESSION"
	// MetaEquipment entries describe the recording equipment.
	MetaEquipment MetaType = "EQUIPMENT"
	// MetaDataset entries form the append-only whole-dataset metadata chain.
	MetaDataset MetaType = "DATASET"
	// MetaPath entries record every session path ever entered.
	MetaPath MetaType = "PATH"
)

// AutoStreamType is the subtype given to streams created on first use.
const AutoStreamType = "AUTO"

// RootName is the name of the permanent root session.
const RootName = "[ROOT]"

// Valid reports whether t is one of the known catalog types.
func (t MetaType) Valid() bool {
	switch t {
	case MetaStream, MetaUser, MetaSession, MetaEquipment, MetaDataset, MetaPath:
		return true
	}
	return false
}

func (t MetaType) String() string {
	return string(t)
}

// Meta is a catalog entry.
type Meta struct {
	ID          int64
	MType       MetaType
	Name        string
	Type        string
	Description string
	Data        interface{}
}

// Binding is a catalog entry bound to a session, with the binding's own payload.
type Binding struct {
	MType       MetaType
	Name        string
	Type        string
	Description string
	Data        interface{}
	BindingData interface{}
	Time        time.Time
}

// Run is one lifetime of the writer process.
type Run struct {
	ID          int64
	UUID        string
	StartTime   time.Time
	EndTime     time.Time
	Ended       bool
	TestRun     bool
	CleanExit   bool
	Uname       interface{}
	ClockOffset time.Duration
	Config      interface{}
}

// Session is a node of the session tree.
type Session struct {
	ID          int64
	Parent      int64
	HasParent   bool
	Path        string
	Name        string
	StartTime   time.Time
	EndTime     time.Time
	Ended       bool
	Valid       bool
	Complete    bool
	TestRun     bool
	RandomSeed  uint64
	Subcount    int64
	Description string
	Data        interface{}
}

// IsRoot reports whether the session is the permanent root.
func (s *Session) IsRoot() bool {
	return !s.HasParent
}

// LogRecord is a single immutable log fact.
type LogRecord struct {
	ID       int64
	Session  int64
	Stream   int64
	Tag      string
	Time     time.Time
	Valid    bool
	Data     interface{}
	Binary   []byte
	BinaryID int64
}

// SyncAnchor aligns an externally recorded media file against the log timeline.
type SyncAnchor struct {
	ID          int64
	File        string
	StartTime   time.Time
	Duration    float64
	HasDuration bool
	MediaStart  float64
	TimeRate    float64
	Description string
	Data        interface{}
}

// toEpoch converts t to fractional seconds since the unix epoch, the on-disk time format.
func toEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func fromEpoch(f float64) time.Time {
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

func nullEpoch(f sql.NullFloat64) (t time.Time, ok bool) {
	if !f.Valid {
		return
	}
	return fromEpoch(f.Float64), true
}

func encodeJSON(v interface{}) (s string, err error) {
	var b []byte
	if b, err = json.Marshal(v); err != nil {
		err = errors.Wrap(err, "encode json payload failed")
		return
	}
	return string(b), nil
}

func decodeJSON(s sql.NullString) (v interface{}, err error) {
	if !s.Valid || s.String == "" {
		return
	}
	if err = json.Unmarshal([]byte(s.String), &v); err != nil {
		err = errors.Wrap(err, "decode json payload failed")
	}
	return
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
