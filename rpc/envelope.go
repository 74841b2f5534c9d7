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

package rpc

import (
	"math"
	"time"

	"github.com/pkg/errors"

	"github.com/CovenantSQL/explog/utils"
)

// ServiceName is the net/rpc service the server registers.
const ServiceName = "ExpLog"

// Call is a request envelope: an operation name with positional and keyword arguments.
type Call struct {
	Method string
	Args   []interface{}
	Kwargs map[string]interface{}
}

// Reply is a response envelope. Result holds the msgpack encoding of the return value.
type Reply struct {
	Success bool
	Result  []byte
	Error   *RemoteError
}

// Decode decodes the result into out.
func (r *Reply) Decode(out interface{}) error {
	if len(r.Result) == 0 {
		return nil
	}
	return errors.Wrap(utils.DecodeMsgPack(r.Result, out), "decode result failed")
}

// keywordAliases lists older keyword spellings still accepted for an argument.
var keywordAliases = map[string][]string{
	"time":        {"t"},
	"blob":        {"binary"},
	"type":        {"stype"},
	"prototype":   {"session"},
	"file":        {"fname"},
	"media_start": {"media_start_time"},
	"config":      {"run_config"},
}

// args extracts call arguments, positional first, then by keyword.
type args struct {
	call *Call
}

func (a args) get(pos int, name string) (v interface{}, ok bool) {
	if pos >= 0 && pos < len(a.call.Args) {
		return a.call.Args[pos], true
	}
	if v, ok = a.call.Kwargs[name]; ok {
		return
	}
	for _, alias := range keywordAliases[name] {
		if v, ok = a.call.Kwargs[alias]; ok {
			return
		}
	}
	return
}

func badArgument(name string, v interface{}) error {
	return errors.Wrapf(ErrBadArgument, "argument %s: unexpected %T", name, v)
}

func (a args) String(pos int, name, def string) (string, error) {
	v, ok := a.get(pos, name)
	if !ok || v == nil {
		return def, nil
	}
	switch s := v.(type) {
	case string:
		return s, nil
	case []byte:
		return string(s), nil
	}
	return "", badArgument(name, v)
}

func (a args) RequiredString(pos int, name string) (string, error) {
	if _, ok := a.get(pos, name); !ok {
		return "", errors.Wrapf(ErrBadArgument, "missing argument %s", name)
	}
	return a.String(pos, name, "")
}

func (a args) Bool(pos int, name string, def bool) (bool, error) {
	v, ok := a.get(pos, name)
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case int64:
		return b != 0, nil
	case uint64:
		return b != 0, nil
	}
	return false, badArgument(name, v)
}

func (a args) Int64(pos int, name string, def int64) (int64, error) {
	v, ok := a.get(pos, name)
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int64:
		return n, nil
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n), nil
		}
	case int:
		return int64(n), nil
	case float64:
		if n == math.Trunc(n) {
			return int64(n), nil
		}
	}
	return 0, badArgument(name, v)
}

func (a args) Float64(pos int, name string) (f float64, ok bool, err error) {
	v, present := a.get(pos, name)
	if !present || v == nil {
		return 0, false, nil
	}
	switch n := v.(type) {
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case uint64:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	}
	return 0, false, badArgument(name, v)
}

// Time accepts epoch seconds or a time value; ok is false when the argument is absent.
func (a args) Time(pos int, name string) (t time.Time, ok bool, err error) {
	if v, present := a.get(pos, name); present {
		if tv, isTime := v.(time.Time); isTime {
			return tv, true, nil
		}
	}
	var f float64
	if f, ok, err = a.Float64(pos, name); err != nil || !ok {
		return
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))), true, nil
}

func (a args) Bytes(pos int, name string) ([]byte, error) {
	v, ok := a.get(pos, name)
	if !ok || v == nil {
		return nil, nil
	}
	switch b := v.(type) {
	case []byte:
		return b, nil
	case string:
		return []byte(b), nil
	}
	return nil, badArgument(name, v)
}

func (a args) Map(pos int, name string) (map[string]interface{}, error) {
	v, ok := a.get(pos, name)
	if !ok || v == nil {
		return nil, nil
	}
	switch m := v.(type) {
	case map[string]interface{}:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			ks, isString := k.(string)
			if !isString {
				return nil, badArgument(name, k)
			}
			out[ks] = val
		}
		return out, nil
	}
	return nil, badArgument(name, v)
}

func (a args) Strings(pos int, name string) ([]string, error) {
	v, ok := a.get(pos, name)
	if !ok || v == nil {
		return nil, nil
	}
	switch l := v.(type) {
	case []string:
		return l, nil
	case []interface{}:
		out := make([]string, 0, len(l))
		for _, e := range l {
			s, isString := e.(string)
			if !isString {
				return nil, badArgument(name, e)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, badArgument(name, v)
}

// Value returns the raw argument, nil when absent.
func (a args) Value(pos int, name string) interface{} {
	v, _ := a.get(pos, name)
	return v
}

// extraKwargs returns the keyword arguments not named in known.
func (a args) extraKwargs(known ...string) map[string]interface{} {
	out := make(map[string]interface{})
	for k, v := range a.call.Kwargs {
		skip := false
		for _, n := range known {
			if k == n {
				skip = true
				break
			}
		}
		if !skip {
			out[k] = v
		}
	}
	return out
}
