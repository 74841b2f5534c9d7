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

// Package log wraps logrus with the caller hook and package level filters used by every
// explog package.
package log

import (
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// Levels, mirrored from logrus so callers need not import it.
const (
	PanicLevel logrus.Level = iota
	FatalLevel
	ErrorLevel
	WarnLevel
	InfoLevel
	DebugLevel
)

const (
	modulePrefix = "github.com/CovenantSQL/explog/"
	maxFrames    = 12
)

// PkgDebugLogFilter drops entries of the named package that are more verbose than its level.
var PkgDebugLogFilter = map[string]logrus.Level{
	"metric":   InfoLevel,
	"eventbus": InfoLevel,
}

// Logger wraps logrus logger type.
type Logger logrus.Logger

// Fields defines the field map to pass to `WithFields`.
type Fields logrus.Fields

// callerHook tags entries with the calling function and applies PkgDebugLogFilter. Error and
// more severe entries also get the stack below the caller.
type callerHook struct{}

func (callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (callerHook) Fire(entry *logrus.Entry) error {
	frames := callerFrames()
	if len(frames) == 0 {
		return nil
	}
	fn := strings.TrimPrefix(frames[0].Function, modulePrefix)
	if level, ok := PkgDebugLogFilter[strings.SplitN(fn, ".", 2)[0]]; ok && entry.Level > level {
		discard := logrus.New()
		discard.Formatter = &NilFormatter{}
		entry.Logger = discard
		return nil
	}
	if entry.Level > ErrorLevel {
		return nil
	}

	entry.Data["caller"] = fmt.Sprintf("%s:%d %s", filepath.Base(frames[0].File), frames[0].Line, fn)
	stack := make([]string, 0, len(frames))
	for i, f := range frames {
		if f.Line > 0 {
			stack = append(stack, fmt.Sprintf("#%d %s@%s:%d", i,
				strings.TrimPrefix(f.Function, modulePrefix), filepath.Base(f.File), f.Line))
		}
	}
	entry.Data["stack"] = stack
	return nil
}

// callerFrames returns the frames starting at the first caller outside logrus and this package.
func callerFrames() (out []runtime.Frame) {
	pcs := make([]uintptr, maxFrames+16)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		f, more := frames.Next()
		if len(out) > 0 || !internalFrame(f) {
			out = append(out, f)
			if len(out) == maxFrames {
				return
			}
		}
		if !more {
			return
		}
	}
}

func internalFrame(f runtime.Frame) bool {
	if strings.Contains(f.Function, "github.com/sirupsen/logrus") {
		return true
	}
	switch filepath.Base(f.File) {
	case "logwrapper.go", "entry.go":
		return strings.HasPrefix(f.Function, modulePrefix+"utils/log.")
	}
	return false
}

func init() {
	AddHook(callerHook{})
}

// StandardLogger returns the standard logger.
func StandardLogger() *Logger {
	return (*Logger)(logrus.StandardLogger())
}

// Printf logs a message at level Info, so the standard logger can feed go-metrics reporters.
func (l *Logger) Printf(format string, args ...interface{}) {
	(*logrus.Logger)(l).Printf(format, args...)
}

// SetOutput sets the standard logger output.
func SetOutput(out io.Writer) {
	logrus.SetOutput(out)
}

// SetFormatter sets the standard logger formatter.
func SetFormatter(formatter logrus.Formatter) {
	logrus.SetFormatter(formatter)
}

// SetLevel sets the standard logger level.
func SetLevel(level logrus.Level) {
	logrus.SetLevel(level)
}

// GetLevel returns the standard logger level.
func GetLevel() logrus.Level {
	return logrus.GetLevel()
}

// ParseLevel parse the level string and returns the logger level.
func ParseLevel(lvl string) (logrus.Level, error) {
	return logrus.ParseLevel(lvl)
}

// SetStringLevel sets the level named by lvl, or defaultLevel when lvl does not parse.
func SetStringLevel(lvl string, defaultLevel logrus.Level) {
	if l, err := ParseLevel(lvl); err != nil {
		SetLevel(defaultLevel)
	} else {
		SetLevel(l)
	}
}

// AddHook adds a hook to the standard logger hooks.
func AddHook(hook logrus.Hook) {
	logrus.AddHook(hook)
}

// RemoveHook drops every registration of hook from the standard logger.
func RemoveHook(hook logrus.Hook) {
	l := logrus.StandardLogger()
	old := l.ReplaceHooks(make(logrus.LevelHooks))
	kept := make(logrus.LevelHooks, len(old))
	for level, hooks := range old {
		for _, h := range hooks {
			if h != hook {
				kept[level] = append(kept[level], h)
			}
		}
	}
	l.ReplaceHooks(kept)
}

// WithError creates an entry from the standard logger and adds an error to it.
func WithError(err error) *Entry {
	return WithField(logrus.ErrorKey, err)
}

// WithField creates an entry from the standard logger and adds a field to it.
func WithField(key string, value interface{}) *Entry {
	return (*Entry)(logrus.WithField(key, value))
}

// WithFields creates an entry from the standard logger and adds multiple fields to it.
func WithFields(fields Fields) *Entry {
	return (*Entry)(logrus.WithFields(logrus.Fields(fields)))
}

func Debug(args ...interface{})   { logrus.Debug(args...) }
func Info(args ...interface{})    { logrus.Info(args...) }
func Warning(args ...interface{}) { logrus.Warning(args...) }
func Error(args ...interface{})   { logrus.Error(args...) }
func Fatal(args ...interface{})   { logrus.Fatal(args...) }

func Debugf(format string, args ...interface{}) { logrus.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { logrus.Infof(format, args...) }
