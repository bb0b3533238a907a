// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"io"
	"log"
	"os"
	"sync"
)

// LogLevel is the verbosity of the logging
type LogLevel int

const (
	// ErrLevel=1 - the minimum level of logging.
	ErrLevel LogLevel = iota + 1

	// WarnLevel=2 - warnings about classes or members that could not be resolved, and errors
	WarnLevel

	// InfoLevel=3 - entry points, progress of the analysis and results
	InfoLevel

	// DebugLevel=4 - scheduler decisions and graph statistics. Usable on a full class path.
	DebugLevel

	// TraceLevel=5 - per-block and per-instruction interpreter state. Only usable on small inputs.
	TraceLevel
)

var levelPrefixes = [...]string{
	ErrLevel:   "[ERROR] ",
	WarnLevel:  "[WARN] ",
	InfoLevel:  "[INFO] ",
	DebugLevel: "[DEBUG] ",
	TraceLevel: "[TRACE] ",
}

// LogGroup is a group of loggers, one per level, gated by the level of the group
type LogGroup struct {
	level       LogLevel
	silenceWarn bool
	loggers     [TraceLevel + 1]*log.Logger
}

// NewLogGroup returns a log group that is configured to the logging settings stored inside the config.
// Each level has its own logger writing to standard error.
func NewLogGroup(config *Config) *LogGroup {
	l := &LogGroup{level: LogLevel(config.LogLevel), silenceWarn: config.SilenceWarn}
	for lvl := ErrLevel; lvl <= TraceLevel; lvl++ {
		l.loggers[lvl] = log.New(os.Stderr, levelPrefixes[lvl], log.LstdFlags)
	}
	return l
}

// Level returns the log level of the group
func (l *LogGroup) Level() LogLevel {
	return l.level
}

// SetAllOutput sets all the output writers to the writer provided
func (l *LogGroup) SetAllOutput(w io.Writer) {
	for lvl := ErrLevel; lvl <= TraceLevel; lvl++ {
		l.loggers[lvl].SetOutput(w)
	}
}

// SetAllFlags sets the flag of all loggers in the log group to the argument provided
func (l *LogGroup) SetAllFlags(x int) {
	for lvl := ErrLevel; lvl <= TraceLevel; lvl++ {
		l.loggers[lvl].SetFlags(x)
	}
}

func (l *LogGroup) logf(lvl LogLevel, format string, v ...any) {
	if l.level < lvl || (lvl == WarnLevel && l.silenceWarn) {
		return
	}
	l.loggers[lvl].Printf(format, v...)
}

// Tracef prints to the trace logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Tracef(format string, v ...any) { l.logf(TraceLevel, format, v...) }

// Debugf prints to the debug logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Debugf(format string, v ...any) { l.logf(DebugLevel, format, v...) }

// Infof prints to the info logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Infof(format string, v ...any) { l.logf(InfoLevel, format, v...) }

// Warnf prints to the warning logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Warnf(format string, v ...any) { l.logf(WarnLevel, format, v...) }

// Errorf prints to the error logger. Arguments are handled in the manner of Printf
func (l *LogGroup) Errorf(format string, v ...any) { l.logf(ErrLevel, format, v...) }

// LogsDebug returns true when the debug messages are printed
func (l *LogGroup) LogsDebug() bool {
	return l.level >= DebugLevel
}

// LogsTrace returns true when the trace messages are printed
func (l *LogGroup) LogsTrace() bool {
	return l.level >= TraceLevel
}

// WarnOnce returns a function that prints a warning the first time it is called with a given key, and ignores
// the later calls with the same key. The returned function is safe for concurrent use.
func (l *LogGroup) WarnOnce() func(key string, format string, v ...any) {
	var mu sync.Mutex
	seen := map[string]bool{}
	return func(key string, format string, v ...any) {
		mu.Lock()
		done := seen[key]
		seen[key] = true
		mu.Unlock()
		if !done {
			l.Warnf(format, v...)
		}
	}
}
