// Copyright 2024 The jtos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides a minimal leveled logger for boot diagnostics.
//
// The emitter is any io.Writer, so the same logger drives a host stderr
// during simulation and a serial byte sink on the machine. Logging never
// influences control flow; failures to write are ignored.
package log

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
)

// Level is the log level.
type Level uint32

// Available log levels, from least to most verbose.
const (
	// Warning indicates a problem worth recording, not necessarily fatal.
	Warning Level = iota

	// Info covers major boot milestones.
	Info

	// Debug traces individual operations, like the original serial prints.
	Debug
)

func (l Level) String() string {
	switch l {
	case Warning:
		return "W"
	case Info:
		return "I"
	case Debug:
		return "D"
	default:
		return "?"
	}
}

var (
	// level is the current maximum emitted level.
	level atomic.Uint32

	// mu serializes writes to target.
	mu sync.Mutex

	// target receives formatted log lines.
	target io.Writer = os.Stderr
)

func init() {
	level.Store(uint32(Info))
}

// SetLevel sets the maximum level that will be emitted.
func SetLevel(l Level) {
	level.Store(uint32(l))
}

// SetTarget redirects log output to the given writer.
func SetTarget(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	target = w
}

// IsLogging returns true iff messages at the given level are emitted.
func IsLogging(l Level) bool {
	return uint32(l) <= level.Load()
}

func emit(l Level, format string, args ...any) {
	if !IsLogging(l) {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(target, "%s %s\r\n", l, fmt.Sprintf(format, args...))
}

// Warningf emits a warning-level message.
func Warningf(format string, args ...any) {
	emit(Warning, format, args...)
}

// Infof emits an info-level message.
func Infof(format string, args ...any) {
	emit(Info, format, args...)
}

// Debugf emits a debug-level message.
func Debugf(format string, args ...any) {
	emit(Debug, format, args...)
}
