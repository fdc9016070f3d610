// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package log wraps the standard log package with verbosity levels:
//   - 0: lifecycle events (seeding summary, new crashers, fatal errors)
//   - 1: fuzzing loop diagnostics
//   - 2: per-input triage
//   - 3: testee output
package log

import (
	golog "log"
	"sync/atomic"
)

var verbosity atomic.Int32

func SetVerbosity(v int) {
	verbosity.Store(int32(v))
}

func V(v int) bool {
	return int32(v) <= verbosity.Load()
}

func Logf(v int, msg string, args ...interface{}) {
	if V(v) {
		golog.Printf(msg, args...)
	}
}

func Fatal(err error) {
	golog.Fatal(err)
}

func Fatalf(msg string, args ...interface{}) {
	golog.Fatalf(msg, args...)
}

// VerboseWriter logs everything written to it at the given level.
type VerboseWriter int

func (w VerboseWriter) Write(data []byte) (int, error) {
	Logf(int(w), "%s", data)
	return len(data), nil
}
