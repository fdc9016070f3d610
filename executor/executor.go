// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package executor runs the target harness on one input and classifies the outcome.
package executor

import (
	"errors"
	"fmt"
	"time"

	"github.com/bradleyjkemp/fuzzloop/coverage"
)

// Harness is the function under test. It consumes one input and may write
// into coverage.CoverTab as a side effect. A negative result tells the
// fuzzer not to add the input to the corpus.
type Harness func(data []byte) int

type ExitKind int

const (
	Normal ExitKind = iota
	Crash
	Timeout
)

func (k ExitKind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Crash:
		return "crash"
	case Timeout:
		return "timeout"
	}
	return fmt.Sprintf("ExitKind(%d)", int(k))
}

// Result is the outcome of one execution.
type Result struct {
	Kind ExitKind
	// Harness return value, valid for Normal runs.
	Hint int
	// Panic message and stacks for Crash and Timeout runs.
	Output   []byte
	Duration time.Duration
	// Tainted is set when a harness abandoned by an earlier timeout was still
	// running, so Cover may hold hits this run did not produce.
	Tainted bool
}

// Rejected reports whether the harness asked not to keep the input.
func (res *Result) Rejected() bool {
	return res.Kind == Normal && res.Hint < 0
}

// Executor runs candidates one at a time. After Run returns, Cover holds the
// coverage of that run, including partial coverage of crashed or timed out runs.
type Executor interface {
	Run(data []byte) (*Result, error)
	Cover() *coverage.Map
	Close() error
}

// ErrIsolation is returned by Run when the executor can no longer keep the
// harness apart from the fuzzer. The fuzzer cannot continue.
var ErrIsolation = errors.New("executor: harness is not isolated")
