// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package executor

import (
	"bytes"
	"fmt"
	"runtime/debug"
	"runtime/pprof"
	"sync/atomic"
	"time"

	"github.com/bradleyjkemp/fuzzloop/coverage"
)

// InProcess calls the harness in a goroutine of the fuzzer process.
// Panics are recovered and reported as crashes. A harness that does not
// return within the timeout is reported as a timeout and abandoned; its
// goroutine keeps running and may keep writing coverage, so results of later
// runs are Tainted until it returns. Faults the Go
// runtime cannot recover from (fatal errors, memory corruption through
// unsafe or cgo) take the whole process down; use Process for those targets.
type InProcess struct {
	harness  Harness
	cover    *coverage.Map
	timeout  time.Duration
	maxStuck int
	stuck    atomic.Int32
}

func NewInProcess(harness Harness, cover *coverage.Map, timeout time.Duration, maxStuck int) *InProcess {
	cover.Install()
	return &InProcess{
		harness:  harness,
		cover:    cover,
		timeout:  timeout,
		maxStuck: maxStuck,
	}
}

func (e *InProcess) Cover() *coverage.Map {
	return e.cover
}

// Stuck returns the number of abandoned harness invocations that are still running.
func (e *InProcess) Stuck() int {
	return int(e.stuck.Load())
}

func (e *InProcess) Run(data []byte) (*Result, error) {
	if n := e.Stuck(); n > e.maxStuck {
		return nil, fmt.Errorf("%w: %v timed out harness invocations are still running", ErrIsolation, n)
	}
	tainted := e.Stuck() > 0
	e.cover.Reset()
	done := make(chan *Result, 1)
	start := time.Now()
	go e.invoke(data[:len(data):len(data)], done)
	timer := time.NewTimer(e.timeout)
	defer timer.Stop()
	select {
	case res := <-done:
		res.Duration = time.Since(start)
		res.Tainted = tainted
		return res, nil
	case <-timer.C:
		e.stuck.Add(1)
		go func() {
			<-done
			e.stuck.Add(-1)
		}()
		return &Result{
			Kind:     Timeout,
			Output:   hangOutput(e.timeout),
			Duration: time.Since(start),
			Tainted:  tainted,
		}, nil
	}
}

func (e *InProcess) invoke(data []byte, done chan<- *Result) {
	res := &Result{Kind: Crash}
	defer func() {
		if err := recover(); err != nil {
			res.Kind = Crash
			res.Output = []byte(fmt.Sprintf("panic: %v\n\n%s", err, debug.Stack()))
		} else if res.Kind == Crash {
			// runtime.Goexit unwound the harness.
			res.Output = []byte(fmt.Sprintf("harness exited without returning\n\n%s", debug.Stack()))
		}
		done <- res
	}()
	res.Hint = e.harness(data)
	res.Kind = Normal
}

func (e *InProcess) Close() error {
	return nil
}

func hangOutput(timeout time.Duration) []byte {
	b := new(bytes.Buffer)
	fmt.Fprintf(b, "program hanged (timeout %v)\n\n", timeout)
	pprof.Lookup("goroutine").WriteTo(b, 2)
	return b.Bytes()
}
