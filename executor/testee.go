// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build unix

package executor

import (
	"encoding/binary"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/bradleyjkemp/fuzzloop/coverage"
)

const testeeEnv = "FUZZLOOP_TESTEE"

// RunTesteeIfRequested turns the current process into a testee serving
// Process when it was started by one. In that case it never returns.
// Otherwise it returns immediately.
func RunTesteeIfRequested(harness Harness) {
	if os.Getenv(testeeEnv) != "1" {
		return
	}
	os.Exit(serveTestee(harness))
}

func serveTestee(harness Harness) int {
	mem, err := mapComm(commFD)
	if err != nil {
		println(err.Error())
		return 1
	}
	coverage.CoverTab = (*[coverage.CoverSize]byte)(mem[:coverage.CoverSize])
	input := mem[coverage.CoverSize:]
	in := os.NewFile(inFD, "in")
	out := os.NewFile(replyFD, "out")
	runtime.GOMAXPROCS(1)

	var cmd [8]byte
	var reply [16]byte
	for {
		if _, err := io.ReadFull(in, cmd[:]); err != nil {
			// The fuzzer closed the pipe.
			return 0
		}
		n := binary.LittleEndian.Uint64(cmd[:])
		if n > uint64(len(input)) {
			println("invalid input length")
			return 1
		}
		coverage.PreviousLocationID = 0
		t0 := time.Now()
		res := harness(input[:n:n])
		ns := time.Since(t0)
		binary.LittleEndian.PutUint64(reply[:], uint64(int64(res)))
		binary.LittleEndian.PutUint64(reply[8:], uint64(ns))
		if _, err := out.Write(reply[:]); err != nil {
			println("failed to write result:", err.Error())
			return 1
		}
	}
}
