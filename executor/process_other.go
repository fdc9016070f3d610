// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build !unix

package executor

import (
	"errors"
	"time"
)

type Process struct {
	Executor
	Restarts int
}

func NewProcess(bin string, args []string, hitcounts bool, timeout time.Duration, restartExecs int) (*Process, error) {
	return nil, errors.New("fork executor is not supported on this platform")
}

func RunTesteeIfRequested(harness Harness) {}
