// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package feedback

import (
	"github.com/bradleyjkemp/fuzzloop/coverage"
	"github.com/bradleyjkemp/fuzzloop/executor"
)

// Feedback decides whether an execution is novel enough to keep its input.
// An interesting snapshot is merged into h; otherwise h is left untouched.
type Feedback interface {
	IsInteresting(h *History, snap coverage.Snapshot) bool
}

// MaxMap keeps inputs that raise the bucket of at least one edge.
type MaxMap struct{}

func (MaxMap) IsInteresting(h *History, snap coverage.Snapshot) bool {
	if !h.Novel(snap) {
		return false
	}
	h.Merge(snap)
	return true
}

// Objective decides whether an execution reached the goal of the run.
type Objective interface {
	IsObjective(res *executor.Result) bool
}

// Crash is satisfied by executions that panicked or died.
type Crash struct{}

func (Crash) IsObjective(res *executor.Result) bool {
	return res.Kind == executor.Crash
}

// Timeout is satisfied by executions that exceeded the time limit.
type Timeout struct{}

func (Timeout) IsObjective(res *executor.Result) bool {
	return res.Kind == executor.Timeout
}

// Any is satisfied when one of its objectives is.
type Any []Objective

func (any Any) IsObjective(res *executor.Result) bool {
	for _, obj := range any {
		if obj.IsObjective(res) {
			return true
		}
	}
	return false
}
