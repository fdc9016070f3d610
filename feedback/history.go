// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package feedback decides which executions are worth keeping.
package feedback

import (
	"fmt"

	"github.com/bradleyjkemp/fuzzloop/coverage"
)

// History is the per-edge maximum bucket over all accepted executions.
// It only ever grows.
type History struct {
	max     []byte
	covered int
	raised  []int
}

func NewHistory() *History {
	return &History{max: make([]byte, coverage.CoverSize)}
}

// Novel reports whether snap has a bucket above the recorded maximum for some edge.
func (h *History) Novel(snap coverage.Snapshot) bool {
	h.checkSize(snap)
	for i, v := range h.max {
		if snap.Bucket(i) > v {
			return true
		}
	}
	return false
}

// NewEdges returns the edges on which snap exceeds the history.
func (h *History) NewEdges(snap coverage.Snapshot) []int {
	h.checkSize(snap)
	var res []int
	for i, v := range h.max {
		if snap.Bucket(i) > v {
			res = append(res, i)
		}
	}
	return res
}

// Merge raises the history to snap per edge and returns the number of covered edges.
func (h *History) Merge(snap coverage.Snapshot) int {
	h.checkSize(snap)
	h.raised = nil
	cnt := 0
	for i, v := range h.max {
		x := snap.Bucket(i)
		if v != 0 || x > 0 {
			cnt++
		}
		if v < x {
			h.max[i] = x
			h.raised = append(h.raised, i)
		}
	}
	h.covered = cnt
	return cnt
}

// Raised returns the edges whose bucket the last Merge increased.
func (h *History) Raised() []int {
	return h.raised
}

// Covered returns the number of edges ever hit.
func (h *History) Covered() int {
	return h.covered
}

// Bucket returns the recorded maximum bucket of edge i.
func (h *History) Bucket(i int) byte {
	return h.max[i]
}

func (h *History) checkSize(snap coverage.Snapshot) {
	if snap.Len() != len(h.max) {
		panic(fmt.Sprintf("bad cover table size (%v, want %v)", snap.Len(), len(h.max)))
	}
}
