// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package coverage owns the shared hit-count table that instrumented target code
// writes into during one execution, and the reset/read protocol around it.
package coverage

const (
	CoverSize    = 64 << 10
	MaxInputSize = 1 << 20
)

// CoverTab holds code coverage.
// It is initialized to a new array so that instrumentation
// executed during process initialization has somewhere to write to.
// An executor replaces it with the region of its own Map before the
// first execution (see Map.Install).
var CoverTab = new([CoverSize]byte)

// PreviousLocationID stores the id of the previous coverage point.
// This is combined with the current id to decide which entry in the CoverTab
// to increment in the instrumented code.
// This is done to get a cheap approximation of path coverage instead of
// simply line coverage.
var PreviousLocationID int

// FuzzFunctions is populated by init() functions of target packages.
var FuzzFunctions = map[string]func([]byte) int{}

// Hit increments the counter of edge, saturating at 255.
// Edge ids are untrusted and are folded into the table.
func Hit(edge uint32) {
	tab := CoverTab
	idx := edge & (CoverSize - 1)
	if tab[idx] != 255 {
		tab[idx]++
	}
}

// Trace records a visit of the code location loc as an edge from the previously
// visited location. Hand-instrumented targets call it at every branch.
func Trace(loc int) {
	Hit(uint32(loc ^ PreviousLocationID))
	PreviousLocationID = loc >> 1
}
