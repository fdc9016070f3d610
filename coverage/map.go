// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

import (
	"fmt"
)

// Map is a fixed-size hit-count table owned by an executor.
// The target writes into it during an execution; the map only owns
// the reset/read protocol around those writes.
type Map struct {
	mem       []byte
	hitcounts bool
}

// NewMap allocates a table. With hitcounts disabled every non-zero
// counter falls into a single bucket.
func NewMap(hitcounts bool) *Map {
	return &Map{
		mem:       make([]byte, CoverSize),
		hitcounts: hitcounts,
	}
}

// MapOf wraps an externally allocated region, e.g. shared memory.
func MapOf(mem []byte, hitcounts bool) (*Map, error) {
	if len(mem) != CoverSize {
		return nil, fmt.Errorf("bad cover table size (%v, want %v)", len(mem), CoverSize)
	}
	return &Map{
		mem:       mem,
		hitcounts: hitcounts,
	}, nil
}

// Region returns the table as seen by instrumented code.
func (m *Map) Region() *[CoverSize]byte {
	return (*[CoverSize]byte)(m.mem)
}

// Install points CoverTab at this map.
func (m *Map) Install() {
	CoverTab = m.Region()
	PreviousLocationID = 0
}

// Reset zeroes the table before a run.
func (m *Map) Reset() {
	clear(m.mem)
	PreviousLocationID = 0
}

// Snapshot returns a read-only view of the table after a run.
// The view is valid until the next Reset; use Clone to retain it.
func (m *Map) Snapshot() Snapshot {
	return Snapshot{raw: m.mem, hitcounts: m.hitcounts}
}

// Snapshot is a read-only view of a coverage table.
type Snapshot struct {
	raw       []byte
	hitcounts bool
}

func (s Snapshot) Len() int {
	return len(s.raw)
}

// Raw returns the unbucketed counter of edge i.
func (s Snapshot) Raw(i int) byte {
	return s.raw[i]
}

// Bucket returns the bucketed counter of edge i. Two runs are the same
// coverage-wise iff all their buckets are equal.
func (s Snapshot) Bucket(i int) byte {
	x := s.raw[i]
	if !s.hitcounts {
		if x != 0 {
			return 1
		}
		return 0
	}
	return buckets[x]
}

// Empty reports whether no edge was hit.
func (s Snapshot) Empty() bool {
	for _, x := range s.raw {
		if x != 0 {
			return false
		}
	}
	return true
}

// Edges returns the number of edges hit at least once.
func (s Snapshot) Edges() int {
	cnt := 0
	for _, x := range s.raw {
		if x != 0 {
			cnt++
		}
	}
	return cnt
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		raw:       append([]byte{}, s.raw...),
		hitcounts: s.hitcounts,
	}
}
