// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package corpus stores interesting inputs in memory and objectives on disk.
package corpus

import (
	"fmt"
	"time"

	"github.com/bradleyjkemp/fuzzloop/hash"
)

// Entry is one admitted input with the metadata that justified keeping it.
// Data must not be modified after admission.
type Entry struct {
	ID   int
	Data []byte
	Sig  hash.Sig
	// Number of edges covered by the admitting execution.
	Cover int
	// Edges whose bucket the admitting execution raised.
	Signal   []int
	ExecTime time.Duration
	// Number of mutation rounds derived from this entry.
	Fuzzed int
	// Mutation distance from the seed it descends from.
	Depth int
	Seed  bool
}

// Corpus is the in-memory set of interesting inputs. It only grows.
type Corpus struct {
	entries []*Entry
	sigs    map[hash.Sig]int
}

func New() *Corpus {
	return &Corpus{sigs: make(map[hash.Sig]int)}
}

// Add admits a copy of data and returns the new entry id. Ids are assigned
// in admission order starting from 0.
func (c *Corpus) Add(data []byte, cover int, signal []int, execTime time.Duration, depth int, seed bool) int {
	e := &Entry{
		ID:       len(c.entries),
		Data:     append([]byte{}, data...),
		Cover:    cover,
		Signal:   append([]int(nil), signal...),
		ExecTime: execTime,
		Depth:    depth,
		Seed:     seed,
	}
	e.Sig = hash.Hash(e.Data)
	c.entries = append(c.entries, e)
	c.sigs[e.Sig] = e.ID
	return e.ID
}

// Has reports whether an input with the same content is already admitted.
func (c *Corpus) Has(data []byte) bool {
	_, ok := c.sigs[hash.Hash(data)]
	return ok
}

// Get returns the bytes of entry id. The caller must not modify them.
func (c *Corpus) Get(id int) []byte {
	return c.Entry(id).Data
}

func (c *Corpus) Entry(id int) *Entry {
	if id < 0 || id >= len(c.entries) {
		panic(fmt.Sprintf("corpus entry %v out of range [0, %v)", id, len(c.entries)))
	}
	return c.entries[id]
}

// MarkFuzzed records one mutation round of entry id.
func (c *Corpus) MarkFuzzed(id int) {
	c.Entry(id).Fuzzed++
}

func (c *Corpus) Len() int {
	return len(c.entries)
}
