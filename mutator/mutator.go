// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package mutator derives new candidates from corpus inputs with stacked
// random byte-level transformations.
package mutator

import (
	"bytes"
	"encoding/binary"
	"math/rand"
)

// Source gives access to other inputs for splicing.
type Source interface {
	Len() int
	Get(id int) []byte
}

type Mutator struct {
	maxStack int
	maxLen   int
	dict     [][]byte
}

// New returns a mutator that stacks up to maxStack transformations per call
// and never returns more than maxLen bytes.
func New(maxStack, maxLen int, dict [][]byte) *Mutator {
	return &Mutator{
		maxStack: max(maxStack, 1),
		maxLen:   max(maxLen, 1),
		dict:     dict,
	}
}

// Mutate returns a new non-empty candidate derived from data. data is not modified.
// The result depends only on data, the state of r and the contents of src.
func (m *Mutator) Mutate(r *rand.Rand, data []byte, src Source) []byte {
	res := make([]byte, len(data), len(data)+16)
	copy(res, data)
	if len(res) == 0 {
		res = append(res, byte(r.Intn(256)))
	}
	nm := min(1<<r.Intn(5), m.maxStack)
	// Keep going until the candidate differs from the original, within reason.
	for iter := 0; iter < nm || (bytes.Equal(res, data) && iter < nm+100); iter++ {
		if !m.mutateOnce(r, &res, src) {
			iter--
		}
	}
	if len(res) > m.maxLen {
		res = res[:m.maxLen]
	}
	return res
}

// mutateOnce applies one random transformation to res, which is never empty.
// It returns false if the chosen transformation was not applicable.
func (m *Mutator) mutateOnce(r *rand.Rand, resp *[]byte, s Source) bool {
	res := *resp
	defer func() { *resp = res }()
	switch r.Intn(20) {
	case 0:
		// Remove a range of bytes, keeping at least one.
		if len(res) <= 1 {
			return false
		}
		pos0 := r.Intn(len(res))
		pos1 := pos0 + chooseLen(r, len(res)-pos0)
		if pos1-pos0 == len(res) {
			pos1--
		}
		copy(res[pos0:], res[pos1:])
		res = res[:len(res)-(pos1-pos0)]
	case 1:
		// Insert a range of random bytes.
		pos := r.Intn(len(res) + 1)
		n := chooseLen(r, 10)
		res = insert(res, pos, n)
		for k := 0; k < n; k++ {
			res[pos+k] = byte(r.Intn(256))
		}
	case 2:
		// Duplicate a range of bytes.
		if len(res) <= 1 {
			return false
		}
		src := r.Intn(len(res))
		dst := r.Intn(len(res))
		for dst == src {
			dst = r.Intn(len(res))
		}
		n := chooseLen(r, len(res)-src)
		tmp := append([]byte{}, res[src:src+n]...)
		res = insert(res, dst, n)
		copy(res[dst:], tmp)
	case 3:
		// Copy a range of bytes over another place.
		if len(res) <= 1 {
			return false
		}
		src := r.Intn(len(res))
		dst := r.Intn(len(res))
		for dst == src {
			dst = r.Intn(len(res))
		}
		n := chooseLen(r, len(res)-max(src, dst))
		copy(res[dst:dst+n], res[src:src+n])
	case 4:
		// Bit flip.
		pos := r.Intn(len(res))
		res[pos] ^= 1 << uint(r.Intn(8))
	case 5:
		// Set a byte to a random value.
		pos := r.Intn(len(res))
		res[pos] ^= byte(r.Intn(255)) + 1
	case 6:
		// Swap two bytes.
		if len(res) <= 1 {
			return false
		}
		src := r.Intn(len(res))
		dst := r.Intn(len(res))
		for dst == src {
			dst = r.Intn(len(res))
		}
		res[src], res[dst] = res[dst], res[src]
	case 7:
		// Add/subtract from a byte.
		pos := r.Intn(len(res))
		v := byte(r.Intn(35) + 1)
		if r.Intn(2) == 0 {
			res[pos] += v
		} else {
			res[pos] -= v
		}
	case 8:
		// Add/subtract from a uint16.
		if len(res) < 2 {
			return false
		}
		pos := r.Intn(len(res) - 1)
		buf := res[pos:]
		v := uint16(r.Intn(35) + 1)
		if r.Intn(2) == 0 {
			v = 0 - v
		}
		order := byteOrder(r)
		order.PutUint16(buf, order.Uint16(buf)+v)
	case 9:
		// Add/subtract from a uint32.
		if len(res) < 4 {
			return false
		}
		pos := r.Intn(len(res) - 3)
		buf := res[pos:]
		v := uint32(r.Intn(35) + 1)
		if r.Intn(2) == 0 {
			v = 0 - v
		}
		order := byteOrder(r)
		order.PutUint32(buf, order.Uint32(buf)+v)
	case 10:
		// Add/subtract from a uint64.
		if len(res) < 8 {
			return false
		}
		pos := r.Intn(len(res) - 7)
		buf := res[pos:]
		v := uint64(r.Intn(35) + 1)
		if r.Intn(2) == 0 {
			v = 0 - v
		}
		order := byteOrder(r)
		order.PutUint64(buf, order.Uint64(buf)+v)
	case 11:
		// Replace a byte with an interesting value.
		pos := r.Intn(len(res))
		res[pos] = byte(interesting8[r.Intn(len(interesting8))])
	case 12:
		// Replace an uint16 with an interesting value.
		if len(res) < 2 {
			return false
		}
		pos := r.Intn(len(res) - 1)
		v := uint16(interesting16[r.Intn(len(interesting16))])
		byteOrder(r).PutUint16(res[pos:], v)
	case 13:
		// Replace an uint32 with an interesting value.
		if len(res) < 4 {
			return false
		}
		pos := r.Intn(len(res) - 3)
		v := uint32(interesting32[r.Intn(len(interesting32))])
		byteOrder(r).PutUint32(res[pos:], v)
	case 14:
		// Invert a byte.
		pos := r.Intn(len(res))
		res[pos] ^= 0xff
	case 15:
		// Overwrite a range with random bytes.
		pos := r.Intn(len(res))
		n := chooseLen(r, len(res)-pos)
		for k := 0; k < n; k++ {
			res[pos+k] = byte(r.Intn(256))
		}
	case 16:
		// Splice in a range of another input.
		if s == nil || s.Len() == 0 {
			return false
		}
		other := s.Get(r.Intn(s.Len()))
		if len(other) == 0 {
			return false
		}
		from := r.Intn(len(other))
		n := chooseLen(r, len(other)-from)
		pos := r.Intn(len(res) + 1)
		res = insert(res, pos, n)
		copy(res[pos:], other[from:from+n])
	case 17:
		// Cross over with another input: keep a prefix, take the rest from it.
		if s == nil || s.Len() == 0 {
			return false
		}
		other := s.Get(r.Intn(s.Len()))
		if len(other) < 2 || bytes.Equal(other, res) {
			return false
		}
		split := 1 + r.Intn(min(len(res), len(other)-1))
		res = append(res[:split], other[split:]...)
	case 18:
		// Insert a dictionary token.
		if len(m.dict) == 0 {
			return false
		}
		tok := m.dict[r.Intn(len(m.dict))]
		pos := r.Intn(len(res) + 1)
		res = insert(res, pos, len(tok))
		copy(res[pos:], tok)
	case 19:
		// Overwrite with a dictionary token.
		if len(m.dict) == 0 {
			return false
		}
		tok := m.dict[r.Intn(len(m.dict))]
		if len(tok) > len(res) {
			return false
		}
		pos := r.Intn(len(res) - len(tok) + 1)
		copy(res[pos:], tok)
	}
	return true
}

// chooseLen returns a span length in [1, n], biased towards short spans.
func chooseLen(r *rand.Rand, n int) int {
	switch x := r.Intn(100); {
	case x < 90:
		return r.Intn(min(8, n)) + 1
	case x < 99:
		return r.Intn(min(32, n)) + 1
	default:
		return r.Intn(n) + 1
	}
}

// insert opens a gap of n bytes at pos.
func insert(data []byte, pos, n int) []byte {
	data = append(data, make([]byte, n)...)
	copy(data[pos+n:], data[pos:])
	return data
}

func byteOrder(r *rand.Rand) binary.ByteOrder {
	if r.Intn(2) == 0 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

func init() {
	for _, v := range interesting8 {
		interesting16 = append(interesting16, int16(v))
	}
	for _, v := range interesting16 {
		interesting32 = append(interesting32, int32(v))
	}
}
