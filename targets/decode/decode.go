// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package decode is a small hand-instrumented target: a percent-escape and
// run-length decoder with a planted bounds bug.
package decode

import (
	"github.com/bradleyjkemp/fuzzloop/coverage"
)

func init() {
	coverage.FuzzFunctions["decode"] = Fuzz
}

// Fuzz is the harness. Inputs that fail to decode are not worth keeping.
func Fuzz(data []byte) int {
	if _, ok := Decode(data); !ok {
		return -1
	}
	return 0
}

// Decode expands %XX hex escapes and *N run-length markers that repeat the
// previous byte N times. An escape cut short by the end of the input reads
// past it.
func Decode(in []byte) ([]byte, bool) {
	coverage.Trace(0x1f3a)
	var out []byte
	for i := 0; i < len(in); i++ {
		switch c := in[i]; c {
		case '%':
			coverage.Trace(0x2b71)
			if i+1 >= len(in) {
				coverage.Trace(0x08c4)
				return nil, false
			}
			// Bug: only the first digit is checked against the input length.
			hi, ok1 := unhex(in[i+1])
			lo, ok2 := unhex(in[i+2])
			if !ok1 || !ok2 {
				coverage.Trace(0x5d12)
				return nil, false
			}
			coverage.Trace(0x3e07)
			out = append(out, hi<<4|lo)
			i += 2
		case '*':
			coverage.Trace(0x6a95)
			if len(out) == 0 || i+1 >= len(in) {
				coverage.Trace(0x7c20)
				return nil, false
			}
			n, ok := unhex(in[i+1])
			if !ok {
				coverage.Trace(0x11e8)
				return nil, false
			}
			coverage.Trace(0x4f63)
			prev := out[len(out)-1]
			for ; n > 0; n-- {
				out = append(out, prev)
			}
			i++
		default:
			coverage.Trace(0x2d4c)
			out = append(out, c)
		}
	}
	coverage.Trace(0x6193)
	return out, true
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		coverage.Trace(0x0a51)
		return c - '0', true
	case 'a' <= c && c <= 'f':
		coverage.Trace(0x3390)
		return c - 'a' + 10, true
	case 'A' <= c && c <= 'F':
		coverage.Trace(0x7e2f)
		return c - 'A' + 10, true
	}
	coverage.Trace(0x1b66)
	return 0, false
}
