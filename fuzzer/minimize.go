// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"bytes"
	"time"

	"github.com/bradleyjkemp/fuzzloop/executor"
	"github.com/bradleyjkemp/fuzzloop/hash"
	"github.com/bradleyjkemp/fuzzloop/log"
)

// minimizeCrasher shrinks a crasher while it keeps crashing with the same
// stack. Different crashes found on the way are queued as new crashers.
func (f *Fuzzer) minimizeCrasher(c crasher) crasher {
	c.data = f.minimizeInput(c.data, true, func(candidate []byte, res *executor.Result) bool {
		if res.Kind != executor.Crash {
			return false
		}
		supp := executor.Suppression(res.Output)
		if !bytes.Equal(c.suppression, supp) {
			f.noteCrasher(candidate, res)
			return false
		}
		c.output = res.Output
		return true
	})
	return c
}

// minimizeInput applies series of minimizing transformations to data
// and asks pred whether the input is equivalent to the original one or not.
func (f *Fuzzer) minimizeInput(data []byte, canonicalize bool, pred func(candidate []byte, res *executor.Result) bool) []byte {
	log.Logf(2, "minimizing input [%v]%v", len(data), hash.String(data))
	res := append([]byte{}, data...)
	start := time.Now()
	shouldStop := func() bool {
		f.broadcastStats(false)
		return time.Since(start) > f.cfg.Minimize.D()
	}
	try := func(candidate []byte) bool {
		r, err := f.execute(candidate)
		if err != nil {
			log.Logf(1, "minimization stopped: %v", err)
			return false
		}
		return pred(candidate, r)
	}

	// First, try to cut tail.
	for n := 1024; n != 0; n /= 2 {
		for len(res) > n {
			if shouldStop() {
				return res
			}
			candidate := res[:len(res)-n]
			if !try(candidate) {
				break
			}
			res = candidate
		}
	}

	// Then, try to remove each individual byte.
	tmp := make([]byte, len(res))
	for i := 0; i < len(res); i++ {
		if shouldStop() {
			return res
		}
		candidate := tmp[:len(res)-1]
		copy(candidate[:i], res[:i])
		copy(candidate[i:], res[i+1:])
		if !try(candidate) {
			continue
		}
		res = append([]byte{}, candidate...)
		i--
	}

	// Then, try to remove each possible subset of bytes.
	for i := 0; i < len(res)-1; i++ {
		copy(tmp, res[:i])
		for j := len(res); j > i+1; j-- {
			if shouldStop() {
				return res
			}
			candidate := tmp[:len(res)-j+i]
			copy(candidate[i:], res[j:])
			if !try(candidate) {
				continue
			}
			res = append([]byte{}, candidate...)
			j = len(res)
		}
	}

	// Then, try to replace each individual byte with '0'.
	if canonicalize {
		for i := 0; i < len(res); i++ {
			if res[i] == '0' {
				continue
			}
			if shouldStop() {
				return res
			}
			candidate := tmp[:len(res)]
			copy(candidate, res)
			candidate[i] = '0'
			if !try(candidate) {
				continue
			}
			res = append([]byte{}, candidate...)
		}
	}
	return res
}
