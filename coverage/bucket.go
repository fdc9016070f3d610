// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package coverage

var buckets [256]byte

func init() {
	for i := range buckets {
		buckets[i] = roundUpCover(byte(i))
	}
}

// Quantize the counters. Otherwise we get too inflated corpus.
func roundUpCover(x byte) byte {
	switch {
	case x <= 2:
		return x
	case x == 3:
		return 4
	case x <= 7:
		return 8
	case x <= 15:
		return 16
	case x <= 31:
		return 32
	case x <= 127:
		return 64
	}
	return 128
}

// Classify maps a raw hit count to its bucket: 1, 2, 3, 4-7, 8-15, 16-31, 32-127, 128+.
// Buckets are ordered, so a larger bucket means strictly more hits.
func Classify(x byte) byte {
	return buckets[x]
}
