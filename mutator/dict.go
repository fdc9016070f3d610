// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutator

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadDictionary reads tokens from filename. Each non-empty line that does
// not start with # holds one token, either as a Go string literal or in
// the AFL form name="value".
func LoadDictionary(filename string) ([][]byte, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return ParseDictionary(data)
}

func ParseDictionary(data []byte) ([][]byte, error) {
	var dict [][]byte
	seen := make(map[string]bool)
	s := bufio.NewScanner(bytes.NewReader(data))
	for lineno := 1; s.Scan(); lineno++ {
		line := strings.TrimSpace(s.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] != '"' && line[0] != '`' {
			eq := strings.IndexByte(line, '=')
			if eq < 0 {
				return nil, fmt.Errorf("line %v: expected a quoted token: %v", lineno, line)
			}
			line = strings.TrimSpace(line[eq+1:])
		}
		tok, err := strconv.Unquote(line)
		if err != nil {
			return nil, fmt.Errorf("line %v: bad token %v: %w", lineno, line, err)
		}
		if tok == "" || seen[tok] {
			continue
		}
		seen[tok] = true
		dict = append(dict, []byte(tok))
	}
	return dict, s.Err()
}
