// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"fmt"
	"os"
	"path/filepath"
)

// Seed is one initial input read from the seed directory.
type Seed struct {
	Path string
	Data []byte
}

// SeedError describes one seed that could not be used.
type SeedError struct {
	Path string
	Err  error
}

func (err *SeedError) Error() string {
	return fmt.Sprintf("seed %v: %v", err.Path, err.Err)
}

func (err *SeedError) Unwrap() error {
	return err.Err
}

// ReadSeeds reads every regular file in dir as one seed, in name order.
// Unreadable files and broken links are reported in skipped and do not fail the call; an
// unreadable directory does.
func ReadSeeds(dir string) (seeds []Seed, skipped []*SeedError, err error) {
	infos, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read seed directory %v: %w", dir, err)
	}
	for _, info := range infos {
		path := filepath.Join(dir, info.Name())
		if !info.Type().IsRegular() {
			st, err := os.Stat(path)
			if err != nil {
				skipped = append(skipped, &SeedError{Path: path, Err: err})
				continue
			}
			if !st.Mode().IsRegular() {
				continue
			}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			skipped = append(skipped, &SeedError{Path: path, Err: err})
			continue
		}
		seeds = append(seeds, Seed{Path: path, Data: data})
	}
	return seeds, skipped, nil
}
