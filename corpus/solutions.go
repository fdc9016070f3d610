// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package corpus

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bradleyjkemp/fuzzloop/hash"
	"github.com/bradleyjkemp/fuzzloop/log"
)

// StorageError means an objective could not be written even after a retry.
type StorageError struct {
	Path string
	Err  error
}

func (err *StorageError) Error() string {
	return fmt.Sprintf("failed to store %v: %v", err.Path, err.Err)
}

func (err *StorageError) Unwrap() error {
	return err.Err
}

// Solutions is the set of objective inputs with a persistent mirror on disk.
// Each input is stored once, in a file named by the hex signature of its content.
type Solutions struct {
	dir      string
	m        map[hash.Sig]bool
	supps    map[hash.Sig]bool
	describe bool

	writeFile func(name string, data []byte, perm os.FileMode) error
}

// OpenSolutions creates dir if needed and registers inputs already stored there,
// so that a restarted run does not write them again. With describe set, every
// new input also gets <sig>.output with the crash output and <sig>.quoted with
// the input as a Go string literal.
func OpenSolutions(dir string, describe bool) (*Solutions, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Path: dir, Err: err}
	}
	infos, err := os.ReadDir(dir)
	if err != nil {
		return nil, &StorageError{Path: dir, Err: err}
	}
	s := &Solutions{
		dir:       dir,
		m:         make(map[hash.Sig]bool),
		supps:     make(map[hash.Sig]bool),
		describe:  describe,
		writeFile: os.WriteFile,
	}
	for _, info := range infos {
		if info.IsDir() || strings.Contains(info.Name(), ".") {
			continue
		}
		sig, err := hash.FromString(info.Name())
		if err != nil {
			log.Logf(1, "unknown file in solutions dir %v: %v", dir, info.Name())
			continue
		}
		s.m[sig] = true
	}
	return s, nil
}

// Add stores data unless an identical input is already stored.
// It reports whether a new file was written.
func (s *Solutions) Add(data, output []byte) (bool, error) {
	sig := hash.Hash(data)
	if s.m[sig] {
		return false, nil
	}
	fname := filepath.Join(s.dir, sig.String())
	if _, err := os.Stat(fname); err == nil {
		// Written by someone else since we opened the directory.
		s.m[sig] = true
		return false, nil
	}
	if err := s.write(fname, data); err != nil {
		return false, err
	}
	s.m[sig] = true
	if s.describe {
		s.addDescription(sig, quote(data), "quoted")
		s.addDescription(sig, output, "output")
	}
	return true, nil
}

func (s *Solutions) write(fname string, data []byte) error {
	err := s.writeFile(fname, data, 0644)
	if err == nil {
		return nil
	}
	log.Logf(0, "failed to write %v, retrying: %v", fname, err)
	if err = s.writeFile(fname, data, 0644); err != nil {
		return &StorageError{Path: fname, Err: err}
	}
	return nil
}

func (s *Solutions) addDescription(sig hash.Sig, desc []byte, typ string) {
	fname := filepath.Join(s.dir, sig.String()+"."+typ)
	if err := s.write(fname, desc); err != nil {
		log.Logf(0, "%v", err)
	}
}

// Has reports whether data is already stored.
func (s *Solutions) Has(data []byte) bool {
	return s.m[hash.Hash(data)]
}

// Suppress records a crash signature and reports whether it was new.
func (s *Solutions) Suppress(supp []byte) bool {
	sig := hash.Hash(supp)
	if s.supps[sig] {
		return false
	}
	s.supps[sig] = true
	return true
}

// Suppressed reports whether the crash signature was recorded before.
func (s *Solutions) Suppressed(supp []byte) bool {
	return s.supps[hash.Hash(supp)]
}

func (s *Solutions) Len() int {
	return len(s.m)
}

func (s *Solutions) Dir() string {
	return s.dir
}

// quote renders data as a Go string literal split into lines of 20 bytes,
// ready to be pasted into a standalone reproducer.
func quote(data []byte) []byte {
	var buf bytes.Buffer
	for i := 0; i < len(data); i += 20 {
		e := min(i+20, len(data))
		fmt.Fprintf(&buf, "\t%q", data[i:e])
		if e != len(data) {
			fmt.Fprintf(&buf, " +")
		}
		fmt.Fprintf(&buf, "\n")
	}
	return buf.Bytes()
}
