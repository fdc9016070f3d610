// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build unix

package executor

import (
	"fmt"
	"os"
	"os/exec"

	"golang.org/x/sys/unix"

	"github.com/bradleyjkemp/fuzzloop/coverage"
)

const commSize = coverage.CoverSize + coverage.MaxInputSize

// Descriptors inherited by the testee: the comm file, then the command
// pipe (read end) and the reply pipe (write end).
const (
	commFD  = 3
	inFD    = 4
	replyFD = 5
)

// comm is the shared memory region: coverage table followed by the input.
type comm struct {
	f   *os.File
	mem []byte
}

func createComm() (*comm, error) {
	f, err := os.CreateTemp("", "fuzzloop-comm")
	if err != nil {
		return nil, fmt.Errorf("failed to create comm file: %w", err)
	}
	// The testee inherits the descriptor, the name is not needed.
	os.Remove(f.Name())
	if err := f.Truncate(commSize); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to size comm file: %w", err)
	}
	mem, err := mapComm(int(f.Fd()))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &comm{f: f, mem: mem}, nil
}

func mapComm(fd int) ([]byte, error) {
	mem, err := unix.Mmap(fd, 0, commSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("failed to mmap comm file: %w", err)
	}
	return mem, nil
}

func (c *comm) cover() []byte {
	return c.mem[:coverage.CoverSize]
}

func (c *comm) input() []byte {
	return c.mem[coverage.CoverSize:]
}

func (c *comm) setup(cmd *exec.Cmd, rIn, wReply *os.File) {
	cmd.ExtraFiles = append(cmd.ExtraFiles, c.f, rIn, wReply)
}

func (c *comm) destroy() error {
	err := unix.Munmap(c.mem)
	if cerr := c.f.Close(); err == nil {
		err = cerr
	}
	return err
}
