// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

//go:build unix

package executor

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/bradleyjkemp/fuzzloop/coverage"
	"github.com/bradleyjkemp/fuzzloop/log"
)

// testeeBufferSize is how much output a testee can emit
// before we start to overwrite old output.
const testeeBufferSize = 1 << 20

// Number of consecutive failed testee starts tolerated by Run.
const maxStartFailures = 3

// Process runs the harness in a long-lived child process (the testee) that
// is restarted after every crash, hang and every RestartExecs executions.
// The child must call RunTesteeIfRequested early in main.
type Process struct {
	bin          string
	args         []string
	timeout      time.Duration
	restartExecs int

	comm   *comm
	cover  *coverage.Map
	testee *testee
	buffer []byte

	Restarts int
}

func NewProcess(bin string, args []string, hitcounts bool, timeout time.Duration, restartExecs int) (*Process, error) {
	c, err := createComm()
	if err != nil {
		return nil, err
	}
	cover, err := coverage.MapOf(c.cover(), hitcounts)
	if err != nil {
		c.destroy()
		return nil, err
	}
	return &Process{
		bin:          bin,
		args:         args,
		timeout:      timeout,
		restartExecs: restartExecs,
		comm:         c,
		cover:        cover,
		buffer:       make([]byte, testeeBufferSize),
	}, nil
}

func (p *Process) Cover() *coverage.Map {
	return p.cover
}

func (p *Process) Run(data []byte) (*Result, error) {
	if len(data) > coverage.MaxInputSize {
		return nil, fmt.Errorf("input of %v bytes exceeds %v", len(data), coverage.MaxInputSize)
	}
	failures := 0
	for {
		if p.testee == nil {
			t, err := p.start()
			if err != nil {
				// This can be a transient failure like "cannot allocate memory" or "text file is busy".
				failures++
				if failures >= maxStartFailures {
					return nil, fmt.Errorf("%w: failed to start testee: %v", ErrIsolation, err)
				}
				log.Logf(0, "failed to start testee: %v", err)
				time.Sleep(time.Second)
				continue
			}
			p.Restarts++
			p.testee = t
		}
		p.cover.Reset()
		res, retry := p.testee.test(data, p.restartExecs)
		if retry {
			p.testee.shutdown()
			p.testee = nil
			continue
		}
		if res.Kind != Normal {
			res.Output = p.testee.shutdown()
			if res.Kind == Timeout {
				hdr := fmt.Sprintf("program hanged (timeout %v)\n\n", p.timeout)
				res.Output = append([]byte(hdr), res.Output...)
			}
			p.testee = nil
		}
		return res, nil
	}
}

func (p *Process) Close() error {
	if p.testee != nil {
		p.testee.shutdown()
		p.testee = nil
	}
	return p.comm.destroy()
}

// testee is a wrapper around one testee subprocess.
// It manages communication with the testee, timeouts and output collection.
type testee struct {
	input     []byte
	cmd       *exec.Cmd
	inPipe    *os.File
	outPipe   *os.File
	stdout    *os.File
	writebuf  [8]byte
	resbuf    [16]byte
	execs     int
	startTime atomic.Int64
	outputC   chan []byte
	downC     chan bool
	down      bool
}

func (p *Process) start() (*testee, error) {
	rIn, wIn, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	rReply, wReply, err := os.Pipe()
	if err != nil {
		rIn.Close()
		wIn.Close()
		return nil, err
	}
	rStdout, wStdout, err := os.Pipe()
	if err != nil {
		closeAll(rIn, wIn, rReply, wReply)
		return nil, err
	}
	cmd := exec.Command(p.bin, p.args...)
	if log.V(3) {
		// For debugging of testee failures.
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stdout
	} else {
		cmd.Stdout = wStdout
		cmd.Stderr = wStdout
	}
	cmd.Env = append(os.Environ(), testeeEnv+"=1", "GOTRACEBACK=1")
	p.comm.setup(cmd, rIn, wReply)
	if err := cmd.Start(); err != nil {
		closeAll(rIn, wIn, rReply, wReply, rStdout, wStdout)
		return nil, err
	}
	closeAll(rIn, wReply, wStdout)
	t := &testee{
		input:   p.comm.input(),
		cmd:     cmd,
		inPipe:  rReply,
		outPipe: wIn,
		stdout:  rStdout,
		outputC: make(chan []byte),
		downC:   make(chan bool),
	}
	go t.collectOutput(p.buffer)
	go t.watchHang(p.timeout)
	return t, nil
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
}

// collectOutput periodically drains testee output so that a chatty testee
// does not fill the pipe and deadlock. It also collects crash output.
func (t *testee) collectOutput(data []byte) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	filled := 0
	for {
		select {
		case <-ticker.C:
		case <-t.downC:
		}
		n, err := t.stdout.Read(data[filled:])
		if log.V(3) {
			log.Logf(3, "testee: %s", data[filled:filled+n])
		}
		filled += n
		if filled > testeeBufferSize/4*3 {
			copy(data, data[testeeBufferSize/2:filled])
			filled -= testeeBufferSize / 2
		}
		if err != nil {
			break
		}
	}
	trimmed := make([]byte, filled)
	copy(trimmed, data)
	t.outputC <- trimmed
}

func (t *testee) watchHang(timeout time.Duration) {
	ticker := time.NewTicker(timeout / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			start := t.startTime.Load()
			if start > 0 && time.Now().UnixNano()-start > int64(timeout) {
				t.startTime.Store(-1)
				t.cmd.Process.Signal(syscall.SIGABRT)
				time.Sleep(time.Second)
				t.cmd.Process.Signal(syscall.SIGKILL)
				return
			}
		case <-t.downC:
			return
		}
	}
}

// test passes data to the testee and waits for the reply.
func (t *testee) test(data []byte, restartExecs int) (res *Result, retry bool) {
	if t.down {
		panic("testee is already shut down")
	}
	// The testee can accumulate significant amount of memory,
	// so we recreate it periodically.
	t.execs++
	if t.execs > restartExecs {
		return nil, true
	}
	copy(t.input, data)
	start := time.Now()
	t.startTime.Store(start.UnixNano())
	binary.LittleEndian.PutUint64(t.writebuf[:], uint64(len(data)))
	if _, err := t.outPipe.Write(t.writebuf[:]); err != nil {
		log.Logf(1, "write to testee failed: %v", err)
		return nil, true
	}
	// Once we do the write, the test is running.
	// Once we read the reply below, the test is done.
	_, err := io.ReadFull(t.inPipe, t.resbuf[:])
	hanged := t.startTime.Load() == -1
	t.startTime.Store(0)
	res = &Result{Duration: time.Since(start)}
	switch {
	case hanged:
		res.Kind = Timeout
	case err != nil:
		// The testee died mid-execution.
		res.Kind = Crash
	default:
		res.Hint = int(int64(binary.LittleEndian.Uint64(t.resbuf[:])))
		res.Duration = time.Duration(binary.LittleEndian.Uint64(t.resbuf[8:]))
	}
	return res, false
}

func (t *testee) shutdown() []byte {
	if t.down {
		panic("testee is already shut down")
	}
	t.down = true
	t.cmd.Process.Kill() // it is probably already dead, but kill it again to be sure
	close(t.downC)       // wakeup output collector
	out := <-t.outputC
	if err := t.cmd.Wait(); err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || !exitErr.Exited() || exitErr.ExitCode() != 0 {
			out = append(out, err.Error()...)
		}
	}
	closeAll(t.inPipe, t.outPipe, t.stdout)
	return out
}
