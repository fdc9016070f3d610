// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package config holds the fuzzer configuration and its validation.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"sigs.k8s.io/yaml"

	"github.com/bradleyjkemp/fuzzloop/coverage"
)

const (
	ExecutorInProcess = "inprocess"
	ExecutorFork      = "fork"

	SchedulerQueue    = "queue"
	SchedulerWeighted = "weighted"
)

type Config struct {
	// Seed corpus directory. Every regular file is one seed input.
	Corpus string `json:"corpus"`
	// Solutions directory where crashing inputs are written.
	Solutions string `json:"solutions"`
	// Per-execution wall-clock limit.
	Timeout Duration `json:"timeout"`
	// Random seed; 0 means derive from the current time.
	Seed int64 `json:"seed"`
	// Executor kind: inprocess or fork.
	Executor string `json:"executor"`
	// Scheduler kind: queue or weighted.
	Scheduler string `json:"scheduler"`
	// Use coverage hit counters rather than plain edge coverage.
	Hitcounts bool `json:"hitcounts"`
	MaxInputSize int `json:"max_input_size"`
	// Upper bound on stacked havoc mutations per candidate.
	MaxStack int `json:"max_stack"`
	// Dictionary file with one quoted token per line.
	Dict string `json:"dict"`
	// How often the status line is emitted.
	StatusPeriod Duration `json:"status_period"`
	// Time limit for crasher minimization; 0 disables minimization.
	Minimize Duration `json:"minimize"`
	// Persist only one crasher per distinct crash stack.
	DedupStacks bool `json:"dedup_stacks"`
	// Write <sig>.output and <sig>.quoted next to every crasher.
	SaveCrashOutput bool `json:"save_crash_output"`
	// Number of timed-out harness goroutines tolerated by the in-process executor.
	MaxStuck int `json:"max_stuck"`
	// Restart the fork-server testee after this many executions.
	RestartExecs int `json:"restart_execs"`
}

// Duration is a time.Duration that is spelled as "10s" in config files.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var ns int64
		if err := json.Unmarshal(data, &ns); err != nil {
			return fmt.Errorf("bad duration %s", data)
		}
		*d = Duration(ns)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) D() time.Duration {
	return time.Duration(d)
}

func Default() *Config {
	return &Config{
		Timeout:      Duration(10 * time.Second),
		Executor:     ExecutorInProcess,
		Scheduler:    SchedulerQueue,
		Hitcounts:    true,
		MaxInputSize: coverage.MaxInputSize,
		MaxStack:     16,
		StatusPeriod: Duration(3 * time.Second),
		MaxStuck:     4,
		RestartExecs: 10000,
	}
}

// Error is a configuration error. It names the failing path or field.
type Error struct {
	Path  string
	Field string
	Err   error
}

func (err *Error) Error() string {
	if err.Path != "" {
		return fmt.Sprintf("config: %v %q: %v", err.Field, err.Path, err.Err)
	}
	return fmt.Sprintf("config: %v: %v", err.Field, err.Err)
}

func (err *Error) Unwrap() error {
	return err.Err
}

// LoadFile reads a JSON or YAML config on top of the defaults.
func LoadFile(filename string) (*Config, error) {
	if filename == "" {
		return nil, &Error{Field: "config", Err: errors.New("no config file specified")}
	}
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, &Error{Path: filename, Field: "config", Err: err}
	}
	cfg, err := LoadData(data)
	if err != nil {
		return nil, &Error{Path: filename, Field: "config", Err: err}
	}
	return cfg, nil
}

var commentRe = regexp.MustCompile(`(^|\n)\s*#[^\n]*`)

func LoadData(data []byte) (*Config, error) {
	// Remove comment lines starting with #.
	data = commentRe.ReplaceAll(data, nil)
	cfg := Default()
	if err := yaml.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration and prepares the solutions directory.
func (cfg *Config) Validate() error {
	if cfg.Corpus == "" {
		return &Error{Field: "corpus", Err: errors.New("seed corpus directory is not set")}
	}
	if st, err := os.Stat(cfg.Corpus); err != nil {
		return &Error{Path: cfg.Corpus, Field: "corpus", Err: err}
	} else if !st.IsDir() {
		return &Error{Path: cfg.Corpus, Field: "corpus", Err: errors.New("not a directory")}
	}
	if cfg.Solutions == "" {
		return &Error{Field: "solutions", Err: errors.New("solutions directory is not set")}
	}
	switch cfg.Executor {
	case ExecutorInProcess, ExecutorFork:
	default:
		return &Error{Field: "executor", Err: fmt.Errorf("unknown executor %q", cfg.Executor)}
	}
	switch cfg.Scheduler {
	case SchedulerQueue, SchedulerWeighted:
	default:
		return &Error{Field: "scheduler", Err: fmt.Errorf("unknown scheduler %q", cfg.Scheduler)}
	}
	if cfg.Timeout <= 0 {
		return &Error{Field: "timeout", Err: fmt.Errorf("must be positive, got %v", cfg.Timeout.D())}
	}
	if cfg.StatusPeriod <= 0 {
		return &Error{Field: "status_period", Err: fmt.Errorf("must be positive, got %v", cfg.StatusPeriod.D())}
	}
	if cfg.Minimize < 0 {
		return &Error{Field: "minimize", Err: fmt.Errorf("must not be negative, got %v", cfg.Minimize.D())}
	}
	if cfg.MaxStack < 1 {
		return &Error{Field: "max_stack", Err: fmt.Errorf("must be at least 1, got %v", cfg.MaxStack)}
	}
	if cfg.MaxInputSize < 1 || cfg.MaxInputSize > coverage.MaxInputSize {
		return &Error{Field: "max_input_size",
			Err: fmt.Errorf("must be in [1, %v], got %v", coverage.MaxInputSize, cfg.MaxInputSize)}
	}
	if cfg.MaxStuck < 0 {
		return &Error{Field: "max_stuck", Err: fmt.Errorf("must not be negative, got %v", cfg.MaxStuck)}
	}
	if cfg.RestartExecs < 1 {
		return &Error{Field: "restart_execs", Err: fmt.Errorf("must be at least 1, got %v", cfg.RestartExecs)}
	}
	if cfg.Dict != "" {
		if _, err := os.Stat(cfg.Dict); err != nil {
			return &Error{Path: cfg.Dict, Field: "dict", Err: err}
		}
	}
	return checkWritableDir(cfg.Solutions)
}

func checkWritableDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &Error{Path: dir, Field: "solutions", Err: err}
	}
	probe, err := os.CreateTemp(dir, ".probe-")
	if err != nil {
		return &Error{Path: dir, Field: "solutions", Err: fmt.Errorf("directory is not writable: %w", err)}
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}
