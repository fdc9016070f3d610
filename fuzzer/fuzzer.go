// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package fuzzer runs the coverage-guided fuzzing loop: pick a corpus entry,
// mutate it, execute the candidate and keep what is new.
package fuzzer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bradleyjkemp/fuzzloop/config"
	"github.com/bradleyjkemp/fuzzloop/corpus"
	"github.com/bradleyjkemp/fuzzloop/coverage"
	"github.com/bradleyjkemp/fuzzloop/executor"
	"github.com/bradleyjkemp/fuzzloop/feedback"
	"github.com/bradleyjkemp/fuzzloop/hash"
	"github.com/bradleyjkemp/fuzzloop/log"
	"github.com/bradleyjkemp/fuzzloop/mutator"
	"github.com/bradleyjkemp/fuzzloop/scheduler"
)

type State int32

const (
	Initializing State = iota
	Seeding
	Running
	Stopped
	Fatal
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Seeding:
		return "seeding"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	case Fatal:
		return "fatal"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrNoSeeds is returned when no seed input could be admitted to the corpus.
var ErrNoSeeds = errors.New("no usable seed inputs")

type Options struct {
	// Monitor receives a status line at most once per status period.
	Monitor func(status string)
	// Registerer receives the Prometheus metrics of the fuzzer, may be nil.
	Registerer prometheus.Registerer
	// Executor overrides the executor selected by the config.
	Executor executor.Executor
	// TesteeBin is the binary started by the fork executor, by default the current one.
	// It must call executor.RunTesteeIfRequested with the harness.
	TesteeBin  string
	TesteeArgs []string
	// Feedback and Objective override the defaults: feedback.MaxMap and feedback.Crash.
	Feedback  feedback.Feedback
	Objective feedback.Objective
}

type Fuzzer struct {
	cfg   *config.Config
	opts  Options
	state atomic.Int32

	exec      executor.Executor
	history   *feedback.History
	feedback  feedback.Feedback
	objective feedback.Objective
	corpus    *corpus.Corpus
	solutions *corpus.Solutions
	sched     scheduler.Scheduler
	mutator   *mutator.Mutator
	rnd       *rand.Rand
	stats     *Stats
	monitor   func(string)

	badInputs    map[hash.Sig]bool
	crasherQueue []crasher

	startTime  time.Time
	lastInput  time.Time
	lastStatus time.Time
}

type crasher struct {
	data        []byte
	output      []byte
	suppression []byte
	hanging     bool
}

// New validates the configuration and constructs all components.
// Configuration problems are returned as *config.Error.
func New(cfg *config.Config, harness executor.Harness, opts Options) (*Fuzzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f := &Fuzzer{
		cfg:       cfg,
		opts:      opts,
		history:   feedback.NewHistory(),
		feedback:  opts.Feedback,
		objective: opts.Objective,
		corpus:    corpus.New(),
		monitor:   opts.Monitor,
		badInputs: make(map[hash.Sig]bool),
		startTime: time.Now(),
		lastInput: time.Now(),
	}
	if f.feedback == nil {
		f.feedback = feedback.MaxMap{}
	}
	if f.objective == nil {
		f.objective = feedback.Crash{}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	log.Logf(1, "random seed %v", seed)
	f.rnd = rand.New(rand.NewSource(seed))

	var dict [][]byte
	if cfg.Dict != "" {
		var err error
		if dict, err = mutator.LoadDictionary(cfg.Dict); err != nil {
			return nil, &config.Error{Path: cfg.Dict, Field: "dict", Err: err}
		}
		log.Logf(0, "loaded %v dictionary tokens", len(dict))
	}
	f.mutator = mutator.New(cfg.MaxStack, cfg.MaxInputSize, dict)

	switch cfg.Scheduler {
	case config.SchedulerWeighted:
		f.sched = scheduler.NewWeighted(f.rnd)
	default:
		f.sched = scheduler.NewQueue()
	}

	solutions, err := corpus.OpenSolutions(cfg.Solutions, cfg.SaveCrashOutput)
	if err != nil {
		return nil, &config.Error{Path: cfg.Solutions, Field: "solutions", Err: err}
	}
	f.solutions = solutions

	switch {
	case opts.Executor != nil:
		f.exec = opts.Executor
	case cfg.Executor == config.ExecutorFork:
		bin := opts.TesteeBin
		if bin == "" {
			if bin, err = os.Executable(); err != nil {
				return nil, &config.Error{Field: "executor", Err: err}
			}
		}
		p, err := executor.NewProcess(bin, opts.TesteeArgs, cfg.Hitcounts, cfg.Timeout.D(), cfg.RestartExecs)
		if err != nil {
			return nil, &config.Error{Path: bin, Field: "executor", Err: err}
		}
		f.exec = p
	default:
		f.exec = executor.NewInProcess(harness, coverage.NewMap(cfg.Hitcounts), cfg.Timeout.D(), cfg.MaxStuck)
	}
	f.initStats()
	return f, nil
}

func (f *Fuzzer) State() State {
	return State(f.state.Load())
}

func (f *Fuzzer) setState(s State) {
	log.Logf(1, "fuzzer: %v -> %v", f.State(), s)
	f.state.Store(int32(s))
}

func (f *Fuzzer) fail(err error) error {
	f.setState(Fatal)
	return err
}

func (f *Fuzzer) Corpus() *corpus.Corpus {
	return f.corpus
}

func (f *Fuzzer) Solutions() *corpus.Solutions {
	return f.solutions
}

func (f *Fuzzer) History() *feedback.History {
	return f.history
}

func (f *Fuzzer) Stats() *Stats {
	return f.stats
}

// Fuzz seeds the corpus and runs the loop until ctx is done.
func (f *Fuzzer) Fuzz(ctx context.Context) error {
	if err := f.LoadSeeds(); err != nil {
		return err
	}
	return f.Run(ctx)
}

// LoadSeeds executes every seed input once. Seeds that run normally are
// admitted unconditionally and their coverage becomes the baseline. Seeds
// that crash are treated as objectives. It fails with ErrNoSeeds if no seed
// was admitted, without running the harness if there are no seeds at all.
func (f *Fuzzer) LoadSeeds() error {
	if s := f.State(); s != Initializing {
		return fmt.Errorf("cannot load seeds in state %v", s)
	}
	f.setState(Seeding)
	seeds, skipped, err := corpus.ReadSeeds(f.cfg.Corpus)
	if err != nil {
		return f.fail(&config.Error{Path: f.cfg.Corpus, Field: "corpus", Err: err})
	}
	var errs []error
	for _, serr := range skipped {
		log.Logf(0, "skipping %v", serr)
		errs = append(errs, serr)
	}
	if len(seeds) == 0 {
		if len(errs) != 0 {
			return f.fail(fmt.Errorf("%w: no readable inputs in %v: %w", ErrNoSeeds, f.cfg.Corpus, errors.Join(errs...)))
		}
		return f.fail(fmt.Errorf("%w: seed directory %v is empty", ErrNoSeeds, f.cfg.Corpus))
	}
	for _, seed := range seeds {
		data := seed.Data
		if len(data) > f.cfg.MaxInputSize {
			data = data[:f.cfg.MaxInputSize]
		}
		if f.corpus.Has(data) {
			log.Logf(1, "seed %v duplicates another seed", seed.Path)
			continue
		}
		res, err := f.execute(data)
		if err != nil {
			return f.fail(err)
		}
		if f.objective.IsObjective(res) {
			f.noteCrasher(data, res)
		}
		var reason error
		switch {
		case res.Kind != executor.Normal:
			reason = fmt.Errorf("seed execution: %v", res.Kind)
		case res.Rejected():
			reason = fmt.Errorf("rejected by harness (result %v)", res.Hint)
		}
		if reason != nil {
			serr := &corpus.SeedError{Path: seed.Path, Err: reason}
			log.Logf(0, "skipping %v", serr)
			errs = append(errs, serr)
			continue
		}
		snap := f.exec.Cover().Snapshot()
		var signal []int
		if res.Tainted {
			log.Logf(1, "seed %v ran next to a hung harness, its coverage is ignored", seed.Path)
		} else {
			f.history.Merge(snap)
			signal = f.history.Raised()
		}
		f.corpus.Add(data, snap.Edges(), signal, res.Duration, 0, true)
		log.Logf(2, "admitted seed %v [%v]%v", seed.Path, len(data), hash.String(data))
	}
	f.processCrashers()
	if f.corpus.Len() == 0 {
		return f.fail(fmt.Errorf("%w in %v: %w", ErrNoSeeds, f.cfg.Corpus, errors.Join(errs...)))
	}
	log.Logf(0, "seeded corpus with %v of %v inputs, cover: %v", f.corpus.Len(), len(seeds), f.history.Covered())
	f.lastInput = time.Now()
	f.setState(Running)
	return nil
}

// Run repeats FuzzOne until ctx is done, then returns nil.
// It returns an error only if the fuzzer cannot continue.
func (f *Fuzzer) Run(ctx context.Context) error {
	if s := f.State(); s != Running {
		return fmt.Errorf("cannot run fuzzer in state %v", s)
	}
	for ctx.Err() == nil {
		f.broadcastStats(false)
		if err := f.FuzzOne(); err != nil {
			return f.fail(err)
		}
	}
	f.setState(Stopped)
	f.broadcastStats(true)
	return nil
}

// FuzzOne processes pending crashers, or else mutates one scheduled corpus
// entry and tests the candidate.
func (f *Fuzzer) FuzzOne() error {
	if len(f.crasherQueue) > 0 {
		f.processCrashers()
		return nil
	}
	id, err := f.sched.Next(f.corpus)
	if err != nil {
		return err
	}
	parent := f.corpus.Entry(id)
	f.corpus.MarkFuzzed(id)
	data := f.mutator.Mutate(f.rnd, parent.Data, f.corpus)
	return f.testInput(data, parent.Depth+1)
}

// testInput runs one candidate and routes the outcome to the objective
// and feedback evaluators.
func (f *Fuzzer) testInput(data []byte, depth int) error {
	if f.badInputs[hash.Hash(data)] {
		return nil // no, thanks
	}
	res, err := f.execute(data)
	if err != nil {
		return err
	}
	if f.objective.IsObjective(res) {
		f.noteCrasher(data, res)
		return nil
	}
	if res.Kind == executor.Timeout {
		// Evaluated below like a slow normal run, but never executed again.
		f.badInputs[hash.Hash(data)] = true
	}
	if res.Kind == executor.Crash || res.Rejected() || res.Tainted {
		return nil
	}
	if f.corpus.Has(data) {
		return nil
	}
	snap := f.exec.Cover().Snapshot()
	if !f.feedback.IsInteresting(f.history, snap) {
		return nil
	}
	f.corpus.Add(data, snap.Edges(), f.history.Raised(), res.Duration, depth, false)
	f.stats.NewInputs.Add(1)
	f.lastInput = time.Now()
	log.Logf(2, "new input [%v]%v depth=%v cover=%v", len(data), hash.String(data), depth, f.history.Covered())
	return nil
}

// execute runs the harness once and accounts for it.
func (f *Fuzzer) execute(data []byte) (*executor.Result, error) {
	res, err := f.exec.Run(data)
	if err != nil {
		return nil, err
	}
	f.stats.Execs.Add(1)
	f.stats.ExecTime.Add(int(res.Duration / time.Microsecond))
	switch {
	case res.Kind == executor.Crash:
		f.stats.Crashes.Add(1)
	case res.Kind == executor.Timeout:
		f.stats.Timeouts.Add(1)
	case res.Rejected():
		f.stats.Rejected.Add(1)
	}
	return res, nil
}

// noteCrasher queues an objective for minimization and storage.
func (f *Fuzzer) noteCrasher(data []byte, res *executor.Result) {
	f.stats.Objectives.Add(1)
	c := crasher{
		data:    append([]byte{}, data...),
		output:  res.Output,
		hanging: res.Kind == executor.Timeout,
	}
	if !c.hanging {
		c.suppression = executor.Suppression(res.Output)
		if f.cfg.DedupStacks && f.solutions.Suppressed(c.suppression) {
			f.stats.Suppressed.Add(1)
			return
		}
	}
	if f.solutions.Has(c.data) {
		return
	}
	f.crasherQueue = append(f.crasherQueue, c)
}

func (f *Fuzzer) processCrashers() {
	for len(f.crasherQueue) > 0 {
		n := len(f.crasherQueue) - 1
		c := f.crasherQueue[n]
		f.crasherQueue[n] = crasher{}
		f.crasherQueue = f.crasherQueue[:n]
		f.processCrasher(c)
	}
}

func (f *Fuzzer) processCrasher(c crasher) {
	if c.hanging {
		// Hanging inputs can take very long time to minimize.
		f.badInputs[hash.Hash(c.data)] = true
	} else if f.cfg.Minimize > 0 {
		c = f.minimizeCrasher(c)
	}
	if f.cfg.DedupStacks && c.suppression != nil && f.solutions.Suppressed(c.suppression) {
		f.stats.Suppressed.Add(1)
		return
	}
	added, err := f.solutions.Add(c.data, c.output)
	if err != nil {
		f.stats.StorageErrors.Add(1)
		log.Logf(0, "%v", err)
		return
	}
	if c.suppression != nil {
		f.solutions.Suppress(c.suppression)
	}
	if added {
		log.Logf(0, "new crasher [%v]%v hanging=%v", len(c.data), hash.String(c.data), c.hanging)
	}
}

// Close releases the executor.
func (f *Fuzzer) Close() error {
	return f.exec.Close()
}
