// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"fmt"
	"time"

	"github.com/bradleyjkemp/fuzzloop/executor"
	"github.com/bradleyjkemp/fuzzloop/stat"
)

// Stats are the counters of one fuzzer instance.
type Stats struct {
	Set *stat.Set

	Execs         *stat.Val
	NewInputs     *stat.Val
	Crashes       *stat.Val
	Timeouts      *stat.Val
	Rejected      *stat.Val
	Objectives    *stat.Val
	Suppressed    *stat.Val
	StorageErrors *stat.Val
	ExecTime      *stat.Val
}

func (f *Fuzzer) initStats() {
	s := stat.NewSet(f.opts.Registerer)
	f.stats = &Stats{
		Set: s,
		Execs: s.New("execs", "Total executions of the harness",
			stat.Console, stat.Rate{}, stat.Prometheus("fuzzloop_execs_total")),
		NewInputs: s.New("new inputs", "Mutated inputs admitted to the corpus",
			stat.Simple, stat.Prometheus("fuzzloop_new_inputs_total")),
		Crashes: s.New("crashes", "Executions that crashed",
			stat.Simple, stat.Prometheus("fuzzloop_crashes_total")),
		Timeouts: s.New("timeouts", "Executions that exceeded the time limit",
			stat.Simple, stat.Prometheus("fuzzloop_timeouts_total")),
		Rejected: s.New("rejected", "Inputs rejected by the harness", stat.All),
		Objectives: s.New("objectives", "Objective executions, including duplicates",
			stat.All, stat.Prometheus("fuzzloop_objective_execs_total")),
		Suppressed: s.New("suppressed", "Objectives dropped because their crash stack was already saved",
			stat.All),
		StorageErrors: s.New("storage errors", "Objectives that could not be written",
			stat.All, stat.Prometheus("fuzzloop_storage_errors_total")),
		ExecTime: s.New("exec time", "Execution time in microseconds",
			stat.Simple, stat.Distribution{}, func(v int, period time.Duration) string {
				return fmt.Sprintf("%vus", v)
			}),
	}
	s.New("corpus", "Inputs in the in-memory corpus",
		stat.Console, func() int { return f.corpus.Len() }, stat.Prometheus("fuzzloop_corpus_size"))
	s.New("crashers", "Inputs in the solutions directory",
		stat.Console, func() int { return f.solutions.Len() }, stat.Prometheus("fuzzloop_solutions"))
	s.New("cover", "Edges covered by corpus inputs",
		stat.Console, func() int { return f.history.Covered() }, stat.Prometheus("fuzzloop_cover"))
	if p, ok := f.exec.(*executor.Process); ok {
		s.New("restarts", "Testee process starts",
			stat.Simple, func() int { return p.Restarts }, stat.Prometheus("fuzzloop_testee_restarts"))
	}
}

// status formats the periodic status line.
func (f *Fuzzer) status() string {
	execs := f.stats.Execs.Val()
	uptime := time.Since(f.startTime)
	restarts := ""
	if p, ok := f.exec.(*executor.Process); ok && p.Restarts != 0 {
		restarts = fmt.Sprintf(" restarts: 1/%v,", execs/p.Restarts)
	}
	return fmt.Sprintf("corpus: %v (%v ago), crashers: %v,%v"+
		" execs: %v (%.0f/sec), cover: %v, uptime: %v",
		f.corpus.Len(), time.Since(f.lastInput).Truncate(time.Second),
		f.solutions.Len(), restarts, execs,
		float64(execs)*1e9/float64(max(uptime, time.Nanosecond)), f.history.Covered(),
		uptime.Truncate(time.Second),
	)
}

func (f *Fuzzer) broadcastStats(force bool) {
	if f.monitor == nil {
		return
	}
	if !force && time.Since(f.lastStatus) < f.cfg.StatusPeriod.D() {
		return
	}
	f.lastStatus = time.Now()
	f.monitor(f.status())
}
