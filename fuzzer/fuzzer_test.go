// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package fuzzer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bradleyjkemp/fuzzloop/config"
	"github.com/bradleyjkemp/fuzzloop/corpus"
	"github.com/bradleyjkemp/fuzzloop/coverage"
	"github.com/bradleyjkemp/fuzzloop/executor"
	"github.com/bradleyjkemp/fuzzloop/feedback"
	"github.com/bradleyjkemp/fuzzloop/hash"
)

// lengthHarness panics iff the input is longer than 4 bytes.
func lengthHarness(data []byte) int {
	coverage.Hit(uint32(len(data)))
	for _, b := range data {
		coverage.Hit(1000 + uint32(b))
	}
	if len(data) > 4 {
		panic(fmt.Sprintf("input too long: %v", len(data)))
	}
	return 0
}

func testConfig(t *testing.T, seeds ...string) *config.Config {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Corpus = filepath.Join(dir, "seeds")
	cfg.Solutions = filepath.Join(dir, "solutions")
	cfg.Seed = 1
	cfg.Timeout = config.Duration(time.Second)
	require.NoError(t, os.Mkdir(cfg.Corpus, 0755))
	for i, seed := range seeds {
		require.NoError(t, os.WriteFile(filepath.Join(cfg.Corpus, fmt.Sprint(i)), []byte(seed), 0644))
	}
	return cfg
}

func newFuzzer(t *testing.T, cfg *config.Config, harness executor.Harness, opts Options) *Fuzzer {
	f, err := New(cfg, harness, opts)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	assert.Equal(t, Initializing, f.State())
	return f
}

func solutionFiles(t *testing.T, dir string) []string {
	infos, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, info := range infos {
		names = append(names, info.Name())
	}
	return names
}

func TestSeedThenCrash(t *testing.T) {
	cfg := testConfig(t, "AAAA")
	f := newFuzzer(t, cfg, lengthHarness, Options{})
	require.NoError(t, f.LoadSeeds())
	assert.Equal(t, Running, f.State())
	require.Equal(t, 1, f.Corpus().Len())
	assert.Equal(t, []byte("AAAA"), f.Corpus().Get(0))
	assert.True(t, f.Corpus().Entry(0).Seed)
	assert.Equal(t, 2, f.History().Covered())

	for i := 0; i < 2; i++ {
		require.NoError(t, f.testInput([]byte("AAAAA"), 1))
		f.processCrashers()
	}
	assert.Equal(t, []string{hash.String([]byte("AAAAA"))}, solutionFiles(t, cfg.Solutions))
	data, err := os.ReadFile(filepath.Join(cfg.Solutions, hash.String([]byte("AAAAA"))))
	require.NoError(t, err)
	assert.Equal(t, []byte("AAAAA"), data)
	assert.Equal(t, 1, f.Solutions().Len())
	assert.Equal(t, 2, f.Stats().Crashes.Val())
	for id := 0; id < f.Corpus().Len(); id++ {
		assert.LessOrEqual(t, len(f.Corpus().Get(id)), 4, "crashers must not enter the corpus")
	}
}

func TestRunFindsCrash(t *testing.T) {
	cfg := testConfig(t, "AAAA")
	cfg.DedupStacks = true
	f := newFuzzer(t, cfg, lengthHarness, Options{})
	require.NoError(t, f.LoadSeeds())
	for i := 0; i < 5000; i++ {
		require.NoError(t, f.FuzzOne())
	}
	// All crashes share one stack, so only the first one is kept.
	files := solutionFiles(t, cfg.Solutions)
	require.Len(t, files, 1)
	data, err := os.ReadFile(filepath.Join(cfg.Solutions, files[0]))
	require.NoError(t, err)
	assert.Greater(t, len(data), 4)
	assert.Greater(t, f.Stats().Suppressed.Val(), 0)
	assert.Greater(t, f.Corpus().Len(), 1, "shorter inputs add coverage")
	for id := 0; id < f.Corpus().Len(); id++ {
		assert.LessOrEqual(t, len(f.Corpus().Get(id)), 4)
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	run := func() [][]byte {
		cfg := testConfig(t, "AAAA", "AB")
		f := newFuzzer(t, cfg, lengthHarness, Options{})
		require.NoError(t, f.LoadSeeds())
		for i := 0; i < 500; i++ {
			require.NoError(t, f.FuzzOne())
		}
		var res [][]byte
		for id := 0; id < f.Corpus().Len(); id++ {
			res = append(res, f.Corpus().Get(id))
		}
		return res
	}
	assert.Equal(t, run(), run())
}

func TestEmptySeedDir(t *testing.T) {
	cfg := testConfig(t)
	called := false
	f := newFuzzer(t, cfg, func(data []byte) int {
		called = true
		return 0
	}, Options{})
	err := f.LoadSeeds()
	assert.True(t, errors.Is(err, ErrNoSeeds), "%v", err)
	assert.Contains(t, err.Error(), cfg.Corpus)
	assert.False(t, called, "harness must not run")
	assert.Equal(t, Fatal, f.State())
	assert.Error(t, f.Run(context.Background()))
}

func TestAllSeedsRejected(t *testing.T) {
	cfg := testConfig(t, "a", "b")
	f := newFuzzer(t, cfg, func(data []byte) int { return -1 }, Options{})
	err := f.LoadSeeds()
	assert.True(t, errors.Is(err, ErrNoSeeds), "%v", err)
	var seedErr *corpus.SeedError
	require.True(t, errors.As(err, &seedErr))
	assert.Equal(t, filepath.Join(cfg.Corpus, "0"), seedErr.Path)
	assert.Equal(t, 2, f.Stats().Rejected.Val())
}

func TestCrashingSeed(t *testing.T) {
	cfg := testConfig(t, "AAAAAA", "AA", "AA")
	f := newFuzzer(t, cfg, lengthHarness, Options{})
	require.NoError(t, f.LoadSeeds())
	assert.Equal(t, 1, f.Corpus().Len(), "duplicate and crashing seeds are not admitted")
	assert.Equal(t, []string{hash.String([]byte("AAAAAA"))}, solutionFiles(t, cfg.Solutions))
	assert.Equal(t, 2, f.Stats().Execs.Val())
}

func TestConfigError(t *testing.T) {
	cfg := testConfig(t, "x")
	cfg.Solutions = filepath.Join(cfg.Corpus, "0") // a file
	_, err := New(cfg, lengthHarness, Options{})
	var cfgErr *config.Error
	require.True(t, errors.As(err, &cfgErr), "%v", err)
	assert.Equal(t, cfg.Solutions, cfgErr.Path)

	cfg = testConfig(t, "x")
	cfg.Dict = filepath.Join(cfg.Corpus, "0")
	require.NoError(t, os.WriteFile(cfg.Dict, []byte("not a token\n"), 0644))
	_, err = New(cfg, lengthHarness, Options{})
	require.True(t, errors.As(err, &cfgErr), "%v", err)
	assert.Equal(t, "dict", cfgErr.Field)
}

func TestRunStops(t *testing.T) {
	cfg := testConfig(t, "AAAA")
	cfg.StatusPeriod = config.Duration(10 * time.Millisecond)
	var status []string
	f := newFuzzer(t, cfg, lengthHarness, Options{
		Monitor: func(s string) { status = append(status, s) },
	})
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	require.NoError(t, f.Fuzz(ctx))
	assert.Equal(t, Stopped, f.State())
	require.NotEmpty(t, status)
	last := status[len(status)-1]
	assert.True(t, strings.HasPrefix(last, fmt.Sprintf("corpus: %v ", f.Corpus().Len())), last)
	assert.Contains(t, last, "execs: ")
	assert.Greater(t, f.Stats().Execs.Val(), 1)

	ui := f.Stats().Set.Collect(0)
	names := make(map[string]bool)
	for _, v := range ui {
		names[v.Name] = true
	}
	assert.True(t, names["execs"] && names["corpus"] && names["cover"], "%v", names)
}

func TestMinimizeCrasher(t *testing.T) {
	cfg := testConfig(t, "seed")
	cfg.Minimize = config.Duration(5 * time.Second)
	cfg.SaveCrashOutput = true
	f := newFuzzer(t, cfg, func(data []byte) int {
		if bytes.Contains(data, []byte("BUG")) {
			panic("found the bug")
		}
		return 0
	}, Options{})
	require.NoError(t, f.LoadSeeds())
	require.NoError(t, f.testInput([]byte("xxBUGyy"), 1))
	f.processCrashers()
	sig := hash.String([]byte("BUG"))
	assert.ElementsMatch(t, []string{sig, sig + ".output", sig + ".quoted"}, solutionFiles(t, cfg.Solutions))
	output, err := os.ReadFile(filepath.Join(cfg.Solutions, sig+".output"))
	require.NoError(t, err)
	assert.Contains(t, string(output), "panic: found the bug")
}

func TestTimeouts(t *testing.T) {
	hang := func(data []byte) int {
		if string(data) == "hang" {
			time.Sleep(300 * time.Millisecond)
		}
		return 0
	}
	cfg := testConfig(t, "seed")
	cfg.Timeout = config.Duration(50 * time.Millisecond)
	f := newFuzzer(t, cfg, hang, Options{})
	require.NoError(t, f.LoadSeeds())
	require.NoError(t, f.testInput([]byte("hang"), 1))
	require.NoError(t, f.testInput([]byte("hang"), 1))
	assert.Equal(t, 1, f.Stats().Timeouts.Val(), "timed out inputs are not run again")
	f.processCrashers()
	assert.Empty(t, solutionFiles(t, cfg.Solutions), "timeouts are not objectives by default")

	cfg = testConfig(t, "seed")
	cfg.Timeout = config.Duration(50 * time.Millisecond)
	f = newFuzzer(t, cfg, hang, Options{Objective: feedback.Any{feedback.Crash{}, feedback.Timeout{}}})
	require.NoError(t, f.LoadSeeds())
	require.NoError(t, f.testInput([]byte("hang"), 1))
	f.processCrashers()
	assert.Equal(t, []string{hash.String([]byte("hang"))}, solutionFiles(t, cfg.Solutions))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestTimeoutCoverage(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	harness := func(data []byte) int {
		if string(data) == "slow" {
			coverage.Hit(4242)
			<-release
			return 0
		}
		for _, b := range data {
			coverage.Hit(uint32(b))
		}
		return 0
	}
	cfg := testConfig(t, "seed")
	cfg.Timeout = config.Duration(30 * time.Millisecond)
	f := newFuzzer(t, cfg, harness, Options{})
	require.NoError(t, f.LoadSeeds())
	covered := f.History().Covered()

	// A timeout that is not an objective is evaluated like a slow normal run.
	require.NoError(t, f.testInput([]byte("slow"), 1))
	assert.Equal(t, 1, f.Stats().Timeouts.Val())
	assert.Equal(t, byte(1), f.History().Bucket(4242))
	assert.Equal(t, covered+1, f.History().Covered())
	require.Equal(t, 2, f.Corpus().Len())
	assert.Equal(t, []byte("slow"), f.Corpus().Get(1))
	assert.Equal(t, []int{4242}, f.Corpus().Entry(1).Signal)

	// The harness of "slow" is still running, coverage of other runs can't be trusted.
	require.NoError(t, f.testInput([]byte("other"), 1))
	assert.Equal(t, 2, f.Corpus().Len())
	assert.Equal(t, byte(0), f.History().Bucket('o'))

	release <- struct{}{}
	exec := f.exec.(*executor.InProcess)
	assert.Eventually(t, func() bool { return exec.Stuck() == 0 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, f.testInput([]byte("other"), 1))
	require.Equal(t, 3, f.Corpus().Len())
	assert.Equal(t, byte(1), f.History().Bucket('o'))
	assert.Equal(t, []int{'h', 'o', 'r', 't'}, f.Corpus().Entry(2).Signal)

	// Timed out inputs are not run again.
	require.NoError(t, f.testInput([]byte("slow"), 1))
	assert.Equal(t, 1, f.Stats().Timeouts.Val())
}

func TestDuplicateKeepsHistory(t *testing.T) {
	n := uint32(0)
	flaky := func(data []byte) int {
		n++
		coverage.Hit(n)
		return 0
	}
	cfg := testConfig(t, "a")
	f := newFuzzer(t, cfg, flaky, Options{})
	require.NoError(t, f.LoadSeeds())
	require.Equal(t, 1, f.History().Covered())

	require.NoError(t, f.testInput([]byte("a"), 1))
	assert.Equal(t, 1, f.History().Covered())
	assert.Equal(t, byte(0), f.History().Bucket(2))
	assert.Equal(t, 1, f.Corpus().Len())
}

func TestUnreadableSeeds(t *testing.T) {
	cfg := testConfig(t)
	link := filepath.Join(cfg.Corpus, "link")
	if err := os.Symlink(filepath.Join(cfg.Corpus, "nowhere"), link); err != nil {
		t.Skipf("symlinks are not supported: %v", err)
	}
	f := newFuzzer(t, cfg, lengthHarness, Options{})
	err := f.LoadSeeds()
	assert.True(t, errors.Is(err, ErrNoSeeds), "%v", err)
	var seedErr *corpus.SeedError
	require.True(t, errors.As(err, &seedErr), "%v", err)
	assert.Equal(t, link, seedErr.Path)
	assert.Equal(t, Fatal, f.State())
}
