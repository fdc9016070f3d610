// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// fuzzloop runs the coverage-guided fuzzing loop against one of the
// registered fuzz functions.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"runtime/debug"
	"sort"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/bradleyjkemp/fuzzloop/config"
	"github.com/bradleyjkemp/fuzzloop/coverage"
	"github.com/bradleyjkemp/fuzzloop/executor"
	"github.com/bradleyjkemp/fuzzloop/fuzzer"
	"github.com/bradleyjkemp/fuzzloop/log"
	"github.com/bradleyjkemp/fuzzloop/stat"

	_ "github.com/bradleyjkemp/fuzzloop/targets/decode"
)

var (
	flagConfig    = flag.String("config", "", "JSON or YAML config file")
	flagCorpus    = flag.String("corpus", "", "seed corpus directory")
	flagSolutions = flag.String("solutions", "", "directory for crashing inputs")
	flagFunc      = flag.String("func", "", "function to fuzz")
	flagExecutor  = flag.String("executor", "", "executor: inprocess or fork")
	flagTimeout   = flag.Duration("timeout", 0, "per-execution time limit")
	flagSeed      = flag.Int64("seed", 0, "random seed (0 means time-based)")
	flagDict      = flag.String("dict", "", "dictionary file")
	flagMinimize  = flag.Duration("minimize", -1, "time limit for crasher minimization")
	flagDedup     = flag.Bool("dedup", false, "keep one crasher per crash stack")
	flagMetrics   = flag.String("metrics", "", "address to serve Prometheus metrics on")
	flagV         = flag.Int("v", 0, "verbosity level")
)

func main() {
	flag.Parse()
	log.SetVerbosity(*flagV)
	name, harness, err := selectFunc(*flagFunc)
	if err != nil {
		log.Fatal(err)
	}
	// In fork mode this binary is also the testee.
	executor.RunTesteeIfRequested(harness)
	log.Logf(0, "fuzzing function %v", name)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatal(err)
	}
	debug.SetGCPercent(50) // most memory is in large binary blobs

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f, err := fuzzer.New(cfg, harness, fuzzer.Options{
		Monitor:    func(status string) { log.Logf(0, "%v", status) },
		Registerer: reg,
		TesteeArgs: []string{"-func", name},
	})
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := f.Fuzz(ctx)
		if err == nil {
			log.Logf(0, "shutting down...")
		}
		return err
	})
	if *flagMetrics != "" {
		srv := &http.Server{
			Addr:    *flagMetrics,
			Handler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		}
		g.Go(func() error {
			log.Logf(0, "serving metrics on %v", *flagMetrics)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
	err = g.Wait()
	printSummary(f.Stats().Set)
	if err != nil {
		f.Close()
		log.Fatal(err)
	}
}

func selectFunc(name string) (string, executor.Harness, error) {
	if len(coverage.FuzzFunctions) == 0 {
		return "", nil, errors.New("no functions available to fuzz")
	}
	if name == "" {
		var funcs []string
		for fname := range coverage.FuzzFunctions {
			funcs = append(funcs, fname)
		}
		sort.Strings(funcs)
		log.Logf(1, "functions available to fuzz: %v", funcs)
		name = funcs[0]
	}
	fn, ok := coverage.FuzzFunctions[name]
	if !ok {
		return "", nil, fmt.Errorf("function %v not available to fuzz", name)
	}
	return name, fn, nil
}

// loadConfig reads the config file, if any, and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if *flagConfig != "" {
		var err error
		if cfg, err = config.LoadFile(expandHomeDir(*flagConfig)); err != nil {
			return nil, err
		}
	}
	if *flagCorpus != "" {
		cfg.Corpus = *flagCorpus
	}
	if *flagSolutions != "" {
		cfg.Solutions = *flagSolutions
	}
	if *flagExecutor != "" {
		cfg.Executor = *flagExecutor
	}
	if *flagTimeout != 0 {
		cfg.Timeout = config.Duration(*flagTimeout)
	}
	if *flagSeed != 0 {
		cfg.Seed = *flagSeed
	}
	if *flagDict != "" {
		cfg.Dict = *flagDict
	}
	if *flagMinimize >= 0 {
		cfg.Minimize = config.Duration(*flagMinimize)
	}
	if *flagDedup {
		cfg.DedupStacks = true
	}
	cfg.Corpus = expandHomeDir(cfg.Corpus)
	cfg.Solutions = expandHomeDir(cfg.Solutions)
	cfg.Dict = expandHomeDir(cfg.Dict)
	return cfg, nil
}

func printSummary(stats *stat.Set) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"stat", "value", "description"})
	for _, v := range stats.Collect(stat.All) {
		table.Append([]string{v.Name, v.Value, v.Desc})
	}
	table.Render()
}

var currentUser = user.Current

// expandHomeDir expands the tilde sign and replaces it
// with current users home directory and returns it.
func expandHomeDir(path string) string {
	if len(path) > 2 && path[:2] == "~/" {
		usr, err := currentUser()
		if err != nil {
			log.Logf(0, "can't expand %v: %v", path, err)
			return path
		}
		path = filepath.Join(usr.HomeDir, path[2:])
	}
	return path
}
