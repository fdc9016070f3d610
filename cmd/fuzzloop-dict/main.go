// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// fuzzloop-dict extracts string, character and integer literals from a Go
// package and its non-standard dependencies into a dictionary for the mutator.
//
//	fuzzloop-dict -o decode.dict ./targets/decode
package main

import (
	"bufio"
	"flag"
	"fmt"
	"go/types"
	"io"
	"os"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/tools/go/packages"
)

var (
	flagOut      = flag.String("o", "", "output file (default stdout)")
	flagPreserve = flag.String("preserve", "", "a comma-separated list of import paths to skip")
)

func main() {
	flag.Parse()
	if flag.NArg() > 1 {
		failf("usage: fuzzloop-dict [-o file] [pkg]")
	}
	pkg := "."
	if flag.NArg() == 1 {
		pkg = flag.Arg(0)
	}
	c := new(Context)
	if err := c.loadPkg(pkg); err != nil {
		failf("%v", err)
	}
	if err := c.loadStd(); err != nil {
		failf("%v", err)
	}
	c.calcIgnore()
	for _, fn := range c.fuzzFuncs() {
		fmt.Fprintf(os.Stderr, "found fuzz function %v\n", fn)
	}
	lits, err := c.gatherLiterals(c.targetPackages, c.isIgnored)
	if err != nil {
		failf("%v", err)
	}
	out := io.Writer(os.Stdout)
	if *flagOut != "" {
		f, err := os.Create(*flagOut)
		if err != nil {
			failf("failed to create output: %v", err)
		}
		defer f.Close()
		out = f
	}
	if err := writeDictionary(out, pkg, lits); err != nil {
		failf("failed to write dictionary: %v", err)
	}
}

// Context holds state for one extraction run.
type Context struct {
	targetPackages []*packages.Package // typechecked root packages

	std    map[string]bool // set of packages in the standard library
	ignore map[string]bool // set of packages to skip
}

// basePackagesConfig returns a base golang.org/x/tools/go/packages.Config
// that clients can then modify and use for calls to go/packages.
func basePackagesConfig() *packages.Config {
	cfg := new(packages.Config)
	cfg.Env = os.Environ()
	return cfg
}

// loadPkg loads, parses, and typechecks pkg and its dependencies.
func (c *Context) loadPkg(pkg string) error {
	cfg := basePackagesConfig()
	cfg.Mode = packages.NeedName | packages.NeedImports | packages.NeedDeps |
		packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo
	var err error
	c.targetPackages, err = packages.Load(cfg, pkg)
	if err != nil {
		return fmt.Errorf("could not load packages: %w", err)
	}
	if packages.PrintErrors(c.targetPackages) > 0 {
		return fmt.Errorf("typechecking of %v failed", pkg)
	}
	return nil
}

// loadStd finds the set of standard library package paths.
func (c *Context) loadStd() error {
	cfg := basePackagesConfig()
	cfg.Mode = packages.NeedName
	stdpkgs, err := packages.Load(cfg, "std")
	if err != nil {
		return fmt.Errorf("could not load standard library: %w", err)
	}
	c.std = make(map[string]bool, len(stdpkgs))
	for _, p := range stdpkgs {
		c.std[p.PkgPath] = true
	}
	return nil
}

// calcIgnore skips the standard library, the fuzzer itself and -preserve packages.
func (c *Context) calcIgnore() {
	c.ignore = make(map[string]bool)
	for pkg := range c.std {
		c.ignore[pkg] = true
	}
	for _, pkg := range []string{
		"github.com/bradleyjkemp/fuzzloop/coverage",
		"github.com/bradleyjkemp/fuzzloop/executor",
	} {
		c.ignore[pkg] = true
	}
	if *flagPreserve != "" {
		for _, pkg := range strings.Split(*flagPreserve, ",") {
			c.ignore[strings.TrimSpace(pkg)] = true
		}
	}
}

func (c *Context) isIgnored(pkg string) bool {
	return strings.HasPrefix(pkg, "internal/") ||
		strings.HasPrefix(pkg, "runtime/") ||
		c.ignore[pkg]
}

// fuzzFuncs lists functions of the root packages that look like harnesses.
func (c *Context) fuzzFuncs() []string {
	var res []string
	for _, pkg := range c.targetPackages {
		if pkg.Types == nil {
			continue
		}
		scope := pkg.Types.Scope()
		for _, name := range scope.Names() {
			fn, ok := scope.Lookup(name).(*types.Func)
			if !ok || !isFuzzFuncName(name) || !isFuzzSig(fn.Type().(*types.Signature)) {
				continue
			}
			res = append(res, pkg.PkgPath+"."+name)
		}
	}
	return res
}

// isFuzzSig reports whether sig is of the form
//
//	func FuzzFunc(data []byte) int
func isFuzzSig(sig *types.Signature) bool {
	return sig.Params().Len() == 1 && sig.Params().At(0).Type().String() == "[]byte" &&
		sig.Results().Len() == 1 && sig.Results().At(0).Type().String() == "int"
}

func isFuzzFuncName(name string) bool {
	return isTest(name, "Fuzz")
}

// isTest tells whether name looks like a test (or benchmark, according to prefix).
// It is a Test (say) if there is a character after Test that is not a lower-case letter.
// We don't want TesticularCancer.
func isTest(name, prefix string) bool {
	if !strings.HasPrefix(name, prefix) {
		return false
	}
	if len(name) == len(prefix) { // "Test" is ok
		return true
	}
	r, _ := utf8.DecodeRuneInString(name[len(prefix):])
	return !unicode.IsLower(r)
}

// writeDictionary writes one quoted token per line, sorted.
func writeDictionary(w io.Writer, pkg string, lits []string) error {
	sort.Strings(lits)
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "# literals of %v\n", pkg)
	for _, lit := range lits {
		fmt.Fprintln(bw, lit)
	}
	return bw.Flush()
}

func failf(str string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, str+"\n", args...)
	os.Exit(1)
}
