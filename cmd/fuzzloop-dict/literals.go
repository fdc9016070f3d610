// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"fmt"
	"go/ast"
	"go/token"
	"strconv"

	"golang.org/x/tools/go/packages"
)

func (c *Context) gatherLiterals(targets []*packages.Package, isIgnored func(string) bool) ([]string, error) {
	nolits := map[string]bool{
		"math":    true,
		"os":      true,
		"unicode": true,
	}

	lc := newLiteralCollector()
	visit := func(pkg *packages.Package) {
		if isIgnored(pkg.PkgPath) || nolits[pkg.PkgPath] {
			return
		}
		for _, f := range pkg.Syntax {
			ast.Walk(lc, f)
		}
	}
	packages.Visit(targets, nil, visit)
	return lc.list()
}

// LiteralCollector gathers quoted literals worth trying as dictionary tokens.
// Integer literals are encoded as little-endian bytes of the smallest fitting width.
type LiteralCollector struct {
	lits map[string]struct{}
	err  error
}

func newLiteralCollector() *LiteralCollector {
	return &LiteralCollector{lits: make(map[string]struct{})}
}

func (lc *LiteralCollector) list() ([]string, error) {
	if lc.err != nil {
		return nil, lc.err
	}
	res := make([]string, 0, len(lc.lits))
	for lit := range lc.lits {
		res = append(res, lit)
	}
	return res, nil
}

func (lc *LiteralCollector) Visit(n ast.Node) (w ast.Visitor) {
	switch nn := n.(type) {
	default:
		return lc // recurse
	case *ast.ImportSpec:
		return nil
	case *ast.Field:
		return nil // ignore field tags
	case *ast.CallExpr:
		switch fn := nn.Fun.(type) {
		case *ast.Ident:
			if fn.Name == "panic" {
				return nil
			}
		case *ast.SelectorExpr:
			if id, ok := fn.X.(*ast.Ident); ok && (id.Name == "fmt" || id.Name == "errors") {
				return nil
			}
		}
		return lc
	case *ast.BasicLit:
		lit := nn.Value
		switch nn.Kind {
		case token.CHAR:
			r, _, _, err := strconv.UnquoteChar(lit[1:len(lit)-1], '\'')
			if err != nil {
				lc.fail(fmt.Errorf("failed to parse char literal %v: %w", lit, err))
				return nil
			}
			lc.add(string(r))
		case token.STRING:
			s, err := strconv.Unquote(lit)
			if err != nil {
				lc.fail(fmt.Errorf("failed to parse string literal %v: %w", lit, err))
				return nil
			}
			lc.add(s)
		case token.INT:
			v, err := strconv.ParseInt(lit, 0, 64)
			if err != nil {
				u, err := strconv.ParseUint(lit, 0, 64)
				if err != nil {
					lc.fail(fmt.Errorf("failed to parse int literal %v: %w", lit, err))
					return nil
				}
				v = int64(u)
			}
			var val []byte
			if v >= -(1<<7) && v < 1<<8 {
				val = append(val, byte(v))
			} else if v >= -(1<<15) && v < 1<<16 {
				val = append(val, byte(v), byte(v>>8))
			} else if v >= -(1<<31) && v < 1<<32 {
				val = append(val, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			} else {
				val = append(val, byte(v), byte(v>>8), byte(v>>16), byte(v>>24), byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
			}
			lc.add(string(val))
		}
		return nil
	}
}

func (lc *LiteralCollector) add(s string) {
	if s == "" {
		return
	}
	lc.lits[strconv.Quote(s)] = struct{}{}
}

func (lc *LiteralCollector) fail(err error) {
	if lc.err == nil {
		lc.err = err
	}
}
