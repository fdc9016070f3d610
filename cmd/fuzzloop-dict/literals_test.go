// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"bytes"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bradleyjkemp/fuzzloop/mutator"
)

const src = `package target

import "errors"

type header struct {
	Magic uint32 ` + "`json:\"magic\"`" + `
}

func parse(data []byte) error {
	if string(data[:4]) != "GIF8" {
		return errors.New("bad magic")
	}
	if data[4] == '%' && len(data) > 0x1234 {
		panic("too long")
	}
	_ = 0xdeadbeef
	return nil
}
`

func collect(t *testing.T) []string {
	f, err := parser.ParseFile(token.NewFileSet(), "target.go", src, 0)
	require.NoError(t, err)
	lc := newLiteralCollector()
	ast.Walk(lc, f)
	lits, err := lc.list()
	require.NoError(t, err)
	sort.Strings(lits)
	return lits
}

func TestLiteralCollector(t *testing.T) {
	assert.Equal(t, []string{
		`"%"`,
		`"4\x12"`,
		`"GIF8"`,
		`"\x04"`,
		`"\xef\xbe\xad\xde"`,
	}, collect(t))
}

func TestDictionaryRoundTrip(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, writeDictionary(buf, "target", collect(t)))
	dict, err := mutator.ParseDictionary(buf.Bytes())
	require.NoError(t, err)
	assert.Len(t, dict, 5)
	assert.Contains(t, dict, []byte("GIF8"))
	assert.Contains(t, dict, []byte{0xef, 0xbe, 0xad, 0xde})
}

func TestIsFuzzFuncName(t *testing.T) {
	assert.True(t, isFuzzFuncName("Fuzz"))
	assert.True(t, isFuzzFuncName("FuzzDecode"))
	assert.False(t, isFuzzFuncName("Fuzzy"))
	assert.False(t, isFuzzFuncName("Decode"))
}
