// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package mutator

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type inputs [][]byte

func (in inputs) Len() int          { return len(in) }
func (in inputs) Get(id int) []byte { return in[id] }

func TestMutateDeterministic(t *testing.T) {
	m := New(16, 1<<10, [][]byte{[]byte("MAGIC")})
	src := inputs{[]byte("hello world"), []byte("0123456789")}
	for seed := int64(0); seed < 50; seed++ {
		r1 := rand.New(rand.NewSource(seed))
		r2 := rand.New(rand.NewSource(seed))
		data := []byte("AAAA")
		for i := 0; i < 20; i++ {
			a := m.Mutate(r1, data, src)
			b := m.Mutate(r2, data, src)
			require.Equal(t, a, b, "seed %v iter %v", seed, i)
			data = a
		}
	}
}

func TestMutateNeverEmpty(t *testing.T) {
	m := New(16, 64, nil)
	r := rand.New(rand.NewSource(1))
	src := inputs{[]byte("x")}
	for i := 0; i < 20000; i++ {
		data := make([]byte, 1+i%5)
		res := m.Mutate(r, data, src)
		require.NotEmpty(t, res)
		require.LessOrEqual(t, len(res), 64)
	}
	assert.NotEmpty(t, m.Mutate(r, nil, nil))
}

func TestMutateDoesNotModifyInput(t *testing.T) {
	m := New(16, 1<<10, nil)
	r := rand.New(rand.NewSource(3))
	data := []byte("original input")
	for i := 0; i < 1000; i++ {
		m.Mutate(r, data, inputs{data})
	}
	assert.Equal(t, []byte("original input"), data)
}

func TestMutateChangesInput(t *testing.T) {
	m := New(1, 1<<10, nil)
	r := rand.New(rand.NewSource(5))
	changed := 0
	for i := 0; i < 1000; i++ {
		if !bytes.Equal(m.Mutate(r, []byte("AAAA"), nil), []byte("AAAA")) {
			changed++
		}
	}
	assert.Greater(t, changed, 990)
}

func TestMutateReachesLongerInputs(t *testing.T) {
	m := New(16, 1<<10, nil)
	r := rand.New(rand.NewSource(9))
	found := false
	for i := 0; i < 1000 && !found; i++ {
		found = len(m.Mutate(r, []byte("AAAA"), nil)) > 4
	}
	assert.True(t, found)
}

func TestMutateUsesDictionary(t *testing.T) {
	m := New(1, 1<<10, [][]byte{[]byte("TOKEN")})
	r := rand.New(rand.NewSource(11))
	found := false
	for i := 0; i < 2000 && !found; i++ {
		found = bytes.Contains(m.Mutate(r, []byte("xxxxxxxx"), nil), []byte("TOKEN"))
	}
	assert.True(t, found)
}

func TestParseDictionary(t *testing.T) {
	dict, err := ParseDictionary([]byte(`
# comment
"foo"
kw_bar="bar\x00"
	` + "`raw`" + `
"foo"
""
`))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("foo"), []byte("bar\x00"), []byte("raw")}, dict)

	_, err = ParseDictionary([]byte("unquoted\n"))
	assert.Error(t, err)
	_, err = ParseDictionary([]byte(`"unterminated`))
	assert.Error(t, err)
}

func TestLoadDictionary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.dict")
	require.NoError(t, os.WriteFile(path, []byte("\"GET\"\n\"POST\"\n"), 0644))
	dict, err := LoadDictionary(path)
	require.NoError(t, err)
	assert.Len(t, dict, 2)
	_, err = LoadDictionary(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
