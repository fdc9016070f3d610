// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadData(t *testing.T) {
	cfg, err := LoadData([]byte(`
# seeds live next to the binary
corpus: ./seeds
solutions: ./crashers
timeout: 250ms
seed: 42
scheduler: weighted
hitcounts: false
`))
	require.NoError(t, err)
	want := Default()
	want.Corpus = "./seeds"
	want.Solutions = "./crashers"
	want.Timeout = Duration(250 * time.Millisecond)
	want.Seed = 42
	want.Scheduler = SchedulerWeighted
	want.Hitcounts = false
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatal(diff)
	}
}

func TestLoadDataJSON(t *testing.T) {
	cfg, err := LoadData([]byte(`{"corpus": "in", "solutions": "out", "status_period": "1m"}`))
	require.NoError(t, err)
	assert.Equal(t, "in", cfg.Corpus)
	assert.Equal(t, time.Minute, cfg.StatusPeriod.D())
	assert.Equal(t, 10*time.Second, cfg.Timeout.D())
}

func TestLoadDataUnknownField(t *testing.T) {
	_, err := LoadData([]byte(`{"corpus": "in", "corpsu": "typo"}`))
	assert.Error(t, err)
}

func TestLoadFileMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yml")
	_, err := LoadFile(path)
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, path, cfgErr.Path)
	assert.Contains(t, err.Error(), path)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	seeds := filepath.Join(dir, "seeds")
	require.NoError(t, os.Mkdir(seeds, 0755))
	valid := func() *Config {
		cfg := Default()
		cfg.Corpus = seeds
		cfg.Solutions = filepath.Join(dir, "solutions")
		return cfg
	}

	require.NoError(t, valid().Validate())
	assert.DirExists(t, filepath.Join(dir, "solutions"))
	entries, err := os.ReadDir(filepath.Join(dir, "solutions"))
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file must be removed")

	tests := []struct {
		field  string
		mutate func(cfg *Config)
	}{
		{"corpus", func(cfg *Config) { cfg.Corpus = "" }},
		{"corpus", func(cfg *Config) { cfg.Corpus = filepath.Join(dir, "nope") }},
		{"solutions", func(cfg *Config) { cfg.Solutions = "" }},
		{"executor", func(cfg *Config) { cfg.Executor = "vm" }},
		{"scheduler", func(cfg *Config) { cfg.Scheduler = "lifo" }},
		{"timeout", func(cfg *Config) { cfg.Timeout = 0 }},
		{"max_stack", func(cfg *Config) { cfg.MaxStack = 0 }},
		{"max_input_size", func(cfg *Config) { cfg.MaxInputSize = 0 }},
		{"dict", func(cfg *Config) { cfg.Dict = filepath.Join(dir, "nope.dict") }},
	}
	for _, test := range tests {
		cfg := valid()
		test.mutate(cfg)
		err := cfg.Validate()
		var cfgErr *Error
		if assert.True(t, errors.As(err, &cfgErr), "field %v: %v", test.field, err) {
			assert.Equal(t, test.field, cfgErr.Field)
		}
	}
}

func TestValidateSolutionsIsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0644))
	cfg := Default()
	cfg.Corpus = dir
	cfg.Solutions = file
	err := cfg.Validate()
	var cfgErr *Error
	require.True(t, errors.As(err, &cfgErr))
	assert.Equal(t, file, cfgErr.Path)
}
