// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package executor_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bradleyjkemp/fuzzloop/coverage"
	"github.com/bradleyjkemp/fuzzloop/executor"
)

func parseLength(data []byte) int {
	return int(data[0])
}

func checkIndex(data []byte) int {
	n := parseLength(data)
	return int(data[n])
}

func divide(data []byte) int {
	zero := len(data) - len(data)
	return int(data[0]) / zero
}

func target(data []byte) int {
	if data[0] == 'd' {
		return divide(data)
	}
	return checkIndex(data)
}

func crashOutput(t *testing.T, data string) []byte {
	e := executor.NewInProcess(target, coverage.NewMap(true), time.Second, 0)
	res, err := e.Run([]byte(data))
	require.NoError(t, err)
	require.Equal(t, executor.Crash, res.Kind)
	return res.Output
}

func TestSuppression(t *testing.T) {
	// Same bug with different panic messages.
	a := executor.Suppression(crashOutput(t, "\x10"))
	b := executor.Suppression(crashOutput(t, "\x20abc"))
	assert.Equal(t, string(a), string(b))
	lines := strings.Split(string(a), "\n")
	require.Len(t, lines, 3, "%s", a)
	assert.Contains(t, lines[0], "crash_test.go")
	assert.Equal(t, "executor_test.checkIndex", lines[1])
	assert.Equal(t, "executor_test.target", lines[2])

	c := executor.Suppression(crashOutput(t, "d"))
	assert.NotEqual(t, string(a), string(c))
	assert.Contains(t, string(c), "executor_test.divide")
}

func TestSuppressionUnparsable(t *testing.T) {
	out := []byte("fatal error: something odd\n")
	assert.Equal(t, out, executor.Suppression(out))
}
