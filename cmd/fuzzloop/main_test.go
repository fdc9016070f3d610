// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package main

import (
	"errors"
	"os/user"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpandHomeDir(t *testing.T) {
	defer func(f func() (*user.User, error)) { currentUser = f }(currentUser)

	currentUser = func() (*user.User, error) {
		return &user.User{HomeDir: "/home/fuzz"}, nil
	}
	assert.Equal(t, filepath.Join("/home/fuzz", "corpus"), expandHomeDir("~/corpus"))
	assert.Equal(t, "corpus", expandHomeDir("corpus"))
	assert.Equal(t, "~", expandHomeDir("~"))

	currentUser = func() (*user.User, error) {
		return nil, errors.New("user: unknown userid 1234")
	}
	assert.Equal(t, "~/corpus", expandHomeDir("~/corpus"))
}
