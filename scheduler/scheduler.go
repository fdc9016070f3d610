// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

// Package scheduler picks the corpus entry to mutate next.
package scheduler

import (
	"errors"

	"github.com/bradleyjkemp/fuzzloop/corpus"
)

var ErrEmptyCorpus = errors.New("scheduler: corpus is empty")

type Scheduler interface {
	// Next returns the id of the entry to mutate next.
	Next(c *corpus.Corpus) (int, error)
}

// Queue cycles through the corpus in admission order and wraps around
// to the oldest entry after the newest one.
type Queue struct {
	next int
}

func NewQueue() *Queue {
	return &Queue{}
}

func (q *Queue) Next(c *corpus.Corpus) (int, error) {
	n := c.Len()
	if n == 0 {
		return 0, ErrEmptyCorpus
	}
	id := q.next % n
	q.next = id + 1
	return id, nil
}
