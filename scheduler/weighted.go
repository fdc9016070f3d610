// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package scheduler

import (
	"math/rand"
	"sort"
	"time"

	"github.com/bradleyjkemp/fuzzloop/corpus"
)

const (
	minScore = 1.0
	maxScore = 1000.0
	defScore = 10.0

	// Scores are recalculated after this many picks even if the corpus did not grow,
	// so that fuzzing counts are taken into account.
	rescoreEvery = 1000
)

// Weighted picks entries at random with probability proportional to a score
// that favors fast, high-coverage, deep and rarely fuzzed entries.
type Weighted struct {
	rnd             *rand.Rand
	runningScoreSum []int
	scoredLen       int
	picks           int
}

func NewWeighted(rnd *rand.Rand) *Weighted {
	return &Weighted{rnd: rnd}
}

func (w *Weighted) Next(c *corpus.Corpus) (int, error) {
	n := c.Len()
	if n == 0 {
		return 0, ErrEmptyCorpus
	}
	if n != w.scoredLen || w.picks >= rescoreEvery {
		w.updateScores(c)
	}
	w.picks++
	total := w.runningScoreSum[n-1]
	x := w.rnd.Intn(total)
	id := sort.Search(n, func(i int) bool { return w.runningScoreSum[i] > x })
	return id, nil
}

func (w *Weighted) updateScores(c *corpus.Corpus) {
	n := c.Len()
	var sumExecTime time.Duration
	sumCover := 0
	for id := 0; id < n; id++ {
		e := c.Entry(id)
		sumExecTime += e.ExecTime
		sumCover += e.Cover
	}
	avgExecTime := sumExecTime / time.Duration(n)
	avgCover := float64(sumCover) / float64(n)

	w.runningScoreSum = w.runningScoreSum[:0]
	sum := 0
	for id := 0; id < n; id++ {
		sum += int(score(c.Entry(id), avgExecTime, avgCover))
		w.runningScoreSum = append(w.runningScoreSum, sum)
	}
	w.scoredLen = n
	w.picks = 0
}

func score(e *corpus.Entry, avgExecTime time.Duration, avgCover float64) float64 {
	score := defScore
	// Execution time multiplier 0.1-3x.
	switch t := e.ExecTime; {
	case avgExecTime == 0:
	case t*10 <= avgExecTime:
		score *= 3
	case t*4 <= avgExecTime:
		score *= 2
	case t*2 <= avgExecTime:
		score *= 1.5
	case t >= avgExecTime*10:
		score *= 0.1
	case t >= avgExecTime*4:
		score *= 0.25
	case t >= avgExecTime*2:
		score *= 0.5
	}
	// Coverage size multiplier 0.25-3x.
	switch cover := float64(e.Cover); {
	case avgCover == 0:
	case cover >= avgCover*3:
		score *= 3
	case cover >= avgCover*2:
		score *= 2
	case cover >= avgCover*1.5:
		score *= 1.5
	case cover*3 <= avgCover:
		score *= 0.25
	case cover*2 <= avgCover:
		score *= 0.5
	}
	// Depth multiplier 1-5x.
	switch {
	case e.Depth >= 25:
		score *= 5
	case e.Depth >= 13:
		score *= 4
	case e.Depth >= 8:
		score *= 3
	case e.Depth >= 4:
		score *= 2
	}
	// Fresh entries get more attention.
	switch {
	case e.Fuzzed == 0:
		score *= 2
	case e.Fuzzed >= 1000:
		score *= 0.5
	}
	return max(minScore, min(maxScore, score))
}
