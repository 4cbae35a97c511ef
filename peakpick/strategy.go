//  Copyright 2019 Marius Ackerman
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package peakpick

import (
	"math"

	"github.com/goccmack/superflux/errkind"
	"github.com/goccmack/superflux/rnn"
)

/*
Strategy turns an activation sequence into a peak score sequence of the same
length. Strategies are immutable and may be shared; per run state lives in
the Session returned by NewSession.
*/
type Strategy interface {
	NewSession() Session
	// Name identifies the strategy in logs and metrics.
	Name() string
}

/*
Session scores one activation sequence. Push consumes the activation of the
next frame and returns the scores that have become available, in frame
order. Flush returns the outstanding scores at the end of the sequence.
Over a whole sequence Push and Flush return exactly one score per frame.
*/
type Session interface {
	Push(x float64) ([]float64, error)
	Flush() ([]float64, error)
}

/*
Threshold scores frames by their raw activation, optionally minus the moving
average of the PreAvg frames before and PostAvg frames after. Frames outside
the sequence count as zero.
*/
type Threshold struct {
	PreAvg  int
	PostAvg int
}

// Name implements Strategy.
func (Threshold) Name() string { return "threshold" }

// NewSession implements Strategy.
func (s Threshold) NewSession() Session {
	return &thresholdSession{s: s}
}

type thresholdSession struct {
	s Threshold
	// acts holds frames base..base+len(acts)-1.
	acts []float64
	base int
	n    int
	done int
}

func (ts *thresholdSession) Push(x float64) ([]float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return nil, errkind.Computationf("non-finite activation at frame %d", ts.n)
	}
	ts.acts = append(ts.acts, x)
	ts.n++
	return ts.emit(ts.n - 1 - ts.s.PostAvg), nil
}

func (ts *thresholdSession) Flush() ([]float64, error) {
	return ts.emit(ts.n - 1), nil
}

// emit scores the frames up to and including last.
func (ts *thresholdSession) emit(last int) []float64 {
	var out []float64
	for ; ts.done <= last; ts.done++ {
		out = append(out, ts.score(ts.done))
	}
	// Keep PreAvg frames of history.
	if drop := ts.done - ts.s.PreAvg - ts.base; drop > 0 {
		ts.acts = ts.acts[drop:]
		ts.base += drop
	}
	return out
}

func (ts *thresholdSession) score(t int) float64 {
	x := ts.acts[t-ts.base]
	if ts.s.PreAvg == 0 && ts.s.PostAvg == 0 {
		return x
	}
	sum := 0.0
	for i := t - ts.s.PreAvg; i <= t+ts.s.PostAvg; i++ {
		if i >= 0 && i < ts.n {
			sum += ts.acts[i-ts.base]
		}
	}
	return x - sum/float64(ts.s.PreAvg+ts.s.PostAvg+1)
}

/*
NN scores frames with a recurrent Scorer. With Lookahead > 0 the score of
frame t is produced after the scorer has seen the activation of frame
t+Lookahead; the sequence is padded with zeros at the end.
*/
type NN struct {
	Scorer    rnn.Scorer
	Lookahead int
}

// Name implements Strategy.
func (NN) Name() string { return "nn" }

// NewSession implements Strategy. The hidden state starts at zero.
func (s NN) NewSession() Session {
	return &nnSession{s: s, h: s.Scorer.NewState()}
}

type nnSession struct {
	s      NN
	h      *rnn.State
	pushed int
}

func (ns *nnSession) Push(x float64) ([]float64, error) {
	y, err := ns.s.Scorer.Score(x, ns.h)
	if err != nil {
		return nil, err
	}
	ns.pushed++
	if ns.pushed <= ns.s.Lookahead {
		return nil, nil
	}
	return []float64{y}, nil
}

func (ns *nnSession) Flush() ([]float64, error) {
	var out []float64
	pending := ns.s.Lookahead
	if ns.pushed < pending {
		pending = ns.pushed
	}
	for i := 0; i < pending; i++ {
		y, err := ns.s.Scorer.Score(0, ns.h)
		if err != nil {
			return nil, err
		}
		out = append(out, y)
	}
	return out, nil
}
