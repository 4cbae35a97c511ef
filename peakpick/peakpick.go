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

/*
Package peakpick selects onset frames from a peak score sequence.

A frame t is accepted when
  - its score exceeds Threshold,
  - it is a local maximum: the PreMax frames before it score strictly lower
    and none of the PostMax frames after it scores higher,
  - it is at least MinInterval frames after the previously accepted onset.
    Of two candidates closer than that the higher scoring one survives, the
    earlier one on a tie.
*/
package peakpick

import (
	"context"
	"math"

	"github.com/goccmack/superflux/audio"
	"github.com/goccmack/superflux/errkind"
)

// Params configures a Picker. All distances are in frames.
type Params struct {
	Threshold   float64
	PreMax      int
	PostMax     int
	MinInterval int
	// Online disables the look-ahead of the local maximum test.
	Online bool
}

// Validate checks p.
func (p Params) Validate() error {
	if p.PreMax < 0 || p.PostMax < 0 {
		return errkind.Configf("peak picking window %d/%d must not be negative", p.PreMax, p.PostMax)
	}
	if p.MinInterval < 0 {
		return errkind.Configf("min_interval %d must not be negative", p.MinInterval)
	}
	if math.IsNaN(p.Threshold) {
		return errkind.Configf("threshold is NaN")
	}
	return nil
}

type candidate struct {
	frame int
	score float64
}

/*
Picker is the peak selection state machine. Scores are pushed in frame
order; accepted frames are returned as soon as no later frame can displace
them. A Picker belongs to one run.
*/
type Picker struct {
	p Params
	// scores holds frames base..base+len(scores)-1.
	scores  []float64
	base    int
	n       int
	next    int // next frame to test
	pending *candidate
}

// NewPicker returns a Picker for p.
func NewPicker(p Params) (*Picker, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if p.Online {
		p.PostMax = 0
	}
	return &Picker{p: p}, nil
}

// Push consumes the score of the next frame.
func (pk *Picker) Push(score float64) ([]int, error) {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return nil, errkind.Computationf("non-finite peak score at frame %d", pk.n)
	}
	pk.scores = append(pk.scores, score)
	pk.n++
	return pk.advance(pk.n - 1 - pk.p.PostMax), nil
}

// Flush tests the remaining frames and returns the last accepted onsets.
func (pk *Picker) Flush() []int {
	out := pk.advance(pk.n - 1)
	if pk.pending != nil {
		out = append(out, pk.pending.frame)
		pk.pending = nil
	}
	return out
}

func (pk *Picker) advance(last int) []int {
	var out []int
	for ; pk.next <= last; pk.next++ {
		if f, ok := pk.release(pk.next); ok {
			out = append(out, f)
		}
		t := pk.next
		s := pk.at(t)
		if s <= pk.p.Threshold || !pk.isLocalMax(t, s) {
			continue
		}
		c := candidate{frame: t, score: s}
		switch {
		case pk.pending == nil:
			pk.pending = &c
		case t-pk.pending.frame < pk.p.MinInterval:
			if s > pk.pending.score {
				pk.pending = &c
			}
		default:
			out = append(out, pk.pending.frame)
			pk.pending = &c
		}
	}
	pk.trim()
	return out
}

// release returns the pending onset once frame t can no longer conflict
// with it.
func (pk *Picker) release(t int) (int, bool) {
	if pk.pending == nil || t-pk.pending.frame < pk.p.MinInterval {
		return 0, false
	}
	f := pk.pending.frame
	pk.pending = nil
	return f, true
}

func (pk *Picker) isLocalMax(t int, s float64) bool {
	for i := t - pk.p.PreMax; i < t; i++ {
		if i >= 0 && pk.at(i) >= s {
			return false
		}
	}
	for i := t + 1; i <= t+pk.p.PostMax && i < pk.n; i++ {
		if pk.at(i) > s {
			return false
		}
	}
	return true
}

func (pk *Picker) at(t int) float64 { return pk.scores[t-pk.base] }

// trim keeps PreMax frames of history before the next frame to test.
func (pk *Picker) trim() {
	if drop := pk.next - pk.p.PreMax - pk.base; drop > 0 {
		pk.scores = pk.scores[drop:]
		pk.base += drop
	}
}

/*
Detector chains a scoring Session and a Picker. It consumes activations and
returns accepted onset frames.
*/
type Detector struct {
	sess   Session
	picker *Picker
	// Scores receives every score if not nil.
	Scores func(score float64)
}

// NewDetector returns a Detector using strategy s with peak picking p.
func NewDetector(s Strategy, p Params) (*Detector, error) {
	pk, err := NewPicker(p)
	if err != nil {
		return nil, err
	}
	return &Detector{sess: s.NewSession(), picker: pk}, nil
}

// Push consumes the activation of the next frame.
func (d *Detector) Push(x float64) ([]int, error) {
	scores, err := d.sess.Push(x)
	if err != nil {
		return nil, err
	}
	return d.pick(scores, nil)
}

// Flush ends the sequence.
func (d *Detector) Flush() ([]int, error) {
	scores, err := d.sess.Flush()
	if err != nil {
		return nil, err
	}
	out, err := d.pick(scores, nil)
	if err != nil {
		return nil, err
	}
	return append(out, d.picker.Flush()...), nil
}

func (d *Detector) pick(scores []float64, out []int) ([]int, error) {
	for _, s := range scores {
		if d.Scores != nil {
			d.Scores(s)
		}
		frames, err := d.picker.Push(s)
		if err != nil {
			return nil, err
		}
		out = append(out, frames...)
	}
	return out, nil
}

// Pick runs strategy s and peak picking p over a whole activation sequence
// and returns the accepted frames. An empty sequence gives no onsets.
func Pick(ctx context.Context, s Strategy, p Params, acts []float64) ([]int, error) {
	d, err := NewDetector(s, p)
	if err != nil {
		return nil, err
	}
	var onsets []int
	for _, x := range acts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frames, err := d.Push(x)
		if err != nil {
			return nil, err
		}
		onsets = append(onsets, frames...)
	}
	frames, err := d.Flush()
	if err != nil {
		return nil, err
	}
	return append(onsets, frames...), nil
}

// Times converts onset frames to seconds, shifted by delay seconds.
func Times(frames []int, hop, sampleRate int, delay float64) []float64 {
	times := make([]float64, len(frames))
	for i, f := range frames {
		times[i] = audio.FrameTime(f, hop, sampleRate) + delay
	}
	return times
}
