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
Package superflux computes the SuperFlux onset strength of a filtered
spectrogram: the half-wave rectified difference between a frame and a
maximum filtered earlier frame, summed over the bands.

The maximum filter across neighbouring bands lets energy slide between
adjacent bands, as it does under vibrato, without producing flux.
*/
package superflux

import (
	"math"

	"github.com/goccmack/superflux/errkind"
)

/*
DiffFrames returns the lag in frames between a frame and the frame it is
differenced against. The lag spans the distance from the window centre back
to the first window sample above ratio times the window maximum, in hops,
and is at least 1. A larger ratio never gives a larger lag.
*/
func DiffFrames(window []float64, hop int, ratio float64) int {
	if len(window) == 0 || hop <= 0 {
		return 1
	}
	max := window[0]
	for _, w := range window {
		if w > max {
			max = w
		}
	}
	// With no sample above the threshold the lag falls to 1.
	first := len(window) / 2
	for i, w := range window {
		if w > ratio*max {
			first = i
			break
		}
	}
	lag := int(math.Round(float64(len(window)/2-first) / float64(hop)))
	if lag < 1 {
		return 1
	}
	return lag
}

// MaxFilterHalfWidth returns the half width of the band maximum filter for
// maxBins bins. maxBins <= 1 disables the filter.
func MaxFilterHalfWidth(maxBins int) int {
	if maxBins <= 1 {
		return 0
	}
	return maxBins / 2
}

// MaxFilter writes max(x[b-w..b+w]) to dst[b], clipping the window at the
// edges of x.
func MaxFilter(dst, x []float64, w int) []float64 {
	if dst == nil {
		dst = make([]float64, len(x))
	}
	for b := range x {
		lo, hi := b-w, b+w
		if lo < 0 {
			lo = 0
		}
		if hi > len(x)-1 {
			hi = len(x) - 1
		}
		m := x[lo]
		for _, v := range x[lo+1 : hi+1] {
			if v > m {
				m = v
			}
		}
		dst[b] = m
	}
	return dst
}

// Params configures a Flux.
type Params struct {
	NumBands int
	// Lag is the difference lag in frames, see DiffFrames.
	Lag int
	// MaxBins is the width of the band maximum filter.
	MaxBins       int
	PositiveDiffs bool
}

/*
Flux computes the onset strength one frame at a time. It keeps the maximum
filtered versions of the last Lag frames in a ring buffer. A Flux belongs to
one run and is not safe for concurrent use.
*/
type Flux struct {
	p     Params
	w     int
	ring  [][]float64
	frame int
}

// New returns a Flux for p.
func New(p Params) (*Flux, error) {
	if p.NumBands <= 0 {
		return nil, errkind.Configf("num_bands %d must be positive", p.NumBands)
	}
	if p.Lag < 1 {
		return nil, errkind.Configf("diff lag %d must be at least 1", p.Lag)
	}
	f := &Flux{
		p:    p,
		w:    MaxFilterHalfWidth(p.MaxBins),
		ring: make([][]float64, p.Lag),
	}
	for i := range f.ring {
		f.ring[i] = make([]float64, p.NumBands)
	}
	return f, nil
}

// Lag returns the difference lag in frames.
func (f *Flux) Lag() int { return f.p.Lag }

/*
Next consumes the next spectrogram frame and returns its onset strength.
The first Lag frames have no reference frame and return 0.
*/
func (f *Flux) Next(bands []float64) (float64, error) {
	if len(bands) != f.p.NumBands {
		return 0, errkind.Configf("frame %d has %d bands, want %d", f.frame, len(bands), f.p.NumBands)
	}
	for b, v := range bands {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, errkind.Computationf("non-finite spectrogram value at frame %d band %d", f.frame, b)
		}
	}

	slot := f.frame % f.p.Lag
	ref := f.ring[slot]
	sum := 0.0
	if f.frame >= f.p.Lag {
		for b, v := range bands {
			d := v - ref[b]
			if f.p.PositiveDiffs && d < 0 {
				d = 0
			}
			sum += d
		}
	}
	MaxFilter(ref, bands, f.w)
	f.frame++

	if math.IsNaN(sum) || math.IsInf(sum, 0) {
		return 0, errkind.Computationf("non-finite onset strength at frame %d", f.frame-1)
	}
	return sum, nil
}

// Compute returns the onset strength of every frame of spec.
func Compute(spec [][]float64, p Params) ([]float64, error) {
	f, err := New(p)
	if err != nil {
		return nil, err
	}
	act := make([]float64, len(spec))
	for t, bands := range spec {
		if act[t], err = f.Next(bands); err != nil {
			return nil, err
		}
	}
	return act, nil
}
