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

package spectrogram

import (
	"math"

	"github.com/goccmack/superflux/errkind"
)

/*
Filterbank is a set of triangular filters over the magnitude bins of a real
FFT. Filter b has its centre at the (b+1)th of numBands+2 frequencies spaced
logarithmically between fmin and fmax and falls to zero at the centres of its
neighbours.
*/
type Filterbank struct {
	// weights[b] holds the non-zero weights of filter b starting at bin start[b].
	weights [][]float64
	start   []int
	numBins int
	// Corners are the numBands+2 corner frequencies in Hz.
	Corners []float64
}

/*
NewFilterbank designs a filterbank for FFTs of frameSize samples at
sampleRate. fmax above the Nyquist frequency is clamped to it. If norm is
true every filter is scaled to unit area.
*/
func NewFilterbank(numBands, frameSize, sampleRate int, fmin, fmax float64, norm bool) (*Filterbank, error) {
	if numBands <= 0 {
		return nil, errkind.Configf("num_bands %d must be positive", numBands)
	}
	if frameSize <= 0 {
		return nil, errkind.Configf("frame_size %d must be positive", frameSize)
	}
	if sampleRate <= 0 {
		return nil, errkind.Configf("sample rate %d must be positive", sampleRate)
	}
	if fmin <= 0 {
		return nil, errkind.Configf("fmin %g must be positive", fmin)
	}
	nyquist := float64(sampleRate) / 2
	if fmax > nyquist {
		fmax = nyquist
	}
	if fmax <= fmin {
		return nil, errkind.Configf("fmax %g must be above fmin %g", fmax, fmin)
	}

	numBins := frameSize/2 + 1
	binHz := float64(sampleRate) / float64(frameSize)
	fb := &Filterbank{
		weights: make([][]float64, numBands),
		start:   make([]int, numBands),
		numBins: numBins,
		Corners: logSpace(fmin, fmax, numBands+2),
	}
	for b := 0; b < numBands; b++ {
		lo, c, hi := fb.Corners[b], fb.Corners[b+1], fb.Corners[b+2]
		first := int(math.Ceil(lo / binHz))
		last := int(math.Floor(hi / binHz))
		if last >= numBins {
			last = numBins - 1
		}
		var w []float64
		for k := first; k <= last; k++ {
			w = append(w, triangle(float64(k)*binHz, lo, c, hi))
		}
		first, w = trim(first, w)
		if len(w) == 0 {
			// Narrow low frequency filters fall between bins.
			k := int(math.Round(c / binHz))
			if k >= numBins {
				k = numBins - 1
			}
			first, w = k, []float64{1}
		}
		if norm {
			sum := 0.0
			for _, v := range w {
				sum += v
			}
			for i := range w {
				w[i] /= sum
			}
		}
		fb.start[b], fb.weights[b] = first, w
	}
	return fb, nil
}

// NumBands returns the number of filters.
func (fb *Filterbank) NumBands() int { return len(fb.weights) }

// NumBins returns the number of FFT magnitude bins the filterbank expects.
func (fb *Filterbank) NumBins() int { return fb.numBins }

// Apply projects the magnitude spectrum mag onto the filters and writes the
// band values to dst, which must have NumBands entries.
func (fb *Filterbank) Apply(dst, mag []float64) []float64 {
	if dst == nil {
		dst = make([]float64, len(fb.weights))
	}
	for b, w := range fb.weights {
		sum := 0.0
		for i, v := range w {
			sum += v * mag[fb.start[b]+i]
		}
		dst[b] = sum
	}
	return dst
}

// Weights returns the dense weight matrix, one row of NumBins per band.
func (fb *Filterbank) Weights() [][]float64 {
	m := make([][]float64, len(fb.weights))
	for b, w := range fb.weights {
		m[b] = make([]float64, fb.numBins)
		copy(m[b][fb.start[b]:], w)
	}
	return m
}

func triangle(f, lo, c, hi float64) float64 {
	switch {
	case f <= lo || f >= hi:
		return 0
	case f <= c:
		return (f - lo) / (c - lo)
	default:
		return (hi - f) / (hi - c)
	}
}

// trim drops zero weights from both ends of w.
func trim(first int, w []float64) (int, []float64) {
	for len(w) > 0 && w[0] == 0 {
		w = w[1:]
		first++
	}
	for len(w) > 0 && w[len(w)-1] == 0 {
		w = w[:len(w)-1]
	}
	return first, w
}

func logSpace(lo, hi float64, n int) []float64 {
	f := make([]float64, n)
	ratio := math.Log(hi / lo)
	for i := range f {
		f[i] = lo * math.Exp(ratio*float64(i)/float64(n-1))
	}
	return f
}
