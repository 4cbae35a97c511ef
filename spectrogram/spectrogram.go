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
Package spectrogram turns analysis frames into filtered, optionally log
compressed, band energy frames.
*/
package spectrogram

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/window"
	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/goccmack/superflux/errkind"
)

// Params configures a Builder.
type Params struct {
	FrameSize   int
	SampleRate  int
	NumBands    int
	Fmin        float64
	Fmax        float64
	NormFilters bool
	// Log enables logarithmic compression with Mul and Add.
	Log bool
	Mul float64
	Add float64
}

/*
Builder maps one frame of samples to one filtered spectrogram frame of
NumBands values. A Builder keeps scratch buffers and must not be shared
between goroutines.
*/
type Builder struct {
	window []float64
	fft    *fourier.FFT
	fb     *Filterbank
	log    *LogCompressor

	windowed []float64
	coeffs   []complex128
	mag      []float64
}

// NewBuilder returns a Builder for p.
func NewBuilder(p Params) (*Builder, error) {
	fb, err := NewFilterbank(p.NumBands, p.FrameSize, p.SampleRate, p.Fmin, p.Fmax, p.NormFilters)
	if err != nil {
		return nil, err
	}
	b := &Builder{
		window:   window.Hann(p.FrameSize),
		fft:      fourier.NewFFT(p.FrameSize),
		fb:       fb,
		windowed: make([]float64, p.FrameSize),
		coeffs:   make([]complex128, p.FrameSize/2+1),
		mag:      make([]float64, p.FrameSize/2+1),
	}
	if p.Log {
		if b.log, err = NewLogCompressor(p.Mul, p.Add); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Window returns the analysis window.
func (b *Builder) Window() []float64 { return b.window }

// Filterbank returns the filterbank of b.
func (b *Builder) Filterbank() *Filterbank { return b.fb }

// NumBands returns the length of every frame Process returns.
func (b *Builder) NumBands() int { return b.fb.NumBands() }

// Magnitude returns the magnitudes of the frameSize/2+1 non-redundant DFT bins
// of the windowed frame. The returned slice is reused by the next call.
func (b *Builder) Magnitude(frame []float64) ([]float64, error) {
	if len(frame) != len(b.window) {
		return nil, errkind.Configf("frame has %d samples, want %d", len(frame), len(b.window))
	}
	for i, v := range frame {
		b.windowed[i] = v * b.window[i]
	}
	b.coeffs = b.fft.Coefficients(b.coeffs, b.windowed)
	for i, c := range b.coeffs {
		b.mag[i] = cmplx.Abs(c)
	}
	return b.mag, nil
}

// Process returns the filtered (and log compressed if configured)
// spectrogram frame of frame.
func (b *Builder) Process(frame []float64) ([]float64, error) {
	mag, err := b.Magnitude(frame)
	if err != nil {
		return nil, err
	}
	bands := b.fb.Apply(nil, mag)
	if b.log != nil {
		b.log.Apply(bands)
	}
	return bands, nil
}

// LogCompressor computes log10(Mul*x + Add) element wise.
type LogCompressor struct {
	Mul float64
	Add float64
}

// NewLogCompressor returns a LogCompressor. add must be positive so that the
// logarithm stays finite for silent bands.
func NewLogCompressor(mul, add float64) (*LogCompressor, error) {
	if mul <= 0 {
		return nil, errkind.Configf("log mul %g must be positive", mul)
	}
	if add <= 0 {
		return nil, errkind.Configf("log add %g must be positive", add)
	}
	return &LogCompressor{Mul: mul, Add: add}, nil
}

// Apply compresses x in place.
func (l *LogCompressor) Apply(x []float64) {
	for i, v := range x {
		x[i] = math.Log10(l.Mul*v + l.Add)
	}
}
