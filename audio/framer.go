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

package audio

import (
	"math"

	"github.com/goccmack/superflux/errkind"
)

// HopSize is the number of samples between the reference samples of two
// consecutive frames.
func HopSize(sampleRate int, fps float64) int {
	return int(math.Round(float64(sampleRate) / fps))
}

// Frame is one analysis window of the signal.
type Frame struct {
	Index   int
	Samples []float64
}

/*
Framer cuts a Signal into frames of FrameSize samples, one every hop samples.
Frame i has its reference sample at i*hop.

Offline framing centres frame i on its reference sample: it covers
[i*hop - FrameSize/2, i*hop - FrameSize/2 + FrameSize).
Online framing ends frame i on its reference sample: it covers
[i*hop - FrameSize + 1, i*hop], so no sample past the reference is used.
Samples outside the signal are zero.

A Framer is not restartable.
*/
type Framer struct {
	sig       *Signal
	frameSize int
	hop       int
	online    bool
	numFrames int
	next      int
}

// NewFramer returns a Framer over sig.
func NewFramer(sig *Signal, fps float64, frameSize int, online bool) (*Framer, error) {
	if sig == nil || sig.SampleRate <= 0 {
		return nil, errkind.Configf("sample rate must be positive")
	}
	if fps <= 0 {
		return nil, errkind.Configf("fps %g must be positive", fps)
	}
	if frameSize <= 0 {
		return nil, errkind.Configf("frame_size %d must be positive", frameSize)
	}
	hop := HopSize(sig.SampleRate, fps)
	if hop <= 0 {
		return nil, errkind.Configf("fps %g is above the sample rate %d", fps, sig.SampleRate)
	}
	return &Framer{
		sig:       sig,
		frameSize: frameSize,
		hop:       hop,
		online:    online,
		numFrames: (len(sig.Samples) + hop - 1) / hop,
	}, nil
}

// Hop returns the hop size in samples.
func (f *Framer) Hop() int { return f.hop }

// FrameSize returns the number of samples per frame.
func (f *Framer) FrameSize() int { return f.frameSize }

// NumFrames returns the total number of frames the Framer produces.
func (f *Framer) NumFrames() int { return f.numFrames }

// Next returns the next frame. ok is false when the signal is exhausted.
func (f *Framer) Next() (fr Frame, ok bool) {
	if f.next >= f.numFrames {
		return Frame{}, false
	}
	fr = Frame{
		Index:   f.next,
		Samples: make([]float64, f.frameSize),
	}
	start := f.start(f.next)
	for i := range fr.Samples {
		j := start + i
		if j >= 0 && j < len(f.sig.Samples) {
			fr.Samples[i] = f.sig.Samples[j]
		}
	}
	f.next++
	return fr, true
}

func (f *Framer) start(index int) int {
	ref := index * f.hop
	if f.online {
		return ref - f.frameSize + 1
	}
	return ref - f.frameSize/2
}

// FrameTime returns the time in seconds of frame index.
func FrameTime(index, hop, sampleRate int) float64 {
	return float64(index*hop) / float64(sampleRate)
}
