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
Package audio holds the mono sample stream and the FrameSource that cuts it
into overlapping analysis frames.
*/
package audio

import (
	"fmt"
	"math"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// Signal is a mono sample stream with amplitudes in [-1, 1]. It is read-only
// once loaded.
type Signal struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the length of the signal in seconds.
func (s *Signal) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

/*
LoadWav reads the WAV file fname and returns its first channel normalised by
the source bit depth. The remaining channels are ignored.
*/
func LoadWav(fname string) (*Signal, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%s: not a valid WAV file", fname)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return FromIntBuffer(buf, int(d.BitDepth))
}

// FromIntBuffer converts the first channel of buf to a Signal.
func FromIntBuffer(buf *goaudio.IntBuffer, bitDepth int) (*Signal, error) {
	if buf == nil || buf.Format == nil {
		return nil, fmt.Errorf("PCM buffer has no format")
	}
	numChannels := buf.Format.NumChannels
	if numChannels <= 0 {
		numChannels = 1
	}
	if bitDepth <= 0 {
		bitDepth = buf.SourceBitDepth
	}
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := math.Pow(2, float64(bitDepth-1))
	n := len(buf.Data) / numChannels
	sig := &Signal{
		Samples:    make([]float64, n),
		SampleRate: buf.Format.SampleRate,
	}
	for i := 0; i < n; i++ {
		sig.Samples[i] = float64(buf.Data[i*numChannels]) / scale
	}
	return sig, nil
}
