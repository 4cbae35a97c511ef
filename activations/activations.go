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
Package activations persists onset activation sequences so that peak picking
can be rerun without recomputing the spectrogram and the flux.

A sequence is stored with the frame rate it was computed at. Loading checks
that frame rate against the configured one.
*/
package activations

import (
	"fmt"
	"math"
	"os"

	"github.com/gogo/protobuf/proto"

	"github.com/goccmack/superflux/audio"
	"github.com/goccmack/superflux/errkind"
)

// Activations is an onset activation sequence, one value per frame. It is
// encoded as the protobuf message described in activations.proto.
type Activations struct {
	Fps    float64   `protobuf:"fixed64,1,opt,name=fps,proto3" json:"fps,omitempty"`
	Values []float64 `protobuf:"fixed64,2,rep,packed,name=values,proto3" json:"values,omitempty"`
	// SampleRate of the analysed audio, 0 if unknown.
	SampleRate int32 `protobuf:"varint,3,opt,name=sample_rate,json=sampleRate,proto3" json:"sample_rate,omitempty"`
}

func (m *Activations) Reset()         { *m = Activations{} }
func (m *Activations) String() string { return proto.CompactTextString(m) }
func (*Activations) ProtoMessage()    {}

// CheckFps returns a configuration error if a was computed at a frame rate
// other than fps.
func (a *Activations) CheckFps(fps float64) error {
	if math.Abs(a.Fps-fps) > 1e-9*math.Max(1, fps) {
		return errkind.Configf("activations were computed at %g fps, configured fps is %g", a.Fps, fps)
	}
	return nil
}

/*
Hop returns the hop size in samples and the sample rate used to convert
frames to seconds. Without a sample rate frames are 1/Fps seconds apart.
*/
func (a *Activations) Hop() (hop, sampleRate int) {
	if a.SampleRate > 0 {
		sr := int(a.SampleRate)
		return audio.HopSize(sr, a.Fps), sr
	}
	// Express 1/Fps exactly as hop/sampleRate with microsecond resolution.
	return int(math.Round(1e6 / a.Fps)), 1000000
}

// Marshal encodes a.
func (a *Activations) Marshal() ([]byte, error) {
	return proto.Marshal(a)
}

// Unmarshal decodes an encoded activation sequence.
func Unmarshal(buf []byte) (*Activations, error) {
	a := &Activations{}
	if err := proto.Unmarshal(buf, a); err != nil {
		return nil, fmt.Errorf("decode activations: %w", err)
	}
	return a, nil
}

// Save writes a to fname.
func Save(fname string, a *Activations) error {
	buf, err := a.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(fname, buf, 0o644)
}

// Load reads the activations in fname and checks them against fps.
func Load(fname string, fps float64) (*Activations, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	a, err := Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	if err := a.CheckFps(fps); err != nil {
		return nil, fmt.Errorf("%s: %w", fname, err)
	}
	return a, nil
}
