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

package rnn

import (
	"fmt"
	"os"

	"github.com/gogo/protobuf/proto"

	"github.com/goccmack/superflux/errkind"
)

/*
Weights is the serialised form of a Network. It is encoded as the protobuf
message described in weights.proto. Matrices are stored row major:

	InputWeights     HiddenSize x InputSize
	RecurrentWeights HiddenSize x HiddenSize
*/
type Weights struct {
	InputSize        int32     `protobuf:"varint,1,opt,name=input_size,json=inputSize,proto3" json:"input_size,omitempty"`
	HiddenSize       int32     `protobuf:"varint,2,opt,name=hidden_size,json=hiddenSize,proto3" json:"hidden_size,omitempty"`
	InputWeights     []float64 `protobuf:"fixed64,3,rep,packed,name=input_weights,json=inputWeights,proto3" json:"input_weights,omitempty"`
	RecurrentWeights []float64 `protobuf:"fixed64,4,rep,packed,name=recurrent_weights,json=recurrentWeights,proto3" json:"recurrent_weights,omitempty"`
	HiddenBias       []float64 `protobuf:"fixed64,5,rep,packed,name=hidden_bias,json=hiddenBias,proto3" json:"hidden_bias,omitempty"`
	OutputWeights    []float64 `protobuf:"fixed64,6,rep,packed,name=output_weights,json=outputWeights,proto3" json:"output_weights,omitempty"`
	OutputBias       float64   `protobuf:"fixed64,7,opt,name=output_bias,json=outputBias,proto3" json:"output_bias,omitempty"`
}

func (m *Weights) Reset()         { *m = Weights{} }
func (m *Weights) String() string { return proto.CompactTextString(m) }
func (*Weights) ProtoMessage()    {}

// Validate checks that the weight slices match the declared shape.
func (m *Weights) Validate() error {
	n, h := int(m.InputSize), int(m.HiddenSize)
	if n <= 0 || h <= 0 {
		return errkind.Configf("network input size %d and hidden size %d must be positive", n, h)
	}
	check := func(name string, got, want int) error {
		if got != want {
			return errkind.Configf("network %s has %d weights, want %d", name, got, want)
		}
		return nil
	}
	if err := check("input weights", len(m.InputWeights), h*n); err != nil {
		return err
	}
	if err := check("recurrent weights", len(m.RecurrentWeights), h*h); err != nil {
		return err
	}
	if err := check("hidden bias", len(m.HiddenBias), h); err != nil {
		return err
	}
	return check("output weights", len(m.OutputWeights), h)
}

// UnmarshalWeights decodes an opaque weight blob.
func UnmarshalWeights(buf []byte) (*Weights, error) {
	w := &Weights{}
	if err := proto.Unmarshal(buf, w); err != nil {
		return nil, errkind.Configf("decode network weights: %v", err)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// MarshalWeights encodes w.
func MarshalWeights(w *Weights) ([]byte, error) {
	return proto.Marshal(w)
}

// LoadWeights reads a weight blob from fname.
func LoadWeights(fname string) (*Weights, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, fmt.Errorf("network weights: %w", err)
	}
	return UnmarshalWeights(buf)
}
