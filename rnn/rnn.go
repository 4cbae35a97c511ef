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
Package rnn provides the recurrent scorer that turns an onset activation
sequence into per frame peak probabilities.

A Scorer is stateless itself; everything that changes during a run lives in
a State owned by that run. Score at frame t depends only on the inputs given
up to frame t.
*/
package rnn

import (
	"math"

	"github.com/goccmack/superflux/errkind"
)

// Scorer maps one activation value to one peak score, updating h.
type Scorer interface {
	// NewState returns a zeroed hidden state.
	NewState() *State
	Score(x float64, h *State) (float64, error)
}

// State is the hidden state of one run.
type State struct {
	Hidden []float64
	// Context holds the most recent inputs, oldest first.
	Context []float64
	next    []float64
	frame   int
}

// Reset zeroes the state.
func (s *State) Reset() {
	for i := range s.Hidden {
		s.Hidden[i] = 0
	}
	for i := range s.Context {
		s.Context[i] = 0
	}
	s.frame = 0
}

/*
Network is an Elman recurrent network with a tanh hidden layer and a
sigmoid output. Its input is the vector of the last InputSize activations,
so the output lies in (0, 1).
*/
type Network struct {
	w Weights
}

// NewNetwork returns a Network with the weights w.
func NewNetwork(w *Weights) (*Network, error) {
	if w == nil {
		return nil, errkind.Configf("network weights are missing")
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return &Network{w: *w}, nil
}

// InputSize returns the number of activations the network sees per step.
func (n *Network) InputSize() int { return int(n.w.InputSize) }

// NewState implements Scorer.
func (n *Network) NewState() *State {
	return &State{
		Hidden:  make([]float64, n.w.HiddenSize),
		Context: make([]float64, n.w.InputSize),
		next:    make([]float64, n.w.HiddenSize),
	}
}

// Score implements Scorer.
func (n *Network) Score(x float64, s *State) (float64, error) {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, errkind.Computationf("non-finite activation at frame %d", s.frame)
	}
	in, h := int(n.w.InputSize), int(n.w.HiddenSize)
	copy(s.Context, s.Context[1:])
	s.Context[in-1] = x

	for j := 0; j < h; j++ {
		a := n.w.HiddenBias[j]
		for i, v := range s.Context {
			a += n.w.InputWeights[j*in+i] * v
		}
		for i, v := range s.Hidden {
			a += n.w.RecurrentWeights[j*h+i] * v
		}
		s.next[j] = math.Tanh(a)
	}
	s.Hidden, s.next = s.next, s.Hidden

	y := n.w.OutputBias
	for j, v := range s.Hidden {
		y += n.w.OutputWeights[j] * v
	}
	y = sigmoid(y)
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return 0, errkind.Computationf("non-finite score at frame %d", s.frame)
	}
	s.frame++
	return y, nil
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
