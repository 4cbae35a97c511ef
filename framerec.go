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

package main

import (
	"time"

	"github.com/goccmack/superflux/audio"
	"github.com/goccmack/superflux/pipeline"
)

// fileRecord holds the analysis of one input file.
type fileRecord struct {
	inFile   string
	outFile  string
	strategy string
	sig      *audio.Signal // nil for loaded activations
	res      *pipeline.Result
	elapsed  time.Duration
}

type frameRecord struct {
	frameNo    int
	activation float64
	score      float64
	onset      bool
}

// frameRecords returns one record per activation frame.
func (fr *fileRecord) frameRecords() []frameRecord {
	acts := fr.res.Activations.Values
	recs := make([]frameRecord, len(acts))
	for i, x := range acts {
		recs[i] = frameRecord{frameNo: i, activation: x}
		if i < len(fr.res.Scores) {
			recs[i].score = fr.res.Scores[i]
		}
	}
	for _, f := range fr.res.Frames {
		if f < len(recs) {
			recs[f].onset = true
		}
	}
	return recs
}

// lastOnset returns the time of the last onset of fr, or -1 if it has none.
func (fr *fileRecord) lastOnset() float64 {
	if len(fr.res.Onsets) == 0 {
		return -1
	}
	return fr.res.Onsets[len(fr.res.Onsets)-1]
}
