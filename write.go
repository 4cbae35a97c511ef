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
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path"

	"github.com/goccmack/godsp"
	"github.com/goccmack/godsp/ioutil"

	"github.com/goccmack/superflux/config"
)

// clickLen is the length in samples of an onset marker in the plotted click
// track.
const clickLen = 100

type OutRecord struct {
	FileName   string  // Input file
	SampleRate int     // Hz
	Fps        float64 // Activation frames per second
	HopSize    int     // Samples between frames
	Strategy   string  // Peak picking strategy
	Threshold  float64
	Cached     bool // Activations came from the cache
	Onsets     []*OutOnset
}

type OutOnset struct {
	Frame    int     // Activation frame
	Offset   int     // Number of samples from start of channel
	Time     float64 // Seconds from start, including the configured delay
	MsOffset int     // Number of milliseconds from start
}

// writeOutput writes the onsets of fr as JSON or as one time per line.
func writeOutput(fr *fileRecord, cfg *config.Config) error {
	var buf []byte
	if outJSON {
		var err error
		if buf, err = json.MarshalIndent(getOutRecord(fr, cfg), "", "  "); err != nil {
			return err
		}
	} else {
		buf = formatOnsets(fr.res.Onsets)
	}
	return ioutil.WriteFile(fr.outFile, buf)
}

func getOutRecord(fr *fileRecord, cfg *config.Config) *OutRecord {
	hop, sr := fr.res.Activations.Hop()
	or := &OutRecord{
		FileName:   fr.inFile,
		SampleRate: sr,
		Fps:        fr.res.Activations.Fps,
		HopSize:    hop,
		Strategy:   fr.strategy,
		Threshold:  cfg.PeakThreshold(),
		Cached:     fr.res.Cached,
		Onsets:     make([]*OutOnset, len(fr.res.Onsets)),
	}
	for i, t := range fr.res.Onsets {
		or.Onsets[i] = &OutOnset{
			Frame:    fr.res.Frames[i],
			Offset:   fr.res.Frames[i] * hop,
			Time:     t,
			MsOffset: int(t*1000 + 0.5),
		}
	}
	return or
}

// formatOnsets returns one onset time in seconds per line with millisecond
// resolution.
func formatOnsets(onsets []float64) []byte {
	w := new(bytes.Buffer)
	for _, t := range onsets {
		fmt.Fprintf(w, "%.3f\n", t)
	}
	return w.Bytes()
}

/*
writePlotData writes the activations, peak scores and onset markers of fr to
data files for plotting. For audio inputs it adds a click track at the
sample rate with one click per onset.
*/
func writePlotData(fr *fileRecord) error {
	dir := path.Join(outDir, path.Base(fromInFileName(fr.inFile, "")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	recs := fr.frameRecords()
	acts := make([]float64, len(recs))
	scores := make([]float64, len(recs))
	marks := make([]float64, len(recs))
	for i, rec := range recs {
		acts[i], scores[i] = rec.activation, rec.score
		if rec.onset {
			marks[i] = 1
		}
	}
	godsp.WriteDataFile(acts, path.Join(dir, "activations.txt"))
	godsp.WriteDataFile(scores, path.Join(dir, "scores.txt"))
	godsp.WriteDataFile(marks, path.Join(dir, "onsets.txt"))
	if fr.sig != nil {
		writeMLClicks(fr, path.Join(dir, "clicks.txt"))
	}
	return nil
}

/*
writeMLClicks writes a click track for MatLab
*/
func writeMLClicks(fr *fileRecord, fname string) {
	numSamples := len(fr.sig.Samples)
	clicks := make([]float64, numSamples)
	value := godsp.Max(fr.sig.Samples)
	hop, _ := fr.res.Activations.Hop()
	for _, f := range fr.res.Frames {
		for i := 0; i < clickLen; i++ {
			offs := f*hop + i
			if offs < numSamples {
				clicks[offs] = value
			}
		}
	}
	godsp.WriteDataFile(clicks, fname)
}
