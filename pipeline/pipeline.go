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
Package pipeline runs the onset detector over one recording:

	frames -> filtered log spectrogram -> SuperFlux -> peak picking -> onsets

Framing and the spectrogram run as producer goroutines connected by bounded
queues. Flux and peak picking depend on a short window of earlier frames and
run on a single consumer in frame order. All state of a recording is owned
by its run, so one Analyzer can serve many recordings concurrently.
*/
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/goccmack/superflux/activations"
	"github.com/goccmack/superflux/audio"
	"github.com/goccmack/superflux/config"
	"github.com/goccmack/superflux/errkind"
	"github.com/goccmack/superflux/metrics"
	"github.com/goccmack/superflux/peakpick"
	"github.com/goccmack/superflux/rnn"
	"github.com/goccmack/superflux/spectrogram"
	"github.com/goccmack/superflux/superflux"
)

// Result is the outcome of a run.
type Result struct {
	// Activations is the onset strength per frame.
	Activations *activations.Activations
	// Scores is the peak score per frame. It has the same length as the
	// activations.
	Scores []float64
	// Frames are the accepted onset frames.
	Frames []int
	// Onsets are the onset times in seconds, strictly increasing.
	Onsets []float64
	// Cached is true if the activations came from the store.
	Cached bool
}

// Analyzer detects onsets with one configuration.
type Analyzer struct {
	cfg      *config.Config
	strategy peakpick.Strategy
	metrics  *metrics.Metrics
	log      logrus.FieldLogger
	store    *activations.Store
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMetrics records metrics on m instead of the global provider.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithLogger logs to l.
func WithLogger(l logrus.FieldLogger) Option {
	return func(a *Analyzer) { a.log = l }
}

// WithStore caches activations in s.
func WithStore(s *activations.Store) Option {
	return func(a *Analyzer) { a.store = s }
}

// WithScorer scores activations with sc instead of the network configured
// by cfg.NNWeights.
func WithScorer(sc rnn.Scorer) Option {
	return func(a *Analyzer) { a.strategy = peakpick.NN{Scorer: sc} }
}

/*
New returns an Analyzer for cfg. The peak picking strategy is chosen here:
the recurrent network if cfg.NNWeights is set, plain thresholding of the
activations otherwise.
*/
func New(cfg *config.Config, opts ...Option) (*Analyzer, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	a := &Analyzer{
		cfg: cfg,
		log: logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = metrics.Default()
	}

	switch s := a.strategy.(type) {
	case peakpick.NN:
		s.Lookahead = cfg.Lookahead
		a.strategy = s
	case nil:
		if cfg.UseNN() {
			w, err := rnn.LoadWeights(cfg.NNWeights)
			if err != nil {
				return nil, err
			}
			net, err := rnn.NewNetwork(w)
			if err != nil {
				return nil, err
			}
			a.strategy = peakpick.NN{Scorer: net, Lookahead: cfg.Lookahead}
			a.log.WithFields(logrus.Fields{
				"function": "New",
				"weights":  cfg.NNWeights,
				"inputs":   net.InputSize(),
			}).Debug("network loaded")
		} else {
			th := peakpick.Threshold{PreAvg: cfg.Frames(cfg.PreAvg)}
			if !cfg.Online {
				th.PostAvg = cfg.Frames(cfg.PostAvg)
			}
			a.strategy = th
		}
	}
	a.log.WithFields(logrus.Fields{
		"function": "New",
		"strategy": a.strategy.Name(),
		"fps":      cfg.Fps,
		"online":   cfg.Online,
	}).Debug("analyzer ready")
	return a, nil
}

// With returns a copy of a that logs to l.
func (a *Analyzer) With(l logrus.FieldLogger) *Analyzer {
	b := *a
	b.log = l
	return &b
}

// Config returns the configuration of a.
func (a *Analyzer) Config() *config.Config { return a.cfg }

// Strategy returns the peak picking strategy of a.
func (a *Analyzer) Strategy() peakpick.Strategy { return a.strategy }

func (a *Analyzer) peakParams() peakpick.Params {
	return peakpick.Params{
		Threshold:   a.cfg.PeakThreshold(),
		PreMax:      a.cfg.Frames(a.cfg.PreMax),
		PostMax:     a.cfg.Frames(a.cfg.PostMax),
		MinInterval: a.cfg.MinIntervalFrames(),
		Online:      a.cfg.Online,
	}
}

/*
Detect returns the onsets of sig. With a store the activations are looked up
first and stored after a fresh computation.
*/
func (a *Analyzer) Detect(ctx context.Context, sig *audio.Signal) (res *Result, err error) {
	start := time.Now()
	defer func() { a.finish(ctx, start, res, err) }()

	var key []byte
	if a.store != nil {
		key = activations.Key(sig.Samples, sig.SampleRate, a.cfg.Fingerprint())
		act, err := a.store.Get(key)
		switch {
		case err == nil:
			a.metrics.RecordCache(ctx, true)
			res, err := a.onsets(ctx, act)
			if err != nil {
				return nil, err
			}
			res.Cached = true
			return res, nil
		case errors.Is(err, activations.ErrNotFound):
			a.metrics.RecordCache(ctx, false)
		default:
			a.log.WithError(err).Warn("activation store lookup failed")
		}
	}

	res, err = a.run(ctx, sig, true)
	if err != nil {
		return nil, err
	}
	if key != nil {
		if err := a.store.Put(key, res.Activations); err != nil {
			a.log.WithError(err).Warn("activation store update failed")
		}
	}
	return res, nil
}

// Activations returns the onset activations of sig without peak picking.
func (a *Analyzer) Activations(ctx context.Context, sig *audio.Signal) (*activations.Activations, error) {
	res, err := a.run(ctx, sig, false)
	if err != nil {
		return nil, err
	}
	return res.Activations, nil
}

/*
Onsets picks the onsets of an activation sequence computed earlier, possibly
by another process. The frame rate of act must match the configuration.
*/
func (a *Analyzer) Onsets(ctx context.Context, act *activations.Activations) (res *Result, err error) {
	start := time.Now()
	defer func() { a.finish(ctx, start, res, err) }()
	return a.onsets(ctx, act)
}

func (a *Analyzer) onsets(ctx context.Context, act *activations.Activations) (*Result, error) {
	if err := act.CheckFps(a.cfg.Fps); err != nil {
		return nil, err
	}
	d, err := peakpick.NewDetector(a.strategy, a.peakParams())
	if err != nil {
		return nil, err
	}
	res := &Result{Activations: act}
	d.Scores = func(s float64) { res.Scores = append(res.Scores, s) }
	for _, x := range act.Values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frames, err := d.Push(x)
		if err != nil {
			return nil, err
		}
		res.Frames = append(res.Frames, frames...)
	}
	frames, err := d.Flush()
	if err != nil {
		return nil, err
	}
	res.Frames = append(res.Frames, frames...)
	hop, sr := act.Hop()
	res.Onsets = peakpick.Times(res.Frames, hop, sr, a.cfg.Delay)
	return res, nil
}

func (a *Analyzer) finish(ctx context.Context, start time.Time, res *Result, err error) {
	elapsed := time.Since(start).Seconds()
	if err != nil {
		kind := errkind.Kind(err)
		a.metrics.RecordRun(ctx, a.strategy.Name(), elapsed, kind)
		a.log.WithFields(logrus.Fields{
			"kind":    kind,
			"elapsed": elapsed,
		}).WithError(err).Error("onset detection failed")
		return
	}
	a.metrics.RecordRun(ctx, a.strategy.Name(), elapsed, "")
	a.metrics.Onsets.Add(ctx, int64(len(res.Onsets)))
	a.log.WithFields(logrus.Fields{
		"frames":  len(res.Activations.Values),
		"onsets":  len(res.Onsets),
		"cached":  res.Cached,
		"elapsed": elapsed,
	}).Info("onset detection finished")
}

type bandFrame struct {
	index int
	bands []float64
}

/*
run computes the activations of sig and, if pick is set, picks the onsets
in the same pass.
*/
func (a *Analyzer) run(ctx context.Context, sig *audio.Signal, pick bool) (*Result, error) {
	cfg := a.cfg
	framer, err := audio.NewFramer(sig, cfg.Fps, cfg.FrameSize, cfg.Online)
	if err != nil {
		return nil, err
	}
	builder, err := spectrogram.NewBuilder(spectrogram.Params{
		FrameSize:   cfg.FrameSize,
		SampleRate:  sig.SampleRate,
		NumBands:    cfg.NumBands,
		Fmin:        cfg.Fmin,
		Fmax:        cfg.Fmax,
		NormFilters: cfg.NormFilters,
		Log:         cfg.Log,
		Mul:         cfg.Mul,
		Add:         cfg.Add,
	})
	if err != nil {
		return nil, err
	}
	flux, err := superflux.New(superflux.Params{
		NumBands:      builder.NumBands(),
		Lag:           superflux.DiffFrames(builder.Window(), framer.Hop(), cfg.DiffRatio),
		MaxBins:       cfg.DiffMaxBins,
		PositiveDiffs: cfg.PositiveDiffs,
	})
	if err != nil {
		return nil, err
	}
	res := &Result{
		Activations: &activations.Activations{
			Fps:        cfg.Fps,
			Values:     make([]float64, 0, framer.NumFrames()),
			SampleRate: int32(sig.SampleRate),
		},
	}
	var det *peakpick.Detector
	if pick {
		if det, err = peakpick.NewDetector(a.strategy, a.peakParams()); err != nil {
			return nil, err
		}
		det.Scores = func(s float64) { res.Scores = append(res.Scores, s) }
	}
	a.log.WithFields(logrus.Fields{
		"duration":   sig.Duration(),
		"frames":     framer.NumFrames(),
		"frame_size": framer.FrameSize(),
		"hop":        framer.Hop(),
		"bins":       builder.Filterbank().NumBins(),
		"diff_lag":   flux.Lag(),
	}).Debug("run started")

	g, gctx := errgroup.WithContext(ctx)
	frames := make(chan audio.Frame, cfg.QueueSize)
	specs := make(chan bandFrame, cfg.QueueSize)

	g.Go(func() error {
		defer close(frames)
		for fr, ok := framer.Next(); ok; fr, ok = framer.Next() {
			select {
			case frames <- fr:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		defer close(specs)
		for fr := range frames {
			bands, err := builder.Process(fr.Samples)
			if err != nil {
				return err
			}
			select {
			case specs <- bandFrame{index: fr.Index, bands: bands}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	g.Go(func() error {
		for bf := range specs {
			x, err := flux.Next(bf.bands)
			if err != nil {
				return err
			}
			res.Activations.Values = append(res.Activations.Values, x)
			if det != nil {
				onsets, err := det.Push(x)
				if err != nil {
					return err
				}
				res.Frames = append(res.Frames, onsets...)
			}
		}
		return gctx.Err()
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	a.metrics.Frames.Add(ctx, int64(len(res.Activations.Values)))

	if det != nil {
		onsets, err := det.Flush()
		if err != nil {
			return nil, err
		}
		res.Frames = append(res.Frames, onsets...)
		res.Onsets = peakpick.Times(res.Frames, framer.Hop(), sig.SampleRate, cfg.Delay)
	}
	return res, nil
}
