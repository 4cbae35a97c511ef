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
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
	"golang.org/x/sync/errgroup"

	"github.com/goccmack/superflux/activations"
	"github.com/goccmack/superflux/audio"
	"github.com/goccmack/superflux/config"
	"github.com/goccmack/superflux/pipeline"
)

const (
	// Directory for plot output
	outDir = "out"

	// Suffix of saved activation files
	actSuffix = ".act.pb"
)

var (
	inFileNames []string
	outFileName string
	configFile  string

	outJSON     = false
	outPlotData = false
	saveAct     = false
	loadAct     = false
	showBar     = true
)

func main() {
	start := time.Now()
	cfg := getParams()
	logrus.SetLevel(cfg.LogLevel.Logrus())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts []pipeline.Option
	var store *activations.Store
	if cfg.CacheDir != "" {
		var err error
		if store, err = activations.Open(cfg.CacheDir); err != nil {
			fail(fmt.Sprintf("cannot open cache %s: %s", cfg.CacheDir, err))
		}
		opts = append(opts, pipeline.WithStore(store))
	}
	a, err := pipeline.New(cfg, opts...)
	if err != nil {
		fail(err.Error())
	}

	failed := run(ctx, a, inFileNames)
	stop()
	if store != nil {
		if err := store.Close(); err != nil {
			logrus.WithError(err).Warn("cache close failed")
		}
	}

	fmt.Println(time.Now().Sub(start))
	if failed > 0 {
		os.Exit(1)
	}
}

/*
run analyses files with at most cfg.Workers in parallel and returns the number
of files that failed. A failing file does not stop the others.
*/
func run(ctx context.Context, a *pipeline.Analyzer, files []string) int {
	workers := a.Config().Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var bar *mpb.Bar
	var p *mpb.Progress
	if showBar && len(files) > 1 {
		p = mpb.NewWithContext(ctx, mpb.WithWidth(64), mpb.WithOutput(os.Stderr))
		bar = p.AddBar(int64(len(files)),
			mpb.PrependDecorators(
				decor.Name("Onsets: "),
				decor.CountersNoUnit("%d / %d"),
			),
			mpb.AppendDecorators(
				decor.Percentage(),
				decor.EwmaETA(decor.ET_STYLE_GO, 60),
			),
		)
	}

	errs := make([]error, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, fname := range files {
		g.Go(func() error {
			itemStart := time.Now()
			_, errs[i] = processFile(gctx, a, fname)
			if bar != nil {
				bar.EwmaIncrement(time.Since(itemStart))
			}
			return nil
		})
	}
	_ = g.Wait()
	if p != nil {
		p.Wait()
	}

	failed := 0
	for i, err := range errs {
		if err != nil {
			failed++
			logrus.WithFields(logrus.Fields{
				"file": files[i],
			}).WithError(err).Error("failed")
		}
	}
	return failed
}

// processFile detects the onsets of one input and writes its outputs.
func processFile(ctx context.Context, a *pipeline.Analyzer, inFile string) (*fileRecord, error) {
	start := time.Now()
	log := logrus.WithField("file", inFile)
	a = a.With(log)

	fr := &fileRecord{inFile: inFile, outFile: outFileName, strategy: a.Strategy().Name()}
	if fr.outFile == "" {
		fr.outFile = fromInFileName(inFile, outExt())
	}

	if loadAct {
		act, err := activations.Load(inFile, a.Config().Fps)
		if err != nil {
			return nil, err
		}
		if fr.res, err = a.Onsets(ctx, act); err != nil {
			return nil, err
		}
	} else {
		sig, err := audio.LoadWav(inFile)
		if err != nil {
			return nil, err
		}
		fr.sig = sig
		if fr.res, err = a.Detect(ctx, sig); err != nil {
			return nil, err
		}
		if saveAct {
			actFile := fromInFileName(inFile, actSuffix)
			if err := activations.Save(actFile, fr.res.Activations); err != nil {
				return nil, err
			}
			log.WithField("activations", actFile).Debug("saved")
		}
	}

	if err := writeOutput(fr, a.Config()); err != nil {
		return nil, err
	}
	if outPlotData {
		if err := writePlotData(fr); err != nil {
			return nil, err
		}
	}
	fr.elapsed = time.Since(start)
	log.WithFields(logrus.Fields{
		"onsets":     len(fr.res.Onsets),
		"last_onset": fr.lastOnset(),
		"output":     fr.outFile,
		"elapsed":    fr.elapsed,
	}).Debug("written")
	return fr, nil
}

/*** command line parameters ***/

func fail(msg string) {
	fmt.Printf("Error: %s\n", msg)
	usage()
	os.Exit(1)
}

func getParams() *config.Config {
	help := flag.Bool("h", false, "")
	verbose := flag.Bool("v", false, "")
	quiet := flag.Bool("q", false, "")
	flag.BoolVar(&outJSON, "json", false, "")
	flag.BoolVar(&outPlotData, "plot", false, "")
	flag.BoolVar(&saveAct, "save", false, "")
	flag.BoolVar(&loadAct, "load", false, "")
	flag.StringVar(&outFileName, "o", "", "")
	flag.StringVar(&configFile, "config", "", "")
	nn := flag.String("nn", "", "")
	online := flag.Bool("online", false, "")
	threshold := flag.Float64("threshold", 0, "")
	cacheDir := flag.String("cache", "", "")
	workers := flag.Int("workers", 0, "")
	flag.Parse()

	if *help {
		usage()
		os.Exit(0)
	}
	if flag.NArg() < 1 {
		fail("WAV file name required")
	}
	if outFileName != "" && flag.NArg() > 1 {
		fail("-o requires a single input file")
	}
	if saveAct && loadAct {
		fail("-save and -load are exclusive")
	}
	inFileNames = flag.Args()
	showBar = !*quiet

	cfg := config.Default()
	if configFile != "" {
		var err error
		if cfg, err = config.Load(configFile); err != nil {
			fail(err.Error())
		}
	}
	// Flags given on the command line override the configuration file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "nn":
			cfg.NNWeights = *nn
		case "online":
			cfg.Online = *online
		case "threshold":
			th := *threshold
			cfg.Threshold = &th
		case "cache":
			cfg.CacheDir = *cacheDir
		case "workers":
			cfg.Workers = *workers
		}
	})
	if *verbose {
		cfg.LogLevel = config.LogDebug
	}
	if err := config.Validate(cfg); err != nil {
		fail(err.Error())
	}
	return cfg
}

func outExt() string {
	if outJSON {
		return ".onsets.json"
	}
	return ".onsets.txt"
}

// fromInFileName replaces the extension of inFile, including a saved
// activation suffix, by ext.
func fromInFileName(inFile, ext string) string {
	dir, fname := path.Split(inFile)
	if strings.HasSuffix(fname, actSuffix) {
		fname = strings.TrimSuffix(fname, actSuffix)
	} else if i := strings.LastIndex(fname, "."); i > 0 {
		fname = fname[:i]
	}
	return path.Join(dir, fname+ext)
}

func usage() {
	fmt.Println(usageString)
}

const usageString = `use: superflux [-config file] [-nn weights] [-online] [-threshold t]
                 [-json] [-plot] [-save | -load] [-cache dir] [-workers n]
                 [-o <out file>] [-v] [-q] <WAV File>... or
     superflux -h
where
    -h displays this help

    <WAV File> is the name of an input WAV file. Only the first channel is
        analysed. With -load the inputs are activation files written by -save.

    -config file: Optional. YAML file of analysis settings. Flags override it.

    -nn weights: Optional. Pick peaks with the recurrent network whose weights
        are in this file instead of thresholding the activations.

    -online: Optional. Causal analysis with no look-ahead.

    -threshold t: Optional. Peak threshold. Default 1.1, or 0.4 with -nn.

    -json: Optional. Write a JSON record instead of one onset time per line.

    -plot: Optional. Default false. Write data files for plotting to out/.

    -save: Optional. Write the activations to <WAV File>.act.pb.

    -load: Optional. Read the activations instead of analysing audio.

    -cache dir: Optional. Keep activations in a store in dir.

    -workers n: Optional. Number of files analysed in parallel. Default: CPUs.

    -o <out file>: Optional. Default <WAV File>.onsets.txt or .onsets.json

    -v: Optional. Debug logging.

    -q: Optional. No progress bar.`
