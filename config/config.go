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
Package config holds the analysis settings of the onset detector and loads
them from YAML. Option names follow the SuperFluxNN command line.
*/
package config

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Logrus returns the logrus level of l. The empty level is info.
func (l LogLevel) Logrus() logrus.Level {
	switch l {
	case LogDebug:
		return logrus.DebugLevel
	case LogWarn:
		return logrus.WarnLevel
	case LogError:
		return logrus.ErrorLevel
	}
	return logrus.InfoLevel
}

const (
	// DefaultThreshold applies to raw SuperFlux activations.
	DefaultThreshold = 1.1
	// DefaultNNThreshold applies to network peak probabilities.
	DefaultNNThreshold = 0.4
)

/*
Config is the full set of analysis settings. Times are in seconds unless the
field says frames.
*/
type Config struct {
	LogLevel LogLevel `yaml:"log_level"`

	// Framing
	Fps       float64 `yaml:"fps"`
	FrameSize int     `yaml:"frame_size"`
	Online    bool    `yaml:"online"`

	// Filterbank
	NumBands    int     `yaml:"num_bands"`
	Fmin        float64 `yaml:"fmin"`
	Fmax        float64 `yaml:"fmax"`
	NormFilters bool    `yaml:"norm_filters"`

	// Logarithmic compression
	Log bool    `yaml:"log"`
	Mul float64 `yaml:"mul"`
	Add float64 `yaml:"add"`

	// SuperFlux difference
	DiffRatio     float64 `yaml:"diff_ratio"`
	DiffMaxBins   int     `yaml:"diff_max_bins"`
	PositiveDiffs bool    `yaml:"positive_diffs"`

	// Peak picking. Threshold nil selects the default of the strategy.
	Threshold *float64 `yaml:"threshold"`
	PreAvg    float64  `yaml:"pre_avg"`
	PostAvg   float64  `yaml:"post_avg"`
	PreMax    float64  `yaml:"pre_max"`
	PostMax   float64  `yaml:"post_max"`
	Combine   float64  `yaml:"combine"`
	// MinInterval in frames overrides Combine when positive.
	MinInterval int     `yaml:"min_interval"`
	Delay       float64 `yaml:"delay"`

	// NNWeights is the path of the network weight blob. Empty selects plain
	// threshold peak picking.
	NNWeights string `yaml:"nn_weights"`
	// Lookahead in frames of the network.
	Lookahead int `yaml:"lookahead"`

	// CacheDir enables the activation store.
	CacheDir string `yaml:"cache_dir"`
	// Workers bounds the number of files analysed in parallel.
	Workers int `yaml:"workers"`
	// QueueSize is the capacity of the queues between pipeline stages.
	QueueSize int `yaml:"queue_size"`
}

// Default returns the SuperFluxNN settings.
func Default() *Config {
	return &Config{
		LogLevel:      LogInfo,
		Fps:           100,
		FrameSize:     2048,
		NumBands:      24,
		Fmin:          30,
		Fmax:          17000,
		Log:           true,
		Mul:           1,
		Add:           1,
		DiffRatio:     0.5,
		DiffMaxBins:   3,
		PositiveDiffs: true,
		PreAvg:        0.15,
		PreMax:        0.01,
		PostMax:       0.05,
		Combine:       0.03,
		QueueSize:     64,
	}
}

// UseNN reports whether network peak picking is configured.
func (c *Config) UseNN() bool { return c.NNWeights != "" }

// PeakThreshold returns the configured threshold or the default of the
// selected strategy.
func (c *Config) PeakThreshold() float64 {
	if c.Threshold != nil {
		return *c.Threshold
	}
	if c.UseNN() {
		return DefaultNNThreshold
	}
	return DefaultThreshold
}

// Frames converts seconds to frames at the configured frame rate.
func (c *Config) Frames(seconds float64) int {
	return int(seconds*c.Fps + 0.5)
}

// MinIntervalFrames returns the refractory period in frames.
func (c *Config) MinIntervalFrames() int {
	if c.MinInterval > 0 {
		return c.MinInterval
	}
	return c.Frames(c.Combine)
}

/*
Fingerprint describes every setting that changes the activation sequence.
Two configurations with the same fingerprint produce the same activations
for the same audio.
*/
func (c *Config) Fingerprint() string {
	return fmt.Sprintf("fps=%g frame_size=%d online=%t num_bands=%d fmin=%g fmax=%g norm=%t log=%t mul=%g add=%g ratio=%g max_bins=%d positive=%t",
		c.Fps, c.FrameSize, c.Online, c.NumBands, c.Fmin, c.Fmax, c.NormFilters,
		c.Log, c.Mul, c.Add, c.DiffRatio, c.DiffMaxBins, c.PositiveDiffs)
}
