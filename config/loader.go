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

package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/goccmack/superflux/errkind"
)

// Load reads the YAML file at path over the defaults and validates the
// result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Unknown keys are rejected.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, errkind.Configf("decode yaml: %v", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg and returns all problems joined. Every returned error
// wraps errkind.ErrConfiguration.
func Validate(cfg *Config) error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, errkind.Configf(format, args...))
	}

	if cfg.LogLevel != "" && !cfg.LogLevel.IsValid() {
		add("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel)
	}
	if !(cfg.Fps > 0) || math.IsInf(cfg.Fps, 0) {
		add("fps %g must be positive", cfg.Fps)
	}
	if cfg.FrameSize <= 0 {
		add("frame_size %d must be positive", cfg.FrameSize)
	}
	if cfg.NumBands <= 0 {
		add("num_bands %d must be positive", cfg.NumBands)
	}
	if !(cfg.Fmin > 0) {
		add("fmin %g must be positive", cfg.Fmin)
	}
	if cfg.Fmax <= cfg.Fmin {
		add("fmax %g must be above fmin %g", cfg.Fmax, cfg.Fmin)
	}
	if cfg.Log {
		if !(cfg.Mul > 0) {
			add("mul %g must be positive", cfg.Mul)
		}
		if !(cfg.Add > 0) {
			add("add %g must be positive", cfg.Add)
		}
	}
	if cfg.DiffRatio < 0 || cfg.DiffRatio > 1 || math.IsNaN(cfg.DiffRatio) {
		add("diff_ratio %g is out of range [0, 1]", cfg.DiffRatio)
	}
	if cfg.DiffMaxBins < 0 {
		add("diff_max_bins %d must not be negative", cfg.DiffMaxBins)
	}
	if cfg.Threshold != nil && (math.IsNaN(*cfg.Threshold) || math.IsInf(*cfg.Threshold, 0)) {
		add("threshold must be finite")
	}
	for _, d := range []struct {
		name string
		v    float64
	}{
		{"pre_avg", cfg.PreAvg},
		{"post_avg", cfg.PostAvg},
		{"pre_max", cfg.PreMax},
		{"post_max", cfg.PostMax},
		{"combine", cfg.Combine},
		{"delay", cfg.Delay},
	} {
		if d.v < 0 || math.IsNaN(d.v) {
			add("%s %g must not be negative", d.name, d.v)
		}
	}
	if cfg.MinInterval < 0 {
		add("min_interval %d must not be negative", cfg.MinInterval)
	}
	if cfg.Lookahead < 0 {
		add("lookahead %d must not be negative", cfg.Lookahead)
	}
	if cfg.Lookahead > 0 && !cfg.UseNN() {
		add("lookahead requires nn_weights")
	}
	if cfg.Lookahead > 0 && cfg.Online {
		add("lookahead %d is not available online", cfg.Lookahead)
	}
	if cfg.Workers < 0 {
		add("workers %d must not be negative", cfg.Workers)
	}
	if cfg.QueueSize < 0 {
		add("queue_size %d must not be negative", cfg.QueueSize)
	}
	return errors.Join(errs...)
}
