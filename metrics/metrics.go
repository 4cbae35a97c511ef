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
Package metrics records onset detection metrics through the OpenTelemetry
metrics API. Tests should build their own Metrics with New and an SDK meter
provider; Default uses the global provider.
*/
package metrics

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/goccmack/superflux"

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// Frames counts analysed frames.
	Frames metric.Int64Counter
	// Onsets counts detected onsets.
	Onsets metric.Int64Counter
	// Runs counts finished runs by status.
	Runs metric.Int64Counter
	// Errors counts failed runs by error kind.
	Errors metric.Int64Counter
	// CacheLookups counts activation cache lookups by result.
	CacheLookups metric.Int64Counter
	// RunDuration tracks the wall time of a run.
	RunDuration metric.Float64Histogram
}

var durationBuckets = []float64{
	0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60,
}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Frames, err = m.Int64Counter("superflux.frames",
		metric.WithDescription("Analysed frames."),
	); err != nil {
		return nil, err
	}
	if met.Onsets, err = m.Int64Counter("superflux.onsets",
		metric.WithDescription("Detected onsets."),
	); err != nil {
		return nil, err
	}
	if met.Runs, err = m.Int64Counter("superflux.runs",
		metric.WithDescription("Finished runs by status."),
	); err != nil {
		return nil, err
	}
	if met.Errors, err = m.Int64Counter("superflux.errors",
		metric.WithDescription("Failed runs by error kind."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("superflux.cache.lookups",
		metric.WithDescription("Activation cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.RunDuration, err = m.Float64Histogram("superflux.run.duration",
		metric.WithDescription("Wall time of one detection run."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Default returns the Metrics of the global meter provider.
func Default() *Metrics {
	defaultOnce.Do(func() {
		m, err := New(otel.GetMeterProvider())
		if err != nil {
			panic("metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// RecordRun records one finished run. kind is empty for a successful run.
func (m *Metrics) RecordRun(ctx context.Context, strategy string, seconds float64, kind string) {
	status := "ok"
	if kind != "" {
		status = "error"
		m.Errors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
	}
	attrs := metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.String("status", status),
	)
	m.Runs.Add(ctx, 1, attrs)
	m.RunDuration.Record(ctx, seconds, attrs)
}

// RecordCache records an activation cache lookup.
func (m *Metrics) RecordCache(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
