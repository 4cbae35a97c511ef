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
Package errkind classifies the failures of an onset detection run.

A ConfigurationError is user fixable: a parameter is out of range or a cached
activation sequence was produced with a different frame rate. A
ComputationError means a non-finite value appeared mid pipeline. Both are
fatal for the run that raised them and neither is ever retried.
*/
package errkind

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is wrapped by every invalid parameter error.
	ErrConfiguration = errors.New("configuration error")
	// ErrComputation is wrapped by every numeric failure.
	ErrComputation = errors.New("computation error")
)

// Configf returns an error wrapping ErrConfiguration.
func Configf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Computationf returns an error wrapping ErrComputation.
func Computationf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrComputation, fmt.Sprintf(format, args...))
}

// Kind returns "configuration", "computation" or "other" for err.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrComputation):
		return "computation"
	}
	return "other"
}
