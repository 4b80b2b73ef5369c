// Copyright 2025 Nguyen Nhat Nguyen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package internal

import (
	"errors"
	"math"
	"slices"
	"time"

	"github.com/ngnhng/replayflow/api"
)

const (
	DefaultRetryInitialInterval    = time.Second
	DefaultRetryBackoffCoefficient = 2.0
	// DefaultRetryMaximumIntervalFactor caps the backoff at this multiple of the initial interval.
	DefaultRetryMaximumIntervalFactor = 100
)

type RetryPolicy struct {
	// Backoff interval for the first retry. If BackoffCoefficient is 1.0 then it is used for all retries.
	// If not set or set to 0, a default interval of 1s will be used.
	InitialInterval time.Duration

	// Coefficient used to calculate the next retry backoff interval.
	// The next retry interval is previous interval multiplied by this coefficient.
	// Must be 1 or larger. Default is 2.0.
	BackoffCoefficient float64

	// Maximum backoff interval between retries. Exponential backoff leads to interval increase.
	// This value is the cap of the interval. Default is 100x of initial interval.
	MaximumInterval time.Duration

	// Maximum number of attempts, the first one included. 0 means unlimited.
	MaximumAttempts int32

	// Error types that stop the retries. Matched against TaskFailureError.Type.
	NonRetryableErrorTypes []string
}

func (r *RetryPolicy) initial() time.Duration {
	if r.InitialInterval <= 0 {
		return DefaultRetryInitialInterval
	}
	return r.InitialInterval
}

func (r *RetryPolicy) coefficient() float64 {
	if r.BackoffCoefficient < 1 {
		return DefaultRetryBackoffCoefficient
	}
	return r.BackoffCoefficient
}

func (r *RetryPolicy) maximum() time.Duration {
	if r.MaximumInterval <= 0 {
		return DefaultRetryMaximumIntervalFactor * r.initial()
	}
	return r.MaximumInterval
}

// Delay returns the backoff before re-issuing after the given failed attempt:
// min(initial * coefficient^(attempt-1), maximum).
func (r *RetryPolicy) Delay(attempt int32) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	raw := float64(r.initial()) * math.Pow(r.coefficient(), float64(attempt-1))
	maxInterval := r.maximum()
	if raw >= float64(maxInterval) || math.IsInf(raw, 1) {
		return maxInterval
	}
	return time.Duration(raw)
}

// Exhausted reports whether no attempt may follow the given one.
func (r *RetryPolicy) Exhausted(attempt int32) bool {
	return r.MaximumAttempts > 0 && attempt >= r.MaximumAttempts
}

// Retryable reports whether cause may be retried by this policy.
func (r *RetryPolicy) Retryable(cause error) bool {
	var failure *TaskFailureError
	if errors.As(cause, &failure) {
		if failure.NonRetryable {
			return false
		}
		return !slices.Contains(r.NonRetryableErrorTypes, failure.Type)
	}
	return true
}

func (r *RetryPolicy) toAPI() *api.RetryPolicy {
	if r == nil {
		return nil
	}
	return &api.RetryPolicy{
		InitialIntervalMs:      r.InitialInterval.Milliseconds(),
		BackoffCoefficient:     r.BackoffCoefficient,
		MaximumIntervalMs:      r.MaximumInterval.Milliseconds(),
		MaximumAttempts:        r.MaximumAttempts,
		NonRetryableErrorTypes: r.NonRetryableErrorTypes,
	}
}
