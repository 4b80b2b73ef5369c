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

package workflow

import (
	"errors"

	"github.com/ngnhng/replayflow/sdk/internal"
)

var (
	// ErrNonDeterminism matches every *NonDeterminismError.
	ErrNonDeterminism = internal.ErrNonDeterminism

	// ErrDoubleResolution is the failure of a run in which a future settled twice.
	ErrDoubleResolution = internal.ErrDoubleResolution

	// ErrReadOutsideScheduler is the panic value of a Get on a pending future
	// made outside a workflow coroutine.
	ErrReadOutsideScheduler = internal.ErrReadOutsideScheduler
)

type (
	// TaskFailureError is the failure a task reported for one attempt.
	TaskFailureError = internal.TaskFailureError
	// TaskTimeoutError is an attempt that exceeded its timeout.
	TaskTimeoutError = internal.TaskTimeoutError
	// RetriesExhaustedError wraps the last failure of a task whose retry
	// policy ran out of attempts.
	RetriesExhaustedError = internal.RetriesExhaustedError
	// NonDeterminismError reports a history entry that the workflow code did
	// not reproduce.
	NonDeterminismError = internal.NonDeterminismError
	// WorkflowTimeoutError is the failure of a run that exceeded its deadline.
	WorkflowTimeoutError = internal.WorkflowTimeoutError
	// PanicError represents a panic that occurred in workflow code.
	PanicError = internal.PanicError
	// NonRetryableError wraps an error to indicate it should not be retried.
	NonRetryableError = internal.NonRetryableError
)

// NewNonRetryableError marks err as not retryable. Task handlers return it to
// stop the retry policy of the dispatch.
func NewNonRetryableError(err error) error {
	return internal.NewNonRetryableError(err)
}

// IsNonRetryable reports whether err, or a task failure it wraps, is marked
// as not retryable.
func IsNonRetryable(err error) bool {
	var nre *NonRetryableError
	if errors.As(err, &nre) {
		return true
	}
	var failure *TaskFailureError
	return errors.As(err, &failure) && failure.NonRetryable
}
