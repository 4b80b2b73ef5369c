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
	"fmt"
	"time"

	"github.com/ngnhng/replayflow/api"
)

var (
	// ErrNonDeterminism is matched by every NonDeterminismError.
	ErrNonDeterminism = errors.New("non-deterministic workflow")

	// ErrDoubleResolution reports a future settled twice. It is an engine defect.
	ErrDoubleResolution = errors.New("future resolved twice")

	// ErrReadOutsideScheduler is the panic value raised when a pending future
	// is read from code that the scheduler is not driving.
	ErrReadOutsideScheduler = errors.New("future read outside of a scheduler-managed coroutine")

	ErrWorkflowNotRegistered = errors.New("workflow not registered")
	ErrTaskNotRegistered     = errors.New("task not registered")
	ErrNoService             = errors.New("no execution service configured")
)

// TaskFailureError is the failure reported by a task handler.
type TaskFailureError struct {
	Task         string
	Type         string
	Message      string
	NonRetryable bool
}

func (e *TaskFailureError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("task %s failed (%s): %s", e.Task, e.Type, e.Message)
	}
	return fmt.Sprintf("task %s failed: %s", e.Task, e.Message)
}

// TaskTimeoutError reports an invocation that did not finish within its timeout.
type TaskTimeoutError struct {
	Task    string
	Timeout time.Duration
}

func (e *TaskTimeoutError) Error() string {
	return fmt.Sprintf("task %s timed out after %s", e.Task, e.Timeout)
}

// RetriesExhaustedError wraps the last failure of a task once its retry policy gave up.
type RetriesExhaustedError struct {
	Attempts int32
	Last     error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Last }

// NonDeterminismError describes the first history event that the workflow code
// did not reproduce.
type NonDeterminismError struct {
	Position int
	Expected string
	Got      string
}

func (e *NonDeterminismError) Error() string {
	return fmt.Sprintf("non-deterministic workflow at history event %d: code produced %s, history recorded %s",
		e.Position, e.Expected, e.Got)
}

func (e *NonDeterminismError) Is(target error) bool { return target == ErrNonDeterminism }

type WorkflowTimeoutError struct {
	Timeout time.Duration
}

func (e *WorkflowTimeoutError) Error() string {
	return fmt.Sprintf("workflow timed out after %s", e.Timeout)
}

// PanicError carries a panic raised by workflow code.
type PanicError struct {
	Value any
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("workflow panic: %v", e.Value)
}

// NonRetryableError marks a task error so that no retry policy re-issues it.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string { return e.Err.Error() }
func (e *NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// failureKind maps a terminal run error to the kind recorded in history.
func failureKind(err error) api.FailureKind {
	var (
		panicErr   *PanicError
		timeoutErr *WorkflowTimeoutError
	)
	switch {
	case errors.Is(err, ErrNonDeterminism):
		return api.FailureNonDeterminism
	case errors.Is(err, ErrDoubleResolution):
		return api.FailureDoubleResolution
	case errors.As(err, &panicErr):
		return api.FailurePanic
	case errors.As(err, &timeoutErr):
		return api.FailureTimeout
	default:
		return api.FailureWorkflow
	}
}

// errorType names the error for NonRetryableErrorTypes matching.
func errorType(err error) string {
	var typed interface{ ErrorType() string }
	if errors.As(err, &typed) {
		return typed.ErrorType()
	}
	return fmt.Sprintf("%T", err)
}
