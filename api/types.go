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

package api

import (
	"fmt"
	"time"
)

// FailureKind classifies the terminal failure of a run.
type FailureKind string

const (
	FailureWorkflow         FailureKind = "workflow"
	FailureTimeout          FailureKind = "timeout"
	FailureNonDeterminism   FailureKind = "nondeterminism"
	FailureDoubleResolution FailureKind = "double_resolution"
	FailurePanic            FailureKind = "panic"
)

// Fatal reports whether the failure was raised by the engine rather than by workflow code.
func (k FailureKind) Fatal() bool {
	return k == FailureNonDeterminism || k == FailureDoubleResolution
}

type RetryPolicy struct {
	InitialIntervalMs      int64    `json:"initial_interval_ms"`
	BackoffCoefficient     float64  `json:"backoff_coefficient"`
	MaximumIntervalMs      int64    `json:"maximum_interval_ms"`
	MaximumAttempts        int32    `json:"maximum_attempts"`
	NonRetryableErrorTypes []string `json:"non_retryable_error_types,omitempty"`
}

// InvocationID identifies one submission of a task attempt. Redelivered
// submissions carry the same id so the execution service can drop duplicates.
type InvocationID string

func NewInvocationID(runID RunID, seq int64, attempt int32) InvocationID {
	return InvocationID(fmt.Sprintf("%s/%d/%d", runID, seq, attempt))
}

// TimerID identifies one timer. Format mirrors InvocationID with a "t" marker.
type TimerID string

func NewTimerID(runID RunID, seq int64, attempt int32) TimerID {
	return TimerID(fmt.Sprintf("%s/t%d/%d", runID, seq, attempt))
}

// TaskKey returns the registration key of a task or workflow.
func TaskKey(name, version string) string {
	return name + "@" + version
}

type (
	// TaskInvocation is a request to execute one attempt of a named task.
	TaskInvocation struct {
		ID      InvocationID `json:"id"`
		RunID   RunID        `json:"run_id"`
		Seq     int64        `json:"seq"`
		Attempt int32        `json:"attempt"`

		Name      string `json:"name"`
		Version   string `json:"version"`
		Input     []byte `json:"input,omitempty"`
		TimeoutMs int64  `json:"timeout_ms,omitempty"`
	}

	TimerRequest struct {
		ID      TimerID `json:"id"`
		RunID   RunID   `json:"run_id"`
		Seq     int64   `json:"seq"`
		Attempt int32   `json:"attempt"`
		DelayMs int64   `json:"delay_ms"`
		// FireAt is wall-clock time in unix milliseconds, set by the service on receipt.
		FireAt int64 `json:"fire_at,omitempty"`
	}

	// StartRequest asks for a new run of a registered workflow.
	StartRequest struct {
		RunID     RunID  `json:"run_id"`
		Name      string `json:"name"`
		Version   string `json:"version"`
		Input     []byte `json:"input,omitempty"`
		TimeoutMs int64  `json:"timeout_ms,omitempty"`
	}

	RunResult struct {
		RunID  RunID       `json:"run_id"`
		Result []byte      `json:"result,omitempty"`
		Kind   FailureKind `json:"kind,omitempty"`
		Error  string      `json:"error,omitempty"`
	}
)

func (t *TaskInvocation) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

func (t *TimerRequest) Delay() time.Duration {
	return time.Duration(t.DelayMs) * time.Millisecond
}

func (r *RunResult) Failed() bool { return r.Error != "" }

type OutcomeKind string

const (
	OutcomeRunRequested OutcomeKind = "run_requested"
	OutcomeSucceeded    OutcomeKind = "succeeded"
	OutcomeFailed       OutcomeKind = "failed"
	OutcomeTimedOut     OutcomeKind = "timed_out"
	OutcomeTimerFired   OutcomeKind = "timer_fired"
)

// Outcome is one entry of the event feed consumed by the scheduler side.
type Outcome struct {
	Kind    OutcomeKind `json:"kind"`
	RunID   RunID       `json:"run_id"`
	Seq     int64       `json:"seq"`
	Attempt int32       `json:"attempt"`

	InvocationID InvocationID `json:"invocation_id,omitempty"`
	Payload      []byte       `json:"payload,omitempty"`
	ErrorType    string       `json:"error_type,omitempty"`
	Message      string       `json:"message,omitempty"`
	NonRetryable bool         `json:"non_retryable,omitempty"`

	Start *StartRequest `json:"start,omitempty"`
}

// DedupID is the idempotency key of an outcome on the feed.
func (o *Outcome) DedupID() string {
	switch o.Kind {
	case OutcomeRunRequested:
		return "start/" + string(o.RunID)
	case OutcomeTimerFired:
		return string(NewTimerID(o.RunID, o.Seq, o.Attempt))
	default:
		return string(NewInvocationID(o.RunID, o.Seq, o.Attempt))
	}
}
