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
	"github.com/DeluxeOwl/chronicle/event"
)

// RunID identifies one workflow run and doubles as the aggregate id of its history.
type RunID string

func (r RunID) String() string { return string(r) }

// HistoryEvent is one recorded entry of a run's history.
//
// Command events (TaskScheduled, TimerStarted, WorkflowCompleted, WorkflowFailed)
// are produced by the scheduler. Outcome events (TaskCompleted, TaskFailed,
// TaskTimedOut, TimerFired) are appended when the execution service reports back.
type HistoryEvent interface {
	event.Any

	isHistoryEvent()
}

var _ HistoryEvent = (*WorkflowStarted)(nil)
var _ HistoryEvent = (*TaskScheduled)(nil)
var _ HistoryEvent = (*TaskCompleted)(nil)
var _ HistoryEvent = (*TaskFailed)(nil)
var _ HistoryEvent = (*TaskTimedOut)(nil)
var _ HistoryEvent = (*TimerStarted)(nil)
var _ HistoryEvent = (*TimerFired)(nil)
var _ HistoryEvent = (*WorkflowCompleted)(nil)
var _ HistoryEvent = (*WorkflowFailed)(nil)

// -- Workflow Started --
type WorkflowStarted struct {
	RunID RunID `json:"run_id"`

	Name      string `json:"name"`
	Version   string `json:"version"`
	Input     []byte `json:"input,omitempty"`
	TimeoutMs int64  `json:"timeout_ms,omitempty"`
}

func (*WorkflowStarted) EventName() string { return "workflow/started" }
func (*WorkflowStarted) isHistoryEvent()   {}

// -- Task Scheduled --
type TaskScheduled struct {
	RunID   RunID `json:"run_id"`
	Seq     int64 `json:"seq"`
	Attempt int32 `json:"attempt"`

	Name        string       `json:"name"`
	Version     string       `json:"version"`
	Input       []byte       `json:"input,omitempty"`
	TimeoutMs   int64        `json:"timeout_ms,omitempty"`
	RetryPolicy *RetryPolicy `json:"retry_policy,omitempty"`
}

func (*TaskScheduled) EventName() string { return "task/scheduled" }
func (*TaskScheduled) isHistoryEvent()   {}

// -- Task Completed --
type TaskCompleted struct {
	RunID   RunID `json:"run_id"`
	Seq     int64 `json:"seq"`
	Attempt int32 `json:"attempt"`

	Result []byte `json:"result,omitempty"`
}

func (*TaskCompleted) EventName() string { return "task/completed" }
func (*TaskCompleted) isHistoryEvent()   {}

// -- Task Failed --
type TaskFailed struct {
	RunID   RunID `json:"run_id"`
	Seq     int64 `json:"seq"`
	Attempt int32 `json:"attempt"`

	ErrorType    string `json:"error_type,omitempty"`
	Message      string `json:"message"`
	NonRetryable bool   `json:"non_retryable,omitempty"`
}

func (*TaskFailed) EventName() string { return "task/failed" }
func (*TaskFailed) isHistoryEvent()   {}

// -- Task Timed Out --
type TaskTimedOut struct {
	RunID   RunID `json:"run_id"`
	Seq     int64 `json:"seq"`
	Attempt int32 `json:"attempt"`

	TimeoutMs int64 `json:"timeout_ms,omitempty"`
}

func (*TaskTimedOut) EventName() string { return "task/timed_out" }
func (*TaskTimedOut) isHistoryEvent()   {}

// -- Timer Started --
//
// Seq 0 is reserved for the workflow deadline. Backoff timers share the seq of
// the task they retry and carry the attempt that failed.
type TimerStarted struct {
	RunID   RunID `json:"run_id"`
	Seq     int64 `json:"seq"`
	Attempt int32 `json:"attempt"`

	DelayMs int64 `json:"delay_ms"`
	Backoff bool  `json:"backoff,omitempty"`
}

func (*TimerStarted) EventName() string { return "timer/started" }
func (*TimerStarted) isHistoryEvent()   {}

// -- Timer Fired --
type TimerFired struct {
	RunID   RunID `json:"run_id"`
	Seq     int64 `json:"seq"`
	Attempt int32 `json:"attempt"`
}

func (*TimerFired) EventName() string { return "timer/fired" }
func (*TimerFired) isHistoryEvent()   {}

// -- Workflow Completed --
type WorkflowCompleted struct {
	RunID RunID `json:"run_id"`

	Result []byte `json:"result,omitempty"`
}

func (*WorkflowCompleted) EventName() string { return "workflow/completed" }
func (*WorkflowCompleted) isHistoryEvent()   {}

// -- Workflow Failed --
type WorkflowFailed struct {
	RunID RunID `json:"run_id"`

	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

func (*WorkflowFailed) EventName() string { return "workflow/failed" }
func (*WorkflowFailed) isHistoryEvent()   {}
