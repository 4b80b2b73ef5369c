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

// NATS Stream Names
const (
	HistoryStream  = "REPLAYFLOW_HISTORY"
	TasksStream    = "REPLAYFLOW_TASKS"
	OutcomesStream = "REPLAYFLOW_OUTCOMES"
	TimersStream   = "REPLAYFLOW_TIMERS"
)

// NATS Subject Prefixes
const (
	HistorySubjectPrefix  = "history"
	TasksSubjectPrefix    = "tasks"
	OutcomesSubjectPrefix = "outcomes"
	TimersSubjectPrefix   = "timers"
)

// NATS Subject Formats
const (
	TaskPublishSubjectPattern    = TasksSubjectPrefix + ".%s"    // task name
	OutcomePublishSubjectPattern = OutcomesSubjectPrefix + ".%s" // run id
	TimerPublishSubjectPattern   = TimersSubjectPrefix + ".%s"   // run id
)

// NATS Subject Patterns
const (
	TasksFilterSubjectPattern    = TasksSubjectPrefix + ".>"
	OutcomesFilterSubjectPattern = OutcomesSubjectPrefix + ".>"
	TimersFilterSubjectPattern   = TimersSubjectPrefix + ".>"
)

// Consumer Names
const (
	TaskWorkerConsumer    = "worker-tasks"
	OutcomeWorkerConsumer = "worker-outcomes"
	TimerServiceConsumer  = "service-timers"
)

// KeyValue Bucket Names
const (
	RunResultBucket = "run-result"
)

// JetStream Headers
const (
	OutcomeKindHeader = "Replayflow-Outcome-Kind"
)
